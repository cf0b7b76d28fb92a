package planboard

import (
	"github.com/kilianp07/usef/core/factory"
	coreplanboard "github.com/kilianp07/usef/core/planboard"
)

// init registers the SQLite planboard backend.
func init() {
	_ = coreplanboard.RegisterStore("sqlite", func(conf map[string]any) (coreplanboard.Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "planboard.db"
		}
		return NewSQLiteStore(c.Path)
	})
}
