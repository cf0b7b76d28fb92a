// Package factory provides a small generic registry used to instantiate
// pluggable backends from configuration. A backend is selected by a type
// string and parameterized by a map of raw settings; factories decode the
// settings into typed structs and return the concrete implementation.
//
// The registry backs metric sink and planboard store selection:
//
//	reg := factory.NewRegistry[planboard.PtuStore]()
//	reg.Register("sqlite", func(conf map[string]any) (planboard.PtuStore, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return sqlite.Open(c.Path)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "planboard.db"}})
package factory
