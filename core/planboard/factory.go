package planboard

import (
	"github.com/kilianp07/usef/core/factory"
	"github.com/kilianp07/usef/core/model"
)

// Store bundles the planboard contracts behind one constructible backend.
type Store interface {
	PtuStore
	DocumentStore
	MessageLog
	// EnsureGroups registers connection groups the node should track.
	EnsureGroups(groups []model.ConnectionGroup) error
	Close() error
}

var storeRegistry = factory.NewRegistry[Store]()

// RegisterStore adds a planboard store factory identified by name.
func RegisterStore(name string, f factory.Factory[Store]) error {
	return storeRegistry.Register(name, f)
}

// NewStore creates a Store from the provided configuration. An empty type
// selects the in-memory backend.
func NewStore(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		return NewMemoryStore(), nil
	}
	return storeRegistry.Create(cfg)
}

func init() {
	_ = RegisterStore("memory", func(map[string]any) (Store, error) {
		return NewMemoryStore(), nil
	})
}
