package exchange

import "github.com/kilianp07/usef/core/factory"

var transportRegistry = factory.NewRegistry[QueueProvider]()

// RegisterTransport adds a queue transport factory identified by name.
func RegisterTransport(name string, f factory.Factory[QueueProvider]) error {
	return transportRegistry.Register(name, f)
}

// NewTransport creates a QueueProvider from the provided configuration.
// An empty type selects the in-memory transport.
func NewTransport(cfg factory.ModuleConfig) (QueueProvider, error) {
	if cfg.Type == "" {
		return NewMemoryProvider(), nil
	}
	return transportRegistry.Create(cfg)
}

func init() {
	_ = RegisterTransport("memory", func(map[string]any) (QueueProvider, error) {
		return NewMemoryProvider(), nil
	})
}
