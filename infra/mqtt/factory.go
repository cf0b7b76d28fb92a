package mqtt

import (
	"github.com/kilianp07/usef/core/exchange"
	"github.com/kilianp07/usef/core/factory"
)

// queueProvider adapts QueueClient to the exchange.QueueProvider
// contract.
type queueProvider struct {
	client *QueueClient
}

func (p queueProvider) Queue(name string) exchange.Queue { return p.client.Queue(name) }

func (p queueProvider) Subscribe(name string, fn func(payload []byte)) error {
	return p.client.Subscribe(name, fn)
}

func (p queueProvider) Close() { p.client.Close() }

// init registers the MQTT queue transport.
func init() {
	_ = exchange.RegisterTransport("mqtt", func(conf map[string]any) (exchange.QueueProvider, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		client, err := NewQueueClient(c)
		if err != nil {
			return nil, err
		}
		return queueProvider{client: client}, nil
	})
}
