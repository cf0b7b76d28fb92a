package exchange

import "sync"

// Queue is one of the node's three logical message queues: incoming,
// outgoing and not-sent. Implementations provide their own concurrency
// safety; the MQTT-backed implementation lives under infra/mqtt.
type Queue interface {
	Publish(payload []byte) error
}

// MemoryQueue buffers payloads in process. It backs tests and the
// loopback setups used in development.
type MemoryQueue struct {
	mu       sync.Mutex
	payloads [][]byte
}

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) Publish(payload []byte) error {
	q.mu.Lock()
	q.payloads = append(q.payloads, append([]byte(nil), payload...))
	q.mu.Unlock()
	return nil
}

// Drain removes and returns all queued payloads.
func (q *MemoryQueue) Drain() [][]byte {
	q.mu.Lock()
	out := q.payloads
	q.payloads = nil
	q.mu.Unlock()
	return out
}

// Len returns the number of queued payloads.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.payloads)
}

// QueueProvider hands out named queues and delivers their messages to
// subscribers. The MQTT transport is the production implementation.
type QueueProvider interface {
	Queue(name string) Queue
	Subscribe(name string, fn func(payload []byte)) error
	Close()
}

// MemoryProvider is an in-process QueueProvider. Publishing to a
// subscribed queue invokes the handler synchronously; unsubscribed
// queues buffer.
type MemoryProvider struct {
	mu     sync.Mutex
	queues map[string]*MemoryQueue
	subs   map[string]func([]byte)
}

// NewMemoryProvider returns a provider with no queues yet.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		queues: make(map[string]*MemoryQueue),
		subs:   make(map[string]func([]byte)),
	}
}

func (p *MemoryProvider) Queue(name string) Queue {
	return &memoryProviderQueue{provider: p, name: name}
}

// Subscribe registers fn for name and replays any payloads buffered
// before the subscriber attached.
func (p *MemoryProvider) Subscribe(name string, fn func(payload []byte)) error {
	p.mu.Lock()
	p.subs[name] = fn
	backlog := p.buffered(name).Drain()
	p.mu.Unlock()
	for _, payload := range backlog {
		fn(payload)
	}
	return nil
}

func (p *MemoryProvider) Close() {}

// Buffered returns the backing queue of name for test inspection.
func (p *MemoryProvider) Buffered(name string) *MemoryQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered(name)
}

func (p *MemoryProvider) buffered(name string) *MemoryQueue {
	q, ok := p.queues[name]
	if !ok {
		q = NewMemoryQueue()
		p.queues[name] = q
	}
	return q
}

type memoryProviderQueue struct {
	provider *MemoryProvider
	name     string
}

func (q *memoryProviderQueue) Publish(payload []byte) error {
	p := q.provider
	p.mu.Lock()
	fn := p.subs[q.name]
	buf := p.buffered(q.name)
	p.mu.Unlock()
	if fn != nil {
		fn(append([]byte(nil), payload...))
		return nil
	}
	return buf.Publish(payload)
}
