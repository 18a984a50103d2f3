package queue

import "sync"

// Registry maps guild IDs to their queues. Queues are created lazily
// and live for the process lifetime; an empty idle queue is harmless.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*Queue
}

func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*Queue)}
}

// GetOrCreate is the only construction path for queues.
func (r *Registry) GetOrCreate(guildID string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues[guildID]; ok {
		return q
	}
	q := New(guildID)
	r.queues[guildID] = q
	return q
}

func (r *Registry) Get(guildID string) (*Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[guildID]
	return q, ok
}

// Remove evicts a guild's queue, e.g. when the bot leaves the guild.
// Not required for correctness during normal stop cycles.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, guildID)
}

// All returns the registered queues, for shutdown teardown.
func (r *Registry) All() []*Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	return out
}
