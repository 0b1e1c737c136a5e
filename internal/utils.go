package internal

import "sync"

// IDGenerator hands out run-scoped property IDs starting at 1. It is never
// reset during a run.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next ID. IDs are unique and strictly increasing.
func (g *IDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last++
	return g.last
}

// Last returns the most recently issued ID, or 0 if none was issued.
func (g *IDGenerator) Last() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
