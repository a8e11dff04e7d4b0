// Package segment splits raw decoder output into sentences and tracks the
// raw/polished variants of every sentence in a session.
package segment

import "sync/atomic"

// Generator hands out sentence ids. Ids start at 1 and never repeat.
type Generator struct {
	counter atomic.Uint64
}

// New creates a generator whose first id is 1.
func New() *Generator {
	return &Generator{}
}

// Next returns the next sentence id.
func (g *Generator) Next() uint64 {
	return g.counter.Add(1)
}

// Last returns the most recently allocated id, or 0 if none was allocated.
func (g *Generator) Last() uint64 {
	return g.counter.Load()
}
