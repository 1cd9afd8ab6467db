package intake

import "sync/atomic"

// Generation tags asynchronous work so that results of superseded work can
// be recognized and dropped.
type Generation struct {
	n atomic.Uint64
}

// Next starts a new generation and returns its tag.
func (g *Generation) Next() uint64 {
	return g.n.Add(1)
}

func (g *Generation) Current() uint64 {
	return g.n.Load()
}

func (g *Generation) IsCurrent(tag uint64) bool {
	return g.n.Load() == tag
}
