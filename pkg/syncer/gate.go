package syncer

import "sync/atomic"

// Gate is the client's online switch. The zero value is open.
type Gate struct {
	closed atomic.Bool
}

func (g *Gate) IsOpen() bool {
	return !g.closed.Load()
}

// Open opens the gate and reports whether it was closed before.
func (g *Gate) Open() bool {
	return g.closed.Swap(false)
}

// Close closes the gate and reports whether it was open before.
func (g *Gate) Close() bool {
	return !g.closed.Swap(true)
}
