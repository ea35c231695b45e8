package services

import "sync"

// generations counts committed mutations per owner. A view computed from
// data read under an older generation must not be cached.
type generations struct {
	mu   sync.Mutex
	byID map[string]uint64
}

func newGenerations() *generations {
	return &generations{byID: make(map[string]uint64)}
}

func (g *generations) current(owner string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byID[owner]
}

// advance bumps owner's generation and runs drop before any cacheIf can
// observe the new value.
func (g *generations) advance(owner string, drop func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byID[owner]++
	if drop != nil {
		drop()
	}
}

// cacheIf runs set only while owner is still at gen.
func (g *generations) cacheIf(owner string, gen uint64, set func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.byID[owner] != gen {
		return false
	}
	set()
	return true
}
