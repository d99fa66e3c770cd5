// Package cache provides small bounded-memory caches shared by the
// synchronizer's hot paths, grounded in the teacher's common.Cache /
// VictoriaMetrics-fastcache usage.
package cache

import (
	"github.com/VictoriaMetrics/fastcache"
)

// ScripthashMemo bounds the memory used to memoize address -> scripthash
// derivation, which Engine calls once per subscribe and Reconciler once per
// history fetch. Derivation itself (addr.Scripthash in the daemons) is out
// of the core's scope; this only avoids repeating it for addresses seen
// before.
type ScripthashMemo struct {
	c *fastcache.Cache
}

// NewScripthashMemo allocates a cache sized in bytes, matching fastcache's
// own constructor convention.
func NewScripthashMemo(maxBytes int) *ScripthashMemo {
	return &ScripthashMemo{c: fastcache.New(maxBytes)}
}

// Get returns the cached 32-byte scripthash for addr, if present.
func (m *ScripthashMemo) Get(addr string) (sh [32]byte, ok bool) {
	buf, ok := m.c.HasGet(nil, []byte(addr))
	if !ok || len(buf) != 32 {
		return sh, false
	}
	copy(sh[:], buf)
	return sh, true
}

// Put stores the scripthash derived for addr.
func (m *ScripthashMemo) Put(addr string, sh [32]byte) {
	m.c.Set([]byte(addr), sh[:])
}

// Wrap adapts a raw derivation function into one that consults this memo
// first, matching the sync.ScripthashFn shape.
func (m *ScripthashMemo) Wrap(derive func(addr string) [32]byte) func(addr string) [32]byte {
	return func(addr string) [32]byte {
		if sh, ok := m.Get(addr); ok {
			return sh
		}
		sh := derive(addr)
		m.Put(addr, sh)
		return sh
	}
}
