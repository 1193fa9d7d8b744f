// Package kmem implements the fixed-size-class general allocator:
// kmalloc(sz) rounds sz up to the nearest of a fixed set of slab
// caches and kfree(obj) returns it to its cache, tracked by an
// ownership map since the Go runtime gives us no pointer arithmetic
// to derive the owning slab the way kfree's original brute-force
// cache scan does.
//
// Grounded on drpnd/advos's kmalloc.c (the kmalloc_sizes table and
// the round-up-then-dispatch algorithm) and kmem.c (the kmalloc-N
// cache naming scheme).
package kmem

import (
	"fmt"
	"sync"

	"defs"
	"mem"
	"slab"
)

/// Sizes is the fixed kmalloc size-class table.
var Sizes = []int{8, 16, 32, 64, 96, 128, 192, 256, 512, 1024, 2048, 4096, 8192}

/// Allocator_t dispatches allocations to one kmalloc-N slab.Cache_t
/// per size class.
type Allocator_t struct {
	mu     sync.Mutex
	slabs  *slab.Allocator_t
	caches map[int]*slab.Cache_t
	owner  map[*slab.Obj_t]int // object -> size class, for Free
}

/// Init creates the kmalloc-N caches over pages drawn from the given
/// zone/domain.
func Init(pages mem.Page_i, zone mem.Zone, domain int) (*Allocator_t, defs.Err_t) {
	a := &Allocator_t{
		slabs:  slab.Init(pages, zone, domain),
		caches: make(map[int]*slab.Cache_t, len(Sizes)),
		owner:  make(map[*slab.Obj_t]int),
	}
	for _, sz := range Sizes {
		c, err := a.slabs.CreateCache(cacheName(sz), sz)
		if err != 0 {
			return nil, err
		}
		a.caches[sz] = c
	}
	return a, 0
}

func cacheName(sz int) string {
	return fmt.Sprintf("kmalloc-%d", sz)
}

func fitSize(sz int) (int, bool) {
	for _, s := range Sizes {
		if sz <= s {
			return s, true
		}
	}
	return 0, false
}

/// Kmalloc allocates at least sz bytes from the smallest size class
/// that fits, returning defs.Invalid if sz exceeds the largest class.
func (a *Allocator_t) Kmalloc(sz int) ([]byte, *slab.Obj_t, defs.Err_t) {
	cls, ok := fitSize(sz)
	if !ok {
		return nil, nil, defs.Invalid
	}
	a.mu.Lock()
	c := a.caches[cls]
	a.mu.Unlock()

	o, err := a.slabs.Alloc(c)
	if err != 0 {
		return nil, nil, err
	}
	a.mu.Lock()
	a.owner[o] = cls
	a.mu.Unlock()
	return o.Bytes[:sz], o, 0
}

/// Kfree returns obj (as returned by Kmalloc) to its size class.
func (a *Allocator_t) Kfree(obj *slab.Obj_t) defs.Err_t {
	a.mu.Lock()
	_, ok := a.owner[obj]
	delete(a.owner, obj)
	a.mu.Unlock()
	if !ok {
		return defs.NotFound
	}
	a.slabs.Free(obj)
	return 0
}
