// Package slab implements the slab allocator: fixed-object-size caches
// backed by whole pages, each slab tracking free objects with a
// byte-bitmap and living on its cache's partial, full, or empty list.
//
// Grounded on drpnd/advos's slab.c (_new_slab/_find_slab_cache/
// memory_slab_alloc/memory_slab_create_cache) and on biscuit's
// lock-guarded allocator idiom. Cache lookup by name uses the tree
// package in place of slab.c's hand-rolled name BST.
package slab

import (
	"sync"

	"defs"
	"mem"
	"tree"
)

/// PagesPerSlab is the number of physical pages backing one slab
/// (MEMORY_SLAB_NUM_PAGES).
const PagesPerSlab = 8

/// Alignment is the byte alignment of the object area within a slab
/// (MEMORY_SLAB_ALIGNMENT).
const Alignment = 64

const slabBytes = PagesPerSlab * mem.PGSIZE

// hdr is one slab: a run of pages split into nobjs fixed-size objects,
// each with a free mark, linked onto its cache's partial/full/empty list.
type hdr struct {
	mem     []byte // the whole backing allocation
	marks   []bool // marks[i] == true means object i is free
	nobjs   int
	nused   int
	objOff  int // byte offset of object 0 within mem
	objsize int
	next    *hdr
	pa      mem.Pa_t
	order   int
}

func (s *hdr) obj(i int) []byte {
	off := s.objOff + i*s.objsize
	return s.mem[off : off+s.objsize]
}

/// Cache_t is a named pool of fixed-size objects.
type Cache_t struct {
	mu      sync.Mutex
	name    string
	objsize int
	partial *hdr
	full    *hdr
	empty   *hdr
}

/// Obj_t is a handle to an allocated slab object.
type Obj_t struct {
	Bytes []byte
	cache *Cache_t
	s     *hdr
	idx   int
}

func cmpCache(a, b *Cache_t) int {
	switch {
	case a.name < b.name:
		return -1
	case a.name > b.name:
		return 1
	default:
		return 0
	}
}

/// Allocator_t owns the page source and the tree of named caches.
type Allocator_t struct {
	mu     sync.Mutex
	pages  mem.Page_i
	zone   mem.Zone
	domain int
	caches *tree.Tree_t[*Cache_t]
}

/// Init creates a slab allocator that draws backing pages from pages
/// in the given zone/domain.
func Init(pages mem.Page_i, zone mem.Zone, domain int) *Allocator_t {
	return &Allocator_t{
		pages:  pages,
		zone:   zone,
		domain: domain,
		caches: tree.New(cmpCache),
	}
}

func (a *Allocator_t) newSlab(objsize int) (*hdr, defs.Err_t) {
	order := mem.OrderFor(mem.RoundupPages(slabBytes))
	pa, ok := a.pages.Alloc(order, a.zone, a.domain)
	if !ok {
		return nil, defs.OutOfMemory
	}
	buf := make([]byte, slabBytes)
	avail := slabBytes - Alignment
	nobjs := avail / (objsize + 1)
	if nobjs <= 0 {
		a.pages.Free(pa, order, a.zone, a.domain)
		return nil, defs.Invalid
	}
	objOff := ((nobjs + Alignment - 1) / Alignment) * Alignment
	s := &hdr{
		mem:     buf,
		marks:   make([]bool, nobjs),
		nobjs:   nobjs,
		objOff:  objOff,
		objsize: objsize,
		pa:      pa,
		order:   order,
	}
	for i := range s.marks {
		s.marks[i] = true
	}
	return s, 0
}

/// CreateCache registers a new named cache of fixed-size objects. It
/// fails with defs.Exists if the name is already registered.
func (a *Allocator_t) CreateCache(name string, size int) (*Cache_t, defs.Err_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.caches.Search(&Cache_t{name: name}); ok {
		return nil, defs.Exists
	}
	c := &Cache_t{name: name, objsize: size}
	s, err := a.newSlab(size)
	if err != 0 {
		return nil, err
	}
	c.full = s
	a.caches.Add(c, false)
	return c, 0
}

/// Lookup returns the cache registered under name.
func (a *Allocator_t) Lookup(name string) (*Cache_t, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.caches.Search(&Cache_t{name: name})
}

/// Alloc returns a free object from c, pulling a slab from the full
/// list — or allocating a new one — when the partial list is empty.
func (a *Allocator_t) Alloc(c *Cache_t) (*Obj_t, defs.Err_t) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.partial == nil && c.full == nil {
		s, err := a.newSlab(c.objsize)
		if err != 0 {
			return nil, err
		}
		c.full = s
	}
	if c.partial == nil {
		c.partial = c.full
		c.full = c.full.next
		c.partial.next = nil
	}

	s := c.partial
	idx := -1
	for i, free := range s.marks {
		if free {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic("slab: partial slab has no free object")
	}
	s.marks[idx] = false
	s.nused++

	if s.nused == s.nobjs {
		c.partial = s.next
		s.next = c.empty
		c.empty = s
	}

	return &Obj_t{Bytes: s.obj(idx), cache: c, s: s, idx: idx}, 0
}

/// Free returns o to its cache, moving its slab between the
/// empty/partial/full lists as its occupancy changes: a fully used
/// slab (on empty) that frees an object rejoins partial, and a partial
/// slab that frees its last used object rejoins full (all free),
/// matching Alloc's reverse transitions so a slab always sits on the
/// list its occupancy implies.
func (a *Allocator_t) Free(o *Obj_t) {
	c := o.cache
	c.mu.Lock()
	defer c.mu.Unlock()

	wasFull := o.s.nused == o.s.nobjs
	if o.s.marks[o.idx] {
		panic("slab: double free")
	}
	o.s.marks[o.idx] = true
	o.s.nused--

	switch {
	case wasFull:
		c.empty = removeFromList(c.empty, o.s)
		o.s.next = c.partial
		c.partial = o.s
	case o.s.nused == 0:
		c.partial = removeFromList(c.partial, o.s)
		o.s.next = c.full
		c.full = o.s
	}
}

func removeFromList(head *hdr, target *hdr) *hdr {
	if head == target {
		return head.next
	}
	for n := head; n != nil && n.next != nil; n = n.next {
		if n.next == target {
			n.next = target.next
			return head
		}
	}
	return head
}
