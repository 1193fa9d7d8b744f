// Package mem implements the physical buddy allocator: per-zone,
// per-NUMA-domain free lists indexed by allocation order, backed by a
// software direct map so callers can dereference physical addresses
// without a real MMU.
//
// Grounded on biscuit's mem/mem.go for the lock/refcount/page-record
// shape (Physpg_t, sync.Mutex-guarded Physmem_t, Pa_t) and on
// drpnd/advos's memory.c/memory.h for the buddy-order free list
// algorithm itself — biscuit's own allocator is a single free list per
// CPU, not an order-indexed buddy system.
package mem

import (
	"sync"
	"sync/atomic"

	"util"
)

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// MaxOrder is the highest buddy order the allocator tracks (matches
/// MEMORY_PHYS_BUDDY_ORDER): order o spans 2^o pages.
const MaxOrder = 18

/// SuperpageOrder is the order of an x86-64 2MB superpage.
const SuperpageOrder = 21 - int(PGSHIFT)

// PTE flag bits, carried from biscuit's page-table vocabulary; used by
// archops.simarch and by vm's entry/page flags.
const (
	PTE_P   Pa_t = 1 << 0 /// present
	PTE_W   Pa_t = 1 << 1 /// writable
	PTE_U   Pa_t = 1 << 2 /// user-accessible
	PTE_PCD Pa_t = 1 << 4 /// cache-disable
	PTE_PS  Pa_t = 1 << 7 /// large page
	PTE_G   Pa_t = 1 << 8 /// global
	PTE_COW Pa_t = 1 << 9 /// copy-on-write, software-defined bit
	PTE_ADDR Pa_t = PGMASK
)

/// Pa_t represents a physical address.
type Pa_t uintptr

/// Zone identifies a physical memory zone a page belongs to, mirroring
/// MEMORY_ZONE_DMA/KERNEL/NUMA_AWARE.
type Zone int

const (
	ZoneDMA    Zone = 0 /// low memory reserved for legacy DMA-capable devices
	ZoneKernel Zone = 1 /// general kernel-owned memory
	ZoneNUMA   Zone = 2 /// NUMA-domain-aware zone, indexed by Domain
)

const nzones = 3

const nilIdx = ^uint32(0)

/// Physpg_t describes a single physical page.
type Physpg_t struct {
	Refcnt int32
	order  int    // current buddy order if this page heads a free block
	nexti  uint32 // index of next page on this order's free list, or nilIdx
	Domain int
}

type zoneFree struct {
	heads [MaxOrder + 1]uint32 // index into Pgs, or nilIdx
}

/// Physmem_t manages all physical memory for the system, as a set of
/// per-zone, per-order buddy free lists.
type Physmem_t struct {
	sync.Mutex
	Pgs     []Physpg_t
	startn  uint32 // page-frame number of Pgs[0]
	zones   [nzones][]zoneFree // zones[z][domain]
	domains int
	arena   *arena_t
}

/// Physmem is the global physical memory allocator instance.
var Physmem = &Physmem_t{}

func pg2pgn(p Pa_t) uint32 { return uint32(p >> PGSHIFT) }

func (phys *Physmem_t) idx(p Pa_t) uint32 { return pg2pgn(p) - phys.startn }

func (phys *Physmem_t) pa(idx uint32) Pa_t { return Pa_t(idx+phys.startn) << PGSHIFT }

/// Phys_init creates the allocator over an in-process arena large
/// enough for npages page frames starting at physical frame 0, with
/// ndomains NUMA domains in the NUMA-aware zone.
func Phys_init(npages int, ndomains int) *Physmem_t {
	if ndomains < 1 {
		ndomains = 1
	}
	phys := Physmem
	phys.Pgs = make([]Physpg_t, npages)
	for i := range phys.Pgs {
		phys.Pgs[i].Refcnt = -1
		phys.Pgs[i].nexti = nilIdx
	}
	phys.startn = 0
	phys.domains = ndomains
	for z := 0; z < nzones; z++ {
		n := 1
		if Zone(z) == ZoneNUMA {
			n = ndomains
		}
		phys.zones[z] = make([]zoneFree, n)
		for d := range phys.zones[z] {
			for o := range phys.zones[z][d].heads {
				phys.zones[z][d].heads[o] = nilIdx
			}
		}
	}
	phys.arena = newArena(npages)
	return phys
}

func (phys *Physmem_t) domainSlot(zone Zone, domain int) *zoneFree {
	if zone == ZoneNUMA {
		if domain < 0 || domain >= len(phys.zones[zone]) {
			panic("mem: bad numa domain")
		}
		return &phys.zones[zone][domain]
	}
	return &phys.zones[zone][0]
}

/// AddRegion donates [startidx, startidx+count) page frames to zone,
/// splitting the run into the largest aligned buddy blocks it can, the
/// same greedy strategy phys_mem_buddy_add_region uses.
func (phys *Physmem_t) AddRegion(zone Zone, domain int, startidx uint32, count uint32) {
	phys.Lock()
	defer phys.Unlock()
	slot := phys.domainSlot(zone, domain)
	i := startidx
	end := startidx + count
	for i < end {
		order := MaxOrder
		for order > 0 {
			blk := uint32(1) << uint(order)
			if i%blk == 0 && i+blk <= end {
				break
			}
			order--
		}
		phys.Pgs[i].Refcnt = 0
		phys.Pgs[i].order = order
		phys.Pgs[i].Domain = domain
		phys.pushFree(slot, order, i)
		i += uint32(1) << uint(order)
	}
}

func (phys *Physmem_t) pushFree(slot *zoneFree, order int, idx uint32) {
	phys.Pgs[idx].nexti = slot.heads[order]
	phys.Pgs[idx].order = order
	slot.heads[order] = idx
}

func (phys *Physmem_t) popFree(slot *zoneFree, order int) (uint32, bool) {
	h := slot.heads[order]
	if h == nilIdx {
		return 0, false
	}
	slot.heads[order] = phys.Pgs[h].nexti
	phys.Pgs[h].nexti = nilIdx
	return h, true
}

// buddyOf returns the index of idx's buddy at the given order.
func buddyOf(idx uint32, order int) uint32 {
	return idx ^ (uint32(1) << uint(order))
}

/// Alloc removes a free block of the given order from zone/domain,
/// splitting a larger block if no exact match exists. It returns the
/// physical address of the block's first page.
func (phys *Physmem_t) Alloc(order int, zone Zone, domain int) (Pa_t, bool) {
	if order < 0 || order > MaxOrder {
		panic("mem: bad order")
	}
	phys.Lock()
	defer phys.Unlock()
	slot := phys.domainSlot(zone, domain)

	o := order
	for o <= MaxOrder {
		if _, ok := phys.peek(slot, o); ok {
			break
		}
		o++
	}
	if o > MaxOrder {
		return 0, false
	}
	idx, _ := phys.popFree(slot, o)
	// split down to the requested order, pushing the unused halves back
	for o > order {
		o--
		buddy := idx + (uint32(1) << uint(o))
		phys.Pgs[buddy].Refcnt = 0
		phys.Pgs[buddy].Domain = domain
		phys.pushFree(slot, o, buddy)
	}
	for i := idx; i < idx+(uint32(1)<<uint(order)); i++ {
		phys.Pgs[i].Refcnt = 1
	}
	phys.Pgs[idx].order = order
	return phys.pa(idx), true
}

func (phys *Physmem_t) peek(slot *zoneFree, order int) (uint32, bool) {
	h := slot.heads[order]
	return h, h != nilIdx
}

/// Free returns a block of the given order to zone/domain, coalescing
/// with its buddy while the buddy is itself free and of the same
/// order, exactly as the buddy system requires.
func (phys *Physmem_t) Free(p Pa_t, order int, zone Zone, domain int) {
	phys.Lock()
	defer phys.Unlock()
	slot := phys.domainSlot(zone, domain)
	idx := phys.idx(p)
	if atomic.LoadInt32(&phys.Pgs[idx].Refcnt) <= 0 {
		panic("mem: double free")
	}
	phys.Pgs[idx].Refcnt = 0

	for order < MaxOrder {
		buddy := buddyOf(idx, order)
		if int(buddy) >= len(phys.Pgs) {
			break
		}
		if !phys.unlinkIfHead(slot, order, buddy) {
			break
		}
		if buddy < idx {
			idx = buddy
		}
		order++
	}
	phys.pushFree(slot, order, idx)
}

// unlinkIfHead removes idx from slot's order free list if idx is free
// at that order, reporting whether it did so.
func (phys *Physmem_t) unlinkIfHead(slot *zoneFree, order int, idx uint32) bool {
	if phys.Pgs[idx].Refcnt != 0 {
		return false
	}
	h := &slot.heads[order]
	for *h != nilIdx {
		if *h == idx {
			*h = phys.Pgs[idx].nexti
			phys.Pgs[idx].nexti = nilIdx
			return true
		}
		h = &phys.Pgs[*h].nexti
	}
	return false
}

/// Refup increments the reference count of the page at p.
func (phys *Physmem_t) Refup(p Pa_t) {
	idx := phys.idx(p)
	c := atomic.AddInt32(&phys.Pgs[idx].Refcnt, 1)
	if c <= 0 {
		panic("mem: refup from non-positive refcount")
	}
}

/// Refdown decrements the reference count of the page at p, freeing
/// it at its recorded order when the count reaches zero, and reports
/// whether the page was freed.
func (phys *Physmem_t) Refdown(p Pa_t, zone Zone, domain int) bool {
	idx := phys.idx(p)
	c := atomic.AddInt32(&phys.Pgs[idx].Refcnt, -1)
	if c < 0 {
		panic("mem: refdown below zero")
	}
	if c == 0 {
		order := phys.Pgs[idx].order
		// Free rejects a page whose count is already zero, so hand it a
		// live count; it clears the count itself.
		atomic.StoreInt32(&phys.Pgs[idx].Refcnt, 1)
		phys.Free(p, order, zone, domain)
		return true
	}
	return false
}

/// Refcnt returns the current reference count of a page.
func (phys *Physmem_t) Refcnt(p Pa_t) int {
	return int(atomic.LoadInt32(&phys.Pgs[phys.idx(p)].Refcnt))
}

/// FreeCount sums the pages still sitting in zone/domain's free lists
/// across every buddy order, for kernel's /dev/stat rendering. Walks
/// the same Pgs[].nexti chains Alloc/Free maintain rather than keeping
/// a separate running counter.
func (phys *Physmem_t) FreeCount(zone Zone, domain int) int {
	phys.Lock()
	defer phys.Unlock()
	slot := phys.domainSlot(zone, domain)
	total := 0
	for order, head := range slot.heads {
		for idx := head; idx != nilIdx; idx = phys.Pgs[idx].nexti {
			total += 1 << uint(order)
		}
	}
	return total
}

/// Bytepg_t is a byte-addressed page, the unit the direct map returns.
type Bytepg_t [PGSIZE]uint8

/// Dmap returns a pointer to the direct-mapped page backing physical
/// address p, simulated over an in-process arena in place of
/// biscuit's runtime-hook-driven x86 direct map.
func (phys *Physmem_t) Dmap(p Pa_t) *Bytepg_t {
	return phys.arena.page(phys.idx(util.Rounddown(int(p), PGSIZE)))
}

/// Dmap8 returns a byte slice mapped to the given physical address,
/// starting at its in-page offset.
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	pg := phys.Dmap(p)
	off := p & PGOFFSET
	return pg[off:]
}

/// Dmap_v2p converts a direct-mapped page pointer back to a physical
/// address.
func (phys *Physmem_t) Dmap_v2p(pg *Bytepg_t) Pa_t {
	return phys.pa(phys.arena.idxOf(pg))
}

/// Page_i abstracts physical page allocation for callers (vm, slab,
/// kmem) that need only allocate/free/refcount pages, not the full
/// buddy interface.
type Page_i interface {
	Alloc(order int, zone Zone, domain int) (Pa_t, bool)
	Free(p Pa_t, order int, zone Zone, domain int)
	Refup(p Pa_t)
	Refdown(p Pa_t, zone Zone, domain int) bool
	Refcnt(p Pa_t) int
	Dmap(p Pa_t) *Bytepg_t
	Dmap8(p Pa_t) []uint8
}

var _ Page_i = (*Physmem_t)(nil)

/// RoundupPages converts a byte size to a page count, rounding up.
func RoundupPages(n int) int {
	return (n + PGSIZE - 1) / PGSIZE
}

/// OrderFor returns the smallest buddy order whose span covers n pages.
func OrderFor(n int) int {
	order := 0
	for (1 << uint(order)) < n {
		order++
	}
	return order
}
