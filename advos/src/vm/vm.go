// Package vm implements the virtual memory manager: one Vm_t per
// address space, tracking free virtual regions and mapped entries in
// address-ordered trees and backing each entry with an Object_t that
// owns (or, after fork, shadows) physical pages.
//
// Grounded on drpnd/advos's src/kernel/memory.c — the block/entry/free
// region model (_block_add, _entry_add/_entry_delete, _free_add/
// _free_delete, _search_fit_size) and the shadow-object copy-on-write
// scheme virt_memory_fork builds on _entry_fork. The free/entry
// indices reuse this repository's own tree package in place of
// memory.c's hand-rolled dual atree/stree btrees, and page
// installation goes through archops.Iface in place of direct
// page-table writes.
package vm

import (
	"sync"

	"archops"
	"defs"
	"mem"
	"tree"
	"util"
)

const PGSHIFT = mem.PGSHIFT
const PGSIZE = mem.PGSIZE
const PGOFFSET = mem.PGOFFSET

type objKind int

const (
	objAnon objKind = iota
	objShadow
	objWired
)

// entryFlag marks per-entry attributes; entryCOW mirrors memory.c's
// MEMORY_VMF_COW.
type entryFlag int

const (
	entryCOW   entryFlag = 1 << 0
	entryWired entryFlag = 1 << 1
)

// WiredPage_t records one physically contiguous block of a wired
// mapping, expressed as its physical base and buddy order. Wire
// installs the largest mem.SuperpageOrder-capped, alignment-permitting
// chunk it can at each step rather than one 4 KiB record per page, the
// same coalescing a buddy allocator performs when it hands back a
// block (spec.md §4.4's wired page record, §8 scenario 2).
type WiredPage_t struct {
	Pa    mem.Pa_t
	Order int
}

// Object_t is the page-backed store an Entry_t maps. A fresh Object_t
// owns pages it allocates lazily; a shadow Object_t (created on Fork)
// defers to its parent for any page it has not yet copied, the same
// collapse memory.c performs by chaining MEMORY_SHADOW objects.
type Object_t struct {
	mu     sync.Mutex
	kind   objKind
	pages  map[int]mem.Pa_t
	wired  []WiredPage_t
	shadow *Object_t
	pager  mem.Page_i
	zone   mem.Zone
	domain int
}

// WiredPages returns the physically contiguous records backing a wired
// object, in ascending virtual-address order. Empty for anonymous and
// shadow objects.
func (o *Object_t) WiredPages() []WiredPage_t {
	return o.wired
}

func newObject(pager mem.Page_i, zone mem.Zone, domain int) *Object_t {
	return &Object_t{kind: objAnon, pages: make(map[int]mem.Pa_t), pager: pager, zone: zone, domain: domain}
}

// page returns the physical frame backing page index i, allocating a
// fresh page on first touch or following the shadow chain.
func (o *Object_t) page(i int) (mem.Pa_t, defs.Err_t) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if pa, ok := o.pages[i]; ok {
		return pa, 0
	}
	if o.kind == objShadow {
		return o.shadow.page(i)
	}
	pa, ok := o.pager.Alloc(0, o.zone, o.domain)
	if !ok {
		return 0, defs.OutOfMemory
	}
	o.pages[i] = pa
	return pa, 0
}

// cow gives page i a private, writable copy, copying the shadowed
// page's bytes if one exists. Mirrors the copy half of memory.c's page
// fault handling on MEMORY_VMF_COW entries.
func (o *Object_t) cow(i int) (mem.Pa_t, defs.Err_t) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if pa, ok := o.pages[i]; ok {
		return pa, 0
	}
	var src mem.Pa_t
	havesrc := false
	if o.kind == objShadow {
		s, err := o.shadow.page(i)
		if err == 0 {
			src, havesrc = s, true
		}
	}
	npa, ok := o.pager.Alloc(0, o.zone, o.domain)
	if !ok {
		return 0, defs.OutOfMemory
	}
	if havesrc {
		copy(o.pager.Dmap8(npa)[:PGSIZE], o.pager.Dmap8(src)[:PGSIZE])
	}
	o.pages[i] = npa
	return npa, 0
}

// Entry_t is a mapped virtual region within a Vm_t, [start, end). The
// entryWired flag marks a Wire-installed mapping, whose object holds
// WiredPage_t records rather than the page/shadow map an anonymous or
// copy-on-write entry's object holds.
type Entry_t struct {
	start, end uintptr
	object     *Object_t
	perms      mem.Pa_t
	flags      entryFlag
}

// Free_t is an unmapped virtual region available for allocation.
type Free_t struct {
	start, end uintptr
}

func cmpEntry(a, b *Entry_t) int {
	switch {
	case a.start < b.start:
		return -1
	case a.start > b.start:
		return 1
	default:
		return 0
	}
}

func cmpFree(a, b *Free_t) int {
	switch {
	case a.start < b.start:
		return -1
	case a.start > b.start:
		return 1
	default:
		return 0
	}
}

// Block_t indexes an address space's entries and free regions, the Go
// analogue of memory.c's block_t with its paired atree/stree.
type Block_t struct {
	entries *tree.Tree_t[*Entry_t]
	free    *tree.Tree_t[*Free_t]
}

func newBlock() *Block_t {
	return &Block_t{entries: tree.New(cmpEntry), free: tree.New(cmpFree)}
}

// Vm_t is one process's address space: a block of entries/free regions
// plus the arch-specific page table backing it.
type Vm_t struct {
	mu     sync.Mutex
	block  *Block_t
	arch   archops.Iface
	as     interface{}
	pager  mem.Page_i
	zone   mem.Zone
	domain int
}

// New creates an empty address space backed by arch and drawing pages
// from pager's zone/domain.
func New(arch archops.Iface, pager mem.Page_i, zone mem.Zone, domain int) (*Vm_t, defs.Err_t) {
	as, err := arch.New()
	if err != 0 {
		return nil, err
	}
	return &Vm_t{block: newBlock(), arch: arch, as: as, pager: pager, zone: zone, domain: domain}, 0
}

// AddBlock donates [start, end) as available virtual address space,
// merging it with any adjacent free region. Mirrors memory.c's
// _block_add.
func (vm *Vm_t) AddBlock(start, end uintptr) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.insertFree(start, end)
}

func (vm *Vm_t) insertFree(start, end uintptr) {
	var merge []*Free_t
	vm.block.free.Walk(func(f *Free_t) bool {
		if f.end == start || f.start == end {
			merge = append(merge, f)
		}
		return true
	})
	for _, f := range merge {
		vm.block.free.Delete(f)
		if f.start < start {
			start = f.start
		}
		if f.end > end {
			end = f.end
		}
	}
	vm.block.free.Add(&Free_t{start: start, end: end}, false)
}

// findFit returns the first free region (address order) at least nbytes
// long. This is first-fit over the address-ordered free tree, where
// memory.c's _search_fit_size picks the smallest sufficient region
// from its size-ordered tree.
func (vm *Vm_t) findFit(nbytes uintptr) (*Free_t, bool) {
	var found *Free_t
	vm.block.free.Walk(func(f *Free_t) bool {
		if f.end-f.start >= nbytes {
			found = f
			return false
		}
		return true
	})
	return found, found != nil
}

// findFitAt returns the free region containing [start, start+nbytes),
// if one exists.
func (vm *Vm_t) findFitAt(start uintptr, nbytes uintptr) (*Free_t, bool) {
	end := start + nbytes
	var found *Free_t
	vm.block.free.Walk(func(f *Free_t) bool {
		if f.start <= start && f.end >= end {
			found = f
			return false
		}
		return true
	})
	return found, found != nil
}

// carveFree removes [start, start+size) from f, re-inserting whatever
// remains on either side. Mirrors _free_delete followed by a partial
// _free_add.
func (vm *Vm_t) carveFree(f *Free_t, start, size uintptr) {
	vm.block.free.Delete(f)
	if f.start < start {
		vm.block.free.Add(&Free_t{start: f.start, end: start}, false)
	}
	end := start + size
	if end < f.end {
		vm.block.free.Add(&Free_t{start: end, end: f.end}, false)
	}
}

func (vm *Vm_t) findEntry(virt uintptr) (*Entry_t, bool) {
	var found *Entry_t
	vm.block.entries.Walk(func(e *Entry_t) bool {
		if e.start <= virt && virt < e.end {
			found = e
			return false
		}
		return true
	})
	return found, found != nil
}

// mapAnon backs [start, start+nr*PGSIZE) with a fresh anonymous
// object, eagerly populating and mapping every page.
func (vm *Vm_t) mapAnon(start uintptr, nr int, perms mem.Pa_t) defs.Err_t {
	obj := newObject(vm.pager, vm.zone, vm.domain)
	for i := 0; i < nr; i++ {
		pa, err := obj.page(i)
		if err != 0 {
			return err
		}
		va := start + uintptr(i)*uintptr(PGSIZE)
		if err := vm.arch.Map(vm.as, va, pa, perms); err != 0 {
			return err
		}
	}
	e := &Entry_t{start: start, end: start + uintptr(nr)*uintptr(PGSIZE), object: obj, perms: perms}
	vm.block.entries.Add(e, false)
	return 0
}

/// AllocPages allocates nr anonymous pages anywhere in the address
/// space's free regions, returning the base virtual address.
func (vm *Vm_t) AllocPages(nr int, perms mem.Pa_t) (uintptr, defs.Err_t) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if nr <= 0 {
		return 0, defs.Invalid
	}
	size := uintptr(nr) * uintptr(PGSIZE)
	f, ok := vm.findFit(size)
	if !ok {
		return 0, defs.OutOfMemory
	}
	start := f.start
	vm.carveFree(f, start, size)
	if err := vm.mapAnon(start, nr, perms); err != 0 {
		vm.insertFree(start, start+size)
		return 0, err
	}
	return start, 0
}

/// AllocPagesAt allocates nr anonymous pages at the fixed address
/// virt, failing if that range is not entirely free.
func (vm *Vm_t) AllocPagesAt(virt uintptr, nr int, perms mem.Pa_t) defs.Err_t {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if nr <= 0 || mem.Pa_t(virt)&PGOFFSET != 0 {
		return defs.Invalid
	}
	size := uintptr(nr) * uintptr(PGSIZE)
	f, ok := vm.findFitAt(virt, size)
	if !ok {
		return defs.Invalid
	}
	vm.carveFree(f, virt, size)
	if err := vm.mapAnon(virt, nr, perms); err != 0 {
		vm.insertFree(virt, virt+size)
		return err
	}
	return 0
}

// wireChunkOrder returns the largest buddy order, capped at
// mem.SuperpageOrder, such that a block of that order starting at va/pa
// fits within remaining pages and both addresses are order-aligned.
// Wire calls this once per chunk so a fully superpage-aligned range
// (spec.md §8 scenario 2's 2 MiB wire) collapses to a single order-9
// record instead of 512 individual order-0 ones, the same alignment
// search a buddy allocator does when coalescing a freed range.
func wireChunkOrder(va uintptr, pa mem.Pa_t, remaining int) int {
	order := mem.SuperpageOrder
	for order > 0 {
		span := uintptr(1) << uint(order)
		if remaining >= 1<<order &&
			(va>>PGSHIFT)%span == 0 &&
			(pa>>PGSHIFT)%mem.Pa_t(span) == 0 {
			break
		}
		order--
	}
	return order
}

/// Wire installs nr pages of physical memory starting at phys at the
/// fixed virtual address virt, backed by a wired Object_t recording one
/// WiredPage_t per physically contiguous, order-aligned chunk — used
/// for kernel mappings that must survive Fork by direct sharing rather
/// than copy-on-write. Mirrors memory.c's _wire.
func (vm *Vm_t) Wire(virt uintptr, nr int, phys mem.Pa_t, perms mem.Pa_t) defs.Err_t {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if nr <= 0 || mem.Pa_t(virt)&PGOFFSET != 0 {
		return defs.Invalid
	}
	size := uintptr(nr) * uintptr(PGSIZE)
	f, ok := vm.findFitAt(virt, size)
	if !ok {
		return defs.Invalid
	}
	vm.carveFree(f, virt, size)

	mapped := 0
	rollback := func() {
		for i := 0; i < mapped; i++ {
			va := virt + uintptr(i)*uintptr(PGSIZE)
			if pa, uerr := vm.arch.Unmap(vm.as, va); uerr == 0 {
				vm.pager.Refdown(pa, vm.zone, vm.domain)
			}
		}
		vm.insertFree(virt, virt+size)
	}

	obj := &Object_t{kind: objWired, pager: vm.pager, zone: vm.zone, domain: vm.domain}
	remaining := nr
	for remaining > 0 {
		off := nr - remaining
		va := virt + uintptr(off)*uintptr(PGSIZE)
		pa := phys + mem.Pa_t(off*PGSIZE)
		order := wireChunkOrder(va, pa, remaining)
		chunk := 1 << order
		for i := 0; i < chunk; i++ {
			pva := va + uintptr(i)*uintptr(PGSIZE)
			ppa := pa + mem.Pa_t(i*PGSIZE)
			vm.pager.Refup(ppa)
			if err := vm.arch.Map(vm.as, pva, ppa, perms); err != 0 {
				vm.pager.Refdown(ppa, vm.zone, vm.domain)
				rollback()
				return err
			}
			mapped++
		}
		obj.wired = append(obj.wired, WiredPage_t{Pa: pa, Order: order})
		remaining -= chunk
	}

	vm.block.entries.Add(&Entry_t{start: virt, end: virt + size, object: obj, perms: perms, flags: entryWired}, false)
	return 0
}

/// FreePages unmaps and releases the entry beginning exactly at virt.
func (vm *Vm_t) FreePages(virt uintptr) defs.Err_t {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	e, ok := vm.block.entries.Search(&Entry_t{start: virt})
	if !ok {
		return defs.NotFound
	}
	nr := int((e.end - e.start) / uintptr(PGSIZE))
	for i := 0; i < nr; i++ {
		va := e.start + uintptr(i)*uintptr(PGSIZE)
		pa, err := vm.arch.Unmap(vm.as, va)
		if err != 0 {
			continue
		}
		vm.pager.Refdown(pa, vm.zone, vm.domain)
	}
	vm.block.entries.Delete(e)
	vm.insertFree(e.start, e.end)
	return 0
}

/// Fork creates a child address space on the same arch backend,
/// sharing this one's wired mappings directly and its anonymous
/// mappings copy-on-write, via shadow objects. Mirrors
/// virt_memory_fork/_entry_fork/_block_fork.
func (vm *Vm_t) Fork() (*Vm_t, defs.Err_t) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	child, err := New(vm.arch, vm.pager, vm.zone, vm.domain)
	if err != 0 {
		return nil, err
	}

	var ferr defs.Err_t
	vm.block.entries.Walk(func(e *Entry_t) bool {
		if e.flags&entryWired != 0 {
			if rerr := vm.arch.Refer(child.as, vm.as, e.start, e.end-e.start); rerr != 0 {
				ferr = rerr
				return false
			}
			child.block.entries.Add(&Entry_t{start: e.start, end: e.end, object: e.object,
				perms: e.perms, flags: e.flags}, false)
			return true
		}

		shadow := &Object_t{kind: objShadow, pages: make(map[int]mem.Pa_t),
			shadow: e.object, pager: vm.pager, zone: vm.zone, domain: vm.domain}
		e.object = shadow
		e.flags |= entryCOW
		child.block.entries.Add(&Entry_t{start: e.start, end: e.end, object: shadow,
			perms: e.perms, flags: e.flags}, false)

		nr := int((e.end - e.start) / uintptr(PGSIZE))
		for i := 0; i < nr; i++ {
			va := e.start + uintptr(i)*uintptr(PGSIZE)
			if rerr := vm.arch.Copy(child.as, vm.as, va); rerr != 0 && rerr != defs.NotFound {
				ferr = rerr
				return false
			}
		}
		return true
	})
	if ferr != 0 {
		return nil, ferr
	}

	vm.block.free.Walk(func(f *Free_t) bool {
		child.insertFree(f.start, f.end)
		return true
	})
	return child, 0
}

/// Fault resolves a write fault at virt against a copy-on-write entry,
/// giving the faulting address space a private page. It returns
/// defs.NotFound if virt is not inside a copy-on-write mapping.
func (vm *Vm_t) Fault(virt uintptr) defs.Err_t {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	e, ok := vm.findEntry(virt)
	if !ok || e.object == nil || e.flags&entryCOW == 0 {
		return defs.NotFound
	}
	idx := int((virt - e.start) / uintptr(PGSIZE))
	pa, err := e.object.cow(idx)
	if err != 0 {
		return err
	}
	pg := uintptr(util.Rounddown(int(virt), PGSIZE))
	if _, uerr := vm.arch.Unmap(vm.as, pg); uerr != 0 && uerr != defs.NotFound {
		return uerr
	}
	return vm.arch.Map(vm.as, pg, pa, e.perms)
}

// WiredOrders returns the buddy order of each WiredPage_t record making
// up the wired entry starting exactly at virt, in ascending
// virtual-address order, or false if no wired entry starts there.
func (vm *Vm_t) WiredOrders(virt uintptr) ([]int, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	e, ok := vm.block.entries.Search(&Entry_t{start: virt})
	if !ok || e.flags&entryWired == 0 {
		return nil, false
	}
	orders := make([]int, len(e.object.wired))
	for i, w := range e.object.wired {
		orders[i] = w.Order
	}
	return orders, true
}

/// Lookup returns the physical address virt is mapped to, or an error
/// when virt has no mapping.
func (vm *Vm_t) Lookup(virt uintptr) (mem.Pa_t, defs.Err_t) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.arch.V2p(vm.as, virt)
}

/// Free releases every mapping in this address space. The underlying
/// arch handle itself is left for the caller to discard.
func (vm *Vm_t) Free() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.block.entries.Walk(func(e *Entry_t) bool {
		nr := int((e.end - e.start) / uintptr(PGSIZE))
		for i := 0; i < nr; i++ {
			va := e.start + uintptr(i)*uintptr(PGSIZE)
			if pa, err := vm.arch.Unmap(vm.as, va); err == 0 {
				vm.pager.Refdown(pa, vm.zone, vm.domain)
			}
		}
		return true
	})
}
