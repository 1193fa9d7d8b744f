package mem

import "unsafe"

// arena_t backs the simulated direct map: a flat byte slab, one
// PGSIZE page per tracked page frame, addressed by frame index. It
// stands in for biscuit's Dmap_init, which installs a real x86 direct
// map via patched-runtime hooks (runtime.Cpuid, runtime.Vtop,
// runtime.Pml4freeze) that do not exist outside biscuit's forked
// toolchain.
type arena_t struct {
	pages []Bytepg_t
	base  uintptr
}

func newArena(npages int) *arena_t {
	a := &arena_t{pages: make([]Bytepg_t, npages)}
	if npages > 0 {
		a.base = uintptr(unsafe.Pointer(&a.pages[0]))
	}
	return a
}

func (a *arena_t) page(idx uint32) *Bytepg_t {
	if int(idx) >= len(a.pages) {
		panic("mem: dmap index out of range")
	}
	return &a.pages[idx]
}

func (a *arena_t) idxOf(pg *Bytepg_t) uint32 {
	off := uintptr(unsafe.Pointer(pg)) - a.base
	idx := off / uintptr(PGSIZE)
	if idx >= uintptr(len(a.pages)) {
		panic("mem: pointer not in arena")
	}
	return uint32(idx)
}
