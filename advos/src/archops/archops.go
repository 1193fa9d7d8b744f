// Package archops defines the boundary between the VMM and the CPU's
// MMU/page tables, and provides simarch, a software implementation of
// that boundary good enough to exercise the VMM end to end without a
// real x86_64 page-table walker.
//
// Grounded on drpnd/advos's memory_arch_interfaces_t (map/unmap/
// prepare/refer/new/ctxsw/copy/v2p) and on biscuit's vm/as.go PTE-flag
// vocabulary (PTE_P/PTE_W/PTE_U/PTE_COW). An arch backend is an
// external collaborator the spec explicitly allows substituting
// (it "need not be reimplemented identically").
package archops

import (
	"sync"

	"defs"
	"mem"
)

/// Iface is the architecture driver interface a virtual memory space
/// binds to. Every method is keyed by an opaque arch-private "as"
/// handle returned by New, mirroring memory_arch_interfaces_t's void*
/// first argument.
type Iface interface {
	/// New creates a fresh, empty address space and returns its handle.
	New() (interface{}, defs.Err_t)

	/// Map installs a single mapping from virtual addr to physical pa
	/// with the given PTE_* flags.
	Map(as interface{}, addr uintptr, pa mem.Pa_t, flags mem.Pa_t) defs.Err_t

	/// Unmap removes the mapping at addr, returning its physical
	/// address.
	Unmap(as interface{}, addr uintptr) (mem.Pa_t, defs.Err_t)

	/// Prepare ensures page-table structures exist to cover
	/// [addr, addr+size), without installing any leaf mappings.
	Prepare(as interface{}, addr uintptr, size uintptr) defs.Err_t

	/// Refer shares the kernel-half mappings of src into dst, covering
	/// [addr, addr+size) — used when a new address space is created
	/// and must see kernel memory.
	Refer(dst, src interface{}, addr uintptr, size uintptr) defs.Err_t

	/// Copy installs a copy-on-write mapping of src's pa for vaddr,
	/// marking both src's and dst's PTE as PTE_COW.
	Copy(dst, src interface{}, addr uintptr) defs.Err_t

	/// V2p resolves the physical address currently mapped at addr, or
	/// reports defs.NotFound.
	V2p(as interface{}, addr uintptr) (mem.Pa_t, defs.Err_t)

	/// Ctxsw switches the active address space to as, the software
	/// stand-in for loading cr3.
	Ctxsw(as interface{}) defs.Err_t
}

// pte holds one simulated page table entry.
type pte struct {
	pa    mem.Pa_t
	flags mem.Pa_t
}

// Simarch_t is a software page table keyed by address-space handle
// and virtual address. It satisfies Iface without touching real CPU
// state, so the VMM can be driven entirely in-process.
type Simarch_t struct {
	mu      sync.Mutex
	tables  map[*addrspace]map[uintptr]pte
	current *addrspace
}

type addrspace struct {
	id int
}

/// NewSimarch creates an empty software arch backend.
func NewSimarch() *Simarch_t {
	return &Simarch_t{tables: make(map[*addrspace]map[uintptr]pte)}
}

func (s *Simarch_t) New() (interface{}, defs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	as := &addrspace{id: len(s.tables)}
	s.tables[as] = make(map[uintptr]pte)
	return as, 0
}

func (s *Simarch_t) asOf(raw interface{}) *addrspace {
	as, ok := raw.(*addrspace)
	if !ok {
		panic("archops: not a simarch address space")
	}
	return as
}

func (s *Simarch_t) Map(raw interface{}, addr uintptr, pa mem.Pa_t, flags mem.Pa_t) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	as := s.asOf(raw)
	tbl, ok := s.tables[as]
	if !ok {
		return defs.NotFound
	}
	if _, exists := tbl[addr]; exists {
		return defs.Exists
	}
	tbl[addr] = pte{pa: pa, flags: flags | mem.PTE_P}
	return 0
}

func (s *Simarch_t) Unmap(raw interface{}, addr uintptr) (mem.Pa_t, defs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	as := s.asOf(raw)
	tbl, ok := s.tables[as]
	if !ok {
		return 0, defs.NotFound
	}
	e, ok := tbl[addr]
	if !ok {
		return 0, defs.NotFound
	}
	delete(tbl, addr)
	return e.pa, 0
}

func (s *Simarch_t) Prepare(raw interface{}, addr uintptr, size uintptr) defs.Err_t {
	// Simarch's tables are plain maps with no intermediate directory
	// levels to allocate, so preparing page-table structure ahead of
	// mapping is a no-op here; Map lazily creates the table on New.
	if _, ok := raw.(*addrspace); !ok {
		return defs.Invalid
	}
	return 0
}

func (s *Simarch_t) Refer(dstraw, srcraw interface{}, addr uintptr, size uintptr) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := s.asOf(dstraw)
	src := s.asOf(srcraw)
	dtbl, ok := s.tables[dst]
	if !ok {
		return defs.NotFound
	}
	stbl, ok := s.tables[src]
	if !ok {
		return defs.NotFound
	}
	end := addr + size
	for va, e := range stbl {
		if va >= addr && va < end {
			dtbl[va] = e
		}
	}
	return 0
}

func (s *Simarch_t) Copy(dstraw, srcraw interface{}, addr uintptr) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := s.asOf(dstraw)
	src := s.asOf(srcraw)
	stbl, ok := s.tables[src]
	if !ok {
		return defs.NotFound
	}
	e, ok := stbl[addr]
	if !ok {
		return defs.NotFound
	}
	e.flags &^= mem.PTE_W
	e.flags |= mem.PTE_COW
	stbl[addr] = e
	dtbl, ok := s.tables[dst]
	if !ok {
		return defs.NotFound
	}
	dtbl[addr] = e
	return 0
}

func (s *Simarch_t) V2p(raw interface{}, addr uintptr) (mem.Pa_t, defs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	as := s.asOf(raw)
	tbl, ok := s.tables[as]
	if !ok {
		return 0, defs.NotFound
	}
	e, ok := tbl[addr]
	if !ok {
		return 0, defs.NotFound
	}
	return e.pa, 0
}

func (s *Simarch_t) Ctxsw(raw interface{}) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.asOf(raw)
	return 0
}

var _ Iface = (*Simarch_t)(nil)
