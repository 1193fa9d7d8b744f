package vm

import (
	"time"

	"defs"
	"mem"
	"ustr"
	"util"
)

// Userdmap8 maps the byte at virtual address va for the owning
// address space, faulting in a private copy first if va falls in a
// copy-on-write entry and the caller intends to write through it.
// Mirrors biscuit's Userdmap8_inner without needing a real pmap walk:
// the arch backend's V2p already resolves straight to a direct-mapped
// physical page.
func (vm *Vm_t) Userdmap8(va uintptr, write bool) ([]uint8, defs.Err_t) {
	if write {
		if err := vm.Fault(va); err != 0 && err != defs.NotFound {
			return nil, err
		}
	}
	pa, err := vm.Lookup(va)
	if err != 0 {
		return nil, defs.NotFound
	}
	off := int(mem.Pa_t(va) & mem.PGOFFSET)
	return vm.pager.Dmap8(pa)[off:], 0
}

/// Userreadn reads n (<= 8) bytes starting at user virtual address va.
func (vm *Vm_t) Userreadn(va uintptr, n int) (int, defs.Err_t) {
	if n > 8 {
		panic("vm: large n")
	}
	var ret int
	for i := 0; i < n; {
		src, err := vm.Userdmap8(va+uintptr(i), false)
		if err != 0 {
			return 0, err
		}
		l := util.Min(n-i, len(src))
		v := util.Readn(src, l, 0)
		ret |= v << uint(8*i)
		i += l
	}
	return ret, 0
}

/// Userwriten writes the low n bytes of val to user virtual address va.
func (vm *Vm_t) Userwriten(va uintptr, n, val int) defs.Err_t {
	if n > 8 {
		panic("vm: large n")
	}
	for i := 0; i < n; {
		dst, err := vm.Userdmap8(va+uintptr(i), true)
		if err != 0 {
			return err
		}
		l := util.Min(n-i, len(dst))
		util.Writen(dst, l, 0, val>>uint(8*i))
		i += l
	}
	return 0
}

/// Userstr copies a NUL-terminated string from user memory, up to
/// lenmax bytes.
func (vm *Vm_t) Userstr(va uintptr, lenmax int) (ustr.Ustr, defs.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	s := ustr.MkUstr()
	i := uintptr(0)
	for {
		chunk, err := vm.Userdmap8(va+i, false)
		if err != 0 {
			return s, err
		}
		for j, c := range chunk {
			if c == 0 {
				return append(s, chunk[:j]...), 0
			}
		}
		s = append(s, chunk...)
		i += uintptr(len(chunk))
		if len(s) >= lenmax {
			return nil, defs.Invalid
		}
	}
}

/// Usertimespec reads a {secs, nsecs} pair from user memory at va.
func (vm *Vm_t) Usertimespec(va uintptr) (time.Duration, time.Time, defs.Err_t) {
	var zt time.Time
	secs, err := vm.Userreadn(va, 8)
	if err != 0 {
		return 0, zt, err
	}
	nsecs, err := vm.Userreadn(va+8, 8)
	if err != 0 {
		return 0, zt, err
	}
	if secs < 0 || nsecs < 0 {
		return 0, zt, defs.Invalid
	}
	tot := time.Duration(secs)*time.Second + time.Duration(nsecs)*time.Nanosecond
	return tot, time.Unix(int64(secs), int64(nsecs)), 0
}

/// K2user copies src into user memory starting at uva.
func (vm *Vm_t) K2user(src []uint8, uva uintptr) defs.Err_t {
	cnt := 0
	for cnt != len(src) {
		dst, err := vm.Userdmap8(uva+uintptr(cnt), true)
		if err != 0 {
			return err
		}
		n := copy(dst, src[cnt:])
		cnt += n
	}
	return 0
}

/// User2k copies len(dst) bytes from user memory at uva into dst.
func (vm *Vm_t) User2k(dst []uint8, uva uintptr) defs.Err_t {
	cnt := 0
	for cnt != len(dst) {
		src, err := vm.Userdmap8(uva+uintptr(cnt), false)
		if err != 0 {
			return err
		}
		n := copy(dst[cnt:], src)
		cnt += n
	}
	return 0
}
