// Package scall implements the system-call dispatch table (spec.md
// §4.7): exit, fork, read/write, nanosleep, initexec, and the
// driver-only surface (mmap/munmap/register-device/port I/O). Named
// scall rather than syscall since nothing here is a real trap
// handler — the scheduler calls these directly instead of trapping
// across a ring-0/ring-3 boundary.
//
// Grounded on original_source/src/kernel/syscall.c and sysdriver.c.
// sys_read/sys_write in the original resolve the fd and then
// immediately `return -1` without touching it; a system with a
// working devfs and no functioning read/write path can do nothing, so
// Read and Write here actually delegate to fd.Fd_t.Fops as the rest of
// the syscall surface assumes. execve, open, mmap, mount, and fstat
// stay stubbed exactly as syscall.c leaves them.
package scall

import (
	"time"

	"defs"
	"devfs"
	"fdops"
	"initramfs"
	"mem"
	"proc"
	"stat"
	"timer"
	"vm"
)

// Nr indexes the dispatch table, mirroring syscall.c's bare integers
// (there is no shared enum header in the retrieval pack, so the order
// here is this repository's own).
type Nr int

const (
	SysExit Nr = iota
	SysFork
	SysRead
	SysWrite
	SysOpen
	SysExecve
	SysMmap
	SysNanosleep
	SysInitexec
	SysMount
	SysFstat
	SysDriver
)

// Sys_t holds every module a handler needs to reach: the process
// table, timer wheel, initramfs image, device registry, and the
// simulated port-I/O space sysdriver.c's _io reads and writes.
type Sys_t struct {
	Procs     *proc.Table_t
	Timer     *timer.Timer_t
	Initramfs *initramfs.Fs_t
	Devfs     *devfs.Devfs_t
	Ports     *Ports_t
}

// New assembles a dispatch context over the given kernel modules.
func New(procs *proc.Table_t, tm *timer.Timer_t, irfs *initramfs.Fs_t, dfs *devfs.Devfs_t) *Sys_t {
	return &Sys_t{Procs: procs, Timer: tm, Initramfs: irfs, Devfs: dfs, Ports: NewPorts()}
}

// Exit marks p Terminated with status recorded, the task's last
// transition before the scheduler reaps it. Mirrors sys_exit's
// infinite-halt tail with the halt itself left to the scheduler.
func (s *Sys_t) Exit(p *proc.Proc_t, status int) defs.Err_t {
	p.SetExit(status)
	p.Task.State = proc.Terminated
	return 0
}

// Fork creates a CoW child of p. Mirrors sys_fork_c: the parent's view
// of the call is the child's pid, returned here; the child's own view
// (a zero return) is a property of how the scheduler first dispatches
// the new Created task, not of this call.
func (s *Sys_t) Fork(p *proc.Proc_t) (*proc.Proc_t, defs.Err_t) {
	return s.Procs.Fork(p)
}

// Read delegates to the descriptor's owning module. sys_read in the
// original resolves the fd and stubs to -1; this is the Open Question
// resolution that makes read actually move bytes.
func (s *Sys_t) Read(p *proc.Proc_t, fdn int, dst fdops.Userio_i) (int, defs.Err_t) {
	f, err := p.GetFd(fdn)
	if err != 0 {
		return -1, err
	}
	return f.Fops.Read(dst)
}

// Write delegates to the descriptor's owning module, the write-side
// counterpart of Read.
func (s *Sys_t) Write(p *proc.Proc_t, fdn int, src fdops.Userio_i) (int, defs.Err_t) {
	f, err := p.GetFd(fdn)
	if err != 0 {
		return -1, err
	}
	return f.Fops.Write(src)
}

// Open is reserved; sys_open scans path for its first '/' and then
// always stubs to failure regardless of what it found.
func (s *Sys_t) Open(p *proc.Proc_t, path string, oflag int) (int, defs.Err_t) {
	return -1, defs.Unsupported
}

// Execve is reserved; sys_execve opens path and then stubs to
// failure. initexec is the working exec path.
func (s *Sys_t) Execve(p *proc.Proc_t, path string, argv, envp []string) (int, defs.Err_t) {
	return -1, defs.Unsupported
}

// Mmap is reserved; sys_mmap always returns -1.
func (s *Sys_t) Mmap(p *proc.Proc_t, addr uintptr, length, prot, flags, fdn int, off int64) (uintptr, defs.Err_t) {
	return 0, defs.Unsupported
}

// Mount is reserved; sys_mount always returns -1.
func (s *Sys_t) Mount(p *proc.Proc_t, source, target, fstype string, flags int) defs.Err_t {
	return defs.Unsupported
}

// Fstat is reserved; sys_fstat always returns -1.
func (s *Sys_t) Fstat(p *proc.Proc_t, fdn int, st *stat.Stat_t) defs.Err_t {
	return defs.Unsupported
}

// Nanosleep computes the target jiffy for req and blocks p's task,
// mirroring sys_nanosleep's fire computation (the actual insertion is
// timer.Timer_t.Sleep, already grounded on this same function). It
// returns the target jiffy for a later NanosleepWake call.
func (s *Sys_t) Nanosleep(p *proc.Proc_t, req time.Duration) int64 {
	return s.Timer.Sleep(p, req)
}

// NanosleepWake is invoked when p's task is next dispatched after a
// Nanosleep, whether by a natural timer.Timer_t.Tick wake or an early
// signal. On a signaled wake it clears the flag and reports the
// remaining duration with ok false, mirroring sys_nanosleep's rmtp
// computation on interruption; on a natural wake it reports ok true.
func (s *Sys_t) NanosleepWake(p *proc.Proc_t, fire int64) (rem time.Duration, ok bool) {
	if p.Task.Signaled {
		p.Task.Signaled = false
		return s.Timer.Remaining(fire), false
	}
	return 0, true
}

// Initexec locates path in the initramfs image, replaces p's program
// image with its contents at codeAddr, and marks the task Ready to
// re-enter user mode. Mirrors sys_initexec's 128-entry linear scan
// (initramfs.Fs_t.Lookup/ReadFile), task_init, and the kmemcpy of file
// bytes into the fixed program address.
func (s *Sys_t) Initexec(p *proc.Proc_t, path string, codeAddr uintptr) defs.Err_t {
	data, err := s.Initramfs.ReadFile(path)
	if err != 0 {
		return err
	}
	npages := (len(data) + vm.PGSIZE - 1) / vm.PGSIZE
	if npages == 0 {
		npages = 1
	}
	if err := p.Vm.AllocPagesAt(codeAddr, npages, mem.PTE_P|mem.PTE_W|mem.PTE_U); err != 0 {
		return err
	}
	if err := p.Vm.K2user(data, codeAddr); err != 0 {
		return err
	}
	p.CodeAddr = codeAddr
	p.CodeSize = uintptr(len(data))
	p.Task.State = proc.Ready
	return 0
}

// DriverOp selects one of sysdriver.c's sys_driver sub-operations.
type DriverOp int

const (
	DriverMmap DriverOp = iota
	DriverMunmap
	DriverRegDev
	DriverIn8
	DriverIn16
	DriverIn32
	DriverOut8
	DriverOut16
	DriverOut32
)

// Driver dispatches one driver-only operation, mirroring sys_driver's
// switch on nr. Mmap wires npages of phys at addr into p's address
// space (sysdriver.c's _mmap via virt_memory_wire2, here vm.Vm_t.Wire
// since this host simulation has no page-table walker of its own to
// resolve an arbitrary physical range); munmap stays a stub exactly as
// _munmap does; RegDev registers name in the device registry
// (_register_device's devfs_register); the in/out ops read or write
// the simulated port space.
func (s *Sys_t) Driver(p *proc.Proc_t, op DriverOp, a DriverArgs_t) (uint32, defs.Err_t) {
	switch op {
	case DriverMmap:
		if a.Addr&uintptr(vm.PGOFFSET) != 0 || a.Len%vm.PGSIZE != 0 {
			return 0, defs.Invalid
		}
		npg := a.Len / vm.PGSIZE
		if err := p.Vm.Wire(a.Addr, npg, mem.Pa_t(a.Phys), mem.PTE_P|mem.PTE_W); err != 0 {
			return 0, err
		}
		return 0, 0
	case DriverMunmap:
		return 0, defs.Unsupported
	case DriverRegDev:
		if _, err := s.Devfs.Register(a.Name, a.Kind, p); err != 0 {
			return 0, err
		}
		return 0, 0
	case DriverIn8:
		return uint32(s.Ports.In8(a.Port)), 0
	case DriverIn16:
		return uint32(s.Ports.In16(a.Port)), 0
	case DriverIn32:
		return s.Ports.In32(a.Port), 0
	case DriverOut8:
		s.Ports.Out8(a.Port, uint8(a.Data))
		return 0, 0
	case DriverOut16:
		s.Ports.Out16(a.Port, uint16(a.Data))
		return 0, 0
	case DriverOut32:
		s.Ports.Out32(a.Port, a.Data)
		return 0, 0
	default:
		return 0, defs.Invalid
	}
}

// DriverArgs_t is the uniform argument slot for Driver, mirroring
// sys_driver's single `void *args` reinterpreted per nr by each
// sysdriver.c handler (sysdriver_mmio_t, sysdriver_io_t,
// sysdriver_devfs_t).
type DriverArgs_t struct {
	Addr uintptr       // DriverMmap: destination virtual address
	Phys uintptr       // DriverMmap: source physical address
	Len  int           // DriverMmap: byte length, page-aligned
	Name string        // DriverRegDev: device name
	Kind devfs.DevKind // DriverRegDev: char or block
	Port uint16        // in/out ops: I/O port number
	Data uint32        // out ops: value to write
}

// Handler_t is one dispatch-table row: a uniform entry point taking
// the generic Args_t slot, the shape every concrete handler above
// narrows on entry.
type Handler_t func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t)

// Args_t is the uniform argument slot passed through Table_t.Dispatch,
// the Go analogue of sysdriver.c's `void *args`: each handler reads
// only the fields its own operation needs.
type Args_t struct {
	Status     int
	Fd         int
	Buf        fdops.Userio_i
	Path       string
	Argv, Envp []string
	Oflag      int
	Addr       uintptr
	Len        int
	Prot       int
	Flags      int
	Off        int64
	Req        time.Duration
	CodeAddr   uintptr
	DriverOp   DriverOp
	DriverArgs DriverArgs_t
}

// Table_t is the syscall dispatch table proper: a small integer index
// to a handler, exactly as spec.md §4.7 describes. Each handler below
// adapts one of Sys_t's typed methods to the uniform Handler_t shape.
type Table_t struct {
	handlers map[Nr]Handler_t
}

// NewTable builds the fixed dispatch table over s.
func NewTable(s *Sys_t) *Table_t {
	t := &Table_t{handlers: make(map[Nr]Handler_t)}
	t.handlers[SysExit] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		return 0, s.Exit(p, a.Status)
	}
	t.handlers[SysFork] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		child, err := s.Fork(p)
		if err != 0 {
			return -1, err
		}
		return int(child.Pid), 0
	}
	t.handlers[SysRead] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		return s.Read(p, a.Fd, a.Buf)
	}
	t.handlers[SysWrite] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		return s.Write(p, a.Fd, a.Buf)
	}
	t.handlers[SysOpen] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		return s.Open(p, a.Path, a.Oflag)
	}
	t.handlers[SysExecve] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		return s.Execve(p, a.Path, a.Argv, a.Envp)
	}
	t.handlers[SysMmap] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		addr, err := s.Mmap(p, a.Addr, a.Len, a.Prot, a.Flags, a.Fd, a.Off)
		return int(addr), err
	}
	t.handlers[SysNanosleep] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		return int(s.Nanosleep(p, a.Req)), 0
	}
	t.handlers[SysInitexec] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		return 0, s.Initexec(p, a.Path, a.CodeAddr)
	}
	t.handlers[SysMount] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		return 0, s.Mount(p, a.Path, "", "", a.Flags)
	}
	t.handlers[SysFstat] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		return 0, s.Fstat(p, a.Fd, &stat.Stat_t{})
	}
	t.handlers[SysDriver] = func(s *Sys_t, p *proc.Proc_t, a Args_t) (int, defs.Err_t) {
		ret, err := s.Driver(p, a.DriverOp, a.DriverArgs)
		return int(ret), err
	}
	return t
}

// Dispatch runs the handler registered at nr, or fails with
// defs.Invalid for an unregistered index — the dispatch-table
// equivalent of sys_driver's `default: return -1`.
func (t *Table_t) Dispatch(s *Sys_t, p *proc.Proc_t, nr Nr, a Args_t) (int, defs.Err_t) {
	h, ok := t.handlers[nr]
	if !ok {
		return -1, defs.Invalid
	}
	return h(s, p, a)
}
