// Package proc implements task and process records, the pid/tid
// tables, and the fork/exit lifecycle (spec.md §3/§4.5).
//
// Grounded on original_source/src/kernel/task.h (task_t's arch/proc/
// kstack/id/state/next/credit/signaled fields, and the
// TASK_CREATED/READY/RUNNING/BLOCKED/TERMINATED state enum) and
// proc.h (proc_t's pid/name/cwd/parent/task/fds/uid/gid/vmem/code/
// exit_status fields, PROC_STACK_SIZE, FD_MAX). Accounting is carried
// from Biscuit's accnt package (already generic, kept unchanged) and
// exposed per spec.md's SUPPLEMENTED FEATURES through /dev/stat.
package proc

import (
	"sync"

	"accnt"
	"defs"
	"fd"
	"limits"
	"vm"
)

/// State is a task's position in its lifecycle.
type State int

const (
	Created    State = iota /// allocated but never scheduled
	Ready                   /// runnable, waiting for the scheduler
	Running                 /// currently executing on a CPU
	Blocked                 /// waiting on a file descriptor or timer
	Terminated              /// exited; resources pending reclaim
)

/// KstackSize is the size in bytes of a task's kernel stack, mirroring
/// original_source's PROC_STACK_SIZE.
const KstackSize = 0x10000

/// FdMax is the number of file-descriptor table slots per process,
/// mirroring original_source's FD_MAX.
const FdMax = 1024

/// Task_t is the schedulable unit: one thread of control within a
/// process.
type Task_t struct {
	Arch     interface{} /// architecture-private execution context (registers, arch frame)
	Proc     *Proc_t     /// owning process
	Kstack   []byte      /// kernel stack
	Id       defs.Tid_t  /// task id, unique among live tasks
	State    State
	Next     *Task_t /// intrusive run-queue link
	Credit   int     /// remaining scheduling quantum
	Signaled bool    /// a pending signal observed on the next blocking wait
	Accnt    accnt.Accnt_t
}

/// Proc_t is a process: an address space, a file-descriptor table,
/// and (today) exactly one task.
type Proc_t struct {
	mu sync.Mutex

	Pid    defs.Pid_t
	Name   string
	Cwd    *fd.Cwd_t
	Parent *Proc_t
	Task   *Task_t

	Fds [FdMax]*fd.Fd_t

	Uid, Gid int

	Vm *vm.Vm_t

	CodeAddr uintptr
	CodeSize uintptr

	ExitStatus int
	exited     bool
}

/// AddFd installs f in the first free descriptor slot and returns its
/// index, or defs.OutOfMemory if the table is full.
func (p *Proc_t) AddFd(f *fd.Fd_t) (int, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.Fds {
		if p.Fds[i] == nil {
			p.Fds[i] = f
			return i, 0
		}
	}
	return 0, defs.OutOfMemory
}

/// GetFd returns the descriptor at index i, if any.
func (p *Proc_t) GetFd(i int) (*fd.Fd_t, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.Fds) || p.Fds[i] == nil {
		return nil, defs.NotFound
	}
	return p.Fds[i], 0
}

/// CloseFd clears descriptor slot i, returning the descriptor that was
/// there so the caller can drop its final reference.
func (p *Proc_t) CloseFd(i int) (*fd.Fd_t, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.Fds) || p.Fds[i] == nil {
		return nil, defs.NotFound
	}
	f := p.Fds[i]
	p.Fds[i] = nil
	return f, 0
}

/// SetExit records the process's exit status and marks it Terminated.
/// Mirrors proc.h's exit_status field.
func (p *Proc_t) SetExit(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExitStatus = status
	p.exited = true
}

/// Exited reports whether the process has recorded an exit status.
func (p *Proc_t) Exited() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ExitStatus, p.exited
}

/// Table_t is the system-wide pid/tid table.
type Table_t struct {
	mu      sync.Mutex
	procs   map[defs.Pid_t]*Proc_t
	nextPid defs.Pid_t
	nextTid defs.Tid_t
}

/// NewTable creates an empty process table.
func NewTable() *Table_t {
	return &Table_t{procs: make(map[defs.Pid_t]*Proc_t), nextPid: 1, nextTid: 1}
}

func (t *Table_t) allocIds() (defs.Pid_t, defs.Tid_t) {
	pid := t.nextPid
	t.nextPid++
	tid := t.nextTid
	t.nextTid++
	return pid, tid
}

/// New creates a fresh process with its own address space and a
/// single Created task, and registers it in the table.
func (t *Table_t) New(name string, vmm *vm.Vm_t, parent *Proc_t) *Proc_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	pid, tid := t.allocIds()
	p := &Proc_t{Pid: pid, Name: name, Parent: parent, Vm: vmm}
	p.Task = &Task_t{Proc: p, Id: tid, State: Created, Credit: 10,
		Kstack: make([]byte, KstackSize)}
	t.procs[pid] = p
	return p
}

/// Lookup returns the process with the given pid, if it is still
/// registered.
func (t *Table_t) Lookup(pid defs.Pid_t) (*Proc_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	return p, ok
}

/// All returns every registered process, for the scheduler's periodic
/// run-queue refill (original_source's sched_schedule scans
/// g_kvar->procs the same way).
func (t *Table_t) All() []*Proc_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]*Proc_t, 0, len(t.procs))
	for _, p := range t.procs {
		all = append(all, p)
	}
	return all
}

/// Remove unregisters pid from the table, e.g. once its parent has
/// reaped its exit status.
func (t *Table_t) Remove(pid defs.Pid_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, pid)
}

/// Fork creates a child of parent with a copy-on-write address space
/// (vm.Vm_t.Fork) and a fresh task, inheriting name/uid/gid/cwd.
/// Mirrors proc.h's proc_fork, including its limits.Syslimit.Sysprocs
/// check (proc_fork's "too many processes" early return) — New, used
/// only for the initial boot-time processes, is exempt the same way
/// proc0's own creation predates any limit check.
func (t *Table_t) Fork(parent *Proc_t) (*Proc_t, defs.Err_t) {
	t.mu.Lock()
	n := len(t.procs)
	t.mu.Unlock()
	if n >= limits.Syslimit.Sysprocs {
		limits.Lhits++
		return nil, defs.Busy
	}

	childVm, err := parent.Vm.Fork()
	if err != 0 {
		return nil, err
	}
	t.mu.Lock()
	pid, tid := t.allocIds()
	t.mu.Unlock()

	child := &Proc_t{Pid: pid, Name: parent.Name, Parent: parent, Vm: childVm,
		Uid: parent.Uid, Gid: parent.Gid, Cwd: parent.Cwd}
	child.Task = &Task_t{Proc: child, Id: tid, State: Created, Credit: 10,
		Kstack: make([]byte, KstackSize)}

	for i, f := range parent.Fds {
		if f == nil {
			continue
		}
		nf, ferr := fd.Copyfd(f)
		if ferr != 0 {
			continue
		}
		child.Fds[i] = nf
	}

	t.mu.Lock()
	t.procs[pid] = child
	t.mu.Unlock()
	return child, 0
}
