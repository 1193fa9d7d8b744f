// Package fd implements the file descriptor record (spec.md §3): the
// head of the blocked-task list, a reference count, the filesystem
// module behind it, up to 96 bytes of filesystem-private storage, and
// a vnode pointer.
package fd

import "sync"
import "sync/atomic"

import "bpath"
import "defs"
import "fdops"
import "ustr"

/// File descriptor permission bits.
const (
	FD_READ    = 0x1 /// read permission
	FD_WRITE   = 0x2 /// write permission
	FD_CLOEXEC = 0x4 /// close-on-exec flag
)

/// PrivSize is the size of a descriptor's filesystem-private storage,
/// mirroring original_source/src/kernel/vfs.h's 96-byte
/// vfs_inode_storage_t union: concrete Fdops_i implementations
/// reinterpret it as their own state rather than the kernel
/// allocating it separately per filesystem type.
const PrivSize = 96

/// Fd_t represents an open file descriptor.
type Fd_t struct {
	mu sync.Mutex

	// fops is an interface implemented via a "pointer receiver", thus
	// fops is a reference, not a value
	Fops  fdops.Fdops_i /// descriptor operations, delegating to the owning filesystem module
	Perms int           /// permission bits

	refcnt int32 /// outstanding references (open fd table slots + in-flight syscalls)

	blocked []defs.Tid_t /// tasks waiting on this descriptor, head first

	/// Priv is filesystem-private storage a concrete Fdops_i
	/// implementation may reinterpret as its own fixed-size state,
	/// avoiding a second per-descriptor allocation.
	Priv [PrivSize]byte

	/// Vnode is the vnode this descriptor was opened against. Opaque
	/// here (vfs, not fd, owns the concrete type); a module type-asserts
	/// it back when dispatching.
	Vnode interface{}
}

/// Mkfd wraps ops as a descriptor with an initial reference count of 1.
func Mkfd(ops fdops.Fdops_i, perms int, vnode interface{}) *Fd_t {
	return &Fd_t{Fops: ops, Perms: perms, refcnt: 1, Vnode: vnode}
}

/// Ref increments the descriptor's reference count, e.g. when a new
/// fd table slot is made to point at it.
func (f *Fd_t) Ref() {
	atomic.AddInt32(&f.refcnt, 1)
}

/// Unref decrements the descriptor's reference count and reports
/// whether it reached zero, meaning the caller must call Fops.Close.
func (f *Fd_t) Unref() bool {
	return atomic.AddInt32(&f.refcnt, -1) == 0
}

/// Block appends tid to this descriptor's blocked-task list. The
/// caller is responsible for transitioning tid to Blocked and calling
/// the scheduler, per spec.md §4.5's blocking protocol.
func (f *Fd_t) Block(tid defs.Tid_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked = append(f.blocked, tid)
}

/// WakeAll detaches and returns every task blocked on this descriptor,
/// for the caller to transition back to Ready.
func (f *Fd_t) WakeAll() []defs.Tid_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	woke := f.blocked
	f.blocked = nil
	return woke
}

/// HasBlocked reports whether any task is currently waiting on this
/// descriptor.
func (f *Fd_t) HasBlocked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocked) > 0
}

/// Copyfd duplicates an open file descriptor into a new Fd_t with its
/// own reference count of 1, reopening the backing object; the
/// original's reference count is unchanged.
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	nfd.blocked = nil
	nfd.refcnt = 1
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

/// Close_panic closes the descriptor and panics on failure.
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}

/// Cwd_t tracks the current working directory for a process.
type Cwd_t struct {
	sync.Mutex // to serialize chdirs
	Fd         *Fd_t     /// current directory fd
	Path       ustr.Ustr /// canonical path
}

/// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	} else {
		full := append(cwd.Path, '/')
		return append(full, p...)
	}
}

/// Canonicalpath resolves path components relative to cwd.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	p1 := cwd.Fullpath(p)
	return bpath.Canonicalize(p1)
}

/// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(fd *Fd_t) *Cwd_t {
	c := &Cwd_t{}
	c.Fd = fd
	c.Path = ustr.MkUstrRoot()
	return c
}
