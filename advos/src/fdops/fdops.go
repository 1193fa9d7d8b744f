// Package fdops defines the interface every open file description
// implements, and the Userio_i abstraction a caller uses to move bytes
// into or out of one without caring whether the other end is a user
// buffer, an iovec, or a plain kernel slice.
//
// Biscuit's fd/fd.go imports a package named fdops by name only — its
// source was not part of the retrieval pack — so this is built fresh,
// grounded on the call shape biscuit's other packages use against it
// (circbuf.Copyin/Copyout take a fdops.Userio_i; ufs's console driver
// implements Cons_read/Cons_write against one) and on
// original_source/src/kernel/vfs.h's object-interpretation operations
// (open/close/ioctl/poll), narrowed to what a single descriptor needs
// rather than a whole vnode.
package fdops

import "defs"

// Userio_i is satisfied by anything that can serve as one side of a
// Read/Write: a user-memory buffer, a gathered iovec, or a kernel
// slice dressed up to look like one. vm.Userbuf_t, vm.Useriovec_t, and
// vm.Fakeubuf_t all implement it.
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

// Ready_t is a bitmask of poll/select readiness conditions.
type Ready_t int

const (
	R_READ  Ready_t = 1 << iota /// readable without blocking
	R_WRITE                     /// writable without blocking
	R_ERROR                     /// an error condition is pending
	R_HUP                       /// the peer has closed its end
)

// Pollmsg_t describes one descriptor's interest in a poll/select call:
// the events the caller cares about, filled in with the events that
// are actually ready.
type Pollmsg_t struct {
	Events Ready_t
}

// Fdops_i is the operation set every open file description (device,
// pipe, socket, or plain file) must implement. fd.Fd_t embeds one.
type Fdops_i interface {
	/// Close releases this description's reference to its backing
	/// object, running any teardown once the last reference is gone.
	Close() defs.Err_t

	/// Read copies into dst starting at the description's current
	/// offset, advancing it by however much was read.
	Read(dst Userio_i) (int, defs.Err_t)

	/// Write copies from src at the description's current offset,
	/// advancing it by however much was written.
	Write(src Userio_i) (int, defs.Err_t)

	/// Pread copies into dst starting at offset, without touching the
	/// description's current offset.
	Pread(dst Userio_i, offset int) (int, defs.Err_t)

	/// Pwrite copies from src at offset, without touching the
	/// description's current offset.
	Pwrite(src Userio_i, offset int) (int, defs.Err_t)

	/// Reopen increments the backing object's reference count, used
	/// when a descriptor is duplicated (dup2, fork).
	Reopen() defs.Err_t

	/// Poll reports which of pm's requested events are currently
	/// ready.
	Poll(pm Pollmsg_t) (Ready_t, defs.Err_t)
}
