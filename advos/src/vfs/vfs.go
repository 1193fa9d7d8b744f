// Package vfs registers filesystem modules by type name, mounts one
// at a path, and composes a lookup across mount points one path
// component at a time (spec.md's VFS dispatch row). No on-disk
// filesystem is implemented here — that is out of scope — but the
// dispatch machinery a real one would plug into is.
//
// Grounded on original_source/src/kernel/vfs.c/.h: vfs_register's
// fixed VFS_MAXFS array of vfs_module_t becomes a string-keyed map;
// vfs_mount's scan-by-type becomes Vfs_t.Mount; vfs_open's single-
// delimiter path split (never actually composed across mounts in the
// original — _search_vnode always returns NULL) becomes Lookup's full
// component-by-component walk, using bpath.Split the way fd.Cwd_t
// already resolves relative paths.
package vfs

import (
	"sync"

	"bpath"
	"defs"
	"ustr"
)

// Kind distinguishes a regular file vnode from a directory vnode,
// mirroring original_source's VFS_FILE/VFS_DIR.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// Vnode_t is an object a filesystem module hands back from Lookup or
// Create: opaque Inode storage the module reinterprets as its own
// state (mirroring vfs_inode_storage_t's 96-byte union, already
// carried into fd.Fd_t.Priv for open descriptors), plus enough of the
// original _vfs_vnode to route further operations back to the owning
// module and mount.
type Vnode_t struct {
	Inode interface{}
	Kind  Kind
	Mount *Mount_t
}

// Mount_t is one mounted filesystem instance: the module backing it,
// the module-private handle that Module.Mount returned, and the root
// vnode a Lookup walk starts from.
type Mount_t struct {
	Module Module_i
	Spec   interface{}
	Root   *Vnode_t
}

// Module_i is the subset of original_source's vfs_interfaces_t this
// module actually dispatches: object creation/lookup/removal and the
// open/close/readdir pair a descriptor needs. A concrete filesystem
// (devfs, or a future disk-backed one) implements it and registers
// under a type name.
type Module_i interface {
	/// Mount prepares spec/flags/data into a module-private handle,
	/// returning the vnode that becomes the mount's root.
	Mount(spec interface{}, flags int, data interface{}) (*Vnode_t, interface{}, defs.Err_t)

	/// Unmount releases a module-private handle returned by Mount.
	Unmount(spec interface{}) defs.Err_t

	/// Lookup resolves one path component under dir, returning the
	/// child vnode.
	Lookup(mspec interface{}, dir *Vnode_t, name ustr.Ustr) (*Vnode_t, defs.Err_t)

	/// Create makes a new file vnode named name under dir.
	Create(mspec interface{}, dir *Vnode_t, name ustr.Ustr) (*Vnode_t, defs.Err_t)

	/// Mkdir makes a new directory vnode named name under dir.
	Mkdir(mspec interface{}, dir *Vnode_t, name ustr.Ustr) (*Vnode_t, defs.Err_t)

	/// Remove unlinks name under dir.
	Remove(mspec interface{}, dir *Vnode_t, name ustr.Ustr) defs.Err_t

	/// Readdir lists the names directly under dir.
	Readdir(mspec interface{}, dir *Vnode_t) ([]ustr.Ustr, defs.Err_t)
}

// Vfs_t is the virtual filesystem: registered modules by type name,
// and mounts keyed by their canonicalized mount-point path.
type Vfs_t struct {
	mu      sync.Mutex
	modules map[string]Module_i
	mounts  map[string]*Mount_t
}

// New creates an empty, unmounted Vfs_t.
func New() *Vfs_t {
	return &Vfs_t{modules: make(map[string]Module_i), mounts: make(map[string]*Mount_t)}
}

// Register records m under typ. Mirrors vfs_register, replacing its
// duplicate-type linear scan with a plain map insert (a second
// Register under the same type name replaces the first, matching
// original_source's lack of any duplicate check at all).
func (v *Vfs_t) Register(typ string, m Module_i) defs.Err_t {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.modules[typ] = m
	return 0
}

// Mount looks up typ and mounts it at dir. Mirrors vfs_mount's
// scan-by-type followed by a call through e->ifs.mount.
func (v *Vfs_t) Mount(typ string, dir ustr.Ustr, flags int, data interface{}) defs.Err_t {
	v.mu.Lock()
	m, ok := v.modules[typ]
	v.mu.Unlock()
	if !ok {
		return defs.NotFound
	}

	key := bpath.Canonicalize(dir).String()
	v.mu.Lock()
	if _, exists := v.mounts[key]; exists {
		v.mu.Unlock()
		return defs.Exists
	}
	v.mu.Unlock()

	root, mspec, err := m.Mount(nil, flags, data)
	if err != 0 {
		return err
	}
	mnt := &Mount_t{Module: m, Spec: mspec, Root: root}
	root.Mount = mnt

	v.mu.Lock()
	v.mounts[key] = mnt
	v.mu.Unlock()
	return 0
}

// Unmount releases the module-private handle for the mount at dir and
// forgets it.
func (v *Vfs_t) Unmount(dir ustr.Ustr) defs.Err_t {
	key := bpath.Canonicalize(dir).String()
	v.mu.Lock()
	mnt, ok := v.mounts[key]
	if !ok {
		v.mu.Unlock()
		return defs.NotFound
	}
	delete(v.mounts, key)
	v.mu.Unlock()
	return mnt.Module.Unmount(mnt.Spec)
}

// mountFor returns the mount whose key is the longest prefix of path,
// and the path's remaining components under that mount's root. This
// is the lookup composition original_source's vfs_open never finished
// (it resolves only the first path delimiter and _search_vnode always
// returns NULL): a real multi-mount path walk instead of a stub.
func (v *Vfs_t) mountFor(path ustr.Ustr) (*Mount_t, []ustr.Ustr) {
	full := bpath.Canonicalize(path).String()
	v.mu.Lock()
	defer v.mu.Unlock()

	var best *Mount_t
	bestLen := -1
	for key, mnt := range v.mounts {
		if key == "/" {
			if bestLen < 0 {
				best = mnt
				bestLen = 0
			}
			continue
		}
		if full == key || (len(full) > len(key) && full[:len(key)] == key && full[len(key)] == '/') {
			if len(key) > bestLen {
				best = mnt
				bestLen = len(key)
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	rest := full[bestLen:]
	comps := bpath.Split(ustr.MkUstrSlice([]byte(rest)))
	return best, comps
}

// Lookup resolves path by finding its mount and walking the remaining
// path components one Module.Lookup call at a time from the mount's
// root vnode.
func (v *Vfs_t) Lookup(path ustr.Ustr) (*Vnode_t, defs.Err_t) {
	mnt, comps := v.mountFor(path)
	if mnt == nil {
		return nil, defs.NotFound
	}
	cur := mnt.Root
	for _, c := range comps {
		next, err := mnt.Module.Lookup(mnt.Spec, cur, c)
		if err != 0 {
			return nil, err
		}
		cur = next
	}
	return cur, 0
}
