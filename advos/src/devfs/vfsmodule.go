package devfs

import (
	"defs"
	"ustr"
	"vfs"
)

// VfsModule adapts a Devfs_t registry to vfs.Module_i, mirroring
// original_source's devfs_init registering devfs under the type name
// "devfs" with only mount and lookup wired (devfs_register/unregister
// are driver-only operations, never reached through the VFS path
// composition the way Create/Mkdir/Remove are for a real filesystem).
type VfsModule struct {
	d *Devfs_t
}

// NewVfsModule wraps d for registration with a vfs.Vfs_t via
// Vfs_t.Register("devfs", devfs.NewVfsModule(d)).
func NewVfsModule(d *Devfs_t) *VfsModule {
	return &VfsModule{d: d}
}

// Mount returns the registry itself as both the mount root's inode
// and the module-private handle passed back into Lookup. Mirrors
// devfs_mount, which hands back the single global devfs struct.
func (m *VfsModule) Mount(spec interface{}, flags int, data interface{}) (*vfs.Vnode_t, interface{}, defs.Err_t) {
	root := &vfs.Vnode_t{Inode: m.d, Kind: vfs.KindDir}
	return root, m.d, 0
}

// Unmount is a no-op: a devfs registry outlives any one mount of it.
func (m *VfsModule) Unmount(spec interface{}) defs.Err_t {
	return 0
}

// Lookup resolves name against the registry, wrapping a found
// Entry_t in a vnode. Mirrors devfs_lookup's name-matching scan,
// generalized to the hashtable-backed registry.
func (m *VfsModule) Lookup(mspec interface{}, dir *vfs.Vnode_t, name ustr.Ustr) (*vfs.Vnode_t, defs.Err_t) {
	d := mspec.(*Devfs_t)
	e, ok := d.Lookup(name.String())
	if !ok {
		return nil, defs.NotFound
	}
	return &vfs.Vnode_t{Inode: e, Kind: vfs.KindFile}, 0
}

// Create, Mkdir, and Remove have no devfs equivalent: devices
// come and go only through Devfs_t.Register/Unregister, called by a
// driver process directly rather than through a VFS path operation,
// exactly as original_source never wires devfs_register into
// vfs_interfaces_t. Readdir lists the names of the registered devices.
func (m *VfsModule) Create(mspec interface{}, dir *vfs.Vnode_t, name ustr.Ustr) (*vfs.Vnode_t, defs.Err_t) {
	return nil, defs.Unsupported
}

func (m *VfsModule) Mkdir(mspec interface{}, dir *vfs.Vnode_t, name ustr.Ustr) (*vfs.Vnode_t, defs.Err_t) {
	return nil, defs.Unsupported
}

func (m *VfsModule) Remove(mspec interface{}, dir *vfs.Vnode_t, name ustr.Ustr) defs.Err_t {
	return defs.Unsupported
}

func (m *VfsModule) Readdir(mspec interface{}, dir *vfs.Vnode_t) ([]ustr.Ustr, defs.Err_t) {
	d := mspec.(*Devfs_t)
	var names []ustr.Ustr
	d.ht.Iter(func(k, v interface{}) bool {
		names = append(names, ustr.MkUstrSlice([]byte(k.(string))))
		return false
	})
	return names, 0
}
