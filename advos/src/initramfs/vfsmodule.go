package initramfs

import (
	"defs"
	"ustr"
	"vfs"
)

// VfsModule adapts a parsed Fs_t to vfs.Module_i, mirroring
// initramfs_init registering type "initramfs" with mount and lookup
// wired and nothing else (initramfs is read-only: there is no
// initramfs_create/_mkdir/_remove in the original either).
type VfsModule struct {
	fs *Fs_t
}

// NewVfsModule wraps fs for registration via
// Vfs_t.Register("initramfs", initramfs.NewVfsModule(fs)).
func NewVfsModule(fs *Fs_t) *VfsModule {
	return &VfsModule{fs: fs}
}

// Mount returns the image itself as the mount root's inode and the
// module-private handle, mirroring initramfs_mount's single
// kmalloc'd initramfs_device wrapping INITRAMFS_BASE.
func (m *VfsModule) Mount(spec interface{}, flags int, data interface{}) (*vfs.Vnode_t, interface{}, defs.Err_t) {
	return &vfs.Vnode_t{Inode: m.fs, Kind: vfs.KindDir}, m.fs, 0
}

func (m *VfsModule) Unmount(spec interface{}) defs.Err_t {
	return 0
}

// Lookup resolves name against the flat directory. Mirrors
// initramfs_lookup's scan, generalized onto Fs_t's name index.
func (m *VfsModule) Lookup(mspec interface{}, dir *vfs.Vnode_t, name ustr.Ustr) (*vfs.Vnode_t, defs.Err_t) {
	fs := mspec.(*Fs_t)
	e, ok := fs.Lookup(name.String())
	if !ok {
		return nil, defs.NotFound
	}
	kind := vfs.KindFile
	if e.Dir {
		kind = vfs.KindDir
	}
	return &vfs.Vnode_t{Inode: e, Kind: kind}, 0
}

// Create, Mkdir, and Remove are unsupported: initramfs is a read-only
// image baked by cmd/mkinitramfs, matching original_source having no
// write path for it at all.
func (m *VfsModule) Create(mspec interface{}, dir *vfs.Vnode_t, name ustr.Ustr) (*vfs.Vnode_t, defs.Err_t) {
	return nil, defs.Unsupported
}

func (m *VfsModule) Mkdir(mspec interface{}, dir *vfs.Vnode_t, name ustr.Ustr) (*vfs.Vnode_t, defs.Err_t) {
	return nil, defs.Unsupported
}

func (m *VfsModule) Remove(mspec interface{}, dir *vfs.Vnode_t, name ustr.Ustr) defs.Err_t {
	return defs.Unsupported
}

// Readdir lists every entry in the flat directory.
func (m *VfsModule) Readdir(mspec interface{}, dir *vfs.Vnode_t) ([]ustr.Ustr, defs.Err_t) {
	fs := mspec.(*Fs_t)
	var names []ustr.Ustr
	for _, e := range fs.List() {
		names = append(names, ustr.MkUstrSlice([]byte(e.Name)))
	}
	return names, 0
}
