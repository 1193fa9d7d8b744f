package devfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"ustr"
	"vfs"
)

func TestVfsModuleMountAndLookup(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	registered, err := d.Register("console", Char, owner)
	require.Zero(t, err)

	v := vfs.New()
	require.Zero(t, v.Register("devfs", NewVfsModule(d)))
	require.Zero(t, v.Mount("devfs", ustr.MkUstrRoot(), 0, nil))

	got, lerr := v.Lookup(ustr.MkUstrSlice([]byte("/console")))
	require.Zero(t, lerr)
	require.Equal(t, vfs.KindFile, got.Kind)
	require.Same(t, registered, got.Inode.(*Entry_t))
}

func TestVfsModuleLookupMissingDevice(t *testing.T) {
	d := freshDevfs(t)
	v := vfs.New()
	v.Register("devfs", NewVfsModule(d))
	v.Mount("devfs", ustr.MkUstrRoot(), 0, nil)

	_, err := v.Lookup(ustr.MkUstrSlice([]byte("/nope")))
	require.Equal(t, defs.NotFound, err)
}

func TestVfsModuleCreateUnsupported(t *testing.T) {
	d := freshDevfs(t)
	m := NewVfsModule(d)
	_, err := m.Create(d, nil, ustr.MkUstrSlice([]byte("x")))
	require.Equal(t, defs.Unsupported, err)
}
