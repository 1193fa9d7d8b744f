package initramfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"ustr"
	"vfs"
)

func TestVfsModuleMountAndLookupFile(t *testing.T) {
	img := buildImage(t, map[string]string{"init": "#!/bin/sh\n"})
	fs, _ := Parse(img)

	v := vfs.New()
	require.Zero(t, v.Register("initramfs", NewVfsModule(fs)))
	require.Zero(t, v.Mount("initramfs", ustr.MkUstrRoot(), 0, nil))

	got, err := v.Lookup(ustr.MkUstrSlice([]byte("/init")))
	require.Zero(t, err)
	require.Equal(t, vfs.KindFile, got.Kind)
}

func TestVfsModuleLookupMissingFails(t *testing.T) {
	fs, _ := Parse(buildImage(t, map[string]string{}))
	v := vfs.New()
	v.Register("initramfs", NewVfsModule(fs))
	v.Mount("initramfs", ustr.MkUstrRoot(), 0, nil)

	_, err := v.Lookup(ustr.MkUstrSlice([]byte("/nope")))
	require.Equal(t, defs.NotFound, err)
}

func TestVfsModuleWritesUnsupported(t *testing.T) {
	fs, _ := Parse(buildImage(t, map[string]string{}))
	m := NewVfsModule(fs)
	_, err := m.Create(fs, nil, ustr.MkUstrSlice([]byte("x")))
	require.Equal(t, defs.Unsupported, err)
	require.Equal(t, defs.Unsupported, m.Remove(fs, nil, ustr.MkUstrSlice([]byte("x"))))
}
