package fd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"fdops"
)

type nopOps struct {
	closed  int
	reopens int
}

func (n *nopOps) Close() defs.Err_t                                    { n.closed++; return 0 }
func (n *nopOps) Read(dst fdops.Userio_i) (int, defs.Err_t)            { return 0, 0 }
func (n *nopOps) Write(src fdops.Userio_i) (int, defs.Err_t)           { return 0, 0 }
func (n *nopOps) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t)  { return 0, 0 }
func (n *nopOps) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) { return 0, 0 }
func (n *nopOps) Reopen() defs.Err_t                                   { n.reopens++; return 0 }
func (n *nopOps) Poll(pm fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t)  { return 0, 0 }

func TestMkfdStartsWithOneRef(t *testing.T) {
	ops := &nopOps{}
	f := Mkfd(ops, FD_READ, nil)
	require.True(t, f.Unref())
}

func TestRefUnrefBalance(t *testing.T) {
	ops := &nopOps{}
	f := Mkfd(ops, FD_READ, nil)
	f.Ref()
	require.False(t, f.Unref())
	require.True(t, f.Unref())
}

func TestCopyfdReopensWithoutBumpingOriginal(t *testing.T) {
	ops := &nopOps{}
	f := Mkfd(ops, FD_READ|FD_WRITE, "vnode-handle")
	nf, err := Copyfd(f)
	require.Zero(t, err)
	require.Equal(t, 1, ops.reopens)
	require.Equal(t, "vnode-handle", nf.Vnode)
	// original and copy are now each independently referenced once
	require.True(t, f.Unref())
	require.True(t, nf.Unref())
}

func TestBlockWakeAll(t *testing.T) {
	f := Mkfd(&nopOps{}, FD_READ, nil)
	require.False(t, f.HasBlocked())
	f.Block(defs.Tid_t(1))
	f.Block(defs.Tid_t(2))
	require.True(t, f.HasBlocked())
	woke := f.WakeAll()
	require.Equal(t, []defs.Tid_t{1, 2}, woke)
	require.False(t, f.HasBlocked())
}

func TestPrivStorageRoundtrip(t *testing.T) {
	f := Mkfd(&nopOps{}, FD_READ, nil)
	copy(f.Priv[:], "hello")
	require.Equal(t, byte('h'), f.Priv[0])
	require.Len(t, f.Priv, PrivSize)
}
