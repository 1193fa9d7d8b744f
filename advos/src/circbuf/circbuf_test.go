package circbuf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mem"
	"vm"
)

func freshCb(t *testing.T, sz int) *Circbuf_t {
	phys := mem.Phys_init(4, 1)
	phys.AddRegion(mem.ZoneKernel, 0, 0, 4)
	cb := &Circbuf_t{}
	require.Zero(t, cb.Cb_init(sz, phys, mem.ZoneKernel, 0))
	return cb
}

func TestCopyinThenCopyoutRoundtrip(t *testing.T) {
	cb := freshCb(t, 16)
	src := &vm.Fakeubuf_t{}
	src.Fake_init([]byte("hello"))
	n, err := cb.Copyin(src)
	require.Zero(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, 5, cb.Used())

	dst := &vm.Fakeubuf_t{}
	dst.Fake_init(make([]byte, 5))
	n, err = cb.Copyout(dst)
	require.Zero(t, err)
	require.Equal(t, 5, n)
	require.True(t, cb.Empty())
}

func TestFullBufferRejectsCopyin(t *testing.T) {
	cb := freshCb(t, 4)
	src := &vm.Fakeubuf_t{}
	src.Fake_init([]byte("abcd"))
	n, err := cb.Copyin(src)
	require.Zero(t, err)
	require.Equal(t, 4, n)
	require.True(t, cb.Full())

	src2 := &vm.Fakeubuf_t{}
	src2.Fake_init([]byte("e"))
	n, err = cb.Copyin(src2)
	require.Zero(t, err)
	require.Zero(t, n)
}

func TestCopyinCopyoutWrapsAround(t *testing.T) {
	cb := freshCb(t, 4)
	fill := func(s string) {
		src := &vm.Fakeubuf_t{}
		src.Fake_init([]byte(s))
		_, err := cb.Copyin(src)
		require.Zero(t, err)
	}
	drain := func(n int) string {
		buf := make([]byte, n)
		dst := &vm.Fakeubuf_t{}
		dst.Fake_init(buf)
		wrote, err := cb.Copyout_n(dst, n)
		require.Zero(t, err)
		require.Equal(t, n, wrote)
		return string(buf[:n])
	}

	fill("ab")
	require.Equal(t, "ab", drain(2))
	fill("cdef")
	require.Equal(t, "cdef", drain(4))
	require.True(t, cb.Empty())
}

func TestLeftAndUsedTrackCapacity(t *testing.T) {
	cb := freshCb(t, 8)
	require.Equal(t, 8, cb.Left())
	require.Zero(t, cb.Used())
	src := &vm.Fakeubuf_t{}
	src.Fake_init([]byte("abc"))
	cb.Copyin(src)
	require.Equal(t, 3, cb.Used())
	require.Equal(t, 5, cb.Left())
}
