package slab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mem"
)

func freshAllocator(t *testing.T) *Allocator_t {
	phys := mem.Phys_init(256, 1)
	phys.AddRegion(mem.ZoneKernel, 0, 0, 256)
	return Init(phys, mem.ZoneKernel, 0)
}

func TestCreateCacheAndAlloc(t *testing.T) {
	a := freshAllocator(t)
	c, err := a.CreateCache("test-32", 32)
	require.Zero(t, err)

	o, err := a.Alloc(c)
	require.Zero(t, err)
	require.Len(t, o.Bytes, 32)
}

func TestCreateCacheDup(t *testing.T) {
	a := freshAllocator(t)
	_, err := a.CreateCache("dup", 16)
	require.Zero(t, err)
	_, err = a.CreateCache("dup", 16)
	require.Equal(t, -2, int(err))
}

func TestAllocFreeReuse(t *testing.T) {
	a := freshAllocator(t)
	c, _ := a.CreateCache("reuse", 64)

	var objs []*Obj_t
	for i := 0; i < 10; i++ {
		o, err := a.Alloc(c)
		require.Zero(t, err)
		objs = append(objs, o)
	}
	for _, o := range objs {
		a.Free(o)
	}
	o, err := a.Alloc(c)
	require.Zero(t, err)
	require.Len(t, o.Bytes, 64)
}

func TestLookup(t *testing.T) {
	a := freshAllocator(t)
	a.CreateCache("lookup-me", 8)
	c, ok := a.Lookup("lookup-me")
	require.True(t, ok)
	require.Equal(t, 8, c.objsize)
	_, ok = a.Lookup("nope")
	require.False(t, ok)
}

func TestFreeingLastObjectReturnsSlabToFullList(t *testing.T) {
	a := freshAllocator(t)
	c, err := a.CreateCache("drains", 64)
	require.Zero(t, err)

	// CreateCache's fresh slab starts on c.full; take its one object so
	// the slab moves onto c.partial.
	o, err := a.Alloc(c)
	require.Zero(t, err)
	require.Nil(t, c.full)
	require.NotNil(t, c.partial)
	s := c.partial

	a.Free(o)
	require.Nil(t, c.partial, "slab should have left the partial list once fully freed")
	require.Same(t, s, c.full, "fully-freed slab should rejoin the full (all-free) list")

	o2, err := a.Alloc(c)
	require.Zero(t, err)
	require.Same(t, s, o2.s, "the reclaimed slab should be reused rather than a new one allocated")
}

func TestAllocExhaustsIntoNewSlab(t *testing.T) {
	a := freshAllocator(t)
	c, _ := a.CreateCache("many", 512)
	for i := 0; i < 100; i++ {
		_, err := a.Alloc(c)
		require.Zero(t, err, "alloc %d", i)
	}
}
