package mem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func freshPhys(npages int) *Physmem_t {
	phys := Phys_init(npages, 1)
	phys.AddRegion(ZoneKernel, 0, 0, uint32(npages))
	return phys
}

func TestAllocFreeRoundtrip(t *testing.T) {
	phys := freshPhys(64)
	pa, ok := phys.Alloc(0, ZoneKernel, 0)
	require.True(t, ok)
	require.Equal(t, 1, phys.Refcnt(pa))
	phys.Free(pa, 0, ZoneKernel, 0)
	require.Equal(t, 0, phys.Refcnt(pa))
}

func TestAllocSplitsLargerBlock(t *testing.T) {
	phys := freshPhys(8)
	pa, ok := phys.Alloc(0, ZoneKernel, 0)
	require.True(t, ok)
	require.Equal(t, Pa_t(0), pa)
	// the remaining 7 pages should still be allocatable one at a time
	for i := 0; i < 7; i++ {
		_, ok := phys.Alloc(0, ZoneKernel, 0)
		require.True(t, ok, "alloc %d", i)
	}
	_, ok = phys.Alloc(0, ZoneKernel, 0)
	require.False(t, ok, "zone should be exhausted")
}

func TestFreeCoalescesBuddies(t *testing.T) {
	phys := freshPhys(4)
	a, _ := phys.Alloc(0, ZoneKernel, 0)
	b, _ := phys.Alloc(0, ZoneKernel, 0)
	c, _ := phys.Alloc(0, ZoneKernel, 0)
	d, _ := phys.Alloc(0, ZoneKernel, 0)
	phys.Free(a, 0, ZoneKernel, 0)
	phys.Free(b, 0, ZoneKernel, 0)
	phys.Free(c, 0, ZoneKernel, 0)
	phys.Free(d, 0, ZoneKernel, 0)
	// coalescing should have reassembled order 2; a single alloc of
	// order 2 must now succeed exactly once.
	_, ok := phys.Alloc(2, ZoneKernel, 0)
	require.True(t, ok)
	_, ok = phys.Alloc(0, ZoneKernel, 0)
	require.False(t, ok)
}

func TestRefupKeepsPageAlive(t *testing.T) {
	phys := freshPhys(4)
	pa, _ := phys.Alloc(0, ZoneKernel, 0)
	phys.Refup(pa)
	require.Equal(t, 2, phys.Refcnt(pa))
	require.False(t, phys.Refdown(pa, ZoneKernel, 0))
	require.True(t, phys.Refdown(pa, ZoneKernel, 0))
}

func TestDmapRoundtrip(t *testing.T) {
	phys := freshPhys(4)
	pa, _ := phys.Alloc(0, ZoneKernel, 0)
	pg := phys.Dmap(pa)
	pg[0] = 0xab
	pg[1] = 0xcd
	got := phys.Dmap8(pa)
	require.Equal(t, uint8(0xab), got[0])
	require.Equal(t, uint8(0xcd), got[1])
	require.Equal(t, pa, phys.Dmap_v2p(pg))
}

func TestNumaDomainsIsolated(t *testing.T) {
	phys := Phys_init(8, 2)
	phys.AddRegion(ZoneNUMA, 0, 0, 4)
	phys.AddRegion(ZoneNUMA, 1, 4, 4)
	_, ok := phys.Alloc(2, ZoneNUMA, 0)
	require.True(t, ok)
	_, ok = phys.Alloc(0, ZoneNUMA, 0)
	require.False(t, ok)
	_, ok = phys.Alloc(2, ZoneNUMA, 1)
	require.True(t, ok)
}

func TestFreeCountTracksAllocAndFree(t *testing.T) {
	phys := freshPhys(64)
	require.Equal(t, 64, phys.FreeCount(ZoneKernel, 0))
	pa, ok := phys.Alloc(2, ZoneKernel, 0)
	require.True(t, ok)
	require.Equal(t, 60, phys.FreeCount(ZoneKernel, 0))
	phys.Free(pa, 2, ZoneKernel, 0)
	require.Equal(t, 64, phys.FreeCount(ZoneKernel, 0))
}
