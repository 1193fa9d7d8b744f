package kmem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"mem"
)

func fresh(t *testing.T) *Allocator_t {
	phys := mem.Phys_init(512, 1)
	phys.AddRegion(mem.ZoneKernel, 0, 0, 512)
	a, err := Init(phys, mem.ZoneKernel, 0)
	require.Zero(t, err)
	return a
}

func TestKmallocRoundsUpToClass(t *testing.T) {
	a := fresh(t)
	buf, obj, err := a.Kmalloc(20)
	require.Zero(t, err)
	require.Len(t, buf, 20)
	require.Equal(t, 32, a.owner[obj])
}

func TestKmallocTooLarge(t *testing.T) {
	a := fresh(t)
	_, _, err := a.Kmalloc(1 << 20)
	require.Equal(t, defs.Invalid, err)
}

func TestKfreeUnknownObj(t *testing.T) {
	a := fresh(t)
	_, obj, _ := a.Kmalloc(8)
	a.Kfree(obj)
	require.NotZero(t, a.Kfree(obj))
}

func TestKmallocKfreeRoundtrip(t *testing.T) {
	a := fresh(t)
	for i := 0; i < 50; i++ {
		_, obj, err := a.Kmalloc(64)
		require.Zero(t, err)
		require.Zero(t, a.Kfree(obj))
	}
}
