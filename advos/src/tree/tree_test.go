package tree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intcmp(a, b int) int { return a - b }

func TestAddSearch(t *testing.T) {
	tr := New(intcmp)
	for _, v := range []int{5, 2, 8, 1, 9, 3} {
		require.True(t, tr.Add(v, false))
	}
	for _, v := range []int{5, 2, 8, 1, 9, 3} {
		got, ok := tr.Search(v)
		require.True(t, ok)
		require.Equal(t, v, got)
	}
	_, ok := tr.Search(42)
	require.False(t, ok)
}

func TestAddNoDup(t *testing.T) {
	tr := New(intcmp)
	require.True(t, tr.Add(1, false))
	require.False(t, tr.Add(1, false))
	require.Equal(t, 1, tr.Len())
}

func TestAddAllowDup(t *testing.T) {
	tr := New(intcmp)
	require.True(t, tr.Add(1, true))
	require.True(t, tr.Add(1, true))
	require.Equal(t, 2, tr.Len())
}

func TestDelete(t *testing.T) {
	tr := New(intcmp)
	for _, v := range []int{5, 2, 8, 1, 9, 3, 7} {
		tr.Add(v, false)
	}
	require.True(t, tr.Delete(8))
	_, ok := tr.Search(8)
	require.False(t, ok)
	require.False(t, tr.Delete(100))

	var remain []int
	tr.Walk(func(v int) bool {
		remain = append(remain, v)
		return true
	})
	require.Equal(t, []int{1, 2, 3, 5, 7, 9}, remain)
}

func TestAddSurvivesBackingArrayGrowth(t *testing.T) {
	tr := New(intcmp)
	const n = 200
	for i := 0; i < n; i++ {
		require.True(t, tr.Add(i, false))
	}
	require.Equal(t, n, tr.Len())
	for i := 0; i < n; i++ {
		got, ok := tr.Search(i)
		require.True(t, ok, "value %d missing after repeated reallocation", i)
		require.Equal(t, i, got)
	}
}

func TestDeleteReinsertReusesSlot(t *testing.T) {
	tr := New(intcmp)
	tr.Add(1, false)
	tr.Add(2, false)
	tr.Delete(1)
	require.True(t, tr.Add(3, false))
	require.Equal(t, 2, tr.Len())
	require.Len(t, tr.nodes, 2)
}

func TestWalkOrder(t *testing.T) {
	tr := New(intcmp)
	for _, v := range []int{4, 2, 6, 1, 3, 5, 7} {
		tr.Add(v, false)
	}
	var got []int
	tr.Walk(func(v int) bool {
		got = append(got, v)
		return true
	})
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, got)
}

func TestWalkStopsEarly(t *testing.T) {
	tr := New(intcmp)
	for _, v := range []int{1, 2, 3, 4, 5} {
		tr.Add(v, false)
	}
	var got []int
	tr.Walk(func(v int) bool {
		got = append(got, v)
		return len(got) < 2
	})
	require.Len(t, got, 2)
}
