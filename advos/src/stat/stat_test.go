package stat

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestWriteAndReadFields(t *testing.T) {
	var st Stat_t
	st.Wdev(7)
	st.Wino(42)
	st.Wmode(0644)
	st.Wsize(1024)
	st.Wrdev(3)

	require.EqualValues(t, 42, st.Rino())
	require.EqualValues(t, 0644, st.Mode())
	require.EqualValues(t, 1024, st.Size())
	require.EqualValues(t, 3, st.Rdev())
}

func TestBytesLengthMatchesStructSize(t *testing.T) {
	var st Stat_t
	st.Wsize(99)
	b := st.Bytes()
	require.Len(t, b, int(unsafe.Sizeof(st)))
}
