package initramfs

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
)

func putEntry(dir []byte, slot int, name string, attr byte, offset, size uint64) {
	rec := dir[slot*entrySize : (slot+1)*entrySize]
	copy(rec[:15], name)
	rec[15] = attr
	binary.LittleEndian.PutUint64(rec[16:24], offset)
	binary.LittleEndian.PutUint64(rec[24:32], size)
}

func buildImage(t *testing.T, files map[string]string) []byte {
	dir := make([]byte, DirSize)
	var data []byte
	slot := 0
	for name, content := range files {
		putEntry(dir, slot, name, 0, uint64(DirSize+len(data)), uint64(len(content)))
		data = append(data, content...)
		slot++
	}
	return append(dir, data...)
}

func TestParseRejectsShortImage(t *testing.T) {
	_, err := Parse(make([]byte, 10))
	require.Equal(t, defs.Invalid, err)
}

func TestLookupAndReadFile(t *testing.T) {
	img := buildImage(t, map[string]string{"hello.txt": "hello world"})
	fs, err := Parse(img)
	require.Zero(t, err)

	e, ok := fs.Lookup("hello.txt")
	require.True(t, ok)
	require.False(t, e.Dir)
	require.Equal(t, uint64(11), e.Size)

	data, rerr := fs.ReadFile("hello.txt")
	require.Zero(t, rerr)
	require.Equal(t, "hello world", string(data))
}

func TestLookupMissingEntry(t *testing.T) {
	img := buildImage(t, map[string]string{})
	fs, _ := Parse(img)
	_, ok := fs.Lookup("missing")
	require.False(t, ok)
}

func TestReadFileOnDirectoryFails(t *testing.T) {
	dir := make([]byte, DirSize)
	putEntry(dir, 0, "etc", attrDir, 0, 0)
	fs, err := Parse(dir)
	require.Zero(t, err)

	_, rerr := fs.ReadFile("etc")
	require.Equal(t, defs.Invalid, rerr)
}

func TestListReturnsAllEntries(t *testing.T) {
	img := buildImage(t, map[string]string{"a": "1", "b": "22"})
	fs, _ := Parse(img)
	require.Len(t, fs.List(), 2)
}

func TestListDirFiltersByPrefix(t *testing.T) {
	img := buildImage(t, map[string]string{"bin/sh": "x", "bin/ls": "y", "etc/passwd": "z"})
	fs, _ := Parse(img)
	names := fs.ListDir("bin/")
	require.Len(t, names, 2)
}
