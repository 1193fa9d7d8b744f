// Package initramfs reads the flat, fixed-layout root filesystem
// image the kernel boots from (spec.md §6): a 128-slot directory
// header followed by the file data it points into.
//
// Grounded on original_source/src/kernel/initramfs.c: struct
// initrd_entry's 15-byte name, 1-byte attr, and file{offset,size}/
// dir{offset,reserved} union becomes Entry_t, laid out identically
// (32 bytes: name[15], attr, two little-endian uint64s) so
// cmd/mkinitramfs and this reader agree on the wire format without a
// shared struct; the fixed 128-entry, INITRAMFS_BASE-relative scan in
// initramfs_lookup/_open/_readfile becomes Parse building an in-memory
// name index once up front instead of a linear re-scan per call.
package initramfs

import (
	"encoding/binary"
	"strings"

	"defs"
)

// MaxEntries is the fixed directory slot count, mirroring
// initramfs_lookup's `for (i = 0; i < 128; i++)`.
const MaxEntries = 128

// entrySize is sizeof(struct initrd_entry): 15-byte name + 1-byte attr
// + 16 bytes of offset/size, unpadded since 16 is already 8-aligned.
const entrySize = 32

// DirSize is the directory header's size in bytes, one physical page.
const DirSize = MaxEntries * entrySize

const attrDir = 0x01

// Entry_t describes one directory slot.
type Entry_t struct {
	Name   string
	Dir    bool
	Offset uint64
	Size   uint64
}

// Fs_t is a parsed initramfs image: the raw bytes (directory header
// plus file data) and a name index built once at Parse time.
type Fs_t struct {
	img     []byte
	entries []Entry_t
	byName  map[string]int
}

// Parse validates and indexes img, which must be at least DirSize
// bytes. Mirrors initramfs_init's size check, generalized from a
// single fildes_storage_t bound to the whole header.
func Parse(img []byte) (*Fs_t, defs.Err_t) {
	if len(img) < DirSize {
		return nil, defs.Invalid
	}
	fs := &Fs_t{img: img, byName: make(map[string]int)}
	for i := 0; i < MaxEntries; i++ {
		rec := img[i*entrySize : (i+1)*entrySize]
		name := decodeName(rec[:15])
		if name == "" {
			continue
		}
		e := Entry_t{
			Name:   name,
			Dir:    rec[15]&attrDir != 0,
			Offset: binary.LittleEndian.Uint64(rec[16:24]),
			Size:   binary.LittleEndian.Uint64(rec[24:32]),
		}
		fs.entries = append(fs.entries, e)
		fs.byName[name] = len(fs.entries) - 1
	}
	return fs, 0
}

func decodeName(b []byte) string {
	if i := indexZero(b); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// Lookup finds name in the directory. Mirrors initramfs_lookup's
// linear name scan, here an O(1) map lookup over the index built by
// Parse.
func (fs *Fs_t) Lookup(name string) (Entry_t, bool) {
	i, ok := fs.byName[name]
	if !ok {
		return Entry_t{}, false
	}
	return fs.entries[i], true
}

// ReadFile returns the file data name points to. Mirrors
// initramfs_readfile's offset/size slice off INITRAMFS_BASE.
func (fs *Fs_t) ReadFile(name string) ([]byte, defs.Err_t) {
	e, ok := fs.Lookup(name)
	if !ok {
		return nil, defs.NotFound
	}
	if e.Dir {
		return nil, defs.Invalid
	}
	end := e.Offset + e.Size
	if end > uint64(len(fs.img)) || e.Offset > end {
		return nil, defs.Invalid
	}
	return fs.img[e.Offset:end], 0
}

// List returns every entry in the directory, in slot order.
func (fs *Fs_t) List() []Entry_t {
	return append([]Entry_t(nil), fs.entries...)
}

// ListDir returns the full names of the entries whose name starts with
// prefix (every entry when prefix is empty); names are not trimmed and
// entries at any depth below the prefix are included. initramfs's directory
// is flat (no nested inode tree — every entry is a top-level slot), so
// this is a prefix filter over the single directory rather than a
// recursive walk.
func (fs *Fs_t) ListDir(prefix string) []string {
	var names []string
	for _, e := range fs.entries {
		if prefix == "" || strings.HasPrefix(e.Name, prefix) {
			names = append(names, e.Name)
		}
	}
	return names
}
