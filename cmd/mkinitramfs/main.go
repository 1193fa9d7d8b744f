// Command mkinitramfs builds a flat initramfs image from a host
// directory tree: a 128-slot, 32-byte-record directory header
// followed by the file data the records point into.
//
// Carried from and replacing Biscuit's mkfs/mkfs.go, which built a
// disk-backed UFS image (bootloader + kernel + skeleton filesystem) —
// out of scope here since no on-disk filesystem is implemented. The
// host-directory-walk structure survives unchanged; only the output
// format changed, from UFS inodes to initramfs's flat directory.
//
// The record layout (15-byte name, 1-byte attr, two little-endian
// uint64s for offset/size) is duplicated here rather than imported
// from package initramfs, which only exposes a reader: this command
// is the one place that encodes the format, mirroring how mkfs.go
// depended on ufs for disk layout but did its own inode bookkeeping.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxEntries = 128
	entrySize  = 32
	dirSize    = maxEntries * entrySize
	attrDir    = 0x01
)

type pendingEntry struct {
	name string
	dir  bool
	data []byte
}

// addfiles walks skeldir on the host and records one pendingEntry per
// directory and file found, relative to skeldir. Mirrors mkfs.go's
// addfiles, minus the UFS MkDir/MkFile/Append calls it made per entry.
func addfiles(skeldir string) ([]pendingEntry, error) {
	var entries []pendingEntry
	err := filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, skeldir), "/")
		if rel == "" {
			return nil
		}
		if d.IsDir() {
			entries = append(entries, pendingEntry{name: rel, dir: true})
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		entries = append(entries, pendingEntry{name: rel, data: data})
		return nil
	})
	return entries, err
}

// encode lays entries out as a directory header followed by
// concatenated file data, matching package initramfs's Parse.
func encode(entries []pendingEntry) ([]byte, error) {
	if len(entries) > maxEntries {
		return nil, fmt.Errorf("mkinitramfs: %d entries exceeds the %d-slot directory", len(entries), maxEntries)
	}

	header := make([]byte, dirSize)
	var data []byte
	offset := uint64(dirSize)

	for i, e := range entries {
		if len(e.name) > 15 {
			return nil, fmt.Errorf("mkinitramfs: name %q longer than 15 bytes", e.name)
		}
		rec := header[i*entrySize : (i+1)*entrySize]
		copy(rec[:15], e.name)
		if e.dir {
			rec[15] = attrDir
			continue
		}
		binary.LittleEndian.PutUint64(rec[16:24], offset)
		binary.LittleEndian.PutUint64(rec[24:32], uint64(len(e.data)))
		data = append(data, e.data...)
		offset += uint64(len(e.data))
	}

	return append(header, data...), nil
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <skel dir> <output image>\n", filepath.Base(os.Args[0]))
		os.Exit(1)
	}
	skeldir, out := os.Args[1], os.Args[2]

	entries, err := addfiles(skeldir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkinitramfs: walking %q: %v\n", skeldir, err)
		os.Exit(1)
	}

	img, err := encode(entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(out, img, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "mkinitramfs: writing %q: %v\n", out, err)
		os.Exit(1)
	}
}
