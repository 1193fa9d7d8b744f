// Package bpath canonicalizes slash-separated paths for the VFS and
// initramfs lookup paths: it resolves "." and ".." components and
// collapses repeated slashes without touching the filesystem.
package bpath

import "ustr"

/// Canonicalize resolves '.' and '..' components in p and collapses
/// repeated slashes. The result is absolute only when p is. Leading
/// ".." above root is dropped, matching chroot-style resolution.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	abs := p.IsAbsolute()
	parts := split(p)
	out := make([]ustr.Ustr, 0, len(parts))
	for _, c := range parts {
		switch {
		case len(c) == 0:
			continue
		case c.Isdot():
			continue
		case c.Isdotdot():
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, c)
		}
	}
	ret := ustr.MkUstr()
	if abs {
		ret = ustr.MkUstrRoot()
	}
	for i, c := range out {
		if i > 0 || abs {
			if len(ret) == 0 || ret[len(ret)-1] != '/' {
				ret = append(ret, '/')
			}
		}
		ret = append(ret, c...)
	}
	if len(ret) == 0 {
		ret = ustr.MkUstrRoot()
	}
	return ret
}

// split breaks p on '/' into its non-empty components, in order.
func split(p ustr.Ustr) []ustr.Ustr {
	var parts []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

/// Split canonicalizes p and returns its non-empty path components, in
/// order, for a caller composing a lookup one component at a time
/// (vfs's name resolution).
func Split(p ustr.Ustr) []ustr.Ustr {
	return split(Canonicalize(p))
}
