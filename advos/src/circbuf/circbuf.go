// Package circbuf implements the paired input/output ring buffers that
// back every devfs character device (spec.md §4.6): one buffer for
// driver-produced bytes bound for the user, one for user-produced
// bytes bound for the driver.
package circbuf

import "defs"
import "fdops"
import "mem"
import "sync/atomic"

/// Circbuf_t implements a simple circular buffer used by a single daemon.
/// Only the holder of the producer side may call Copyin (advancing
/// head); only the holder of the consumer side may call Copyout
/// (advancing tail). Each side publishes its own index with an atomic
/// store and observes the other's with an atomic load, giving each a
/// single-writer view without a lock (spec.md §4.6's ordering rule).
type Circbuf_t struct {
	mem   mem.Page_i /// page allocator interface
	Buf   []uint8    /// underlying buffer backing memory
	bufsz int        /// buffer capacity in bytes
	head  atomic.Int64
	tail  atomic.Int64
	p_pg  mem.Pa_t /// physical page backing the buffer
	zone  mem.Zone /// zone the backing page is allocated from
	domain int     /// NUMA domain the backing page is allocated from
}

/// Bufsz returns the configured buffer size.
func (cb *Circbuf_t) Bufsz() int {
	return cb.bufsz
}

/// Set provides an existing byte slice and page allocator.
/// Parameters:
///   nb  - backing byte slice.
///   did - initial head index.
///   m   - page allocator.
func (cb *Circbuf_t) Set(nb []uint8, did int, m mem.Page_i) {
	cb.mem = m
	cb.Buf = nb
	cb.bufsz = len(nb)
	cb.head.Store(int64(did))
	cb.tail.Store(0)
}

/// Cb_init lazily allocates a backing page from zone/domain when
/// required.
/// Parameters:
///   sz - buffer size in bytes.
///   m  - page allocator.
func (cb *Circbuf_t) Cb_init(sz int, m mem.Page_i, zone mem.Zone, domain int) defs.Err_t {
	bufmax := mem.PGSIZE
	if sz <= 0 || sz > bufmax {
		panic("bad circbuf size")
	}
	cb.mem = m
	cb.bufsz = sz
	cb.zone = zone
	cb.domain = domain
	cb.head.Store(0)
	cb.tail.Store(0)
	// lazily allocated the buffers. it is easier to handle an error at the
	// time of read or write instead of during the initialization of the
	// object using a circbuf.
	return 0
}

/// Cb_init_phys supplies a preallocated page backing the buffer.
/// Parameters:
///   v   - byte slice mapping the page.
///   p_pg- physical page address.
///   m   - page allocator.
func (cb *Circbuf_t) Cb_init_phys(v []uint8, p_pg mem.Pa_t, m mem.Page_i) {
	cb.mem = m
	cb.mem.Refup(p_pg)
	cb.p_pg = p_pg
	cb.Buf = v
	cb.bufsz = len(cb.Buf)
	cb.head.Store(0)
	cb.tail.Store(0)
}

/// Cb_release drops the reference to the backing page.
func (cb *Circbuf_t) Cb_release() {
	if cb.Buf == nil {
		return
	}
	cb.mem.Refdown(cb.p_pg, cb.zone, cb.domain)
	cb.p_pg = 0
	cb.Buf = nil
	cb.head.Store(0)
	cb.tail.Store(0)
}

/// Cb_ensure guarantees that the buffer is allocated.
/// Return value:
///   defs.Err_t - OutOfMemory if allocation fails.
func (cb *Circbuf_t) Cb_ensure() defs.Err_t {
	if cb.Buf != nil {
		return 0
	}
	if cb.bufsz == 0 {
		panic("not initted")
	}
	p_pg, ok := cb.mem.Alloc(0, cb.zone, cb.domain)
	if !ok {
		return defs.OutOfMemory
	}
	bpg := cb.mem.Dmap8(p_pg)[:cb.bufsz]
	cb.p_pg = p_pg
	cb.Buf = bpg
	cb.head.Store(0)
	cb.tail.Store(0)
	return 0
}

/// Full returns true when the buffer cannot accept more data.
func (cb *Circbuf_t) Full() bool {
	return cb.head.Load()-cb.tail.Load() == int64(cb.bufsz)
}

/// Empty reports whether the buffer contains any data.
func (cb *Circbuf_t) Empty() bool {
	return cb.head.Load() == cb.tail.Load()
}

/// Left returns the remaining capacity in bytes.
func (cb *Circbuf_t) Left() int {
	used := cb.head.Load() - cb.tail.Load()
	return cb.bufsz - int(used)
}

/// Used returns the current number of bytes in the buffer.
func (cb *Circbuf_t) Used() int {
	return int(cb.head.Load() - cb.tail.Load())
}

/// Copyin reads from src into the circular buffer. Only the producer
/// side may call this; it alone advances head.
/// Return values:
///   int       - bytes written.
///   defs.Err_t- error code on failure.
func (cb *Circbuf_t) Copyin(src fdops.Userio_i) (int, defs.Err_t) {
	if err := cb.Cb_ensure(); err != 0 {
		return 0, err
	}
	if cb.Full() {
		return 0, 0
	}
	head := cb.head.Load()
	tail := cb.tail.Load()
	hi := int(head) % cb.bufsz
	ti := int(tail) % cb.bufsz
	c := 0
	// wraparound?
	if ti <= hi {
		dst := cb.Buf[hi:]
		wrote, err := src.Uioread(dst)
		if err != 0 {
			return 0, err
		}
		if wrote != len(dst) {
			cb.head.Store(head + int64(wrote))
			return wrote, 0
		}
		c += wrote
		hi = (int(head) + wrote) % cb.bufsz
	}
	// XXXPANIC
	if hi > ti {
		panic("wut?")
	}
	dst := cb.Buf[hi:ti]
	wrote, err := src.Uioread(dst)
	c += wrote
	if err != 0 {
		return c, err
	}
	cb.head.Store(head + int64(c))
	return c, 0
}

/// Copyout writes the entire buffer contents to dst.
func (cb *Circbuf_t) Copyout(dst fdops.Userio_i) (int, defs.Err_t) {
	return cb.Copyout_n(dst, 0)
}

/// Copyout_n writes up to max bytes of the buffer to dst. Only the
/// consumer side may call this; it alone advances tail.
/// Return values:
///   int       - bytes written.
///   defs.Err_t- error code on failure.
func (cb *Circbuf_t) Copyout_n(dst fdops.Userio_i, max int) (int, defs.Err_t) {
	if err := cb.Cb_ensure(); err != 0 {
		return 0, err
	}
	if cb.Empty() {
		return 0, 0
	}
	head := cb.head.Load()
	tail := cb.tail.Load()
	hi := int(head) % cb.bufsz
	ti := int(tail) % cb.bufsz
	c := 0
	// wraparound?
	if hi <= ti {
		src := cb.Buf[ti:]
		if max != 0 && max < len(src) {
			src = src[:max]
		}
		wrote, err := dst.Uiowrite(src)
		if err != 0 {
			return 0, err
		}
		if wrote != len(src) || wrote == max {
			cb.tail.Store(tail + int64(wrote))
			return wrote, 0
		}
		c += wrote
		if max != 0 {
			max -= c
		}
		ti = (int(tail) + wrote) % cb.bufsz
	}
	// XXXPANIC
	if ti > hi {
		panic("wut?")
	}
	src := cb.Buf[ti:hi]
	if max != 0 && max < len(src) {
		src = src[:max]
	}
	wrote, err := dst.Uiowrite(src)
	if err != 0 {
		return 0, err
	}
	c += wrote
	cb.tail.Store(tail + int64(c))
	return c, 0
}

/// Rawwrite exposes a slice for writing directly to the buffer.
/// It returns up to two slices when the region wraps.
func (cb *Circbuf_t) Rawwrite(offset, sz int) ([]uint8, []uint8) {
	if cb.Buf == nil {
		panic("no lazy allocation for tcp")
	}
	if cb.Left() < sz {
		panic("bad size")
	}
	if sz == 0 {
		return nil, nil
	}
	head := int(cb.head.Load())
	tail := int(cb.tail.Load())
	oi := (head + offset) % cb.bufsz
	oe := (head + offset + sz) % cb.bufsz
	hi := head % cb.bufsz
	ti := tail % cb.bufsz
	var r1 []uint8
	var r2 []uint8
	if ti <= hi {
		if (oi >= ti && oi < hi) || (oe > ti && oe <= hi) {
			panic("intersects with user data")
		}
		r1 = cb.Buf[oi:]
		if len(r1) > sz {
			r1 = r1[:sz]
		} else {
			r2 = cb.Buf[:oe]
		}
	} else {
		// user data wraps
		if !(oi >= hi && oi < ti && oe > hi && oe <= ti) {
			panic("intersects with user data")
		}
		r1 = cb.Buf[oi:oe]
	}
	return r1, r2
}

/// Advhead advances the head index allowing previously written bytes to be read.
func (cb *Circbuf_t) Advhead(sz int) {
	if cb.Full() || cb.Left() < sz {
		panic("advancing full cb")
	}
	cb.head.Add(int64(sz))
}

/// Rawread returns slices referencing the buffer starting at offset.
/// It may return two slices when the data wraps.
func (cb *Circbuf_t) Rawread(offset int) ([]uint8, []uint8) {
	if cb.Buf == nil {
		panic("no lazy allocation for tcp")
	}
	head := int(cb.head.Load())
	tail := int(cb.tail.Load())
	oi := (tail + offset) % cb.bufsz
	hi := head % cb.bufsz
	ti := tail % cb.bufsz
	var r1 []uint8
	var r2 []uint8
	if ti < hi {
		if oi >= hi || oi < ti {
			panic("outside user data")
		}
		r1 = cb.Buf[oi:hi]
	} else {
		if oi >= hi && oi < ti {
			panic("outside user data")
		}
		tlen := len(cb.Buf[ti:])
		if tlen > offset {
			r1 = cb.Buf[oi:]
			r2 = cb.Buf[:hi]
		} else {
			roff := offset - tlen
			r1 = cb.Buf[roff:hi]
		}
	}
	return r1, r2
}

/// Advtail advances the tail index after data has been consumed.
func (cb *Circbuf_t) Advtail(sz int) {
	if sz != 0 && (cb.Empty() || cb.Used() < sz) {
		panic("advancing empty cb")
	}
	cb.tail.Add(int64(sz))
}
