// Package devfs registers named driver devices and exposes each as a
// pair of ring buffers a user process reads and writes through the
// ordinary file-descriptor interface (spec.md §4.6).
//
// Grounded on original_source/src/kernel/devfs.c: devfs_register
// (linear scan for a free slot, owner-process recorded, DEVFS_CHAR/
// DEVFS_BLOCK type check) becomes a name-keyed hashtable.Hashtable_t
// lookup; devfs_driver_putc/devfs_driver_write (owner-checked producer
// into the input buffer) and devfs_driver_getc (owner-checked consumer
// of the output buffer) become Entry_t.Putc/DriverWrite/DriverGetc;
// devfs_read's empty-buffer check and devfs_write's full-buffer early
// return plus direct wake of the driver's task become
// charFdops_t.Read/Write; the enqueue-task_switch-retry half of
// devfs_read's loop is left to the syscall layer (see Read).
//
// One gap in the kept original: devfs_driver_putc/write never wakes a
// blocked reader, even though devfs_read's comment and spec.md §4.6
// both describe the reader being "rescheduled when the driver calls
// the putc/write hooks" — so that wake is implemented here on the
// registered reader set, fixing the omission rather than reproducing
// it.
package devfs

import (
	"sync"

	"circbuf"
	"defs"
	"fd"
	"fdops"
	"hashtable"
	"mem"
	"proc"
	"vm"
)

// BufSize is the capacity of each ring buffer. original_source uses a
// fixed 8192-byte DEVFS_FIFO_BUFSIZE; circbuf.Cb_init backs a buffer
// with a single physical page (mem.PGSIZE), so this is capped there
// instead.
const BufSize = mem.PGSIZE

// DevKind distinguishes a character device from a block device,
// mirroring original_source's DEVFS_CHAR/DEVFS_BLOCK.
type DevKind int

const (
	Char DevKind = iota
	Block
)

// Entry_t is one registered device: its owning (driver) process and
// its paired ring buffers. In carries driver-produced bytes bound for
// a reading user process; Out carries user-produced bytes bound for
// the driver.
type Entry_t struct {
	mu      sync.Mutex
	Name    string
	Kind    DevKind
	Owner   *proc.Proc_t
	In      circbuf.Circbuf_t
	Out     circbuf.Circbuf_t
	readers []reader_t

	// block is the flat byte arena a DevKind.Block device reads and
	// writes by offset, backed by blockPg. original_source's
	// devfs_read/devfs_write both switch on DEVFS_BLOCK and fall
	// straight into an unimplemented `break` — the supplemented variant
	// here gives that arm a real, offset-addressable backing store
	// instead of leaving it dead.
	block   []byte
	blockPg mem.Pa_t
}

// reader_t pairs a reading descriptor with the process that blocks on
// it. fd.Fd_t alone only records blocked tids; waking a reader also
// requires flipping its Proc_t.Task.State, so the owning process is
// tracked alongside the descriptor.
type reader_t struct {
	fd *fd.Fd_t
	p  *proc.Proc_t
}

func (e *Entry_t) addReader(f *fd.Fd_t, p *proc.Proc_t) {
	e.mu.Lock()
	e.readers = append(e.readers, reader_t{f, p})
	e.mu.Unlock()
}

func (e *Entry_t) dropReader(f *fd.Fd_t) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.readers {
		if r.fd == f {
			e.readers = append(e.readers[:i], e.readers[i+1:]...)
			return
		}
	}
}

// wakeReaders detaches every task blocked on a reading descriptor for
// this entry and transitions it back to Ready — the fix for the
// missing wake noted above.
func (e *Entry_t) wakeReaders() {
	e.mu.Lock()
	rs := append([]reader_t(nil), e.readers...)
	e.mu.Unlock()
	for _, r := range rs {
		r.fd.WakeAll()
		if r.p != nil && r.p.Task != nil {
			r.p.Task.State = proc.Ready
		}
	}
}

// Putc writes a single byte into the input buffer on behalf of owner.
// Mirrors devfs_driver_putc's owner check and _chr_ibuf_putc.
func (e *Entry_t) Putc(owner *proc.Proc_t, c byte) defs.Err_t {
	if owner != e.Owner {
		return defs.Invalid
	}
	if e.Kind != Char {
		return defs.Unsupported
	}
	fb := &vm.Fakeubuf_t{}
	fb.Fake_init([]byte{c})
	_, err := e.In.Copyin(fb)
	if err != 0 {
		return err
	}
	e.wakeReaders()
	return 0
}

// DriverWrite copies buf into the input buffer on behalf of owner,
// stopping early if the buffer fills. Mirrors devfs_driver_write.
func (e *Entry_t) DriverWrite(owner *proc.Proc_t, buf []byte) (int, defs.Err_t) {
	if owner != e.Owner {
		return 0, defs.Invalid
	}
	if e.Kind != Char {
		return 0, defs.Unsupported
	}
	fb := &vm.Fakeubuf_t{}
	fb.Fake_init(buf)
	n, err := e.In.Copyin(fb)
	if err != 0 {
		return n, err
	}
	e.wakeReaders()
	return n, 0
}

// DriverGetc drains a single byte from the output buffer on behalf of
// owner. Mirrors devfs_driver_getc / _chr_obuf_getc; ok is false on an
// empty buffer rather than returning -1.
func (e *Entry_t) DriverGetc(owner *proc.Proc_t) (c byte, ok bool, err defs.Err_t) {
	if owner != e.Owner {
		return 0, false, defs.Invalid
	}
	if e.Kind != Char {
		return 0, false, defs.Unsupported
	}
	var b [1]byte
	fb := &vm.Fakeubuf_t{}
	fb.Fake_init(b[:])
	n, cerr := e.Out.Copyout(fb)
	if cerr != 0 {
		return 0, false, cerr
	}
	if n == 0 {
		return 0, false, 0
	}
	return b[0], true, 0
}

// blockReadAt copies up to len(dst) bytes from the block arena
// starting at offset.
func (e *Entry_t) blockReadAt(dst []byte, offset int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if offset >= len(e.block) {
		return 0
	}
	return copy(dst, e.block[offset:])
}

// blockWriteAt copies up to len(src) bytes into the block arena
// starting at offset.
func (e *Entry_t) blockWriteAt(src []byte, offset int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if offset >= len(e.block) {
		return 0
	}
	return copy(e.block[offset:], src)
}

// Devfs_t is the name-keyed device registry. Mirrors devfs_register's
// fixed-size entries array, generalized to a hashtable.Hashtable_t
// keyed by name instead of a linear scan over DEVFS_MAXDEVS slots.
type Devfs_t struct {
	ht     *hashtable.Hashtable_t
	mem    mem.Page_i
	zone   mem.Zone
	domain int
}

// New creates an empty device registry backing its ring buffers with
// pages from m/zone/domain.
func New(m mem.Page_i, zone mem.Zone, domain int) *Devfs_t {
	return &Devfs_t{ht: hashtable.MkHash(64), mem: m, zone: zone, domain: domain}
}

// Register creates and records a new device under name, owned by
// owner. Mirrors devfs_register, returning defs.Exists in place of the
// original's linear duplicate-name scan (the hashtable already
// rejects a duplicate key).
func (d *Devfs_t) Register(name string, kind DevKind, owner *proc.Proc_t) (*Entry_t, defs.Err_t) {
	if kind != Char && kind != Block {
		return nil, defs.Invalid
	}
	e := &Entry_t{Name: name, Kind: kind, Owner: owner}
	if kind == Char {
		e.In.Cb_init(BufSize, d.mem, d.zone, d.domain)
		e.Out.Cb_init(BufSize, d.mem, d.zone, d.domain)
	} else {
		pg, ok := d.mem.Alloc(0, d.zone, d.domain)
		if !ok {
			return nil, defs.OutOfMemory
		}
		e.blockPg = pg
		e.block = d.mem.Dmap8(pg)[:BufSize]
	}
	if _, inserted := d.ht.Set(name, e); !inserted {
		return nil, defs.Exists
	}
	return e, 0
}

// Unregister removes name from the registry if owner is the
// registering process, releasing its backing pages. Mirrors
// devfs_unregister.
func (d *Devfs_t) Unregister(name string, owner *proc.Proc_t) defs.Err_t {
	v, ok := d.ht.Get(name)
	if !ok {
		return defs.NotFound
	}
	e := v.(*Entry_t)
	if e.Owner != owner {
		return defs.Invalid
	}
	d.ht.Del(name)
	if e.Kind == Char {
		e.In.Cb_release()
		e.Out.Cb_release()
	} else if e.block != nil {
		d.mem.Refdown(e.blockPg, d.zone, d.domain)
	}
	return 0
}

// Lookup finds a registered device by name. Mirrors devfs_lookup.
func (d *Devfs_t) Lookup(name string) (*Entry_t, bool) {
	v, ok := d.ht.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*Entry_t), true
}

// MsgType distinguishes the kinds of out-of-band messages a driver
// process can deliver to a device, mirroring original_source's msg_t
// and its MSG_BYTE variant.
type MsgType int

const (
	// MsgByte delivers a single byte into the device's input buffer,
	// the same effect as Entry_t.Putc but routed through the message
	// path rather than called directly.
	MsgByte MsgType = iota
)

// Msg_t is one message handed off to RecvMsg. Resume, if non-nil,
// mirrors oommsg.Oommsg_t's request/resume channel pattern: RecvMsg
// sends the delivery result on it before returning, letting a caller
// that wants a synchronous handshake block on the channel instead of
// the return value.
type Msg_t struct {
	Type   MsgType
	Byte   byte
	Resume chan defs.Err_t
}

// RecvMsg delivers m to the device named name on behalf of proc.
// Mirrors devfs_recv_msg's owner check and dispatch; original_source's
// own switch on msg->type leaves MSG_BYTE as an unreachable break that
// falls into the function's unconditional "return -1" — here MSG_BYTE
// actually reaches Putc instead of being silently dropped.
func (d *Devfs_t) RecvMsg(name string, p *proc.Proc_t, m Msg_t) defs.Err_t {
	e, ok := d.Lookup(name)
	if !ok {
		return defs.NotFound
	}
	if p != e.Owner {
		return defs.Invalid
	}
	var err defs.Err_t
	switch m.Type {
	case MsgByte:
		err = e.Putc(p, m.Byte)
	default:
		err = defs.Invalid
	}
	if m.Resume != nil {
		m.Resume <- err
	}
	return err
}

// charFdops_t is the user-facing Fdops_i for an open device. Read
// drains In and Write fills Out for a Char device; Block devices use
// the shared arena at off. The open mode is not recorded here: like
// original_source's devfs_read/devfs_write, the direction is chosen by
// the operation called and the device type, not by the open mode.
type charFdops_t struct {
	entry *Entry_t
	fd    *fd.Fd_t
	proc  *proc.Proc_t
	off   int /// current offset, Block devices only
}

// Open creates an Fd_t bound to entry on behalf of p. perms follows
// fd.FD_READ/fd.FD_WRITE; a reader is registered on the entry so a
// later driver Putc/DriverWrite can wake it.
func Open(e *Entry_t, perms int, p *proc.Proc_t) *fd.Fd_t {
	ops := &charFdops_t{entry: e, proc: p}
	f := fd.Mkfd(ops, perms, e)
	ops.fd = f
	if perms&fd.FD_READ != 0 {
		e.addReader(f, p)
	}
	return f
}

// Read drains the input buffer for a Char device, or copies from the
// block arena at the descriptor's current offset for a Block device.
// An empty input buffer returns (0, 0) rather than blocking here —
// mirrors devfs_read's loop condition, with the block-enqueue-and-
// switch half of that loop left to the syscall layer, which owns the
// task's blocking list and the scheduler.
func (c *charFdops_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if c.entry.Kind != Char {
		n, err := c.Pread(dst, c.off)
		c.off += n
		return n, err
	}
	return c.entry.In.Copyout(dst)
}

// Write fills the output buffer and wakes the driver's task for a
// Char device, or copies into the block arena at the descriptor's
// current offset for a Block device. A full output buffer returns
// (0, 0) immediately rather than blocking, matching the original's
// "FIXME: implement blocking here".
func (c *charFdops_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if c.entry.Kind != Char {
		n, err := c.Pwrite(src, c.off)
		c.off += n
		return n, err
	}
	n, err := c.entry.Out.Copyin(src)
	if err != 0 {
		return n, err
	}
	if n > 0 && c.entry.Owner != nil && c.entry.Owner.Task != nil {
		c.entry.Owner.Task.State = proc.Ready
	}
	return n, 0
}

// Pread reads from offset without touching the descriptor's current
// offset. Only meaningful for a Block device; a Char device has no
// addressable position within its ring buffers.
func (c *charFdops_t) Pread(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	if c.entry.Kind != Block {
		return c.Read(dst)
	}
	buf := make([]byte, dst.Remain())
	n := c.entry.blockReadAt(buf, offset)
	wrote, err := dst.Uiowrite(buf[:n])
	return wrote, err
}

// Pwrite writes at offset without touching the descriptor's current
// offset. Only meaningful for a Block device.
func (c *charFdops_t) Pwrite(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	if c.entry.Kind != Block {
		return c.Write(src)
	}
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	wrote := c.entry.blockWriteAt(buf[:n], offset)
	return wrote, 0
}

func (c *charFdops_t) Reopen() defs.Err_t {
	if c.fd != nil && c.fd.Perms&fd.FD_READ != 0 {
		c.entry.addReader(c.fd, c.proc)
	}
	return 0
}

func (c *charFdops_t) Close() defs.Err_t {
	c.entry.dropReader(c.fd)
	return 0
}

// Poll reports readability when the input buffer has data and
// writability when the output buffer is not full. A Block device's
// flat arena is always ready in both directions.
func (c *charFdops_t) Poll(pm fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	var ready fdops.Ready_t
	if c.entry.Kind == Block {
		return pm.Events & (fdops.R_READ | fdops.R_WRITE), 0
	}
	if pm.Events&fdops.R_READ != 0 && !c.entry.In.Empty() {
		ready |= fdops.R_READ
	}
	if pm.Events&fdops.R_WRITE != 0 && !c.entry.Out.Full() {
		ready |= fdops.R_WRITE
	}
	return ready, 0
}
