package devfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"fd"
	"fdops"
	"mem"
	"proc"
	"vm"
)

func freshDevfs(t *testing.T) *Devfs_t {
	phys := mem.Phys_init(8, 1)
	phys.AddRegion(mem.ZoneKernel, 0, 0, 8)
	return New(phys, mem.ZoneKernel, 0)
}

func mkProc() *proc.Proc_t {
	return &proc.Proc_t{Task: &proc.Task_t{State: proc.Running}}
}

func TestRegisterLookupUnregister(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()

	e, err := d.Register("console", Char, owner)
	require.Zero(t, err)
	require.NotNil(t, e)

	got, ok := d.Lookup("console")
	require.True(t, ok)
	require.Same(t, e, got)

	_, err = d.Register("console", Char, owner)
	require.Equal(t, defs.Exists, err)

	require.Equal(t, defs.Invalid, d.Unregister("console", mkProc()))
	require.Zero(t, d.Unregister("console", owner))

	_, ok = d.Lookup("console")
	require.False(t, ok)
}

func TestDriverOpsRejectNonOwner(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	e, _ := d.Register("ttyS0", Char, owner)

	stranger := mkProc()
	require.Equal(t, defs.Invalid, e.Putc(stranger, 'x'))
	_, err := e.DriverWrite(stranger, []byte("hi"))
	require.Equal(t, defs.Invalid, err)
	_, _, err = e.DriverGetc(stranger)
	require.Equal(t, defs.Invalid, err)
}

func TestDriverPutcWakesBlockedReader(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	e, _ := d.Register("ttyS0", Char, owner)

	reader := mkProc()
	f := Open(e, fd.FD_READ, reader)
	reader.Task.State = proc.Blocked
	f.Block(1)

	require.Zero(t, e.Putc(owner, 'x'))
	require.Equal(t, proc.Ready, reader.Task.State)
	require.False(t, f.HasBlocked())

	dst := &vm.Fakeubuf_t{}
	buf := make([]byte, 1)
	dst.Fake_init(buf)
	n, err := f.Fops.Read(dst)
	require.Zero(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte('x'), buf[0])
}

func TestUserWriteWakesDriverTask(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	owner.Task.State = proc.Blocked
	e, _ := d.Register("ttyS0", Char, owner)

	writer := mkProc()
	f := Open(e, fd.FD_WRITE, writer)

	src := &vm.Fakeubuf_t{}
	src.Fake_init([]byte("hi"))
	n, err := f.Fops.Write(src)
	require.Zero(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, proc.Ready, owner.Task.State)

	c, ok, err := e.DriverGetc(owner)
	require.Zero(t, err)
	require.True(t, ok)
	require.Equal(t, byte('h'), c)
}

func TestPollReportsReadWriteReadiness(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	e, _ := d.Register("ttyS0", Char, owner)
	reader := mkProc()
	f := Open(e, fd.FD_READ, reader)

	ready, err := f.Fops.Poll(fdops.Pollmsg_t{Events: fdops.R_READ | fdops.R_WRITE})
	require.Zero(t, err)
	require.Equal(t, fdops.R_WRITE, ready)

	require.Zero(t, e.Putc(owner, 'z'))
	ready, _ = f.Fops.Poll(fdops.Pollmsg_t{Events: fdops.R_READ | fdops.R_WRITE})
	require.Equal(t, fdops.R_READ|fdops.R_WRITE, ready)
}

func TestCloseDropsReader(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	e, _ := d.Register("ttyS0", Char, owner)
	reader := mkProc()
	f := Open(e, fd.FD_READ, reader)

	require.Len(t, e.readers, 1)
	require.Zero(t, f.Fops.Close())
	require.Len(t, e.readers, 0)
}

func TestBlockDevicePwriteThenPread(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	e, err := d.Register("ramdisk0", Block, owner)
	require.Zero(t, err)

	f := Open(e, fd.FD_READ|fd.FD_WRITE, mkProc())

	src := &vm.Fakeubuf_t{}
	src.Fake_init([]byte("blockdata"))
	n, werr := f.Fops.Pwrite(src, 100)
	require.Zero(t, werr)
	require.Equal(t, 9, n)

	buf := make([]byte, 9)
	dst := &vm.Fakeubuf_t{}
	dst.Fake_init(buf)
	n, rerr := f.Fops.Pread(dst, 100)
	require.Zero(t, rerr)
	require.Equal(t, 9, n)
	require.Equal(t, "blockdata", string(buf))
}

func TestBlockDeviceReadWriteAdvanceOffset(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	e, _ := d.Register("ramdisk1", Block, owner)
	f := Open(e, fd.FD_READ|fd.FD_WRITE, mkProc())

	src := &vm.Fakeubuf_t{}
	src.Fake_init([]byte("ab"))
	f.Fops.Write(src)
	src2 := &vm.Fakeubuf_t{}
	src2.Fake_init([]byte("cd"))
	f.Fops.Write(src2)

	buf := make([]byte, 4)
	dst := &vm.Fakeubuf_t{}
	dst.Fake_init(buf)
	n, err := f.Fops.Read(dst)
	require.Zero(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "abcd", string(buf))
}

func TestRecvMsgByteDeliversAndWakesReader(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	d.Register("ttyS0", Char, owner)

	reader := mkProc()
	e, _ := d.Lookup("ttyS0")
	f := Open(e, fd.FD_READ, reader)
	reader.Task.State = proc.Blocked
	f.Block(1)

	resume := make(chan defs.Err_t, 1)
	require.Zero(t, d.RecvMsg("ttyS0", owner, Msg_t{Type: MsgByte, Byte: 'q', Resume: resume}))
	require.Zero(t, <-resume)
	require.Equal(t, proc.Ready, reader.Task.State)
}

func TestRecvMsgRejectsNonOwnerAndUnknownDevice(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	d.Register("ttyS0", Char, owner)

	require.Equal(t, defs.NotFound, d.RecvMsg("nope", owner, Msg_t{Type: MsgByte}))
	require.Equal(t, defs.Invalid, d.RecvMsg("ttyS0", mkProc(), Msg_t{Type: MsgByte}))
}

func TestBlockDevicePollAlwaysReady(t *testing.T) {
	d := freshDevfs(t)
	owner := mkProc()
	e, _ := d.Register("ramdisk2", Block, owner)
	f := Open(e, fd.FD_READ|fd.FD_WRITE, mkProc())

	ready, err := f.Fops.Poll(fdops.Pollmsg_t{Events: fdops.R_READ | fdops.R_WRITE})
	require.Zero(t, err)
	require.Equal(t, fdops.R_READ|fdops.R_WRITE, ready)
}
