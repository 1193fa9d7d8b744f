package scall

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"archops"
	"defs"
	"devfs"
	"fd"
	"fdops"
	"initramfs"
	"mem"
	"proc"
	"stat"
	"timer"
	"vm"
)

func freshVm(t *testing.T) *vm.Vm_t {
	phys := mem.Phys_init(1024, 1)
	phys.AddRegion(mem.ZoneKernel, 0, 0, 1024)
	arch := archops.NewSimarch()
	vmm, err := vm.New(arch, phys, mem.ZoneKernel, 0)
	require.Zero(t, err)
	vmm.AddBlock(0x1000, 0x100000)
	return vmm
}

func freshSys(t *testing.T) (*Sys_t, *proc.Table_t) {
	tbl := proc.NewTable()
	tm := timer.New()
	phys := mem.Phys_init(8, 1)
	phys.AddRegion(mem.ZoneKernel, 0, 0, 8)
	dfs := devfs.New(phys, mem.ZoneKernel, 0)
	return New(tbl, tm, nil, dfs), tbl
}

func TestExitMarksTerminatedAndRecordsStatus(t *testing.T) {
	s, tbl := freshSys(t)
	p := tbl.New("a", freshVm(t), nil)
	require.Zero(t, s.Exit(p, 7))
	require.Equal(t, proc.Terminated, p.Task.State)
	status, exited := p.Exited()
	require.True(t, exited)
	require.Equal(t, 7, status)
}

func TestForkReturnsChildWithCowVm(t *testing.T) {
	s, tbl := freshSys(t)
	parent := tbl.New("a", freshVm(t), nil)
	child, err := s.Fork(parent)
	require.Zero(t, err)
	require.NotEqual(t, parent.Pid, child.Pid)
	require.Equal(t, proc.Created, child.Task.State)
}

type nopOps struct{}

func (nopOps) Close() defs.Err_t                                    { return 0 }
func (nopOps) Read(dst fdops.Userio_i) (int, defs.Err_t)            { return 0, 0 }
func (nopOps) Write(src fdops.Userio_i) (int, defs.Err_t)           { return 0, 0 }
func (nopOps) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t)  { return 0, 0 }
func (nopOps) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) { return 0, 0 }
func (nopOps) Reopen() defs.Err_t                                   { return 0 }
func (nopOps) Poll(pm fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t)  { return 0, 0 }

type echoOps struct {
	written []byte
}

func (e *echoOps) Close() defs.Err_t                   { return 0 }
func (e *echoOps) Reopen() defs.Err_t                  { return 0 }
func (e *echoOps) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	return dst.Uiowrite([]byte("hi"))
}
func (e *echoOps) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	e.written = append(e.written, buf[:n]...)
	return n, err
}
func (e *echoOps) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t)  { return 0, 0 }
func (e *echoOps) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) { return 0, 0 }
func (e *echoOps) Poll(pm fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t)  { return 0, 0 }

func TestReadDelegatesToFdops(t *testing.T) {
	s, tbl := freshSys(t)
	p := tbl.New("a", freshVm(t), nil)
	f := fd.Mkfd(&echoOps{}, fd.FD_READ, nil)
	slot, err := p.AddFd(f)
	require.Zero(t, err)

	var ub vm.Fakeubuf_t
	buf := make([]byte, 2)
	ub.Fake_init(buf)
	n, rerr := s.Read(p, slot, &ub)
	require.Zero(t, rerr)
	require.Equal(t, 2, n)
	require.Equal(t, "hi", string(buf))
}

func TestWriteDelegatesToFdopsAndReadOnUnknownFdFails(t *testing.T) {
	s, tbl := freshSys(t)
	p := tbl.New("a", freshVm(t), nil)
	ops := &echoOps{}
	f := fd.Mkfd(ops, fd.FD_WRITE, nil)
	slot, err := p.AddFd(f)
	require.Zero(t, err)

	var ub vm.Fakeubuf_t
	ub.Fake_init([]byte("hey"))
	n, werr := s.Write(p, slot, &ub)
	require.Zero(t, werr)
	require.Equal(t, 3, n)
	require.Equal(t, "hey", string(ops.written))

	_, rerr := s.Read(p, slot+1, &ub)
	require.Equal(t, defs.NotFound, rerr)
}

func TestExecveOpenMmapMountFstatAreStubbed(t *testing.T) {
	s, tbl := freshSys(t)
	p := tbl.New("a", freshVm(t), nil)

	_, err := s.Execve(p, "/init", nil, nil)
	require.Equal(t, defs.Unsupported, err)

	_, err = s.Open(p, "/etc/passwd", 0)
	require.Equal(t, defs.Unsupported, err)

	_, err = s.Mmap(p, 0x4000, 0x1000, 0, 0, 0, 0)
	require.Equal(t, defs.Unsupported, err)

	require.Equal(t, defs.Unsupported, s.Mount(p, "/dev/sda", "/mnt", "advosfs", 0))

	var st stat.Stat_t
	require.Equal(t, defs.Unsupported, s.Fstat(p, 0, &st))
}

func TestNanosleepBlocksAndWakesNaturally(t *testing.T) {
	s, tbl := freshSys(t)
	p := tbl.New("a", freshVm(t), nil)
	p.Task.State = proc.Running

	fire := s.Nanosleep(p, 100*time.Millisecond)
	require.Equal(t, proc.Blocked, p.Task.State)

	for i := 0; i < 10; i++ {
		s.Timer.Tick()
	}
	rem, ok := s.NanosleepWake(p, fire)
	require.True(t, ok)
	require.Equal(t, time.Duration(0), rem)
}

func TestNanosleepSignaledWakeReportsRemaining(t *testing.T) {
	s, tbl := freshSys(t)
	p := tbl.New("a", freshVm(t), nil)
	p.Task.State = proc.Running

	fire := s.Nanosleep(p, 200*time.Millisecond)
	for i := 0; i < 5; i++ {
		s.Timer.Tick()
	}
	p.Task.Signaled = true
	rem, ok := s.NanosleepWake(p, fire)
	require.False(t, ok)
	require.Equal(t, 150*time.Millisecond, rem)
	require.False(t, p.Task.Signaled)
}

func buildInitramfs(t *testing.T, name string, data []byte) *initramfs.Fs_t {
	dir := make([]byte, initramfs.DirSize)
	rec := dir[:32]
	copy(rec[:15], name)
	binary.LittleEndian.PutUint64(rec[16:24], uint64(initramfs.DirSize))
	binary.LittleEndian.PutUint64(rec[24:32], uint64(len(data)))
	img := append(dir, data...)
	fs, err := initramfs.Parse(img)
	require.Zero(t, err)
	return fs
}

func TestInitexecLoadsFileIntoProcessImage(t *testing.T) {
	tbl := proc.NewTable()
	tm := timer.New()
	phys := mem.Phys_init(8, 1)
	phys.AddRegion(mem.ZoneKernel, 0, 0, 8)
	dfs := devfs.New(phys, mem.ZoneKernel, 0)
	payload := []byte("program-bytes")
	irfs := buildInitramfs(t, "init", payload)
	s := New(tbl, tm, irfs, dfs)

	p := tbl.New("a", freshVm(t), nil)
	require.Zero(t, s.Initexec(p, "init", 0x3000))
	require.Equal(t, uintptr(0x3000), p.CodeAddr)
	require.Equal(t, uintptr(len(payload)), p.CodeSize)
	require.Equal(t, proc.Ready, p.Task.State)

	got := make([]byte, len(payload))
	require.Zero(t, p.Vm.User2k(got, 0x3000))
	require.Equal(t, payload, got)
}

func TestInitexecMissingFileFails(t *testing.T) {
	s, tbl := freshSys(t)
	irfs := buildInitramfs(t, "init", []byte("x"))
	s.Initramfs = irfs
	p := tbl.New("a", freshVm(t), nil)
	require.Equal(t, defs.NotFound, s.Initexec(p, "missing", 0x3000))
}

func TestDriverRegisterDeviceAndPortIO(t *testing.T) {
	s, tbl := freshSys(t)
	p := tbl.New("a", freshVm(t), nil)

	_, err := s.Driver(p, DriverRegDev, DriverArgs_t{Name: "ttyS0", Kind: devfs.Char})
	require.Zero(t, err)
	_, ok := s.Devfs.Lookup("ttyS0")
	require.True(t, ok)

	_, err = s.Driver(p, DriverOut8, DriverArgs_t{Port: 0x3f8, Data: 0x41})
	require.Zero(t, err)
	v, err := s.Driver(p, DriverIn8, DriverArgs_t{Port: 0x3f8})
	require.Zero(t, err)
	require.EqualValues(t, 0x41, v)

	_, err = s.Driver(p, DriverOut32, DriverArgs_t{Port: 0x100, Data: 0xdeadbeef})
	require.Zero(t, err)
	v, err = s.Driver(p, DriverIn32, DriverArgs_t{Port: 0x100})
	require.Zero(t, err)
	require.EqualValues(t, 0xdeadbeef, v)

	_, err = s.Driver(p, DriverMunmap, DriverArgs_t{})
	require.Equal(t, defs.Unsupported, err)
}

func TestDispatchTableRoutesExitAndUnknownNr(t *testing.T) {
	s, tbl := freshSys(t)
	table := NewTable(s)
	p := tbl.New("a", freshVm(t), nil)

	_, err := table.Dispatch(s, p, SysExit, Args_t{Status: 3})
	require.Zero(t, err)
	require.Equal(t, proc.Terminated, p.Task.State)

	_, err = table.Dispatch(s, p, Nr(999), Args_t{})
	require.Equal(t, defs.Invalid, err)
}
