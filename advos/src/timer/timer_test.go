package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"proc"
)

func mkProc() *proc.Proc_t {
	return &proc.Proc_t{Task: &proc.Task_t{State: proc.Running}}
}

func TestSleepComputesTargetJiffyAndBlocks(t *testing.T) {
	tm := New()
	p := mkProc()
	fire := tm.Sleep(p, 200*time.Millisecond)
	require.Equal(t, int64(20), fire)
	require.Equal(t, proc.Blocked, p.Task.State)
}

func TestTickWakesExactlyAtTargetJiffy(t *testing.T) {
	tm := New()
	p := mkProc()
	tm.Sleep(p, 200*time.Millisecond)

	for i := 0; i < 19; i++ {
		woke := tm.Tick()
		require.Empty(t, woke)
		require.Equal(t, proc.Blocked, p.Task.State)
	}
	woke := tm.Tick()
	require.Equal(t, []*proc.Proc_t{p}, woke)
	require.Equal(t, proc.Ready, p.Task.State)
}

func TestTickOrdersMultipleSleepersByJiffy(t *testing.T) {
	tm := New()
	late := mkProc()
	early := mkProc()
	tm.Sleep(late, 300*time.Millisecond)
	tm.Sleep(early, 100*time.Millisecond)

	var woke []*proc.Proc_t
	for i := 0; i < 30; i++ {
		woke = append(woke, tm.Tick()...)
	}
	require.Equal(t, []*proc.Proc_t{early, late}, woke)
}

func TestRemainingBeforeAndAfterFire(t *testing.T) {
	tm := New()
	p := mkProc()
	fire := tm.Sleep(p, 200*time.Millisecond)

	for i := 0; i < 5; i++ {
		tm.Tick()
	}
	require.Equal(t, 150*time.Millisecond, tm.Remaining(fire))

	for i := 0; i < 20; i++ {
		tm.Tick()
	}
	require.Equal(t, time.Duration(0), tm.Remaining(fire))
}
