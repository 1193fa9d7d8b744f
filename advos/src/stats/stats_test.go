package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounterIncrements(t *testing.T) {
	var c Counter_t
	c.Inc()
	c.Inc()
	require.EqualValues(t, 2, c)
}

func TestCyclesAddsElapsed(t *testing.T) {
	var c Cycles_t
	start := Rdtsc()
	c.Add(start)
	require.True(t, int64(c) >= 0)
}

func TestStats2StringRendersCounterAndCyclesFields(t *testing.T) {
	type sample struct {
		Reads  Counter_t
		Writes Cycles_t
	}
	s := sample{}
	s.Reads.Inc()
	out := Stats2String(s)
	require.Contains(t, out, "Reads: 1")
}

func TestPromCounterMirrorsGaugeValue(t *testing.T) {
	pc := NewPromCounter("advos_test_counter_inc", "test counter")
	pc.Inc()
	pc.Inc()
	pc.Inc()
	require.EqualValues(t, 3, pc.Counter_t)
}

func TestPromCyclesMirrorsGaugeValue(t *testing.T) {
	pc := NewPromCycles("advos_test_cycles_add", "test cycles")
	start := Rdtsc()
	pc.Add(start)
	require.True(t, int64(pc.Cycles_t) >= 0)
}

func TestPromCounterSetOverwritesAndMirrorsGauge(t *testing.T) {
	pc := NewPromCounter("advos_test_counter_set", "test gauge-like counter")
	pc.Set(42)
	require.EqualValues(t, 42, pc.Counter_t)
	pc.Set(7)
	require.EqualValues(t, 7, pc.Counter_t)
}
