// Package stats holds the kernel's lightweight statistics counters:
// plain event counts (Counter_t) and elapsed-time accumulators
// (Cycles_t), both toggled off by Stats/Timing so instrumented call
// sites cost nothing when disabled.
//
// Carried from Biscuit's stats/stats.go almost unchanged, with one
// forced adaptation: the original's Rdtsc reads the x86 timestamp
// counter through runtime.Rdtsc, a hook Biscuit's own forked Go
// runtime adds — it does not exist in an unmodified toolchain and no
// library in the retrieval pack supplies a cycle-counter equivalent,
// so Cycles_t now accumulates wall-clock nanoseconds via time.Now
// instead of CPU cycles. PromCounter/PromCycles additionally mirror a
// counter's value into a github.com/prometheus/client_golang gauge
// (grounded on ffromani-dra-driver-memory's use of the same library,
// there via promhttp.Handler() against the default registry), so the
// devfs /dev/stat device named in the ambient metrics design can be
// scraped the same way it is read as text.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
)

const Stats = true
const Timing = true

var Nirqs [100]int
var Irqs int

// Rdtsc returns the current time in nanoseconds when timing is
// enabled. Stands in for the original's CPU cycle count (see package
// doc) — call sites only ever use the difference between two readings,
// so a monotonic nanosecond clock preserves the same "elapsed work"
// sense a cycle count (unavailable here) was trying to give.
func Rdtsc() uint64 {
	if Timing {
		return uint64(time.Now().UnixNano())
	}
	return 0
}

// Counter_t is a statistical counter.
type Counter_t int64

// Cycles_t holds an elapsed-nanosecond accumulator.
type Cycles_t int64

// Inc increments the counter.
func (c *Counter_t) Inc() {
	if Stats {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, 1)
	}
}

// Add adds elapsed nanoseconds since m (an Rdtsc reading) to the
// accumulator.
func (c *Cycles_t) Add(m uint64) {
	if Timing {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, int64(Rdtsc()-m))
	}
}

// Stats2String converts a struct of counters to a printable string,
// one line per Counter_t/Cycles_t field found via reflection.
func Stats2String(st interface{}) string {
	if !Stats {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
		if strings.HasSuffix(t, "Cycles_t") {
			n := v.Field(i).Interface().(Cycles_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}

	}
	return s + "\n"
}

// PromCounter pairs a Counter_t with a prometheus gauge registered
// under the default registry, so every Inc is visible both via
// Stats2String's text rendering and a /metrics scrape.
type PromCounter struct {
	Counter_t
	gauge prometheus.Gauge
}

// NewPromCounter registers name/help as a gauge and returns a
// PromCounter backed by it. Registration failure (a duplicate name) is
// not fatal: the counter still works, it just stops mirroring into
// prometheus.
func NewPromCounter(name, help string) *PromCounter {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	if err := prometheus.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			g = are.ExistingCollector.(prometheus.Gauge)
		} else {
			g = nil
		}
	}
	return &PromCounter{gauge: g}
}

// Inc increments the counter and, if registration succeeded, sets the
// paired gauge to the counter's new value.
func (c *PromCounter) Inc() {
	c.Counter_t.Inc()
	if c.gauge != nil {
		c.gauge.Set(float64(int64(c.Counter_t)))
	}
}

// Set overwrites the counter to v and refreshes the paired gauge. For
// sampled point-in-time metrics (free page counts, run-queue length)
// rather than monotonic event counts, where Inc's always-plus-one
// shape does not fit.
func (c *PromCounter) Set(v int64) {
	n := (*int64)(unsafe.Pointer(&c.Counter_t))
	atomic.StoreInt64(n, v)
	if c.gauge != nil {
		c.gauge.Set(float64(v))
	}
}

// PromCycles pairs a Cycles_t with a prometheus gauge tracking the
// accumulated nanosecond total.
type PromCycles struct {
	Cycles_t
	gauge prometheus.Gauge
}

// NewPromCycles registers name/help as a gauge and returns a
// PromCycles backed by it.
func NewPromCycles(name, help string) *PromCycles {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	if err := prometheus.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			g = are.ExistingCollector.(prometheus.Gauge)
		} else {
			g = nil
		}
	}
	return &PromCycles{gauge: g}
}

// Add adds elapsed nanoseconds since m and refreshes the paired gauge.
func (c *PromCycles) Add(m uint64) {
	c.Cycles_t.Add(m)
	if c.gauge != nil {
		c.gauge.Set(float64(int64(c.Cycles_t)))
	}
}
