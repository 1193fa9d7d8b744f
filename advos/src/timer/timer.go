// Package timer implements the timer wheel that backs nanosleep
// (spec.md §4.5/§4.7).
//
// Grounded on original_source/src/kernel/syscall.c's sys_nanosleep
// (fire = rqtp.tv_sec*HZ + rqtp.tv_nsec*HZ/1e9 + jiffies, a
// kmem_slab_alloc'd timer_event_t inserted into g_kvar->timer at its
// sorted position) and spec.md §4.5 step 1 (the list head, if due, is
// popped and repeated until the head is in the future). The list is
// kept sorted ascending by target jiffy — the earliest wake-up is
// always the head — so a tick only ever costs as many pops as events
// are due, matching §4.5's "repeat until the head is in the future".
package timer

import (
	"sync"
	"time"

	"proc"
)

// HZ is the tick rate: one jiffy is 1/HZ of a second (spec.md §4.7).
const HZ = 100

// Event_t is one pending wake-up: fire at Jiffy, then ready Proc's
// task. Mirrors original_source's timer_event_t {jiffies, proc, next}.
type Event_t struct {
	Jiffy int64
	Proc  *proc.Proc_t
	Next  *Event_t
}

// Timer_t is the kernel-wide timer wheel: a jiffy counter plus the
// sorted event list.
type Timer_t struct {
	mu      sync.Mutex
	jiffies int64
	head    *Event_t
}

// New creates an empty timer wheel with the jiffy counter at zero.
func New() *Timer_t {
	return &Timer_t{}
}

// Now returns the current jiffy count.
func (tm *Timer_t) Now() int64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.jiffies
}

// Sleep computes the target jiffy for d from the current time, inserts
// a timer event for p, and marks p's task Blocked. Returns the target
// jiffy so the caller can later compute remaining time on early wake.
// Mirrors sys_nanosleep's fire computation and blocking.
func (tm *Timer_t) Sleep(p *proc.Proc_t, d time.Duration) int64 {
	ticks := int64(d * HZ / time.Second)
	tm.mu.Lock()
	fire := tm.jiffies + ticks
	tm.mu.Unlock()

	e := &Event_t{Jiffy: fire, Proc: p}
	tm.insert(e)
	if p.Task != nil {
		p.Task.State = proc.Blocked
	}
	return fire
}

func (tm *Timer_t) insert(e *Event_t) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	ep := &tm.head
	for *ep != nil && (*ep).Jiffy <= e.Jiffy {
		ep = &(*ep).Next
	}
	e.Next = *ep
	*ep = e
}

// Tick advances the jiffy counter by one and pops every event now due,
// returning the processes whose tasks should transition back to
// Ready. Mirrors spec.md §4.5 step 1.
func (tm *Timer_t) Tick() []*proc.Proc_t {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.jiffies++
	var woke []*proc.Proc_t
	for tm.head != nil && tm.head.Jiffy <= tm.jiffies {
		e := tm.head
		tm.head = e.Next
		if e.Proc.Task != nil {
			e.Proc.Task.State = proc.Ready
		}
		woke = append(woke, e.Proc)
	}
	return woke
}

// Remaining returns the time left until fire, or zero if it has
// already passed. Mirrors sys_nanosleep's rmtp computation on a
// signaled early wake.
func (tm *Timer_t) Remaining(fire int64) time.Duration {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if fire <= tm.jiffies {
		return 0
	}
	return time.Duration(fire-tm.jiffies) * (time.Second / HZ)
}
