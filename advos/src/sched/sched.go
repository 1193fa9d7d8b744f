// Package sched implements the cooperative round-robin scheduler
// (spec.md §4.5).
//
// Grounded on original_source/src/kernel/sched.c's sched_schedule
// (scan every process slot, push tasks in TASK_CREATED/TASK_READY
// state onto the run queue with a fresh credit of 10) and proc.h's
// task_t.next intrusive run-queue link, which proc.Task_t carries
// over unchanged. There is one global run queue shared by every CPU,
// guarded by a single mutex, matching spec.md §4.5's "single run
// queue per CPU" read together with §4.6's note that access to it is
// serialized by the task manager's lock.
package sched

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"proc"
	"timer"
)

// tickNanos is the wall-clock duration of one timer tick at timer.HZ,
// used to accumulate each task's user time as it consumes ticks.
const tickNanos = int(time.Second / timer.HZ)

// Sched_t is the system-wide scheduler: one run queue plus a current-
// task and idle-task slot per CPU.
type Sched_t struct {
	mu      chan struct{} // binary semaphore; see lock/unlock below
	runq    *proc.Task_t
	current []*proc.Task_t
	idle    []*proc.Task_t
}

// New creates a scheduler for ncpus CPUs, each initially idling.
func New(ncpus int) *Sched_t {
	s := &Sched_t{
		mu:      make(chan struct{}, 1),
		current: make([]*proc.Task_t, ncpus),
		idle:    make([]*proc.Task_t, ncpus),
	}
	s.mu <- struct{}{}
	return s
}

func (s *Sched_t) lock()   { <-s.mu }
func (s *Sched_t) unlock() { s.mu <- struct{}{} }

// SetIdle installs t as the task CPU cpu runs when the run queue is
// empty.
func (s *Sched_t) SetIdle(cpu int, t *proc.Task_t) {
	s.idle[cpu] = t
}

// Current returns the task presently assigned to cpu, or nil before
// the first tick.
func (s *Sched_t) Current(cpu int) *proc.Task_t {
	s.lock()
	defer s.unlock()
	return s.current[cpu]
}

func (s *Sched_t) push(t *proc.Task_t) {
	t.Credit = 10
	t.State = proc.Ready
	pp := &s.runq
	for *pp != nil {
		if *pp == t {
			return
		}
		pp = &(*pp).Next
	}
	t.Next = nil
	*pp = t
}

func (s *Sched_t) pop() *proc.Task_t {
	t := s.runq
	if t != nil {
		s.runq = t.Next
		t.Next = nil
	}
	return t
}

// Enqueue adds t to the run queue, replenishing its quantum. Mirrors
// sched_schedule's per-task push for a task newly in Created or Ready
// state.
func (s *Sched_t) Enqueue(t *proc.Task_t) {
	s.lock()
	defer s.unlock()
	s.push(t)
}

// Refill scans procs and enqueues every task currently Created or
// Ready, mirroring sched_schedule's full rescan of g_kvar->procs.
func (s *Sched_t) Refill(procs []*proc.Proc_t) {
	s.lock()
	defer s.unlock()
	for _, p := range procs {
		if p == nil || p.Task == nil {
			continue
		}
		if p.Task.State == proc.Created || p.Task.State == proc.Ready {
			s.push(p.Task)
		}
	}
}

// schedNext picks the next task to run on cpu: the head of the run
// queue, or cpu's idle task if the queue is empty. Caller holds the
// lock.
func (s *Sched_t) schedNext(cpu int) *proc.Task_t {
	next := s.pop()
	if next == nil {
		next = s.idle[cpu]
	} else {
		next.State = proc.Running
	}
	s.current[cpu] = next
	return next
}

// Tick advances cpu's current task by one timer tick (spec.md §4.5
// step 2): its credit decrements, and if it reaches zero — or the
// task has blocked or terminated in the meantime — the next Ready
// task is chosen round-robin. Returns the task cpu should now run.
func (s *Sched_t) Tick(cpu int) *proc.Task_t {
	s.lock()
	defer s.unlock()
	cur := s.current[cpu]
	if cur != nil && cur.State == proc.Running {
		cur.Accnt.Utadd(tickNanos)
		cur.Credit--
		if cur.Credit > 0 {
			return cur
		}
		s.push(cur)
	}
	return s.schedNext(cpu)
}

// Yield voluntarily gives up cpu before the task's quantum expires
// (spec.md §4.6's explicit task_switch suspension point).
func (s *Sched_t) Yield(cpu int) *proc.Task_t {
	s.lock()
	defer s.unlock()
	cur := s.current[cpu]
	next := s.schedNext(cpu)
	if cur != nil && cur.State == proc.Running && cur != next {
		s.push(cur)
	}
	return next
}

// Block removes cpu's current task from scheduling because it has
// attached to a file descriptor's or timer's wait list (spec.md
// §4.5's blocking path); the caller is responsible for having already
// set the task's state to Blocked.
func (s *Sched_t) Block(cpu int) *proc.Task_t {
	s.lock()
	defer s.unlock()
	return s.schedNext(cpu)
}

// RunCPUs drives one tick-consuming goroutine per CPU until ctx is
// canceled or ticks closes, fanning them out with an errgroup the way
// Biscuit starts one goroutine per simulated CPU at boot.
func (s *Sched_t) RunCPUs(ctx context.Context, ticks <-chan int) error {
	g, gctx := errgroup.WithContext(ctx)
	for cpu := range s.current {
		cpu := cpu
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case _, ok := <-ticks:
					if !ok {
						return nil
					}
					s.Tick(cpu)
				}
			}
		})
	}
	return g.Wait()
}
