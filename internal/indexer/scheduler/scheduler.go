// Package scheduler abstracts how long-running index construction is
// sliced into bounded units of work. A Task performs one unit and reports
// whether more remains; a Scheduler keeps invoking it until it reports done
// and then calls the completion callback exactly once.
package scheduler

import (
	"runtime"
	"sync"
	"time"
)

// Task runs one bounded unit of work. It returns true while work remains.
type Task func() (more bool)

// Scheduler runs a Task to completion and then calls done.
type Scheduler interface {
	Schedule(task Task, done func())
}

// Immediate runs every unit synchronously on the caller's goroutine. It is
// the scheduler used by tests and by tools that want a finished index
// before continuing.
type Immediate struct{}

func (Immediate) Schedule(task Task, done func()) {
	for task() {
	}
	if done != nil {
		done()
	}
}

// Background runs units on a dedicated goroutine, pausing Interval between
// them so query traffic is not starved while a large corpus indexes. A zero
// Interval only yields the processor.
type Background struct {
	Interval time.Duration
}

func (b Background) Schedule(task Task, done func()) {
	go func() {
		for task() {
			if b.Interval > 0 {
				time.Sleep(b.Interval)
			} else {
				runtime.Gosched()
			}
		}
		if done != nil {
			done()
		}
	}()
}

// Stepper queues work until the host drives it with Step or Drain. It fits
// hosts with their own event loop and lets tests observe a build midway.
type Stepper struct {
	mu    sync.Mutex
	queue []job
}

type job struct {
	task Task
	done func()
}

func (s *Stepper) Schedule(task Task, done func()) {
	s.mu.Lock()
	s.queue = append(s.queue, job{task: task, done: done})
	s.mu.Unlock()
}

// Step runs one unit of the oldest pending task. It reports false when
// nothing was pending.
func (s *Stepper) Step() bool {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	j := s.queue[0]
	s.mu.Unlock()

	if j.task() {
		return true
	}

	s.mu.Lock()
	s.queue = s.queue[1:]
	s.mu.Unlock()
	if j.done != nil {
		j.done()
	}
	return true
}

// Drain steps until every queued task has completed, including tasks
// scheduled by completion callbacks.
func (s *Stepper) Drain() {
	for s.Step() {
	}
}

// Pending returns the number of tasks not yet completed.
func (s *Stepper) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
