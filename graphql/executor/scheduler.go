/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package executor

import (
	"context"
	"sync"
)

// TaskId identifies a task registered with a Scheduler, in registration order.
type TaskId int64

// BranchId identifies a defer branch tracked by a Scheduler (4.3, 4.5). SystemBranch is exempt from
// completion tracking and is used for bookkeeping tasks that do not belong to the response tree.
type BranchId int32

// SystemBranch is the branch id used for tasks the scheduler must run but that the defer
// coordinator never awaits completion of.
const SystemBranch BranchId = -1

// MainBranch is the branch id reserved for the operation's initial (non-deferred) response tree, so
// the executor can await its completion the same way it awaits any forked branch (4.5).
const MainBranch BranchId = 0

// Task is one unit of scheduler work: resolving a field, running a no-op root placeholder, or any
// other scheduler-visible step. ExecuteAsync must, whether synchronously before returning or
// asynchronously from a goroutine it starts, call the given Scheduler's Complete exactly once with
// itself.
type Task interface {
	// TaskId returns the id assigned by the scheduler at registration, or the zero value before
	// registration.
	TaskId() TaskId

	// SetTaskId is called once by the scheduler at registration.
	SetTaskId(id TaskId)

	// BranchId is the defer branch this task belongs to, or SystemBranch.
	BranchId() BranchId

	// IsSerial forces document-order execution: no other task may run while a Serial task is running.
	IsSerial() bool

	// IsDeferred reports whether this task belongs to a deferred branch rather than the initial
	// response, determining which of the scheduler's two stacks it is pushed onto.
	IsDeferred() bool

	// ExecuteAsync runs the task body. ctx carries the request-scoped cancellation token.
	ExecuteAsync(ctx context.Context, scheduler *Scheduler)
}

// branchState tracks one branch's in-flight task count and completion signal (4.3 "Branch
// tracking").
type branchState struct {
	inFlight int
	done     chan struct{}
	closed   bool
}

// Scheduler is a cooperative, single-threaded dispatcher over a pair of LIFO stacks: an immediate
// stack for Default/Pure tasks and a deferred stack for tasks belonging to a deferred branch, plus a
// dedicated serial stack that preserves document order for Serial tasks (4.3). Registration is safe
// for concurrent callers (resolvers may complete from their own goroutines and register follow-on
// tasks); the run loop itself is driven by a single goroutine.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	immediate []Task
	deferred  []Task
	serial    []Task

	nextTaskId TaskId
	branches   map[BranchId]*branchState

	// runningSerial is true while a Serial task is executing; the serial-lane rule forbids starting
	// any other task until it completes.
	runningSerial bool

	// inFlightSteps counts tasks that have been popped from a stack and handed to ExecuteAsync but
	// have not yet called Complete; the loop exits once every stack is empty and this reaches zero.
	inFlightSteps int

	// dispatcherTick, when set, is invoked once per iteration of the run loop between task steps so
	// the batch dispatcher (C7) can make progress (4.3 "the loop lets the batch dispatcher make
	// progress").
	dispatcherTick func()
}

// NewScheduler creates an empty Scheduler. dispatcherTick may be nil.
func NewScheduler(dispatcherTick func()) *Scheduler {
	s := &Scheduler{
		branches:       map[BranchId]*branchState{},
		dispatcherTick: dispatcherTick,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// branchLocked returns (creating if necessary) the branchState for id; callers must hold s.mu.
// SystemBranch is exempt from tracking and never allocates an entry.
func (s *Scheduler) branchLocked(id BranchId) *branchState {
	if id == SystemBranch {
		return nil
	}
	b, ok := s.branches[id]
	if !ok {
		b = &branchState{done: make(chan struct{})}
		s.branches[id] = b
	}
	return b
}

// Register pushes task onto the stack matching its kind, assigns it a TaskId, increments its
// branch's in-flight counter, and wakes the run loop (4.3).
func (s *Scheduler) Register(task Task) TaskId {
	s.mu.Lock()
	id := s.nextID()
	task.SetTaskId(id)
	s.pushLocked(task)
	s.cond.Signal()
	s.mu.Unlock()
	return id
}

// RegisterSpan registers a slice of tasks as one atomic batch, in order, so the stack ends up with
// the first task of the span on top (i.e. it will be popped first, preserving the span's own
// relative document order against itself while still being LIFO against tasks registered earlier).
func (s *Scheduler) RegisterSpan(tasks []Task) []TaskId {
	ids := make([]TaskId, len(tasks))
	s.mu.Lock()
	for i := len(tasks) - 1; i >= 0; i-- {
		id := s.nextID()
		tasks[i].SetTaskId(id)
		ids[i] = id
		s.pushLocked(tasks[i])
	}
	s.cond.Signal()
	s.mu.Unlock()
	return ids
}

// nextID allocates the next TaskId; callers must hold s.mu.
func (s *Scheduler) nextID() TaskId {
	id := s.nextTaskId
	s.nextTaskId++
	return id
}

// pushLocked pushes task onto the appropriate stack and bumps its branch counter; callers must hold
// s.mu.
func (s *Scheduler) pushLocked(task Task) {
	if b := s.branchLocked(task.BranchId()); b != nil {
		b.inFlight++
	}
	switch {
	case task.IsSerial():
		s.serial = append(s.serial, task)
	case task.IsDeferred():
		s.deferred = append(s.deferred, task)
	default:
		s.immediate = append(s.immediate, task)
	}
}

// Complete decrements task's branch in-flight counter and, when the branch reaches zero, closes its
// completion channel, then wakes the run loop so it can notice the step finished (4.3 "Complete").
// If task is the serial task currently occupying the serial lane, Complete is what actually releases
// it — not the return of ExecuteAsync, since a task may run asynchronously and call Complete from a
// goroutine well after ExecuteAsync itself returns.
func (s *Scheduler) Complete(task Task) {
	s.mu.Lock()
	if b := s.branches[task.BranchId()]; b != nil {
		b.inFlight--
		if b.inFlight == 0 && !b.closed {
			b.closed = true
			close(b.done)
		}
	}
	if task.IsSerial() {
		s.runningSerial = false
	}
	s.inFlightSteps--
	s.cond.Broadcast()
	s.mu.Unlock()
}

// WaitForCompletionAsync returns a channel that closes once branchId's in-flight task count reaches
// zero, or immediately (already-closed channel) for SystemBranch. For an id with no tasks registered
// yet the channel stays open until tasks are registered under it and all of them complete.
func (s *Scheduler) WaitForCompletionAsync(branchId BranchId) <-chan struct{} {
	if branchId == SystemBranch {
		done := make(chan struct{})
		close(done)
		return done
	}
	s.mu.Lock()
	b := s.branchLocked(branchId)
	s.mu.Unlock()
	return b.done
}

// popNextLocked pops the next task to run honouring the serial-lane rule: a pending serial task may
// only start once no task is currently running, and once a serial task has started, it alone runs
// until it completes. Callers must hold s.mu.
func (s *Scheduler) popNextLocked() Task {
	if s.runningSerial {
		return nil
	}
	if n := len(s.serial); n > 0 && s.inFlightSteps == 0 {
		task := s.serial[n-1]
		s.serial = s.serial[:n-1]
		s.runningSerial = true
		return task
	}
	// A non-serial step outstanding does not block immediate/deferred tasks from running concurrently
	// with it; only a pending serial task waits for the floor to clear (handled above).
	if n := len(s.immediate); n > 0 {
		task := s.immediate[n-1]
		s.immediate = s.immediate[:n-1]
		return task
	}
	if n := len(s.deferred); n > 0 {
		task := s.deferred[n-1]
		s.deferred = s.deferred[:n-1]
		return task
	}
	return nil
}

// idleLocked reports whether the scheduler has nothing left to do: empty stacks and no outstanding
// step. Callers must hold s.mu.
func (s *Scheduler) idleLocked() bool {
	return len(s.immediate) == 0 && len(s.deferred) == 0 && len(s.serial) == 0 && s.inFlightSteps == 0
}

// Run drives the scheduler's main loop until every registered task has completed and no further
// tasks are registered, or ctx is cancelled. Run is typically started once per request on its own
// goroutine; resolvers registering follow-on tasks from other goroutines is what keeps the loop fed.
func (s *Scheduler) Run(ctx context.Context) {
	// sync.Cond.Wait does not observe context cancellation on its own; a watcher goroutine broadcasts
	// so a blocked Run wakes up promptly when ctx is cancelled.
	stopWatcher := make(chan struct{})
	defer close(stopWatcher)
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-stopWatcher:
		}
	}()

	for {
		s.mu.Lock()
		for {
			if err := ctx.Err(); err != nil {
				s.mu.Unlock()
				return
			}
			if task := s.popNextLocked(); task != nil {
				s.inFlightSteps++
				s.mu.Unlock()
				task.ExecuteAsync(ctx, s)
				if tick := s.dispatcherTick; tick != nil {
					tick()
				}
				s.mu.Lock()
				continue
			}
			if s.idleLocked() {
				s.mu.Unlock()
				return
			}
			// Nothing runnable right now (e.g. only a serial task is pending while another task is
			// in flight, or every stack is empty but a step is outstanding); wait to be signalled by
			// Register or Complete.
			s.cond.Wait()
		}
	}
}
