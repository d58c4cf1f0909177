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

package dataloader

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxBatchWaitTime bounds how long a batch may sit enqueued before the coordinator dispatches
// it regardless of quiescence, preventing starvation under continuous load.
const DefaultMaxBatchWaitTime = 50000 * time.Microsecond

// BatchStatus reports where an IBatch sits in the coordinator's lifecycle.
type BatchStatus int

const (
	BatchEnqueued BatchStatus = iota
	BatchDispatching
	BatchCompleted
)

// IBatch is the coordinator's view of a coalesced group of key lookups, satisfied by
// *taskQueue-backed adapters the DataLoader wraps for registration with a Coordinator (6, "Batch-
// dispatcher clients").
type IBatch interface {
	Size() int
	Status() BatchStatus
	ModifiedTimestamp() time.Time
	CreatedTimestamp() time.Time

	// Touch reports true once it has been called twice without an intervening modification,
	// signalling the batch has stopped growing and is a candidate for proactive dispatch.
	Touch() bool

	// DispatchAsync runs the batch's load and returns once it completes (or ctx is cancelled).
	DispatchAsync(ctx context.Context) error
}

// CoordinatorEvent is broadcast to Subscribe observers outside of the coordinator's lock, per 5
// ("Event broadcasts to subscribers happen outside locks").
type CoordinatorEvent struct {
	Kind  CoordinatorEventKind
	Batch IBatch
	Err   error
}

type CoordinatorEventKind int

const (
	CoordinatorStarted CoordinatorEventKind = iota
	Enqueued
	Evaluated
	Dispatched
	CoordinatorCompleted
)

// Observer receives CoordinatorEvents. Subscribe registrations are not thread-safe to remove
// individually; Dispose clears all observers.
type Observer func(CoordinatorEvent)

// batchHeap orders enqueued batches by ModifiedTimestamp, oldest first, so settled batches take
// dispatch priority over ones still accumulating keys (4.7, "Timing rationale").
type batchHeap []IBatch

func (h batchHeap) Len() int { return len(h) }
func (h batchHeap) Less(i, j int) bool {
	return h[i].ModifiedTimestamp().Before(h[j].ModifiedTimestamp())
}
func (h batchHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *batchHeap) Push(x interface{}) {
	*h = append(*h, x.(IBatch))
}
func (h *batchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Coordinator runs the single background driver described in 4.7: it drains Schedule'd batches into
// a ModifiedTimestamp-ordered priority queue, dispatches the ones that have gone quiet or grown
// stale, and tracks in-flight dispatches to report idle/active cycles to subscribers.
//
// One Coordinator is shared by every DataLoader in a process (grounded on Manager's one-registry-
// per-process pattern in manager.go); dispatches it runs execute concurrently with the executor's
// per-request Scheduler and communicate only through Schedule/DispatchAsync, never a shared mutable
// object, so the two never need to coordinate locks with each other.
type Coordinator struct {
	maxBatchWaitTime time.Duration

	// inFlightLimit bounds how many DispatchAsync calls the coordinator itself starts concurrently.
	// It must never block a dispatch that originates from inside another dispatch's resolver (a
	// "nested batch"), or the system deadlocks (4.7, "Nested-batch rule") — Schedule routes any such
	// nested batch straight to dispatchNested, which never touches sem; only the evaluate loop's own
	// top-level dispatch call acquires it.
	sem *semaphore.Weighted

	mu        sync.Mutex
	enqueued  []IBatch
	inFlight  int
	observers []Observer

	running bool
	wake    chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator creates a Coordinator with the given in-flight dispatch bound (minimum 1) and
// maxBatchWaitTime (DefaultMaxBatchWaitTime if zero).
func NewCoordinator(inFlightLimit int64, maxBatchWaitTime time.Duration) *Coordinator {
	if inFlightLimit < 1 {
		inFlightLimit = 1
	}
	if maxBatchWaitTime <= 0 {
		maxBatchWaitTime = DefaultMaxBatchWaitTime
	}
	return &Coordinator{
		maxBatchWaitTime: maxBatchWaitTime,
		sem:              semaphore.NewWeighted(inFlightLimit),
		wake:             make(chan struct{}, 1),
	}
}

// Schedule enqueues batch for evaluation and wakes the coordinator loop, starting it lazily on first
// use (4.7, "A single background driver, started lazily"). If ctx is one dispatch handed to a batch's
// DispatchAsync (i.e. batch was scheduled synchronously from within another batch's load — a nested
// batch, 4.7 "Nested-batch rule"), Schedule instead dispatches batch immediately, bypassing both the
// priority queue and the in-flight semaphore: the outer dispatch holding a semaphore slot may be
// blocked waiting on batch's result, so routing batch through the same bounded queue risks it waiting
// on a slot that can only free once batch itself completes.
func (c *Coordinator) Schedule(ctx context.Context, batch IBatch) {
	c.emit(CoordinatorEvent{Kind: Enqueued, Batch: batch})

	if isDispatching(ctx) {
		c.dispatchNested(ctx, batch)
		return
	}

	c.mu.Lock()
	c.enqueued = append(c.enqueued, batch)
	c.mu.Unlock()

	c.BeginDispatch(ctx)
	c.poke()
}

// dispatchingKey marks a context as having been passed to a batch's DispatchAsync, so a nested
// Schedule call reached synchronously from within that DispatchAsync can recognize itself as such.
type dispatchingKey struct{}

func withDispatching(ctx context.Context) context.Context {
	return context.WithValue(ctx, dispatchingKey{}, true)
}

func isDispatching(ctx context.Context) bool {
	nested, _ := ctx.Value(dispatchingKey{}).(bool)
	return nested
}

// BeginDispatch starts the coordinator's background loop if it is not already running. cancel's
// derived context governs the loop's lifetime; Dispose cancels it directly.
func (c *Coordinator) BeginDispatch(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.emit(CoordinatorEvent{Kind: CoordinatorStarted})
	go c.run(loopCtx)
}

// Subscribe registers observer to receive future CoordinatorEvents.
func (c *Coordinator) Subscribe(observer Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, observer)
	c.mu.Unlock()
}

// Dispose cancels the coordinator's loop and drains any batches still enqueued by dispatching them
// synchronously, so no scheduled work is silently dropped.
func (c *Coordinator) Dispose(ctx context.Context) {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	remaining := c.enqueued
	c.enqueued = nil
	c.mu.Unlock()

	for _, batch := range remaining {
		_ = batch.DispatchAsync(ctx)
	}

	c.emit(CoordinatorEvent{Kind: CoordinatorCompleted})
}

func (c *Coordinator) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) emit(evt CoordinatorEvent) {
	c.mu.Lock()
	observers := c.observers
	c.mu.Unlock()

	// Broadcasts happen outside the lock so an observer calling back into the coordinator (e.g.
	// Schedule from within a handler) cannot deadlock against it (5).
	for _, obs := range observers {
		obs(evt)
	}
}

// run is the coordinator's evaluation loop (4.7, "Coordinator loop").
func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	for {
		dispatchedAny := c.evaluate(ctx)

		if ctx.Err() != nil {
			c.mu.Lock()
			c.running = false
			empty := len(c.enqueued) == 0 && c.inFlight == 0
			c.mu.Unlock()
			if empty {
				return
			}
		}

		if dispatchedAny {
			continue
		}

		idle := time.NewTimer(10 * time.Millisecond)
		select {
		case <-c.wake:
			idle.Stop()
		case <-idle.C:
		case <-ctx.Done():
			idle.Stop()
			c.mu.Lock()
			empty := len(c.enqueued) == 0 && c.inFlight == 0
			c.mu.Unlock()
			if empty {
				return
			}
		}
	}
}

// evaluate runs one cycle: drain enqueued batches into a priority queue ordered by
// ModifiedTimestamp, then dispatch every batch that has quiesced (Touch returns true) or aged past
// maxBatchWaitTime. It returns whether any batch was dispatched.
func (c *Coordinator) evaluate(ctx context.Context) bool {
	c.mu.Lock()
	pending := c.enqueued
	c.enqueued = nil
	c.mu.Unlock()

	if len(pending) == 0 {
		return false
	}

	pq := make(batchHeap, 0, len(pending))
	for _, b := range pending {
		pq = append(pq, b)
	}
	heap.Init(&pq)

	var dispatchedAny bool
	var requeue []IBatch

	for pq.Len() > 0 {
		batch := heap.Pop(&pq).(IBatch)

		age := time.Since(batch.CreatedTimestamp())
		if batch.Touch() || age >= c.maxBatchWaitTime {
			c.dispatch(ctx, batch)
			dispatchedAny = true
		} else {
			requeue = append(requeue, batch)
		}
	}

	if len(requeue) > 0 {
		c.mu.Lock()
		c.enqueued = append(requeue, c.enqueued...)
		c.mu.Unlock()
	}

	c.emit(CoordinatorEvent{Kind: Evaluated})

	return dispatchedAny
}

// dispatch acquires a slot from sem (blocking the evaluate loop, never a resolver goroutine, until
// one frees) then runs batch like dispatchNested, releasing the slot once it completes. Only the
// coordinator's own evaluate loop calls this; a nested batch bypasses it entirely via Schedule's
// isDispatching check, since it must never wait on a slot a dispatch further up its own call stack is
// holding (4.7, "Nested-batch rule").
func (c *Coordinator) dispatch(ctx context.Context, batch IBatch) {
	_ = c.sem.Acquire(ctx, 1)
	c.runDispatch(ctx, batch, func() { c.sem.Release(1) })
}

// dispatchNested runs batch immediately, unbounded by sem, for a batch Schedule recognized as having
// been raised synchronously from within another batch's DispatchAsync.
func (c *Coordinator) dispatchNested(ctx context.Context, batch IBatch) {
	c.runDispatch(ctx, batch, func() {})
}

// runDispatch runs batch's DispatchAsync in its own goroutine, tracking inFlight and emitting
// Dispatched once it completes, then calls release (sem.Release for a top-level dispatch, a no-op for
// a nested one). The context handed to DispatchAsync is marked via withDispatching so Schedule can
// recognize any batch it raises synchronously as nested.
func (c *Coordinator) runDispatch(ctx context.Context, batch IBatch, release func()) {
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()

	dispatchCtx := withDispatching(ctx)

	go func() {
		defer release()
		defer func() {
			c.mu.Lock()
			c.inFlight--
			c.mu.Unlock()
			c.poke()
		}()

		err := batch.DispatchAsync(dispatchCtx)
		c.emit(CoordinatorEvent{Kind: Dispatched, Batch: batch, Err: err})
	}()
}
