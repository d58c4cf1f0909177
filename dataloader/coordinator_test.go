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

package dataloader_test

import (
	"context"
	"sync"
	"time"

	"github.com/artemis-run/core/dataloader"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeBatch is a minimal dataloader.IBatch test double: quiesceAfter controls how many Touch calls it
// takes before Touch reports true, and onDispatch lets a test script behavior (including Schedule-ing
// a further fakeBatch, to exercise nesting) inside DispatchAsync.
type fakeBatch struct {
	mu           sync.Mutex
	createdAt    time.Time
	modifiedAt   time.Time
	touchCount   int
	quiesceAfter int
	status       dataloader.BatchStatus

	onDispatch func(ctx context.Context) error
	started    chan struct{}
	finished   chan struct{}
}

func newFakeBatch(quiesceAfter int, onDispatch func(ctx context.Context) error) *fakeBatch {
	now := time.Now()
	return &fakeBatch{
		createdAt:    now,
		modifiedAt:   now,
		quiesceAfter: quiesceAfter,
		onDispatch:   onDispatch,
		started:      make(chan struct{}),
		finished:     make(chan struct{}),
	}
}

func (b *fakeBatch) Size() int { return 1 }

func (b *fakeBatch) Status() dataloader.BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *fakeBatch) CreatedTimestamp() time.Time { return b.createdAt }

func (b *fakeBatch) ModifiedTimestamp() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modifiedAt
}

func (b *fakeBatch) Touch() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.touchCount++
	return b.touchCount >= b.quiesceAfter
}

func (b *fakeBatch) DispatchAsync(ctx context.Context) error {
	b.mu.Lock()
	b.status = dataloader.BatchDispatching
	b.mu.Unlock()
	close(b.started)
	defer close(b.finished)

	var err error
	if b.onDispatch != nil {
		err = b.onDispatch(ctx)
	}

	b.mu.Lock()
	b.status = dataloader.BatchCompleted
	b.mu.Unlock()
	return err
}

var _ = Describe("Coordinator", func() {
	It("dispatches a batch once it quiesces", func() {
		c := dataloader.NewCoordinator(4, dataloader.DefaultMaxBatchWaitTime)
		batch := newFakeBatch(2, nil)

		c.Schedule(context.Background(), batch)

		Eventually(batch.finished, time.Second).Should(BeClosed())
		Expect(batch.Status()).Should(Equal(dataloader.BatchCompleted))
	})

	It("dispatches a batch that ages past maxBatchWaitTime even if it never quiesces", func() {
		c := dataloader.NewCoordinator(4, 10*time.Millisecond)
		// quiesceAfter is unreachably high so Touch never reports quiescence on its own; only aging
		// past maxBatchWaitTime can trigger dispatch.
		batch := newFakeBatch(1<<30, nil)

		c.Schedule(context.Background(), batch)

		Eventually(batch.finished, time.Second).Should(BeClosed())
	})

	It("bounds concurrent top-level dispatches to inFlightLimit", func() {
		c := dataloader.NewCoordinator(1, dataloader.DefaultMaxBatchWaitTime)

		release := make(chan struct{})
		first := newFakeBatch(2, func(ctx context.Context) error {
			<-release
			return nil
		})
		second := newFakeBatch(2, nil)

		c.Schedule(context.Background(), first)
		c.Schedule(context.Background(), second)

		// With inFlightLimit 1, the second batch cannot start while the first is still blocked in
		// DispatchAsync.
		Eventually(first.started, time.Second).Should(BeClosed())
		Consistently(second.started, 100*time.Millisecond).ShouldNot(BeClosed())

		close(release)

		Eventually(first.finished, time.Second).Should(BeClosed())
		Eventually(second.finished, time.Second).Should(BeClosed())
	})

	It("dispatches a nested batch immediately even with inFlightLimit exhausted", func() {
		// inFlightLimit 1 means the outer batch holds the coordinator's only slot for its entire
		// DispatchAsync call. If a batch it schedules from inside that call (a nested batch) were
		// routed through the same bounded queue, it would wait forever for a slot the outer dispatch
		// itself is holding - and the outer dispatch is waiting on the nested one to finish. Schedule
		// must recognize the nested batch via its marked context and dispatch it unbounded instead.
		c := dataloader.NewCoordinator(1, dataloader.DefaultMaxBatchWaitTime)

		inner := newFakeBatch(2, nil)
		outer := newFakeBatch(2, func(ctx context.Context) error {
			c.Schedule(ctx, inner)
			Eventually(inner.finished, time.Second).Should(BeClosed())
			return nil
		})

		c.Schedule(context.Background(), outer)

		Eventually(outer.finished, time.Second).Should(BeClosed())
	})

	It("reports the coordinator lifecycle to subscribers", func() {
		c := dataloader.NewCoordinator(4, dataloader.DefaultMaxBatchWaitTime)

		var (
			mu   sync.Mutex
			kinds []dataloader.CoordinatorEventKind
		)
		c.Subscribe(func(evt dataloader.CoordinatorEvent) {
			mu.Lock()
			kinds = append(kinds, evt.Kind)
			mu.Unlock()
		})

		batch := newFakeBatch(2, nil)
		c.Schedule(context.Background(), batch)
		Eventually(batch.finished, time.Second).Should(BeClosed())

		Eventually(func() []dataloader.CoordinatorEventKind {
			mu.Lock()
			defer mu.Unlock()
			return append([]dataloader.CoordinatorEventKind{}, kinds...)
		}, time.Second).Should(ContainElement(dataloader.Dispatched))
	})

	It("drains any still-enqueued batch on Dispose", func() {
		c := dataloader.NewCoordinator(4, 5*time.Millisecond)

		// quiesceAfter unreachably high: left alone, only maxBatchWaitTime aging (or Dispose's own
		// drain) would ever dispatch this batch.
		batch := newFakeBatch(1<<30, nil)
		c.Schedule(context.Background(), batch)

		c.Dispose(context.Background())

		Expect(batch.Status()).Should(Equal(dataloader.BatchCompleted))
	})
})
