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
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/artemis-run/core/graphql"
)

// branchKey identifies a branch registration by the triple the spec names in 4.5: the parent branch
// it forked from, the path it is rooted at, and the DeferUsage that triggered the fork.
type branchKey struct {
	parent BranchId
	path   string
	usage  *DeferUsage
}

// PendingResult is the `pending` entry the coordinator records when a branch is forked, describing
// an incremental delivery the client should expect (4.5).
type PendingResult struct {
	Id    string
	Path  graphql.ResponsePath
	Label string
}

// IncrementalResult is one element of an incremental delivery payload's `incremental` array: either
// an IncrementalObjectResult (deferred fragment) or an IncrementalListResult (streamed list index).
type IncrementalResult struct {
	Id      string
	SubPath graphql.ResponsePath
	Data    *ResultNode
	Items   []*ResultNode
	Errors  graphql.Errors
}

// CompletedResult closes out a branch that delivered no further incremental data of its own, either
// because it produced only errors or because null propagation cancelled it (4.5).
type CompletedResult struct {
	Id     string
	Errors graphql.Errors
}

// OperationResult is one payload in the response stream: the initial result or a subsequent
// incremental payload (4.5, 4.8).
type OperationResult struct {
	// Data/Errors/Pending populate the initial payload.
	Data    *ResultNode
	Errors  graphql.Errors
	Pending []PendingResult

	// Incremental/Completed populate subsequent payloads.
	Incremental []IncrementalResult
	Completed   []CompletedResult

	// HasNext is true on every payload except the last.
	HasNext bool
}

// branchRegistration is the coordinator's bookkeeping for one forked branch.
type branchRegistration struct {
	id       string
	branchID BranchId
	parent   BranchId
	path     graphql.ResponsePath
	label    string
	root     *ResultNode
	errs     graphql.Errors
	consumed bool
}

// DeferCoordinator tracks defer/stream branches for one request, translating scheduler branch
// completions into the `pending`/`incremental`/`completed` payload sequence described by 4.5. One
// DeferCoordinator is created per executing operation and discarded with its OperationContext.
type DeferCoordinator struct {
	scheduler *Scheduler

	mu         sync.Mutex
	byKey      map[branchKey]*branchRegistration
	byBranchID map[BranchId]*branchRegistration
	nextBranch BranchId

	// idGenerator produces the public, client-visible id for each branch/incremental result; defaults
	// to a monotonic per-request counter (cheap, sufficient for single-node delivery) but swaps to
	// uuid.New().String() when the caller opts into globally-unique ids (multi-node deployments, 4.5
	// via SPEC_FULL §4).
	idGenerator func() string
	nextID      int64

	queue       chan OperationResult
	hasBranches bool

	// pendingAccum collects PendingResults recorded by Branch before the initial payload ships;
	// BeginInitialResult drains it into that payload's Pending field.
	pendingAccum []PendingResult

	// outstanding counts branches that have been forked but not yet delivered; once it reaches zero
	// and the main branch has completed, the coordinator seals the stream.
	outstanding int
	mainDone    bool
	sealed      bool
}

// NewDeferCoordinator creates a coordinator bound to scheduler. useUUIDs selects globally-unique
// uuid.New().String() ids over the default monotonic counter.
func NewDeferCoordinator(scheduler *Scheduler, useUUIDs bool) *DeferCoordinator {
	c := &DeferCoordinator{
		scheduler:  scheduler,
		byKey:      map[branchKey]*branchRegistration{},
		byBranchID: map[BranchId]*branchRegistration{},
		nextBranch: 1,
		queue:      make(chan OperationResult, 8),
	}
	if useUUIDs {
		c.idGenerator = func() string { return uuid.New().String() }
	} else {
		c.idGenerator = func() string {
			id := c.nextID
			c.nextID++
			return strconv.FormatInt(id, 10)
		}
	}
	return c
}

// Branch forks a new branch rooted at path for deferUsage, a child of parentBranchID (SystemBranch
// for a top-level `@defer`). It records a PendingResult, returns the new branch's scheduler BranchId,
// and starts a goroutine that awaits the branch's completion and emits its payload (4.5 "Branch
// creation").
func (c *DeferCoordinator) Branch(
	ctx context.Context,
	parentBranchID BranchId,
	path graphql.ResponsePath,
	usage *DeferUsage,
	label string,
) BranchId {
	c.mu.Lock()
	key := branchKey{parent: parentBranchID, path: path.String(), usage: usage}
	if existing, ok := c.byKey[key]; ok {
		c.mu.Unlock()
		return existing.branchID
	}

	branchID := c.nextBranch
	c.nextBranch++

	reg := &branchRegistration{
		id:       c.idGenerator(),
		branchID: branchID,
		parent:   parentBranchID,
		path:     path,
		label:    label,
	}
	c.byKey[key] = reg
	c.byBranchID[branchID] = reg
	c.hasBranches = true
	c.outstanding++
	c.mu.Unlock()

	c.enqueuePendingOnly(PendingResult{Id: reg.id, Path: path, Label: label})

	go c.awaitBranch(ctx, reg)

	return branchID
}

// enqueuePendingOnly folds p into the coordinator's accounting without itself producing a payload;
// the initial payload (built by the caller once the main branch completes) carries the full set of
// Pending entries collected up to that point, per 4.5 "the initial payload ... is always the first
// element in the stream".
func (c *DeferCoordinator) enqueuePendingOnly(p PendingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingAccum = append(c.pendingAccum, p)
}

// awaitBranch blocks until reg's branch completes on the scheduler, then builds and enqueues either
// an IncrementalObjectResult or a CompletedResult (4.5 point 2).
func (c *DeferCoordinator) awaitBranch(ctx context.Context, reg *branchRegistration) {
	select {
	case <-c.scheduler.WaitForCompletionAsync(reg.branchID):
	case <-ctx.Done():
		c.mu.Lock()
		reg.consumed = true
		c.outstanding--
		done := c.outstanding == 0 && c.mainDone
		c.mu.Unlock()
		c.emitCompleted(reg, graphql.NoErrors())
		if done {
			c.seal()
		}
		return
	}

	c.mu.Lock()
	root, errs := reg.root, reg.errs
	reg.consumed = true
	c.outstanding--
	done := c.outstanding == 0 && c.mainDone
	c.mu.Unlock()

	if root != nil {
		c.queue <- OperationResult{
			HasNext: true,
			Incremental: []IncrementalResult{{
				Id:     reg.id,
				Data:   root,
				Errors: errs,
			}},
		}
	} else {
		c.emitCompleted(reg, errs)
	}

	if done {
		c.seal()
	}
}

// emitCompleted pushes a CompletedResult payload for reg.
func (c *DeferCoordinator) emitCompleted(reg *branchRegistration, errs graphql.Errors) {
	c.queue <- OperationResult{
		HasNext:   true,
		Completed: []CompletedResult{{Id: reg.id, Errors: errs}},
	}
}

// SetBranchResult records the resolved root ResultNode and field errors for branchID once its
// subtree finishes resolving, before the branch's Complete fires on the scheduler. The resolver
// runtime (C5) calls this from the task that owns the deferred fragment's root selection.
func (c *DeferCoordinator) SetBranchResult(branchID BranchId, root *ResultNode, errs graphql.Errors) {
	c.mu.Lock()
	if reg, ok := c.byBranchID[branchID]; ok {
		reg.root = root
		reg.errs = errs
	}
	c.mu.Unlock()
}

// BeginInitialResult is called once the main (non-deferred) branch completes; it drains whatever
// PendingResults accumulated during resolution and returns the initial OperationResult payload,
// setting HasNext according to whether any branch is still outstanding (4.5 "Delivery order").
func (c *DeferCoordinator) BeginInitialResult(data *ResultNode, errs graphql.Errors) OperationResult {
	c.mu.Lock()
	pending := c.pendingAccum
	c.pendingAccum = nil
	c.mainDone = true
	hasNext := c.outstanding > 0
	sealNow := !hasNext
	c.mu.Unlock()

	if sealNow {
		c.seal()
	}

	return OperationResult{
		Data:    data,
		Errors:  errs,
		Pending: pending,
		HasNext: hasNext,
	}
}

// Results returns the channel of subsequent incremental/completed payloads; the response-stream
// producer (finalizeResultStream in prepared_operation.go) reads from it after yielding the initial
// payload, until the channel is closed by seal.
func (c *DeferCoordinator) Results() <-chan OperationResult {
	return c.queue
}

// seal closes the results queue exactly once. Marking HasNext=false on the final payload is the
// reader's responsibility: channel closure is the signal that no further payload is coming, and the
// reader synthesizes the final HasNext=false payload from the last one it saw.
func (c *DeferCoordinator) seal() {
	c.mu.Lock()
	if c.sealed {
		c.mu.Unlock()
		return
	}
	c.sealed = true
	c.mu.Unlock()
	close(c.queue)
}

// HasBranches reports whether any `@defer`/`@stream` branch was forked for this request; when false,
// the executor skips the incremental-delivery response shape entirely and returns a plain
// OperationResult (8, round-trip property: "no defer/stream produces no pending/incremental/completed
// arrays").
func (c *DeferCoordinator) HasBranches() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasBranches
}
