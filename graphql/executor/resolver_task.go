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
	"fmt"
	"reflect"
	"sync"

	"github.com/artemis-run/core/concurrent"
	"github.com/artemis-run/core/concurrent/future"
	"github.com/artemis-run/core/graphql"
	"github.com/artemis-run/core/graphql/internal/value"
	"github.com/artemis-run/core/iterator"
)

// OperationContext carries everything a ResolverTask needs to resolve a field and complete its
// value, shared by every task forked while executing one request (4.4). It supersedes the older
// per-executor ExecutionContext: that type had no DataLoaderManager accessor despite execute.go
// expecting one (see DESIGN.md), and carried no scheduler/defer-coordinator wiring at all.
type OperationContext struct {
	Operation         *Operation
	RootValue         interface{}
	AppContext        interface{}
	VariableValues    graphql.VariableValues
	DataLoaderManager graphql.DataLoaderManager
	IncludeFlags      IncludeFlags
	DeferFlags        DeferMask
	Scheduler         *Scheduler
	Defer             *DeferCoordinator
	Runner            concurrent.Executor

	// RootBranch is the branch id carrying this operation's own initial (non-deferred) response tree.
	// A lone Execute call always uses MainBranch; RunBatch gives each batched item a distinct root
	// branch on the shared Scheduler, so IsDeferred compares against this field rather than against
	// the MainBranch constant directly.
	RootBranch BranchId

	errMu        sync.Mutex
	errsByBranch map[BranchId]*graphql.Errors
}

// addError records err against branch's error set, lazily allocating its bucket.
func (opCtx *OperationContext) addError(branch BranchId, err error) {
	opCtx.errMu.Lock()
	if opCtx.errsByBranch == nil {
		opCtx.errsByBranch = map[BranchId]*graphql.Errors{}
	}
	bucket := opCtx.errsByBranch[branch]
	if bucket == nil {
		bucket = &graphql.Errors{}
		opCtx.errsByBranch[branch] = bucket
	}
	bucket.Append(err)
	opCtx.errMu.Unlock()
}

// errorsFor returns the accumulated errors for branch, or NoErrors if none occurred.
func (opCtx *OperationContext) errorsFor(branch BranchId) graphql.Errors {
	opCtx.errMu.Lock()
	defer opCtx.errMu.Unlock()
	if bucket := opCtx.errsByBranch[branch]; bucket != nil {
		return *bucket
	}
	return graphql.NoErrors()
}

// failSelection records err (wrapped with sel's locations/result's path if it isn't already a
// *graphql.Error) against branch and nils out result, propagating the nil up through every
// non-null ancestor exactly as executor_impl.go's handleFieldError does: a non-null violation keeps
// bubbling until it reaches a nullable ancestor (or the root).
func failSelection(opCtx *OperationContext, branch BranchId, sel *Selection, result *ResultNode, err error) {
	locations := make([]graphql.ErrorLocation, len(sel.Nodes))
	for i, n := range sel.Nodes {
		locations[i] = graphql.ErrorLocationOfASTNode(n)
	}
	path := result.Path()

	e, ok := err.(*graphql.Error)
	if !ok {
		e = graphql.NewError(err.Error(), locations, path).(*graphql.Error)
	} else {
		e.Locations = locations
		e.Path = path
	}

	result.Kind = ResultKindNil
	result.Value = nil
	for result != nil && result.IsNonNull() {
		result = result.Parent
		result.Kind = ResultKindNil
		result.Value = nil
	}

	opCtx.addError(branch, e)
}

//===------------------------------------------------------------------------------------------===//
// ResolverTask
//===------------------------------------------------------------------------------------------===//

// ResolverTask resolves one Selection's field value against its parent object's source value, then
// drives value completion for the result (4.4). It implements scheduler.Task: StrategyDefault and
// StrategySerial selections are dispatched as a ResolverTask each; StrategyPure selections are
// resolved inline by dispatchSelectionSet without ever allocating one.
type ResolverTask struct {
	id     TaskId
	branch BranchId
	serial bool

	opCtx      *OperationContext
	sel        *Selection
	parentType graphql.Object
	source     interface{}
	result     *ResultNode

	// deferredRoot is true when this task's selection is the one that triggered a branch fork (i.e.
	// fieldBranch != the branch the parent selection set was dispatched under); such a task reports
	// its result to the DeferCoordinator once resolved.
	deferredRoot bool
}

var _ Task = (*ResolverTask)(nil)

// TaskId implements Task.
func (t *ResolverTask) TaskId() TaskId { return t.id }

// SetTaskId implements Task.
func (t *ResolverTask) SetTaskId(id TaskId) { t.id = id }

// BranchId implements Task.
func (t *ResolverTask) BranchId() BranchId { return t.branch }

// IsSerial implements Task.
func (t *ResolverTask) IsSerial() bool { return t.serial }

// IsDeferred implements Task.
func (t *ResolverTask) IsDeferred() bool {
	return t.branch != t.opCtx.RootBranch && t.branch != SystemBranch
}

// ExecuteAsync implements Task. When opCtx.Runner is set the field is resolved on the runner's pool;
// otherwise it runs inline on the scheduler's own goroutine (4.4, "Resolution strategies").
func (t *ResolverTask) ExecuteAsync(ctx context.Context, scheduler *Scheduler) {
	run := func() {
		t.resolve(ctx)
		scheduler.Complete(t)
	}

	runner := t.opCtx.Runner
	if runner == nil {
		run()
		return
	}

	if _, err := runner.Submit(concurrent.TaskFunc(func() (interface{}, error) {
		run()
		return nil, nil
	})); err != nil {
		// Submission itself failed (e.g. the runner already shut down); fall back to running inline
		// rather than leaving the branch's in-flight counter stuck forever.
		run()
	}
}

// resolve coerces this request's argument values, invokes the field resolver, and hands the
// returned value (or error) to value completion.
func (t *ResolverTask) resolve(ctx context.Context) {
	sel := t.sel
	result := t.result

	args, err := resolveArgs(sel, t.opCtx.VariableValues)
	if err != nil {
		failSelection(t.opCtx, t.branch, sel, result, err)
		t.reportIfDeferredRoot()
		return
	}

	info := &ResolveInfo{opCtx: t.opCtx, selection: sel, result: result, parentType: t.parentType, args: args}

	fieldResolver := sel.Field.Resolver()
	if fieldResolver == nil {
		fieldResolver = t.opCtx.Operation.DefaultFieldResolver
	}

	v, err := fieldResolver.Resolve(ctx, t.source, info)
	if err != nil {
		failSelection(t.opCtx, t.branch, sel, result, err)
		t.reportIfDeferredRoot()
		return
	}

	completeValue(ctx, t.opCtx, t.branch, t.parentType, sel, sel.Type, result, v)
	t.reportIfDeferredRoot()
}

// reportIfDeferredRoot hands this task's now-resolved result to the DeferCoordinator when this task
// is the root of a forked branch (4.5, "SetBranchResult ... before the branch's Complete fires").
func (t *ResolverTask) reportIfDeferredRoot() {
	if !t.deferredRoot {
		return
	}
	t.opCtx.Defer.SetBranchResult(t.branch, t.result, t.opCtx.errorsFor(t.branch))
}

// resolveArgs coerces sel's per-request argument values. Literal-only arguments were already
// coerced once at compile time into sel.Args as an optimisation; this recomputes them against this
// request's variableValues (cheap: value.ArgumentValues degenerates to the same literal coercion
// when there is nothing to look up) so a resolver always observes the correct per-request values,
// closing the gap noted in selection.go's Args doc comment.
func resolveArgs(sel *Selection, variableValues graphql.VariableValues) (graphql.ArgumentValues, error) {
	if len(sel.Nodes) == 0 {
		return graphql.NoArgumentValues(), nil
	}
	return value.ArgumentValues(sel.Field, sel.Nodes[0], variableValues)
}

//===------------------------------------------------------------------------------------------===//
// dispatchSelectionSet
//===------------------------------------------------------------------------------------------===//

// dispatchSelectionSet turns set into an ObjectResultValue on parent: it allocates one contiguous
// FieldValues slice (required so ResultNode.Path's pointer-arithmetic lookup works, see
// result_node.go), resolves StrategyPure selections inline under this same call, and registers every
// other included selection as a ResolverTask on opCtx.Scheduler (4.4). Selections excluded by
// @include/@skip for this request are left out of the result entirely, per 3.c.
func dispatchSelectionSet(
	ctx context.Context,
	opCtx *OperationContext,
	branch BranchId,
	parentType graphql.Object,
	set *SelectionSet,
	parent *ResultNode,
	source interface{},
) {
	all := set.Selections
	included := make([]*Selection, 0, len(all))
	for _, sel := range all {
		if sel.IsIncluded(opCtx.IncludeFlags) {
			included = append(included, sel)
		}
	}

	fieldValues := make([]ResultNode, len(included))
	parent.Kind = ResultKindObject
	parent.Value = &ObjectResultValue{Selections: included, FieldValues: fieldValues}

	var tasks []Task
	for i, sel := range included {
		fieldResult := &fieldValues[i]
		fieldResult.Parent = parent
		fieldResult.Kind = ResultKindUnresolved
		fieldResult.Value = &UnresolvedResultValue{Selection: sel, ParentType: parentType, Source: source}
		if graphql.IsNonNullType(sel.Type) {
			fieldResult.SetIsNonNull()
		}

		fieldBranch := branch
		deferredRoot := false
		if usage := sel.PrimaryDeferUsage(opCtx.DeferFlags); usage != nil {
			fieldBranch = opCtx.Defer.Branch(ctx, branch, fieldResult.Path(), usage, usage.Label)
			deferredRoot = true
		}

		if sel.Strategy == StrategyPure {
			resolvePureField(ctx, opCtx, fieldBranch, parentType, sel, fieldResult, source)
			if deferredRoot {
				opCtx.Defer.SetBranchResult(fieldBranch, fieldResult, opCtx.errorsFor(fieldBranch))
			}
			continue
		}

		tasks = append(tasks, &ResolverTask{
			branch:       fieldBranch,
			serial:       sel.Strategy == StrategySerial,
			opCtx:        opCtx,
			sel:          sel,
			parentType:   parentType,
			source:       source,
			result:       fieldResult,
			deferredRoot: deferredRoot,
		})
	}

	if len(tasks) > 0 {
		opCtx.Scheduler.RegisterSpan(tasks)
	}
}

// resolvePureField resolves a StrategyPure selection inline, with no task allocation, mirroring the
// Default path's error/value handling exactly.
func resolvePureField(
	ctx context.Context,
	opCtx *OperationContext,
	branch BranchId,
	parentType graphql.Object,
	sel *Selection,
	result *ResultNode,
	source interface{},
) {
	args, err := resolveArgs(sel, opCtx.VariableValues)
	if err != nil {
		failSelection(opCtx, branch, sel, result, err)
		return
	}

	info := &ResolveInfo{opCtx: opCtx, selection: sel, result: result, parentType: parentType, args: args}

	v, err := sel.PureResolver.Resolve(ctx, source, info)
	if err != nil {
		failSelection(opCtx, branch, sel, result, err)
		return
	}

	completeValue(ctx, opCtx, branch, parentType, sel, sel.Type, result, v)
}

//===------------------------------------------------------------------------------------------===//
// Value completion
//===------------------------------------------------------------------------------------------===//

// completeValue dispatches on whether returnType wraps another type (List/NonNull), grounded on
// executor_impl.go's completeValue/completeWrappingValue split.
func completeValue(
	ctx context.Context,
	opCtx *OperationContext,
	branch BranchId,
	parentType graphql.Object,
	sel *Selection,
	returnType graphql.Type,
	result *ResultNode,
	v interface{},
) {
	if completeValuePrologue(ctx, opCtx, branch, parentType, sel, returnType, result, v) {
		return
	}
	if wrapping, ok := returnType.(graphql.WrappingType); ok {
		completeWrappingValue(ctx, opCtx, branch, parentType, sel, wrapping, result, v)
		return
	}
	completeNonWrappingValue(ctx, opCtx, branch, parentType, sel, returnType, result, v)
}

// completeValuePrologue handles the two special-cased resolver return values: an explicit
// *graphql.Error (treated as a field error) and a future.Future (suspends this completion behind an
// asyncValueTask until the future resolves), grounded on execute.go's completeValuePrologue.
func completeValuePrologue(
	ctx context.Context,
	opCtx *OperationContext,
	branch BranchId,
	parentType graphql.Object,
	sel *Selection,
	returnType graphql.Type,
	result *ResultNode,
	v interface{},
) bool {
	if e, ok := v.(*graphql.Error); ok {
		failSelection(opCtx, branch, sel, result, e)
		return true
	}

	if f, ok := v.(future.Future); ok {
		task := &asyncValueTask{
			branch:     branch,
			opCtx:      opCtx,
			parentType: parentType,
			sel:        sel,
			returnType: returnType,
			result:     result,
			value:      f,
		}
		opCtx.Scheduler.Register(task)
		return true
	}

	return false
}

// completeNonWrappingValue dispatches a non-wrapping return type: LeafType, Object, or AbstractType
// (interface/union), grounded on executor_impl.go's completeNonWrappingValue (Leaf/Object cases) and
// execute.go's completeAbstractValue (executor_impl.go left abstract dispatch unimplemented).
func completeNonWrappingValue(
	ctx context.Context,
	opCtx *OperationContext,
	branch BranchId,
	parentType graphql.Object,
	sel *Selection,
	returnType graphql.Type,
	result *ResultNode,
	v interface{},
) {
	switch t := returnType.(type) {
	case graphql.LeafType:
		completeLeafValue(opCtx, branch, sel, t, result, v)
	case graphql.Object:
		completeObjectValue(ctx, opCtx, branch, sel, t, result, v)
	case graphql.AbstractType:
		completeAbstractValue(ctx, opCtx, branch, sel, t, result, v)
	default:
		failSelection(opCtx, branch, sel, result, graphql.NewError(fmt.Sprintf(
			"Unexpected type %s for field %s.", returnType, sel.Field.Name())))
	}
}

// completeLeafValue coerces v via returnType's result coercer.
func completeLeafValue(
	opCtx *OperationContext,
	branch BranchId,
	sel *Selection,
	returnType graphql.LeafType,
	result *ResultNode,
	v interface{},
) {
	coerced, err := returnType.CoerceResultValue(v)
	if err != nil {
		failSelection(opCtx, branch, sel, result, err)
		return
	}
	result.Kind = ResultKindLeaf
	result.Value = coerced
}

// completeObjectValue allocates one contiguous FieldValues slice for returnType's concrete selection
// set (resolved via Operation.GetSelectionSet, since sel's own Type may be abstract while returnType
// is the concrete runtime type) and dispatches it, grounded on executor_impl.go's completeObjectValue
// for the allocation shape.
func completeObjectValue(
	ctx context.Context,
	opCtx *OperationContext,
	branch BranchId,
	sel *Selection,
	returnType graphql.Object,
	result *ResultNode,
	v interface{},
) {
	set, errs := opCtx.Operation.GetSelectionSet(sel, returnType)
	if errs.HaveOccurred() {
		failSelection(opCtx, branch, sel, result, errs.Errors[0])
		return
	}
	dispatchSelectionSet(ctx, opCtx, branch, returnType, set, result, v)
}

// completeAbstractValue resolves the concrete Object type for an interface/union field via
// returnType.TypeResolver(), validates it is really one of the schema's possible types for
// returnType, then delegates to completeObjectValue, grounded on execute.go's completeAbstractValue
// (executor_impl.go's own version is unimplemented).
func completeAbstractValue(
	ctx context.Context,
	opCtx *OperationContext,
	branch BranchId,
	sel *Selection,
	returnType graphql.AbstractType,
	result *ResultNode,
	v interface{},
) {
	resolver := returnType.TypeResolver()
	if resolver == nil {
		failSelection(opCtx, branch, sel, result, graphql.NewError(fmt.Sprintf(
			"No type resolver is configured for abstract type %s.", returnType.Name())))
		return
	}

	info := &ResolveInfo{opCtx: opCtx, selection: sel, result: result}
	runtimeType, err := resolver.Resolve(ctx, v, info)
	if err != nil {
		failSelection(opCtx, branch, sel, result, err)
		return
	}
	if runtimeType == nil {
		failSelection(opCtx, branch, sel, result, graphql.NewError(fmt.Sprintf(
			"Could not determine the runtime type for value of abstract type %s.", returnType.Name())))
		return
	}

	if !opCtx.Operation.Schema.PossibleTypes(returnType).Contains(runtimeType) {
		failSelection(opCtx, branch, sel, result, graphql.NewError(fmt.Sprintf(
			"Runtime type %q is not a possible type of abstract type %s.", runtimeType.Name(), returnType.Name())))
		return
	}

	completeObjectValue(ctx, opCtx, branch, sel, runtimeType, result, v)
}

// completeWrappingValue unwraps NonNull/List layers breadth-first using an explicit queue (rather
// than recursion) so a deeply-nested list-of-list-of-list doesn't grow the Go call stack, grounded on
// executor_impl.go's completeWrappingValue, extended with Iterable/SizedIterable support from
// execute.go's variant (executor_impl.go's own only supported reflect.Array/Slice).
func completeWrappingValue(
	ctx context.Context,
	opCtx *OperationContext,
	branch BranchId,
	parentType graphql.Object,
	sel *Selection,
	returnType graphql.WrappingType,
	result *ResultNode,
	v interface{},
) {
	type pending struct {
		returnType graphql.Type
		result     *ResultNode
		value      interface{}
	}

	queue := []pending{{returnType, result, v}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		itemReturnType := item.returnType
		itemResult := item.result
		itemValue := item.value

		if itemResult.Parent != nil && itemResult.Parent.IsNil() {
			// An ancestor already nulled out this subtree (non-null propagation); nothing left to do.
			continue
		}

		nonNullType, isNonNullType := itemReturnType.(graphql.NonNull)
		if isNonNullType {
			itemReturnType = nonNullType.InnerType()
		}

		if value.IsNullish(itemValue) {
			if isNonNullType {
				failSelection(opCtx, branch, sel, itemResult, graphql.NewError(fmt.Sprintf(
					"Cannot return null for non-nullable field %s.%s.", parentType.Name(), sel.Field.Name())))
			} else {
				itemResult.Kind = ResultKindNil
				itemResult.Value = nil
			}
			continue
		}

		listType, isListType := itemReturnType.(graphql.List)
		if !isListType {
			completeNonWrappingValue(ctx, opCtx, branch, parentType, sel, itemReturnType, itemResult, itemValue)
			continue
		}

		elementType := listType.ElementType()
		elementWrapping, elementIsWrapping := elementType.(graphql.WrappingType)
		elementNullable := !graphql.IsNonNullType(elementType)

		var nodes ResultNodeList
		switch iter := itemValue.(type) {
		case SizedIterable:
			nodes = NewFixedSizeResultNodeList(iter.Size())
		case Iterable:
			nodes = NewResultNodeList()
		default:
			rv := reflect.ValueOf(itemValue)
			if rv.Kind() == reflect.Ptr {
				rv = rv.Elem()
			}
			if rv.Kind() != reflect.Array && rv.Kind() != reflect.Slice {
				failSelection(opCtx, branch, sel, itemResult, graphql.NewError(fmt.Sprintf(
					"Expected Iterable, but did not find one for field %s.%s.", parentType.Name(), sel.Field.Name())))
				continue
			}
			nodes = NewFixedSizeResultNodeList(rv.Len())
			itemResult.Kind = ResultKindList
			itemResult.Value = nodes
			for i := 0; i < rv.Len(); i++ {
				elemResult := nodes.EmplaceBack(itemResult, elementNullable)
				elemValue := rv.Index(i).Interface()
				if elementIsWrapping {
					queue = append(queue, pending{elementWrapping, elemResult, elemValue})
				} else {
					completeNonWrappingValue(ctx, opCtx, branch, parentType, sel, elementType, elemResult, elemValue)
				}
			}
			continue
		}

		itemResult.Kind = ResultKindList
		itemResult.Value = nodes

		iterable := itemValue.(Iterable)
		it := iterable.Iterator()
		for {
			elemValue, err := it.Next()
			if err == iterator.Done {
				break
			} else if err != nil {
				failSelection(opCtx, branch, sel, itemResult, graphql.NewError(fmt.Sprintf(
					"Error occurred while enumerating values in the list field %s.%s.",
					parentType.Name(), sel.Field.Name()), err))
				break
			}

			elemResult := nodes.EmplaceBack(itemResult, elementNullable)
			if elementIsWrapping {
				queue = append(queue, pending{elementWrapping, elemResult, elemValue})
			} else {
				completeNonWrappingValue(ctx, opCtx, branch, parentType, sel, elementType, elemResult, elemValue)
			}
		}
	}
}

//===------------------------------------------------------------------------------------------===//
// asyncValueTask
//===------------------------------------------------------------------------------------------===//

// asyncValueTask polls a future.Future returned from a resolver until it resolves, then resumes
// value completion with the concrete value, grounded on execute.go's AsyncValueTask. Unlike a
// ResolverTask, it is registered once and never re-registered: each Pending poll leaves it "in
// flight" from the scheduler's point of view (Complete is deferred, not called), so the owning
// branch cannot appear to finish while the future is still outstanding; Wake re-polls directly
// rather than going through Scheduler.Register, which would prematurely look like a fresh task.
type asyncValueTask struct {
	id     TaskId
	branch BranchId

	opCtx      *OperationContext
	parentType graphql.Object
	sel        *Selection
	returnType graphql.Type
	result     *ResultNode
	value      future.Future

	ctx       context.Context
	scheduler *Scheduler
}

var _ Task = (*asyncValueTask)(nil)

func (t *asyncValueTask) TaskId() TaskId      { return t.id }
func (t *asyncValueTask) SetTaskId(id TaskId) { t.id = id }
func (t *asyncValueTask) BranchId() BranchId  { return t.branch }
func (t *asyncValueTask) IsSerial() bool      { return false }
func (t *asyncValueTask) IsDeferred() bool {
	return t.branch != t.opCtx.RootBranch && t.branch != SystemBranch
}

// ExecuteAsync implements Task.
func (t *asyncValueTask) ExecuteAsync(ctx context.Context, scheduler *Scheduler) {
	t.ctx = ctx
	t.scheduler = scheduler
	t.poll()
}

// poll advances the future by one step. If it is still pending, this task stays "in flight" (no
// Complete call) until wake fires; otherwise it completes the value (or records the future's error)
// and finally reports back to the scheduler exactly once.
func (t *asyncValueTask) poll() {
	result, err := t.value.Poll(future.WakerFunc(t.wake))
	if err != nil {
		failSelection(t.opCtx, t.branch, t.sel, t.result, err)
		t.scheduler.Complete(t)
		return
	}
	if result == future.PollResultPending {
		return
	}
	completeValue(t.ctx, t.opCtx, t.branch, t.parentType, t.sel, t.returnType, t.result, result)
	t.scheduler.Complete(t)
}

// wake implements future.Waker, re-polling the future from whatever goroutine the future's own
// producer (e.g. the DataLoader batch dispatcher) calls it from.
func (t *asyncValueTask) wake() error {
	t.poll()
	return nil
}
