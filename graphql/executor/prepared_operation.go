/**
 * Copyright (c) 2018, The Artemis Authors.
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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/artemis-run/core/concurrent"
	"github.com/artemis-run/core/graphql"
	"github.com/artemis-run/core/graphql/ast"
	"github.com/artemis-run/core/graphql/internal/value"
)

// PreparedOperation is like "prepared statement" in conventional DBMS. In GraphQL, an Operation [0]
// is an executable definition [1] in GraphQL Document [2]. Operation can be either a (read-only)
// query, or a mutation or subscription. Before executing an operation, executor needs to make some
// "preparations" such as parsing and validation. PreparedOperation allows you to perform these
// static tasks in advance to save the overheads for subsequent repeatedly execution.
//
// Note PreparedOperation is bound to an Executor.
//
// [0]: https://facebook.github.io/graphql/draft/#sec-Language.Operations
// [1]: https://facebook.github.io/graphql/draft/#ExecutableDefinition
// [2]: https://facebook.github.io/graphql/draft/#sec-Language.Document
type PreparedOperation struct {
	// Schema of the type system that is currently executing
	schema graphql.Schema

	// Document that contains definitions for this operation
	document ast.Document

	// Definition of this operation
	definition *ast.OperationDefinition

	// rootType extracts the root type corresponding to the operation in the schema.
	rootType graphql.Object

	// FragmentMap maps name to the fragment definition in the document to speed up lookup when
	// fragment spread during execution.
	fragmentMap map[string]*ast.FragmentDefinition

	// Resolver to be used for resolving field value when the field doesn't provide one.
	defaultFieldResolver graphql.FieldResolver

	// compileOnce guards the first call to Compile against operation (4.1): PreparedOperation's whole
	// purpose, per its doc comment, is to let the one-time compilation cost be paid once and reused
	// across every subsequent Execute.
	compileOnce sync.Once
	compiled    *Operation
	compileErrs graphql.Errors
}

// compile runs Compile against operation exactly once, caching the result (or error) for every
// later Execute call.
func (operation *PreparedOperation) compile() (*Operation, graphql.Errors) {
	operation.compileOnce.Do(func() {
		operation.compiled, operation.compileErrs = Compile(operation)
	})
	return operation.compiled, operation.compileErrs
}

// PrepareParams specifies parameters to Prepare. All data are required except DefaultFieldResolver.
type PrepareParams struct {
	// Schema of the type system that this operation is executing on
	Schema graphql.Schema

	// Document that contains operations to be prepared for execution
	Document ast.Document

	// The name of the Operation in the Document to execute.
	OperationName string

	// Resolver to be used to fields without providing custom resolvers.
	DefaultFieldResolver graphql.FieldResolver
}

// Prepare prepares an operation for execution. It creates a PreparedOperation.
func Prepare(params PrepareParams) (*PreparedOperation, graphql.Errors) {
	var errs graphql.Errors

	schema := params.Schema
	document := params.Document

	// TODO: Validate schema and document.

	// Find the definition for the operation to be executed from document.
	var operation *ast.OperationDefinition

	operationName := params.OperationName
	// Also build map for fragmentMap.
	fragmentMap := map[string]*ast.FragmentDefinition{}

	for _, definition := range document.Definitions {
		switch definition := definition.(type) {
		case *ast.OperationDefinition:
			if len(operationName) == 0 {
				if operation != nil {
					return nil, graphql.ErrorsOf("Must provide operation name if query contains multiple operations.")
				}
				operation = definition
			} else {
				if operationName == definition.Name.Value() {
					operation = definition
				}
			}

		case *ast.FragmentDefinition:
			fragmentMap[definition.Name.Value()] = definition
		}
	}

	if operation == nil {
		if len(operationName) > 0 {
			errs.Emplace(fmt.Sprintf(`Unknown operation named "%s".`, operationName))
			return nil, errs
		}
		errs.Emplace("Must provide an operation.")
		return nil, errs
	}

	// Extract the root operation type.
	var rootType graphql.Object
	switch operation.OperationType() {
	case ast.OperationTypeQuery:
		rootType = schema.Query()
		if rootType == nil {
			return nil, graphql.ErrorsOf(
				"Schema does not define the required query root type.",
				[]graphql.ErrorLocation{graphql.ErrorLocationOfASTNode(operation)})
		}

	case ast.OperationTypeMutation:
		rootType = schema.Mutation()
		if rootType == nil {
			return nil, graphql.ErrorsOf(
				"Schema is not configured for mutations.",
				[]graphql.ErrorLocation{graphql.ErrorLocationOfASTNode(operation)})
		}

	case ast.OperationTypeSubscription:
		rootType = schema.Subscription()
		if rootType == nil {
			return nil, graphql.ErrorsOf(
				"Schema is not configured for subscriptions.",
				[]graphql.ErrorLocation{graphql.ErrorLocationOfASTNode(operation)})
		}

	default:
		return nil, graphql.ErrorsOf(
			"Can only have query, mutation and subscription operations.",
			[]graphql.ErrorLocation{graphql.ErrorLocationOfASTNode(operation)})
	}

	defaultFieldResolver := params.DefaultFieldResolver
	if defaultFieldResolver == nil {
		defaultFieldResolver = &DefaultFieldResolver{
			UnresolvedAsError:   true,
			ScanAnonymousFields: true,
			ScanMethods:         true,
			FieldTagName:        "graphql",
		}
	}

	return &PreparedOperation{
		schema:               schema,
		document:             document,
		definition:           operation,
		rootType:             rootType,
		fragmentMap:          fragmentMap,
		defaultFieldResolver: defaultFieldResolver,
	}, graphql.NoErrors()
}

// Schema returns the type system definition which the operation is based on.
func (operation *PreparedOperation) Schema() graphql.Schema {
	return operation.schema
}

// Document returns the request document.
func (operation *PreparedOperation) Document() ast.Document {
	return operation.document
}

// VariableDefinitions returns the variable definitions describing the variables taken by the
// operation.
func (operation *PreparedOperation) VariableDefinitions() []*ast.VariableDefinition {
	return operation.definition.VariableDefinitions
}

// ExecuteParams specifies parameter to execute a prepared operation.
type ExecuteParams struct {
	// Runner specifies executor to run the execution. If it is not provided, resolvers run on the
	// goroutine that drives the scheduler, which Execute starts.
	Runner concurrent.Executor

	// DataLoaderManager that manages dispatch for data loaders being used during execution; User can
	// also tracks DataLoader instances being used during the execution.
	DataLoaderManager graphql.DataLoaderManager

	// RootValue is an initial value corresponding to the root type being executed. Conceptually, an
	// initial value represents the “universe” of data available via a GraphQL Service. It is common
	// for a GraphQL Service to always use the same initial value for every request.
	RootValue interface{}

	// AppContext is an application-specific data that will get passed to all resolve functions.
	AppContext interface{}

	// VariableValues contains values for any Variables defined by the Operation.
	VariableValues map[string]interface{}

	// UseUUIDs selects globally-unique uuid.New().String() ids for defer/stream payloads instead of
	// the default per-request monotonic counter (4.5); set this when responses from more than one node
	// may be correlated by a client or gateway.
	UseUUIDs bool
}

// resultChannelBufSize sized so the initial payload plus a handful of early incremental payloads
// never block runAndStream's producer goroutine on a slow consumer before it has even started
// reading.
const resultChannelBufSize = 8

// Execute compiles operation (once, cached on the PreparedOperation) and runs it to completion,
// streaming the initial response followed by any `@defer`/`@stream` incremental payloads (4.4, 4.5,
// 4.8). ctx governs deadline/cancellation for the whole execution.
func (operation *PreparedOperation) Execute(ctx context.Context, params ExecuteParams) <-chan ExecutionResult {
	out := make(chan ExecutionResult, resultChannelBufSize)

	variableValues, errs := value.CoerceVariableValues(
		operation.schema, operation.VariableDefinitions(), params.VariableValues)
	if errs.HaveOccurred() {
		out <- ExecutionResult{Errors: errs}
		close(out)
		return out
	}

	compiled, errs := operation.compile()
	if errs.HaveOccurred() {
		out <- ExecutionResult{Errors: errs}
		close(out)
		return out
	}

	opCtx := &OperationContext{
		Operation:         compiled,
		RootValue:         params.RootValue,
		AppContext:        params.AppContext,
		VariableValues:    variableValues,
		DataLoaderManager: params.DataLoaderManager,
		IncludeFlags:      compiled.EvaluateIncludeFlags(variableValues),
		DeferFlags:        compiled.EvaluateDeferFlags(variableValues),
		Runner:            params.Runner,
		RootBranch:        MainBranch,
	}
	opCtx.Scheduler = NewScheduler(dataLoaderDispatcherTick(ctx, params.DataLoaderManager))
	opCtx.Defer = NewDeferCoordinator(opCtx.Scheduler, params.UseUUIDs)

	root := &ResultNode{}
	dispatchSelectionSet(ctx, opCtx, MainBranch, operation.rootType, compiled.Root, root, params.RootValue)

	go runAndStream(ctx, opCtx, MainBranch, root, out)

	return out
}

// RunBatch executes the same compiled operation once per entry of variableValueSets (8, "Variable
// batching"), sharing a single Scheduler (and therefore a single dispatcherTick) across every item so
// DataLoader keys raised by different variable sets still coalesce into one batch (6, "Mutations
// under variable batching"). Only subscriptions are rejected outright; mutations are allowed to batch
// like queries, each against its own branch of the shared scheduler.
//
// The returned slice has exactly len(variableValueSets) channels, positionally matching the input;
// each channel carries that item's own initial-plus-incremental result stream exactly as a lone
// Execute call would.
func (operation *PreparedOperation) RunBatch(
	ctx context.Context, params ExecuteParams, variableValueSets []map[string]interface{},
) ([]<-chan ExecutionResult, error) {
	if operation.definition.OperationType() == ast.OperationTypeSubscription {
		return nil, fmt.Errorf("RunBatch does not support subscriptions")
	}

	compiled, errs := operation.compile()
	if errs.HaveOccurred() {
		return nil, fmt.Errorf("compiling operation: %w", errs.Errors[0])
	}

	scheduler := NewScheduler(dataLoaderDispatcherTick(ctx, params.DataLoaderManager))

	outs := make([]<-chan ExecutionResult, len(variableValueSets))
	g, groupCtx := errgroup.WithContext(ctx)

	for i, vars := range variableValueSets {
		branch := BranchId(i)
		out := make(chan ExecutionResult, resultChannelBufSize)
		outs[i] = out

		variableValues, errs := value.CoerceVariableValues(operation.schema, operation.VariableDefinitions(), vars)
		if errs.HaveOccurred() {
			out <- ExecutionResult{Errors: errs}
			close(out)
			continue
		}

		opCtx := &OperationContext{
			Operation:         compiled,
			RootValue:         params.RootValue,
			AppContext:        params.AppContext,
			VariableValues:    variableValues,
			DataLoaderManager: params.DataLoaderManager,
			IncludeFlags:      compiled.EvaluateIncludeFlags(variableValues),
			DeferFlags:        compiled.EvaluateDeferFlags(variableValues),
			Runner:            params.Runner,
			Scheduler:         scheduler,
			RootBranch:        branch,
		}
		opCtx.Defer = NewDeferCoordinator(scheduler, params.UseUUIDs)

		root := &ResultNode{}
		dispatchSelectionSet(groupCtx, opCtx, branch, operation.rootType, compiled.Root, root, params.RootValue)

		g.Go(func() error {
			<-scheduler.WaitForCompletionAsync(branch)
			finalizeResultStream(opCtx, branch, root, out)
			return nil
		})
	}

	g.Go(func() error {
		scheduler.Run(groupCtx)
		return nil
	})

	go func() {
		_ = g.Wait()
	}()

	return outs, nil
}

// dataLoaderDispatcherTick returns the Scheduler.dispatcherTick hook that lets C7's batch dispatcher
// make progress between scheduler steps (4.3): any DataLoader that accumulated pending keys since the
// last tick is dispatched before the scheduler pops its next task. manager may be nil when the
// execution registers no data loaders.
func dataLoaderDispatcherTick(ctx context.Context, manager graphql.DataLoaderManager) func() {
	return func() {
		if manager == nil || !manager.HasPendingDataLoaders() {
			return
		}
		for loader := range manager.GetAndResetPendingDataLoaders() {
			loader.Dispatch(ctx)
		}
	}
}

// runAndStream drives opCtx's scheduler to completion, then hands off to finalizeResultStream. It is
// the single-execution (Execute) path; RunBatch drives the shared scheduler itself and calls
// finalizeResultStream directly once each item's branch completes.
func runAndStream(ctx context.Context, opCtx *OperationContext, branch BranchId, root *ResultNode, out chan<- ExecutionResult) {
	opCtx.Scheduler.Run(ctx)
	finalizeResultStream(opCtx, branch, root, out)
}

// finalizeResultStream translates branch's DeferCoordinator payloads into ExecutionResult values on
// out, forcing HasNext false on the last payload it sends regardless of what the payload itself
// carried (4.5, "seal closes the results queue ... the reader synthesizes the final HasNext=false
// payload from the last one it saw"), then closes out. The caller must only invoke this once
// opCtx.Scheduler has finished running branch's work (directly for Execute, via
// WaitForCompletionAsync for RunBatch).
func finalizeResultStream(opCtx *OperationContext, branch BranchId, root *ResultNode, out chan<- ExecutionResult) {
	defer close(out)

	initial := opCtx.Defer.BeginInitialResult(root, opCtx.errorsFor(branch))
	pending := ExecutionResult{
		Data:                initial.Data,
		Errors:              initial.Errors,
		Pending:             initial.Pending,
		HasNext:             initial.HasNext,
		HasIncrementalParts: opCtx.Operation.HasIncrementalParts,
		IsInitial:           true,
	}

	if !initial.HasNext {
		out <- pending
		return
	}

	for payload := range opCtx.Defer.Results() {
		out <- pending
		pending = ExecutionResult{
			Incremental:         payload.Incremental,
			Completed:           payload.Completed,
			HasNext:             payload.HasNext,
			HasIncrementalParts: true,
		}
	}
	pending.HasNext = false
	out <- pending
}

// RootType returns operation.rootType.
func (operation *PreparedOperation) RootType() graphql.Object {
	return operation.rootType
}

// Definition returns operation.definition.
func (operation *PreparedOperation) Definition() *ast.OperationDefinition {
	return operation.definition
}

// Type returns operation.definition.OperationType().
func (operation *PreparedOperation) Type() ast.OperationType {
	return operation.definition.OperationType()
}

// FragmentDef finds the fragment definition for given name.
func (operation *PreparedOperation) FragmentDef(name string) *ast.FragmentDefinition {
	return operation.fragmentMap[name]
}

// DefaultFieldResolver returns operation.defaultFieldResolver.
func (operation *PreparedOperation) DefaultFieldResolver() graphql.FieldResolver {
	return operation.defaultFieldResolver
}
