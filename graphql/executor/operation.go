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
	"crypto/sha256"
	"sync"

	"github.com/artemis-run/core/graphql"
	"github.com/artemis-run/core/graphql/ast"
)

// element is implemented by *Selection and *SelectionSet so Operation.elementsById can store both
// behind one array, addressed by Id, instead of either type owning pointers to the other.
type element interface {
	elementId() Id
}

// SelectionSetOptimizer lets a caller rewrite a freshly-compiled SelectionSet's Selections slice
// (Stage 4 "Run any registered SelectionSetOptimizer hooks"). Returning a different slice is only
// valid if every newly-introduced Selection is also registered in the Operation's elementsById under
// its Id.
type SelectionSetOptimizer interface {
	OptimizeSelectionSet(op *Operation, set *SelectionSet) []*Selection
}

// Operation is the compiled artifact produced by Compile (4.1). It is immutable after compilation
// (aside from the lazy per-concrete-type SelectionSet cache, which only ever adds entries and is
// safe for concurrent readers) and is freely shared by every concurrent request executing it.
type Operation struct {
	// prepared is the PreparedOperation this Operation was compiled from; retained so later,
	// lazily-compiled per-concrete-type selection sets (GetSelectionSet) can still resolve fragment
	// spreads against the same fragment map.
	prepared *PreparedOperation

	// Id is an identifier slot for a persisted-query / prepared-operation cache above this package.
	// Compile does not assign it: it stays at its zero value unless the caller sets it.
	Id Id

	// Hash is a content hash of the printed operation definition, suitable as a cache key.
	Hash [32]byte

	// Document is the original parsed document this Operation was compiled from.
	Document ast.Document

	// Definition is the specific operation definition within Document that was compiled.
	Definition *ast.OperationDefinition

	// Schema is the type system this Operation was compiled against.
	Schema graphql.Schema

	// Root is the root SelectionSet.
	Root *SelectionSet

	// elementsById provides O(1) lookup from Id to the owning Selection or SelectionSet.
	// elementsById[id].elementId() == id is a compiler invariant (8, Testable Properties).
	elementsById []element

	// IncludeConditions are the collected @include/@skip conditions (Stage 2), indexed by bit
	// position in IncludeFlags.
	IncludeConditions []IncludeCondition

	// DeferConditions are the collected @defer conditions (Stage 2), indexed by bit position in
	// DeferMask.
	DeferConditions []DeferCondition

	// HasIncrementalParts is true when any @defer/@stream occurrence survived Stage 1's rewrite.
	HasIncrementalParts bool

	// DefaultFieldResolver is used for fields that don't provide their own resolver.
	DefaultFieldResolver graphql.FieldResolver

	// optimizers run once per freshly-compiled SelectionSet, in registration order.
	optimizers []SelectionSetOptimizer

	// abstractSetsMutex guards lazy population of childSelectionSets maps on Selections bound to
	// abstract parent types; compilation of new per-concrete-type sets happens under this lock so two
	// concurrent requests racing on the same uncached concrete type compile it exactly once.
	abstractSetsMutex sync.Mutex
}

// IncludeCondition is the runtime condition for one collected @include/@skip occurrence, as
// discovered by Stage 2. Unlike DeferCondition, include conditions are evaluated once into a final
// IncludeFlags value by OR-ing in bit k whenever condition k's variable (or literal) is true; a
// @skip directive contributes its condition inverted at evaluation time (see EvaluateIncludeFlags).
type IncludeCondition struct {
	// VariableName is the variable controlling this condition, or empty for a literal condition
	// (which Stage 1 would ordinarily have already eliminated via static exclusion — retained here
	// only for conditions the rewrite pass could not statically resolve, e.g. referenced by both an
	// always-true and an always-false directive at different call sites pre-merge).
	VariableName string

	// Negate is true when this bit should read the logical negation of the variable (the directive
	// was @skip rather than @include).
	Negate bool
}

// lookupElement returns the Selection or SelectionSet registered under id, or nil if out of range.
func (op *Operation) lookupElement(id Id) element {
	if id < 0 || int(id) >= len(op.elementsById) {
		return nil
	}
	return op.elementsById[id]
}

// Selection looks up a compiled Selection by Id.
func (op *Operation) Selection(id Id) *Selection {
	if el, ok := op.lookupElement(id).(*Selection); ok {
		return el
	}
	return nil
}

// SelectionSetByID looks up a compiled SelectionSet by Id.
func (op *Operation) SelectionSetByID(id Id) *SelectionSet {
	if el, ok := op.lookupElement(id).(*SelectionSet); ok {
		return el
	}
	return nil
}

// GetSelectionSet returns the child SelectionSet of selection for the given concrete object type,
// compiling it on first access and caching the result (4.1 "Lazy per-concrete-type sets"). It is a
// no-op returning the already-static child set for selections whose declared Type already unwraps to
// a concrete Object.
func (op *Operation) GetSelectionSet(selection *Selection, concreteType graphql.Object) (*SelectionSet, graphql.Errors) {
	if selection.staticChildSelectionSet != invalidID {
		return op.SelectionSetByID(selection.staticChildSelectionSet), graphql.NoErrors()
	}

	op.abstractSetsMutex.Lock()
	if selection.childSelectionSets == nil {
		selection.childSelectionSets = map[string]Id{}
	}
	if id, ok := selection.childSelectionSets[concreteType.Name()]; ok {
		op.abstractSetsMutex.Unlock()
		return op.SelectionSetByID(id), graphql.NoErrors()
	}
	op.abstractSetsMutex.Unlock()

	c := newCompiler(op)
	set, errs := c.compileSelectionSetForType(selection, concreteType)
	if errs.HaveOccurred() {
		return nil, errs
	}

	op.abstractSetsMutex.Lock()
	selection.childSelectionSets[concreteType.Name()] = set.Id
	op.abstractSetsMutex.Unlock()

	return set, graphql.NoErrors()
}

// EvaluateIncludeFlags computes the request-scoped IncludeFlags from variable values, evaluating
// each collected IncludeCondition once up front (per OperationContext.Initialize), rather than
// re-evaluating per selection at every visit.
func (op *Operation) EvaluateIncludeFlags(variableValues graphql.VariableValues) IncludeFlags {
	var flags IncludeFlags
	for i, cond := range op.IncludeConditions {
		value, _ := variableValues.Lookup(cond.VariableName)
		truth, _ := value.(bool)
		if cond.Negate {
			truth = !truth
		}
		if truth {
			flags |= IncludeFlags(1) << uint(i)
		}
	}
	return flags
}

// EvaluateDeferFlags is the DeferMask analogue of EvaluateIncludeFlags: bit i is set when
// DeferConditions[i] is active for this request (no VariableName means unconditional, i.e. always
// active — `@defer` with no `if` or a literal `if: true`).
func (op *Operation) EvaluateDeferFlags(variableValues graphql.VariableValues) DeferMask {
	var flags DeferMask
	for i, cond := range op.DeferConditions {
		active := true
		if cond.VariableName != "" {
			value, _ := variableValues.Lookup(cond.VariableName)
			active, _ = value.(bool)
		}
		if active {
			flags |= DeferMask(1) << uint(i)
		}
	}
	return flags
}

// hashDefinition produces a content hash for the operation definition: the SHA-256 of its printed
// form (ast.Print), which is stable across repeated compiles of identical source — sufficient for the
// cache-key role Operation.Hash plays. Fragment definitions the operation spreads are not part of
// the hashed text.
func hashDefinition(def *ast.OperationDefinition) [32]byte {
	return sha256.Sum256([]byte(ast.Print(def)))
}
