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
	"github.com/artemis-run/core/graphql"
	"github.com/artemis-run/core/graphql/ast"
)

// ExecutionStrategy classifies how a Selection's value is produced at request time.
type ExecutionStrategy uint8

const (
	// StrategyDefault resolves via a ResolverTask registered on the scheduler's immediate stack; the
	// common case for resolvers that may suspend. A new ResolverTask is allocated per field; tasks
	// are not pooled.
	StrategyDefault ExecutionStrategy = iota

	// StrategyPure resolves inline, under the parent's completion step, with no task allocation. Only
	// selected when the field declares a PureFieldResolver.
	StrategyPure

	// StrategySerial forces document-order, one-at-a-time execution (used for top-level mutation
	// fields); tasks go on the scheduler's distinct serial stack.
	StrategySerial
)

// String renders the strategy name, primarily for diagnostics and test failure messages.
func (s ExecutionStrategy) String() string {
	switch s {
	case StrategyPure:
		return "Pure"
	case StrategySerial:
		return "Serial"
	default:
		return "Default"
	}
}

// Selection is a compiled, post-merge field selection: the unit the compiler emits for each
// distinct response name within a SelectionSet. Once returned from the compiler and attached to a
// SelectionSet, a Selection is read-only to every request sharing the compiled Operation, except for
// the narrowly-scoped resolver rebinding an optimiser hook may perform before first use.
type Selection struct {
	// Id is unique within the owning Operation; Operation.elementsById[Id] == this selection.
	Id Id

	// DeclaringSelectionSet is the Id of the SelectionSet this selection belongs to. Stored as an Id,
	// not a pointer, per the back-reference design note (elementsById is the sole owner).
	DeclaringSelectionSet Id

	// ResponseName is the alias (if given) or field name, i.e. the JSON key this selection occupies
	// in the response.
	ResponseName string

	// Field is the schema field definition this selection resolves.
	Field graphql.Field

	// Type is Field.Type(), cached here since it is consulted on every value-completion step.
	Type graphql.Type

	// Nodes holds every syntax Field node that contributed to this merged selection (more than one
	// when sibling occurrences were merged under the same response name).
	Nodes []*ast.Field

	// Args are the selection's coerced literal arguments (variables are re-resolved per request by
	// the runtime using Nodes[0].Arguments against OperationContext.VariableValues; literal-only
	// arguments are coerced once here at compile time as an optimisation — see compiler.go Stage 4).
	Args graphql.ArgumentValues

	// IncludePatterns is the collapsed set of required include-flag patterns; empty means
	// unconditional.
	IncludePatterns includePatternSet

	// DeferUsages are the effective (already-minimised) defer-scope usages for this selection; empty
	// means the selection is never deferred.
	DeferUsages []*DeferUsage

	// DeferMask is the OR of DeferUsages[i].Mask(); kept denormalised for the O(1) "does this
	// operation have any incremental parts touching this selection" checks.
	DeferMask DeferMask

	// Strategy selects the runtime execution path (4.4).
	Strategy ExecutionStrategy

	// PureResolver is set iff Strategy == StrategyPure; it is Field.PureResolver().
	PureResolver graphql.PureFieldResolver

	// IsInternal is true when every contributing node carried a compiler-internal directive (Stage
	// 4); internal selections are bound but excluded from selection-merging diagnostics aimed at
	// user documents.
	IsInternal bool

	// childSelectionSets caches SelectionSet ids keyed by concrete object type name for composite
	// selections bound to an abstract (interface/union) parent; nil for selections whose static Type
	// is already concrete or a leaf. Populated lazily by Operation.GetSelectionSet.
	childSelectionSets map[string]Id

	// staticChildSelectionSet is the single child SelectionSet Id for selections whose own Type
	// unwraps to a concrete Object (no abstract dispatch needed); invalidID if Type is a leaf.
	staticChildSelectionSet Id
}

// IsIncluded reports whether this selection should be visited for the given runtime include-flag
// value.
func (s *Selection) IsIncluded(flags IncludeFlags) bool {
	return s.IncludePatterns.isIncluded(flags)
}

// IsDeferred reports whether, for the given runtime defer-flag value, this selection belongs to some
// deferred branch rather than the initial response.
func (s *Selection) IsDeferred(deferFlags DeferMask) bool {
	return s.PrimaryDeferUsage(deferFlags) != nil
}

// PrimaryDeferUsage returns the outermost active DeferUsage for this selection given deferFlags, or
// nil if the selection belongs to the initial response for this request (4.1 "Primary defer
// usage").
func (s *Selection) PrimaryDeferUsage(deferFlags DeferMask) *DeferUsage {
	var primary *DeferUsage
	for _, usage := range s.DeferUsages {
		candidate := primaryDeferUsage(usage, deferFlags)
		if candidate == nil {
			// This usage has no active ancestor at all: per 4.1, if ANY usage has no active ancestor,
			// the field belongs to the initial response.
			return nil
		}
		if primary == nil || isOutermost(candidate, primary) {
			primary = candidate
		}
	}
	return primary
}

// isOutermost reports whether a is an ancestor of (or equal to) b, i.e. a is at least as outermost.
func isOutermost(a, b *DeferUsage) bool {
	if a == b {
		return true
	}
	return a.isAncestorOf(b)
}

// HasIncrementalParts reports whether this selection itself (not its descendants) carries any defer
// usage.
func (s *Selection) HasIncrementalParts() bool {
	return s.DeferMask != 0
}

// elementId implements element, letting Operation.elementsById store both Selections and
// SelectionSets behind one array indexed by Id (see DESIGN.md back-references note).
func (s *Selection) elementId() Id {
	return s.Id
}
