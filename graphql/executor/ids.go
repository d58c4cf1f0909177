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

// Id is a stable, monotonic identifier for a Selection or a SelectionSet within one compiled
// Operation. Ids are assigned in compilation order starting at 0 and are reused as indices into
// Operation.elementsById, which is the only owning reference: Selection/SelectionSet never hold
// pointers to each other directly (see DESIGN.md, back-references).
type Id int32

// invalidID marks a not-yet-assigned Id (0 is a valid Id: allocation starts there).
const invalidID Id = -1

// idAllocator hands out monotonically increasing Ids for one Operation's compilation. It is not
// safe for concurrent use; compilation of a single Operation is single-threaded.
type idAllocator struct {
	next Id
}

// allocate returns the next Id and advances the counter.
func (a *idAllocator) allocate() Id {
	id := a.next
	a.next++
	return id
}

// count returns how many Ids have been handed out so far; callers size elementsById with it.
func (a *idAllocator) count() int {
	return int(a.next)
}

// IncludeFlags is a 64-bit mask of runtime @include/@skip condition truth values. Bit k reflects
// whether include-condition #k (assigned a stable index at compile time, see compiler.go Stage 2)
// evaluated to true for the current request.
type IncludeFlags uint64

// maxIncludeConditions bounds how many distinct include conditions a single operation may collect;
// beyond this the bit position would overflow IncludeFlags.
const maxIncludeConditions = 64

// includePatternSet is the collapsed set of required mask patterns for one selection. The selection
// is included iff at least one pattern is a subset of the runtime IncludeFlags: (pattern & flags) ==
// pattern. An empty set (nil) means the selection is unconditionally included.
type includePatternSet []IncludeFlags

// isIncluded reports whether flags satisfies at least one stored pattern. An empty pattern set is
// always included (single comparison on the common no-conditions case).
func (patterns includePatternSet) isIncluded(flags IncludeFlags) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if flags&pattern == pattern {
			return true
		}
	}
	return false
}

// addPattern inserts candidate into the collapsed set, maintaining the invariant that no stored
// pattern is a superset of another:
//
//   - if an existing pattern P already subsumes candidate (P is a subset of candidate, i.e.
//     candidate&P == P), candidate is dominated and discarded;
//   - otherwise, any existing pattern P that candidate subsumes (candidate&P == candidate) is
//     purged, since candidate is now the more general (weaker) requirement;
//   - candidate is then appended.
//
// An unconditional path (an empty pattern, see compiler.collapseIncludePatterns) takes priority over
// this and clears the set entirely.
func (patterns includePatternSet) addPattern(candidate IncludeFlags) includePatternSet {
	kept := patterns[:0]
	for _, p := range patterns {
		if candidate&p == p {
			// p already dominates candidate; candidate contributes nothing new.
			return patterns
		}
		if candidate&p != candidate {
			// p is not subsumed by candidate; keep it.
			kept = append(kept, p)
		}
	}
	return append(kept, candidate)
}

// DeferCondition is the runtime condition attached to one `@defer` occurrence: either always-active
// (no `if` argument, or a literal `if: true`) or gated on a boolean variable reference.
type DeferCondition struct {
	// Label is the optional `label` argument given to @defer, used to group related incremental
	// payloads for callers; empty when not provided.
	Label string

	// VariableName is the name of the boolean variable controlling this @defer's `if` argument, or
	// empty when the condition is a compile-time-constant true (unconditional defer).
	VariableName string
}

// maxDeferConditions bounds how many distinct @defer occurrences an operation may collect, mirroring
// maxIncludeConditions: a DeferMask is also a 64-bit OR of condition bits.
const maxDeferConditions = 64

// DeferMask is the bitwise OR of `1 << conditionIndex` across a selection's effective defer usages.
// A zero DeferMask means the selection is never deferred.
type DeferMask uint64

// DeferUsage is one node in the parent chain of active @defer scopes enclosing a selection. Usages
// form a tree (not a flat list) because nested `...@defer` fragments each contribute their own node,
// with Parent pointing at the immediately enclosing defer scope (or nil at the top).
type DeferUsage struct {
	// Label carries DeferCondition.Label for the owning @defer, copied here for quick access without
	// chasing ConditionIndex back into the Operation's condition table.
	Label string

	// Parent is the enclosing DeferUsage, or nil if this is a top-level @defer scope.
	Parent *DeferUsage

	// ConditionIndex is the bit position (into DeferMask/runtime defer flags) of this usage's
	// DeferCondition.
	ConditionIndex int
}

// Mask returns the DeferMask contribution of this single usage (not its ancestors).
func (u *DeferUsage) Mask() DeferMask {
	if u == nil {
		return 0
	}
	return DeferMask(1) << uint(u.ConditionIndex)
}

// isAncestorOf reports whether u is the same as, or a strict ancestor of, other in the defer-scope
// parent chain. Used by Stage 4's defer-set minimisation ("deliver with the outermost active
// defer").
func (u *DeferUsage) isAncestorOf(other *DeferUsage) bool {
	for n := other; n != nil; n = n.Parent {
		if n == u {
			return true
		}
	}
	return false
}

// primaryDeferUsage walks usage's parent chain to find the outermost ancestor (including usage
// itself) whose condition bit is set in deferFlags — i.e. is "active" for this request. Returns nil
// if no ancestor in the chain is active, meaning the field belongs to the initial (non-deferred)
// response.
func primaryDeferUsage(usage *DeferUsage, deferFlags DeferMask) *DeferUsage {
	var outermost *DeferUsage
	for n := usage; n != nil; n = n.Parent {
		if deferFlags&n.Mask() != 0 {
			outermost = n
		}
	}
	return outermost
}
