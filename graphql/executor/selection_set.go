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
)

// SelectionSet is an ordered sequence of Selections produced by the compiler for one concrete
// object type at one path. A selection set for a non-concrete parent (interface/union) does not
// exist directly; instead the owning Selection keeps one SelectionSet per possible concrete type,
// materialised lazily by Operation.GetSelectionSet.
type SelectionSet struct {
	// Id is unique within the owning Operation.
	Id Id

	// DeclaringOperation is the owning Operation's Id space; since an Operation is the compilation
	// root there is exactly one per compiled document, so this is mostly documentation — kept as a
	// pointer because, unlike Selection/SelectionSet cross-references, there is no risk of a cycle
	// through elementsById here (Operation is the array owner, not a participant in it).
	DeclaringOperation *Operation

	// Path is this selection set's location from the operation root, using response names (fields)
	// interleaved conceptually with list indices at runtime; the compiled Path only carries the
	// static (field-name) segments.
	Path graphql.ResponsePath

	// Type is the concrete object type this selection set is bound to.
	Type graphql.Object

	// Selections are the merged fields, in document-first-occurrence order.
	Selections []*Selection

	// IsConditional is true when any child selection has a non-empty IncludePatterns.
	IsConditional bool

	// HasIncrementalParts is true when any child selection carries a defer mask, meaning this
	// selection set, on some request, may deliver part of its data out of band.
	HasIncrementalParts bool
}

// ByResponseName returns the selection with the given response name, or nil. Selection sets are
// typically small (single digits of fields) so a linear scan is both correct and fast enough;
// callers that need repeated lookups should build their own index.
func (set *SelectionSet) ByResponseName(name string) *Selection {
	for _, sel := range set.Selections {
		if sel.ResponseName == name {
			return sel
		}
	}
	return nil
}

// elementId implements element.
func (set *SelectionSet) elementId() Id {
	return set.Id
}
