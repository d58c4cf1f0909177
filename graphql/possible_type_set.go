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

package graphql

// PossibleTypeSet is the set of concrete Object types that can back one AbstractType (an Interface's
// implementors, or a Union's members), used by Schema.PossibleTypes for abstract-type dispatch (type
// condition checks, runtime type resolution fallback).
type PossibleTypeSet map[Object]bool

// NewPossibleTypeSet returns an empty PossibleTypeSet.
func NewPossibleTypeSet() PossibleTypeSet {
	return PossibleTypeSet{}
}

// Add inserts t into the set.
func (s PossibleTypeSet) Add(t Object) {
	s[t] = true
}

// Contains reports whether t is a member of the set.
func (s PossibleTypeSet) Contains(t Object) bool {
	return s[t]
}
