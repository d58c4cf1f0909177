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

import (
	"context"
)

// PureFieldResolver is a marker a FieldResolver may additionally implement to declare itself safe
// for the Pure execution strategy: the runtime is allowed to call it synchronously, inline in the
// parent's value-completion step, instead of scheduling a ResolverTask for it.
//
// A pure resolver must not suspend (no blocking I/O, no awaiting a Future or a batch dispatch) and
// must not enqueue further tasks; doing so from a resolver reachable only through the Pure path is a
// programming error in the schema, not something the runtime guards against at this layer.
type PureFieldResolver interface {
	FieldResolver

	// graphqlPureFieldResolver puts a special mark so only types that intend to opt into the Pure
	// path can be assigned to PureFieldResolver.
	graphqlPureFieldResolver()
}

// PureFieldResolverFunc is an adapter to allow the use of ordinary functions as a
// PureFieldResolver.
type PureFieldResolverFunc func(ctx context.Context, source interface{}, info ResolveInfo) (interface{}, error)

// Resolve calls f(ctx, source, info).
func (f PureFieldResolverFunc) Resolve(ctx context.Context, source interface{}, info ResolveInfo) (interface{}, error) {
	return f(ctx, source, info)
}

// graphqlPureFieldResolver implements PureFieldResolver.
func (f PureFieldResolverFunc) graphqlPureFieldResolver() {}

var _ PureFieldResolver = PureFieldResolverFunc(nil)
