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

package graphql

import (
	"github.com/artemis-run/core/jsonwriter"
)

// errorsMarshaler implements jsonwriter.ValueMarshaler to encode an Errors value to the "errors"
// array of a GraphQL response, mirroring errorMarshaller's jsoniter encoding of a single Error.
type errorsMarshaler struct {
	errs Errors
}

// NewErrorsMarshaler creates a marshaler that writes errs as a GraphQL response "errors" array with
// jsonwriter.
func NewErrorsMarshaler(errs Errors) jsonwriter.ValueMarshaler {
	return errorsMarshaler{errs}
}

// MarshalJSONTo implements jsonwriter.ValueMarshaler.
func (marshaler errorsMarshaler) MarshalJSONTo(stream *jsonwriter.Stream) error {
	errs := marshaler.errs.Errors
	if len(errs) == 0 {
		stream.WriteEmptyArray()
		return nil
	}

	stream.WriteArrayStart()
	for i, e := range errs {
		if i > 0 {
			stream.WriteMore()
		}
		writeErrorJSON(stream, e)
	}
	stream.WriteArrayEnd()
	return nil
}

// writeErrorJSON writes one Error's response representation, the jsonwriter analogue of
// errorMarshaller.Encode.
func writeErrorJSON(stream *jsonwriter.Stream, err *Error) {
	stream.WriteObjectStart()

	stream.WriteObjectField("message")
	stream.WriteInterface(err.Message)

	if numLocations := len(err.Locations); numLocations > 0 {
		stream.WriteMore()
		stream.WriteObjectField("locations")
		stream.WriteArrayStart()
		for i := range err.Locations {
			location := &err.Locations[i]
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectStart()
			stream.WriteObjectField("line")
			stream.WriteUint(location.Line)
			stream.WriteMore()
			stream.WriteObjectField("column")
			stream.WriteUint(location.Column)
			stream.WriteObjectEnd()
		}
		stream.WriteArrayEnd()
	}

	if !err.Path.Empty() {
		stream.WriteMore()
		stream.WriteObjectField("path")
		path := err.Path.Clone()
		stream.WriteInterface(&path)
	}

	if numExtensions := len(err.Extensions); numExtensions > 0 {
		stream.WriteMore()
		stream.WriteObjectField("extensions")
		stream.WriteObjectStart()
		i := 0
		for k, v := range err.Extensions {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(k)
			stream.WriteInterface(v)
			i++
		}
		stream.WriteObjectEnd()
	}

	stream.WriteObjectEnd()
}
