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
	"bytes"
	"fmt"
	"sort"

	"github.com/artemis-run/core/graphql"
	"github.com/artemis-run/core/jsonwriter"
)

// ExecutionResult is the JSON-serializable outcome of running an Operation to completion, the
// initial payload described by spec's External Interfaces: `{ data, errors?, extensions?, hasNext?,
// pending? }`. When the operation has no @defer/@stream usages at all, HasIncrementalParts is false
// and hasNext/pending are omitted from the written JSON rather than written as false/empty (4.8,
// "Compile then execute a document with no defer/stream produces no pending/... arrays").
// IsInitial distinguishes the two payload shapes this one type carries across PreparedOperation's
// ExecutionResult channel: the first value has IsInitial true and populates Data/Errors/
// Extensions/Pending per the `{ data, errors?, extensions?, hasNext?, pending? }` shape; every later
// value has IsInitial false and populates Incremental/Completed per the `{ incremental, completed,
// hasNext }` shape (6, "Outputs"). A writer should call WriteInitialResult for the former and
// WriteIncrementalResult for the latter.
type ExecutionResult struct {
	Data                *ResultNode
	Errors              graphql.Errors
	Extensions          map[string]interface{}
	Pending             []PendingResult
	Incremental         []IncrementalResult
	Completed           []CompletedResult
	HasNext             bool
	HasIncrementalParts bool
	IsInitial           bool
}

// NewExecutionResult builds the initial ExecutionResult from the OperationResult a DeferCoordinator
// produces via BeginInitialResult.
func NewExecutionResult(op OperationResult, extensions map[string]interface{}, hasIncrementalParts bool) *ExecutionResult {
	return &ExecutionResult{
		Data:                op.Data,
		Errors:              op.Errors,
		Extensions:          extensions,
		Pending:             op.Pending,
		HasNext:             op.HasNext,
		HasIncrementalParts: hasIncrementalParts,
		IsInitial:           true,
	}
}

// NewIncrementalExecutionResult builds a subsequent ExecutionResult from one of the
// DeferCoordinator's later OperationResult payloads (the ones read from Results after the initial
// payload).
func NewIncrementalExecutionResult(op OperationResult) *ExecutionResult {
	return &ExecutionResult{
		Incremental:         op.Incremental,
		Completed:           op.Completed,
		HasNext:             op.HasNext,
		HasIncrementalParts: true,
	}
}

// AsOperationResult recovers the OperationResult shape matching result's payload kind, so a caller
// can feed it to DocumentWriter.WriteInitialResult (IsInitial) or WriteIncrementalResult (otherwise)
// uniformly.
func (result *ExecutionResult) AsOperationResult() OperationResult {
	return OperationResult{
		Data:        result.Data,
		Errors:      result.Errors,
		Pending:     result.Pending,
		Incremental: result.Incremental,
		Completed:   result.Completed,
		HasNext:     result.HasNext,
	}
}

// RawJSON wraps a custom scalar's already-formatted JSON text so the writer injects it verbatim
// instead of re-encoding it (4.8, "Raw UTF-8 injection").
type RawJSON string

//===------------------------------------------------------------------------------------------===//
// NullOmissionMode
//===------------------------------------------------------------------------------------------===//

// NullOmissionMode controls which null values the writer leaves out of the written response
// entirely, rather than writing them as JSON null (4.8).
type NullOmissionMode uint8

const (
	// OmitNullsNone writes every null value, object field and list element alike.
	OmitNullsNone NullOmissionMode = iota

	// OmitNullFields leaves out object fields whose value is null.
	OmitNullFields

	// OmitNullListElements leaves out list elements that are null.
	OmitNullListElements

	// OmitNullFieldsAndListElements combines OmitNullFields and OmitNullListElements.
	OmitNullFieldsAndListElements
)

func (m NullOmissionMode) omitsFields() bool {
	return m == OmitNullFields || m == OmitNullFieldsAndListElements
}

func (m NullOmissionMode) omitsListElements() bool {
	return m == OmitNullListElements || m == OmitNullFieldsAndListElements
}

// defaultMaxDepth is the strict nesting limit a DocumentWriter enforces unless overridden (4.8).
const defaultMaxDepth = 64

// WriterOptions configures a DocumentWriter.
type WriterOptions struct {
	// NullOmission selects which nulls are dropped from the written response.
	NullOmission NullOmissionMode

	// Indent, when non-empty, is repeated once per nesting level to pretty-print the response. An
	// empty Indent produces minimised output.
	Indent string

	// MaxDepth bounds how deeply the writer will descend into the result tree before failing with an
	// error, guarding against unbounded recursion from a pathological or malicious schema. Zero or
	// negative values fall back to defaultMaxDepth.
	MaxDepth int
}

// DefaultWriterOptions returns minimised output with no null omission and the default depth limit.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{MaxDepth: defaultMaxDepth}
}

//===------------------------------------------------------------------------------------------===//
// DocumentWriter
//===------------------------------------------------------------------------------------------===//

// DocumentWriter writes ExecutionResult and incremental OperationResult payloads to a
// jsonwriter.Stream, extending result_marshaler.go's plain ResultNode traversal with null omission,
// indentation, raw scalar injection and a depth limit (4.8).
type DocumentWriter struct {
	opts WriterOptions
}

// NewDocumentWriter creates a DocumentWriter with opts, normalising a non-positive MaxDepth to
// defaultMaxDepth.
func NewDocumentWriter(opts WriterOptions) *DocumentWriter {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	return &DocumentWriter{opts: opts}
}

// MarshalExecutionResult writes result to a new buffer using opts and returns the bytes, the
// jsonwriter.Marshal analogue for the full result-document protocol.
func MarshalExecutionResult(result *ExecutionResult, opts WriterOptions) ([]byte, error) {
	var buf bytes.Buffer
	stream := jsonwriter.NewStream(&buf)
	w := NewDocumentWriter(opts)
	if err := w.WriteInitialResult(stream, result); err != nil {
		return nil, err
	}
	if err := stream.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteInitialResult writes result's initial response payload: `{ data, errors?, extensions?,
// hasNext?, pending? }` (6, "Outputs").
func (w *DocumentWriter) WriteInitialResult(stream *jsonwriter.Stream, result *ExecutionResult) error {
	stream.WriteObjectStart()
	wrote := false

	// Per the spec note on response format, write "errors" ahead of "data" to make failures obvious.
	if result.Errors.HaveOccurred() {
		stream.WriteObjectField("errors")
		stream.WriteValue(graphql.NewErrorsMarshaler(sortErrors(result.Errors)))
		wrote = true
	}

	if result.Data != nil {
		if wrote {
			stream.WriteMore()
		}
		stream.WriteObjectField("data")
		if err := w.writeResultNode(stream, result.Data, 0); err != nil {
			return err
		}
		wrote = true
	}

	if len(result.Extensions) > 0 {
		if wrote {
			stream.WriteMore()
		}
		stream.WriteObjectField("extensions")
		writeExtensions(stream, result.Extensions)
		wrote = true
	}

	if result.HasIncrementalParts {
		if wrote {
			stream.WriteMore()
		}
		stream.WriteObjectField("hasNext")
		stream.WriteBool(result.HasNext)
		wrote = true

		if len(result.Pending) > 0 {
			stream.WriteMore()
			stream.WriteObjectField("pending")
			writePendingArray(stream, result.Pending)
		}
	}

	stream.WriteObjectEnd()
	return stream.Error()
}

// WriteIncrementalResult writes one subsequent payload of a deferred/streamed delivery:
// `{ incremental: [...], completed: [...], hasNext }` (6, "Outputs").
func (w *DocumentWriter) WriteIncrementalResult(stream *jsonwriter.Stream, payload OperationResult) error {
	stream.WriteObjectStart()

	stream.WriteObjectField("incremental")
	if len(payload.Incremental) == 0 {
		stream.WriteEmptyArray()
	} else {
		stream.WriteArrayStart()
		for i, inc := range payload.Incremental {
			if i > 0 {
				stream.WriteMore()
			}
			if err := w.writeIncrementalEntry(stream, inc); err != nil {
				return err
			}
		}
		stream.WriteArrayEnd()
	}

	stream.WriteMore()
	stream.WriteObjectField("completed")
	if len(payload.Completed) == 0 {
		stream.WriteEmptyArray()
	} else {
		stream.WriteArrayStart()
		for i, c := range payload.Completed {
			if i > 0 {
				stream.WriteMore()
			}
			writeCompletedEntry(stream, c)
		}
		stream.WriteArrayEnd()
	}

	stream.WriteMore()
	stream.WriteObjectField("hasNext")
	stream.WriteBool(payload.HasNext)

	stream.WriteObjectEnd()
	return stream.Error()
}

// writeIncrementalEntry writes one element of the "incremental" array: the @defer shape carries
// "data", the (currently unproduced, see DESIGN.md) @stream shape would carry "items".
func (w *DocumentWriter) writeIncrementalEntry(stream *jsonwriter.Stream, inc IncrementalResult) error {
	stream.WriteObjectStart()

	stream.WriteObjectField("id")
	stream.WriteString(inc.Id)

	if !inc.SubPath.Empty() {
		stream.WriteMore()
		stream.WriteObjectField("subPath")
		subPath := inc.SubPath.Clone()
		stream.WriteInterface(&subPath)
	}

	if inc.Data != nil {
		stream.WriteMore()
		stream.WriteObjectField("data")
		if err := w.writeResultNode(stream, inc.Data, 0); err != nil {
			return err
		}
	}

	if len(inc.Items) > 0 {
		stream.WriteMore()
		stream.WriteObjectField("items")
		stream.WriteArrayStart()
		for i, item := range inc.Items {
			if i > 0 {
				stream.WriteMore()
			}
			if err := w.writeResultNode(stream, item, 0); err != nil {
				return err
			}
		}
		stream.WriteArrayEnd()
	}

	if inc.Errors.HaveOccurred() {
		stream.WriteMore()
		stream.WriteObjectField("errors")
		stream.WriteValue(graphql.NewErrorsMarshaler(sortErrors(inc.Errors)))
	}

	stream.WriteObjectEnd()
	return stream.Error()
}

// writeCompletedEntry writes one element of the "completed" array.
func writeCompletedEntry(stream *jsonwriter.Stream, c CompletedResult) {
	stream.WriteObjectStart()

	stream.WriteObjectField("id")
	stream.WriteString(c.Id)

	if c.Errors.HaveOccurred() {
		stream.WriteMore()
		stream.WriteObjectField("errors")
		stream.WriteValue(graphql.NewErrorsMarshaler(sortErrors(c.Errors)))
	}

	stream.WriteObjectEnd()
}

// writePendingArray writes the "pending" array of the initial response.
func writePendingArray(stream *jsonwriter.Stream, pending []PendingResult) {
	stream.WriteArrayStart()
	for i, p := range pending {
		if i > 0 {
			stream.WriteMore()
		}
		writePendingEntry(stream, p)
	}
	stream.WriteArrayEnd()
}

func writePendingEntry(stream *jsonwriter.Stream, p PendingResult) {
	stream.WriteObjectStart()

	stream.WriteObjectField("id")
	stream.WriteString(p.Id)

	stream.WriteMore()
	stream.WriteObjectField("path")
	path := p.Path.Clone()
	stream.WriteInterface(&path)

	if p.Label != "" {
		stream.WriteMore()
		stream.WriteObjectField("label")
		stream.WriteString(p.Label)
	}

	stream.WriteObjectEnd()
}

func writeExtensions(stream *jsonwriter.Stream, extensions map[string]interface{}) {
	stream.WriteObjectStart()
	i := 0
	for k, v := range extensions {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(k)
		stream.WriteInterface(v)
		i++
	}
	stream.WriteObjectEnd()
}

//===------------------------------------------------------------------------------------------===//
// ResultNode traversal
//===------------------------------------------------------------------------------------------===//

// writeResultNode writes node at the given nesting depth, honouring the writer's null-omission mode,
// indentation and depth limit. Unlike result_marshaler.go's iterative stack-based traversal (built
// for the common, unconfigured case), this version recurses: the depth limit it enforces bounds the
// recursion itself.
func (w *DocumentWriter) writeResultNode(stream *jsonwriter.Stream, node *ResultNode, depth int) error {
	if depth > w.opts.MaxDepth {
		return graphql.NewError(fmt.Sprintf(
			"response exceeds the maximum nesting depth of %d", w.opts.MaxDepth))
	}

	switch node.Kind {
	case ResultKindNil, ResultKindUnresolved:
		stream.WriteNil()

	case ResultKindLeaf:
		if raw, ok := node.Value.(RawJSON); ok {
			stream.WriteRawString(string(raw))
		} else {
			stream.WriteInterface(node.Value)
		}

	case ResultKindList:
		return w.writeList(stream, node, depth)

	case ResultKindObject:
		return w.writeObject(stream, node, depth)
	}

	return stream.Error()
}

func (w *DocumentWriter) writeObject(stream *jsonwriter.Stream, node *ResultNode, depth int) error {
	object := node.ObjectValue()
	if len(object.FieldValues) == 0 {
		stream.WriteEmptyObject()
		return stream.Error()
	}

	stream.WriteObjectStart()
	wrote := false
	for i := range object.FieldValues {
		field := &object.FieldValues[i]
		if w.opts.NullOmission.omitsFields() && field.IsNil() {
			continue
		}

		if wrote {
			stream.WriteMore()
		}
		w.writeNewlineIndent(stream, depth+1)
		stream.WriteObjectField(object.Selections[i].ResponseName)
		if w.opts.Indent != "" {
			stream.WriteRawString(" ")
		}
		if err := w.writeResultNode(stream, field, depth+1); err != nil {
			return err
		}
		wrote = true
	}

	if wrote {
		w.writeNewlineIndent(stream, depth)
	}
	stream.WriteObjectEnd()
	return stream.Error()
}

func (w *DocumentWriter) writeList(stream *jsonwriter.Stream, node *ResultNode, depth int) error {
	nodeList := node.ListValue()
	if nodeList.Empty() {
		stream.WriteEmptyArray()
		return stream.Error()
	}

	stream.WriteArrayStart()
	wrote := false

	firstChunk := nodeList.Chunks()
	chunk := firstChunk
	for {
		nodes := chunk.Nodes()
		for i := range nodes {
			elem := &nodes[i]
			if w.opts.NullOmission.omitsListElements() && elem.IsNil() {
				continue
			}

			if wrote {
				stream.WriteMore()
			}
			w.writeNewlineIndent(stream, depth+1)
			if err := w.writeResultNode(stream, elem, depth+1); err != nil {
				return err
			}
			wrote = true
		}

		chunk = chunk.Next()
		if chunk == firstChunk {
			break
		}
	}

	if wrote {
		w.writeNewlineIndent(stream, depth)
	}
	stream.WriteArrayEnd()
	return stream.Error()
}

// writeNewlineIndent writes a newline followed by depth repetitions of the writer's indent unit; a
// no-op when the writer produces minimised output.
func (w *DocumentWriter) writeNewlineIndent(stream *jsonwriter.Stream, depth int) {
	if w.opts.Indent == "" {
		return
	}
	stream.WriteRawString("\n")
	for i := 0; i < depth; i++ {
		stream.WriteRawString(w.opts.Indent)
	}
}

//===------------------------------------------------------------------------------------------===//
// Error ordering
//===------------------------------------------------------------------------------------------===//

// sortErrors returns a copy of errs whose Errors are stably sorted by path (entries with no path
// first, then lexicographically by the path's dotted/indexed string form) and whose individual
// Locations are sorted ascending by (line, column), per 4.8's "Stable ordering" requirement. The
// *graphql.Error values referenced by errs are never mutated: an error whose Locations need
// reordering is replaced in the result by a shallow copy.
func sortErrors(errs graphql.Errors) graphql.Errors {
	if len(errs.Errors) == 0 {
		return errs
	}

	sorted := make([]*graphql.Error, len(errs.Errors))
	for i, e := range errs.Errors {
		if len(e.Locations) < 2 {
			sorted[i] = e
			continue
		}
		locations := make([]graphql.ErrorLocation, len(e.Locations))
		copy(locations, e.Locations)
		sort.Slice(locations, func(i, j int) bool {
			if locations[i].Line != locations[j].Line {
				return locations[i].Line < locations[j].Line
			}
			return locations[i].Column < locations[j].Column
		})
		withSortedLocations := *e
		withSortedLocations.Locations = locations
		sorted[i] = &withSortedLocations
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Path, sorted[j].Path
		if pi.Empty() != pj.Empty() {
			return pi.Empty()
		}
		if pi.Empty() {
			return false
		}
		return pi.String() < pj.String()
	})

	return graphql.Errors{Errors: sorted}
}
