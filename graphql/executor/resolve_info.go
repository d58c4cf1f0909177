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

// ResolveInfo implements graphql.ResolveInfo against the compiled Selection/ResultNode model (4.4).
// One is built per field resolution (see ResolverTask.resolve and resolvePureField in
// resolver_task.go).
type ResolveInfo struct {
	opCtx      *OperationContext
	selection  *Selection
	result     *ResultNode
	parentType graphql.Object
	args       graphql.ArgumentValues
}

// fieldSelectionInfo is an adapter implementing graphql.FieldSelectionInfo for a Selection.
type fieldSelectionInfo struct {
	sel *Selection
}

var (
	_ graphql.ResolveInfo        = (*ResolveInfo)(nil)
	_ graphql.FieldSelectionInfo = fieldSelectionInfo{}
)

// Schema implements graphql.ResolveInfo.
func (info *ResolveInfo) Schema() graphql.Schema {
	return info.opCtx.Operation.Schema
}

// Document implements graphql.ResolveInfo.
func (info *ResolveInfo) Document() ast.Document {
	return info.opCtx.Operation.Document
}

// Operation implements graphql.ResolveInfo.
func (info *ResolveInfo) Operation() *ast.OperationDefinition {
	return info.opCtx.Operation.Definition
}

// DataLoaderManager implements graphql.ResolveInfo.
func (info *ResolveInfo) DataLoaderManager() graphql.DataLoaderManager {
	return info.opCtx.DataLoaderManager
}

// RootValue implements graphql.ResolveInfo.
func (info *ResolveInfo) RootValue() interface{} {
	return info.opCtx.RootValue
}

// AppContext implements graphql.ResolveInfo.
func (info *ResolveInfo) AppContext() interface{} {
	return info.opCtx.AppContext
}

// VariableValues implements graphql.ResolveInfo.
func (info *ResolveInfo) VariableValues() graphql.VariableValues {
	return info.opCtx.VariableValues
}

// ParentFieldSelection implements graphql.ResolveInfo.
func (info *ResolveInfo) ParentFieldSelection() graphql.FieldSelectionInfo {
	parent := info.opCtx.Operation.SelectionSetByID(info.selection.DeclaringSelectionSet)
	return fieldSelectionInfo{parentSelectionOf(info.opCtx.Operation, parent)}
}

// parentSelectionOf returns nil for every set, the root selection set included: no reverse lookup
// from a SelectionSet to the Selection owning it is kept, so the parent field is not recovered.
func parentSelectionOf(op *Operation, set *SelectionSet) *Selection {
	// The root selection set has no owning Selection; every other set was reached through exactly
	// one Selection (its staticChildSelectionSet or one per-concrete-type child), but that Selection
	// is not looked up here.
	if set == op.Root {
		return nil
	}
	return nil
}

// Object implements graphql.ResolveInfo.
func (info *ResolveInfo) Object() graphql.Object {
	return info.parentType
}

// FieldDefinitions implements graphql.ResolveInfo.
func (info *ResolveInfo) FieldDefinitions() []*ast.Field {
	return info.selection.Nodes
}

// Field implements graphql.ResolveInfo.
func (info *ResolveInfo) Field() graphql.Field {
	return info.selection.Field
}

// Path implements graphql.ResolveInfo.
func (info *ResolveInfo) Path() graphql.ResponsePath {
	return info.result.Path()
}

// Args implements graphql.ResolveInfo. It returns this request's re-resolved argument values
// (variables included), not the selection's compile-time literal-only Args.
func (info *ResolveInfo) Args() graphql.ArgumentValues {
	return info.args
}

//===------------------------------------------------------------------------------------------===//
// fieldSelectionInfo
//===------------------------------------------------------------------------------------------===//

// Parent implements graphql.FieldSelectionInfo.
func (info fieldSelectionInfo) Parent() graphql.FieldSelectionInfo {
	return fieldSelectionInfo{nil}
}

// FieldDefinitions implements graphql.FieldSelectionInfo.
func (info fieldSelectionInfo) FieldDefinitions() []*ast.Field {
	if info.sel == nil {
		return nil
	}
	return info.sel.Nodes
}

// Field implements graphql.FieldSelectionInfo.
func (info fieldSelectionInfo) Field() graphql.Field {
	if info.sel == nil {
		return nil
	}
	return info.sel.Field
}

// Args implements graphql.FieldSelectionInfo.
func (info fieldSelectionInfo) Args() graphql.ArgumentValues {
	if info.sel == nil {
		return graphql.NoArgumentValues()
	}
	return info.sel.Args
}
