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
	"fmt"

	"github.com/artemis-run/core/graphql"
	"github.com/artemis-run/core/graphql/ast"
	"github.com/artemis-run/core/graphql/internal/value"
)

// compiler drives the four compilation stages (4.1) for one Operation. A fresh compiler is used for
// the initial root compilation and again, on demand, for each lazily-materialised per-concrete-type
// selection set (Operation.GetSelectionSet); both share the same condition-index tables so bit
// positions stay stable within one Operation.
type compiler struct {
	op  *Operation
	ids idAllocator

	// includeConditionIndex assigns a stable bit position to each distinct occurrence of a
	// variable-gated @include/@skip directive, keyed by the directive-bearing AST node and whether it
	// was @skip (so a field carrying both @include($a) and @skip($a) gets two distinct bits, since
	// they are independent conditions that happen to read the same variable).
	includeConditionIndex map[includeConditionKey]int

	// deferConditionIndex assigns a stable bit position to each distinct @defer occurrence, keyed by
	// the inline fragment or fragment spread AST node carrying it.
	deferConditionIndex map[ast.Node]int
}

// includeConditionKey identifies one syntactic @include/@skip occurrence.
type includeConditionKey struct {
	node   ast.Node
	negate bool
}

// fieldSelectionNode is one contributing occurrence of a merged field (4.1 Stage 3).
type fieldSelectionNode struct {
	syntaxNode      *ast.Field
	pathIncludeFlag IncludeFlags
	deferUsage      *DeferUsage
	isInternal      bool
}

// traversalFrame is one entry of the LIFO stack driving Stage 1+3's combined fragment-inlining field
// collection, grounded on graphql/executor/execute.go's buildChildExecutionNodesForSelectionSet.
// Unlike the teacher's request-scoped version, each frame also carries the accumulated include
// pattern and defer-usage chain head contributed by the fragments on the path leading to it.
type traversalFrame struct {
	selectionSet    ast.SelectionSet
	selectionIndex  int
	includePattern  IncludeFlags
	deferUsage      *DeferUsage
	fromInternalDir bool
}

// newCompiler creates a compiler sharing op's condition tables (used both for the initial root
// compile and for compiling additional per-concrete-type sets against the same Operation).
func newCompiler(op *Operation) *compiler {
	return &compiler{
		op:                    op,
		includeConditionIndex: map[includeConditionKey]int{},
		deferConditionIndex:   map[ast.Node]int{},
	}
}

// Compile runs the full four-stage compilation for prepared, producing a ready-to-execute
// Operation.
func Compile(prepared *PreparedOperation) (*Operation, graphql.Errors) {
	op := &Operation{
		prepared:             prepared,
		Document:             prepared.Document(),
		Definition:           prepared.Definition(),
		Schema:               prepared.Schema(),
		DefaultFieldResolver: prepared.DefaultFieldResolver(),
	}
	op.Hash = hashDefinition(op.Definition)

	c := newCompiler(op)

	root, errs := c.compileRoot()
	if errs.HaveOccurred() {
		return nil, errs
	}

	op.Root = root
	op.elementsById = make([]element, c.ids.count())
	c.fill(op.Root)

	return op, graphql.NoErrors()
}

// fill registers set and its selections (recursively, through already-materialised static child
// sets) into op.elementsById. Selection sets compiled lazily later (abstract dispatch) register
// themselves directly in compileSelectionSetForType instead of through this initial pass.
func (c *compiler) fill(set *SelectionSet) {
	c.op.elementsById[set.Id] = set
	for _, sel := range set.Selections {
		c.op.elementsById[sel.Id] = sel
		if sel.staticChildSelectionSet != invalidID {
			if child := c.op.SelectionSetByID(sel.staticChildSelectionSet); child != nil {
				c.fill(child)
			}
		}
	}
}

// compileRoot compiles the operation's root selection set against its root object type, and marks
// op.HasIncrementalParts if any descendant carries a defer usage.
func (c *compiler) compileRoot() (*SelectionSet, graphql.Errors) {
	rootType, errs := rootTypeOf(c.op.Schema, c.op.Definition)
	if errs.HaveOccurred() {
		return nil, errs
	}

	isMutationRoot := c.op.Definition.OperationType() == ast.OperationTypeMutation

	set, errs := c.compileSelectionSet(c.op.Definition.SelectionSet, rootType, graphql.ResponsePath{}, isMutationRoot)
	if errs.HaveOccurred() {
		return nil, errs
	}

	if set.HasIncrementalParts {
		c.op.HasIncrementalParts = true
	}
	return set, graphql.NoErrors()
}

// rootTypeOf resolves the schema root type for definition's operation kind.
func rootTypeOf(schema graphql.Schema, definition *ast.OperationDefinition) (graphql.Object, graphql.Errors) {
	switch definition.OperationType() {
	case ast.OperationTypeQuery:
		if t := schema.Query(); t != nil {
			return t, graphql.NoErrors()
		}
		return nil, graphql.ErrorsOf("Schema does not define the required query root type.",
			[]graphql.ErrorLocation{graphql.ErrorLocationOfASTNode(definition)})
	case ast.OperationTypeMutation:
		if t := schema.Mutation(); t != nil {
			return t, graphql.NoErrors()
		}
		return nil, graphql.ErrorsOf("Schema is not configured for mutations.",
			[]graphql.ErrorLocation{graphql.ErrorLocationOfASTNode(definition)})
	case ast.OperationTypeSubscription:
		if t := schema.Subscription(); t != nil {
			return t, graphql.NoErrors()
		}
		return nil, graphql.ErrorsOf("Schema is not configured for subscriptions.",
			[]graphql.ErrorLocation{graphql.ErrorLocationOfASTNode(definition)})
	default:
		return nil, graphql.ErrorsOf("Can only have query, mutation and subscription operations.",
			[]graphql.ErrorLocation{graphql.ErrorLocationOfASTNode(definition)})
	}
}

// compileSelectionSetForType compiles the child selection set for selection at concreteType; used
// by Operation.GetSelectionSet for abstract-parent dispatch. It reuses the same condition-index
// tables as the selection's declaring compiler so bit positions are stable, by re-deriving a
// compiler bound to the same Operation (condition tables are keyed by AST node identity, which is
// stable regardless of which compiler instance observes it first).
func (c *compiler) compileSelectionSetForType(selection *Selection, concreteType graphql.Object) (*SelectionSet, graphql.Errors) {
	declaring := c.op.SelectionSetByID(selection.DeclaringSelectionSet)
	path := declaring.Path
	path.AppendFieldName(selection.ResponseName)

	set, errs := c.compileSelectionSet(selectionSetOfField(selection), concreteType, path, false)
	if errs.HaveOccurred() {
		return nil, errs
	}

	grown := make([]element, len(c.op.elementsById)+c.ids.count())
	copy(grown, c.op.elementsById)
	c.op.elementsById = grown
	c.fill(set)

	if set.HasIncrementalParts {
		c.op.HasIncrementalParts = true
	}
	return set, graphql.NoErrors()
}

// selectionSetOfField returns the raw AST selection set a compiled field selection was bound to,
// taking it from the first contributing node (all contributing nodes' selection sets are merged by
// the traversal itself, so any one of them is a valid starting point).
func selectionSetOfField(selection *Selection) ast.SelectionSet {
	return selection.Nodes[0].SelectionSet
}

// compileSelectionSet is the combined Stage 1 (rewrite/fragment-inlining) + Stage 3 (field
// collection) + Stage 4 (selection-set construction) implementation for one concrete parent type at
// one path.
func (c *compiler) compileSelectionSet(
	rawSet ast.SelectionSet,
	parentType graphql.Object,
	path graphql.ResponsePath,
	isMutationRoot bool) (*SelectionSet, graphql.Errors) {

	setID := c.ids.allocate()
	set := &SelectionSet{
		Id:                 setID,
		DeclaringOperation: c.op,
		Path:               path,
		Type:               parentType,
	}

	byName, order, errs := c.collectFields(rawSet, parentType)
	if errs.HaveOccurred() {
		return nil, errs
	}

	selections := make([]*Selection, 0, len(order))
	for _, name := range order {
		sel, errs := c.buildSelection(name, byName[name], set, parentType, isMutationRoot)
		if errs.HaveOccurred() {
			return nil, errs
		}
		if sel == nil {
			// Dropped: schema doesn't define the field (per spec, silently skipped unless validation
			// already rejected the document).
			continue
		}
		selections = append(selections, sel)
		if len(sel.IncludePatterns) > 0 {
			set.IsConditional = true
		}
		if sel.DeferMask != 0 {
			set.HasIncrementalParts = true
		}
	}
	set.Selections = selections

	for _, optimizer := range c.op.optimizers {
		replacement := optimizer.OptimizeSelectionSet(c.op, set)
		if replacement != nil {
			set.Selections = replacement
		}
	}

	return set, graphql.NoErrors()
}

// collectFields walks rawSet (and, transitively, every fragment it spreads or inlines) via the
// teacher's LIFO-stack discipline, grouping contributing ast.Field nodes by response name while
// threading each path's accumulated include pattern and defer-usage chain. visitedFragmentNames
// prevents a named fragment from being applied twice within the same selection set (same rule as
// execute.go).
func (c *compiler) collectFields(
	rawSet ast.SelectionSet,
	parentType graphql.Object,
) (map[string][]fieldSelectionNode, []string, graphql.Errors) {
	byName := map[string][]fieldSelectionNode{}
	var order []string
	visitedFragmentNames := map[string]bool{}

	stack := []traversalFrame{{selectionSet: rawSet}}

	for len(stack) > 0 {
		frame := &stack[len(stack)-1]
		numSelections := len(frame.selectionSet)
		interrupted := false

		for frame.selectionIndex < numSelections && !interrupted {
			sel := frame.selectionSet[frame.selectionIndex]
			frame.selectionIndex++
			if frame.selectionIndex >= numSelections {
				stack = stack[:len(stack)-1]
			}

			switch node := sel.(type) {
			case *ast.Field:
				included, skip, errs := c.evaluateIncludeSkip(node.Directives)
				if errs.HaveOccurred() {
					return nil, nil, errs
				}
				if skip {
					continue
				}
				pattern := frame.includePattern | included

				name := node.ResponseKey()
				if _, ok := byName[name]; !ok {
					order = append(order, name)
				}
				byName[name] = append(byName[name], fieldSelectionNode{
					syntaxNode:      node,
					pathIncludeFlag: pattern,
					deferUsage:      frame.deferUsage,
					isInternal:      frame.fromInternalDir,
				})

			case *ast.InlineFragment:
				included, skip, errs := c.evaluateIncludeSkip(node.Directives)
				if errs.HaveOccurred() {
					return nil, nil, errs
				}
				if skip {
					continue
				}
				if node.HasTypeCondition() && !c.typeConditionSatisfies(node.TypeCondition, parentType) {
					continue
				}

				deferUsage, errs := c.evaluateDefer(node, node.Directives, frame.deferUsage)
				if errs.HaveOccurred() {
					return nil, nil, errs
				}

				stack = append(stack, traversalFrame{
					selectionSet:   node.SelectionSet,
					includePattern: frame.includePattern | included,
					deferUsage:     deferUsage,
				})
				interrupted = true

			case *ast.FragmentSpread:
				fragmentName := node.Name.Value()
				if visitedFragmentNames[fragmentName] {
					continue
				}
				visitedFragmentNames[fragmentName] = true

				included, skip, errs := c.evaluateIncludeSkip(node.Directives)
				if errs.HaveOccurred() {
					return nil, nil, errs
				}
				if skip {
					continue
				}

				fragmentDef := c.op.prepared.FragmentDef(fragmentName)
				if fragmentDef == nil {
					return nil, nil, graphql.ErrorsOf(
						fmt.Sprintf(`Unknown fragment "%s".`, fragmentName),
						[]graphql.ErrorLocation{graphql.ErrorLocationOfASTNode(node)})
				}
				if !c.typeConditionSatisfies(fragmentDef.TypeCondition, parentType) {
					continue
				}

				deferUsage, errs := c.evaluateDefer(node, node.Directives, frame.deferUsage)
				if errs.HaveOccurred() {
					return nil, nil, errs
				}

				stack = append(stack, traversalFrame{
					selectionSet:   fragmentDef.SelectionSet,
					includePattern: frame.includePattern | included,
					deferUsage:     deferUsage,
				})
				interrupted = true
			}
		}
	}

	return byName, order, graphql.NoErrors()
}

// evaluateIncludeSkip evaluates @include/@skip for one selection node. It returns the IncludeFlags
// bit this occurrence itself contributes (zero if both directives are absent, or resolved away
// statically) and whether the node is statically excluded (skip == true means "drop this node
// entirely", per Stage 1's static-exclusion optimisation).
func (c *compiler) evaluateIncludeSkip(directives ast.Directives) (contributed IncludeFlags, skip bool, errs graphql.Errors) {
	for _, kind := range []struct {
		directive graphql.Directive
		negate    bool
	}{
		{graphql.SkipDirective(), true},
		{graphql.IncludeDirective(), false},
	} {
		node := findDirective(directives, kind.directive.Name())
		if node == nil {
			continue
		}
		ifArg := findArgument(node, "if")
		if ifArg == nil {
			continue
		}

		switch v := ifArg.Value.(type) {
		case ast.Variable:
			key := includeConditionKey{node: node, negate: kind.negate}
			idx, ok := c.includeConditionIndex[key]
			if !ok {
				if len(c.includeConditionIndex) >= maxIncludeConditions {
					return 0, false, graphql.ErrorsOf("Exceeded the maximum number of distinct @include/@skip conditions in one operation.")
				}
				idx = len(c.includeConditionIndex)
				c.includeConditionIndex[key] = idx
				c.op.IncludeConditions = append(c.op.IncludeConditions, IncludeCondition{
					VariableName: v.Name.Value(),
					Negate:       kind.negate,
				})
			}
			contributed |= IncludeFlags(1) << uint(idx)

		case ast.BooleanValue:
			// @skip(if:true) or @include(if:false): statically excluded. Otherwise statically
			// included, contributing no runtime bit.
			if kind.negate == v.Value() {
				return 0, true, graphql.NoErrors()
			}
		}
	}
	return contributed, false, graphql.NoErrors()
}

// evaluateDefer evaluates an (optional) @defer directive on an inline fragment or fragment spread,
// returning the DeferUsage to attach to the fragment's contents (parent is the enclosing usage from
// the path so far). Returns parent unchanged (no new scope) if @defer is absent or statically
// `if: false`.
func (c *compiler) evaluateDefer(node ast.Node, directives ast.Directives, parent *DeferUsage) (*DeferUsage, graphql.Errors) {
	directiveNode := findDirective(directives, graphql.DeferDirective().Name())
	if directiveNode == nil {
		return parent, graphql.NoErrors()
	}

	label := ""
	if labelArg := findArgument(directiveNode, "label"); labelArg != nil {
		if s, ok := labelArg.Value.(ast.StringValue); ok {
			label = string(s)
		}
	}

	variableName := ""
	if ifArg := findArgument(directiveNode, "if"); ifArg != nil {
		switch v := ifArg.Value.(type) {
		case ast.Variable:
			variableName = v.Name.Value()
		case ast.BooleanValue:
			if !bool(v) {
				// @defer(if:false) is equivalent to no @defer.
				return parent, graphql.NoErrors()
			}
		}
	}

	idx, ok := c.deferConditionIndex[node]
	if !ok {
		if len(c.deferConditionIndex) >= maxDeferConditions {
			return nil, graphql.ErrorsOf("Exceeded the maximum number of distinct @defer conditions in one operation.")
		}
		idx = len(c.deferConditionIndex)
		c.deferConditionIndex[node] = idx
		c.op.DeferConditions = append(c.op.DeferConditions, DeferCondition{
			Label:        label,
			VariableName: variableName,
		})
	}

	return &DeferUsage{
		Label:          label,
		Parent:         parent,
		ConditionIndex: idx,
	}, graphql.NoErrors()
}

// buildSelection implements Stage 4 for one response name with its collected contributing nodes.
func (c *compiler) buildSelection(
	responseName string,
	nodes []fieldSelectionNode,
	declaring *SelectionSet,
	parentType graphql.Object,
	isMutationRoot bool) (*Selection, graphql.Errors) {

	fieldName := nodes[0].syntaxNode.Name.Value()
	for _, n := range nodes[1:] {
		if n.syntaxNode.Name.Value() != fieldName {
			panic(fmt.Sprintf(
				"artemis/executor: selection-merging invariant violated for response name %q: "+
					"field names %q and %q disagree; the field-selection-merging checker (C3) should "+
					"have rejected this document before compilation", responseName, fieldName, n.syntaxNode.Name.Value()))
		}
	}

	fieldDef := c.findFieldDef(parentType, fieldName)
	if fieldDef == nil {
		// Per spec 3.c, a field absent from the schema is silently dropped (validation, not the
		// compiler, is responsible for rejecting the document in that case).
		return nil, graphql.NoErrors()
	}

	args, err := value.ArgumentValues(fieldDef, nodes[0].syntaxNode, graphql.NoVariableValues())
	if err != nil {
		// Argument references a variable: literal-only coercion deferred to the runtime per selection
		// (variables aren't known at compile time); fall back to an empty set here and let the runtime
		// recompute per request (4.1 Stage 4 note on literal-arguments-only compile-time coercion).
		args = graphql.NoArgumentValues()
	}

	patterns, unconditional := c.collapseIncludePatterns(nodes)
	if unconditional {
		patterns = nil
	}

	deferUsages, isDeferred := c.minimizeDeferUsages(nodes)
	if !isDeferred {
		deferUsages = nil
	}

	isInternal := true
	for _, n := range nodes {
		if !n.isInternal {
			isInternal = false
			break
		}
	}

	id := c.ids.allocate()
	sel := &Selection{
		Id:                      id,
		DeclaringSelectionSet:   declaring.Id,
		ResponseName:            responseName,
		Field:                   fieldDef,
		Type:                    fieldDef.Type(),
		Args:                    args,
		IncludePatterns:         patterns,
		DeferUsages:             deferUsages,
		IsInternal:              isInternal,
		staticChildSelectionSet: invalidID,
	}
	sel.DeferMask = deferMaskOf(deferUsages)

	for _, n := range nodes {
		sel.Nodes = append(sel.Nodes, n.syntaxNode)
	}

	switch {
	case isMutationRoot:
		sel.Strategy = StrategySerial
	case fieldDef.PureResolver() != nil:
		sel.Strategy = StrategyPure
		sel.PureResolver = fieldDef.PureResolver()
	default:
		sel.Strategy = StrategyDefault
	}

	if concrete, ok := concreteChildType(fieldDef.Type()); ok {
		childSet, errs := c.compileSelectionSet(selectionSetOfField(sel), concrete, childPath(declaring.Path, responseName), false)
		if errs.HaveOccurred() {
			return nil, errs
		}
		sel.staticChildSelectionSet = childSet.Id
	}

	return sel, graphql.NoErrors()
}

// childPath appends responseName to a copy of parent.
func childPath(parent graphql.ResponsePath, responseName string) graphql.ResponsePath {
	path := parent.Clone()
	path.AppendFieldName(responseName)
	return path
}

// concreteChildType reports whether t (after unwrapping NonNull/List) is a concrete Object type
// whose selection set can be compiled statically (no per-request abstract-type dispatch needed).
func concreteChildType(t graphql.Type) (graphql.Object, bool) {
	for {
		switch w := t.(type) {
		case graphql.NonNull:
			t = w.InnerType()
		case graphql.List:
			t = w.ElementType()
		case graphql.Object:
			return w, true
		default:
			return nil, false
		}
	}
}

// collapseIncludePatterns runs Stage 4's pattern-collapse algorithm across nodes' contributed
// per-path patterns. unconditional is true when any node was reached with an empty pattern (always
// included), in which case the whole selection is unconditional and the caller discards patterns.
func (c *compiler) collapseIncludePatterns(nodes []fieldSelectionNode) (includePatternSet, bool) {
	var patterns includePatternSet
	for _, n := range nodes {
		if n.pathIncludeFlag == 0 {
			return nil, true
		}
		patterns = patterns.addPattern(n.pathIncludeFlag)
	}
	return patterns, false
}

// minimizeDeferUsages implements Stage 4's defer-set minimisation: if any contributing node is
// non-deferred, the field is not deferred at all; otherwise each node's usage survives unless some
// other node's usage is a strict ancestor of it (the field is delivered with its outermost active
// defer scope among the paths that reach it).
func (c *compiler) minimizeDeferUsages(nodes []fieldSelectionNode) ([]*DeferUsage, bool) {
	for _, n := range nodes {
		if n.deferUsage == nil {
			return nil, false
		}
	}

	var kept []*DeferUsage
	seen := map[*DeferUsage]bool{}
	for _, n := range nodes {
		if seen[n.deferUsage] {
			continue
		}
		dominated := false
		for _, other := range nodes {
			if other.deferUsage != n.deferUsage && other.deferUsage.isAncestorOf(n.deferUsage) {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, n.deferUsage)
			seen[n.deferUsage] = true
		}
	}
	return kept, true
}

// deferMaskOf ORs together the Mask() of each usage.
func deferMaskOf(usages []*DeferUsage) DeferMask {
	var mask DeferMask
	for _, u := range usages {
		mask |= u.Mask()
	}
	return mask
}

// findFieldDef looks up fieldName on parentType, special-casing the introspection meta-fields:
// __typename on every object type (the query root included), and __schema and __type on the query
// root only.
func (c *compiler) findFieldDef(parentType graphql.Object, fieldName string) graphql.Field {
	if fieldName == graphql.TypenameMetaFieldName {
		return graphql.TypenameMetaFieldDef()
	}
	if c.op.Schema.Query() == parentType {
		switch fieldName {
		case graphql.SchemaMetaFieldName:
			return graphql.SchemaMetaFieldDef()
		case graphql.TypeMetaFieldName:
			return graphql.TypeMetaFieldDef()
		}
	}
	return parentType.Fields()[fieldName]
}

// typeConditionSatisfies mirrors execute.go's doesTypeConditionSatisfy.
func (c *compiler) typeConditionSatisfies(typeCondition ast.NamedType, t graphql.Object) bool {
	conditionalType := c.op.Schema.TypeFromAST(typeCondition)
	if conditionalType == t {
		return true
	}
	if abstractType, ok := conditionalType.(graphql.AbstractType); ok {
		return c.op.Schema.PossibleTypes(abstractType).Contains(t)
	}
	return false
}

// findDirective returns the first directive named name in directives, or nil.
func findDirective(directives ast.Directives, name string) *ast.Directive {
	for _, d := range directives {
		if d.Name.Value() == name {
			return d
		}
	}
	return nil
}

// findArgument returns the named argument on a directive node, or nil.
func findArgument(directive *ast.Directive, name string) *ast.Argument {
	for _, a := range directive.Arguments {
		if a.Name.Value() == name {
			return a
		}
	}
	return nil
}
