// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"github.com/canonical/pageair/internal/model"
	"github.com/canonical/pageair/internal/plan"
)

// lowerSource converts a relational source to its plan form. It returns the
// set of aliases the source binds, which callers use for correlation
// detection. outer holds the aliases already bound by enclosing sources.
func lowerSource(src SourceExpr, set *model.Set, outer map[string]bool) (plan.Node, map[string]bool, error) {
	switch src := src.(type) {
	case *EntitySource:
		entity, err := set.Lookup(src.Entity)
		if err != nil {
			return nil, nil, &TranslationError{Construct: describe(src), Reason: err.Error()}
		}
		alias := src.Alias
		if alias == "" {
			alias = src.Entity
		}
		source := set.Container(entity)
		if entity.DefiningQuery != "" {
			// Keyless types mapped to a defining query read from the query
			// text instead of a container. The generator renders the
			// parenthesized source verbatim.
			source = "(" + entity.DefiningQuery + ")"
		}
		return plan.NewTable(source, entity.Name, alias), map[string]bool{alias: true}, nil

	case *JoinSource:
		left, leftAliases, err := lowerSource(src.Left, set, outer)
		if err != nil {
			return nil, nil, err
		}
		rightOuter := union(outer, leftAliases)
		right, rightAliases, err := lowerSource(src.Right, set, rightOuter)
		if err != nil {
			return nil, nil, err
		}

		kind := src.Kind
		if sub, ok := src.Right.(*SubquerySource); ok && kind != plan.JoinOuterApply {
			// A subquery referencing columns of the left side is
			// correlated: it must be evaluated per left row.
			if referencesAliases(sub.Query, leftAliases) {
				kind = plan.JoinOuterApply
			}
		}

		var on plan.Scalar
		if src.On != nil {
			on, err = lowerScalar(src.On)
			if err != nil {
				return nil, nil, err
			}
		} else if kind == plan.JoinInner || kind == plan.JoinLeft {
			return nil, nil, &TranslationError{Construct: describe(src), Reason: "join has no condition"}
		}
		return plan.NewJoin(kind, left, right, on), union(leftAliases, rightAliases), nil

	case *SubquerySource:
		sub, err := Lower(src.Query, set)
		if err != nil {
			return nil, nil, err
		}
		sub.Alias = src.Alias
		return sub, map[string]bool{src.Alias: true}, nil
	}
	return nil, nil, &TranslationError{Construct: describe(src), Reason: "unsupported source expression"}
}

// referencesAliases reports whether any column reference in the query is
// qualified by one of the given aliases.
func referencesAliases(q *QueryExpr, aliases map[string]bool) bool {
	if q == nil {
		return false
	}
	for _, w := range q.Where {
		if scalarReferences(w, aliases) {
			return true
		}
	}
	for _, col := range q.Cols {
		if scalarReferences(col, aliases) {
			return true
		}
	}
	if join, ok := q.Source.(*JoinSource); ok && join.On != nil {
		if scalarReferences(join.On, aliases) {
			return true
		}
	}
	return false
}

func scalarReferences(e ScalarExpr, aliases map[string]bool) bool {
	switch e := e.(type) {
	case *ColumnRef:
		return aliases[e.Qualifier]
	case *BinaryExpr:
		return scalarReferences(e.Left, aliases) || scalarReferences(e.Right, aliases)
	case *InExpr:
		if scalarReferences(e.Operand, aliases) {
			return true
		}
		for _, v := range e.Values {
			if scalarReferences(v, aliases) {
				return true
			}
		}
	}
	return false
}

func union(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}
