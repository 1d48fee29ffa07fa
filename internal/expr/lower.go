// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"github.com/canonical/pageair/internal/model"
	"github.com/canonical/pageair/internal/plan"
)

// Lower converts a source expression tree into a logical plan using the
// entity metadata in set. The result is the provider-neutral select tree
// that the generator renders and the enumerator executes.
func Lower(q *QueryExpr, set *model.Set) (*plan.Select, error) {
	if q == nil || q.Source == nil {
		return nil, &TranslationError{Construct: "query", Reason: "no source"}
	}
	source, _, err := lowerSource(q.Source, set, nil)
	if err != nil {
		return nil, err
	}

	var predicate plan.Scalar
	for _, w := range q.Where {
		p, err := lowerScalar(w)
		if err != nil {
			return nil, err
		}
		if predicate == nil {
			predicate = p
		} else {
			predicate = plan.NewBinary(plan.OpAnd, predicate, p)
		}
	}

	var projection *plan.Projection
	if len(q.Cols) > 0 {
		columns := make([]plan.Scalar, 0, len(q.Cols))
		for _, col := range q.Cols {
			s, err := lowerScalar(col)
			if err != nil {
				return nil, err
			}
			columns = append(columns, s)
		}
		projection = plan.NewProjection(columns...)
	}

	return plan.NewSelect(source, predicate, projection), nil
}

// RootEntity returns the name of the left-most entity of the query source,
// the entity whose instances the query materializes.
func RootEntity(q *QueryExpr) string {
	for src := q.Source; src != nil; {
		switch s := src.(type) {
		case *EntitySource:
			return s.Entity
		case *JoinSource:
			src = s.Left
		case *SubquerySource:
			if s.Query == nil {
				return ""
			}
			src = s.Query.Source
		default:
			return ""
		}
	}
	return ""
}

// lowerScalar converts a scalar expression to its plan form.
func lowerScalar(e ScalarExpr) (plan.Scalar, error) {
	switch e := e.(type) {
	case *ColumnRef:
		return plan.NewColumn(e.Qualifier, e.Name), nil
	case *Constant:
		return plan.NewLiteral(e.Value), nil
	case *ParamRef:
		return plan.NewParameter(e.Name), nil
	case *BinaryExpr:
		left, err := lowerScalar(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := lowerScalar(e.Right)
		if err != nil {
			return nil, err
		}
		return plan.NewBinary(e.Op, left, right), nil
	case *InExpr:
		operand, err := lowerScalar(e.Operand)
		if err != nil {
			return nil, err
		}
		if e.Param != "" {
			// A single parameter item stands for the whole collection
			// until the expansion pass runs with the runtime values.
			return plan.NewInList(operand, plan.NewParameter(e.Param)), nil
		}
		items := make([]plan.Scalar, 0, len(e.Values))
		for _, v := range e.Values {
			s, err := lowerScalar(v)
			if err != nil {
				return nil, err
			}
			items = append(items, s)
		}
		return plan.NewInList(operand, items...), nil
	}
	return nil, &TranslationError{Construct: describe(e), Reason: "unsupported scalar expression"}
}
