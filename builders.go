// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package pageair

import (
	"strings"

	"github.com/canonical/pageair/internal/expr"
	"github.com/canonical/pageair/internal/plan"
)

// Expr is a scalar expression composed by the query operators: a column
// reference, a constant, a parameter placeholder, or a combination of them.
type Expr struct {
	e expr.ScalarExpr
}

// Col references a column. A dotted reference like "p.name" qualifies the
// column with a source alias; a bare name is resolved against the whole
// query source.
func Col(ref string) Expr {
	if qualifier, name, ok := strings.Cut(ref, "."); ok {
		return Expr{e: &expr.ColumnRef{Qualifier: qualifier, Name: name}}
	}
	return Expr{e: &expr.ColumnRef{Name: ref}}
}

// Lit embeds a constant value in the query.
func Lit(v any) Expr {
	return Expr{e: &expr.Constant{Value: v}}
}

// Param references a named parameter supplied at query time.
func Param(name string) Expr {
	return Expr{e: &expr.ParamRef{Name: name}}
}

func binary(op plan.BinaryOp, left, right Expr) Expr {
	return Expr{e: &expr.BinaryExpr{Op: op, Left: left.e, Right: right.e}}
}

// Comparison and boolean combinators.
func Eq(left, right Expr) Expr { return binary(plan.OpEq, left, right) }
func Ne(left, right Expr) Expr { return binary(plan.OpNe, left, right) }
func Lt(left, right Expr) Expr { return binary(plan.OpLt, left, right) }
func Le(left, right Expr) Expr { return binary(plan.OpLe, left, right) }
func Gt(left, right Expr) Expr { return binary(plan.OpGt, left, right) }
func Ge(left, right Expr) Expr { return binary(plan.OpGe, left, right) }
func And(left, right Expr) Expr { return binary(plan.OpAnd, left, right) }
func Or(left, right Expr) Expr  { return binary(plan.OpOr, left, right) }

// In tests operand for membership of a fixed list of values.
func In(operand Expr, items ...Expr) Expr {
	values := make([]expr.ScalarExpr, 0, len(items))
	for _, it := range items {
		values = append(values, it.e)
	}
	return Expr{e: &expr.InExpr{Operand: operand.e, Values: values}}
}

// InParam tests operand for membership of a collection-valued parameter. The
// collection is expanded into one placeholder per element when the query
// runs, so the same statement serves any collection size.
func InParam(operand Expr, param string) Expr {
	return Expr{e: &expr.InExpr{Operand: operand.e, Param: param}}
}

// QueryExpr is a query under composition. Builders mutate and return the
// receiver, so queries read as a chain:
//
//	q := pageair.From("Person").As("p").
//		Where(pageair.Eq(pageair.Col("p.name"), pageair.Param("name"))).
//		Select(pageair.Col("p.id"), pageair.Col("p.name"))
type QueryExpr struct {
	inner *expr.QueryExpr
	alias string
}

// From starts a query over an entity type.
func From(entity string) *QueryExpr {
	return &QueryExpr{inner: &expr.QueryExpr{Source: &expr.EntitySource{Entity: entity}}}
}

// As names the query source so columns can be qualified with the alias.
func (q *QueryExpr) As(alias string) *QueryExpr {
	q.alias = alias
	if es, ok := q.inner.Source.(*expr.EntitySource); ok {
		es.Alias = alias
	}
	return q
}

// source returns the query as a relational source for embedding in a join.
// A bare entity query embeds directly; anything with predicates or a
// projection embeds as a subquery.
func (q *QueryExpr) source() expr.SourceExpr {
	if len(q.inner.Where) == 0 && len(q.inner.Cols) == 0 {
		if es, ok := q.inner.Source.(*expr.EntitySource); ok {
			return es
		}
	}
	return &expr.SubquerySource{Query: q.inner, Alias: q.alias}
}

func (q *QueryExpr) join(kind plan.JoinKind, right *QueryExpr, on expr.ScalarExpr) *QueryExpr {
	q.inner = &expr.QueryExpr{Source: &expr.JoinSource{
		Kind:  kind,
		Left:  q.source(),
		Right: right.source(),
		On:    on,
	}}
	q.alias = ""
	return q
}

// Join adds an inner join with the given condition.
func (q *QueryExpr) Join(right *QueryExpr, on Expr) *QueryExpr {
	return q.join(plan.JoinInner, right, on.e)
}

// LeftJoin adds a left outer join with the given condition.
func (q *QueryExpr) LeftJoin(right *QueryExpr, on Expr) *QueryExpr {
	return q.join(plan.JoinLeft, right, on.e)
}

// CrossJoin adds an unconditioned cross join.
func (q *QueryExpr) CrossJoin(right *QueryExpr) *QueryExpr {
	return q.join(plan.JoinCross, right, nil)
}

// Apply joins the right side evaluated once per row of the left side. A
// right side referencing the left side's aliases is recognized as correlated
// during lowering; Apply forces the evaluation order even when it is not.
func (q *QueryExpr) Apply(right *QueryExpr) *QueryExpr {
	return q.join(plan.JoinOuterApply, right, nil)
}

// Where adds a predicate. Multiple predicates combine with AND.
func (q *QueryExpr) Where(e Expr) *QueryExpr {
	q.inner.Where = append(q.inner.Where, e.e)
	return q
}

// Select sets the projection. Without it the query yields every column of
// the source.
func (q *QueryExpr) Select(cols ...Expr) *QueryExpr {
	for _, col := range cols {
		q.inner.Cols = append(q.inner.Cols, col.e)
	}
	return q
}
