// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package expr holds the source expression tree composed by the public query
// operators, and the lowering passes that turn it into a logical plan.
//
// Lowering is a chain of passes. Each pass is total over the constructs it
// recognizes and raises a TranslationError for the rest; translation
// failures are never retried. The structural passes (join recognition,
// correlation detection) run at prepare time, while parameter expansion runs
// at execution time because it needs the runtime parameter values.
package expr

import (
	"fmt"

	"github.com/canonical/pageair/internal/plan"
)

// QueryExpr is the root of a user-composed query: a relational source, zero
// or more predicates (combined with AND) and an optional projection.
type QueryExpr struct {
	Source SourceExpr
	Where  []ScalarExpr
	Cols   []ScalarExpr
}

// SourceExpr is a relational source: an entity set, a join of two sources,
// or a subquery.
type SourceExpr interface {
	sourceExpr()
}

// EntitySource queries the container an entity type is mapped to.
type EntitySource struct {
	Entity string
	Alias  string
}

func (*EntitySource) sourceExpr() {}

// JoinSource combines two sources. On is nil only for cross joins.
type JoinSource struct {
	Kind  plan.JoinKind
	Left  SourceExpr
	Right SourceExpr
	On    ScalarExpr
}

func (*JoinSource) sourceExpr() {}

// SubquerySource embeds a whole query as a relational source.
type SubquerySource struct {
	Query *QueryExpr
	Alias string
}

func (*SubquerySource) sourceExpr() {}

// ScalarExpr is a value-producing expression.
type ScalarExpr interface {
	scalarExpr()
}

// ColumnRef names a column, optionally qualified by a source alias.
type ColumnRef struct {
	Qualifier string
	Name      string
}

func (*ColumnRef) scalarExpr() {}

// Constant is a literal value.
type Constant struct {
	Value any
}

func (*Constant) scalarExpr() {}

// ParamRef names a parameter resolved from the query parameter set at
// execution time.
type ParamRef struct {
	Name string
}

func (*ParamRef) scalarExpr() {}

// BinaryExpr applies a binary operator to two scalars.
type BinaryExpr struct {
	Op    plan.BinaryOp
	Left  ScalarExpr
	Right ScalarExpr
}

func (*BinaryExpr) scalarExpr() {}

// InExpr tests the operand for membership of a value list. When Param is
// non-empty the list is a collection-valued parameter expanded at execution
// time; otherwise Values holds the list.
type InExpr struct {
	Operand ScalarExpr
	Values  []ScalarExpr
	Param   string
}

func (*InExpr) scalarExpr() {}

// TranslationError reports a construct the lowering passes cannot express in
// the logical plan. It carries a description of the offending sub-expression
// for diagnosis.
type TranslationError struct {
	Construct string
	Reason    string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("cannot translate %s: %s", e.Construct, e.Reason)
}

// describe names a source or scalar expression for translation errors.
func describe(e any) string {
	switch e := e.(type) {
	case *EntitySource:
		return fmt.Sprintf("entity source %q", e.Entity)
	case *JoinSource:
		return fmt.Sprintf("%s join", e.Kind)
	case *SubquerySource:
		return "subquery source"
	case *ColumnRef:
		if e.Qualifier != "" {
			return fmt.Sprintf("column %s.%s", e.Qualifier, e.Name)
		}
		return fmt.Sprintf("column %s", e.Name)
	case *Constant:
		return fmt.Sprintf("constant %v", e.Value)
	case *ParamRef:
		return fmt.Sprintf("parameter %q", e.Name)
	case *BinaryExpr:
		return fmt.Sprintf("%s expression", e.Op)
	case *InExpr:
		return "membership test"
	case nil:
		return "empty expression"
	}
	return fmt.Sprintf("%T", e)
}
