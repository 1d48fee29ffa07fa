// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/pageair/internal/expr"
	"github.com/canonical/pageair/internal/model"
	"github.com/canonical/pageair/internal/plan"
)

// Hook up gocheck into the "go test" runner.
func TestExpr(t *testing.T) { TestingT(t) }

type LowerSuite struct {
	set *model.Set
}

var _ = Suite(&LowerSuite{})

func (s *LowerSuite) SetUpSuite(c *C) {
	set, err := model.NewSet(
		model.Entity{Name: "Person", Container: "people", Key: "id", PartitionKey: "home_town"},
		model.Entity{Name: "Address", Container: "addresses", Key: "id"},
		model.Entity{Name: "PersonSummary", Base: "Person", DefiningQuery: "SELECT name FROM people"},
	)
	c.Assert(err, IsNil)
	s.set = set
}

func (s *LowerSuite) TestLowerEntitySource(c *C) {
	q := &expr.QueryExpr{
		Source: &expr.EntitySource{Entity: "Person", Alias: "p"},
		Where: []expr.ScalarExpr{
			&expr.BinaryExpr{
				Op:    plan.OpGt,
				Left:  &expr.ColumnRef{Qualifier: "p", Name: "height_cm"},
				Right: &expr.ParamRef{Name: "height"},
			},
		},
		Cols: []expr.ScalarExpr{&expr.ColumnRef{Qualifier: "p", Name: "name"}},
	}
	sel, err := expr.Lower(q, s.set)
	c.Assert(err, IsNil)

	want := plan.NewSelect(
		plan.NewTable("people", "Person", "p"),
		plan.NewBinary(plan.OpGt, plan.NewColumn("p", "height_cm"), plan.NewParameter("height")),
		plan.NewProjection(plan.NewColumn("p", "name")),
	)
	c.Assert(sel.Equal(want), Equals, true)
}

func (s *LowerSuite) TestLowerConjoinsPredicates(c *C) {
	q := &expr.QueryExpr{
		Source: &expr.EntitySource{Entity: "Person", Alias: "p"},
		Where: []expr.ScalarExpr{
			&expr.BinaryExpr{Op: plan.OpEq, Left: &expr.ColumnRef{Qualifier: "p", Name: "name"}, Right: &expr.Constant{Value: "Jim"}},
			&expr.BinaryExpr{Op: plan.OpGt, Left: &expr.ColumnRef{Qualifier: "p", Name: "id"}, Right: &expr.Constant{Value: 1}},
		},
	}
	sel, err := expr.Lower(q, s.set)
	c.Assert(err, IsNil)
	pred, ok := sel.Predicate.(*plan.Binary)
	c.Assert(ok, Equals, true)
	c.Assert(pred.Op, Equals, plan.OpAnd)
}

func (s *LowerSuite) TestLowerJoin(c *C) {
	q := &expr.QueryExpr{
		Source: &expr.JoinSource{
			Kind:  plan.JoinInner,
			Left:  &expr.EntitySource{Entity: "Person", Alias: "p"},
			Right: &expr.EntitySource{Entity: "Address", Alias: "a"},
			On: &expr.BinaryExpr{
				Op:    plan.OpEq,
				Left:  &expr.ColumnRef{Qualifier: "p", Name: "address_id"},
				Right: &expr.ColumnRef{Qualifier: "a", Name: "id"},
			},
		},
	}
	sel, err := expr.Lower(q, s.set)
	c.Assert(err, IsNil)
	join, ok := sel.Source.(*plan.Join)
	c.Assert(ok, Equals, true)
	c.Assert(join.JoinKind, Equals, plan.JoinInner)
	c.Assert(join.Left.(*plan.Table).Source, Equals, "people")
	c.Assert(join.Right.(*plan.Table).Source, Equals, "addresses")
}

func (s *LowerSuite) TestLowerCorrelatedSubqueryBecomesOuterApply(c *C) {
	// The subquery references the alias of the left source, so it must be
	// evaluated per left row.
	q := &expr.QueryExpr{
		Source: &expr.JoinSource{
			Kind: plan.JoinInner,
			Left: &expr.EntitySource{Entity: "Person", Alias: "p"},
			Right: &expr.SubquerySource{
				Alias: "a",
				Query: &expr.QueryExpr{
					Source: &expr.EntitySource{Entity: "Address", Alias: "addr"},
					Where: []expr.ScalarExpr{
						&expr.BinaryExpr{
							Op:    plan.OpEq,
							Left:  &expr.ColumnRef{Qualifier: "addr", Name: "id"},
							Right: &expr.ColumnRef{Qualifier: "p", Name: "address_id"},
						},
					},
				},
			},
			On: &expr.Constant{Value: true},
		},
	}
	sel, err := expr.Lower(q, s.set)
	c.Assert(err, IsNil)
	join, ok := sel.Source.(*plan.Join)
	c.Assert(ok, Equals, true)
	c.Assert(join.JoinKind, Equals, plan.JoinOuterApply)
	sub, ok := join.Right.(*plan.Select)
	c.Assert(ok, Equals, true)
	c.Assert(sub.Alias, Equals, "a")
}

func (s *LowerSuite) TestLowerUncorrelatedSubqueryKeepsJoinKind(c *C) {
	q := &expr.QueryExpr{
		Source: &expr.JoinSource{
			Kind: plan.JoinInner,
			Left: &expr.EntitySource{Entity: "Person", Alias: "p"},
			Right: &expr.SubquerySource{
				Alias: "a",
				Query: &expr.QueryExpr{
					Source: &expr.EntitySource{Entity: "Address", Alias: "addr"},
				},
			},
			On: &expr.BinaryExpr{
				Op:    plan.OpEq,
				Left:  &expr.ColumnRef{Qualifier: "p", Name: "address_id"},
				Right: &expr.ColumnRef{Qualifier: "a", Name: "id"},
			},
		},
	}
	sel, err := expr.Lower(q, s.set)
	c.Assert(err, IsNil)
	c.Assert(sel.Source.(*plan.Join).JoinKind, Equals, plan.JoinInner)
}

func (s *LowerSuite) TestLowerCrossJoinWithoutCondition(c *C) {
	q := &expr.QueryExpr{
		Source: &expr.JoinSource{
			Kind:  plan.JoinCross,
			Left:  &expr.EntitySource{Entity: "Person"},
			Right: &expr.EntitySource{Entity: "Address"},
		},
	}
	sel, err := expr.Lower(q, s.set)
	c.Assert(err, IsNil)
	c.Assert(sel.Source.(*plan.Join).On, IsNil)
}

func (s *LowerSuite) TestLowerInnerJoinWithoutConditionFails(c *C) {
	q := &expr.QueryExpr{
		Source: &expr.JoinSource{
			Kind:  plan.JoinInner,
			Left:  &expr.EntitySource{Entity: "Person"},
			Right: &expr.EntitySource{Entity: "Address"},
		},
	}
	_, err := expr.Lower(q, s.set)
	c.Assert(err, ErrorMatches, "cannot translate inner join: join has no condition")
	_, ok := err.(*expr.TranslationError)
	c.Assert(ok, Equals, true)
}

func (s *LowerSuite) TestLowerUnknownEntity(c *C) {
	q := &expr.QueryExpr{Source: &expr.EntitySource{Entity: "Alien"}}
	_, err := expr.Lower(q, s.set)
	c.Assert(err, ErrorMatches, `cannot translate entity source "Alien": unknown entity type "Alien"`)
}

func (s *LowerSuite) TestLowerDefiningQuerySource(c *C) {
	q := &expr.QueryExpr{Source: &expr.EntitySource{Entity: "PersonSummary", Alias: "ps"}}
	sel, err := expr.Lower(q, s.set)
	c.Assert(err, IsNil)
	c.Assert(sel.Source.(*plan.Table).Source, Equals, "(SELECT name FROM people)")
}

func (s *LowerSuite) TestRootEntity(c *C) {
	q := &expr.QueryExpr{
		Source: &expr.JoinSource{
			Kind:  plan.JoinCross,
			Left:  &expr.EntitySource{Entity: "Person", Alias: "p"},
			Right: &expr.EntitySource{Entity: "Address", Alias: "a"},
		},
	}
	c.Assert(expr.RootEntity(q), Equals, "Person")
}

type ExpandSuite struct{}

var _ = Suite(&ExpandSuite{})

func inListPlan() *plan.Select {
	return plan.NewSelect(
		plan.NewTable("people", "Person", "p"),
		plan.NewInList(plan.NewColumn("p", "id"), plan.NewParameter("ids")),
		nil,
	)
}

func (s *ExpandSuite) TestExpandCollectionParameter(c *C) {
	sel := inListPlan()
	out, derived, err := expr.ExpandParams(sel, map[string]any{"ids": []int{7, 8, 9}})
	c.Assert(err, IsNil)
	in, ok := out.(*plan.Select).Predicate.(*plan.InList)
	c.Assert(ok, Equals, true)
	c.Assert(in.Items, HasLen, 3)
	c.Assert(in.Items[0], DeepEquals, plan.Scalar(plan.NewParameter("ids_0")))
	c.Assert(derived, DeepEquals, map[string]any{"ids_0": 7, "ids_1": 8, "ids_2": 9})
	// The original plan is untouched.
	c.Assert(sel.Predicate.(*plan.InList).Items, HasLen, 1)
}

func (s *ExpandSuite) TestExpandEmptyCollectionLowersToFalse(c *C) {
	out, derived, err := expr.ExpandParams(inListPlan(), map[string]any{"ids": []int{}})
	c.Assert(err, IsNil)
	c.Assert(out.(*plan.Select).Predicate, DeepEquals, plan.Scalar(plan.NewLiteral(false)))
	c.Assert(derived, HasLen, 0)
}

func (s *ExpandSuite) TestExpandScalarParameterUnchanged(c *C) {
	sel := inListPlan()
	out, derived, err := expr.ExpandParams(sel, map[string]any{"ids": 7})
	c.Assert(err, IsNil)
	// Identity expansion returns the very same plan instance.
	c.Assert(out == plan.Node(sel), Equals, true)
	c.Assert(derived, HasLen, 0)
}

func (s *ExpandSuite) TestExpandMissingParameter(c *C) {
	_, _, err := expr.ExpandParams(inListPlan(), map[string]any{})
	c.Assert(err, ErrorMatches, `parameter "ids" not supplied`)
}

type PartitionSuite struct{}

var _ = Suite(&PartitionSuite{})

func (s *PartitionSuite) TestExtractLiteral(c *C) {
	sel := plan.NewSelect(
		plan.NewTable("people", "Person", "p"),
		plan.NewBinary(plan.OpAnd,
			plan.NewBinary(plan.OpEq, plan.NewColumn("p", "home_town"), plan.NewLiteral("Berlin")),
			plan.NewBinary(plan.OpGt, plan.NewColumn("p", "height_cm"), plan.NewLiteral(160)),
		),
		nil,
	)
	got := expr.ExtractPartitionKey(sel, "home_town")
	c.Assert(got.PartitionKey, DeepEquals, plan.Scalar(plan.NewLiteral("Berlin")))
	// Extraction is additive: the predicate term stays in place.
	c.Assert(got.Predicate.Equal(sel.Predicate), Equals, true)
}

func (s *PartitionSuite) TestExtractParameterReversedOperands(c *C) {
	sel := plan.NewSelect(
		plan.NewTable("people", "Person", "p"),
		plan.NewBinary(plan.OpEq, plan.NewParameter("town"), plan.NewColumn("p", "home_town")),
		nil,
	)
	got := expr.ExtractPartitionKey(sel, "home_town")
	c.Assert(got.PartitionKey, DeepEquals, plan.Scalar(plan.NewParameter("town")))

	v, err := expr.ResolvePartitionValue(got.PartitionKey, map[string]any{"town": "Berlin"})
	c.Assert(err, IsNil)
	c.Assert(v, Equals, "Berlin")
}

func (s *PartitionSuite) TestNoExtractionUnderOr(c *C) {
	sel := plan.NewSelect(
		plan.NewTable("people", "Person", "p"),
		plan.NewBinary(plan.OpOr,
			plan.NewBinary(plan.OpEq, plan.NewColumn("p", "home_town"), plan.NewLiteral("Berlin")),
			plan.NewBinary(plan.OpEq, plan.NewColumn("p", "home_town"), plan.NewLiteral("Kabul")),
		),
		nil,
	)
	got := expr.ExtractPartitionKey(sel, "home_town")
	c.Assert(got.PartitionKey, IsNil)
	c.Assert(got == sel, Equals, true)
}

func (s *PartitionSuite) TestNoPartitionProperty(c *C) {
	sel := plan.NewSelect(plan.NewTable("people", "Person", "p"), nil, nil)
	c.Assert(expr.ExtractPartitionKey(sel, "") == sel, Equals, true)
}

func (s *PartitionSuite) TestResolveMissingParameter(c *C) {
	_, err := expr.ResolvePartitionValue(plan.NewParameter("town"), map[string]any{})
	c.Assert(err, ErrorMatches, `parameter "town" not supplied`)
}
