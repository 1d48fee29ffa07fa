// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package gen renders a logical plan into the query text sent to a store
// client. The text uses @name placeholders for parameters; which names a
// plan references is reported alongside the text so the executor can check
// the supplied parameter set before the first round trip.
package gen

import (
	"fmt"
	"strings"

	"github.com/canonical/pageair/internal/plan"
)

// Query is the rendered form of a plan.
type Query struct {
	// Text is the query text with @name placeholders.
	Text string
	// Params lists the parameter names the text references, in order of
	// first appearance.
	Params []string
}

// Render generates query text for a select plan.
func Render(sel *plan.Select) (*Query, error) {
	g := &generator{seen: map[string]bool{}}
	if err := g.selectNode(sel, false); err != nil {
		return nil, err
	}
	return &Query{Text: g.sb.String(), Params: g.params}, nil
}

type generator struct {
	sb     strings.Builder
	params []string
	seen   map[string]bool
}

func (g *generator) write(s string) {
	g.sb.WriteString(s)
}

func (g *generator) selectNode(sel *plan.Select, nested bool) error {
	if nested {
		g.write("(")
	}
	g.write("SELECT ")
	if sel.Projection == nil {
		g.write("*")
	} else {
		for i, col := range sel.Projection.Columns {
			if i > 0 {
				g.write(", ")
			}
			if err := g.scalar(col); err != nil {
				return err
			}
		}
	}
	g.write(" FROM ")
	if err := g.source(sel.Source); err != nil {
		return err
	}
	if sel.Predicate != nil {
		g.write(" WHERE ")
		if err := g.scalar(sel.Predicate); err != nil {
			return err
		}
	}
	if nested {
		g.write(")")
		if sel.Alias != "" {
			g.write(" AS " + sel.Alias)
		}
	}
	return nil
}

func (g *generator) source(n plan.Node) error {
	switch n := n.(type) {
	case *plan.Table:
		g.write(n.Source)
		if n.Alias != "" && n.Alias != n.Source {
			g.write(" AS " + n.Alias)
		}
		return nil
	case *plan.Join:
		if err := g.source(n.Left); err != nil {
			return err
		}
		switch n.JoinKind {
		case plan.JoinInner:
			g.write(" INNER JOIN ")
		case plan.JoinLeft:
			g.write(" LEFT JOIN ")
		case plan.JoinCross:
			g.write(" CROSS JOIN ")
		case plan.JoinOuterApply:
			g.write(" OUTER APPLY ")
		default:
			return fmt.Errorf("cannot generate text for join kind %q", n.JoinKind)
		}
		if err := g.source(n.Right); err != nil {
			return err
		}
		if n.On != nil {
			g.write(" ON ")
			return g.scalar(n.On)
		}
		return nil
	case *plan.Select:
		return g.selectNode(n, true)
	}
	return fmt.Errorf("cannot generate text for source node of kind %d", n.Kind())
}

func (g *generator) scalar(s plan.Scalar) error {
	switch s := s.(type) {
	case *plan.Column:
		if s.Table != "" {
			g.write(s.Table + "." + s.Name)
		} else {
			g.write(s.Name)
		}
		return nil
	case *plan.Parameter:
		if !g.seen[s.Name] {
			g.seen[s.Name] = true
			g.params = append(g.params, s.Name)
		}
		g.write("@" + s.Name)
		return nil
	case *plan.Literal:
		return g.literal(s.Value)
	case *plan.Binary:
		g.write("(")
		if err := g.scalar(s.Left); err != nil {
			return err
		}
		g.write(" " + s.Op.String() + " ")
		if err := g.scalar(s.Right); err != nil {
			return err
		}
		g.write(")")
		return nil
	case *plan.InList:
		if err := g.scalar(s.Operand); err != nil {
			return err
		}
		g.write(" IN (")
		for i, item := range s.Items {
			if i > 0 {
				g.write(", ")
			}
			if err := g.scalar(item); err != nil {
				return err
			}
		}
		g.write(")")
		return nil
	}
	return fmt.Errorf("cannot generate text for scalar of kind %d", s.Kind())
}

func (g *generator) literal(v any) error {
	switch v := v.(type) {
	case nil:
		g.write("NULL")
	case bool:
		if v {
			g.write("TRUE")
		} else {
			g.write("FALSE")
		}
	case string:
		g.write("'" + strings.ReplaceAll(v, "'", "''") + "'")
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		g.write(fmt.Sprintf("%v", v))
	default:
		return fmt.Errorf("cannot generate literal of type %T", v)
	}
	return nil
}
