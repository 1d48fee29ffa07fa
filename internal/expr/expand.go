// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"

	"github.com/canonical/pageair/internal/plan"
)

// ExpandParams rewrites IN lists whose items are collection-valued
// parameters into literal-arity lists of derived parameters. Query languages
// that require literal arity at generation time need this done before the
// generator runs, so the pass executes at bind time with the runtime values
// in hand.
//
// The returned map holds the values of the derived parameters, keyed by
// their generated names. An IN list that expands to nothing lowers to a
// constant-false predicate.
func ExpandParams(n plan.Node, params map[string]any) (plan.Node, map[string]any, error) {
	derived := map[string]any{}
	var expandErr error
	out := plan.Rewrite(n, func(n plan.Node) plan.Node {
		if expandErr != nil {
			return n
		}
		in, ok := n.(*plan.InList)
		if !ok {
			return n
		}
		items, changed, err := expandItems(in.Items, params, derived)
		if err != nil {
			expandErr = err
			return n
		}
		if !changed {
			return in
		}
		if len(items) == 0 {
			return plan.NewLiteral(false)
		}
		return in.Update(in.Operand, items)
	})
	if expandErr != nil {
		return nil, nil, expandErr
	}
	return out, derived, nil
}

// expandItems expands any collection-valued parameter item in place,
// reporting whether the list changed.
func expandItems(items []plan.Scalar, params, derived map[string]any) ([]plan.Scalar, bool, error) {
	var out []plan.Scalar
	changed := false
	for _, item := range items {
		p, ok := item.(*plan.Parameter)
		if !ok {
			out = append(out, item)
			continue
		}
		val, ok := params[p.Name]
		if !ok {
			return nil, false, fmt.Errorf(`parameter %q not supplied`, p.Name)
		}
		rv := reflect.ValueOf(val)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			out = append(out, item)
			continue
		}
		changed = true
		for i := 0; i < rv.Len(); i++ {
			name := fmt.Sprintf("%s_%d", p.Name, i)
			derived[name] = rv.Index(i).Interface()
			out = append(out, plan.NewParameter(name))
		}
	}
	if !changed {
		return items, false, nil
	}
	return out, true, nil
}
