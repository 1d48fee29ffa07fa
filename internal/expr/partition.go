// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"

	"github.com/canonical/pageair/internal/plan"
)

// ExtractPartitionKey walks the select's predicate for an equality test
// against the partition-key property and annotates the select with the
// matched value scalar. Only conjuncts are inspected: a partition-key test
// under an OR does not constrain the query to one partition.
//
// The matched predicate term is left in place. Filtering again on the
// partition key at the store is redundant but harmless, and the embedded
// driver relies on the term being present. Providers that must avoid double
// filtering drop the term in their own generator; that choice is part of the
// provider contract, not of this pass.
func ExtractPartitionKey(sel *plan.Select, property string) *plan.Select {
	if property == "" || sel.Predicate == nil {
		return sel
	}
	if k := findPartitionEquality(sel.Predicate, property); k != nil {
		return sel.WithPartitionKey(k)
	}
	return sel
}

// ResolvePartitionValue evaluates an extracted partition-key scalar against
// the runtime parameter set.
func ResolvePartitionValue(k plan.Scalar, params map[string]any) (any, error) {
	switch k := k.(type) {
	case *plan.Literal:
		return k.Value, nil
	case *plan.Parameter:
		v, ok := params[k.Name]
		if !ok {
			return nil, fmt.Errorf("parameter %q not supplied", k.Name)
		}
		return v, nil
	}
	return nil, fmt.Errorf("internal error: partition key is neither literal nor parameter")
}

func findPartitionEquality(pred plan.Scalar, property string) plan.Scalar {
	b, ok := pred.(*plan.Binary)
	if !ok {
		return nil
	}
	switch b.Op {
	case plan.OpAnd:
		if k := findPartitionEquality(b.Left, property); k != nil {
			return k
		}
		return findPartitionEquality(b.Right, property)
	case plan.OpEq:
		if col, ok := b.Left.(*plan.Column); ok && col.Name == property {
			if isValueScalar(b.Right) {
				return b.Right
			}
		}
		if col, ok := b.Right.(*plan.Column); ok && col.Name == property {
			if isValueScalar(b.Left) {
				return b.Left
			}
		}
	}
	return nil
}

func isValueScalar(s plan.Scalar) bool {
	switch s.(type) {
	case *plan.Literal, *plan.Parameter:
		return true
	}
	return false
}
