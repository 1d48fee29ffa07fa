// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package plan defines the provider-neutral logical query tree that lowering
// produces from a source expression tree. The tree is immutable by
// convention: rewrite passes never mutate a node in place, they either return
// the node they were given or build a replacement with Update. Reference
// identity of children is used to decide whether a replacement is needed,
// which keeps unchanged subtrees shared between the old and new plan and
// keeps structural hashes stable for the plan cache.
package plan

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Kind tags the variant of a plan node.
type Kind uint8

const (
	KindTable Kind = iota + 1
	KindJoin
	KindSelect
	KindProjection
	KindColumn
	KindLiteral
	KindParameter
	KindBinary
	KindInList
)

// Node is a node of the logical query tree. All implementations are
// immutable by convention; use the Update method of the concrete type to
// derive a node with different children.
type Node interface {
	// Kind returns the variant tag of the node.
	Kind() Kind
	// VisitChildren applies v to every child of the node and returns a node
	// reflecting the transformed children. The receiver itself is returned
	// when every child comes back reference-identical.
	VisitChildren(v Visitor) Node
	// Equal reports whether the node is structurally equal to other.
	// Aliases and provider annotations that do not affect result semantics
	// are excluded from the comparison.
	Equal(other Node) bool
	// encode writes a canonical byte representation of the node to d. The
	// encoding covers exactly the attributes that Equal compares.
	encode(d *xxhash.Digest)
}

// Scalar is a plan node that evaluates to a single value, used in predicates
// and projections.
type Scalar interface {
	Node
	scalar()
}

// Visitor transforms a plan node. Returning the argument unchanged signals
// that no rewrite is needed.
type Visitor func(Node) Node

// Rewrite applies v to every node of the tree bottom-up. If v is the
// identity transform the original node is returned, reference-equal, with no
// copies made at any level.
func Rewrite(n Node, v Visitor) Node {
	if n == nil {
		return nil
	}
	n = n.VisitChildren(func(c Node) Node { return Rewrite(c, v) })
	return v(n)
}

// RewriteScalar is Rewrite constrained to scalar trees.
func RewriteScalar(s Scalar, v Visitor) Scalar {
	if s == nil {
		return nil
	}
	return Rewrite(s, v).(Scalar)
}

// Hash returns a structural hash of the tree. Two trees for which Equal
// returns true hash to the same value, making the hash usable as a plan
// cache key.
func Hash(n Node) uint64 {
	d := xxhash.New()
	n.encode(d)
	return d.Sum64()
}

// equalNode compares two possibly-nil nodes.
func equalNode(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// equalScalar compares two possibly-nil scalars.
func equalScalar(a, b Scalar) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// encodeString writes a length-prefixed string so that adjacent fields
// cannot run together in the canonical encoding.
func encodeString(d *xxhash.Digest, s string) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
	d.Write(buf[:])
	d.WriteString(s)
}

// encodeTag writes the variant tag of a node.
func encodeTag(d *xxhash.Digest, k Kind) {
	d.Write([]byte{byte(k)})
}

// encodeChild writes a child node, or a sentinel byte when the child is
// absent.
func encodeChild(d *xxhash.Digest, n Node) {
	if n == nil {
		d.Write([]byte{0})
		return
	}
	n.encode(d)
}

// encodeValue writes a literal value. The dynamic type takes part in the
// encoding so that, for example, int64(1) and "1" cannot collide.
func encodeValue(d *xxhash.Digest, v any) {
	encodeString(d, fmt.Sprintf("%T=%v", v, v))
}
