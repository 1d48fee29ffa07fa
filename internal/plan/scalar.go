// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package plan

import (
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// BinaryOp enumerates the binary operators a predicate can use.
type BinaryOp uint8

const (
	OpEq BinaryOp = iota + 1
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

// String returns the operator as it appears in generated query text.
func (op BinaryOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	}
	return "?"
}

// Column references a column of a source by the source alias and the column
// name. Both parts are semantic: the alias resolves which source of a join
// the column belongs to.
type Column struct {
	Table string
	Name  string
}

// NewColumn builds a column reference.
func NewColumn(table, name string) *Column {
	return &Column{Table: table, Name: name}
}

func (c *Column) Kind() Kind                   { return KindColumn }
func (c *Column) scalar()                      {}
func (c *Column) VisitChildren(v Visitor) Node { return c }

func (c *Column) Equal(other Node) bool {
	o, ok := other.(*Column)
	return ok && o.Table == c.Table && o.Name == c.Name
}

func (c *Column) encode(d *xxhash.Digest) {
	encodeTag(d, KindColumn)
	encodeString(d, c.Table)
	encodeString(d, c.Name)
}

// Literal is a constant value baked into the plan.
type Literal struct {
	Value any
}

// NewLiteral builds a literal node.
func NewLiteral(v any) *Literal {
	return &Literal{Value: v}
}

func (l *Literal) Kind() Kind                   { return KindLiteral }
func (l *Literal) scalar()                      {}
func (l *Literal) VisitChildren(v Visitor) Node { return l }

func (l *Literal) Equal(other Node) bool {
	o, ok := other.(*Literal)
	return ok && reflect.DeepEqual(o.Value, l.Value)
}

func (l *Literal) encode(d *xxhash.Digest) {
	encodeTag(d, KindLiteral)
	encodeValue(d, l.Value)
}

// Parameter is a placeholder resolved from the query parameter set at
// execution time.
type Parameter struct {
	Name string
}

// NewParameter builds a parameter node.
func NewParameter(name string) *Parameter {
	return &Parameter{Name: name}
}

func (p *Parameter) Kind() Kind                   { return KindParameter }
func (p *Parameter) scalar()                      {}
func (p *Parameter) VisitChildren(v Visitor) Node { return p }

func (p *Parameter) Equal(other Node) bool {
	o, ok := other.(*Parameter)
	return ok && o.Name == p.Name
}

func (p *Parameter) encode(d *xxhash.Digest) {
	encodeTag(d, KindParameter)
	encodeString(d, p.Name)
}

// Binary applies a binary operator to two scalars.
type Binary struct {
	Op    BinaryOp
	Left  Scalar
	Right Scalar
}

// NewBinary builds a binary node.
func NewBinary(op BinaryOp, left, right Scalar) *Binary {
	return &Binary{Op: op, Left: left, Right: right}
}

func (b *Binary) Kind() Kind { return KindBinary }
func (b *Binary) scalar()    {}

// Update returns the receiver if both children are reference-identical to
// the current ones, otherwise a new node with the same operator.
func (b *Binary) Update(left, right Scalar) *Binary {
	if left == b.Left && right == b.Right {
		return b
	}
	return &Binary{Op: b.Op, Left: left, Right: right}
}

func (b *Binary) VisitChildren(v Visitor) Node {
	return b.Update(v(b.Left).(Scalar), v(b.Right).(Scalar))
}

func (b *Binary) Equal(other Node) bool {
	o, ok := other.(*Binary)
	return ok && o.Op == b.Op && equalScalar(o.Left, b.Left) && equalScalar(o.Right, b.Right)
}

func (b *Binary) encode(d *xxhash.Digest) {
	encodeTag(d, KindBinary)
	d.Write([]byte{byte(b.Op)})
	encodeChild(d, b.Left)
	encodeChild(d, b.Right)
}

// InList is a membership test of an operand against a list of scalars. A
// single Parameter item may stand for a whole runtime collection until the
// parameter expansion pass replaces it with literal-arity items.
type InList struct {
	Operand Scalar
	Items   []Scalar
}

// NewInList builds a membership node.
func NewInList(operand Scalar, items ...Scalar) *InList {
	return &InList{Operand: operand, Items: items}
}

func (in *InList) Kind() Kind { return KindInList }
func (in *InList) scalar()    {}

// Update returns the receiver if the operand and every item are
// reference-identical to the current ones, otherwise a new node.
func (in *InList) Update(operand Scalar, items []Scalar) *InList {
	if operand == in.Operand && len(items) == len(in.Items) {
		same := true
		for i, it := range items {
			if it != in.Items[i] {
				same = false
				break
			}
		}
		if same {
			return in
		}
	}
	return &InList{Operand: operand, Items: items}
}

func (in *InList) VisitChildren(v Visitor) Node {
	operand := v(in.Operand).(Scalar)
	items := in.Items
	var changed []Scalar
	for i, it := range items {
		ni := v(it).(Scalar)
		if changed == nil && ni != it {
			changed = make([]Scalar, i, len(items))
			copy(changed, items[:i])
		}
		if changed != nil {
			changed = append(changed, ni)
		}
	}
	if changed != nil {
		items = changed
	}
	return in.Update(operand, items)
}

func (in *InList) Equal(other Node) bool {
	o, ok := other.(*InList)
	if !ok || !equalScalar(o.Operand, in.Operand) || len(o.Items) != len(in.Items) {
		return false
	}
	for i, it := range in.Items {
		if !equalScalar(it, o.Items[i]) {
			return false
		}
	}
	return true
}

func (in *InList) encode(d *xxhash.Digest) {
	encodeTag(d, KindInList)
	encodeChild(d, in.Operand)
	for _, it := range in.Items {
		encodeChild(d, it)
	}
	d.Write([]byte{0xff})
}
