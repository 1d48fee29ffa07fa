// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package plan

import (
	"github.com/cespare/xxhash/v2"
)

// JoinKind distinguishes the join variants a store can execute.
type JoinKind uint8

const (
	JoinInner JoinKind = iota + 1
	JoinCross
	JoinLeft
	// JoinOuterApply evaluates the right side once per row of the left side.
	// Correlated subqueries lower to this kind.
	JoinOuterApply
)

// String returns the name of the join kind for error messages and query
// generation.
func (k JoinKind) String() string {
	switch k {
	case JoinInner:
		return "inner"
	case JoinCross:
		return "cross"
	case JoinLeft:
		return "left"
	case JoinOuterApply:
		return "outer apply"
	}
	return "unknown"
}

// Table is a leaf node naming a store container holding rows of a single
// entity type. The alias is presentation only and excluded from structural
// equality so that queries differing only in alias naming share a cached
// plan.
type Table struct {
	// Source is the container (table, collection) queried.
	Source string
	// Entity is the entity type name the container holds.
	Entity string
	// Alias is the name the rest of the query refers to this table by.
	Alias string
}

// NewTable builds a table node.
func NewTable(source, entity, alias string) *Table {
	return &Table{Source: source, Entity: entity, Alias: alias}
}

func (t *Table) Kind() Kind { return KindTable }

// VisitChildren returns the receiver: tables are leaves.
func (t *Table) VisitChildren(v Visitor) Node { return t }

func (t *Table) Equal(other Node) bool {
	o, ok := other.(*Table)
	return ok && o.Source == t.Source && o.Entity == t.Entity
}

func (t *Table) encode(d *xxhash.Digest) {
	encodeTag(d, KindTable)
	encodeString(d, t.Source)
	encodeString(d, t.Entity)
}

// Join combines two relational sources. On is nil for cross joins.
type Join struct {
	JoinKind JoinKind
	Left     Node
	Right    Node
	On       Scalar
}

// NewJoin builds a join node.
func NewJoin(kind JoinKind, left, right Node, on Scalar) *Join {
	return &Join{JoinKind: kind, Left: left, Right: right, On: on}
}

func (j *Join) Kind() Kind { return KindJoin }

// Update returns the receiver if all children are reference-identical to the
// current ones, otherwise a new join with the same kind.
func (j *Join) Update(left, right Node, on Scalar) *Join {
	if left == j.Left && right == j.Right && on == j.On {
		return j
	}
	return &Join{JoinKind: j.JoinKind, Left: left, Right: right, On: on}
}

func (j *Join) VisitChildren(v Visitor) Node {
	left := v(j.Left)
	right := v(j.Right)
	var on Scalar
	if j.On != nil {
		on = v(j.On).(Scalar)
	}
	return j.Update(left, right, on)
}

func (j *Join) Equal(other Node) bool {
	o, ok := other.(*Join)
	return ok && o.JoinKind == j.JoinKind && equalNode(o.Left, j.Left) &&
		equalNode(o.Right, j.Right) && equalScalar(o.On, j.On)
}

func (j *Join) encode(d *xxhash.Digest) {
	encodeTag(d, KindJoin)
	d.Write([]byte{byte(j.JoinKind)})
	encodeChild(d, j.Left)
	encodeChild(d, j.Right)
	encodeChild(d, j.On)
}

// Select is the root relational node: a source, an optional predicate and an
// optional projection. A nil projection selects every column of the source.
//
// PartitionKey is a provider annotation recording the scalar that the
// partition-key extraction pass found in the predicate. It is derived
// information and therefore excluded from structural equality, as is the
// alias.
type Select struct {
	Source       Node
	Predicate    Scalar
	Projection   *Projection
	Alias        string
	PartitionKey Scalar
}

// NewSelect builds a select node.
func NewSelect(source Node, predicate Scalar, projection *Projection) *Select {
	return &Select{Source: source, Predicate: predicate, Projection: projection}
}

func (s *Select) Kind() Kind { return KindSelect }

// Update returns the receiver if all children are reference-identical to the
// current ones, otherwise a new select carrying over the receiver's alias and
// annotations.
func (s *Select) Update(source Node, predicate Scalar, projection *Projection) *Select {
	if source == s.Source && predicate == s.Predicate && projection == s.Projection {
		return s
	}
	return &Select{
		Source:       source,
		Predicate:    predicate,
		Projection:   projection,
		Alias:        s.Alias,
		PartitionKey: s.PartitionKey,
	}
}

// WithPartitionKey returns a copy of the select annotated with the extracted
// partition-key scalar.
func (s *Select) WithPartitionKey(k Scalar) *Select {
	c := *s
	c.PartitionKey = k
	return &c
}

func (s *Select) VisitChildren(v Visitor) Node {
	source := v(s.Source)
	var predicate Scalar
	if s.Predicate != nil {
		predicate = v(s.Predicate).(Scalar)
	}
	projection := s.Projection
	if projection != nil {
		projection = v(projection).(*Projection)
	}
	return s.Update(source, predicate, projection)
}

func (s *Select) Equal(other Node) bool {
	o, ok := other.(*Select)
	if !ok {
		return false
	}
	if s.Projection == nil || o.Projection == nil {
		if (s.Projection == nil) != (o.Projection == nil) {
			return false
		}
	} else if !o.Projection.Equal(s.Projection) {
		return false
	}
	return equalNode(o.Source, s.Source) && equalScalar(o.Predicate, s.Predicate)
}

func (s *Select) encode(d *xxhash.Digest) {
	encodeTag(d, KindSelect)
	encodeChild(d, s.Source)
	encodeChild(d, s.Predicate)
	if s.Projection == nil {
		d.Write([]byte{0})
	} else {
		s.Projection.encode(d)
	}
}

// Projection lists the scalars a select produces, in output order.
type Projection struct {
	Columns []Scalar
}

// NewProjection builds a projection node.
func NewProjection(columns ...Scalar) *Projection {
	return &Projection{Columns: columns}
}

func (p *Projection) Kind() Kind { return KindProjection }

// Update returns the receiver if every column is reference-identical to the
// current one, otherwise a new projection.
func (p *Projection) Update(columns []Scalar) *Projection {
	if len(columns) == len(p.Columns) {
		same := true
		for i, c := range columns {
			if c != p.Columns[i] {
				same = false
				break
			}
		}
		if same {
			return p
		}
	}
	return &Projection{Columns: columns}
}

func (p *Projection) VisitChildren(v Visitor) Node {
	columns := p.Columns
	var changed []Scalar
	for i, c := range columns {
		nc := v(c).(Scalar)
		if changed == nil && nc != c {
			changed = make([]Scalar, i, len(columns))
			copy(changed, columns[:i])
		}
		if changed != nil {
			changed = append(changed, nc)
		}
	}
	if changed == nil {
		return p
	}
	return p.Update(changed)
}

func (p *Projection) Equal(other Node) bool {
	o, ok := other.(*Projection)
	if !ok || len(o.Columns) != len(p.Columns) {
		return false
	}
	for i, c := range p.Columns {
		if !equalScalar(c, o.Columns[i]) {
			return false
		}
	}
	return true
}

func (p *Projection) encode(d *xxhash.Digest) {
	encodeTag(d, KindProjection)
	for _, c := range p.Columns {
		encodeChild(d, c)
	}
	d.Write([]byte{0xff})
}
