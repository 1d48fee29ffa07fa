// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package pageair

import (
	"fmt"

	"github.com/canonical/pageair/internal/expr"
	"github.com/canonical/pageair/internal/model"
	"github.com/canonical/pageair/internal/plan"
	"github.com/canonical/pageair/internal/shape"
	"github.com/canonical/pageair/internal/typeinfo"
)

// planCache interns compiled plans across the whole process.
var plans = newPlanCache()

// EntityDef declares one entity type of a model.
type EntityDef struct {
	// Name is the entity type name queries refer to.
	Name string
	// Container is the store container the entity is mapped to. Empty means
	// the root type's container: derived types share their base's container.
	Container string
	// Base names the entity this one derives from, empty for root types.
	Base string
	// Key is the property holding the entity key, used for identity
	// tracking.
	Key string
	// PartitionKey is the property holding the partition key, empty for
	// unpartitioned containers.
	PartitionKey string
	// DefiningQuery maps a keyless entity to a query instead of a
	// container. Only root types may carry one.
	DefiningQuery string
}

// Model is the validated set of entity definitions queries are prepared
// against.
type Model struct {
	set *model.Set
}

// NewModel validates the entity definitions and builds a model.
func NewModel(defs ...EntityDef) (*Model, error) {
	entities := make([]model.Entity, 0, len(defs))
	for _, def := range defs {
		entities = append(entities, model.Entity{
			Name:          def.Name,
			Container:     def.Container,
			Base:          def.Base,
			Key:           def.Key,
			PartitionKey:  def.PartitionKey,
			DefiningQuery: def.DefiningQuery,
		})
	}
	set, err := model.NewSet(entities...)
	if err != nil {
		return nil, fmt.Errorf("cannot build model: %s", err)
	}
	return &Model{set: set}, nil
}

// Statement is a compiled query ready to be run on a store. A statement is
// immutable and can be shared and run concurrently on any [Store].
type Statement struct {
	plan      *plan.Select
	argInfo   *typeinfo.ArgInfo
	entity    *model.Entity
	container string
	shaper    *shape.Shaper
}

// Prepare lowers an operator-built query into a logical plan, compiles the
// shaping of results into the type samples and returns a [Statement].
//
// The type samples must contain an instance of every type results are
// decoded into; the first sample is the entity type the query materializes,
// which takes part in identity tracking. They are used only for type
// information.
func Prepare(m *Model, q *QueryExpr, typeSamples ...any) (*Statement, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot prepare query: nil model")
	}
	if q == nil {
		return nil, fmt.Errorf("cannot prepare query: nil query")
	}
	lowered, err := expr.Lower(q.inner, m.set)
	if err != nil {
		return nil, err
	}

	entity, err := m.set.Lookup(expr.RootEntity(q.inner))
	if err != nil {
		return nil, err
	}
	// Intern before annotating. The partition-key annotation is derived from
	// the model, not the plan structure, and does not take part in plan
	// identity: a plan interned by a model that does not partition the entity
	// must not serve as the annotated plan of one that does.
	lowered = plans.intern(lowered)
	if property := m.set.PartitionKeyProperty(entity); property != "" {
		lowered = expr.ExtractPartitionKey(lowered, property)
	}

	argInfo, err := typeinfo.GenerateArgInfo(typeSamples)
	if err != nil {
		return nil, err
	}
	shaper, err := shape.New(lowered, argInfo, entity, true)
	if err != nil {
		return nil, err
	}

	return &Statement{
		plan:      lowered,
		argInfo:   argInfo,
		entity:    entity,
		container: m.set.Container(entity),
		shaper:    shaper,
	}, nil
}

// MustPrepare is the same as [Prepare] except that it panics on error.
func MustPrepare(m *Model, q *QueryExpr, typeSamples ...any) *Statement {
	s, err := Prepare(m, q, typeSamples...)
	if err != nil {
		panic(err)
	}
	return s
}

// NoTracking returns a copy of the statement that materializes standalone
// instances, bypassing the identity map entirely.
func (s *Statement) NoTracking() *Statement {
	c := *s
	c.shaper = s.shaper.WithTracking(false)
	return &c
}
