// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package model holds the entity metadata the lowering passes consult: which
// container an entity type lives in, how entity types derive from each other,
// and which properties act as key and partition key.
package model

import (
	"fmt"
)

// Entity describes one entity type of the model.
type Entity struct {
	// Name is the entity type name, unique within a Set.
	Name string
	// Container is the store container (table, collection) holding the
	// entity. Derived types inherit the container of their root type.
	Container string
	// Base names the entity type this type derives from, empty for root
	// types.
	Base string
	// Key is the property holding the entity key, used for identity
	// resolution while shaping. Empty for keyless types.
	Key string
	// PartitionKey is the property holding the partition key. Only
	// meaningful on root types.
	PartitionKey string
	// DefiningQuery is the provider query text backing a keyless type
	// mapped to a view rather than a container.
	DefiningQuery string
}

// Set is a validated collection of entity types.
type Set struct {
	byName map[string]*Entity
}

// DerivedTypeDefiningQueryError reports a derived type that supplies its own
// defining query while an ancestor already defines one. This is a modeling
// error: the two query sources would conflict.
type DerivedTypeDefiningQueryError struct {
	Derived string
	Base    string
}

func (e *DerivedTypeDefiningQueryError) Error() string {
	return fmt.Sprintf("derived type %q cannot define a query source: base type %q already defines one", e.Derived, e.Base)
}

// NewSet validates the entity definitions and builds a Set.
func NewSet(entities ...Entity) (*Set, error) {
	s := &Set{byName: map[string]*Entity{}}
	for i := range entities {
		e := entities[i]
		if e.Name == "" {
			return nil, fmt.Errorf("entity type with empty name")
		}
		if _, ok := s.byName[e.Name]; ok {
			return nil, fmt.Errorf("entity type %q defined twice", e.Name)
		}
		s.byName[e.Name] = &e
	}
	for _, e := range s.byName {
		if e.Base != "" {
			if _, ok := s.byName[e.Base]; !ok {
				return nil, fmt.Errorf("entity type %q derives from unknown type %q", e.Name, e.Base)
			}
		}
		if e.DefiningQuery == "" {
			continue
		}
		for base := s.base(e); base != nil; base = s.base(base) {
			if base.DefiningQuery != "" {
				return nil, &DerivedTypeDefiningQueryError{Derived: e.Name, Base: base.Name}
			}
		}
	}
	return s, nil
}

// Lookup returns the entity type with the given name.
func (s *Set) Lookup(name string) (*Entity, error) {
	e, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", name)
	}
	return e, nil
}

// Root returns the root of the entity's derivation chain. The root carries
// the container and partition-key configuration for the whole hierarchy.
func (s *Set) Root(e *Entity) *Entity {
	for b := s.base(e); b != nil; b = s.base(e) {
		e = b
	}
	return e
}

// Container returns the store container the entity is queried from.
func (s *Set) Container(e *Entity) string {
	root := s.Root(e)
	if root.Container != "" {
		return root.Container
	}
	return root.Name
}

// PartitionKeyProperty returns the partition-key property configured on the
// entity's root type, or the empty string when the hierarchy is not
// partitioned.
func (s *Set) PartitionKeyProperty(e *Entity) string {
	return s.Root(e).PartitionKey
}

func (s *Set) base(e *Entity) *Entity {
	if e.Base == "" {
		return nil
	}
	return s.byName[e.Base]
}
