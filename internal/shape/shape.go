// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package shape compiles the projection of a logical plan and the output
// argument types into a shaper: a function materializing typed instances
// from one raw store item. When a tracker is attached and tracking is not
// bypassed, instances of the queried entity are registered by key and a
// later item with the same key yields the prior instance.
package shape

import (
	"fmt"
	"reflect"

	"github.com/canonical/pageair/internal/model"
	"github.com/canonical/pageair/internal/plan"
	"github.com/canonical/pageair/internal/typeinfo"
	"github.com/canonical/pageair/store"
)

// shapedColumn pairs a raw item field with the output member it is written
// to.
type shapedColumn struct {
	column string
	output typeinfo.Output
}

// Shaper materializes typed instances from raw items. A shaper is immutable
// once compiled and safe for concurrent use; all mutable state lives in the
// Tracker.
type Shaper struct {
	types []reflect.Type
	cols  []shapedColumn
	// mapAll lists named map output types that receive every field of the
	// item, used when the query has no explicit projection.
	mapAll []reflect.Type
	// entity is the queried entity type, nil when shaping plain DTOs.
	entity   *model.Entity
	tracking bool
}

// New compiles a shaper for the plan's projection and the given output
// argument types. By convention the first argument type materializes the
// queried entity and takes part in identity resolution; tracking false
// bypasses the identity map entirely (the standalone, no-tracking mode).
func New(sel *plan.Select, argInfo *typeinfo.ArgInfo, entity *model.Entity, tracking bool) (*Shaper, error) {
	s := &Shaper{types: argInfo.Types(), entity: entity, tracking: tracking}
	if len(s.types) == 0 {
		return nil, fmt.Errorf("no output types to shape into")
	}

	if sel.Projection != nil {
		for _, col := range sel.Projection.Columns {
			pc, ok := col.(*plan.Column)
			if !ok {
				return nil, fmt.Errorf("cannot shape computed projection column")
			}
			output, err := argInfo.OutputForColumn(pc.Name)
			if err != nil {
				return nil, err
			}
			s.cols = append(s.cols, shapedColumn{column: pc.Name, output: output})
		}
		return s, nil
	}

	// No projection: structs read the fields named by their tags, named
	// maps receive the whole item.
	for _, t := range s.types {
		if t.Kind() == reflect.Map {
			s.mapAll = append(s.mapAll, t)
			continue
		}
		outputs, tags, err := argInfo.AllStructOutputs(t.Name())
		if err != nil {
			return nil, err
		}
		for i, output := range outputs {
			s.cols = append(s.cols, shapedColumn{column: tags[i], output: output})
		}
	}
	return s, nil
}

// WithTracking returns a copy of the shaper with identity tracking switched
// on or off.
func (s *Shaper) WithTracking(enabled bool) *Shaper {
	c := *s
	c.tracking = enabled
	return &c
}

// Shape materializes one raw item. It returns one part per output argument
// type, in registration order: a pointer for struct types, the map itself
// for map types. Same raw item and same tracker state shape to the same
// result, except that the identity map may short-circuit the first part to
// a previously returned instance with the same key.
func (s *Shaper) Shape(tracker *Tracker, item store.RawItem) ([]any, error) {
	var key any
	useTracker := false
	if s.tracking && tracker != nil && s.entity != nil && s.entity.Key != "" {
		if k, ok := item[s.entity.Key]; ok && k != nil && reflect.TypeOf(k).Comparable() {
			key = k
			useTracker = true
		}
	}

	parts := make([]any, len(s.types))
	typeToValue := typeinfo.TypeToValue{}
	for i, t := range s.types {
		var v reflect.Value
		if t.Kind() == reflect.Map {
			v = reflect.MakeMap(t)
		} else {
			v = reflect.New(t)
		}
		parts[i] = v.Interface()
		typeToValue[t] = v
	}

	for _, sc := range s.cols {
		raw, ok := item[sc.column]
		if !ok {
			return nil, fmt.Errorf("result item has no column %q", sc.column)
		}
		if err := sc.output.SetValue(typeToValue, raw); err != nil {
			return nil, err
		}
	}
	for _, mt := range s.mapAll {
		m := typeToValue[mt]
		for k, v := range item {
			val, err := typeinfo.Coerce(v, mt.Elem())
			if err != nil {
				return nil, fmt.Errorf("cannot shape key %q of map %q: %s", k, mt.Name(), err)
			}
			m.SetMapIndex(reflect.ValueOf(k), val)
		}
	}

	if useTracker {
		if prior, ok := tracker.lookup(s.entity.Name, key); ok {
			parts[0] = prior
		} else {
			tracker.register(s.entity.Name, key, parts[0])
		}
	}
	return parts, nil
}
