// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"sort"
)

// TypeToValue maps an argument type to the reflect.Value holding the
// instance being shaped.
type TypeToValue map[reflect.Type]reflect.Value

// Output is a locator for a member of an output argument, the target a raw
// item field is written to.
type Output interface {
	// ArgType is the type of the output argument the member belongs to.
	ArgType() reflect.Type
	// Desc returns a written description of the member for error messages.
	Desc() string
	// SetValue coerces v and writes it to the member within the matching
	// argument of typeToValue.
	SetValue(typeToValue TypeToValue, v any) error
}

// structField locates a field of a struct output argument.
type structField struct {
	// name is the member name within the struct.
	name string
	// structType is the reflected type of the struct containing the field.
	structType reflect.Type
	// index for Type.Field.
	index int
	// tag is the "db" tag associated with this field.
	tag string
}

// ArgType returns the type of the struct this field is located in.
func (f *structField) ArgType() reflect.Type {
	return f.structType
}

// Desc returns a natural language description of the struct field for use
// in error messages.
func (f *structField) Desc() string {
	return fmt.Sprintf("tag %q of struct %q", f.tag, f.structType.Name())
}

// SetValue writes v to the field within the struct located in typeToValue.
func (f *structField) SetValue(typeToValue TypeToValue, v any) error {
	s, ok := typeToValue[f.structType]
	if !ok {
		return valueNotFoundError(typeToValue, f.structType)
	}
	field := reflect.Indirect(s).Field(f.index)
	if !field.CanSet() {
		return fmt.Errorf("internal error: cannot set field %s of struct %s", f.name, f.structType.Name())
	}
	val, err := Coerce(v, field.Type())
	if err != nil {
		return fmt.Errorf("cannot shape %s: %s", f.Desc(), err)
	}
	field.Set(val)
	return nil
}

// mapKey locates a key of a named map output argument.
type mapKey struct {
	name    string
	mapType reflect.Type
}

// ArgType returns the type of the map the key is located in.
func (mk *mapKey) ArgType() reflect.Type {
	return mk.mapType
}

// Desc returns a natural language description of the map key for use in
// error messages.
func (mk *mapKey) Desc() string {
	return fmt.Sprintf("key %q of map %q", mk.name, mk.mapType.Name())
}

// SetValue writes v at the key within the map located in typeToValue.
func (mk *mapKey) SetValue(typeToValue TypeToValue, v any) error {
	m, ok := typeToValue[mk.mapType]
	if !ok {
		return valueNotFoundError(typeToValue, mk.mapType)
	}
	m = reflect.Indirect(m)
	val, err := Coerce(v, mk.mapType.Elem())
	if err != nil {
		return fmt.Errorf("cannot shape %s: %s", mk.Desc(), err)
	}
	m.SetMapIndex(reflect.ValueOf(mk.name), val)
	return nil
}

// valueNotFoundError generates the argument names present and returns a
// missing-type error.
func valueNotFoundError(typeToValue TypeToValue, missingType reflect.Type) error {
	argNames := []string{}
	for argType := range typeToValue {
		if argType.Name() == missingType.Name() {
			return fmt.Errorf("parameter with type %q missing, have type with same name: %q", missingType.String(), argType.String())
		}
		argNames = append(argNames, argType.Name())
	}
	// Sort for consistent error messages.
	sort.Strings(argNames)
	return fmt.Errorf("parameter with type %q missing (have %v)", missingType.Name(), argNames)
}
