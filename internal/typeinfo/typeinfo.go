// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package typeinfo builds the reflection metadata the shaper uses to write
// raw item fields into Go values. Output targets are located by the "db"
// tags of struct fields, or by key for named map types.
package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// ArgInfo holds type information about the output arguments of a query. The
// registration order of the argument types is preserved: shaped items list
// their parts in this order.
type ArgInfo struct {
	args  map[string]arg
	order []string
}

// arg is the reflection information for a single argument type.
type arg interface {
	typ() reflect.Type
}

// structInfo stores the tagged fields of a struct type.
type structInfo struct {
	structType reflect.Type
	// tags holds the tag names in alphabetical order.
	tags       []string
	tagToField map[string]*structField
}

func (si *structInfo) typ() reflect.Type { return si.structType }

// mapInfo stores a named map type with string keys.
type mapInfo struct {
	mapType reflect.Type
}

func (mi *mapInfo) typ() reflect.Type { return mi.mapType }

var argInfoCache = make(map[reflect.Type]arg)
var argInfoCacheMutex sync.RWMutex

// GenerateArgInfo takes sample instantiations of argument types and uses
// reflection to generate an ArgInfo containing the types.
func GenerateArgInfo(typeSamples []any) (*ArgInfo, error) {
	argInfo := &ArgInfo{args: map[string]arg{}}
	for _, typeSample := range typeSamples {
		if typeSample == nil {
			return nil, fmt.Errorf("need valid value, got nil")
		}
		t := reflect.TypeOf(typeSample)
		switch t.Kind() {
		case reflect.Struct, reflect.Map:
			if t.Name() == "" {
				return nil, fmt.Errorf("cannot use anonymous %s", t.Kind())
			}
			info, err := getArgInfo(t)
			if err != nil {
				return nil, err
			}
			if dupeArg, ok := argInfo.args[t.Name()]; ok {
				if dupeArg.typ() == t {
					return nil, fmt.Errorf("found multiple instances of type %q", t.Name())
				}
				return nil, fmt.Errorf("two types found with name %q: %q and %q", t.Name(), dupeArg.typ().String(), t.String())
			}
			argInfo.args[t.Name()] = info
			argInfo.order = append(argInfo.order, t.Name())
		case reflect.Pointer:
			return nil, fmt.Errorf("need non-pointer type, got pointer to %s", t.Elem().Kind())
		default:
			return nil, fmt.Errorf("need supported type, got %s", t.Kind())
		}
	}
	return argInfo, nil
}

// Types returns the argument types in registration order.
func (argInfo *ArgInfo) Types() []reflect.Type {
	types := make([]reflect.Type, 0, len(argInfo.order))
	for _, name := range argInfo.order {
		types = append(types, argInfo.args[name].typ())
	}
	return types
}

// OutputMember returns an output locator for a member of a struct or map.
func (argInfo *ArgInfo) OutputMember(typeName, memberName string) (Output, error) {
	arg, ok := argInfo.args[typeName]
	if !ok {
		return nil, nameNotFoundError(argInfo, typeName)
	}
	switch arg := arg.(type) {
	case *structInfo:
		f, ok := arg.tagToField[memberName]
		if !ok {
			return nil, fmt.Errorf(`type %q has no %q db tag`, typeName, memberName)
		}
		return f, nil
	case *mapInfo:
		return &mapKey{name: memberName, mapType: arg.mapType}, nil
	}
	return nil, fmt.Errorf("internal error: unknown arg type %T", arg)
}

// OutputForColumn searches the argument types in registration order for a
// member matching the column name and returns its output locator. Struct
// members match by db tag; a map argument matches any column.
func (argInfo *ArgInfo) OutputForColumn(column string) (Output, error) {
	for _, name := range argInfo.order {
		switch arg := argInfo.args[name].(type) {
		case *structInfo:
			if f, ok := arg.tagToField[column]; ok {
				return f, nil
			}
		case *mapInfo:
			return &mapKey{name: column, mapType: arg.mapType}, nil
		}
	}
	return nil, fmt.Errorf("no output type has a member for column %q", column)
}

// AllStructOutputs returns an output locator for every tagged member of the
// named struct type along with the member names.
func (argInfo *ArgInfo) AllStructOutputs(typeName string) ([]Output, []string, error) {
	arg, ok := argInfo.args[typeName]
	if !ok {
		return nil, nil, nameNotFoundError(argInfo, typeName)
	}
	si, ok := arg.(*structInfo)
	if !ok {
		return nil, nil, fmt.Errorf("cannot use %s with asterisk unless columns are specified", arg.typ().Kind())
	}
	if len(si.tags) == 0 {
		return nil, nil, fmt.Errorf(`no "db" tags found in struct %q`, si.structType.Name())
	}
	var outputs []Output
	for _, tag := range si.tags {
		outputs = append(outputs, si.tagToField[tag])
	}
	return outputs, si.tags, nil
}

// getArgInfo returns the cached reflection information of a type, generating
// it on first use.
func getArgInfo(t reflect.Type) (arg, error) {
	argInfoCacheMutex.RLock()
	info, found := argInfoCache[t]
	argInfoCacheMutex.RUnlock()
	if found {
		return info, nil
	}
	info, err := generateArg(t)
	if err != nil {
		return nil, err
	}
	argInfoCacheMutex.Lock()
	argInfoCache[t] = info
	argInfoCacheMutex.Unlock()
	return info, nil
}

func generateArg(t reflect.Type) (arg, error) {
	switch t.Kind() {
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map type %s must have key type string, found type %s", t.Name(), t.Key().Kind())
		}
		return &mapInfo{mapType: t}, nil
	case reflect.Struct:
		si := &structInfo{structType: t, tagToField: map[string]*structField{}}
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			// Fields without a "db" tag are outside of our remit.
			tag := field.Tag.Get("db")
			if tag == "" {
				continue
			}
			if !field.IsExported() {
				return nil, fmt.Errorf("field %q of struct %s is not exported", field.Name, t.Name())
			}
			tag, err := parseTag(tag)
			if err != nil {
				return nil, fmt.Errorf("cannot parse tag for field %s.%s: %s", t.Name(), field.Name, err)
			}
			if dup, ok := si.tagToField[tag]; ok {
				return nil, fmt.Errorf("db tag %q appears in both field %q and field %q of struct %q", tag, field.Name, dup.name, t.Name())
			}
			si.tagToField[tag] = &structField{
				name:       field.Name,
				structType: t,
				index:      i,
				tag:        tag,
			}
			si.tags = append(si.tags, tag)
		}
		sort.Strings(si.tags)
		return si, nil
	}
	return nil, fmt.Errorf("internal error: cannot generate arg info for %s", t.Kind())
}

// This expression should be aligned with the characters the generator emits
// for column names.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses a "db" field tag and returns the column name it holds.
func parseTag(tag string) (string, error) {
	options := strings.Split(tag, ",")
	if len(options) > 1 {
		return "", fmt.Errorf("unexpected tag option %q", options[1])
	}
	name := options[0]
	if len(name) == 0 {
		return "", fmt.Errorf("empty db tag")
	}
	if !validColNameRx.MatchString(name) {
		return "", fmt.Errorf("invalid column name in 'db' tag: %q", name)
	}
	return name, nil
}

// nameNotFoundError builds an error naming the types that are available.
func nameNotFoundError(argInfo *ArgInfo, missingTypeName string) error {
	argNames := make([]string, 0, len(argInfo.order))
	argNames = append(argNames, argInfo.order...)
	sort.Strings(argNames)
	if len(argNames) == 0 {
		return fmt.Errorf("type %q not passed as a parameter", missingTypeName)
	}
	return fmt.Errorf("type %q not passed as a parameter (have %s)", missingTypeName, strings.Join(argNames, ", "))
}
