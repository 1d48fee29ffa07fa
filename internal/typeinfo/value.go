// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
)

// Coerce converts a raw item value to the target type. Stores are loose
// about numeric width (integers commonly arrive as int64, floats as
// float64) and represent booleans as integers, so the conversions a typed
// result needs are applied here. A nil raw value zeroes the target.
func Coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if b, ok := v.([]byte); ok && t.Kind() == reflect.String {
		return reflect.ValueOf(string(b)), nil
	}
	rk, tk := rv.Kind(), t.Kind()
	if isNumeric(rk) && isNumeric(tk) {
		return rv.Convert(t), nil
	}
	if tk == reflect.Bool && isInteger(rk) {
		if rk >= reflect.Uint && rk <= reflect.Uint64 {
			return reflect.ValueOf(rv.Uint() != 0), nil
		}
		return reflect.ValueOf(rv.Int() != 0), nil
	}
	if t.Kind() == reflect.Pointer {
		inner, err := Coerce(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", rv.Type(), t)
}

func isNumeric(k reflect.Kind) bool {
	return isInteger(k) || k == reflect.Float32 || k == reflect.Float64
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
