package definition

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/netbricks/netbricks/engine/gwutils"
	"github.com/pkg/errors"
	"github.com/xiaonanln/typeconv"
)

// ValueType is the type of an attribute or RPC argument
type ValueType uint8

const (
	// TypeBool holds bool values
	TypeBool ValueType = iota + 1
	// TypeInt holds int64 values
	TypeInt
	// TypeFloat holds float64 values
	TypeFloat
	// TypeString holds string values
	TypeString
)

var valueTypeReflectTypes = map[ValueType]reflect.Type{
	TypeBool:   reflect.TypeOf(false),
	TypeInt:    reflect.TypeOf(int64(0)),
	TypeFloat:  reflect.TypeOf(float64(0)),
	TypeString: reflect.TypeOf(""),
}

func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "BOOL"
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeString:
		return "STRING"
	}
	return fmt.Sprintf("ValueType(%d)", uint8(t))
}

// ParseValueType converts an author-facing type name to a ValueType
//
// TIMER properties are floats.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BOOL":
		return TypeBool, nil
	case "INT":
		return TypeInt, nil
	case "FLOAT", "TIMER":
		return TypeFloat, nil
	case "STRING", "STR":
		return TypeString, nil
	}
	return 0, errors.Errorf("unknown value type: %q", s)
}

// InferValueType guesses the type of a decoded JSON value
func InferValueType(v interface{}) (ValueType, bool) {
	switch val := v.(type) {
	case bool:
		return TypeBool, true
	case string:
		return TypeString, true
	case json.Number:
		if strings.ContainsAny(val.String(), ".eE") {
			return TypeFloat, true
		}
		return TypeInt, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInt, true
	case float32, float64:
		return TypeFloat, true
	}
	return 0, false
}

// Zero returns the zero value of the type
func (t ValueType) Zero() interface{} {
	rt, ok := valueTypeReflectTypes[t]
	if !ok {
		return nil
	}
	return reflect.Zero(rt).Interface()
}

// Coerce converts v to the canonical Go value of the type (bool, int64, float64 or string)
func (t ValueType) Coerce(v interface{}) (res interface{}, err error) {
	rt, ok := valueTypeReflectTypes[t]
	if !ok {
		return nil, errors.Errorf("invalid value type %s", t)
	}
	if v == nil {
		return t.Zero(), nil
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			v = i
		} else if f, err := n.Float64(); err == nil {
			v = f
		} else {
			return nil, errors.Errorf("invalid number %s", n)
		}
	}

	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, errors.Errorf("cannot use %v (%T) as %s", v, v, t)
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		if _, ok := InferValueType(v); !ok || isString(v) {
			return nil, errors.Errorf("cannot use %v (%T) as %s", v, v, t)
		}
		return typeconv.Int(v) != 0, nil
	}

	if isString(v) {
		return nil, errors.Errorf("cannot use %v (%T) as %s", v, v, t)
	}
	if perr := gwutils.CatchPanic(func() {
		res = typeconv.Convert(v, rt).Interface()
	}); perr != nil {
		return nil, errors.Errorf("cannot convert %v (%T) to %s: %v", v, v, t, perr)
	}
	return res, nil
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}
