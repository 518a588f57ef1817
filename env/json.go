package env

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CycleError is returned when a value refers back to one of its own
// containers.
type CycleError struct {
	Tag string
}

func (e *CycleError) Error() string {
	return "converting circular structure to JSON (starting at " + e.Tag + ")"
}

// Stringify serializes v the way JSON.stringify does: object properties in
// insertion order, undefined, functions and symbols dropped from objects and
// turned into null inside arrays, non-finite numbers as null.
func Stringify(v Value) (string, error) {
	enc := &jsonEncoder{stack: make(map[uintptr]bool)}
	out, keep, err := enc.convert(v)
	if err != nil {
		return "", err
	}
	if !keep {
		return "", fmt.Errorf("value of type %s is not serializable", TypeOf(v))
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type jsonEncoder struct {
	stack map[uintptr]bool
}

// convert maps a host value onto something encoding/json renders in the
// same shape. keep is false for values that are omitted from objects.
func (e *jsonEncoder) convert(v Value) (out any, keep bool, err error) {
	switch x := v.(type) {
	case nil:
		return nil, true, nil
	case UndefinedType, *Function, *Symbol:
		return nil, false, nil
	case bool:
		return x, true, nil
	case string:
		return x, true, nil
	case *Object:
		return e.object(x)
	case []Value:
		return e.array(x)
	case *Error, *Window, *Global, *Document, *Element:
		return orderedmap.New[string, any](), true, nil
	}

	if f, ok := ToNumber(v); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true, nil
		}
		return f, true, nil
	}
	return nil, false, fmt.Errorf("unsupported value of type %T", v)
}

func (e *jsonEncoder) object(o *Object) (any, bool, error) {
	id := reflect.ValueOf(o).Pointer()
	if e.stack[id] {
		return nil, false, &CycleError{Tag: o.StringTag()}
	}
	e.stack[id] = true
	defer delete(e.stack, id)

	out := orderedmap.New[string, any](orderedmap.WithCapacity[string, any](o.Len()))
	for pair := o.props.Oldest(); pair != nil; pair = pair.Next() {
		val, keep, err := e.convert(pair.Value)
		if err != nil {
			return nil, false, err
		}
		if keep {
			out.Set(pair.Key, val)
		}
	}
	return out, true, nil
}

func (e *jsonEncoder) array(a []Value) (any, bool, error) {
	if len(a) > 0 {
		id := reflect.ValueOf(a).Pointer()
		if e.stack[id] {
			return nil, false, &CycleError{Tag: "Array"}
		}
		e.stack[id] = true
		defer delete(e.stack, id)
	}

	out := make([]any, len(a))
	for i, elem := range a {
		val, keep, err := e.convert(elem)
		if err != nil {
			return nil, false, err
		}
		if keep {
			out[i] = val
		}
	}
	return out, true, nil
}
