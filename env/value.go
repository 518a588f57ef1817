package env

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is any host value that can be stored in a handle table.
//
// The bridge understands these dynamic types:
//
//	UndefinedType     undefined
//	nil               null
//	bool              boolean
//	float64           number (other Go numeric kinds are accepted and widened)
//	string            string
//	*Symbol           symbol
//	*Function         function
//	[]Value           array
//	*Object           plain object with insertion-ordered properties
//	*Error            error object
//	*Window, *Global  global objects
//	*Document         document
//	*Element          element
type Value = any

// UndefinedType is the type of Undefined.
type UndefinedType struct{}

// Undefined is the undefined value. It is distinct from nil, which is null.
var Undefined = UndefinedType{}

// IsUndefined reports whether v is undefined.
func IsUndefined(v Value) bool {
	_, ok := v.(UndefinedType)
	return ok
}

// IsNull reports whether v is null.
func IsNull(v Value) bool {
	return v == nil
}

// IsNullish reports whether v is undefined or null.
func IsNullish(v Value) bool {
	return v == nil || IsUndefined(v)
}

// Tagger is implemented by values that report their own class tag, the
// name that appears in "[object <Tag>]".
type Tagger interface {
	StringTag() string
}

// Symbol is a unique value with an optional description.
type Symbol struct {
	Description    string
	HasDescription bool
}

// NewSymbol creates a symbol with a description.
func NewSymbol(description string) *Symbol {
	return &Symbol{Description: description, HasDescription: true}
}

// TypeOf returns the typeof string for v.
func TypeOf(v Value) string {
	switch v.(type) {
	case UndefinedType:
		return "undefined"
	case bool:
		return "boolean"
	case string:
		return "string"
	case *Symbol:
		return "symbol"
	case *Function:
		return "function"
	}
	if _, ok := ToNumber(v); ok {
		return "number"
	}
	return "object"
}

// IsObject reports whether typeof v is "object" and v is not null.
func IsObject(v Value) bool {
	return v != nil && TypeOf(v) == "object"
}

// ToNumber widens Go numeric kinds to float64.
func ToNumber(v Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// FormatNumber renders f the way String(number) does.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	exp = strings.TrimLeft(exp[1:], "0")
	return mant + "e" + string(sign) + exp
}

// Property reads a named property from a host value. Missing properties and
// property reads on primitives yield Undefined.
func Property(v Value, name string) Value {
	switch o := v.(type) {
	case *Object:
		if p, ok := o.Get(name); ok {
			return p
		}
	case *Window:
		return o.property(name)
	case *Global:
		if p, ok := o.props.Get(name); ok {
			return p
		}
	case *Document:
		return o.property(name)
	case *Element:
		return o.property(name)
	case *Error:
		switch name {
		case "name":
			return o.Name
		case "message":
			return o.Message
		case "stack":
			return o.Stack
		}
	case *Function:
		if name == "name" {
			return o.Name
		}
	case string:
		if name == "length" {
			return float64(len(utf16.Encode([]rune(o))))
		}
	case []Value:
		if name == "length" {
			return float64(len(o))
		}
	}
	return Undefined
}
