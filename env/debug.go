package env

import (
	"reflect"
	"regexp"
	"strings"
)

var classTag = regexp.MustCompile(`\[object ([^\]]+)\]`)

// DebugString renders a host value for diagnostics.
//
// Primitives render as literals, strings are quoted without escaping,
// arrays recurse, plain objects render as Object(<json>) and errors as
// "<name>: <message>\n<stack>". Everything else renders as its class tag.
// An array nested inside itself renders as [...].
func DebugString(v Value) string {
	p := debugPrinter{stack: make(map[uintptr]bool)}
	s, _ := p.format(v)
	return s
}

// FormatDebugString is DebugString for values handed back to a module. An
// array nested inside itself is a RangeError.
func FormatDebugString(v Value) (string, error) {
	p := debugPrinter{stack: make(map[uintptr]bool), strict: true}
	return p.format(v)
}

type debugPrinter struct {
	stack  map[uintptr]bool
	strict bool
}

func (p *debugPrinter) format(v Value) (string, error) {
	if a, ok := v.([]Value); ok {
		return p.array(a)
	}
	return debugScalar(v), nil
}

func (p *debugPrinter) array(a []Value) (string, error) {
	if len(a) > 0 {
		id := reflect.ValueOf(a).Pointer()
		if p.stack[id] {
			if p.strict {
				return "", RangeError("Maximum call stack size exceeded")
			}
			return "[...]", nil
		}
		p.stack[id] = true
		defer delete(p.stack, id)
	}

	var b strings.Builder
	b.WriteByte('[')
	for i, elem := range a {
		if i > 0 {
			b.WriteString(", ")
		}
		s, err := p.format(elem)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	b.WriteByte(']')
	return b.String(), nil
}

func debugScalar(v Value) string {
	switch x := v.(type) {
	case UndefinedType:
		return "undefined"
	case nil:
		return "null"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case string:
		return `"` + x + `"`
	case *Symbol:
		if !x.HasDescription {
			return "Symbol"
		}
		return "Symbol(" + x.Description + ")"
	case *Function:
		if x.Name != "" {
			return "Function(" + x.Name + ")"
		}
		return "Function"
	}

	if f, ok := ToNumber(v); ok {
		return FormatNumber(f)
	}

	tag := ObjectToString(v)
	m := classTag.FindStringSubmatch(tag)
	if m == nil {
		return tag
	}
	className := m[1]

	if className == "Object" {
		if s, err := Stringify(v); err == nil {
			return "Object(" + s + ")"
		}
		return "Object"
	}

	switch e := v.(type) {
	case *Error:
		return e.Name + ": " + e.Message + "\n" + e.Stack
	case error:
		return "Error: " + e.Error() + "\n"
	}

	return className
}

// ObjectToString returns the "[object <Tag>]" string for v.
func ObjectToString(v Value) string {
	switch x := v.(type) {
	case UndefinedType:
		return "[object Undefined]"
	case nil:
		return "[object Null]"
	case bool:
		return "[object Boolean]"
	case string:
		return "[object String]"
	case *Symbol:
		return "[object Symbol]"
	case *Function:
		return "[object Function]"
	case []Value:
		return "[object Array]"
	case Tagger:
		return "[object " + x.StringTag() + "]"
	case error:
		return "[object Error]"
	}
	if _, ok := ToNumber(v); ok {
		return "[object Number]"
	}
	return "[object Object]"
}
