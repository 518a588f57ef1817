package env

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is a plain object. Properties keep insertion order, which is the
// order they are enumerated and serialized in.
type Object struct {
	props *orderedmap.OrderedMap[string, Value]
	tag   string
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{props: orderedmap.New[string, Value]()}
}

// ObjectOf creates an object from alternating key, value arguments.
func ObjectOf(kv ...Value) *Object {
	o := NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		o.Set(key, kv[i+1])
	}
	return o
}

// WithTag overrides the class tag reported for this object.
func (o *Object) WithTag(tag string) *Object {
	o.tag = tag
	return o
}

// StringTag implements Tagger.
func (o *Object) StringTag() string {
	if o.tag != "" {
		return o.tag
	}
	return "Object"
}

// Set assigns a property. Existing keys keep their position.
func (o *Object) Set(key string, v Value) *Object {
	o.props.Set(key, v)
	return o
}

// Get returns a property.
func (o *Object) Get(key string) (Value, bool) {
	return o.props.Get(key)
}

// Delete removes a property and reports whether it existed.
func (o *Object) Delete(key string) bool {
	_, ok := o.props.Delete(key)
	return ok
}

// Len returns the number of properties.
func (o *Object) Len() int {
	return o.props.Len()
}

// Keys returns the property names in insertion order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.props.Len())
	for pair := o.props.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Each calls fn for every property in insertion order until fn returns false.
func (o *Object) Each(fn func(key string, v Value) bool) {
	for pair := o.props.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// MarshalJSON serializes the object the way JSON.stringify does.
func (o *Object) MarshalJSON() ([]byte, error) {
	s, err := Stringify(o)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
