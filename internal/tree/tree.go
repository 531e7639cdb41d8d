// Package tree models a GenieACS device document as an immutable JSON tree.
//
// A Node is exactly one of *Object, Array or Scalar. Objects keep the key order
// of the source document, which is what makes extraction output deterministic
// for a given upstream response.
package tree

import (
	"encoding/json"
	"iter"
)

// ValueKey is the key GenieACS uses for the payload of a parameter object.
// Its siblings (_writable, _timestamp, _type, ...) are metadata.
const ValueKey = "_value"

type Kind uint8

const (
	KindObject Kind = iota + 1
	KindArray
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindScalar:
		return "scalar"
	default:
		return "invalid"
	}
}

type Node interface {
	Kind() Kind
}

// Object is an ordered string-keyed mapping. Build it with NewObject and Set;
// after that it must be treated as read-only.
type Object struct {
	keys   []string
	fields map[string]Node
}

func NewObject(capacity int) *Object {
	return &Object{
		keys:   make([]string, 0, capacity),
		fields: make(map[string]Node, capacity),
	}
}

func (o *Object) Kind() Kind { return KindObject }

// Set stores v under key. Re-setting an existing key replaces the value but
// keeps the key at its original position.
func (o *Object) Set(key string, v Node) {
	if o.fields == nil {
		o.fields = make(map[string]Node)
	}
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

func (o *Object) Get(key string) (Node, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.fields[key]
	return v, ok
}

func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns a copy of the keys in document order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// All iterates key/value pairs in document order.
func (o *Object) All() iter.Seq2[string, Node] {
	return func(yield func(string, Node) bool) {
		if o == nil {
			return
		}
		for _, k := range o.keys {
			if !yield(k, o.fields[k]) {
				return
			}
		}
	}
}

type Array []Node

func (a Array) Kind() Kind { return KindArray }

func (a Array) At(i int) (Node, bool) {
	if i < 0 || i >= len(a) {
		return nil, false
	}
	return a[i], true
}

// Scalar holds a string, a json.Number, a bool, or nil (JSON null).
type Scalar struct {
	v any
}

func String(s string) Scalar      { return Scalar{v: s} }
func Number(n json.Number) Scalar { return Scalar{v: n} }
func Bool(b bool) Scalar          { return Scalar{v: b} }
func Null() Scalar                { return Scalar{} }

func (s Scalar) Kind() Kind   { return KindScalar }
func (s Scalar) Value() any   { return s.v }
func (s Scalar) IsNull() bool { return s.v == nil }

// IsNull reports whether n is missing or a JSON null.
func IsNull(n Node) bool {
	if n == nil {
		return true
	}
	s, ok := n.(Scalar)
	return ok && s.v == nil
}

// Unwrap returns the _value of a parameter object, or n itself for anything
// that is not a wrapped leaf.
func Unwrap(n Node) Node {
	obj, ok := n.(*Object)
	if !ok {
		return n
	}
	if v, ok := obj.Get(ValueKey); ok {
		return v
	}
	return n
}

// Interface converts n into plain Go values (map[string]any, []any, string,
// int64, float64, bool, nil). Key order is lost.
func Interface(n Node) any {
	switch v := n.(type) {
	case *Object:
		m := make(map[string]any, v.Len())
		for k, child := range v.All() {
			m[k] = Interface(child)
		}
		return m
	case Array:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = Interface(child)
		}
		return out
	case Scalar:
		if num, ok := v.v.(json.Number); ok {
			if i, err := num.Int64(); err == nil {
				return i
			}
			if f, err := num.Float64(); err == nil {
				return f
			}
			return string(num)
		}
		return v.v
	default:
		return nil
	}
}
