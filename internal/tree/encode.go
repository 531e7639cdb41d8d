package tree

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes n as JSON, keeping object key order.
func Marshal(n Node) ([]byte, error) {
	return AppendJSON(nil, n)
}

func AppendJSON(dst []byte, n Node) ([]byte, error) {
	switch v := n.(type) {
	case nil:
		return append(dst, "null"...), nil
	case *Object:
		if v == nil {
			return append(dst, "null"...), nil
		}
		dst = append(dst, '{')
		for i, k := range v.keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			dst = append(dst, kb...)
			dst = append(dst, ':')
			if dst, err = AppendJSON(dst, v.fields[k]); err != nil {
				return nil, err
			}
		}
		return append(dst, '}'), nil
	case Array:
		if v == nil {
			return append(dst, "[]"...), nil
		}
		dst = append(dst, '[')
		for i, child := range v {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = AppendJSON(dst, child); err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil
	case Scalar:
		b, err := json.Marshal(v.v)
		if err != nil {
			return nil, err
		}
		return append(dst, b...), nil
	default:
		return nil, fmt.Errorf("tree: unsupported node type %T", n)
	}
}

func (o *Object) MarshalJSON() ([]byte, error) { return Marshal(o) }
func (a Array) MarshalJSON() ([]byte, error)   { return Marshal(a) }
func (s Scalar) MarshalJSON() ([]byte, error)  { return Marshal(s) }
