package extract

import (
	"github.com/John-Robertt/genieacs-gateway/internal/tree"
)

// Evaluate walks root along p and returns the value found there. A parameter
// object ({"_value": ..., "_timestamp": ...}) yields its _value.
//
// The second result is false when the value is absent: a missing key, an
// array segment that is not an in-range index, a scalar in the middle of the
// path, or a null.
func Evaluate(root tree.Node, p Path) (tree.Node, bool) {
	cur := root
	for _, seg := range p {
		switch v := cur.(type) {
		case *tree.Object:
			child, ok := v.Get(seg)
			if !ok {
				return nil, false
			}
			cur = child
		case tree.Array:
			i, ok := parseIndex(seg)
			if !ok {
				return nil, false
			}
			child, ok := v.At(i)
			if !ok {
				return nil, false
			}
			cur = child
		default:
			return nil, false
		}
		if tree.IsNull(cur) {
			return nil, false
		}
	}

	cur = tree.Unwrap(cur)
	if tree.IsNull(cur) {
		return nil, false
	}
	return cur, true
}

// parseIndex accepts plain decimal digits only; no sign, no spaces.
func parseIndex(s string) (int, bool) {
	if s == "" || len(s) > 9 {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
