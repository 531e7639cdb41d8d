// Package extract translates a device parameter tree into a flat result using
// a mapping.Dictionary.
//
// Resolve expands one pattern into the concrete paths present in a tree,
// Evaluate reads the value at a concrete path, and Extract runs both over a
// whole dictionary. All three are pure: they never fail and never modify the
// tree, so a single dictionary can serve any number of concurrent calls.
package extract

import (
	"strconv"
	"strings"

	"github.com/John-Robertt/genieacs-gateway/internal/mapping"
	"github.com/John-Robertt/genieacs-gateway/internal/tree"
)

// Path is one concrete route from the root to a node: object keys and array
// indices in decimal.
type Path []string

func (p Path) String() string { return strings.Join(p, ".") }

// Resolve returns every concrete path in root matching segs, in tree order:
// object keys in document order, array elements by index.
//
// A literal segment applied to an array is looked up on each element that is
// an object; the branch records the literal key, not the element index.
func Resolve(root tree.Node, segs []mapping.Segment) []Path {
	return resolve(root, segs, make(Path, 0, len(segs)), nil)
}

// acc is shared between sibling branches; matches are cloned before they are kept.
func resolve(n tree.Node, segs []mapping.Segment, acc Path, out []Path) []Path {
	if len(segs) == 0 {
		match := make(Path, len(acc))
		copy(match, acc)
		return append(out, match)
	}
	seg, rest := segs[0], segs[1:]

	if seg.Wildcard {
		switch v := n.(type) {
		case *tree.Object:
			for k, child := range v.All() {
				out = resolve(child, rest, append(acc, k), out)
			}
		case tree.Array:
			for i, child := range v {
				out = resolve(child, rest, append(acc, strconv.Itoa(i)), out)
			}
		}
		return out
	}

	switch v := n.(type) {
	case *tree.Object:
		if child, ok := v.Get(seg.Key); ok {
			out = resolve(child, rest, append(acc, seg.Key), out)
		}
	case tree.Array:
		for _, el := range v {
			obj, ok := el.(*tree.Object)
			if !ok {
				continue
			}
			if child, ok := obj.Get(seg.Key); ok {
				out = resolve(child, rest, append(acc, seg.Key), out)
			}
		}
	}
	return out
}
