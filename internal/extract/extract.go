package extract

import (
	"github.com/John-Robertt/genieacs-gateway/internal/mapping"
	"github.com/John-Robertt/genieacs-gateway/internal/tree"
)

// Extract resolves every dictionary entry against root and merges the values
// found. Entries are processed in dictionary order and, within an entry, in
// resolution order; that order decides both the order of names in the result
// and the order of values inside a Multiple.
//
// A name whose patterns match nothing, or only absent values, is left out.
func Extract(root tree.Node, dict *mapping.Dictionary) *Result {
	res := &Result{}
	walk(root, dict, func(m Match) {
		res.add(m.Name, m.Value)
	})
	return res
}

// Match is a single contribution to a Result.
type Match struct {
	Pattern mapping.Pattern
	Name    string
	Path    Path
	Value   tree.Node
}

// Explain returns the matches Extract would merge, in merge order. It is meant
// for people writing dictionaries who need to see which concrete paths fed a
// name.
func Explain(root tree.Node, dict *mapping.Dictionary) []Match {
	var out []Match
	walk(root, dict, func(m Match) {
		out = append(out, m)
	})
	return out
}

func walk(root tree.Node, dict *mapping.Dictionary, emit func(Match)) {
	for e := range dict.All() {
		for _, p := range Resolve(root, e.Pattern.Segments()) {
			v, ok := Evaluate(root, p)
			if !ok {
				continue
			}
			emit(Match{Pattern: e.Pattern, Name: e.Name, Path: p, Value: v})
		}
	}
}
