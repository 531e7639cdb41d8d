package extract

import (
	"encoding/json"

	"github.com/John-Robertt/genieacs-gateway/internal/tree"
)

// Value is what an output name maps to: Single when exactly one value was
// found for it, Multiple when more than one was.
type Value interface {
	// Nodes returns the values in the order they were found.
	Nodes() []tree.Node
	isValue()
}

type Single struct {
	Node tree.Node
}

func (s Single) Nodes() []tree.Node { return []tree.Node{s.Node} }
func (Single) isValue()             {}

func (s Single) MarshalJSON() ([]byte, error) { return tree.Marshal(s.Node) }

type Multiple []tree.Node

func (m Multiple) Nodes() []tree.Node { return append([]tree.Node(nil), m...) }
func (Multiple) isValue()             {}

func (m Multiple) MarshalJSON() ([]byte, error) { return tree.Marshal(tree.Array(m)) }

// Result maps output names to values. Names keep the order in which they
// first received a value. The zero value is an empty result.
type Result struct {
	names  []string
	values map[string]Value
}

func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

func (r *Result) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.names...)
}

func (r *Result) Get(name string) (Value, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[name]
	return v, ok
}

// add merges n under name: the first value is stored as Single, the second
// turns it into Multiple, later ones are appended.
func (r *Result) add(name string, n tree.Node) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	switch cur := r.values[name].(type) {
	case nil:
		r.names = append(r.names, name)
		r.values[name] = Single{Node: n}
	case Single:
		r.values[name] = Multiple{cur.Node, n}
	case Multiple:
		r.values[name] = append(cur, n)
	}
}

func (r *Result) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	buf := []byte{'{'}
	for i, name := range r.names {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')

		var vb []byte
		switch v := r.values[name].(type) {
		case Single:
			vb, err = v.MarshalJSON()
		case Multiple:
			vb, err = v.MarshalJSON()
		}
		if err != nil {
			return nil, err
		}
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}
