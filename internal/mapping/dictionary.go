package mapping

import (
	"fmt"
	"iter"
	"strings"
)

type Entry struct {
	Pattern Pattern
	Name    string
}

// Pair is an unparsed dictionary line: pattern string -> output name.
type Pair struct {
	Pattern string
	Name    string
}

// Dictionary is immutable once built and safe for concurrent use.
// The zero value is an empty dictionary.
type Dictionary struct {
	entries []Entry
}

// New validates pairs and builds a dictionary preserving their order.
// An empty list is allowed; use Load/Parse for externally authored resources.
func New(pairs ...Pair) (*Dictionary, error) {
	d := &Dictionary{entries: make([]Entry, 0, len(pairs))}
	seen := make(map[string]int, len(pairs))
	for i, p := range pairs {
		if prev, ok := seen[p.Pattern]; ok {
			return nil, fmt.Errorf("entry %d: pattern %q already defined by entry %d", i+1, p.Pattern, prev)
		}
		seen[p.Pattern] = i + 1

		pat, err := ParsePattern(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %q: %w", i+1, p.Pattern, err)
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("entry %d: %q: output name is empty", i+1, p.Pattern)
		}
		d.entries = append(d.entries, Entry{Pattern: pat, Name: p.Name})
	}
	return d, nil
}

func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// All yields entries in insertion order.
func (d *Dictionary) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if d == nil {
			return
		}
		for _, e := range d.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Names returns the distinct output names in order of first appearance.
func (d *Dictionary) Names() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(d.entries))
	out := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		out = append(out, e.Name)
	}
	return out
}
