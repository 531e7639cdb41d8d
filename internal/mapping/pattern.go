// Package mapping holds the parameter dictionary: an ordered list of dotted
// path patterns, each naming the output field its matches are reported under.
package mapping

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// WildcardMarker is the normalized form of every placeholder.
const WildcardMarker = "*"

// placeholders all match any single object key or array index.
// "{i}" is used for instance numbers, "<VENDOR>" for vendor-specific subtrees.
var placeholders = map[string]struct{}{
	"{i}":          {},
	"<VENDOR>":     {},
	WildcardMarker: {},
}

type Segment struct {
	Key      string // literal key; empty for wildcards
	Wildcard bool
}

func Literal(key string) Segment { return Segment{Key: key} }
func Wildcard() Segment          { return Segment{Wildcard: true} }

func (s Segment) String() string {
	if s.Wildcard {
		return WildcardMarker
	}
	return s.Key
}

// Pattern is a parsed, normalized path pattern.
type Pattern struct {
	raw      string
	segments []Segment
}

var (
	errEmptyPattern = errors.New("pattern is empty")
	errEmptySegment = errors.New("pattern contains an empty segment")
)

func ParsePattern(raw string) (Pattern, error) {
	if strings.TrimSpace(raw) == "" {
		return Pattern{}, errEmptyPattern
	}
	parts := strings.Split(raw, ".")
	segs := make([]Segment, 0, len(parts))
	for i, p := range parts {
		if p == "" {
			return Pattern{}, fmt.Errorf("%w (position %d)", errEmptySegment, i+1)
		}
		if _, ok := placeholders[p]; ok {
			segs = append(segs, Wildcard())
			continue
		}
		segs = append(segs, Literal(p))
	}
	return Pattern{raw: raw, segments: segs}, nil
}

// MustParsePattern is ParsePattern for patterns known to be valid.
func MustParsePattern(raw string) Pattern {
	p, err := ParsePattern(raw)
	if err != nil {
		panic(fmt.Sprintf("mapping: invalid pattern %q: %v", raw, err))
	}
	return p
}

// String returns the pattern as written in the dictionary.
func (p Pattern) String() string { return p.raw }

// Normalized returns the pattern with every placeholder replaced by WildcardMarker.
func (p Pattern) Normalized() string {
	parts := make([]string, len(p.segments))
	for i, s := range p.segments {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

func (p Pattern) Segments() []Segment { return slices.Clone(p.segments) }

func (p Pattern) Len() int { return len(p.segments) }
