package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/genieacs-gateway/internal/model"
	"github.com/John-Robertt/genieacs-gateway/internal/tree"
	"gopkg.in/yaml.v3"
)

const stageLoad = "load_mapping"

// LoadError means the dictionary resource cannot be used. It is a startup
// failure, never a per-request one.
type LoadError struct {
	AppError model.AppError
	Cause    error
}

func (e *LoadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

type Format int

const (
	FormatAuto Format = iota
	FormatJSON
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "auto"
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatAuto
	}
}

// Load reads and parses a dictionary file. Every failure is a *LoadError.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			AppError: model.AppError{
				Code:    "MAPPING_READ_ERROR",
				Message: "cannot read mapping file",
				Stage:   stageLoad,
				Source:  path,
			},
			Cause: err,
		}
	}
	return Parse(path, data, FormatFromPath(path))
}

// Parse decodes a dictionary resource: a flat object of pattern -> output name.
// JSON and YAML are accepted; with FormatAuto a document starting with '{' is
// read as JSON. Empty resources are rejected.
func Parse(source string, data []byte, format Format) (*Dictionary, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &LoadError{
			AppError: model.AppError{
				Code:    "MAPPING_EMPTY",
				Message: "mapping resource is empty",
				Stage:   stageLoad,
				Source:  source,
			},
		}
	}
	if format == FormatAuto {
		format = FormatYAML
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			format = FormatJSON
		}
	}

	var (
		pairs []Pair
		err   error
	)
	switch format {
	case FormatJSON:
		pairs, err = pairsFromJSON(data)
	default:
		pairs, err = pairsFromYAML(data)
	}
	if err != nil {
		return nil, &LoadError{
			AppError: model.AppError{
				Code:    "MAPPING_PARSE_ERROR",
				Message: fmt.Sprintf("mapping %s parse failed", format),
				Stage:   stageLoad,
				Source:  source,
				Snippet: model.TruncateSnippet(string(data), 200),
				Hint:    `expected a flat object: {"Device.IP.Interface.{i}.Enable": "ip_enabled", ...}`,
			},
			Cause: err,
		}
	}
	if len(pairs) == 0 {
		return nil, &LoadError{
			AppError: model.AppError{
				Code:    "MAPPING_EMPTY",
				Message: "mapping defines no patterns",
				Stage:   stageLoad,
				Source:  source,
			},
		}
	}

	d, err := New(pairs...)
	if err != nil {
		return nil, &LoadError{
			AppError: model.AppError{
				Code:    "MAPPING_VALIDATE_ERROR",
				Message: "mapping contains an invalid entry",
				Stage:   stageLoad,
				Source:  source,
			},
			Cause: err,
		}
	}
	return d, nil
}

func pairsFromJSON(data []byte) ([]Pair, error) {
	root, err := tree.ParseStrict(data)
	if err != nil {
		return nil, err
	}
	obj, ok := root.(*tree.Object)
	if !ok {
		return nil, fmt.Errorf("top-level value is a JSON %s, want object", root.Kind())
	}
	pairs := make([]Pair, 0, obj.Len())
	for pattern, v := range obj.All() {
		s, ok := v.(tree.Scalar)
		name, isString := s.Value().(string)
		if !ok || !isString {
			return nil, fmt.Errorf("%q: output name must be a string", pattern)
		}
		pairs = append(pairs, Pair{Pattern: pattern, Name: name})
	}
	return pairs, nil
}

func pairsFromYAML(data []byte) ([]Pair, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			// Comments only.
			return nil, nil
		}
		return nil, err
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return nil, errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return nil, err
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, errors.New("unexpected YAML document shape")
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top-level value must be a mapping", m.Line)
	}

	pairs := make([]Pair, 0, len(m.Content)/2)
	seen := make(map[string]int, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if k.Kind != yaml.ScalarNode || k.ShortTag() == "!!merge" {
			return nil, fmt.Errorf("line %d: pattern must be a scalar", k.Line)
		}
		if v.Kind != yaml.ScalarNode || v.ShortTag() != "!!str" {
			return nil, fmt.Errorf("line %d: %q: output name must be a string", v.Line, k.Value)
		}
		// yaml.v3 only rejects duplicate keys when decoding into Go values.
		if prev, ok := seen[k.Value]; ok {
			return nil, fmt.Errorf("line %d: %q already defined on line %d", k.Line, k.Value, prev)
		}
		seen[k.Value] = k.Line
		pairs = append(pairs, Pair{Pattern: k.Value, Name: v.Value})
	}
	return pairs, nil
}
