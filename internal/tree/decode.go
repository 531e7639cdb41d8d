package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/buger/jsonparser"
)

// MaxDepth is the deepest nesting of objects and arrays a document may have.
// It matches encoding/json.
const MaxDepth = 10000

// DuplicateKeyError is returned by strict decoding when an object repeats a key.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate object key %q", e.Key)
}

// Parse decodes a single JSON document. Repeated object keys keep their first
// position and take the last value, like most JSON consumers do.
func Parse(data []byte) (Node, error) {
	return decodeDocument(data, false)
}

// ParseStrict is Parse but rejects repeated object keys with *DuplicateKeyError.
func ParseStrict(data []byte) (Node, error) {
	return decodeDocument(data, true)
}

func Decode(r io.Reader) (Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func decodeDocument(data []byte, strict bool) (Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	// jsonparser walks without validating; the scanner behind json.Valid is
	// iterative and enforces MaxDepth, so hostile input fails here.
	if !json.Valid(data) {
		return nil, syntaxError(data)
	}

	value, typ, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, err
	}
	return walker{strict: strict}.node(value, typ, 0)
}

// syntaxError reports why data is not valid JSON, with its offset.
func syntaxError(data []byte) error {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return fmt.Errorf("invalid JSON document")
}

type walker struct {
	strict bool
}

func (w walker) node(data []byte, typ jsonparser.ValueType, depth int) (Node, error) {
	switch typ {
	case jsonparser.Object:
		return w.object(data, depth+1)
	case jsonparser.Array:
		return w.array(data, depth+1)
	case jsonparser.String:
		s, err := jsonparser.ParseString(data)
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case jsonparser.Number:
		return Number(json.Number(string(data))), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(data)
		if err != nil {
			return nil, err
		}
		return Bool(b), nil
	case jsonparser.Null:
		return Null(), nil
	default:
		return nil, fmt.Errorf("unexpected JSON value of type %s", typ)
	}
}

func (w walker) object(data []byte, depth int) (Node, error) {
	if depth > MaxDepth {
		return nil, errTooDeep
	}
	obj := NewObject(0)
	err := jsonparser.ObjectEach(data, func(key, value []byte, typ jsonparser.ValueType, _ int) error {
		k := string(key)
		if w.strict && obj.Has(k) {
			return &DuplicateKeyError{Key: k}
		}
		v, err := w.node(value, typ, depth)
		if err != nil {
			return err
		}
		obj.Set(k, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (w walker) array(data []byte, depth int) (Node, error) {
	if depth > MaxDepth {
		return nil, errTooDeep
	}
	arr := Array{}
	var walkErr error
	_, err := jsonparser.ArrayEach(data, func(value []byte, typ jsonparser.ValueType, _ int, err error) {
		if walkErr != nil {
			return
		}
		if err != nil {
			walkErr = err
			return
		}
		v, err := w.node(value, typ, depth)
		if err != nil {
			walkErr = err
			return
		}
		arr = append(arr, v)
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if err != nil {
		return nil, err
	}
	return arr, nil
}

var errTooDeep = fmt.Errorf("JSON document exceeds max depth %d", MaxDepth)
