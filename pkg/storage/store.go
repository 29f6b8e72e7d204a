package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNotFound is returned when a group or array does not exist
var ErrNotFound = errors.New("not found")

// Path addresses a hierarchical group, e.g. {"items", "kick.wav", "rms"}
type Path []string

func (p Path) String() string {
	return strings.Join(p, "/")
}

// Child returns a new path with name appended
func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

// Attributes are the scalar and string attributes attached to a group
type Attributes map[string]any

// String returns the string attribute for key, or "" when absent
func (a Attributes) String(key string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return ""
}

// Float returns the numeric attribute for key
func (a Attributes) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int returns the integer attribute for key
func (a Attributes) Int(key string) (int, bool) {
	f, ok := a.Float(key)
	return int(f), ok
}

func (a Attributes) clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Store is a hierarchical, persistent container of named float64 arrays.
// WriteArrays replaces every array and the attributes of a group in one atomic step;
// readers never observe a partially written group.
type Store interface {
	CreateGroup(path Path) error
	WriteArray(path Path, name string, data []float64, attrs Attributes) error
	WriteArrays(path Path, arrays map[string][]float64, attrs Attributes) error
	ReadArray(path Path, name string) ([]float64, Attributes, error)
	ReadAttributes(path Path) (Attributes, error)
	Exists(path Path, name string) (bool, error)
	DeleteGroup(path Path) error
	Close() error
}

// encodeFloats stores values as little-endian IEEE-754 so NaN payloads round-trip exactly
func encodeFloats(data []float64) []byte {
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("array payload of %d bytes is not a multiple of 8", len(buf))
	}
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}

func encodeAttributes(attrs Attributes) ([]byte, error) {
	if attrs == nil {
		attrs = Attributes{}
	}
	return json.Marshal(attrs)
}

func decodeAttributes(buf []byte) (Attributes, error) {
	attrs := Attributes{}
	if len(buf) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(buf, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func validatePath(path Path) error {
	if len(path) == 0 {
		return fmt.Errorf("empty group path")
	}
	for _, p := range path {
		if p == "" {
			return fmt.Errorf("empty path segment in %q", path.String())
		}
	}
	return nil
}
