package vectorstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// DecodeVector converts a stored embedding into a dense []float32.
//
// Accepted forms:
//
//	[0.1, 0.2, 0.3]                                  dense array
//	{"0": 0.1, "1": 0.2, "2": 0.3}                   object keyed by position
//	{"indices": [0, 2], "values": [0.1, 0.3], "dim": 3}  sparse pair
//
// Object keys that parse as non-negative integers come first in ascending
// numeric order; any remaining keys follow in document order. For the sparse
// form "dim" is optional and defaults to the largest index plus one.
func DecodeVector(raw []byte) ([]float32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("vectorstore: decode vector: empty value")
	}

	switch raw[0] {
	case '[':
		var nums []float64
		if err := json.Unmarshal(raw, &nums); err != nil {
			return nil, fmt.Errorf("vectorstore: decode vector: %w", err)
		}
		return toFloat32(nums), nil
	case '{':
		return decodeObject(raw)
	default:
		return nil, fmt.Errorf("vectorstore: decode vector: unsupported form starting with %q", raw[0])
	}
}

// EncodeVector serialises v as a dense JSON array.
func EncodeVector(v []float32) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: encode vector: %w", err)
	}
	return b, nil
}

// Densify expands a sparse (indices, values) pair into a dense vector of
// length dim. A non-positive dim means the largest index plus one.
func Densify(indices []uint32, values []float32, dim int) ([]float32, error) {
	if len(indices) != len(values) {
		return nil, fmt.Errorf("vectorstore: densify: %d indices but %d values", len(indices), len(values))
	}
	if dim <= 0 {
		for _, i := range indices {
			if int(i)+1 > dim {
				dim = int(i) + 1
			}
		}
	}

	dense := make([]float32, dim)
	for n, i := range indices {
		if int(i) >= dim {
			return nil, fmt.Errorf("vectorstore: densify: index %d out of range for dimension %d", i, dim)
		}
		dense[i] = values[n]
	}
	return dense, nil
}

type member struct {
	key string
	val json.RawMessage
}

// decodeObject reads the members of a JSON object in document order.
func decodeObject(raw []byte) ([]float32, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("vectorstore: decode vector: %w", err)
	}

	var members []member
	byKey := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("vectorstore: decode vector: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("vectorstore: decode vector: unexpected token %v", tok)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, fmt.Errorf("vectorstore: decode vector: key %q: %w", key, err)
		}
		members = append(members, member{key: key, val: val})
		byKey[key] = val
	}

	if idx, ok := byKey["indices"]; ok {
		if vals, ok := byKey["values"]; ok {
			return decodeSparse(idx, vals, byKey["dim"])
		}
	}
	return decodeKeyed(members)
}

func decodeSparse(idxRaw, valRaw, dimRaw json.RawMessage) ([]float32, error) {
	var indices []uint32
	if err := json.Unmarshal(idxRaw, &indices); err != nil {
		return nil, fmt.Errorf("vectorstore: decode sparse indices: %w", err)
	}
	var values []float32
	if err := json.Unmarshal(valRaw, &values); err != nil {
		return nil, fmt.Errorf("vectorstore: decode sparse values: %w", err)
	}
	dim := 0
	if len(dimRaw) > 0 {
		if err := json.Unmarshal(dimRaw, &dim); err != nil {
			return nil, fmt.Errorf("vectorstore: decode sparse dim: %w", err)
		}
	}
	return Densify(indices, values, dim)
}

func decodeKeyed(members []member) ([]float32, error) {
	type indexed struct {
		pos int
		val float64
	}
	var numeric []indexed
	var other []float64

	for _, m := range members {
		var f float64
		if err := json.Unmarshal(m.val, &f); err != nil {
			return nil, fmt.Errorf("vectorstore: decode vector: key %q is not a number: %w", m.key, err)
		}
		if pos, err := strconv.Atoi(m.key); err == nil && pos >= 0 {
			numeric = append(numeric, indexed{pos: pos, val: f})
			continue
		}
		other = append(other, f)
	}

	sort.SliceStable(numeric, func(i, j int) bool { return numeric[i].pos < numeric[j].pos })

	out := make([]float32, 0, len(numeric)+len(other))
	for _, n := range numeric {
		out = append(out, float32(n.val))
	}
	for _, f := range other {
		out = append(out, float32(f))
	}
	return out, nil
}

func toFloat32(nums []float64) []float32 {
	out := make([]float32, len(nums))
	for i, f := range nums {
		out[i] = float32(f)
	}
	return out
}
