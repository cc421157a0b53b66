package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical byte encoding of a value.
//
// Rules:
//  1. Object keys sort ascending by byte-wise string comparison, at every
//     nesting level.
//  2. No insignificant whitespace.
//  3. Integers encode in base 10 with no leading zeros or exponents.
//  4. Strings are NFC normalized; <, > and & are NOT HTML-escaped.
//  5. Null encodes as the literal "null" — absent optional fields must be
//     passed as Null, never dropped.
//
// The output is byte-identical for equal inputs across repeated calls and
// across construction order; every hash and signature in the system is
// computed over bytes produced here.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("nil Value: use Null for absent fields")
	case Null:
		buf.WriteString("null")
		return nil
	case String:
		return writeCanonicalString(buf, string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("unsupported canonical type: %T", v)
	}
}

// writeCanonicalString writes a JSON string with NFC normalization and
// HTML escaping disabled. Go's encoder otherwise escapes <, > and & for
// browser embedding, which would change the signed bytes.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}

	// json.Encoder appends a trailing newline.
	out := tmp.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	buf.Write(out)
	return nil
}

// ParseValue decodes JSON bytes into a canonical Value, rejecting floats.
// JSON null becomes Null, so decoded values round-trip through
// MarshalCanonical.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return fromGoValue(raw)
}

func fromGoValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		n, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("non-integer number %q: floats are forbidden", val)
		}
		return Int(n), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := fromGoValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := fromGoValue(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported JSON type: %T", v)
	}
}
