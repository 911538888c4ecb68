package keypager

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

var _encoder = base64.RawURLEncoding

// _timeTag marks a time.Time boundary value in the token. "$" is not allowed
// in column names, so a tagged value never collides with a boundary map.
const _timeTag = "$time"

// Keyset is the pagination cursor: the boundary points of the first and the
// last row of a page, in forward (declared) sort order regardless of the
// direction the page was fetched in.
//
// A boundary point is a bare value when the sort key has one column and a
// map of column to value otherwise. Either side is nil for an empty page.
//
// Keyset values must come from a previous Page or from a decoded token. They
// are not meant to be assembled by hand.
type Keyset struct {
	First any `json:"first,omitempty"`
	Last  any `json:"last,omitempty"`
}

// keysetPayload is the wire form of Keyset. It exists so the JSON codec does
// not recurse into Keyset.MarshalText.
type keysetPayload struct {
	First any `json:"first,omitempty"`
	Last  any `json:"last,omitempty"`
}

// DecodeKeyset parses a token produced by Keyset.String. An empty token means
// the first page and yields a nil keyset.
func DecodeKeyset(token string) (*Keyset, error) {
	if len(token) == 0 {
		return nil, nil
	}

	jsonData, err := _encoder.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode base64 encoded cursor: %v", ErrMalformedCursor, err)
	}

	return decodeKeysetJSON(jsonData)
}

// ParseKeyset accepts a keyset in any of its transport forms: nil, Keyset,
// *Keyset, a token, raw JSON text or bytes, or an already decoded JSON object
// with "first" and "last" members.
func ParseKeyset(raw any) (*Keyset, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case *Keyset:
		return v, nil
	case Keyset:
		return &v, nil
	case []byte:
		return decodeKeysetJSON(v)
	case string:
		if looksLikeJSONObject([]byte(v)) {
			return decodeKeysetJSON([]byte(v))
		}

		return DecodeKeyset(v)
	case map[string]any:
		for key := range v {
			if key != "first" && key != "last" {
				return nil, fmt.Errorf("%w: unexpected cursor member '%s'", ErrMalformedCursor, key)
			}
		}

		return &Keyset{First: untagValue(v["first"]), Last: untagValue(v["last"])}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported cursor type %T", ErrMalformedCursor, raw)
	}
}

func decodeKeysetJSON(data []byte) (*Keyset, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	// Keep numbers as json.Number so int64 and uint64 values survive intact.
	decoder.UseNumber()

	var payload keysetPayload
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal json encoded cursor: %v", ErrMalformedCursor, err)
	}

	if decoder.More() {
		return nil, fmt.Errorf("%w: trailing data after cursor", ErrMalformedCursor)
	}

	return &Keyset{First: untagValue(payload.First), Last: untagValue(payload.Last)}, nil
}

// tagValue wraps time values so they decode back as time.Time and not as the
// string a text column could hold as well.
func tagValue(v any) any {
	switch vt := v.(type) {
	case time.Time:
		return map[string]any{_timeTag: vt.Format(time.RFC3339Nano)}
	case *time.Time:
		if vt == nil {
			return nil
		}

		return tagValue(*vt)
	case map[string]any:
		ret := make(map[string]any, len(vt))
		for column, value := range vt {
			ret[column] = tagValue(value)
		}

		return ret
	default:
		return v
	}
}

// untagValue reverses tagValue. A tag that does not hold a valid timestamp
// is left as is and fails later as an incomplete or malformed boundary.
func untagValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	if text, ok := m[_timeTag].(string); ok && len(m) == 1 {
		ts, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return v
		}

		return ts
	}

	ret := make(map[string]any, len(m))
	for column, value := range m {
		ret[column] = untagValue(value)
	}

	return ret
}

func looksLikeJSONObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// String - implements fmt.Stringer. Returns the opaque, URL safe token.
func (k *Keyset) String() string {
	if k.IsEmpty() {
		return ""
	}

	jTok, err := json.Marshal(keysetPayload{First: tagValue(k.First), Last: tagValue(k.Last)})
	if err != nil {
		panic(fmt.Errorf("cannot marshal cursor value: %w", err))
	}

	var buf bytes.Buffer
	if err = json.Compact(&buf, jTok); err != nil {
		panic(fmt.Errorf("cannot compact cursor value: %w", err))
	}

	return _encoder.EncodeToString(buf.Bytes())
}

// IsEmpty reports whether the keyset carries no boundary at all.
func (k *Keyset) IsEmpty() bool {
	return k == nil || (k.First == nil && k.Last == nil)
}

// MarshalText - implements encoding.TextMarshaler.
func (k *Keyset) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText - implements encoding.TextUnmarshaler.
func (k *Keyset) UnmarshalText(text []byte) error {
	decoded, err := DecodeKeyset(string(text))
	if err != nil {
		return err
	}

	if decoded == nil {
		*k = Keyset{}
		return nil
	}

	*k = *decoded

	return nil
}

// seekPosition returns the raw boundary point to seek from.
func (k *Keyset) seekPosition(direction PageDirection) any {
	if k == nil {
		return nil
	}

	if direction == Backward {
		return k.First
	}

	return k.Last
}

var (
	_ fmt.Stringer = (*Keyset)(nil)
)
