package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// SuccessStatus is the only status value that marks a usable search response.
const SuccessStatus = "Success"

var errTrailingData = errors.New("unexpected data after top-level value")

// Record is one raw property record from a search response. No field is
// guaranteed to be present, so every read goes through Get or Object.
type Record map[string]any

// Get returns the raw value stored under key and whether the key exists.
// A key holding JSON null still counts as present.
func (r Record) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r[key]
	return v, ok
}

// Object returns the nested record stored under key. It reports false when
// the key is missing or does not hold an object.
func (r Record) Object(key string) (Record, bool) {
	v, ok := r.Get(key)
	if !ok {
		return nil, false
	}
	switch obj := v.(type) {
	case map[string]any:
		return Record(obj), true
	case Record:
		return obj, true
	default:
		return nil, false
	}
}

// Payload is a decoded search response.
type Payload struct {
	Status  string
	Records []Record

	// TraceParent is the W3C traceparent of the fetch that produced the
	// payload. Empty when untraced.
	TraceParent string
}

// OK reports whether the upstream marked the response as successful.
func (p *Payload) OK() bool {
	return p != nil && p.Status == SuccessStatus
}

type rawPayload struct {
	ErrorMessage *string `json:"errorMessage"`
	Payload      *struct {
		SearchResult []json.RawMessage `json:"search_result"`
	} `json:"payload"`
}

// DecodePayload decodes a search response body that has already had its
// guard prefix removed. Numbers are kept as json.Number so they can be copied
// into the output exactly as the upstream wrote them.
func DecodePayload(data []byte) (*Payload, error) {
	var raw rawPayload
	if err := decodeJSON(data, &raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	p := &Payload{}
	if raw.ErrorMessage != nil {
		p.Status = *raw.ErrorMessage
	}
	if raw.Payload == nil {
		return p, nil
	}

	p.Records = make([]Record, 0, len(raw.Payload.SearchResult))
	for _, item := range raw.Payload.SearchResult {
		var v any
		if err := decodeJSON(item, &v); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		// Non-object entries carry no fields; keep them so they still use an ID.
		rec, _ := v.(map[string]any)
		p.Records = append(p.Records, Record(rec))
	}
	return p, nil
}

// decodeJSON decodes exactly one JSON value. Anything after it other than
// whitespace is an error.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errTrailingData
	}
	return nil
}

// FormatValue renders a raw value for a tabular cell. Null becomes an empty
// string, never a placeholder.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// IntValue interprets a raw value as an integer. Floats are truncated toward
// zero. Anything else that is not numeric reports false.
func IntValue(v any) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		return parseInt(val.String())
	case string:
		return parseInt(strings.TrimSpace(val))
	case float64:
		return truncate(val)
	case int:
		return int64(val), true
	case int64:
		return val, true
	default:
		return 0, false
	}
}

func parseInt(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return truncate(f)
}

func truncate(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
