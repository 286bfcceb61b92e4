package orm

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Canonical text layouts for the date and time kinds.
const (
	TimestampLayout = time.RFC3339Nano
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05"
)

var (
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// ToStorage converts a native value into its storage representation for t.
// nil maps to NULL. Integer and Float inputs that cannot be parsed also map
// to NULL; validation rejects them before a write is attempted.
func ToStorage(v any, t FieldType) any {
	if v == nil {
		return nil
	}

	switch t {
	case Boolean:
		b, ok := parseBool(v)
		if !ok {
			return nil
		}
		if b {
			return int64(1)
		}
		return int64(0)

	case Integer, AutoID:
		n, ok := parseInt(v)
		if !ok {
			return nil
		}
		return n

	case Float:
		f, ok := parseFloat(v)
		if !ok {
			return nil
		}
		return f

	case JSON:
		switch s := v.(type) {
		case string:
			return s
		case []byte:
			return string(s)
		case json.RawMessage:
			return string(s)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)

	case Timestamp, Date, Time:
		switch tv := v.(type) {
		case time.Time:
			return formatTime(tv, t)
		case *time.Time:
			if tv == nil {
				return nil
			}
			return formatTime(*tv, t)
		case string:
			return tv
		}
		return fmt.Sprint(v)

	case Blob:
		if s, ok := v.(string); ok {
			return []byte(s)
		}
		return v

	case String, Text, Email:
		return toText(v)
	}
	return v
}

// FromStorage converts a value read from storage back to its native form.
// A nil result means "no value".
func FromStorage(v any, t FieldType) any {
	if v == nil {
		return nil
	}

	switch t {
	case Boolean:
		b, ok := parseBool(v)
		if !ok {
			return v
		}
		return b

	case Integer, AutoID:
		if n, ok := parseInt(v); ok {
			return n
		}
		return v

	case Float:
		if f, ok := parseFloat(v); ok {
			return f
		}
		return v

	case JSON:
		var s string
		switch raw := v.(type) {
		case string:
			s = raw
		case []byte:
			s = string(raw)
		default:
			return v
		}
		trimmed := strings.TrimSpace(s)
		if trimmed == "" || !json.Valid([]byte(trimmed)) {
			return s
		}
		var out any
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return s
		}
		return out

	case Blob:
		if s, ok := v.(string); ok {
			return []byte(s)
		}
		return v
	}

	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Normalize is the type-agnostic converter applied to condition literals
// when no column type is known: booleans become 0/1, times become text and
// composite values become JSON text.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return x.Format(TimestampLayout)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func formatTime(tv time.Time, t FieldType) string {
	switch t {
	case Date:
		return tv.Format(DateLayout)
	case Time:
		return tv.Format(TimeLayout)
	default:
		return tv.Format(TimestampLayout)
	}
}

func toText(v any) any {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case json.Number:
		return s.String()
	case fmt.Stringer:
		return s.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(s)
	}
	return v
}

func parseBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
		return false, false
	case json.Number:
		return parseBool(b.String())
	case float32:
		return parseBool(float64(b))
	case float64:
		switch b {
		case 1:
			return true, true
		case 0:
			return false, true
		}
		return false, false
	}
	if n, ok := intValue(v); ok {
		switch n {
		case 1:
			return true, true
		case 0:
			return false, true
		}
	}
	return false, false
}

// parseInt accepts integers, floats (truncated) and strings with a leading
// integer, so "12px" parses as 12.
func parseInt(v any) (int64, bool) {
	if n, ok := intValue(v); ok {
		return n, true
	}
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(x), true
	case float32:
		return parseInt(float64(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		if f, err := x.Float64(); err == nil {
			return parseInt(f)
		}
		return 0, false
	case []byte:
		return parseInt(string(x))
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		m := intPrefix.FindString(s)
		if m == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// parseFloat accepts numbers and strings with a leading decimal number.
func parseFloat(v any) (float64, bool) {
	if n, ok := intValue(v); ok {
		return float64(n), true
	}
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case float32:
		return parseFloat(float64(x))
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case []byte:
		return parseFloat(string(x))
	case string:
		m := floatPrefix.FindString(strings.TrimSpace(x))
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
