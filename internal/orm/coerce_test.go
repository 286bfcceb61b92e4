package orm

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestToStorage(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		typ  FieldType
		want any
	}{
		{"nil", nil, String, nil},
		{"bool true", true, Boolean, int64(1)},
		{"bool string", "FALSE", Boolean, int64(0)},
		{"bool garbage", "maybe", Boolean, nil},
		{"int", 7, Integer, int64(7)},
		{"int prefix", "12px", Integer, int64(12)},
		{"int unparsable", "abc", Integer, nil},
		{"int from float", 3.9, Integer, int64(3)},
		{"float string", "1.5", Float, 1.5},
		{"json object", map[string]any{"a": 1}, JSON, `{"a":1}`},
		{"json text passthrough", `{"a":1}`, JSON, `{"a":1}`},
		{"json opaque text", "not json", JSON, "not json"},
		{"timestamp", at, Timestamp, "2024-03-05T10:11:12Z"},
		{"date", at, Date, "2024-03-05"},
		{"time", at, Time, "10:11:12"},
		{"date text", "2024-03-05", Date, "2024-03-05"},
		{"blob from string", "raw", Blob, []byte("raw")},
		{"text from number", 42, Text, "42"},
		{"email", "a@b.co", Email, "a@b.co"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToStorage(tt.in, tt.typ); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToStorage(%#v, %s) = %#v, want %#v", tt.in, tt.typ, got, tt.want)
			}
		})
	}
}

func TestFromStorage(t *testing.T) {
	tests := []struct {
		name string
		in   any
		typ  FieldType
		want any
	}{
		{"nil", nil, Integer, nil},
		{"bool one", int64(1), Boolean, true},
		{"bool zero", int64(0), Boolean, false},
		{"integer", int64(5), Integer, int64(5)},
		{"float", float64(2.5), Float, 2.5},
		{"json object", `{"a":1}`, JSON, map[string]any{"a": float64(1)}},
		{"json array bytes", []byte(`[1,2]`), JSON, []any{float64(1), float64(2)}},
		{"json opaque", "plain", JSON, "plain"},
		{"text bytes", []byte("x"), Text, "x"},
		{"timestamp text", "2024-03-05T10:11:12Z", Timestamp, "2024-03-05T10:11:12Z"},
		{"blob", []byte{1, 2}, Blob, []byte{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromStorage(tt.in, tt.typ); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FromStorage(%#v, %s) = %#v, want %#v", tt.in, tt.typ, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"true", true, int64(1)},
		{"false", false, int64(0)},
		{"time", at, "2024-03-05T10:11:12Z"},
		{"json number int", json.Number("3"), int64(3)},
		{"json number float", json.Number("3.5"), 3.5},
		{"string", "s", "s"},
		{"int", 4, 4},
		{"map", map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%#v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}
