package openapi

// TypeMapping maps a column type to an OpenAPI type/format pair.
type TypeMapping struct {
	Type   string // OpenAPI type: string, integer, number, boolean, object
	Format string // OpenAPI format: int64, double, date, date-time, email, byte, etc.
}

// fieldTypeToOpenAPI is keyed by the names orm.FieldType.String returns.
var fieldTypeToOpenAPI = map[string]TypeMapping{
	"string":    {"string", ""},
	"text":      {"string", ""},
	"email":     {"string", "email"},
	"integer":   {"integer", "int64"},
	"autoid":    {"integer", "int64"},
	"float":     {"number", "double"},
	"boolean":   {"boolean", ""},
	"timestamp": {"string", "date-time"},
	"date":      {"string", "date"},
	"time":      {"string", "time"},
	"json":      {"object", ""},
	"blob":      {"string", "byte"},
}

// MapFieldType converts a column type name to an OpenAPI type mapping.
// Falls back to {"string", ""} for unknown types.
func MapFieldType(name string) TypeMapping {
	if m, ok := fieldTypeToOpenAPI[name]; ok {
		return m
	}
	return TypeMapping{"string", ""}
}
