package openapi

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/foliodb/folio/internal/model"
)

// Resource is one table exposed under /api/{name}. Writable resources also
// get create, update and delete operations, which require a bearer token.
type Resource struct {
	Schema   model.TableSchema
	Writable bool
}

// Info describes the generated document.
type Info struct {
	Title   string
	Version string
	BaseURL string
}

// Generate builds an OpenAPI 3.0 document for the given resources plus the
// authentication and system endpoints.
func Generate(resources []Resource, info Info) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       info.Title,
			Description: "REST API generated from the folio model registry.",
			Version:     info.Version,
		},
	}
	if info.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: info.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{Value: errorSchema()}

	doc.Paths = openapi3.NewPaths()
	for _, res := range resources {
		addResourcePaths(doc, res)
	}
	addAuthPaths(doc)
	return doc
}

// errorSchema describes the envelope every failed request returns.
func errorSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"error": &openapi3.SchemaRef{
				Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
						"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
						"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
					},
				},
			},
		},
	}
}

// componentRef refers to a registered component schema. The value is
// carried along so the document validates without a loader pass.
func componentRef(doc *openapi3.T, name string) *openapi3.SchemaRef {
	ref := &openapi3.SchemaRef{Ref: "#/components/schemas/" + name}
	if c, ok := doc.Components.Schemas[name]; ok {
		ref.Value = c.Value
	}
	return ref
}

// addResourcePaths registers the component schemas and CRUD paths of one table.
func addResourcePaths(doc *openapi3.T, res Resource) {
	table := res.Schema
	name := schemaName(table.Name)
	doc.Components.Schemas[name] = columnsToSchema(table.Columns)

	listResponse := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: componentRef(doc, name),
					},
				},
				"meta": metaSchema(),
			},
		},
	}

	collection := &openapi3.PathItem{
		Get: listOperation(table.Name, listQueryParameters(table), listResponse),
	}
	item := &openapi3.PathItem{
		Get: getOperation(table.Name, componentRef(doc, name)),
	}

	if res.Writable {
		doc.Components.Schemas[name+"Create"] = columnsToCreateSchema(table.Columns)
		doc.Components.Schemas[name+"Update"] = columnsToUpdateSchema(table.Columns)
		collection.Post = createOperation(table.Name, componentRef(doc, name+"Create"), componentRef(doc, name))
		item.Patch = updateOperation(table.Name, componentRef(doc, name+"Update"))
		item.Delete = deleteOperation(table.Name, table.Paranoid)
	}

	doc.Paths.Set("/api/"+table.Name, collection)
	doc.Paths.Set("/api/"+table.Name+"/{id}", item)

	if res.Writable && table.Paranoid {
		doc.Paths.Set("/api/"+table.Name+"/{id}/restore", &openapi3.PathItem{
			Post: restoreOperation(table.Name),
		})
	}
}

// addAuthPaths documents the login endpoint.
func addAuthPaths(doc *openapi3.T) {
	body := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"email", "password"},
			Properties: openapi3.Schemas{
				"email":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "email"}},
				"password": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "password"}},
			},
		},
	}
	token := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"token":      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"expires_at": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"user":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			},
		},
	}
	doc.Paths.Set("/api/auth/login", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Sign in",
			Description: "Exchange an email and password for a bearer token.",
			OperationID: "login",
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content:  openapi3.NewContentWithJSONSchemaRef(body),
				},
			},
			Responses: newResponses("200", "Signed in", token),
		},
	})
}

// ─── Schema Builders ────────────────────────────────────────────────────────

// columnsToSchema converts table columns to an OpenAPI object schema with all columns as properties.
func columnsToSchema(columns []model.Column) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	var required []string
	for _, col := range columns {
		s := columnSchema(col)
		if col.ReadOnly {
			s.ReadOnly = true
		}
		props[col.Name] = &openapi3.SchemaRef{Value: s}
		if col.Required {
			required = append(required, col.Name)
		}
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
			Required:   required,
		},
	}
}

// columnsToCreateSchema generates a schema for record creation (POST).
// Read-only columns are excluded. Required columns without defaults are required.
func columnsToCreateSchema(columns []model.Column) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	var required []string

	for _, col := range columns {
		if col.ReadOnly {
			continue
		}
		props[col.Name] = &openapi3.SchemaRef{Value: columnSchema(col)}
		if col.Required && col.Default == nil {
			required = append(required, col.Name)
		}
	}

	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
			Required:   required,
		},
	}
}

// columnsToUpdateSchema generates a schema for record updates (PATCH).
// All fields are optional since you only send what you want to change.
func columnsToUpdateSchema(columns []model.Column) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	for _, col := range columns {
		if col.ReadOnly {
			continue
		}
		props[col.Name] = &openapi3.SchemaRef{Value: columnSchema(col)}
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
		},
	}
}

// columnSchema carries the column's type and declared limits.
func columnSchema(col model.Column) *openapi3.Schema {
	m := MapFieldType(col.Type)
	s := &openapi3.Schema{Type: &openapi3.Types{m.Type}, Format: m.Format}
	if !col.Required {
		s.Nullable = true
	}
	if col.MinLength != nil {
		s.MinLength = uint64(*col.MinLength)
	}
	if col.MaxLength != nil {
		ml := uint64(*col.MaxLength)
		s.MaxLength = &ml
	}
	s.Min = col.Min
	s.Max = col.Max
	if col.Default != nil {
		s.Default = col.Default
	}
	if col.References != "" {
		s.Description = "References " + col.References + "."
	}
	return s
}

// ─── Operation Builders ─────────────────────────────────────────────────────

func listOperation(tableName string, params openapi3.Parameters, responseSchema *openapi3.SchemaRef) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tableName},
		Summary:     fmt.Sprintf("List %s", tableName),
		Description: fmt.Sprintf("Retrieve %s with optional filtering, sorting, eager loading and pagination.", tableName),
		OperationID: "list_" + tableName,
		Parameters:  params,
		Responses:   newResponses("200", "Matching records", responseSchema),
	}
}

func getOperation(tableName string, record *openapi3.SchemaRef) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tableName},
		Summary:     fmt.Sprintf("Get one of %s by id", tableName),
		OperationID: "get_" + tableName,
		Parameters:  openapi3.Parameters{idParameter(), includeParameter()},
		Responses:   newResponses("200", "The record", record),
	}
}

func createOperation(tableName string, body, record *openapi3.SchemaRef) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tableName},
		Summary:     fmt.Sprintf("Create a record in %s", tableName),
		OperationID: "create_" + tableName,
		Security:    bearer(),
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(body),
			},
		},
		Responses: newResponses("201", "Created", record),
	}
}

func updateOperation(tableName string, body *openapi3.SchemaRef) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tableName},
		Summary:     fmt.Sprintf("Update a record in %s", tableName),
		OperationID: "update_" + tableName,
		Security:    bearer(),
		Parameters:  openapi3.Parameters{idParameter()},
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(body),
			},
		},
		Responses: newResponses("200", "Updated", affectedSchema()),
	}
}

func deleteOperation(tableName string, paranoid bool) *openapi3.Operation {
	params := openapi3.Parameters{idParameter()}
	desc := "Delete the record."
	if paranoid {
		desc = "Soft-delete the record. Pass force=true to remove it permanently."
		params = append(params, &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("force").
				WithDescription("Remove the row instead of marking it deleted.").
				WithSchema(openapi3.NewBoolSchema()),
		})
	}
	return &openapi3.Operation{
		Tags:        []string{tableName},
		Summary:     fmt.Sprintf("Delete a record from %s", tableName),
		Description: desc,
		OperationID: "delete_" + tableName,
		Security:    bearer(),
		Parameters:  params,
		Responses:   newResponses("200", "Deleted", affectedSchema()),
	}
}

func restoreOperation(tableName string) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tableName},
		Summary:     fmt.Sprintf("Restore a soft-deleted record in %s", tableName),
		OperationID: "restore_" + tableName,
		Security:    bearer(),
		Parameters:  openapi3.Parameters{idParameter()},
		Responses:   newResponses("200", "Restored", affectedSchema()),
	}
}

// ─── Query Parameter Builders ───────────────────────────────────────────────

// listQueryParameters returns the standard query parameters for list endpoints.
func listQueryParameters(table model.TableSchema) openapi3.Parameters {
	params := openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("where").
				WithDescription(`JSON condition, e.g. {"year":{"$gte":2020},"$or":[{"homepage":true}]}.`).
				WithSchema(openapi3.NewStringSchema()),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("order").
				WithDescription("Sort order (e.g. \"year DESC, name\").").
				WithSchema(openapi3.NewStringSchema()),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("limit").
				WithDescription("Maximum number of records to return.").
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("offset").
				WithDescription("Number of records to skip before returning results.").
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("fields").
				WithDescription("Comma-separated list of columns to return.").
				WithSchema(openapi3.NewStringSchema()),
		},
	}
	if len(table.Relations) > 0 {
		params = append(params, includeParameter())
	}
	if table.Paranoid {
		params = append(params, &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("with_deleted").
				WithDescription("Include soft-deleted records. Requires a bearer token.").
				WithSchema(openapi3.NewBoolSchema()),
		})
	}
	return params
}

func idParameter() *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter("id").
			WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}),
	}
}

func includeParameter() *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: openapi3.NewQueryParameter("include").
			WithDescription("Comma-separated relation aliases to load with each record.").
			WithSchema(openapi3.NewStringSchema()),
	}
}

func bearer() *openapi3.SecurityRequirements {
	return &openapi3.SecurityRequirements{{"bearerAuth": {}}}
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// newResponses builds a Responses map with a success response and standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithContent(openapi3.NewContentWithJSONSchemaRef(schema)),
	})

	errorRef := &openapi3.SchemaRef{Ref: "#/components/schemas/ErrorResponse", Value: errorSchema()}
	for code, desc := range map[string]string{
		"400": "Bad request",
		"401": "Unauthorized",
		"404": "Not found",
		"409": "Conflict",
		"500": "Internal server error",
	} {
		responses.Set(code, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(desc).
				WithContent(openapi3.NewContentWithJSONSchemaRef(errorRef)),
		})
	}
	return responses
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	integer := func(desc string) *openapi3.SchemaRef {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Description: desc}}
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"count":  integer("Number of records in this page."),
				"total":  integer("Number of records matching the condition."),
				"limit":  integer("Maximum records returned per page."),
				"offset": integer("Number of records skipped."),
			},
		},
	}
}

func affectedSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"affected": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
			},
		},
	}
}

// ─── Naming Helpers ─────────────────────────────────────────────────────────

// schemaName turns a table name such as "projects_tags" into "ProjectsTags".
func schemaName(table string) string {
	var b strings.Builder
	for _, part := range strings.Split(table, "_") {
		b.WriteString(capitalize(part))
	}
	return b.String()
}

// capitalize returns a string with its first character uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
