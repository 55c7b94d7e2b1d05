package openapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Operation represents a single HTTP operation to surface in OpenAPI.
type Operation struct {
	ID          string         `json:"operationId,omitempty"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Scopes      []string       `json:"x-required-scopes,omitempty"`
	Parameters  []Parameter    `json:"parameters,omitempty"`
	RequestBody any            `json:"requestBody,omitempty"`
	Responses   map[string]any `json:"responses"`
}

type Parameter struct {
	Name     string `json:"name"`
	In       string `json:"in"` // path | query
	Required bool   `json:"required,omitempty"`
	Type     string `json:"-"`
}

// Registry holds the operations served by one service.
type Registry struct {
	Ops []Operation
}

func NewRegistry() *Registry { return &Registry{Ops: []Operation{}} }

func (r *Registry) Register(op Operation) {
	if op.Method != "" {
		op.Method = strings.ToLower(op.Method)
	}
	r.Ops = append(r.Ops, op)
}

// Build produces a minimal OpenAPI 3.1 document representing the registered
// operations. Components/schemas are kept inline for brevity. bearer adds a
// JWT security scheme applied to every operation that declares scopes.
func (r *Registry) Build(serviceName, version string, bearer bool) map[string]any {
	paths := map[string]any{}
	for _, op := range r.Ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		m := map[string]any{
			"summary":     op.Summary,
			"description": op.Description,
			"tags":        op.Tags,
			"responses":   op.Responses,
		}
		if op.ID != "" {
			m["operationId"] = op.ID
		}
		if len(op.Parameters) > 0 {
			params := make([]map[string]any, 0, len(op.Parameters))
			for _, p := range op.Parameters {
				typ := p.Type
				if typ == "" {
					typ = "string"
				}
				params = append(params, map[string]any{
					"name": p.Name, "in": p.In, "required": p.Required || p.In == "path",
					"schema": map[string]any{"type": typ},
				})
			}
			m["parameters"] = params
		}
		if len(op.Scopes) > 0 {
			m["x-required-scopes"] = op.Scopes
			if bearer {
				m["security"] = []map[string]any{{"bearer": []string{}}}
			}
		}
		if op.RequestBody != nil {
			m["requestBody"] = op.RequestBody
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	doc := map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
	}
	if bearer {
		doc["components"] = map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		}
	}
	return doc
}

// ServeHandler returns an HTTP handler that serves the built OpenAPI JSON.
func (r *Registry) ServeHandler(serviceName, version string, bearer bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version, bearer))
	}
}
