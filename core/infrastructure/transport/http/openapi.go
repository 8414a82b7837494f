package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pb33f/libopenapi"

	"github.com/hyperterse/queryengine/core/parser"
	"github.com/hyperterse/queryengine/core/version"
)

func jsonContent(schema map[string]any) map[string]any {
	return map[string]any{
		"application/json": map[string]any{"schema": schema},
	}
}

func response(description string, schema map[string]any) map[string]any {
	out := map[string]any{"description": description}
	if schema != nil {
		out["content"] = jsonContent(schema)
	}
	return out
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

// apiErrorResponses are the failures every engine route can return
func apiErrorResponses() map[string]any {
	return map[string]any{
		"400": response("Invalid request body or schema", ref("ApiError")),
		"404": response("Engine not found", ref("ApiError")),
		"409": response("Engine is already connected or not connected", ref("ApiError")),
		"500": response("Engine failure", ref("ApiError")),
	}
}

func operation(id, summary string, responses map[string]any) map[string]any {
	for code, r := range apiErrorResponses() {
		if _, ok := responses[code]; !ok {
			responses[code] = r
		}
	}
	return map[string]any{
		"operationId": id,
		"summary":     summary,
		"responses":   responses,
	}
}

// GenerateOpenAPIDocument describes the engine's HTTP surface. models are
// offered as the values of modelName in query requests.
func GenerateOpenAPIDocument(models []string, baseURL string) ([]byte, error) {
	modelName := map[string]any{"type": "string"}
	if len(models) > 0 {
		modelName["enum"] = models
	}

	txID := map[string]any{
		"name":     "id",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string"},
	}

	query := operation("query", "Run a JSON protocol request", map[string]any{
		"200": response("Query result; known errors are embedded under errors", map[string]any{"type": "object"}),
	})
	query["parameters"] = []any{map[string]any{
		"name":     TxIDHeader,
		"in":       "header",
		"required": false,
		"schema":   map[string]any{"type": "string"},
	}}
	query["requestBody"] = map[string]any{
		"required": true,
		"content":  jsonContent(ref("QueryRequest")),
	}

	start := operation("startTransaction", "Start an interactive transaction", map[string]any{
		"200": response("Transaction started", ref("TxStarted")),
		"400": response("Known transaction error", ref("KnownError")),
	})
	start["requestBody"] = map[string]any{
		"required": false,
		"content":  jsonContent(ref("TxInput")),
	}

	finish := func(id, summary string) map[string]any {
		op := operation(id, summary, map[string]any{
			"200": response("Transaction closed", map[string]any{"type": "object"}),
			"400": response("Known transaction error", ref("KnownError")),
		})
		op["parameters"] = []any{txID}
		return op
	}

	connection := response("Connection state", map[string]any{
		"type":       "object",
		"properties": map[string]any{"connected": map[string]any{"type": "boolean"}},
	})

	doc := map[string]any{
		"openapi": "3.0.0",
		"info": map[string]any{
			"title":       "Query Engine API",
			"version":     version.Get().Version,
			"description": "JSON protocol queries and interactive transactions against one engine.",
		},
		"servers": []any{map[string]any{"url": baseURL}},
		"paths": map[string]any{
			"/":                          map[string]any{"post": query},
			"/transaction/start":         map[string]any{"post": start},
			"/transaction/{id}/commit":   map[string]any{"post": finish("commitTransaction", "Commit a transaction")},
			"/transaction/{id}/rollback": map[string]any{"post": finish("rollbackTransaction", "Roll back a transaction")},
			"/connect":                   map[string]any{"post": operation("connect", "Connect the engine", map[string]any{"200": connection})},
			"/disconnect":                map[string]any{"post": operation("disconnect", "Disconnect the engine", map[string]any{"200": connection})},
			"/status":                    map[string]any{"get": operation("status", "Engine status", map[string]any{"200": response("Engine status", map[string]any{"type": "object"})})},
			"/dmmf":                      map[string]any{"get": operation("dmmf", "DMMF document of the served schema", map[string]any{"200": response("DMMF document", map[string]any{"type": "object"})})},
			"/version":                   map[string]any{"get": operation("version", "Engine version", map[string]any{"200": response("Version", map[string]any{"type": "object"})})},
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"QueryRequest": map[string]any{
					"type":     "object",
					"required": []string{"action", "query"},
					"properties": map[string]any{
						"action":    map[string]any{"type": "string", "example": "findMany"},
						"modelName": modelName,
						"query":     map[string]any{"type": "object"},
					},
				},
				"TxInput": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"max_wait":        map[string]any{"type": "integer", "example": 2000},
						"timeout":         map[string]any{"type": "integer", "example": 5000},
						"isolation_level": map[string]any{"type": "string", "example": "Serializable"},
					},
				},
				"TxStarted": map[string]any{
					"type":       "object",
					"properties": map[string]any{"id": map[string]any{"type": "string"}},
				},
				"KnownError": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"is_panic":   map[string]any{"type": "boolean"},
						"message":    map[string]any{"type": "string"},
						"meta":       map[string]any{"type": "object"},
						"error_code": map[string]any{"type": "string", "example": "P2028"},
					},
				},
				"ApiError": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"kind":    map[string]any{"type": "string", "example": "NotConnected"},
						"message": map[string]any{"type": "string"},
						"source":  map[string]any{"type": "string"},
					},
				},
			},
		},
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal openapi document: %w", err)
	}

	document, err := libopenapi.NewDocument(out)
	if err != nil {
		return nil, fmt.Errorf("failed to create openapi document: %w", err)
	}
	if _, err := document.BuildV3Model(); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %v", err)
	}
	return out, nil
}

// Docs handles GET /docs
func (h *EngineHandler) Docs(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.Registry().Lookup(h.current())
	if err != nil {
		h.WriteError(w, err)
		return
	}

	var models []string
	if schema, _ := parser.ParseSchema(e.Datamodel()); schema != nil {
		for _, m := range schema.Datamodel.Models {
			models = append(models, m.Name)
		}
	}

	out, err := GenerateOpenAPIDocument(models, "http://"+r.Host)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteRaw(w, http.StatusOK, string(out))
}
