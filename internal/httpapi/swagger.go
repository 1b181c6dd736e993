//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// docTemplate is the skeleton `swag init` fills in from the handler
// annotations. Regenerate with `make swagger-gen`.
const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/embeddings": {"post": {"tags": ["embeddings"], "summary": "Create embeddings", "consumes": ["application/json"], "produces": ["application/json"]}},
        "/v1/models": {"get": {"tags": ["models"], "summary": "List models", "produces": ["application/json"]}},
        "/v1/models/{model}": {"get": {"tags": ["models"], "summary": "Describe a model", "produces": ["application/json"]}},
        "/status": {"get": {"tags": ["status"], "summary": "Server status", "produces": ["application/json"]}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "glowrs API",
	Description:      "OpenAI compatible sentence embeddings server.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
