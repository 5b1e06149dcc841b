// Package docs holds the swagger definition served at /swagger. Regenerate
// with `swag init -g cmd/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support Team",
            "email": "support@example.com"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/datasets/active": {
            "get": {
                "produces": ["application/json"],
                "tags": ["datasets"],
                "summary": "Describe the active dataset",
                "responses": {
                    "200": {"description": "Active dataset schema"},
                    "404": {"description": "No dataset uploaded yet"},
                    "500": {"description": "Internal server error"}
                }
            }
        },
        "/api/v1/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["query"],
                "summary": "List recent chat history",
                "responses": {
                    "200": {"description": "Recent questions and answers"},
                    "500": {"description": "Internal server error"}
                }
            }
        },
        "/api/v1/query": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["query"],
                "summary": "Ask a natural-language question about the active dataset",
                "responses": {
                    "200": {"description": "Query processed"},
                    "400": {"description": "Invalid request body"},
                    "500": {"description": "Internal server error"}
                }
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "SheetChat API",
	Description:      "Ask natural-language questions about uploaded tabular datasets.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
