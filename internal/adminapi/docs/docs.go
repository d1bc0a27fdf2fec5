// Package docs registers the admin API's OpenAPI document with swaggo/swag
// so gin-swagger can serve it at /swagger/*any. Hand-authored rather than
// `swag init`-generated, since the swag CLI is build tooling this module
// never invokes; the shape mirrors what that tool would otherwise produce.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "dnsflatd admin API",
        "description": "Read-only observability surface for the CNAME-flattening DNS proxy: liveness, live upstream stats, and durable stats history.",
        "version": "1.0"
    },
    "basePath": "/api/v1",
    "paths": {
        "/health": {
            "get": {
                "tags": ["system"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "ok"}
                }
            }
        },
        "/stats": {
            "get": {
                "tags": ["system"],
                "summary": "Live per-upstream health and metrics",
                "security": [{"ApiKeyAuth": []}],
                "responses": {
                    "200": {"description": "ok"}
                }
            }
        },
        "/stats/history": {
            "get": {
                "tags": ["system"],
                "summary": "Durable snapshot history",
                "security": [{"ApiKeyAuth": []}],
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer", "required": false}
                ],
                "responses": {
                    "200": {"description": "ok"}
                }
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "in": "header",
            "name": "X-API-Key"
        }
    }
}`

// SwaggerInfo holds the parsed document metadata used by gin-swagger.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "dnsflatd admin API",
	Description:      "Read-only observability surface for the CNAME-flattening DNS proxy.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
