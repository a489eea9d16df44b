// Package docs holds the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/subscription": {
            "get": {
                "description": "Returns the persisted subscription record without its client state",
                "produces": ["application/json"],
                "tags": ["subscription"],
                "summary": "Get the current subscription",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/admin.SubscriptionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "delete": {
                "description": "Deletes the provider subscription and marks the record Deleted. Renewal stops until the next ensure.",
                "produces": ["application/json"],
                "tags": ["subscription"],
                "summary": "Tear down the subscription",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/admin.SubscriptionResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/subscription/ensure": {
            "post": {
                "description": "Creates, renews or recreates the subscription as needed, then returns the record",
                "produces": ["application/json"],
                "tags": ["subscription"],
                "summary": "Run a lifecycle check now",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/admin.SubscriptionResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "admin.SubscriptionResponse": {
            "type": "object",
            "properties": {
                "change_type": {"type": "string"},
                "created_at": {"type": "string"},
                "expires_at": {"type": "string"},
                "id": {"type": "string"},
                "last_error": {"type": "string"},
                "notification_url": {"type": "string"},
                "remaining_seconds": {"type": "integer"},
                "resource": {"type": "string"},
                "status": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "errors.ErrorResponse": {
            "type": "object",
            "properties": {
                "details": {"type": "object", "additionalProperties": true},
                "error": {"type": "string"},
                "error_code": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Mailpulse API",
	Description:      "Mailbox change-notification webhook and subscription administration",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
