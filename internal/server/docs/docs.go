// Package docs registers the OpenAPI document of the HTTP API with swag.
package docs

import "github.com/swaggo/swag"

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
        "/rents/{id}/amount": {
            "get": {
                "tags": ["rents"],
                "summary": "Rent amount for a period",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "start_date", "in": "query", "required": true},
                    {"type": "string", "name": "end_date", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/DataResponse"}}}
            }
        },
        "/rents/{id}/payable_rent": {
            "post": {
                "tags": ["rents"],
                "summary": "Recalculate payable rent",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/DataResponse"}}}
            }
        },
        "/leases/{id}/rent_amount": {
            "get": {
                "tags": ["leases"],
                "summary": "Lease rent amount for a period",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "start_date", "in": "query", "required": true},
                    {"type": "string", "name": "end_date", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/DataResponse"}}}
            }
        },
        "/leases/{id}/tenant_shares": {
            "get": {
                "tags": ["leases"],
                "summary": "Tenant shares per billing recipient",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "start_date", "in": "query", "required": true},
                    {"type": "string", "name": "end_date", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/DataResponse"}}}
            }
        },
        "/leases/{id}/invoices/calculate": {
            "post": {
                "tags": ["invoices"],
                "summary": "Calculate invoices",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PeriodRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/DataResponse"}}}
            }
        },
        "/leases/{id}/invoices/generate": {
            "post": {
                "tags": ["invoices"],
                "summary": "Generate invoices",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PeriodRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/DataResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/leases/{id}/attachments": {
            "post": {
                "tags": ["files"],
                "summary": "Upload lease attachment",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/DataResponse"}}}
            }
        },
        "/invoices": {
            "post": {
                "tags": ["invoices"],
                "summary": "Create invoice",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/DataResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/invoices/{id}": {
            "get": {
                "tags": ["invoices"],
                "summary": "Get invoice",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/DataResponse"}}}
            }
        },
        "/invoices/{id}/explanation": {
            "get": {
                "tags": ["invoices"],
                "summary": "Explain invoice",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/DataResponse"}}}
            }
        },
        "/invoices/{id}/payments": {
            "post": {
                "tags": ["invoices"],
                "summary": "Register payment",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/DataResponse"}}}
            }
        },
        "/files/{kind}/{id}": {
            "get": {
                "tags": ["files"],
                "summary": "Download private file",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"type": "string", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "field", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "410": {"description": "Gone", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/files/{kind}/{id}/scan": {
            "post": {
                "tags": ["files"],
                "summary": "Request file scan",
                "parameters": [
                    {"type": "string", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/DataResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/entities/{kind}/{id}": {
            "delete": {
                "tags": ["entities"],
                "summary": "Soft delete entity",
                "parameters": [
                    {"type": "string", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/jobs/{name}": {
            "post": {
                "tags": ["jobs"],
                "summary": "Enqueue job",
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/DataResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/audit/export": {
            "get": {
                "tags": ["audit"],
                "summary": "Export audit log",
                "produces": ["text/csv", "application/json"],
                "parameters": [
                    {"type": "string", "name": "start_date", "in": "query", "required": true},
                    {"type": "string", "name": "end_date", "in": "query", "required": true},
                    {"type": "string", "name": "format", "in": "query"},
                    {"type": "string", "name": "actions", "in": "query"},
                    {"type": "string", "name": "target_types", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "DataResponse": {
            "type": "object",
            "properties": {"data": {}}
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"}
                    }
                }
            }
        },
        "PeriodRequest": {
            "type": "object",
            "required": ["start_date", "end_date"],
            "properties": {
                "start_date": {"type": "string"},
                "end_date": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "MVJ rent API",
	Description:      "Rent calculation, invoicing and private file access for land leases.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
