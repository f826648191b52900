package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LCA Review API",
        "description": "Reference integrity and review-state resolution for LCA datasets",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Validation", "description": "Reference checking and unit chain resolution"},
        {"name": "Review", "description": "Multi-reviewer approval workflow"},
        {"name": "Datasets", "description": "Dataset version browsing"},
        {"name": "Reports", "description": "Review report export"},
        {"name": "Authentication", "description": "Token issuance and identity"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Get current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/references/check": {
            "post": {
                "tags": ["Validation"],
                "summary": "Check document references",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckReferencesRequest"}}
                ],
                "responses": {
                    "200": {"description": "Per-reference diagnostics", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/flows/{id}/reference-unit": {
            "get": {
                "tags": ["Validation"],
                "summary": "Resolve the reference unit of a flow",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "version", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Resolved unit leaf", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Chain target missing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Incomplete or cyclic chain", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/datasets/{id}/versions": {
            "get": {
                "tags": ["Datasets"],
                "summary": "List stored versions of a dataset",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown dataset", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/datasets/{id}/revisions": {
            "post": {
                "tags": ["Datasets"],
                "summary": "Create a draft revision",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Draft created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Newest version not terminal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/datasets/{id}/review-state": {
            "get": {
                "tags": ["Review"],
                "summary": "Get the review state of a dataset",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/datasets/{id}/versions/{version}/submit": {
            "post": {
                "tags": ["Review"],
                "summary": "Submit a dataset version for review",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "version", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitForReviewRequest"}}
                ],
                "responses": {
                    "201": {"description": "Review task created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Another version already in review", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/review-tasks": {
            "get": {
                "tags": ["Review"],
                "summary": "List review tasks",
                "parameters": [
                    {"name": "dataset_id", "in": "query", "type": "string"},
                    {"name": "reviewer_id", "in": "query", "type": "string"},
                    {"name": "state_code", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/review-tasks/{id}": {
            "get": {
                "tags": ["Review"],
                "summary": "Get one review task",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown task", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/review-tasks/{id}/decisions": {
            "post": {
                "tags": ["Review"],
                "summary": "Record a reviewer decision",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Decision recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Caller not assigned", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Decision already recorded or task terminal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/review-tasks/{id}/report": {
            "post": {
                "tags": ["Reports"],
                "summary": "Export the decision record of a review task",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Signed download link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/reports/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a previously exported report",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Report file"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CheckReferencesRequest": {
            "type": "object",
            "required": ["references"],
            "properties": {
                "references": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/ReferenceInput"}
                }
            }
        },
        "ReferenceInput": {
            "type": "object",
            "required": ["type", "id", "version"],
            "properties": {
                "type": {"type": "string", "enum": ["PROCESS", "FLOW", "FLOW_PROPERTY", "UNIT_GROUP", "UNIT", "SOURCE", "CONTACT"]},
                "id": {"type": "string", "format": "uuid"},
                "version": {"type": "string", "example": "01.00.000"},
                "uri": {"type": "string"}
            }
        },
        "SubmitForReviewRequest": {
            "type": "object",
            "required": ["type", "reviewer_ids"],
            "properties": {
                "type": {"type": "string"},
                "reviewer_ids": {
                    "type": "array",
                    "items": {"type": "string", "format": "uuid"}
                }
            }
        },
        "RecordDecisionRequest": {
            "type": "object",
            "required": ["decision"],
            "properties": {
                "decision": {"type": "string", "enum": ["APPROVED", "REJECTED"]},
                "reason": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"type": "object"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
