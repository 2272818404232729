package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Madrasah Registration API",
        "description": "Registration approval and payment provisioning",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Registrations", "description": "Application review, provisioning and payment links"}
    ],
    "paths": {
        "/registrations/applications/{id}/approve": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Approve a pending application",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ApproveApplicationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Approved; warnings list payment or email follow-ups", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already reviewed or being processed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Store write failed, safe to retry", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/applications/approve-group": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Approve sibling applications together",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApproveGroupRequest"}}
                ],
                "responses": {
                    "200": {"description": "Approved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Rollback incomplete, contact support", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/applications/{id}/reject": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Reject a pending application",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReasonRequest"}}
                ],
                "responses": {
                    "200": {"description": "Rejected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/students/{id}/manual-approve": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Activate a student without payment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ManualApproveRequest"}}
                ],
                "responses": {
                    "200": {"description": "Activated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/students/manual-approve": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Activate several students without payment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ManualApproveGroupRequest"}}
                ],
                "responses": {
                    "200": {"description": "Per-student outcome", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/students/{id}/cancel": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Cancel an unpaid registration",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReasonRequest"}}
                ],
                "responses": {
                    "204": {"description": "Cancelled"}
                }
            }
        },
        "/registrations/students/{id}/resend-payment-link": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Issue a new payment link",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Payment session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Payment provider failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ApproveApplicationRequest": {
            "type": "object",
            "properties": {
                "assignedGroup": {"type": "string"},
                "siblingCount": {"type": "integer", "minimum": 1}
            }
        },
        "ApproveGroupRequest": {
            "type": "object",
            "required": ["applicationIds"],
            "properties": {
                "applicationIds": {"type": "array", "items": {"type": "string"}},
                "groupAssignments": {"type": "object", "additionalProperties": {"type": "string"}},
                "siblingCount": {"type": "integer", "minimum": 1}
            }
        },
        "ReasonRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "ManualApproveRequest": {
            "type": "object",
            "required": ["justification"],
            "properties": {
                "justification": {"type": "string"}
            }
        },
        "ManualApproveGroupRequest": {
            "type": "object",
            "required": ["studentIds", "justification"],
            "properties": {
                "studentIds": {"type": "array", "items": {"type": "string"}},
                "justification": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "retryable": {"type": "boolean"}
            }
        },
        "Warning": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "warnings": {"type": "array", "items": {"$ref": "#/definitions/Warning"}},
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
