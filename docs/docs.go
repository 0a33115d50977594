// Package docs registers the OpenAPI description served at /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/diagnoses": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns up to three of the caller's diagnoses, newest first.",
                "produces": ["application/json"],
                "tags": ["diagnoses"],
                "summary": "List recent diagnoses",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/diagnosis.Summary"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Analyzes 20 answers, stores the diagnosis and keeps the three most recent per owner.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["diagnoses"],
                "summary": "Submit a questionnaire",
                "parameters": [
                    {"description": "Answers to all 20 questions", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.SubmitRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/diagnosis.Summary"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/v1/diagnoses/{id}/report": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Rebuilds the report with key drivers, strengths and domain breakdown.",
                "produces": ["application/json"],
                "tags": ["diagnoses"],
                "summary": "Get a diagnosis report",
                "parameters": [
                    {"type": "integer", "description": "Diagnosis ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/diagnosis.Report"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/v1/questions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["questions"],
                "summary": "Question catalog",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.QuestionsResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "diagnosis.Summary": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "created_at": {"type": "string"},
                "tier": {"type": "string"},
                "digital_capability_score": {"type": "number", "x-nullable": true},
                "leadership_capability_score": {"type": "number", "x-nullable": true}
            }
        },
        "diagnosis.ReportItem": {
            "type": "object",
            "properties": {
                "question_id": {"type": "integer"},
                "title": {"type": "string"},
                "weight_pct": {"type": "number"},
                "explanation": {"type": "string"},
                "action": {"type": "string"}
            }
        },
        "diagnosis.Report": {
            "type": "object",
            "properties": {
                "diagnosis_id": {"type": "integer"},
                "created_at": {"type": "string"},
                "tier": {"type": "string"},
                "advancement_potential": {"type": "number"},
                "weaknesses": {"type": "array", "items": {"$ref": "#/definitions/diagnosis.ReportItem"}},
                "strengths": {"type": "array", "items": {"$ref": "#/definitions/diagnosis.ReportItem"}},
                "domain_breakdown": {"type": "object", "additionalProperties": {"type": "number", "x-nullable": true}}
            }
        },
        "errors.Response": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "category": {"type": "string"},
                "message": {"type": "string"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}},
                "request_id": {"type": "string"}
            }
        },
        "types.AnswerInput": {
            "type": "object",
            "properties": {
                "question_id": {"type": "integer"},
                "raw_value": {"description": "string or number", "type": "string"}
            }
        },
        "types.SubmitRequest": {
            "type": "object",
            "required": ["answers"],
            "properties": {
                "answers": {"type": "array", "items": {"$ref": "#/definitions/types.AnswerInput"}}
            }
        },
        "types.QuestionInfo": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "text": {"type": "string"},
                "section": {"type": "string"},
                "domain": {"type": "string"},
                "subdomain": {"type": "string"},
                "type": {"type": "string"}
            }
        },
        "types.QuestionsResponse": {
            "type": "object",
            "properties": {
                "questions": {"type": "array", "items": {"$ref": "#/definitions/types.QuestionInfo"}}
            }
        },
        "types.ArtifactsHealth": {
            "type": "object",
            "properties": {
                "loaded": {"type": "boolean"},
                "version": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "uptime": {"type": "string"},
                "database": {"type": "string"},
                "redis": {"type": "string"},
                "artifacts": {"$ref": "#/definitions/types.ArtifactsHealth"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Digital Maturity Diagnosis API",
	Description:      "Scores a 20-question survey into a digital maturity tier with explained key drivers.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
