// Package docs registers the OpenAPI document served by the Swagger UI.
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
        "/v1/turns": {
            "post": {
                "description": "Starts a new turn. The reply appears in the conversation once classification and dispatch finish.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["turns"],
                "summary": "Submit a user utterance",
                "parameters": [
                    {
                        "description": "Utterance",
                        "name": "turn",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/http.TurnRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Turn accepted", "schema": {"$ref": "#/definitions/coordinator.Snapshot"}},
                    "400": {"description": "Blank text or invalid body", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "A turn is already in flight", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "503": {"description": "Assistant shutting down", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/cancel": {
            "post": {
                "tags": ["turns"],
                "summary": "Cancel the current turn",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/v1/mic": {
            "post": {
                "description": "Starts hands-free listening, or finishes the current utterance when already listening.",
                "produces": ["application/json"],
                "tags": ["mic"],
                "summary": "Press the microphone button",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/coordinator.Snapshot"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/auto-continue": {
            "put": {
                "consumes": ["application/json"],
                "tags": ["mic"],
                "summary": "Enable or disable hands-free mode",
                "parameters": [
                    {
                        "description": "Mode",
                        "name": "mode",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/http.AutoContinueRequest"}
                    }
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/reset": {
            "post": {
                "tags": ["turns"],
                "summary": "Clear the conversation",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/v1/conversation": {
            "get": {
                "produces": ["application/json"],
                "tags": ["turns"],
                "summary": "Current conversation snapshot",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/coordinator.Snapshot"}}}
            }
        },
        "/v1/events": {
            "get": {
                "description": "Upgrades to a WebSocket that receives a JSON snapshot after every change.",
                "tags": ["turns"],
                "summary": "Stream snapshots",
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        }
    },
    "definitions": {
        "conversation.Turn": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "role": {"type": "string", "enum": ["user", "assistant"]},
                "text": {"type": "string"},
                "created_at": {"type": "string"},
                "pending": {"type": "boolean"}
            }
        },
        "coordinator.Snapshot": {
            "type": "object",
            "properties": {
                "state": {
                    "type": "string",
                    "enum": ["idle", "awaiting_classification", "dispatching", "awaiting_speech", "auto_listening", "interrupted"]
                },
                "auto_continue": {"type": "boolean"},
                "listening": {"type": "boolean"},
                "speaking": {"type": "boolean"},
                "turns": {"type": "array", "items": {"$ref": "#/definitions/conversation.Turn"}},
                "alert": {"type": "string"}
            }
        },
        "http.AutoContinueRequest": {
            "type": "object",
            "properties": {"enabled": {"type": "boolean"}}
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "http.TurnRequest": {
            "type": "object",
            "properties": {"text": {"type": "string", "example": "what's the weather in Amman"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Parley API",
	Description:      "Conversational turn coordinator: submit utterances, control hands-free listening and watch the conversation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
