// Package docs registers the OpenAPI document served at /swagger when
// SWAGGER_ENABLED is set. It mirrors the godoc annotations on the handlers.
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
        "/comments": {
            "get": {
                "description": "Returns approved comments, newest first. Supports If-None-Match.",
                "produces": ["application/json"],
                "tags": ["Comments"],
                "summary": "List approved comments",
                "operationId": "listComments",
                "parameters": [
                    {"maximum": 500, "minimum": 1, "type": "integer", "description": "Maximum number of comments", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/handlers.CommentView"}}},
                    "304": {"description": "Not modified"},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Accepts an anonymous comment. One pending or approved comment is allowed per identity.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Comments"],
                "summary": "Submit a comment for moderation",
                "operationId": "submitComment",
                "parameters": [
                    {"type": "string", "description": "Idempotency key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"type": "string", "description": "Optional client identity token", "name": "X-Identity-Token", "in": "header"},
                    {"description": "Comment payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SubmitCommentRequest"}}
                ],
                "responses": {
                    "200": {"description": "Idempotent replay", "schema": {"$ref": "#/definitions/handlers.SubmitCommentResponse"}},
                    "201": {"description": "Accepted for moderation", "schema": {"$ref": "#/definitions/handlers.SubmitCommentResponse"}},
                    "400": {"description": "missing_text, text_too_long or bad_request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "identity_denied", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/comments/mine": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Comments"],
                "summary": "Status of the caller's comment",
                "operationId": "getMyComment",
                "parameters": [
                    {"type": "string", "description": "Optional client identity token", "name": "X-Identity-Token", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MineResponse"}},
                    "400": {"description": "bad_identity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "description": "Deletes the caller's pending or approved comment and frees the identity.",
                "tags": ["Comments"],
                "summary": "Withdraw the caller's comment",
                "operationId": "deleteMyComment",
                "parameters": [
                    {"type": "string", "description": "Optional client identity token", "name": "X-Identity-Token", "in": "header"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "400": {"description": "bad_identity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "no_comment", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/moderation/webhook": {
            "post": {
                "description": "Accepts a Telegram update. Callback queries carrying \"approve:<id>\" or \"reject:<id>\" are applied at most once; every other update is acknowledged and ignored.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Moderation"],
                "summary": "Receive a moderator decision",
                "operationId": "moderationWebhook",
                "parameters": [
                    {"type": "string", "description": "Webhook secret, required when configured", "name": "X-Telegram-Bot-Api-Secret-Token", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WebhookAck"}},
                    "401": {"description": "unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.CommentView": {
            "type": "object",
            "properties": {
                "commentId": {"type": "string", "example": "0b6f8a8e-0f55-4d7e-9c57-1f6f3c0a2d11"},
                "displayName": {"type": "string", "example": "Layla"},
                "text": {"type": "string", "example": "Thank you for the lovely evening."},
                "timestamp": {"description": "Submission time in Unix milliseconds.", "type": "integer", "example": 1760690000000},
                "verified": {"type": "boolean", "example": false}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "identity_denied"},
                "message": {"type": "string", "example": "a comment from this identity is awaiting moderation"},
                "reason": {"type": "string", "example": "already_pending"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.MineResponse": {
            "type": "object",
            "properties": {
                "commentId": {"type": "string"},
                "displayName": {"type": "string"},
                "hasComment": {"type": "boolean", "example": true},
                "status": {"type": "string", "enum": ["pending", "approved"]}
            }
        },
        "handlers.SubmitCommentRequest": {
            "type": "object",
            "properties": {
                "identityToken": {"type": "string", "example": "c-8f2b1e"},
                "name": {"type": "string", "example": "Layla"},
                "text": {"type": "string", "example": "Thank you for the lovely evening."}
            }
        },
        "handlers.SubmitCommentResponse": {
            "type": "object",
            "properties": {
                "commentId": {"type": "string"},
                "displayName": {"type": "string"},
                "success": {"type": "boolean", "example": true}
            }
        },
        "handlers.WebhookAck": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean", "example": true}
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
	Title:            "Comment Moderation API",
	Description:      "Anonymous comments, moderated through a chat gateway before publication.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
