package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Omnibridge Backend",
    "description": "Chat platform bridge to the support desk: webhooks, email verification and operator console API",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/healthz": {"get": {"tags": ["ops"], "summary": "Health check", "responses": {"200": {"description": "OK"}, "503": {"description": "Database unavailable"}}}},
    "/auth/verify": {"get": {"tags": ["auth"], "summary": "Verify an email link", "parameters": [{"name": "token", "in": "query", "required": true, "type": "string"}], "responses": {"200": {"description": "Verified"}, "400": {"description": "Invalid token"}, "401": {"description": "User not found"}, "403": {"description": "User inactive"}, "410": {"description": "Expired token"}}}},
    "/webhooks/{platform}": {
      "get": {"tags": ["webhooks"], "summary": "Webhook subscription handshake", "parameters": [{"name": "platform", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "Challenge echoed"}, "403": {"description": "Verify token mismatch"}}},
      "post": {"tags": ["webhooks"], "summary": "Receive a chat platform webhook", "parameters": [{"name": "platform", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "Processed or ignored"}, "400": {"description": "Malformed payload"}, "401": {"description": "Invalid signature"}, "404": {"description": "Unknown platform"}, "429": {"description": "Rate limited"}}}
    },
    "/webhooks/jira": {"post": {"tags": ["webhooks"], "summary": "Receive a Jira comment webhook", "responses": {"200": {"description": "Relayed or ignored"}, "401": {"description": "Invalid secret"}}}},
    "/api/admin/conversations": {"get": {"tags": ["admin"], "summary": "List conversations", "responses": {"200": {"description": "OK"}}}},
    "/api/admin/conversations/{id}/messages": {
      "get": {"tags": ["admin"], "summary": "Conversation transcript", "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}},
      "post": {"tags": ["admin"], "summary": "Send an operator message", "responses": {"202": {"description": "Queued"}, "400": {"description": "Validation error"}, "404": {"description": "Not found"}}}
    },
    "/api/admin/conversations/{id}/tickets": {
      "get": {"tags": ["admin"], "summary": "Tickets linked to a conversation", "responses": {"200": {"description": "OK"}}},
      "post": {"tags": ["admin"], "summary": "Link a tracker ticket to a conversation", "responses": {"200": {"description": "Linked"}, "400": {"description": "Invalid ticket key"}}}
    },
    "/api/admin/broadcast": {"post": {"tags": ["admin"], "summary": "Broadcast to active conversations", "responses": {"200": {"description": "OK"}}}},
    "/api/admin/directory/sync": {"post": {"tags": ["admin"], "summary": "Run a directory sync now", "responses": {"200": {"description": "OK"}, "409": {"description": "Already running"}}}},
    "/api/admin/organizations": {"get": {"tags": ["admin"], "summary": "List organizations", "responses": {"200": {"description": "OK"}}}},
    "/api/admin/stats": {"get": {"tags": ["admin"], "summary": "Dashboard counters", "responses": {"200": {"description": "OK"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
