package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Attendance API",
        "description": "Biometric attendance tracking for courses: session lifecycle, face capture and reporting.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and CSRF issuance"},
        {"name": "Sessions", "description": "Attendance session lifecycle"},
        {"name": "Capture", "description": "Face capture and attendance records"},
        {"name": "Reports", "description": "Attendance aggregation and exam eligibility"},
        {"name": "Exports", "description": "CSV, Excel and PDF exports"},
        {"name": "Lookups", "description": "Departments, options, courses and students"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Start an attendance session",
                "description": "When an active session already exists for the course the envelope status is \"warning\" and data carries the existing session; retry with force_new to replace it.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Warning: active session exists"}
                }
            }
        },
        "/sessions/active": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Caller's active session",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/sessions/{id}/end": {
            "post": {
                "tags": ["Sessions"],
                "summary": "End a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK; ended=false when already completed"}}
            }
        },
        "/sessions/{id}/force-end": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Force end any session (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/sessions/{id}/stats": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Live session statistics",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/SessionStats"}}}
            }
        },
        "/capture": {
            "post": {
                "tags": ["Capture"],
                "summary": "Process a capture frame",
                "description": "Recognition failures are reported inside the result, never as transport errors.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CaptureRequest"}}
                ],
                "responses": {
                    "200": {"description": "Recognition result"},
                    "412": {"description": "Session is no longer active"}
                }
            }
        },
        "/capture/manual": {
            "post": {
                "tags": ["Capture"],
                "summary": "Manually mark a student present",
                "responses": {"201": {"description": "Recorded"}, "200": {"description": "Already recorded"}}
            }
        },
        "/reports": {
            "get": {
                "tags": ["Reports"],
                "summary": "Generate an attendance report",
                "parameters": [
                    {"name": "scope", "in": "query", "required": true, "type": "string", "enum": ["department", "option", "class", "course"]},
                    {"name": "scopeId", "in": "query", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/exports/reports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue a report export",
                "responses": {"201": {"description": "Job queued"}}
            }
        },
        "/exports/download": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a finished export via signed token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "File"}, "403": {"description": "Invalid or expired link"}}
            }
        },
        "/departments": {
            "get": {
                "tags": ["Lookups"],
                "summary": "List departments visible to the caller",
                "responses": {"200": {"description": "OK"}}
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
        "CreateSessionRequest": {
            "type": "object",
            "required": ["department_id", "option_id", "course_id", "biometric_method"],
            "properties": {
                "department_id": {"type": "string"},
                "option_id": {"type": "string"},
                "course_id": {"type": "string"},
                "biometric_method": {"type": "string", "enum": ["face", "finger"]},
                "force_new": {"type": "boolean"}
            }
        },
        "CaptureRequest": {
            "type": "object",
            "required": ["session_id", "image"],
            "properties": {
                "session_id": {"type": "string"},
                "image": {"type": "string", "description": "base64 encoded JPEG, optionally a data URI"}
            }
        },
        "SessionStats": {
            "type": "object",
            "properties": {
                "total_students": {"type": "integer"},
                "present_count": {"type": "integer"},
                "absent_count": {"type": "integer"},
                "attendance_rate": {"type": "number"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["success", "error", "warning"]},
                "message": {"type": "string"},
                "data": {"type": "object"},
                "timestamp": {"type": "string"},
                "request_id": {"type": "string"},
                "error_code": {"type": "string"}
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
