package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Mess Hall API",
        "description": "Meal attendance and mess management backend",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Attendance", "description": "Per-student per-day meal records"},
        {"name": "CheckIn", "description": "Student QR self check-in"},
        {"name": "Students", "description": "Mess roster management"},
        {"name": "Plans", "description": "Meal plan management"},
        {"name": "Announcements", "description": "Mess notices"},
        {"name": "Reports", "description": "Daily attendance exports"}
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
        "/attendance/mark": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark one meal for a student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkRequest"}}
                ],
                "responses": {
                    "200": {"description": "Existing record updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Record created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student not found"},
                    "409": {"description": "Inactive student or meal not in plan"}
                }
            }
        },
        "/attendance/bulk": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark one meal for many students",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkRequest"}}
                ],
                "responses": {
                    "200": {"description": "Batch outcome with per-student failures", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/stats": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Per-meal turnout for a date",
                "parameters": [
                    {"name": "date", "in": "query", "type": "string", "description": "YYYY-MM-DD, defaults to today"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/records/{id}": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Get one attendance record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Record not found"}
                }
            },
            "patch": {
                "tags": ["Attendance"],
                "summary": "Patch meal flags on a record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FlagPatch"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Empty patch"},
                    "404": {"description": "Record not found"},
                    "409": {"description": "Meal not in plan"}
                }
            },
            "delete": {
                "tags": ["Attendance"],
                "summary": "Delete an attendance record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Record not found"}
                }
            }
        },
        "/checkin": {
            "post": {
                "tags": ["CheckIn"],
                "summary": "Check in via QR scan",
                "parameters": [
                    {"name": "X-User-ID", "in": "header", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckInRequest"}}
                ],
                "responses": {
                    "200": {"description": "Marked or already marked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unrecognized QR payload"},
                    "409": {"description": "No active meal window or precondition failed"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "planId", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Enrol a student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student not found"}
                }
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update a student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Remove a student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/plans": {
            "get": {
                "tags": ["Plans"],
                "summary": "List meal plans",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Plans"],
                "summary": "Create a meal plan",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PlanRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/{id}": {
            "get": {
                "tags": ["Plans"],
                "summary": "Get one meal plan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Plans"],
                "summary": "Update a meal plan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PlanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Plans"],
                "summary": "Delete a meal plan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/announcements": {
            "get": {
                "tags": ["Announcements"],
                "summary": "List recent announcements",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Announcements"],
                "summary": "Publish an announcement",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AnnouncementRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue a daily attendance report",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Get report job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/{id}/link": {
            "get": {
                "tags": ["Reports"],
                "summary": "Issue a signed download link",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Report not ready"}
                }
            }
        },
        "/reports/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a report by signed token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "400": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "MarkRequest": {
            "type": "object",
            "required": ["student_id", "meal", "present"],
            "properties": {
                "student_id": {"type": "string"},
                "date": {"type": "string", "description": "YYYY-MM-DD, defaults to today"},
                "meal": {"type": "string", "enum": ["breakfast", "lunch", "dinner"]},
                "present": {"type": "boolean"}
            }
        },
        "BulkRequest": {
            "type": "object",
            "required": ["student_ids", "meal", "present"],
            "properties": {
                "student_ids": {"type": "array", "items": {"type": "string"}},
                "date": {"type": "string"},
                "meal": {"type": "string", "enum": ["breakfast", "lunch", "dinner"]},
                "present": {"type": "boolean"}
            }
        },
        "FlagPatch": {
            "type": "object",
            "properties": {
                "breakfast": {"type": "boolean"},
                "lunch": {"type": "boolean"},
                "dinner": {"type": "boolean"}
            }
        },
        "CheckInRequest": {
            "type": "object",
            "required": ["qr_data"],
            "properties": {
                "qr_data": {"type": "string"}
            }
        },
        "StudentRequest": {
            "type": "object",
            "required": ["full_name", "plan_id", "join_date", "end_date"],
            "properties": {
                "user_id": {"type": "string"},
                "full_name": {"type": "string"},
                "room_no": {"type": "string"},
                "phone": {"type": "string"},
                "plan_id": {"type": "string"},
                "join_date": {"type": "string"},
                "end_date": {"type": "string"},
                "active": {"type": "boolean"}
            }
        },
        "PlanRequest": {
            "type": "object",
            "required": ["name", "meals"],
            "properties": {
                "name": {"type": "string"},
                "monthly_fee": {"type": "integer"},
                "meals": {"type": "array", "items": {"type": "string"}}
            }
        },
        "AnnouncementRequest": {
            "type": "object",
            "required": ["title", "body"],
            "properties": {
                "title": {"type": "string"},
                "body": {"type": "string"}
            }
        },
        "ReportRequest": {
            "type": "object",
            "required": ["format"],
            "properties": {
                "date": {"type": "string"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
