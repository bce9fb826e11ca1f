package openapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Generator builds the OpenAPI 3.0 document for the photo API.
type Generator struct {
	version     string
	baseURL     string
	mediaPrefix string
	uploadLimit int64
}

// NewGenerator creates a generator. mediaPrefix is the route stored photos
// are served under and uploadLimit is the largest accepted photo in bytes.
func NewGenerator(version, baseURL, mediaPrefix string, uploadLimit int64) *Generator {
	return &Generator{
		version:     version,
		baseURL:     baseURL,
		mediaPrefix: "/" + strings.Trim(mediaPrefix, "/"),
		uploadLimit: uploadLimit,
	}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := map[string]interface{}{
		"/api/v1/photos/upload": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Upload a treatment photo or patient signature",
				"operationId": "uploadPhoto",
				"tags":        []string{"photos"},
				"requestBody": g.uploadRequestBody(),
				"responses": map[string]interface{}{
					"201": jsonResponse("Stored photo", "#/components/schemas/UploadResult"),
					"400": errorResponse("Missing file, unsupported extension or invalid form field"),
					"413": errorResponse("Photo exceeds the upload limit"),
					"422": errorResponse("File is not a decodable image"),
				},
			},
		},
		"/api/v1/photos/uploads": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "List the upload log, newest first",
				"operationId": "listUploads",
				"tags":        []string{"photos"},
				"parameters": []map[string]interface{}{
					queryParam("medical_record_no", map[string]interface{}{"type": "string"}),
					queryParam("mode", map[string]interface{}{"type": "string", "enum": []string{"timestamp", "signature"}}),
					queryParam("processed", map[string]interface{}{"type": "boolean"}),
					queryParam("limit", map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100, "default": 20}),
					queryParam("offset", map[string]interface{}{"type": "integer", "minimum": 0, "default": 0}),
				},
				"responses": map[string]interface{}{
					"200": jsonResponse("Page of uploads", "#/components/schemas/UploadPage"),
					"400": errorResponse("Invalid filter"),
				},
			},
		},
		"/api/v1/photos/uploads/{id}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Read one upload log entry",
				"operationId": "getUpload",
				"tags":        []string{"photos"},
				"parameters": []map[string]interface{}{
					pathParam("id", map[string]interface{}{"type": "string", "format": "uuid"}),
				},
				"responses": map[string]interface{}{
					"200": jsonResponse("Upload log entry", "#/components/schemas/PhotoUpload"),
					"404": errorResponse("Unknown id"),
				},
			},
		},
		g.mediaPrefix + "/{name}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Download a stored photo",
				"operationId": "downloadPhoto",
				"tags":        []string{"media"},
				"parameters": []map[string]interface{}{
					pathParam("name", map[string]interface{}{"type": "string"}),
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Photo bytes",
						"content": map[string]interface{}{
							"image/jpeg": map[string]interface{}{"schema": binarySchema()},
							"image/png":  map[string]interface{}{"schema": binarySchema()},
						},
					},
					"404": errorResponse("No such photo"),
				},
			},
		},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Rehab Photo API",
			"version":     g.version,
			"description": "Treatment photo and signature upload with watermarking",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"security": []map[string][]string{{"bearerAuth": {}}},
		"paths":    paths,
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
			"schemas": buildComponentSchemas(),
		},
	}
}

func (g *Generator) uploadRequestBody() map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"multipart/form-data": map[string]interface{}{
				"schema": map[string]interface{}{
					"type":     "object",
					"required": []string{"photo"},
					"properties": map[string]interface{}{
						"photo": map[string]interface{}{
							"type":        "string",
							"format":      "binary",
							"maxLength":   g.uploadLimit,
							"description": ".jpg, .jpeg, .png or .gif",
						},
						"isSignature":     map[string]interface{}{"type": "boolean", "default": false},
						"medicalRecordNo": map[string]interface{}{"type": "string", "maxLength": 64},
						"projectName":     map[string]interface{}{"type": "string", "maxLength": 255},
						"treatmentTime": map[string]interface{}{
							"type":        "string",
							"description": "Signature caption time; RFC 3339, local date-time or unix milliseconds",
						},
						"timestamp": map[string]interface{}{
							"type":        "string",
							"description": "Timestamp banner time; same formats as treatmentTime",
						},
					},
				},
			},
		},
	}
}

func queryParam(name string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"name": name, "in": "query", "required": false, "schema": schema}
}

func pathParam(name string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"name": name, "in": "path", "required": true, "schema": schema}
}

func jsonResponse(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{"$ref": schemaRef},
			},
		},
	}
}

func errorResponse(description string) map[string]interface{} {
	return jsonResponse(description, "#/components/schemas/Error")
}

func binarySchema() map[string]interface{} {
	return map[string]interface{}{"type": "string", "format": "binary"}
}

func str() map[string]interface{} { return map[string]interface{}{"type": "string"} }

func integer() map[string]interface{} { return map[string]interface{}{"type": "integer"} }

func dateTime() map[string]interface{} {
	return map[string]interface{}{"type": "string", "format": "date-time"}
}

func buildComponentSchemas() map[string]interface{} {
	return map[string]interface{}{
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"error":      str(),
				"message":    str(),
				"request_id": str(),
			},
		},
		"UploadResult": map[string]interface{}{
			"type":     "object",
			"required": []string{"filename", "originalname", "size", "url", "processed"},
			"properties": map[string]interface{}{
				"id":           map[string]interface{}{"type": "string", "format": "uuid"},
				"filename":     str(),
				"originalname": str(),
				"size":         integer(),
				"url":          str(),
				"processed":    map[string]interface{}{"type": "boolean"},
				"warning":      str(),
			},
		},
		"PhotoUpload": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":                map[string]interface{}{"type": "string", "format": "uuid"},
				"filename":          str(),
				"original_name":     str(),
				"mode":              map[string]interface{}{"type": "string", "enum": []string{"timestamp", "signature"}},
				"medical_record_no": str(),
				"project_name":      str(),
				"treatment_time":    dateTime(),
				"caption":           str(),
				"processed":         map[string]interface{}{"type": "boolean"},
				"warning":           str(),
				"content_type":      str(),
				"size":              integer(),
				"width":             integer(),
				"height":            integer(),
				"quality":           integer(),
				"uploaded_by":       str(),
				"created_at":        dateTime(),
			},
		},
		"UploadPage": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"data": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"$ref": "#/components/schemas/PhotoUpload"},
				},
				"total":    integer(),
				"limit":    integer(),
				"offset":   integer(),
				"has_more": map[string]interface{}{"type": "boolean"},
				"links": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"relation": str(),
							"url":      str(),
						},
					},
				},
			},
		},
	}
}

// RegisterRoutes registers GET /openapi.json on apiGroup.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	spec := g.GenerateSpec()
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, spec)
	})
}
