package docs

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OpenAPI specification served at /openapi.json
const openapiJSON = `{
  "openapi": "3.0.3",
  "info": {
    "title": "backdrop Gateway API",
    "version": "0.1.0"
  },
  "servers": [ { "url": "/" } ],
  "tags": [
    {"name": "generate", "description": "Single pair generation"},
    {"name": "sessions", "description": "Uploads and pairs"},
    {"name": "runs", "description": "Sequential batch runs"}
  ],
  "components": {
    "securitySchemes": {
      "apiKey": {"type": "apiKey", "in": "header", "name": "X-API-Key"}
    },
    "schemas": {
      "GenerateRequest": {
        "type": "object",
        "required": ["photoBase64", "inspoBase64"],
        "properties": {
          "photoBase64": {"type": "string", "description": "data URL or bare base64; URLs are refused"},
          "inspoBase64": {"type": "string", "description": "data URL or bare base64; URLs are refused"},
          "userApiKey": {"type": "string"}
        }
      },
      "GenerateResponse": {
        "type": "object",
        "properties": {
          "success": {"type": "boolean"},
          "analysis": {"type": "string"},
          "textResponse": {"type": "string"},
          "imageUrl": {"type": "string", "nullable": true},
          "usedFallback": {"type": "boolean"},
          "error": {"type": "string"},
          "code": {"type": "string"}
        }
      },
      "Health": {
        "type": "object",
        "properties": {
          "status": {"type": "string", "example": "ok"},
          "hasServerKey": {"type": "boolean"}
        }
      }
    }
  },
  "security": [{"apiKey": []}],
  "paths": {
    "/api/health": {
      "get": {"summary": "Service health","tags": ["generate"],"security": [],
        "responses": {"200": {"description": "OK","content": {"application/json": {"schema": {"$ref": "#/components/schemas/Health"}}}}}}
    },
    "/api/generate": {
      "post": {
        "summary": "Composite one photo with one inspiration image",
        "tags": ["generate"],
        "requestBody": {"required": true, "content": {
          "application/json": {"schema": {"$ref": "#/components/schemas/GenerateRequest"}},
          "multipart/form-data": {"schema": {"type": "object", "properties": {
            "photo": {"type": "string", "format": "binary"},
            "inspiration": {"type": "string", "format": "binary"},
            "userApiKey": {"type": "string"}
          }}}
        }},
        "responses": {
          "200": {"description": "OK","content": {"application/json": {"schema": {"$ref": "#/components/schemas/GenerateResponse"}}}},
          "400": {"description": "Validation or configuration error"},
          "413": {"description": "Body too large"},
          "401": {"description": "Provider rejected the key"},
          "405": {"description": "Method not allowed"},
          "429": {"description": "Provider rate limit"},
          "503": {"description": "Worker queue full"},
          "502": {"description": "Provider error"},
          "504": {"description": "Provider timeout"}
        }
      }
    },
    "/api/sessions": {
      "post": {"summary": "Start a session","tags": ["sessions"],"responses": {"201": {"description": "Created"}}}
    },
    "/api/sessions/{id}": {
      "get": {"summary": "Session state","tags": ["sessions"],"responses": {"200": {"description": "OK"},"404": {"description": "Not found"}}},
      "delete": {"summary": "End a session and discard its images","tags": ["sessions"],"responses": {"200": {"description": "OK"}}}
    },
    "/api/sessions/{id}/photos": {
      "post": {"summary": "Upload photos (multipart file, repeatable) or JSON {data_url,name}; URLs are refused","tags": ["sessions"],"responses": {"201": {"description": "Created"},"413": {"description": "Too large"}}}
    },
    "/api/sessions/{id}/inspirations": {
      "post": {"summary": "Upload inspiration images","tags": ["sessions"],"responses": {"201": {"description": "Created"},"413": {"description": "Too large"}}}
    },
    "/api/sessions/{id}/photos/{asset_id}": {
      "delete": {"summary": "Remove a photo","tags": ["sessions"],"responses": {"200": {"description": "OK"}}}
    },
    "/api/sessions/{id}/inspirations/{asset_id}": {
      "delete": {"summary": "Remove an inspiration image","tags": ["sessions"],"responses": {"200": {"description": "OK"}}}
    },
    "/api/sessions/{id}/select": {
      "post": {"summary": "Toggle selection; one photo plus one inspiration become a pair","tags": ["sessions"],"responses": {"200": {"description": "OK"}}}
    },
    "/api/sessions/{id}/pairs": {
      "post": {"summary": "Pair a photo with an inspiration image","tags": ["sessions"],"responses": {"201": {"description": "Created"}}}
    },
    "/api/sessions/{id}/pairs/{index}": {
      "delete": {"summary": "Remove a pair","tags": ["sessions"],"responses": {"200": {"description": "OK"}}}
    },
    "/api/sessions/{id}/runs": {
      "get": {"summary": "Earlier runs of the session, newest first","tags": ["runs"],"responses": {"200": {"description": "OK"},"404": {"description": "Not found"}}},
      "post": {"summary": "Generate every pair of the session, one at a time","tags": ["runs"],"responses": {"202": {"description": "Accepted"},"400": {"description": "Invalid body, no pairs or no key"},"503": {"description": "Queue full"}}}
    },
    "/api/runs/{id}": {
      "get": {"summary": "Run snapshot","tags": ["runs"],"responses": {"200": {"description": "OK"},"404": {"description": "Not found"}}},
      "delete": {"summary": "Cancel a run between pairs","tags": ["runs"],"responses": {"200": {"description": "OK"}}}
    },
    "/api/runs/{id}/events": {
      "get": {"summary": "Progress events (SSE)","tags": ["runs"],"responses": {"200": {"description": "text/event-stream"}}}
    },
    "/api/runs/{id}/pairs/{index}/retry": {
      "post": {"summary": "Re-run one pair as a new run","tags": ["runs"],"responses": {"202": {"description": "Accepted"}}}
    }
  }
}`

// RegisterRoutes wires the API documentation endpoints into the Gin engine.
// - GET /openapi.json: OpenAPI 3.0 spec
// - GET /docs: Swagger UI (via CDN) loading /openapi.json
func RegisterRoutes(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/docs") })
	r.GET("/openapi.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(openapiJSON))
	})
	r.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})
}

const swaggerHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <title>backdrop API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  <style>body { margin: 0; padding: 0; }</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.json',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
 </body>
</html>`
