package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCredentialExtraction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Credential())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, CallerCredential(c)) })

	cases := map[string]map[string]string{
		"":        {},
		"sk-head": {"X-API-Key": " sk-head "},
		"sk-bear": {"Authorization": "Bearer sk-bear"},
		"sk-wins": {"X-API-Key": "sk-wins", "Authorization": "Bearer other"},
	}
	for want, headers := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Body.String())
	}
}
