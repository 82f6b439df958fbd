package service

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/services/compose-service/config"
	"github.com/RigelNana/backdrop/services/compose-service/models"
)

const (
	testKey   = "sk-test"
	inlinePNG = "data:image/png;base64,aGVsbG8="
	resultB64 = "cmVzdWx0"
)

// fakeProvider speaks enough of the OpenAI wire format for the generators.
// Handlers receive the 1-based call number for their endpoint.
type fakeProvider struct {
	srv *httptest.Server

	mu          sync.Mutex
	chatCalls   int
	imageCalls  int
	editCalls   int
	chatBodies  []map[string]any
	authHeaders []string

	chat  func(n int) (int, any)
	image func(n int) (int, any)
	edit  func(n int, r *http.Request) (int, any)
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.mu.Lock()
		p.chatCalls++
		n := p.chatCalls
		p.chatBodies = append(p.chatBodies, body)
		p.authHeaders = append(p.authHeaders, r.Header.Get("Authorization"))
		p.mu.Unlock()
		writeJSON(w, p.chat, n)
	})
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		p.mu.Lock()
		p.imageCalls++
		n := p.imageCalls
		p.mu.Unlock()
		writeJSON(w, p.image, n)
	})
	mux.HandleFunc("/v1/images/edits", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.editCalls++
		n := p.editCalls
		p.authHeaders = append(p.authHeaders, r.Header.Get("Authorization"))
		p.mu.Unlock()
		status, body := http.StatusNotFound, any(nil)
		if p.edit != nil {
			status, body = p.edit(n, r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func writeJSON(w http.ResponseWriter, fn func(int) (int, any), n int) {
	status, body := http.StatusNotFound, any(nil)
	if fn != nil {
		status, body = fn(n)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (p *fakeProvider) calls() (chat, image, edit int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chatCalls, p.imageCalls, p.editCalls
}

func (p *fakeProvider) providerConfig(strategy string) config.ProviderConfig {
	return config.ProviderConfig{
		BaseURL:     p.srv.URL + "/v1",
		Model:       "gpt-4o",
		ImageModel:  "gpt-image-1",
		Strategy:    strategy,
		CallTimeout: 5 * time.Second,
	}
}

func chatText(text string) (int, any) {
	return http.StatusOK, map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": text},
		}},
	}
}

func chatWithImage(text, url string) (int, any) {
	return http.StatusOK, map[string]any{
		"id":      "chatcmpl-2",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "text", "text": text},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": url}},
				},
			},
		}},
	}
}

func imagesB64(b64 string) (int, any) {
	return http.StatusOK, map[string]any{
		"created": 1,
		"data":    []any{map[string]any{"b64_json": b64}},
	}
}

func imagesEmpty() (int, any) {
	return http.StatusOK, map[string]any{"created": 1, "data": []any{}}
}

func apiError(status int, code, message string) (int, any) {
	return status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    code,
		},
	}
}

func testPair() models.Pair {
	return models.Pair{
		Photo:       models.ImageAsset{ID: "photo", Encoded: inlinePNG},
		Inspiration: models.ImageAsset{ID: "inspo", Encoded: "aGVsbG8="},
	}
}

func testPairs(n int) []models.Pair {
	pairs := make([]models.Pair, n)
	for i := range pairs {
		pairs[i] = testPair()
	}
	return pairs
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
