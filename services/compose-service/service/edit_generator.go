package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/services/compose-service/codec"
	"github.com/RigelNana/backdrop/services/compose-service/config"
	"github.com/RigelNana/backdrop/services/compose-service/models"
)

const defaultBaseURL = "https://api.openai.com/v1"

// EditGenerator sends both images to the images/edits endpoint in one
// multipart request.
type EditGenerator struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewEditGenerator(cfg config.ProviderConfig, logger *logrus.Logger) *EditGenerator {
	return &EditGenerator{
		cfg:        cfg,
		httpClient: providerHTTPClient(cfg.CallTimeout),
		logger:     logger,
	}
}

func (g *EditGenerator) Strategy() string {
	return config.StrategyEdit
}

func (g *EditGenerator) Generate(ctx context.Context, req GenerateRequest) (*models.GenerationOutcome, error) {
	key, err := ResolveCredential(req.Credential, "")
	if err != nil {
		return nil, err
	}
	photo, inspiration, err := encodePair(req, codec.EncodingBinaryPart, g.logger)
	if err != nil {
		return nil, err
	}

	body, contentType, err := g.buildForm(photo, inspiration)
	if err != nil {
		return nil, validationError("build edit request: %v", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	resp, err := g.post(callCtx, key, body, contentType)
	observe("edit", start, err)
	if err != nil {
		return nil, providerError(err)
	}

	url, asset := imageResult(resp.Data, "composite")
	if url == "" {
		return nil, &GenerationError{
			Kind:       KindProvider,
			Code:       CodeBadResponse,
			Message:    "edit response carried neither b64_json nor url",
			HTTPStatus: http.StatusBadGateway,
		}
	}
	return &models.GenerationOutcome{ImageURL: url, Image: asset}, nil
}

func (g *EditGenerator) buildForm(photo, inspiration codec.EncodedImage) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, img := range []codec.EncodedImage{photo, inspiration} {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image[]"; filename="%s"`, escapeQuotes(img.Filename)))
		h.Set("Content-Type", img.MIMEType)
		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.Bytes); err != nil {
			return nil, "", err
		}
	}

	fields := map[string]string{
		"model":  g.cfg.ImageModel,
		"prompt": EditPrompt,
		"n":      "1",
		"size":   string(openai.CreateImageSize1024x1024),
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func (g *EditGenerator) post(ctx context.Context, key string, body io.Reader, contentType string) (*openai.ImageResponse, error) {
	baseURL := strings.TrimRight(g.cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/images/edits", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeErrorBody(resp.StatusCode, raw)
	}

	var out openai.ImageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &openai.RequestError{HTTPStatusCode: resp.StatusCode, Err: fmt.Errorf("decode edit response: %w", err)}
	}
	return &out, nil
}

// decodeErrorBody turns an error payload into the same error types the
// openai client returns, so both strategies map failures identically.
func decodeErrorBody(status int, raw []byte) error {
	var errResp openai.ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != nil {
		errResp.Error.HTTPStatusCode = status
		return errResp.Error
	}
	return &openai.RequestError{
		HTTPStatusCode: status,
		Err:            fmt.Errorf("edit request failed with status %d: %s", status, strings.TrimSpace(string(raw))),
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
