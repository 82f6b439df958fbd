package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/pkg/metrics"
	"github.com/RigelNana/backdrop/services/compose-service/codec"
	"github.com/RigelNana/backdrop/services/compose-service/config"
	"github.com/RigelNana/backdrop/services/compose-service/models"
)

// Generator performs one remote generation for one pair.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*models.GenerationOutcome, error)
	Strategy() string
}

type GenerateRequest struct {
	Photo       models.ImageAsset
	Inspiration models.ImageAsset
	Credential  string
}

// NewGenerator returns the generator selected by cfg.Strategy.
func NewGenerator(cfg config.ProviderConfig, logger *logrus.Logger) (Generator, error) {
	switch cfg.Strategy {
	case config.StrategyChat, "":
		return NewChatGenerator(cfg, logger), nil
	case config.StrategyEdit:
		return NewEditGenerator(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider strategy %q", cfg.Strategy)
	}
}

func newOpenAIClient(cfg config.ProviderConfig, key string, httpClient *http.Client) *openai.Client {
	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = httpClient
	return openai.NewClientWithConfig(clientCfg)
}

func providerHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// encodePair converts both assets for transport and warns when the MIME type
// had to be assumed.
func encodePair(req GenerateRequest, enc codec.Encoding, logger *logrus.Logger) (photo, inspiration codec.EncodedImage, err error) {
	photo, err = codec.ToTransportForm(req.Photo, enc)
	if err != nil {
		return photo, inspiration, validationError("photo: %v", err)
	}
	inspiration, err = codec.ToTransportForm(req.Inspiration, enc)
	if err != nil {
		return photo, inspiration, validationError("inspiration: %v", err)
	}
	for _, img := range []codec.EncodedImage{photo, inspiration} {
		if img.AssumedMIME {
			logger.WithField("file", img.Filename).Warnf("no MIME type on image, assuming %s", codec.DefaultMIMEType)
		}
	}
	return photo, inspiration, nil
}

// imageResult normalizes an images API payload into an image URL and asset.
func imageResult(data []openai.ImageResponseDataInner, id string) (string, *models.ImageAsset) {
	if len(data) == 0 {
		return "", nil
	}
	if b64 := strings.TrimSpace(data[0].B64JSON); b64 != "" {
		url, _ := codec.EnsureDataURL(b64, "image/png")
		asset, err := codec.AssetFromDataURL(id, url)
		if err != nil {
			return url, nil
		}
		return url, asset
	}
	if url := strings.TrimSpace(data[0].URL); url != "" {
		return url, &models.ImageAsset{ID: id, Ref: url}
	}
	return "", nil
}

func observe(call string, start time.Time, err error) {
	metrics.RecordProviderCall(call, err, time.Since(start))
}
