package service

import (
	"context"
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

const (
	analyzeMaxTokens = 1000
	composeMaxTokens = 4096
)

// ChatGenerator runs the two-turn chat exchange: analyze the inspiration,
// then compose the photo onto it. When the second turn yields no image it
// makes one attempt on the images API.
type ChatGenerator struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewChatGenerator(cfg config.ProviderConfig, logger *logrus.Logger) *ChatGenerator {
	return &ChatGenerator{
		cfg:        cfg,
		httpClient: providerHTTPClient(cfg.CallTimeout),
		logger:     logger,
	}
}

func (g *ChatGenerator) Strategy() string {
	return config.StrategyChat
}

func (g *ChatGenerator) Generate(ctx context.Context, req GenerateRequest) (*models.GenerationOutcome, error) {
	key, err := ResolveCredential(req.Credential, "")
	if err != nil {
		return nil, err
	}
	photo, inspiration, err := encodePair(req, codec.EncodingDataURL, g.logger)
	if err != nil {
		return nil, err
	}
	client := newOpenAIClient(g.cfg, key, g.httpClient)

	// 第一步：分析参考图
	analyzeTurn := userImageMessage(inspiration.Text, AnalyzePrompt)
	first, err := g.chat(ctx, client, "analyze", analyzeMaxTokens, []openai.ChatCompletionMessage{analyzeTurn})
	if err != nil {
		return nil, err
	}
	analysis, _ := splitMessage(first)

	// 第二步：带上完整上下文合成
	history := []openai.ChatCompletionMessage{
		analyzeTurn,
		{Role: openai.ChatMessageRoleAssistant, Content: analysis},
		userImageMessage(photo.Text, ComposePrompt),
	}
	second, err := g.chat(ctx, client, "compose", composeMaxTokens, history)
	if err != nil {
		return nil, err
	}
	text, imageURL := splitMessage(second)

	outcome := &models.GenerationOutcome{
		AnalysisText: analysis,
		RawText:      text,
	}
	if imageURL != "" {
		outcome.ImageURL = imageURL
		outcome.Image = chatImageAsset(imageURL)
		return outcome, nil
	}

	url, asset, err := g.synthesize(ctx, client, analysis)
	if err != nil {
		ge := fallbackError(err)
		metrics.FallbackAttempts.WithLabelValues("failed").Inc()
		g.logger.WithError(ge).Warn("images fallback failed, returning text only")
		return outcome, nil
	}
	metrics.FallbackAttempts.WithLabelValues("succeeded").Inc()
	outcome.ImageURL = url
	outcome.Image = asset
	outcome.UsedFallback = true
	return outcome, nil
}

func (g *ChatGenerator) chat(ctx context.Context, client *openai.Client, call string, maxTokens int, messages []openai.ChatCompletionMessage) (openai.ChatCompletionMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	resp, err := client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:     g.cfg.Model,
		MaxTokens: maxTokens,
		Messages:  messages,
	})
	observe(call, start, err)
	if err != nil {
		return openai.ChatCompletionMessage{}, providerError(err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, &GenerationError{
			Kind:       KindProvider,
			Code:       CodeBadResponse,
			Message:    call + " response has no choices",
			HTTPStatus: http.StatusBadGateway,
		}
	}
	return resp.Choices[0].Message, nil
}

// synthesize is the single images API attempt made when the chat turn
// returned text only.
func (g *ChatGenerator) synthesize(ctx context.Context, client *openai.Client, analysis string) (string, *models.ImageAsset, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	resp, err := client.CreateImage(callCtx, openai.ImageRequest{
		Model:   g.cfg.ImageModel,
		Prompt:  FallbackPrompt(analysis),
		N:       1,
		Size:    openai.CreateImageSize1024x1024,
		Quality: "high",
	})
	observe("fallback", start, err)
	if err != nil {
		return "", nil, err
	}
	url, asset := imageResult(resp.Data, "fallback")
	if url == "" {
		return "", nil, ErrFallbackExhausted
	}
	return url, asset, nil
}

func userImageMessage(imageURL, prompt string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageURL}},
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
		},
	}
}

// splitMessage collects the text of a reply and the first inline image, if
// the reply carried content parts.
func splitMessage(msg openai.ChatCompletionMessage) (text, imageURL string) {
	if len(msg.MultiContent) == 0 {
		return msg.Content, ""
	}
	var sb strings.Builder
	for _, part := range msg.MultiContent {
		switch part.Type {
		case openai.ChatMessagePartTypeImageURL:
			if imageURL == "" && part.ImageURL != nil {
				imageURL = part.ImageURL.URL
			}
		case openai.ChatMessagePartTypeText:
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), imageURL
}

func chatImageAsset(url string) *models.ImageAsset {
	if codec.IsDataURL(url) {
		if asset, err := codec.AssetFromDataURL("composite", url); err == nil {
			return asset
		}
		return nil
	}
	return &models.ImageAsset{ID: "composite", Ref: url}
}
