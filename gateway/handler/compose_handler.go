package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/gateway/middleware"
	"github.com/RigelNana/backdrop/services/compose-service/models"
	"github.com/RigelNana/backdrop/services/compose-service/service"
)

type ComposeHandler struct {
	orchestrator *service.Orchestrator
	dispatcher   *service.Dispatcher
	logger       *logrus.Logger
}

func NewComposeHandler(orchestrator *service.Orchestrator, dispatcher *service.Dispatcher, logger *logrus.Logger) *ComposeHandler {
	return &ComposeHandler{orchestrator: orchestrator, dispatcher: dispatcher, logger: logger}
}

type generateRequest struct {
	PhotoBase64 string `json:"photoBase64"`
	InspoBase64 string `json:"inspoBase64"`
	UserAPIKey  string `json:"userApiKey"`
}

// GET /api/health
func (h *ComposeHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"hasServerKey": h.orchestrator.HasServerKey(),
	})
}

// Generate 单次合成：一张照片 + 一张灵感图
// POST /api/generate, JSON {photoBase64, inspoBase64, userApiKey?} or
// multipart with "photo" and "inspiration" file parts.
func (h *ComposeHandler) Generate(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"success": false, "error": "Method not allowed"})
		return
	}

	pair, callerKey, err := h.parseGenerate(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if callerKey == "" {
		callerKey = middleware.CallerCredential(c)
	}

	// 与批量任务共用同一个 worker，同一时刻只有一个 provider 调用
	outcome, err := h.dispatcher.Generate(c.Request.Context(), pair, callerKey)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{
		"success":      true,
		"analysis":     outcome.AnalysisText,
		"textResponse": outcome.RawText,
		"imageUrl":     nil,
	}
	if outcome.HasImage() {
		resp["imageUrl"] = outcome.ImageURL
	}
	if outcome.UsedFallback {
		resp["usedFallback"] = true
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ComposeHandler) parseGenerate(c *gin.Context) (models.Pair, string, error) {
	var (
		pair models.Pair
		key  string
		err  error
	)
	if isMultipart(c.GetHeader("Content-Type")) {
		pair, key, err = h.parseMultipart(c)
	} else {
		var req generateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.WithError(err).Debug("generate: bad json body")
			return models.Pair{}, "", invalidInput(err, "send both images as JSON (photoBase64, inspoBase64)")
		}
		key = strings.TrimSpace(req.UserAPIKey)
		if pair.Photo, err = assetFromText(req.PhotoBase64, ""); err == nil {
			pair.Inspiration, err = assetFromText(req.InspoBase64, "")
		}
	}
	if err != nil {
		return models.Pair{}, "", err
	}
	pair.Photo.ID, pair.Inspiration.ID = "photo", "inspiration"
	return pair, key, nil
}

func (h *ComposeHandler) parseMultipart(c *gin.Context) (models.Pair, string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		h.logger.WithError(err).Debug("generate: bad multipart body")
		return models.Pair{}, "", invalidInput(err, "malformed multipart body")
	}
	var pair models.Pair
	if pair.Photo, err = formAsset(form, []string{"photo"}, []string{"photoBase64", "photo"}); err != nil {
		return models.Pair{}, "", err
	}
	if pair.Inspiration, err = formAsset(form, []string{"inspiration", "inspo"}, []string{"inspoBase64", "inspiration"}); err != nil {
		return models.Pair{}, "", err
	}
	return pair, firstValue(form, "userApiKey"), nil
}
