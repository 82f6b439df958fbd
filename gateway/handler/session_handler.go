package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/gateway/middleware"
	"github.com/RigelNana/backdrop/services/compose-service/models"
	"github.com/RigelNana/backdrop/services/compose-service/service"
)

type SessionHandler struct {
	sessions   *service.SessionService
	dispatcher *service.Dispatcher
	logger     *logrus.Logger
}

func NewSessionHandler(sessions *service.SessionService, dispatcher *service.Dispatcher, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, dispatcher: dispatcher, logger: logger}
}

// assetView 返回给前端的素材信息，不包含图片内容
type assetView struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Size     int    `json:"size"`
}

type pairView struct {
	Index         int    `json:"index"`
	PhotoID       string `json:"photo_id"`
	InspirationID string `json:"inspiration_id"`
}

type sessionView struct {
	ID                  string      `json:"id"`
	Photos              []assetView `json:"photos"`
	Inspirations        []assetView `json:"inspirations"`
	Pairs               []pairView  `json:"pairs"`
	SelectedPhoto       string      `json:"selected_photo,omitempty"`
	SelectedInspiration string      `json:"selected_inspiration,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
}

func toAssetView(a models.ImageAsset) assetView {
	return assetView{ID: a.ID, Name: a.OriginalName, MIMEType: a.MIMEType, Size: a.Size()}
}

func toAssetViews(assets []models.ImageAsset) []assetView {
	out := make([]assetView, 0, len(assets))
	for _, a := range assets {
		out = append(out, toAssetView(a))
	}
	return out
}

func toSessionView(s *service.Session) sessionView {
	pairs := make([]pairView, 0, len(s.Pairs))
	for i, p := range s.Pairs {
		pairs = append(pairs, pairView{Index: i, PhotoID: p.Photo.ID, InspirationID: p.Inspiration.ID})
	}
	return sessionView{
		ID:                  s.ID,
		Photos:              toAssetViews(s.Photos),
		Inspirations:        toAssetViews(s.Inspirations),
		Pairs:               pairs,
		SelectedPhoto:       s.SelectedPhoto,
		SelectedInspiration: s.SelectedInspiration,
		CreatedAt:           s.CreatedAt,
	}
}

// POST /api/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	sess := h.sessions.Create()
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": toSessionView(sess)})
}

// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": toSessionView(sess)})
}

// Delete 结束会话：丢弃素材以及该会话所有运行记录中的图片
// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.Delete(id); err != nil {
		writeError(c, err)
		return
	}
	if err := h.dispatcher.EndSession(id); err != nil {
		h.logger.WithError(err).WithField("session_id", id).Error("failed to discard session runs")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// POST /api/sessions/:id/photos
func (h *SessionHandler) AddPhotos(c *gin.Context) {
	h.addAssets(c, service.AssetPhoto)
}

// POST /api/sessions/:id/inspirations
func (h *SessionHandler) AddInspirations(c *gin.Context) {
	h.addAssets(c, service.AssetInspiration)
}

type assetRequest struct {
	DataURL string `json:"data_url"`
	Name    string `json:"name"`
}

// addAssets 支持 multipart（可重复的 file 字段）和 JSON 两种上传方式
func (h *SessionHandler) addAssets(c *gin.Context, kind service.AssetKind) {
	var uploads []models.ImageAsset
	if isMultipart(c.GetHeader("Content-Type")) {
		form, err := c.MultipartForm()
		if err != nil {
			writeError(c, invalidInput(err, "malformed multipart body"))
			return
		}
		for _, fh := range form.File["file"] {
			asset, err := assetFromFile(fh)
			if err != nil {
				writeError(c, err)
				return
			}
			uploads = append(uploads, asset)
		}
	} else {
		var req assetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, invalidInput(err, "invalid input"))
			return
		}
		if strings.TrimSpace(req.DataURL) != "" {
			asset, err := assetFromText(req.DataURL, req.Name)
			if err != nil {
				writeError(c, err)
				return
			}
			uploads = append(uploads, asset)
		}
	}
	if len(uploads) == 0 {
		badRequest(c, "no image provided")
		return
	}

	id := c.Param("id")
	added := make([]assetView, 0, len(uploads))
	for _, a := range uploads {
		stored, err := h.sessions.AddAsset(id, kind, a)
		if err != nil {
			writeError(c, err)
			return
		}
		added = append(added, toAssetView(stored))
	}
	h.logger.WithFields(logrus.Fields{"session_id": id, "kind": kind, "count": len(added)}).Debug("assets added")
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": added})
}

// DELETE /api/sessions/:id/photos/:asset_id
func (h *SessionHandler) RemovePhoto(c *gin.Context) {
	h.removeAsset(c, service.AssetPhoto)
}

// DELETE /api/sessions/:id/inspirations/:asset_id
func (h *SessionHandler) RemoveInspiration(c *gin.Context) {
	h.removeAsset(c, service.AssetInspiration)
}

func (h *SessionHandler) removeAsset(c *gin.Context, kind service.AssetKind) {
	if err := h.sessions.RemoveAsset(c.Param("id"), kind, c.Param("asset_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// POST /api/sessions/:id/select
func (h *SessionHandler) Select(c *gin.Context) {
	var req struct {
		Kind    string `json:"kind" binding:"required"`
		AssetID string `json:"asset_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "kind and asset_id are required")
		return
	}
	res, err := h.sessions.Select(c.Param("id"), service.AssetKind(req.Kind), req.AssetID)
	if err != nil {
		writeError(c, err)
		return
	}
	data := gin.H{"session": toSessionView(res.Session), "paired": false}
	if res.Paired != nil {
		data["paired"] = true
		data["pair"] = pairView{
			Index:         len(res.Session.Pairs) - 1,
			PhotoID:       res.Paired.Photo.ID,
			InspirationID: res.Paired.Inspiration.ID,
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// POST /api/sessions/:id/pairs
func (h *SessionHandler) AddPair(c *gin.Context) {
	var req struct {
		PhotoID       string `json:"photo_id" binding:"required"`
		InspirationID string `json:"inspiration_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "photo_id and inspiration_id are required")
		return
	}
	id := c.Param("id")
	if _, err := h.sessions.AddPair(id, req.PhotoID, req.InspirationID); err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.sessions.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": toSessionView(sess)})
}

// DELETE /api/sessions/:id/pairs/:index
func (h *SessionHandler) RemovePair(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "index must be a number")
		return
	}
	if err := h.sessions.RemovePair(c.Param("id"), index); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StartRun 异步生成当前会话的全部配对
// POST /api/sessions/:id/runs
func (h *SessionHandler) StartRun(c *gin.Context) {
	var req struct {
		UserAPIKey string `json:"userApiKey"`
	}
	// 请求体可以为空
	if !bindOptionalJSON(c, &req) {
		return
	}

	id := c.Param("id")
	pairs, err := h.sessions.Pairs(id)
	if err != nil {
		writeError(c, err)
		return
	}
	key := strings.TrimSpace(req.UserAPIKey)
	if key == "" {
		key = middleware.CallerCredential(c)
	}

	run, err := h.dispatcher.Submit(id, models.RunSourceSession, pairs, key, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "data": gin.H{
		"run_id": run.ID,
		"status": run.Status,
		"total":  run.Total,
	}})
}

// ListRuns 返回会话的历史运行，最新的在前
// GET /api/sessions/:id/runs
func (h *SessionHandler) ListRuns(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.sessions.Get(id); err != nil {
		writeError(c, err)
		return
	}
	runs, err := h.dispatcher.ListBySession(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": runs})
}
