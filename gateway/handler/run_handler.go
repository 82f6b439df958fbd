package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/gateway/middleware"
	"github.com/RigelNana/backdrop/services/compose-service/models"
	"github.com/RigelNana/backdrop/services/compose-service/service"
)

type RunHandler struct {
	dispatcher *service.Dispatcher
	logger     *logrus.Logger
}

func NewRunHandler(dispatcher *service.Dispatcher, logger *logrus.Logger) *RunHandler {
	return &RunHandler{dispatcher: dispatcher, logger: logger}
}

func (h *RunHandler) runID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

// GET /api/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	run, err := h.dispatcher.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": run})
}

// Events 以 SSE 推送运行进度：先发送当前快照，再转发后续事件，最后一条 final=true
// GET /api/runs/:id/events
func (h *RunHandler) Events(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	// 先订阅再读快照，避免丢失两者之间的事件
	events, release := h.dispatcher.Hub().Subscribe(id.String())
	defer release()

	run, err := h.dispatcher.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for i, res := range run.Results.Data() {
		h.send(c, service.ProgressEvent{RunID: id.String(), Index: i, Result: res})
	}
	if finished(run.Status) {
		h.send(c, service.ProgressEvent{RunID: id.String(), Index: -1, Final: true, RunStatus: run.Status})
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				// 事件缓冲已满时可能错过 final，重新读取一次状态
				status := models.RunStatusCompleted
				if latest, err := h.dispatcher.Get(id); err == nil {
					status = latest.Status
				}
				h.send(c, service.ProgressEvent{RunID: id.String(), Index: -1, Final: true, RunStatus: status})
				return
			}
			h.send(c, ev)
			if ev.Final {
				return
			}
		}
	}
}

func (h *RunHandler) send(c *gin.Context, ev service.ProgressEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).Error("marshal progress event")
		return
	}
	_, _ = c.Writer.WriteString("data: " + string(b) + "\n\n")
	c.Writer.Flush()
}

func finished(status string) bool {
	return status == models.RunStatusCompleted || status == models.RunStatusCanceled
}

// Retry 重新生成某一对，创建新的运行记录，旧记录保持不变
// POST /api/runs/:id/pairs/:index/retry
func (h *RunHandler) Retry(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "index must be a number")
		return
	}
	var req struct {
		UserAPIKey string `json:"userApiKey"`
	}
	if !bindOptionalJSON(c, &req) {
		return
	}
	key := strings.TrimSpace(req.UserAPIKey)
	if key == "" {
		key = middleware.CallerCredential(c)
	}

	run, err := h.dispatcher.Retry(id, index, key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "data": gin.H{
		"run_id":   run.ID,
		"status":   run.Status,
		"retry_of": id,
	}})
}

// DELETE /api/runs/:id
func (h *RunHandler) Cancel(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	if _, err := h.dispatcher.Get(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"canceled": h.dispatcher.Cancel(id)}})
}
