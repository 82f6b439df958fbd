package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RigelNana/backdrop/services/compose-service/codec"
	"github.com/RigelNana/backdrop/services/compose-service/service"
)

// writeError maps service errors onto the {success:false,error,code} shape.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	var ge *service.GenerationError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge), errors.Is(err, service.ErrAssetTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "too_large"
	case errors.As(err, &ge):
		c.JSON(ge.StatusCode(), gin.H{"success": false, "error": ge.Message, "code": ge.Code})
		return
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrAssetNotFound),
		errors.Is(err, service.ErrRunNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrUnknownKind),
		errors.Is(err, service.ErrPairOutOfRange),
		errors.Is(err, codec.ErrReferenceNotAllowed):
		status, code = http.StatusBadRequest, string(service.KindValidation)
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrDispatcherClosed):
		status, code = http.StatusServiceUnavailable, "unavailable"
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error(), "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg, "code": string(service.KindValidation)})
}

// invalidInput marks a request decoding failure as the caller's fault. Body
// limit errors pass through so they still answer 413.
func invalidInput(err error, msg string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return &service.GenerationError{
		Kind:       service.KindValidation,
		Code:       string(service.KindValidation),
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

// bindOptionalJSON decodes a JSON body that may be absent. It writes the
// error response and returns false for anything but an empty body.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(c, invalidInput(err, "invalid JSON body"))
	return false
}
