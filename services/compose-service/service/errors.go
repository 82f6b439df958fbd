package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration_error"
	KindValidation        ErrorKind = "validation_error"
	KindProvider          ErrorKind = "provider_error"
	KindFallbackExhausted ErrorKind = "fallback_exhausted"
)

// Provider error codes that are not passed through from the provider itself.
const (
	CodeUnauthorized = "unauthorized"
	CodeRateLimited  = "rate_limited"
	CodeTimeout      = "timeout"
	CodeBadResponse  = "bad_response"
	CodeCanceled     = "canceled"
	CodeUnknown      = "unknown"
)

var (
	ErrNoCredential      = errors.New("no API key configured: supply userApiKey or set OPENAI_API_KEY")
	ErrFallbackExhausted = errors.New("image fallback produced no image")
)

// GenerationError is the typed failure of a generation call or a run.
type GenerationError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status a caller should see for this error.
func (e *GenerationError) StatusCode() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	switch e.Kind {
	case KindConfiguration, KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// IsKind reports whether err is a *GenerationError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Kind == kind
}

// AsGenerationError converts any error into a *GenerationError. Unknown errors
// are treated as provider failures.
func AsGenerationError(err error) *GenerationError {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	return providerError(err)
}

func validationError(format string, args ...any) *GenerationError {
	return &GenerationError{
		Kind:       KindValidation,
		Code:       string(KindValidation),
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusBadRequest,
	}
}

func configurationError(err error) *GenerationError {
	return &GenerationError{
		Kind:       KindConfiguration,
		Code:       string(KindConfiguration),
		Message:    err.Error(),
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

func fallbackError(err error) *GenerationError {
	msg := ErrFallbackExhausted.Error()
	if err != nil {
		msg = err.Error()
	}
	return &GenerationError{
		Kind:    KindFallbackExhausted,
		Code:    string(KindFallbackExhausted),
		Message: msg,
		Err:     errors.Join(ErrFallbackExhausted, err),
	}
}

// providerError maps transport and API failures into the provider kind.
func providerError(err error) *GenerationError {
	ge := &GenerationError{
		Kind:       KindProvider,
		Code:       CodeUnknown,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		ge.Code = CodeTimeout
		ge.Message = "provider call timed out"
		ge.HTTPStatus = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		ge.Code = CodeCanceled
		ge.Message = "request canceled"
	case errors.As(err, &apiErr):
		ge.Message = apiErr.Message
		ge.HTTPStatus = statusFor(apiErr.HTTPStatusCode)
		ge.Code = codeFor(apiErr.HTTPStatusCode, apiErr.Code)
	case errors.As(err, &reqErr):
		ge.HTTPStatus = statusFor(reqErr.HTTPStatusCode)
		ge.Code = codeFor(reqErr.HTTPStatusCode, nil)
		if reqErr.Err != nil {
			ge.Message = reqErr.Err.Error()
		}
	}
	if ge.Message == "" {
		ge.Message = err.Error()
	}
	return ge
}

func statusFor(upstream int) int {
	switch upstream {
	case http.StatusUnauthorized, http.StatusForbidden:
		return http.StatusUnauthorized
	case http.StatusTooManyRequests:
		return http.StatusTooManyRequests
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// codeFor prefers the provider's own code (e.g. "invalid_api_key") and falls
// back to one derived from the status.
func codeFor(upstream int, providerCode any) string {
	switch c := providerCode.(type) {
	case string:
		if strings.TrimSpace(c) != "" {
			return c
		}
	case int:
		return fmt.Sprintf("%d", c)
	case float64:
		return fmt.Sprintf("%d", int(c))
	}
	switch statusFor(upstream) {
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusGatewayTimeout:
		return CodeTimeout
	}
	return CodeUnknown
}

// ResolveCredential picks the caller's key over the configured one.
func ResolveCredential(caller, configured string) (string, error) {
	if key := strings.TrimSpace(caller); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	return "", configurationError(ErrNoCredential)
}
