package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"custeio/internal/core"
	"custeio/internal/insights"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// StatusCode returns the status the builder will write.
func (b *JSONResponseBuilder) StatusCode() int {
	return b.statusCode
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message, kind string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: message, Kind: kind})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message, "bad_request")
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message, "not_found")
}

// TooManyRequestsError creates a 429 response asking the client to wait.
func TooManyRequestsError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, message, "rate_limited").
		Header("Retry-After", "60")
}

// LoadErrorResponse maps a pipeline error to a response. Data source
// failures are upstream problems and answer 502 with their kind.
func LoadErrorResponse(err error) *JSONResponseBuilder {
	kind := core.ErrorKind(err)
	switch {
	case IsParamError(err), errors.Is(err, core.ErrInvalidYear):
		return BadRequestError(err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorResponse(http.StatusServiceUnavailable, "dataset load did not finish", kind)
	case kind == core.KindInternal:
		return ErrorResponse(http.StatusInternalServerError, "internal error", kind)
	}
	return ErrorResponse(http.StatusBadGateway, err.Error(), kind)
}

// InsightsErrorResponse maps an insights client error to a response.
func InsightsErrorResponse(err error) *JSONResponseBuilder {
	var apiErr *insights.APIError
	switch {
	case errors.Is(err, insights.ErrNotConfigured):
		return ErrorResponse(http.StatusServiceUnavailable, "insights are not configured", "insights_not_configured")
	case errors.Is(err, insights.ErrEmptyDataset):
		return ErrorResponse(http.StatusUnprocessableEntity, "no records match the filter", "empty_dataset")
	case errors.Is(err, insights.ErrRateLimited):
		return TooManyRequestsError("insights provider is rate limiting requests")
	case errors.Is(err, insights.ErrConnection):
		return ErrorResponse(http.StatusServiceUnavailable, "insights provider unreachable", "insights_connection")
	case errors.Is(err, insights.ErrAuthentication):
		return ErrorResponse(http.StatusBadGateway, "insights provider rejected the credentials", "insights_authentication")
	case errors.As(err, &apiErr), errors.Is(err, insights.ErrEmptyResponse):
		return ErrorResponse(http.StatusBadGateway, err.Error(), "insights_upstream")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorResponse(http.StatusServiceUnavailable, "insights request did not finish", core.KindCanceled)
	}
	return ErrorResponse(http.StatusInternalServerError, "internal error", core.KindInternal)
}
