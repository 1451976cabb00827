package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"custeio/internal/core"
	"custeio/internal/insights"
)

func TestJSONResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "value").
		Body(map[string]int{"n": 1}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Header().Get("X-Custom") != "value" {
		t.Error("custom header not set")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != "{\"n\":1}\n" {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestJSONResponseBuilderNoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestLoadErrorResponse(t *testing.T) {
	month := core.MonthKey{Year: 2023, Month: 3}
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"transport", &core.TransportError{Month: month, Attempts: 10, Err: errors.New("reset")}, http.StatusBadGateway, core.KindTransport},
		{"status", &core.UnexpectedStatusError{Month: month, Attempts: 10, StatusCode: 500}, http.StatusBadGateway, core.KindUnexpectedStatus},
		{"schema", fmt.Errorf("normalize: %w", &core.SchemaMismatchError{Month: month, Missing: []string{"valor"}}), http.StatusBadGateway, core.KindSchemaMismatch},
		{"archive", &core.ArchiveError{Month: month, Err: errors.New("zip: not a valid zip file")}, http.StatusBadGateway, core.KindArchive},
		{"invariant", fmt.Errorf("%w: period out of year", core.ErrInvariant), http.StatusBadGateway, core.KindInvariant},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, core.KindCanceled},
		{"invalid year", core.ErrInvalidYear, http.StatusBadRequest, "bad_request"},
		{"internal", errors.New("disk full"), http.StatusInternalServerError, core.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			LoadErrorResponse(tt.err).Write(w)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Kind != tt.wantKind || body.Error == "" {
				t.Errorf("body = %+v, want kind %q", body, tt.wantKind)
			}
		})
	}
}

func TestInsightsErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not configured", insights.ErrNotConfigured, http.StatusServiceUnavailable},
		{"empty dataset", insights.ErrEmptyDataset, http.StatusUnprocessableEntity},
		{"rate limited", fmt.Errorf("%w: slow down", insights.ErrRateLimited), http.StatusTooManyRequests},
		{"connection", fmt.Errorf("%w: refused", insights.ErrConnection), http.StatusServiceUnavailable},
		{"authentication", fmt.Errorf("%w: bad key", insights.ErrAuthentication), http.StatusBadGateway},
		{"api error", &insights.APIError{StatusCode: 500, Message: "overloaded"}, http.StatusBadGateway},
		{"empty response", insights.ErrEmptyResponse, http.StatusBadGateway},
		{"canceled", context.Canceled, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			InsightsErrorResponse(tt.err).Write(w)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusTooManyRequests && w.Header().Get("Retry-After") != "60" {
				t.Error("rate limited response should carry Retry-After")
			}
		})
	}
}
