package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewJSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentFetcher, Format: "json", Output: &buf})

	l.Info("Month fetched", FieldYear, 2023)
	l.Debug("hidden")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec[FieldComponent] != ComponentFetcher || rec[FieldYear] != float64(2023) {
		t.Errorf("record = %v", rec)
	}
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentHTTP, Output: &buf}).WithComponent(ComponentCache)

	l.Info("hit")
	out := buf.String()
	if strings.Count(out, FieldComponent+"=") != 1 || !strings.Contains(out, "component=cache") {
		t.Errorf("output = %q", out)
	}
	if l.Component() != ComponentCache {
		t.Errorf("Component() = %q", l.Component())
	}
}

func TestMiddlewareStoresRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentHTTP, Output: &buf})

	h := Middleware(base, func(*http.Request) string { return "req_1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Errorf("FromContext() = %+v", l)
	}
}

func TestFieldsToSlice(t *testing.T) {
	s := NewFields().WithComponent(ComponentPipeline).WithLoad(2022, true).ToSlice()
	if len(s) != 6 {
		t.Fatalf("ToSlice() len = %d, want 6", len(s))
	}
}
