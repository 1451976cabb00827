package http

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"custeio/internal/core"
	"custeio/internal/insights"
	"custeio/internal/log"
	"custeio/internal/middleware/ratelimit"
	"custeio/internal/middleware/trace"
	"custeio/internal/pipeline"
)

const readyTimeout = 5 * time.Second

type yearStatus struct {
	Year   int  `json:"year"`
	Cached bool `json:"cached"`
}

type datasetResponse struct {
	Year          int                 `json:"year"`
	Filter        core.Filter         `json:"filter"`
	Records       int                 `json:"records"`
	Indicators    core.Indicators     `json:"indicators"`
	MonthlyTotals []core.PeriodTotal  `json:"monthly_totals"`
	Options       map[string][]string `json:"options"`
}

type recordsResponse struct {
	Year    int           `json:"year"`
	Filter  core.Filter   `json:"filter"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	Columns []string      `json:"columns"`
	Records []core.Record `json:"records"`
}

type breakdownResponse struct {
	Year      int               `json:"year"`
	Filter    core.Filter       `json:"filter"`
	Dimension string            `json:"dimension"`
	Totals    []core.GroupTotal `json:"totals"`
}

type insightsResponse struct {
	Year     int             `json:"year"`
	Filter   core.Filter     `json:"filter"`
	Insights insights.Result `json:"insights"`
}

type refreshResponse struct {
	Year    int    `json:"year"`
	Status  string `json:"status"`
	Records *int   `json:"records,omitempty"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks the cache store and reports optional collaborators.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := make(map[string]any)

	if cached, err := s.cache.Cached(ctx); err != nil {
		checks["cache"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		code = http.StatusServiceUnavailable
	} else {
		checks["cache"] = "ok"
		checks["cached_years"] = cached
	}

	checks["insights"] = "not_configured"
	if s.insights != nil && s.insights.Configured() {
		checks["insights"] = "ok"
	}
	checks["refresh"] = "synchronous"
	if s.publisher != nil {
		checks["refresh"] = "queued"
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status": status,
		"checks": checks,
		"metrics": struct {
			Requests  trace.Metrics     `json:"requests"`
			RateLimit ratelimit.Metrics `json:"rate_limit"`
		}{s.tracer.GetMetrics(), s.limiter.GetMetrics()},
	}).Write(w)
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	cached, err := s.cache.Cached(r.Context())
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Cannot list cached years", log.FieldError, err.Error())
	}

	out := make([]yearStatus, 0, len(s.years))
	for _, y := range s.years {
		out = append(out, yearStatus{Year: y, Cached: slices.Contains(cached, y)})
	}
	NewJSONResponse().Body(map[string]any{"years": out}).Write(w)
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	ds, f, ok := s.loadFiltered(w, r)
	if !ok {
		return
	}
	view := ds.Filter(f)

	NewJSONResponse().Body(datasetResponse{
		Year:          ds.Year,
		Filter:        f,
		Records:       view.Len(),
		Indicators:    view.Indicators(),
		MonthlyTotals: nonNil(view.MonthlyTotals()),
		Options:       ds.CascadingOptions(f),
	}).Write(w)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	page, err := ParsePage(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ds, f, ok := s.loadFiltered(w, r)
	if !ok {
		return
	}
	view := ds.Filter(f)
	start, end := page.Bounds(view.Len())

	columns := append([]string{core.ColPeriod}, view.VaryingDimensions()...)
	columns = append(columns, core.ColAmount)

	NewJSONResponse().Body(recordsResponse{
		Year:    ds.Year,
		Filter:  f,
		Total:   view.Len(),
		Limit:   page.Limit,
		Offset:  page.Offset,
		Columns: columns,
		Records: view.Records[start:end],
	}).Write(w)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	dim, err := ParseDimension(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ds, f, ok := s.loadFiltered(w, r)
	if !ok {
		return
	}
	totals, err := ds.Filter(f).SumBy(dim)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	NewJSONResponse().Body(breakdownResponse{
		Year:      ds.Year,
		Filter:    f,
		Dimension: dim,
		Totals:    nonNil(totals),
	}).Write(w)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.insights == nil || !s.insights.Configured() {
		InsightsErrorResponse(insights.ErrNotConfigured).Write(w)
		return
	}
	year, ok := s.availableYear(w, r)
	if !ok {
		return
	}
	req, err := DecodeInsightsRequest(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ds, ok := s.load(w, r, pipeline.Request{Year: year})
	if !ok {
		return
	}

	res, err := s.insights.Summarize(ctx, ds, req.Filter)
	if err != nil {
		resp := InsightsErrorResponse(err)
		log.FromContext(ctx).WarnContext(ctx, "Insights request failed",
			log.NewFields().
				WithOperation(log.OpSummarize).
				WithError(err).
				WithHTTPResponse(resp.StatusCode(), 0, false).
				ToSlice()...)
		resp.Write(w)
		return
	}

	NewJSONResponse().Body(insightsResponse{Year: year, Filter: req.Filter, Insights: res}).Write(w)
}

// handleRefresh queues a forced reload when a worker queue is configured
// and reloads in the request otherwise.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	year, ok := s.availableYear(w, r)
	if !ok {
		return
	}

	if s.publisher != nil {
		if err := s.publisher.PublishWarmRequest(ctx, year, true); err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "Failed to queue refresh",
				log.FieldYear, year,
				log.FieldError, err.Error())
			ErrorResponse(http.StatusServiceUnavailable, "refresh could not be queued", "queue_unavailable").Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusAccepted).Body(refreshResponse{Year: year, Status: "queued"}).Write(w)
		return
	}

	ds, ok := s.load(w, r, pipeline.Request{Year: year, ForceRefresh: true})
	if !ok {
		return
	}
	n := ds.Len()
	NewJSONResponse().Body(refreshResponse{Year: year, Status: "refreshed", Records: &n}).Write(w)
}

// availableYear parses {year} and answers 400 or 404 itself when it is
// unusable.
func (s *Server) availableYear(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := ParseYear(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return 0, false
	}
	if !s.yearAvailable(year) {
		NotFoundError(fmt.Sprintf("year %d is not available", year)).Write(w)
		return 0, false
	}
	return year, true
}

func (s *Server) load(w http.ResponseWriter, r *http.Request, req pipeline.Request) (core.Dataset, bool) {
	ctx := r.Context()
	ds, err := s.loader.Load(ctx, req)
	if err != nil {
		resp := LoadErrorResponse(err)
		log.FromContext(ctx).WarnContext(ctx, "Dataset request failed",
			log.FieldYear, req.Year,
			log.FieldErrorKind, core.ErrorKind(err),
			log.FieldStatusCode, resp.StatusCode())
		resp.Write(w)
		return core.Dataset{}, false
	}
	return ds, true
}

// loadFiltered resolves the year and the query filter, then loads.
func (s *Server) loadFiltered(w http.ResponseWriter, r *http.Request) (core.Dataset, core.Filter, bool) {
	year, ok := s.availableYear(w, r)
	if !ok {
		return core.Dataset{}, core.Filter{}, false
	}
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return core.Dataset{}, core.Filter{}, false
	}
	ds, ok := s.load(w, r, pipeline.Request{Year: year})
	return ds, f, ok
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
