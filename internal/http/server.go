package http

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"custeio/internal/core"
	"custeio/internal/insights"
	"custeio/internal/log"
	"custeio/internal/middleware/ratelimit"
	"custeio/internal/middleware/security"
	"custeio/internal/middleware/trace"
	"custeio/internal/pipeline"
)

// Loader loads the dataset of a year.
type Loader interface {
	Load(ctx context.Context, req pipeline.Request) (core.Dataset, error)
}

// CacheLister reports which years are cached.
type CacheLister interface {
	Cached(ctx context.Context) ([]int, error)
}

// Summarizer produces natural language insights for a dataset.
type Summarizer interface {
	Configured() bool
	Summarize(ctx context.Context, ds core.Dataset, f core.Filter) (insights.Result, error)
}

// WarmPublisher hands a refresh to the worker queue.
type WarmPublisher interface {
	PublishWarmRequest(ctx context.Context, year int, force bool) error
}

// Deps are the collaborators of the server. Publisher may be nil, in which
// case refreshes run in the request.
type Deps struct {
	Loader    Loader
	Cache     CacheLister
	Insights  Summarizer
	Publisher WarmPublisher
	Years     []int
	Logger    *log.Logger

	// PostsPerMinute limits POST requests per client IP.
	PostsPerMinute int
}

type Server struct {
	http.Server
	loader    Loader
	cache     CacheLister
	insights  Summarizer
	publisher WarmPublisher
	years     []int

	limiter *ratelimit.Limiter
	tracer  *trace.Middleware
	ips     *security.IPExtractor
	started time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}
	years := slices.Clone(deps.Years)
	slices.Sort(years)

	s := &Server{
		loader:    deps.Loader,
		cache:     deps.Cache,
		insights:  deps.Insights,
		publisher: deps.Publisher,
		years:     years,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.PostsPerMinute}),
		ips:       security.NewIPExtractor(),
		started:   time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.ips.ClientIP)

	limited := s.limiter.Middleware(s.ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldComponent, log.ComponentRateLimit,
			log.FieldRequestID, trace.RequestID(r),
			log.FieldClientIP, s.ips.ClientIP(r),
			log.FieldPath, r.URL.Path)
		TooManyRequestsError("rate limit exceeded, try again later").Write(w)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/years", s.handleYears)
	mux.HandleFunc("GET /api/datasets/{year}", s.handleDataset)
	mux.HandleFunc("GET /api/datasets/{year}/records", s.handleRecords)
	mux.HandleFunc("GET /api/datasets/{year}/breakdown", s.handleBreakdown)
	mux.Handle("POST /api/datasets/{year}/insights", limited(http.HandlerFunc(s.handleInsights)))
	mux.Handle("POST /api/datasets/{year}/refresh", limited(http.HandlerFunc(s.handleRefresh)))

	var handler http.Handler = mux
	handler = log.Middleware(logger, trace.RequestID)(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s
}

// Shutdown stops the limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) yearAvailable(year int) bool {
	_, ok := slices.BinarySearch(s.years, year)
	return ok
}
