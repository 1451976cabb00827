// Package raiox downloads the monthly administrative expense archives
// published by the Raio-X repository.
//
// Months are fetched strictly in calendar order, one request at a time.
// A 404 means the month is not published yet and ends the year without
// error; any other failure is retried under a Policy and becomes fatal once
// the attempts are spent.
package raiox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/sethvargo/go-retry"

	"custeio/internal/core"
	"custeio/internal/log"
)

// DefaultTimeout bounds a single attempt, body included.
const DefaultTimeout = 60 * time.Second

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Progress observes which month the fetch loop is working on.
type Progress interface {
	MonthStarted(ctx context.Context, k core.MonthKey)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(ctx context.Context, k core.MonthKey)

func (f ProgressFunc) MonthStarted(ctx context.Context, k core.MonthKey) { f(ctx, k) }

// RawTable is one month's parsed source table, before normalization.
// Delimiter is the field separator of the source file; ';' files write
// numbers with a decimal comma.
type RawTable struct {
	Month     core.MonthKey
	Frame     dataframe.DataFrame
	Delimiter rune
}

// OutcomeKind tags the result of fetching one month.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeNotPublished
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeNotPublished:
		return "not_published"
	case OutcomeFatal:
		return "fatal"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// MonthOutcome is the tagged result of one month. Table is set only for
// OutcomeOK and Err only for OutcomeFatal.
type MonthOutcome struct {
	Kind     OutcomeKind
	Month    core.MonthKey
	Attempts int
	Table    RawTable
	Err      error
}

// Config holds the fetcher settings. Zero values fall back to defaults.
type Config struct {
	BaseURL string
	CSVFile string
	Timeout time.Duration
	Policy  Policy
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithProgress registers a progress observer.
func WithProgress(p Progress) Option {
	return func(f *Fetcher) { f.progress = p }
}

// Fetcher downloads and parses the monthly archives of a year.
type Fetcher struct {
	doer     Doer
	baseURL  string
	csvFile  string
	timeout  time.Duration
	policy   Policy
	progress Progress
}

// NewFetcher builds a Fetcher. A nil doer uses a plain *http.Client; the
// per-attempt timeout is applied through the request context.
func NewFetcher(doer Doer, cfg Config, opts ...Option) *Fetcher {
	if doer == nil {
		doer = &http.Client{}
	}
	f := &Fetcher{
		doer:    doer,
		baseURL: cfg.BaseURL,
		csvFile: cfg.CSVFile,
		timeout: cfg.Timeout,
		policy:  cfg.Policy,
	}
	if f.baseURL == "" {
		f.baseURL = DefaultBaseURL
	}
	if f.csvFile == "" {
		f.csvFile = DefaultCSVFile
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.policy.Validate() != nil {
		f.policy = DefaultPolicy()
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch returns one table per published month of year, in calendar order.
// It stops at the first month that is not published. Any fatal month
// discards everything fetched so far.
func (f *Fetcher) Fetch(ctx context.Context, year int) ([]RawTable, error) {
	if _, err := core.NewMonthKey(year, 1); err != nil {
		return nil, err
	}
	start := time.Now()
	var tables []RawTable
	for month := 1; month <= 12; month++ {
		k := core.MonthKey{Year: year, Month: month}
		if f.progress != nil {
			f.progress.MonthStarted(ctx, k)
		}

		out := f.FetchMonth(ctx, k)
		switch out.Kind {
		case OutcomeOK:
			tables = append(tables, out.Table)
			slog.DebugContext(ctx, "Fetched month",
				log.FieldComponent, log.ComponentFetcher,
				log.FieldMonth, k.String(),
				"rows", out.Table.Frame.Nrow(),
				"attempts", out.Attempts)
		case OutcomeNotPublished:
			slog.InfoContext(ctx, "Month not published, stopping",
				log.FieldComponent, log.ComponentFetcher,
				log.FieldMonth, k.String(),
				"months_fetched", len(tables),
				log.FieldDuration, time.Since(start).Milliseconds())
			return tables, nil
		case OutcomeFatal:
			slog.ErrorContext(ctx, "Month fetch failed",
				log.FieldComponent, log.ComponentFetcher,
				log.FieldMonth, k.String(),
				"attempts", out.Attempts,
				log.FieldError, out.Err)
			return nil, out.Err
		}
	}
	slog.InfoContext(ctx, "Fetched full year",
		log.FieldComponent, log.ComponentFetcher,
		log.FieldOperation, log.OpFetch,
		log.FieldYear, year,
		log.FieldDuration, time.Since(start).Milliseconds())
	return tables, nil
}

var errNotPublished = errors.New("not published")

// statusFailure and transportFailure carry the last retryable error of a
// month until attempts are exhausted.
type statusFailure struct{ code int }

func (e *statusFailure) Error() string { return fmt.Sprintf("status %d", e.code) }

type transportFailure struct{ err error }

func (e *transportFailure) Error() string { return e.err.Error() }
func (e *transportFailure) Unwrap() error { return e.err }

// FetchMonth downloads and parses a single month under the retry policy.
func (f *Fetcher) FetchMonth(ctx context.Context, k core.MonthKey) MonthOutcome {
	url := ArtifactURL(f.baseURL, k)
	var body []byte
	attempts, err := f.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		b, err := f.get(ctx, url)
		if err == nil {
			body = b
			return nil
		}
		var sf *statusFailure
		var tf *transportFailure
		if errors.As(err, &sf) || errors.As(err, &tf) {
			slog.WarnContext(ctx, "Month fetch attempt failed",
				log.FieldComponent, log.ComponentFetcher,
				log.FieldMonth, k.String(),
				"attempt", attempt,
				"max_attempts", f.policy.MaxAttempts,
				log.FieldError, err)
			return retry.RetryableError(err)
		}
		return err
	})

	out := MonthOutcome{Month: k, Attempts: attempts}
	if err != nil {
		var sf *statusFailure
		var tf *transportFailure
		switch {
		case errors.Is(err, errNotPublished):
			out.Kind = OutcomeNotPublished
			return out
		case errors.As(err, &sf):
			out.Err = &core.UnexpectedStatusError{Month: k, Attempts: attempts, StatusCode: sf.code}
		case errors.As(err, &tf):
			out.Err = &core.TransportError{Month: k, Attempts: attempts, Err: tf.err}
		default:
			out.Err = err
		}
		out.Kind = OutcomeFatal
		return out
	}

	frame, delim, err := ReadArchive(body, f.csvFile)
	if err != nil {
		out.Kind = OutcomeFatal
		out.Err = &core.ArchiveError{Month: k, Err: err}
		return out
	}
	out.Kind = OutcomeOK
	out.Table = RawTable{Month: k, Frame: frame, Delimiter: delim}
	return out
}

// get performs one attempt. The returned error is a *statusFailure or
// *transportFailure when the attempt may be retried, errNotPublished on
// 404, or the parent context error.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.doer.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transportFailure{err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &transportFailure{err: fmt.Errorf("read body: %w", err)}
		}
		return body, nil
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errNotPublished
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &statusFailure{code: resp.StatusCode}
	}
}
