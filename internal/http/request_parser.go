// Package http serves the dataset API.
//
// This file holds the parsing and validation of path, query and body
// parameters shared by the handlers.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"custeio/internal/core"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000

	maxBodyBytes = 64 << 10
)

// ParamError reports an invalid request parameter. It maps to 400.
type ParamError struct {
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Reason)
}

// Page is a window over the records of a dataset.
type Page struct {
	Limit  int
	Offset int
}

// Bounds clips the page to n records.
func (p Page) Bounds(n int) (start, end int) {
	start = min(p.Offset, n)
	end = min(start+p.Limit, n)
	return start, end
}

// InsightsRequest is the body of POST /api/datasets/{year}/insights.
type InsightsRequest struct {
	Filter core.Filter `json:"filter"`
}

// ParseYear reads the {year} path value.
func ParseYear(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.PathValue("year"))
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParamError{Param: "year", Reason: "must be a number"}
	}
	if _, err := core.NewMonthKey(year, 1); err != nil {
		return 0, &ParamError{Param: "year", Reason: "must have four digits"}
	}
	return year, nil
}

// ParseFilter builds a filter from the query parameters named after the
// categorical columns. Other parameters are ignored.
func ParseFilter(query url.Values) (core.Filter, error) {
	var f core.Filter
	for _, dim := range core.Dimensions {
		v := sanitizeInput(query.Get(dim))
		if v == "" {
			continue
		}
		if err := f.Set(dim, v); err != nil {
			return core.Filter{}, err
		}
	}
	return f, nil
}

// ParsePage reads limit and offset, applying DefaultPageLimit.
func ParsePage(query url.Values) (Page, error) {
	p := Page{Limit: DefaultPageLimit}
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPageLimit {
			return Page{}, &ParamError{Param: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxPageLimit)}
		}
		p.Limit = n
	}
	if v := strings.TrimSpace(query.Get("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Page{}, &ParamError{Param: "offset", Reason: "must be a non-negative number"}
		}
		p.Offset = n
	}
	return p, nil
}

// ParseDimension reads the required "by" parameter.
func ParseDimension(query url.Values) (string, error) {
	by := strings.TrimSpace(query.Get("by"))
	if !core.IsDimension(by) {
		return "", &ParamError{Param: "by", Reason: "must be one of " + strings.Join(core.Dimensions, ", ")}
	}
	return by, nil
}

// DecodeInsightsRequest reads an optional JSON body. An empty body means
// no filter.
func DecodeInsightsRequest(r *http.Request) (InsightsRequest, error) {
	var req InsightsRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return req, &ParamError{Param: "body", Reason: "unreadable"}
	}
	if len(body) > maxBodyBytes {
		return req, &ParamError{Param: "body", Reason: "too large"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return InsightsRequest{}, &ParamError{Param: "body", Reason: err.Error()}
	}

	var clean core.Filter
	for _, p := range req.Filter.Pinned() {
		if v := sanitizeInput(p.Value); v != "" {
			_ = clean.Set(p.Column, v)
		}
	}
	req.Filter = clean
	return req, nil
}

// IsParamError reports whether err came from request parsing.
func IsParamError(err error) bool {
	var pe *ParamError
	return errors.As(err, &pe) || errors.Is(err, core.ErrInvalidDimension)
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
