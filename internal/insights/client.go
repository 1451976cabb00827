// Package insights asks an OpenAI compatible chat completions API for a
// short natural language reading of a dataset.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"custeio/internal/core"
	"custeio/internal/log"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.1
	DefaultTimeout     = 60 * time.Second
)

var (
	ErrNotConfigured  = errors.New("insights: api key not configured")
	ErrAuthentication = errors.New("insights: authentication rejected")
	ErrRateLimited    = errors.New("insights: rate limited")
	ErrConnection     = errors.New("insights: connection failed")
	ErrEmptyDataset   = errors.New("insights: dataset has no records")
	ErrEmptyResponse  = errors.New("insights: response has no choices")
)

// APIError is any other non-success answer from the API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("insights: api status %d", e.StatusCode)
	}
	return fmt.Sprintf("insights: api status %d: %s", e.StatusCode, e.Message)
}

// Config configures the client. Empty fields use the defaults; a nil
// Temperature means DefaultTemperature, so 0 can be set explicitly.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	Timeout     time.Duration
}

// Result is the generated text and the tokens billed for it.
type Result struct {
	Text        string `json:"text"`
	Model       string `json:"model"`
	TotalTokens int    `json:"total_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type Client struct {
	http        *resty.Client
	model       string
	temperature float64
	configured  bool
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	temperature := DefaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Client{
		http:        client,
		model:       cfg.Model,
		temperature: temperature,
		configured:  cfg.APIKey != "",
	}
}

// Configured reports whether an API key was provided.
func (c *Client) Configured() bool { return c.configured }

// Summarize filters ds with f and asks the model for insights about the
// result.
func (c *Client) Summarize(ctx context.Context, ds core.Dataset, f core.Filter) (Result, error) {
	if !c.configured {
		return Result{}, ErrNotConfigured
	}
	view := ds.Filter(f)
	if view.Len() == 0 {
		return Result{}, ErrEmptyDataset
	}

	start := time.Now()
	var (
		out    chatResponse
		apiErr errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       c.model,
			Temperature: c.temperature,
			Messages:    []chatMessage{{Role: "user", Content: BuildPrompt(view, f)}},
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Result{}, fmt.Errorf("%w: %s", ErrAuthentication, apiErr.Error.Message)
	case code == http.StatusTooManyRequests:
		return Result{}, fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Error.Message)
	case resp.IsError() || code != http.StatusOK:
		return Result{}, &APIError{StatusCode: code, Type: apiErr.Error.Type, Message: apiErr.Error.Message}
	}
	if len(out.Choices) == 0 {
		return Result{}, ErrEmptyResponse
	}

	res := Result{
		Text:        strings.TrimSpace(out.Choices[0].Message.Content),
		Model:       out.Model,
		TotalTokens: out.Usage.TotalTokens,
	}
	if res.Model == "" {
		res.Model = c.model
	}
	slog.InfoContext(ctx, "Insights generated",
		log.FieldComponent, log.ComponentInsights,
		log.FieldYear, ds.Year,
		log.FieldModel, res.Model,
		log.FieldRecords, view.Len(),
		"total_tokens", res.TotalTokens,
		log.FieldDuration, time.Since(start).Milliseconds())
	return res, nil
}
