package insights

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"custeio/internal/core"
)

func testDataset() core.Dataset {
	return core.Dataset{Year: 2023, Records: []core.Record{
		{Period: "202301", SuperiorBody: "MEC", Body: "UFRJ", BodyAcronym: "UFRJ", ExpenseItem: "Energia", ExpenseNature: "Serviços", Amount: decimal.RequireFromString("1500.25")},
		{Period: "202302", SuperiorBody: "MS", Body: "Fiocruz", BodyAcronym: "FIOCRUZ", ExpenseItem: "Água", ExpenseNature: "Serviços", Amount: decimal.RequireFromString("300")},
	}}
}

func jsonReply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestSummarizeSuccess(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		jsonReply(w, http.StatusOK, `{"model":"gpt-3.5-turbo-0125","choices":[{"message":{"role":"assistant","content":"  1. Energia domina.  "}}],"usage":{"total_tokens":321}}`)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
	res, err := c.Summarize(context.Background(), testDataset(), core.Filter{SuperiorBody: "MEC"})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if res.Text != "1. Energia domina." || res.TotalTokens != 321 || res.Model != "gpt-3.5-turbo-0125" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got.Model != DefaultModel || got.Temperature != DefaultTemperature || len(got.Messages) != 1 {
		t.Fatalf("unexpected request: %+v", got)
	}
	prompt := got.Messages[0].Content
	if !strings.Contains(prompt, "Órgão Superior = MEC") || strings.Contains(prompt, "Fiocruz") {
		t.Fatalf("prompt should describe only the filtered rows:\n%s", prompt)
	}
}

func TestSummarizeErrors(t *testing.T) {
	cases := []struct {
		status int
		body   string
		check  func(error) bool
	}{
		{http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, func(err error) bool { return errors.Is(err, ErrAuthentication) }},
		{http.StatusForbidden, `{"error":{"message":"no access"}}`, func(err error) bool { return errors.Is(err, ErrAuthentication) }},
		{http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, func(err error) bool { return errors.Is(err, ErrRateLimited) }},
		{http.StatusInternalServerError, `{"error":{"message":"overloaded","type":"server_error"}}`, func(err error) bool {
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.StatusCode == 500 && apiErr.Message == "overloaded"
		}},
		{http.StatusOK, `{"choices":[]}`, func(err error) bool { return errors.Is(err, ErrEmptyResponse) }},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jsonReply(w, tc.status, tc.body)
		}))
		_, err := New(Config{APIKey: "k", BaseURL: srv.URL}).Summarize(context.Background(), testDataset(), core.Filter{})
		srv.Close()
		if !tc.check(err) {
			t.Fatalf("status %d: unexpected error %v", tc.status, err)
		}
	}
}

func TestSummarizeTemperature(t *testing.T) {
	zero, warm := 0.0, 0.7
	tests := []struct {
		name string
		cfg  *float64
		want float64
	}{
		{"unset uses default", nil, DefaultTemperature},
		{"explicit zero", &zero, 0},
		{"explicit value", &warm, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got struct {
				Temperature *float64 `json:"temperature"`
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Errorf("decode request: %v", err)
				}
				jsonReply(w, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
			}))
			defer srv.Close()

			c := New(Config{APIKey: "k", BaseURL: srv.URL, Temperature: tt.cfg})
			if _, err := c.Summarize(context.Background(), testDataset(), core.Filter{}); err != nil {
				t.Fatalf("summarize: %v", err)
			}
			if got.Temperature == nil || *got.Temperature != tt.want {
				t.Fatalf("temperature sent = %v, want %v", got.Temperature, tt.want)
			}
		})
	}
}

func TestSummarizeNotConfigured(t *testing.T) {
	c := New(Config{})
	if c.Configured() {
		t.Fatalf("client without key must not be configured")
	}
	if _, err := c.Summarize(context.Background(), testDataset(), core.Filter{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSummarizeConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{APIKey: "k", BaseURL: url}).Summarize(context.Background(), testDataset(), core.Filter{})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestSummarizeEmptySelection(t *testing.T) {
	c := New(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	if _, err := c.Summarize(context.Background(), testDataset(), core.Filter{Body: "nenhum"}); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(testDataset(), core.Filter{})
	for _, want := range []string{
		"referentes a 2023",
		"Filtros aplicados: nenhum.",
		"- Soma: R$ 1.800,25",
		"- 202301: R$ 1.500,25",
		"Amostra de registros (2 de 2)",
		"202302;MS;Fiocruz;FIOCRUZ;Água;Serviços;300.00",
		"Informe 6 insights sobre este dataset.",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}
