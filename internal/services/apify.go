package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

const (
	runStatusReady     = "READY"
	runStatusRunning   = "RUNNING"
	runStatusSucceeded = "SUCCEEDED"

	maxBodyBytes  = 16 << 20
	maxErrorBytes = 512
)

// ActorRun is the provider's view of one actor execution.
type ActorRun struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

func (r *ActorRun) pending() bool {
	return r.Status == runStatusRunning || r.Status == runStatusReady
}

type runEnvelope struct {
	Data ActorRun `json:"data"`
}

type datasetEnvelope struct {
	Data struct {
		Items []json.RawMessage `json:"items"`
	} `json:"data"`
}

// ApifyClient performs authenticated requests against the provider API.
type ApifyClient struct {
	baseURL      string
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker[[]byte]
	pollInterval time.Duration
	pollAttempts int
	logger       *log.Logger
}

// NewApifyClient creates a client authenticating with cfg.APIToken.
//
// base supplies the underlying transport and defaults to a client with cfg.RequestTimeout.
func NewApifyClient(cfg shared.ProviderConfig, logger *log.Logger, base *http.Client) *ApifyClient {
	if base == nil {
		base = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIToken, TokenType: "Bearer"}))

	return &ApifyClient{
		baseURL:      cfg.BaseURL,
		httpClient:   httpClient,
		breaker:      newBreaker(cfg.Breaker, logger),
		pollInterval: cfg.RunPollInterval,
		pollAttempts: cfg.RunPollAttempts,
		logger:       logger,
	}
}

func newBreaker(cfg shared.BreakerConfig, logger *log.Logger) *gobreaker.CircuitBreaker[[]byte] {
	threshold := max(cfg.FailureThreshold, 1)
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "provider",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// A missing account or a bad token says nothing about provider health.
			kind := shared.KindOf(Classify(err))
			return kind == shared.KindPermanent || kind == shared.KindCancelled
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// BreakerState reports the circuit breaker state for health output.
func (c *ApifyClient) BreakerState() string {
	return c.breaker.State().String()
}

// RunActor starts actor with input and waits for the run to finish.
//
// The run is polled every poll interval while RUNNING or READY, at most pollAttempts times.
// Any terminal status other than SUCCEEDED is transient.
func (c *ApifyClient) RunActor(ctx context.Context, actor string, input any) (*ActorRun, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actor input: %w", err)
	}

	data, err := c.do(ctx, "start run", http.MethodPost, "/acts/"+url.PathEscape(actor)+"/runs", nil, body)
	if err != nil {
		return nil, Classify(err)
	}

	var env runEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Data.ID == "" {
		return nil, transient("failed to start actor run")
	}
	run := env.Data
	c.logger.Debug("actor run started", "actor", actor, "run", run.ID, "status", run.Status)

	for attempt := 0; run.pending() && attempt < c.pollAttempts; attempt++ {
		if err := sleepCtx(ctx, c.pollInterval); err != nil {
			return nil, Classify(err)
		}

		data, err := c.do(ctx, "poll run", http.MethodGet, "/actor-runs/"+url.PathEscape(run.ID), nil, nil)
		if err != nil {
			return nil, Classify(err)
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, transient("malformed actor run response")
		}
		run.Status = env.Data.Status
		if env.Data.DefaultDatasetID != "" {
			run.DefaultDatasetID = env.Data.DefaultDatasetID
		}
	}

	switch {
	case run.pending():
		return nil, transient(fmt.Sprintf("actor run still %s after %d polls", run.Status, c.pollAttempts))
	case run.Status != runStatusSucceeded:
		return nil, transient(fmt.Sprintf("actor run finished with status %s", run.Status))
	case run.DefaultDatasetID == "":
		return nil, transient("actor run has no dataset")
	}
	return &run, nil
}

// DatasetItems returns one page of a dataset.
func (c *ApifyClient) DatasetItems(ctx context.Context, datasetID string, offset, limit int) ([]json.RawMessage, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("clean", "true")

	data, err := c.do(ctx, "list dataset items", http.MethodGet, "/datasets/"+url.PathEscape(datasetID)+"/items", query, nil)
	if err != nil {
		return nil, Classify(err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, transient("malformed dataset response")
		}
		return items, nil
	}

	var env datasetEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, transient("malformed dataset response")
	}
	return env.Data.Items, nil
}

// do performs one request through the circuit breaker and returns the body of a 2xx response.
func (c *ApifyClient) do(ctx context.Context, op, method, path string, query url.Values, body []byte) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: request failed: %w", op, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read response: %w", op, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Debug("provider error response", "op", op, "status", resp.StatusCode)
			return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: string(data[:min(len(data), maxErrorBytes)])}
		}
		return data, nil
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
