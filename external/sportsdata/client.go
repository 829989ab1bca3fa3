package sportsdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/matchpulse/matchpulse/internal/platform/logging"
	"github.com/matchpulse/matchpulse/internal/platform/resilience"
	"github.com/matchpulse/matchpulse/internal/usecase"
)

const (
	defaultBaseURL         = "https://api.livesportsdata.com/v2"
	defaultBatchSize       = 20
	defaultInterBatchDelay = 250 * time.Millisecond
	maxResponseBytes       = 6 << 20
)

var apiKeyParamRegex = regexp.MustCompile(`api_key=[^&\s"']+`)
var errProviderTransient = crerr.New("sportsdata transient failure")

type ClientConfig struct {
	HTTPClient      *http.Client
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxRetries      int
	BatchSize       int
	InterBatchDelay time.Duration
	Logger          *logging.Logger
	CircuitBreaker  resilience.CircuitBreakerConfig
}

// Client talks to the sports-data provider. Batch calls are chunked to the
// provider's id limit with a delay between chunks; a failed chunk degrades to
// absent entries instead of failing the batch. Every HTTP round trip counts
// against the cycle call counter, retries included.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	maxRetries      int
	batchSize       int
	interBatchDelay time.Duration
	logger          *logging.Logger
	breaker         *resilience.CircuitBreaker
	circuitEnabled  bool
	flight          resilience.SingleFlight

	cycleCalls atomic.Int64
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	interBatchDelay := cfg.InterBatchDelay
	if interBatchDelay < 0 {
		interBatchDelay = defaultInterBatchDelay
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:      httpClient,
		baseURL:         baseURL,
		apiKey:          strings.TrimSpace(cfg.APIKey),
		maxRetries:      maxInt(cfg.MaxRetries, 0),
		batchSize:       batchSize,
		interBatchDelay: interBatchDelay,
		logger:          logger,
		breaker:         resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled:  breakerCfg.Enabled,
	}
}

func (c *Client) ResetCycleCalls() { c.cycleCalls.Store(0) }
func (c *Client) CycleCalls() int  { return int(c.cycleCalls.Load()) }

func (c *Client) FetchLiveFixtures(ctx context.Context) ([]usecase.ExternalFixture, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: provider api key is not configured", usecase.ErrInvalidInput)
	}

	var envelope liveFixturesEnvelope
	if _, err := c.doJSON(ctx, "/matches/live", nil, &envelope); err != nil {
		return nil, fmt.Errorf("fetch live fixtures: %w", err)
	}

	out := make([]usecase.ExternalFixture, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		if item.ID <= 0 {
			continue
		}
		out = append(out, mapFixture(item))
	}
	return out, nil
}

func (c *Client) FetchStatistics(ctx context.Context, ids []int64) (map[int64]usecase.ExternalStats, error) {
	out := make(map[int64]usecase.ExternalStats, len(ids))
	err := c.forEachChunk(ctx, "statistics", ids, func(ctx context.Context, chunk []int64) error {
		var envelope statisticsEnvelope
		path := fmt.Sprintf("/matches/multi/%s/statistics", joinIDs(chunk))
		if _, err := c.doJSON(ctx, path, nil, &envelope); err != nil {
			return err
		}
		for _, item := range envelope.Data {
			if item.MatchID <= 0 {
				continue
			}
			out[item.MatchID] = mapStatistics(item)
		}
		return nil
	})
	return out, err
}

func (c *Client) FetchTimelines(ctx context.Context, ids []int64) (map[int64][]usecase.ExternalTimelineEvent, error) {
	out := make(map[int64][]usecase.ExternalTimelineEvent, len(ids))
	err := c.forEachChunk(ctx, "timelines", ids, func(ctx context.Context, chunk []int64) error {
		var envelope timelinesEnvelope
		path := fmt.Sprintf("/matches/multi/%s/events", joinIDs(chunk))
		if _, err := c.doJSON(ctx, path, nil, &envelope); err != nil {
			return err
		}
		for _, item := range envelope.Data {
			if item.MatchID <= 0 {
				continue
			}
			out[item.MatchID] = mapTimeline(item.Events)
		}
		return nil
	})
	return out, err
}

func (c *Client) FetchLiveOdds(ctx context.Context, ids []int64) (map[int64]usecase.ExternalOdds, error) {
	return c.fetchOdds(ctx, "live odds", "/odds/live/%s", true, ids)
}

func (c *Client) FetchPrematchOdds(ctx context.Context, ids []int64) (map[int64]usecase.ExternalOdds, error) {
	return c.fetchOdds(ctx, "prematch odds", "/odds/prematch/%s", false, ids)
}

func (c *Client) fetchOdds(ctx context.Context, source, pathFormat string, live bool, ids []int64) (map[int64]usecase.ExternalOdds, error) {
	out := make(map[int64]usecase.ExternalOdds, len(ids))
	err := c.forEachChunk(ctx, source, ids, func(ctx context.Context, chunk []int64) error {
		path := fmt.Sprintf(pathFormat, joinIDs(chunk))
		raw, err := c.doJSON(ctx, path, nil, &struct{}{})
		if err != nil {
			return err
		}
		for matchID, odds := range parseOddsEnvelope(raw, live) {
			out[matchID] = odds
		}
		return nil
	})
	return out, err
}

// forEachChunk runs fn per id chunk with the inter-batch delay. Chunk errors
// are tolerated while at least one chunk succeeds; a batch where every chunk
// failed reports the last error so the caller can record the source as down.
func (c *Client) forEachChunk(ctx context.Context, source string, ids []int64, fn func(context.Context, []int64) error) error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: provider api key is not configured", usecase.ErrInvalidInput)
	}
	if len(ids) == 0 {
		return nil
	}

	chunks := chunkIDs(ids, c.batchSize)
	failed := 0
	var lastErr error
	for index, chunk := range chunks {
		if index > 0 && c.interBatchDelay > 0 {
			timer := time.NewTimer(c.interBatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := fn(ctx, chunk); err != nil {
			failed++
			lastErr = err
			c.logger.WarnContext(ctx, "sportsdata chunk degraded",
				"source", source, "chunk", index+1, "chunks", len(chunks), "ids", len(chunk), "error", err)
			continue
		}
	}

	if failed == len(chunks) {
		return fmt.Errorf("fetch %s: all %d chunks failed: %w", source, len(chunks), lastErr)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, path string, query map[string]string, target any) ([]byte, error) {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "sportsdata circuit breaker rejected request", "state", c.breaker.State())
			return nil, fmt.Errorf("%w: sports data provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
	}

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}

	fullURL := c.baseURL + path
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	out, err, _ := c.flight.Do(fullURL, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && isTransientFailure(reqErr) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return nil, err
	}

	raw, ok := out.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected response payload type %T", out)
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode provider payload: %w", err)
	}
	return raw, nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set("x-api-key", c.apiKey)

		c.cycleCalls.Add(1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %s", errProviderTransient, sanitizeSensitiveText(err.Error(), c.apiKey))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("%w: read response body: %v", errProviderTransient, readErr)
			} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return raw, nil
			} else if isRetryableStatus(resp.StatusCode) {
				lastErr = fmt.Errorf("%w: provider status=%d body=%s", errProviderTransient, resp.StatusCode, abbreviateBody(raw))
			} else {
				return nil, fmt.Errorf("provider status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * time.Second
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("provider request failed")
	}
	c.logger.WarnContext(ctx, "sportsdata request failed", "url", redactAPIURL(fullURL), "error", lastErr)
	return nil, lastErr
}

func isTransientFailure(err error) bool {
	return crerr.Is(err, errProviderTransient)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func sanitizeSensitiveText(value, secret string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if secret != "" {
		value = strings.ReplaceAll(value, secret, "REDACTED")
	}
	return apiKeyParamRegex.ReplaceAllString(value, "api_key=REDACTED")
}

func redactAPIURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	if query.Has("api_key") {
		query.Set("api_key", "REDACTED")
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}

func chunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = defaultBatchSize
	}
	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func maxInt(left, right int) int {
	if left > right {
		return left
	}
	return right
}
