package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"propsync/config"
	"propsync/metrics"
)

const (
	maxPayloadSize   = 100 * 1024 * 1024 // 100MB
	failureThreshold = 3
	breakerCooldown  = 2 * time.Minute
)

// APIClient fetches the raw listings payload of one source.
type APIClient struct {
	cfg     *config.SourceConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewAPIClient(cfg *config.SourceConfig, client *http.Client) *APIClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Timeout > 0 {
		c := *client
		c.Timeout = cfg.Timeout
		client = &c
	}

	settings := gobreaker.Settings{
		Name:        cfg.ID,
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).Msg("upstream breaker state changed")
		},
	}

	return &APIClient{
		cfg:     cfg,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (a *APIClient) ID() string {
	return a.cfg.ID
}

// Fetch returns the response body of the listings endpoint. Once the
// upstream has failed repeatedly, calls fail fast until the breaker
// cools down.
func (a *APIClient) Fetch(ctx context.Context) ([]byte, error) {
	body, err := a.breaker.Execute(func() ([]byte, error) {
		return a.do(ctx)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.UpstreamRequests.WithLabelValues(a.cfg.ID, "rejected").Inc()
		return nil, fmt.Errorf("source %s unavailable: %w", a.cfg.ID, err)
	case err != nil:
		metrics.UpstreamRequests.WithLabelValues(a.cfg.ID, "error").Inc()
		return nil, err
	}
	metrics.UpstreamRequests.WithLabelValues(a.cfg.ID, "ok").Inc()
	return body, nil
}

func (a *APIClient) do(ctx context.Context) ([]byte, error) {
	method := a.cfg.Method
	if method == "" {
		method = http.MethodGet
		if !a.cfg.Filters.Empty() {
			method = http.MethodPost
		}
	}

	var reqBody io.Reader
	if method == http.MethodPost {
		body, err := json.Marshal(map[string]any{"filtros": FilterBody(a.cfg.Filters)})
		if err != nil {
			return nil, fmt.Errorf("encode filters: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.Endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "propsync/1.0")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", a.cfg.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s API error %d: %s", a.cfg.ID, resp.StatusCode, string(snippet))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxPayloadSize {
		return nil, fmt.Errorf("%s payload exceeds %d bytes", a.cfg.ID, maxPayloadSize)
	}

	log.Debug().Str("source", a.cfg.ID).Int("bytes", len(data)).Dur("took", time.Since(start)).Msg("payload fetched")
	return data, nil
}

// FilterBody renders configured filters with the API's field names. Unset
// filters are omitted.
func FilterBody(f config.Filters) map[string]any {
	out := make(map[string]any)
	if f.Ref != "" {
		if n, err := strconv.ParseInt(f.Ref, 10, 64); err == nil {
			out["ref"] = n
		} else {
			out["ref"] = f.Ref
		}
	}
	if f.SyncCode != "" {
		out["codigo_sincronizacion"] = f.SyncCode
	}
	if f.UseID != 0 {
		out["id_uso"] = f.UseID
	}
	if len(f.StatusIDs) > 0 {
		out["ids_estado"] = f.StatusIDs
	}
	if f.City != "" {
		out["ciudad"] = f.City
	}
	for k, v := range f.Extra {
		out[k] = v
	}
	return out
}
