// Package route estimates public transit travel time through an external
// route API.
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/commutealarm/commutealarm/pkg/config"
	"github.com/commutealarm/commutealarm/pkg/metrics"
)

const estimatePath = "/v1/routes/estimate"

type responseWrapper[T any] struct {
	Data T `json:"data"`
}

type estimate struct {
	Minutes int `json:"minutes"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Client struct {
	cfg     config.RouteConfig
	http    *http.Client
	retry   RetryPolicy
	limiter *rate.Limiter
	breaker CircuitBreaker
	cache   Cache
	logger  *zap.Logger
}

// New builds a client. cache may be nil.
func New(cfg config.RouteConfig, cache Cache, logger *zap.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit) / 60
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		retry: RetryPolicy{
			Attempts:  cfg.Attempts,
			BaseDelay: cfg.RetryDelay,
		},
		limiter: rate.NewLimiter(limit, burst),
		breaker: NewCircuitBreaker(cfg),
		cache:   cache,
		logger:  logger.Named("route"),
	}
}

// EstimateMinutes returns the travel time in minutes between two points
// given as longitude/latitude pairs.
func (c *Client) EstimateMinutes(ctx context.Context, startLon, startLat, endLon, endLat float64) (int, error) {
	key := cacheKey(startLon, startLat, endLon, endLat)
	if c.cache != nil {
		if minutes, ok := c.cache.Get(ctx, key); ok {
			metrics.RouteRequestsTotal.WithLabelValues("cache_hit").Inc()
			return minutes, nil
		}
	}

	var minutes int
	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(func() error {
			m, err := c.fetch(ctx, startLon, startLat, endLon, endLat)
			minutes = m
			return err
		})
	})
	if err != nil {
		result := "error"
		if !IsTransient(err) {
			result = "rejected"
		}
		metrics.RouteRequestsTotal.WithLabelValues(result).Inc()
		c.logger.Warn("route estimate failed", zap.Error(err), zap.Bool("transient", IsTransient(err)))
		return 0, err
	}

	metrics.RouteRequestsTotal.WithLabelValues("ok").Inc()
	if c.cache != nil {
		c.cache.Set(ctx, key, minutes)
	}
	return minutes, nil
}

func (c *Client) fetch(ctx context.Context, startLon, startLat, endLon, endLat float64) (int, error) {
	query := url.Values{}
	query.Set("startLon", formatCoord(startLon))
	query.Set("startLat", formatCoord(startLat))
	query.Set("endLon", formatCoord(endLon))
	query.Set("endLat", formatCoord(endLat))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+estimatePath+"?"+query.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RouteRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrNoRoute
	}
	if resp.StatusCode >= 400 {
		return 0, readAPIError(resp)
	}

	var out responseWrapper[estimate]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.Data.Minutes < 0 {
		return 0, fmt.Errorf("%w: negative travel time %d", ErrInvalidResponse, out.Data.Minutes)
	}
	return out.Data.Minutes, nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return apiErr
	}
	var decoded errorBody
	if json.Unmarshal(body, &decoded) == nil && decoded.Message != "" {
		apiErr.Code = decoded.Code
		apiErr.Message = decoded.Message
	}
	return apiErr
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
