// Package geocode resolves free-form addresses to coordinates through a
// Nominatim-compatible provider, with a shared request throttle and a
// long-lived positive-result cache.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/haulpoint/shopbot-go/internal/errors"
	"github.com/haulpoint/shopbot-go/internal/kv"
	"github.com/haulpoint/shopbot-go/internal/model"
)

const (
	defaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultCacheTTL keeps successful lookups for 30 days.
	DefaultCacheTTL = 720 * time.Hour

	maxResponseBytes = 1 << 20
)

type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	cache      kv.Store
	cacheTTL   time.Duration
	limiter    *IntervalLimiter
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// NewClient builds a geocoding client. The provider requires a user agent
// identifying the calling application, so an empty one is a startup error.
func NewClient(cache kv.Store, userAgent string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(userAgent) == "" {
		return nil, fmt.Errorf("geocoder user agent is required")
	}

	c := &Client{
		baseURL:    defaultBaseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
		cacheTTL:   DefaultCacheTTL,
		limiter:    NewIntervalLimiter(DefaultMinInterval),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lookup resolves a free-form query to coordinates. It returns (nil, nil)
// when the provider has no match for the query; errors are reserved for
// transport failures. Positive results are cached under the normalized query;
// misses are not cached.
func (c *Client) Lookup(ctx context.Context, query string) (*model.GeocodeResult, error) {
	norm := NormalizeQuery(query)
	if norm == "" {
		return nil, nil
	}

	cacheKey := kv.Key("geocode", norm)
	if data, err := c.cache.Get(ctx, cacheKey); err != nil {
		log.Warn().Err(err).Msg("geocode cache read failed")
	} else if data != nil {
		var cached model.GeocodeResult
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
		// Corrupt entry: fall through to a fresh lookup.
	}

	release, err := c.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := c.fetch(ctx, norm)
	if err != nil || result == nil {
		return nil, err
	}

	if data, err := json.Marshal(result); err == nil {
		if err := c.cache.Set(ctx, cacheKey, data, c.cacheTTL); err != nil {
			log.Warn().Err(err).Msg("geocode cache write failed")
		}
	}

	return result, nil
}

// NormalizeQuery lowercases and collapses whitespace so equivalent queries
// share a cache entry.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (c *Client) fetch(ctx context.Context, query string) (*model.GeocodeResult, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	endpoint := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.External("geocoder", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.External("geocoder", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("query", query).
			Msg("geocoder returned non-200, treating as no result")
		return nil, nil
	}

	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		log.Warn().Err(err).Str("query", query).Msg("geocoder returned malformed body")
		return nil, nil
	}
	if len(places) == 0 {
		return nil, nil
	}

	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lng, lngErr := strconv.ParseFloat(places[0].Lon, 64)
	if latErr != nil || lngErr != nil || !finite(lat) || !finite(lng) {
		log.Warn().Str("query", query).Msg("geocoder returned unparseable coordinates")
		return nil, nil
	}

	return &model.GeocodeResult{
		Coordinates: model.Coordinates{Lat: lat, Lng: lng},
		DisplayName: places[0].DisplayName,
	}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
