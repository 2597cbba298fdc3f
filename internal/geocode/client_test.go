package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulpoint/shopbot-go/internal/kv"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *kv.Memory, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cache := kv.NewMemory()
	client, err := NewClient(cache, "shopbot-test/1.0", WithBaseURL(server.URL))
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock.install(client.limiter)

	return client, cache, server
}

func TestNewClientRequiresUserAgent(t *testing.T) {
	_, err := NewClient(kv.NewMemory(), "")
	assert.Error(t, err)

	_, err = NewClient(kv.NewMemory(), "   ")
	assert.Error(t, err)
}

func TestLookupSuccess(t *testing.T) {
	var gotUserAgent, gotQuery string
	requests := 0

	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		gotUserAgent = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"32.7766642","lon":"-96.7969879","display_name":"Dallas, Dallas County, Texas, United States"}]`))
	})

	result, err := client.Lookup(context.Background(), "Dallas, TX")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.InDelta(t, 32.7766642, result.Lat, 1e-9)
	assert.InDelta(t, -96.7969879, result.Lng, 1e-9)
	assert.Equal(t, "Dallas, Dallas County, Texas, United States", result.DisplayName)
	assert.Equal(t, "shopbot-test/1.0", gotUserAgent)
	assert.Equal(t, "dallas, tx", gotQuery, "query should be normalized before the provider sees it")
	assert.Equal(t, 1, requests)
}

func TestLookupCachesPositiveResults(t *testing.T) {
	requests := 0
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`[{"lat":"32.77","lon":"-96.79","display_name":"Dallas"}]`))
	})

	ctx := context.Background()

	first, err := client.Lookup(ctx, "Dallas, TX")
	require.NoError(t, err)
	require.NotNil(t, first)

	// Same query modulo case and whitespace hits the cache.
	second, err := client.Lookup(ctx, "  dallas,   tx ")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.Coordinates, second.Coordinates)
	assert.Equal(t, 1, requests, "second lookup should be served from cache")
}

func TestLookupEmptyQueryIsNoResult(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider should not be called for an empty query")
	})

	result, err := client.Lookup(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestLookupNoMatch(t *testing.T) {
	requests := 0
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`[]`))
	})

	ctx := context.Background()

	result, err := client.Lookup(ctx, "Nowhereville, ZZ")
	require.NoError(t, err)
	assert.Nil(t, result)

	// Misses are not cached, so a retry reaches the provider again.
	result, err = client.Lookup(ctx, "Nowhereville, ZZ")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 2, requests)
}

func TestLookupNon200IsNoResult(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	result, err := client.Lookup(context.Background(), "Dallas, TX")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestLookupMalformedBodyIsNoResult(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	})

	result, err := client.Lookup(context.Background(), "Dallas, TX")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestLookupUnparseableCoordinatesIsNoResult(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "non-numeric lat", body: `[{"lat":"abc","lon":"-96.79"}]`},
		{name: "non-numeric lon", body: `[{"lat":"32.77","lon":""}]`},
		{name: "infinite lat", body: `[{"lat":"+Inf","lon":"-96.79"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			result, err := client.Lookup(context.Background(), "Dallas, TX")
			require.NoError(t, err)
			assert.Nil(t, result)
		})
	}
}

func TestLookupTransportErrorIsError(t *testing.T) {
	client, _, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	result, err := client.Lookup(context.Background(), "Dallas, TX")
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "lowercases", in: "Dallas, TX", expected: "dallas, tx"},
		{name: "collapses whitespace", in: "  123   Main  St ", expected: "123 main st"},
		{name: "empty", in: "   ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeQuery(tt.in))
		})
	}
}
