package sheets

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/haulpoint/shopbot-go/internal/errors"
	"github.com/haulpoint/shopbot-go/internal/kv"
)

const (
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	spreadsheetsScope = "https://www.googleapis.com/auth/spreadsheets"
	jwtBearerGrant    = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	assertionLifetime = time.Hour

	// tokenExpiryMargin is shaved off the provider-reported lifetime so a
	// cached token is never handed out moments before it dies.
	tokenExpiryMargin = time.Minute
)

// TokenSource exchanges a service-account key for short-lived access tokens
// and caches them until just before expiry.
type TokenSource struct {
	clientEmail string
	privateKey  *rsa.PrivateKey
	tokenURL    string
	httpClient  *http.Client
	cache       kv.Store
	now         func() time.Time
}

type TokenOption func(*TokenSource)

func WithTokenURL(tokenURL string) TokenOption {
	return func(ts *TokenSource) {
		ts.tokenURL = tokenURL
	}
}

func WithTokenHTTPClient(httpClient *http.Client) TokenOption {
	return func(ts *TokenSource) {
		ts.httpClient = httpClient
	}
}

func NewTokenSource(cache kv.Store, clientEmail, privateKeyPEM string, opts ...TokenOption) (*TokenSource, error) {
	if strings.TrimSpace(clientEmail) == "" {
		return nil, fmt.Errorf("sheets client email is required")
	}

	// Keys pasted into env vars usually arrive with literal \n sequences.
	normalized := strings.ReplaceAll(privateKeyPEM, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalized))
	if err != nil {
		return nil, fmt.Errorf("parse sheets private key: %w", err)
	}

	ts := &TokenSource{
		clientEmail: clientEmail,
		privateKey:  key,
		tokenURL:    defaultTokenURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		cache:       cache,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts, nil
}

type assertionClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// Token returns a valid access token, from cache when possible.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	cacheKey := kv.Key("sheets", "token")
	if data, err := ts.cache.Get(ctx, cacheKey); err != nil {
		log.Warn().Err(err).Msg("sheets token cache read failed")
	} else if len(data) > 0 {
		return string(data), nil
	}

	token, ttl, err := ts.exchange(ctx)
	if err != nil {
		return "", err
	}

	if ttl > 0 {
		if err := ts.cache.Set(ctx, cacheKey, []byte(token), ttl); err != nil {
			log.Warn().Err(err).Msg("sheets token cache write failed")
		}
	}

	return token, nil
}

func (ts *TokenSource) exchange(ctx context.Context) (string, time.Duration, error) {
	now := ts.now()
	claims := assertionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.clientEmail,
			Audience:  jwt.ClaimStrings{ts.tokenURL},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		},
		Scope: spreadsheetsScope,
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(ts.privateKey)
	if err != nil {
		return "", 0, fmt.Errorf("sign token assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", 0, apperrors.External("google oauth", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", 0, apperrors.External("google oauth", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, apperrors.External("google oauth",
			fmt.Errorf("token exchange returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", 0, apperrors.External("google oauth", fmt.Errorf("token response missing access_token"))
	}

	ttl := time.Duration(parsed.ExpiresIn)*time.Second - tokenExpiryMargin
	return parsed.AccessToken, ttl, nil
}
