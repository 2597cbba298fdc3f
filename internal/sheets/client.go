// Package sheets talks to a Google Sheets compatible values API and layers
// the shop-row schema on top of it.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/haulpoint/shopbot-go/internal/errors"
)

const (
	defaultBaseURL   = "https://sheets.googleapis.com"
	maxResponseBytes = 4 << 20
)

// TokenProvider yields a bearer token for each request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client is the raw values-API client: ranges in, string cells out.
type Client struct {
	baseURL       string
	spreadsheetID string
	tokens        TokenProvider
	httpClient    *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(tokens TokenProvider, spreadsheetID string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}

	c := &Client{
		baseURL:       defaultBaseURL,
		spreadsheetID: spreadsheetID,
		tokens:        tokens,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type valueRange struct {
	Values [][]any `json:"values"`
}

// GetValues reads an A1 range. Cells come back as strings regardless of how
// the sheet stores them.
func (c *Client) GetValues(ctx context.Context, a1Range string) ([][]string, error) {
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(a1Range))

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var vr valueRange
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("decode values response: %w", err)
	}

	rows := make([][]string, len(vr.Values))
	for i, raw := range vr.Values {
		row := make([]string, len(raw))
		for j, cell := range raw {
			row[j] = cellString(cell)
		}
		rows[i] = row
	}
	return rows, nil
}

// AppendRow appends one row after the last non-empty row of the range's table.
func (c *Client) AppendRow(ctx context.Context, a1Range string, row []string) error {
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(a1Range))

	cells := make([]any, len(row))
	for i, cell := range row {
		cells[i] = cell
	}
	payload, err := json.Marshal(valueRange{Values: [][]any{cells}})
	if err != nil {
		return fmt.Errorf("encode append payload: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, endpoint, payload)
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get sheets token: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build sheets request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.External("sheets", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.External("sheets", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.External("sheets",
			fmt.Errorf("%s returned %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body))))
	}

	return body, nil
}

func cellString(cell any) string {
	switch v := cell.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
