// Package telegram is a minimal Bot API client covering message delivery and
// callback acknowledgement.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/haulpoint/shopbot-go/internal/errors"
	"github.com/haulpoint/shopbot-go/internal/model"
)

const (
	defaultBaseURL   = "https://api.telegram.org"
	maxResponseBytes = 1 << 20
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
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

func NewClient(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	c := &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SendReply delivers a transport-neutral reply to a chat, mapping button rows
// onto an inline keyboard.
func (c *Client) SendReply(ctx context.Context, chatID int64, reply model.Reply) error {
	req := SendMessageRequest{
		ChatID: chatID,
		Text:   reply.Text,
	}
	if len(reply.Buttons) > 0 {
		markup := &InlineKeyboardMarkup{InlineKeyboard: make([][]InlineKeyboardButton, len(reply.Buttons))}
		for i, row := range reply.Buttons {
			buttons := make([]InlineKeyboardButton, len(row))
			for j, b := range row {
				buttons[j] = InlineKeyboardButton{Text: b.Label, CallbackData: b.Data}
			}
			markup.InlineKeyboard[i] = buttons
		}
		req.ReplyMarkup = markup
	}
	return c.call(ctx, "sendMessage", req)
}

// AnswerCallback acknowledges a callback query so the client stops showing a
// spinner. Text, when set, appears as a toast.
func (c *Client) AnswerCallback(ctx context.Context, callbackQueryID, text string) error {
	return c.call(ctx, "answerCallbackQuery", AnswerCallbackQueryRequest{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	})
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.External("telegram", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.External("telegram", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return apperrors.External("telegram",
			fmt.Errorf("%s returned %d with unreadable body", method, resp.StatusCode))
	}
	if !parsed.OK {
		return apperrors.External("telegram",
			fmt.Errorf("%s failed with %d: %s", method, parsed.ErrorCode, parsed.Description))
	}

	return nil
}
