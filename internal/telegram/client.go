package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/metrics"
)

const (
	// DefaultBaseURL is the public Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"
	// DefaultPollTimeout is the long-poll window requested from getUpdates.
	DefaultPollTimeout = 30 * time.Second

	defaultHTTPTimeout = 35 * time.Second
	parseModeHTML      = "HTML"
)

// Client talks to the Bot API over plain HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different Bot API host.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a Bot API client for token.
func NewClient(token string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type sendMessageRequest struct {
	ChatID      int64          `json:"chat_id"`
	Text        string         `json:"text"`
	ParseMode   string         `json:"parse_mode,omitempty"`
	ReplyMarkup *ReplyKeyboard `json:"reply_markup,omitempty"`
}

type editMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// SendMessage posts an HTML-formatted text message, optionally with a
// custom keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *ReplyKeyboard) (Message, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   parseModeHTML,
		ReplyMarkup: markup,
	}, &msg)
	return msg, err
}

// EditMessageText replaces the text of a message the bot sent earlier.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.call(ctx, "editMessageText", editMessageRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: parseModeHTML,
	}, nil)
}

// SendPhoto uploads a JPEG as multipart form data.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, filename string, photo []byte, caption string) (Message, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return Message{}, fmt.Errorf("telegram sendPhoto: %w", err)
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return Message{}, fmt.Errorf("telegram sendPhoto: %w", err)
		}
	}
	part, err := w.CreateFormFile("photo", filename)
	if err != nil {
		return Message{}, fmt.Errorf("telegram sendPhoto: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return Message{}, fmt.Errorf("telegram sendPhoto: %w", err)
	}
	if err := w.Close(); err != nil {
		return Message{}, fmt.Errorf("telegram sendPhoto: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &body)
	if err != nil {
		return Message{}, fmt.Errorf("telegram sendPhoto: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var msg Message
	if err := c.do(req, "sendPhoto", &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// GetUpdates long-polls for updates with ids >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	for range updates {
		metrics.ObserveTelegramUpdate()
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("telegram %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveTelegramError(method)
		return fmt.Errorf("telegram %s: %w", method, redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveTelegramError(method)
		return fmt.Errorf("telegram %s: read body: %w", method, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		metrics.ObserveTelegramError(method)
		return fmt.Errorf("telegram %s: decode (status %d): %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		metrics.ObserveTelegramError(method)
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		apiErr := &APIError{Method: method, Code: code, Description: env.Description}
		c.logger.Warn("telegram api error",
			zap.String("method", method),
			zap.Int("code", code),
			zap.String("description", env.Description),
		)
		return apiErr
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// redact drops the request URL from transport errors so the bot token never
// reaches the logs.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
