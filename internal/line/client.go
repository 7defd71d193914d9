// Package line talks to the LINE Messaging API: profile lookup, message
// content download and replies.
package line

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	DefaultAPIBase     = "https://api.line.me"
	DefaultDataAPIBase = "https://api-data.line.me"

	// maxTextRunes is the platform limit for one text message.
	maxTextRunes = 5000
)

// APIError is a non-2xx answer from the Messaging API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line API %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type Config struct {
	ChannelAccessToken string
	APIBase            string
	DataAPIBase        string
	Timeout            time.Duration
	MaxContentBytes    int64
	HTTPClient         *http.Client // optional
	Logger             *slog.Logger
}

// Client implements domain.ProfileResolver, domain.ContentFetcher and
// domain.ReplyNotifier on top of the official SDK.
type Client struct {
	token       string
	apiBase     string
	dataAPIBase string
	maxContent  int64
	client      *http.Client
	logger      *slog.Logger
}

// NewClient checks that the SDK accepts the token and endpoints.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.DataAPIBase == "" {
		cfg.DataAPIBase = DefaultDataAPIBase
	}
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = 10 << 20
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Client{
		token:       cfg.ChannelAccessToken,
		apiBase:     cfg.APIBase,
		dataAPIBase: cfg.DataAPIBase,
		maxContent:  cfg.MaxContentBytes,
		client:      cfg.HTTPClient,
		logger:      cfg.Logger,
	}
	if _, err := c.bot(context.Background()); err != nil {
		return nil, err
	}
	if _, err := c.blob(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// bot returns a Messaging API client bound to ctx. The SDK stores the
// context on the client, so each call gets its own.
func (c *Client) bot(ctx context.Context) (*messaging_api.MessagingApiAPI, error) {
	api, err := messaging_api.NewMessagingApiAPI(c.token,
		messaging_api.WithHTTPClient(c.client),
		messaging_api.WithEndpoint(c.apiBase),
	)
	if err != nil {
		return nil, fmt.Errorf("line messaging client: %w", err)
	}
	return api.WithContext(ctx), nil
}

func (c *Client) blob(ctx context.Context) (*messaging_api.MessagingApiBlobAPI, error) {
	api, err := messaging_api.NewMessagingApiBlobAPI(c.token,
		messaging_api.WithBlobHTTPClient(c.client),
		messaging_api.WithBlobEndpoint(c.dataAPIBase),
	)
	if err != nil {
		return nil, fmt.Errorf("line blob client: %w", err)
	}
	return api.WithContext(ctx), nil
}

// DisplayName fetches the user's profile. Nothing is cached.
func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	api, err := c.bot(ctx)
	if err != nil {
		return "", err
	}
	res, profile, err := api.GetProfileWithHttpInfo(userID)
	if err != nil {
		return "", apiError("/v2/bot/profile", res, err)
	}
	return profile.DisplayName, nil
}

// MessageContent downloads the binary content of an image message.
func (c *Client) MessageContent(ctx context.Context, messageID string) ([]byte, error) {
	api, err := c.blob(ctx)
	if err != nil {
		return nil, err
	}
	res, _, err := api.GetMessageContentWithHttpInfo(messageID)
	if err != nil {
		return nil, apiError("/v2/bot/message/content", res, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, c.maxContent+1))
	if err != nil {
		return nil, fmt.Errorf("read message content: %w", err)
	}
	if int64(len(data)) > c.maxContent {
		return nil, fmt.Errorf("message content exceeds %d bytes", c.maxContent)
	}
	c.logger.Debug("message content fetched", "message_id", messageID, "bytes", len(data))
	return data, nil
}

// Reply sends a single text message through the reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, text string) error {
	api, err := c.bot(ctx)
	if err != nil {
		return err
	}
	res, out, err := api.ReplyMessageWithHttpInfo(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			&messaging_api.TextMessage{Text: truncate(text, maxTextRunes)},
		},
	})
	if err != nil {
		return apiError("/v2/bot/message/reply", res, err)
	}
	c.logger.Info("reply sent", "sent_messages", len(out.SentMessages))
	return nil
}

// apiError turns a failed SDK call into an APIError when the platform
// answered with a non-2xx status. The SDK leaves that body readable.
func apiError(endpoint string, res *http.Response, err error) error {
	if res == nil || res.StatusCode/100 == 2 {
		return fmt.Errorf("line API %s: %w", endpoint, err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &APIError{Endpoint: endpoint, StatusCode: res.StatusCode, Body: string(body)}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
