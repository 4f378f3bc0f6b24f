// Package telegram wraps the Telegram Bot API for ChannelRelay.
//
// It provides the source reader (getUpdates over channel posts) and the target
// publisher (sendMessage into the destination channel). All calls run with a
// bounded HTTP timeout; the relay treats a timeout as a failed step.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BTreeMap/ChannelRelay/internal/models"
)

// Constants for Telegram client configuration
const (
	// DefaultHTTPTimeout bounds every Bot API call.
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultFetchLimit caps the number of updates requested per run.
	DefaultFetchLimit = 100
)

// Opts holds configuration options for the Telegram client.
type Opts struct {
	Token         string
	SourceChannel string
	TargetChannel string
	Endpoint      string
	HTTPClient    tgbotapi.HTTPClient
	Timeout       time.Duration
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithToken sets the bot credential.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithSourceChannel sets the channel username posts are read from.
func WithSourceChannel(channel string) Option {
	return func(o *Opts) {
		o.SourceChannel = channel
	}
}

// WithTargetChannel sets the channel (username or numeric chat id) posts are
// published to.
func WithTargetChannel(channel string) Option {
	return func(o *Opts) {
		o.TargetChannel = channel
	}
}

// WithEndpoint overrides the Bot API endpoint (used by tests).
func WithEndpoint(endpoint string) Option {
	return func(o *Opts) {
		o.Endpoint = endpoint
	}
}

// WithHTTPClient overrides the HTTP client used for Bot API calls.
func WithHTTPClient(client tgbotapi.HTTPClient) Option {
	return func(o *Opts) {
		o.HTTPClient = client
	}
}

// WithTimeout bounds each Bot API call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// Client is the Telegram-backed source reader and target publisher.
type Client struct {
	bot           *tgbotapi.BotAPI
	sourceChannel string // lowercase username without @
	targetChatID  int64  // set when TARGET_CHANNEL is a numeric chat id
	targetChannel string // "@username" form otherwise
	fetchLimit    int
}

// NewClient creates a Telegram client, validating the required settings and
// verifying the credential against the Bot API. The source channel is only
// required for fetching; a publisher-only client may omit it.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Timeout: DefaultHTTPTimeout, Endpoint: tgbotapi.APIEndpoint}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("telegram.NewClient invoked",
		"token_set", cfg.Token != "", "source", cfg.SourceChannel, "target_set", cfg.TargetChannel != "")

	if cfg.Token == "" {
		return nil, models.ErrMissingBotCredential
	}
	if cfg.TargetChannel == "" {
		return nil, models.ErrMissingTargetChannel
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, httpClient)
	if err != nil {
		slog.Error("telegram.NewClient: credential check failed", "error", err)
		return nil, fmt.Errorf("failed to authenticate bot: %w", err)
	}

	c := &Client{
		bot:           bot,
		sourceChannel: NormalizeChannelUsername(cfg.SourceChannel),
		fetchLimit:    DefaultFetchLimit,
	}
	if chatID, err := strconv.ParseInt(cfg.TargetChannel, 10, 64); err == nil {
		c.targetChatID = chatID
	} else {
		c.targetChannel = "@" + NormalizeChannelUsername(cfg.TargetChannel)
	}

	slog.Info("telegram.NewClient: authenticated", "bot", bot.Self.UserName, "source", c.sourceChannel)
	return c, nil
}

// NormalizeChannelUsername lowercases a channel username and strips a leading @.
func NormalizeChannelUsername(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

// FetchNewMessages returns every update with id greater than after, ascending.
// All updates are returned, including posts from other chats and posts with no
// text: the relay engine decides what to skip, and skipping must still advance
// the watermark. An empty result is not an error.
func (c *Client) FetchNewMessages(ctx context.Context, after int64) ([]models.SourceMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.sourceChannel == "" {
		return nil, models.ErrMissingSourceChannel
	}

	updates, err := c.bot.GetUpdates(tgbotapi.UpdateConfig{
		Offset:         int(after) + 1,
		Limit:          c.fetchLimit,
		Timeout:        0,
		AllowedUpdates: []string{"channel_post"},
	})
	if err != nil {
		slog.Error("telegram.FetchNewMessages: getUpdates failed", "error", err, "after", after)
		return nil, fmt.Errorf("getUpdates failed: %w", err)
	}

	msgs := make([]models.SourceMessage, 0, len(updates))
	for _, upd := range updates {
		msgs = append(msgs, c.toSourceMessage(upd))
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

	slog.Debug("telegram.FetchNewMessages succeeded", "after", after, "count", len(msgs))
	return msgs, nil
}

// SourceChannel returns the normalized username of the source channel.
func (c *Client) SourceChannel() string {
	return c.sourceChannel
}

func (c *Client) toSourceMessage(upd tgbotapi.Update) models.SourceMessage {
	msg := models.SourceMessage{ID: int64(upd.UpdateID)}

	post := upd.ChannelPost
	if post == nil {
		return msg
	}
	if post.Chat != nil {
		msg.Channel = strings.ToLower(post.Chat.UserName)
	}
	msg.Timestamp = post.Time()

	text := post.Text
	if text == "" {
		text = post.Caption
	}
	msg.Text = text
	msg.URL = ExtractBestURL(post)
	return msg
}

// Publish posts text to the target channel with HTML formatting and returns
// the posted message id. No retries happen here; retry policy belongs to the
// relay engine.
func (c *Client) Publish(ctx context.Context, text string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var msg tgbotapi.MessageConfig
	if c.targetChannel != "" {
		msg = tgbotapi.NewMessageToChannel(c.targetChannel, text)
	} else {
		msg = tgbotapi.NewMessage(c.targetChatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = false

	sent, err := c.bot.Send(msg)
	if err != nil {
		slog.Error("telegram.Publish: sendMessage failed", "error", err, "body_length", len(text))
		return 0, fmt.Errorf("sendMessage failed: %w", err)
	}

	slog.Debug("telegram.Publish succeeded", "target_message_id", sent.MessageID, "body_length", len(text))
	return int64(sent.MessageID), nil
}
