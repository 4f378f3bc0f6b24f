// This file implements the OpenAI-backed translation provider.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/ChannelRelay/internal/models"
)

// DefaultModel is the chat model used for translation unless overridden.
const DefaultModel = openai.ChatModelGPT4oMini

// languageNames maps ISO codes to the names used in the translation prompt.
var languageNames = map[models.LanguageCode]string{
	models.LangEnglish: "English",
	models.LangPersian: "Persian (Farsi)",
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the OpenAI provider.
type Opts struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Option defines a configuration option for the OpenAI provider.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the chat model used for translation.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithBaseURL points the provider at an alternate OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// OpenAIProvider translates text with the OpenAI chat completion API.
type OpenAIProvider struct {
	chat  chatService
	model openai.ChatModel
}

// NewOpenAIProvider initializes the provider. The API key is taken from the
// options or the OPENAI_API_KEY environment variable.
func NewOpenAIProvider(opts ...Option) (*OpenAIProvider, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		slog.Error("OpenAIProvider: API key not set")
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(reqOpts...)

	model := openai.ChatModel(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	slog.Debug("OpenAIProvider initialized", "model", model, "base_url_set", cfg.BaseURL != "")
	return &OpenAIProvider{chat: &client.Chat.Completions, model: model}, nil
}

// Name identifies the provider for logging.
func (p *OpenAIProvider) Name() string { return "openai" }

// Translate converts text between languages. The prompt pins the model to a
// translation-only role so channel content is never rewritten or summarized.
func (p *OpenAIProvider) Translate(ctx context.Context, text string, from, to models.LanguageCode) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", models.ErrEmptyText
	}
	fromName, okFrom := languageNames[from]
	toName, okTo := languageNames[to]
	if !okFrom || !okTo {
		slog.Error("OpenAIProvider.Translate: unsupported language pair", "from", from, "to", to)
		return "", models.ErrUnsupportedLanguage
	}

	system := fmt.Sprintf(
		"You are a professional translator. Translate the user's message from %s to %s. "+
			"Preserve numbers, symbols, HTML tags, and hashtags exactly. "+
			"Reply with the translation only, no commentary.",
		fromName, toName)

	resp, err := p.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		slog.Error("OpenAIProvider.Translate: completion failed", "error", err, "from", from, "to", to)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("OpenAIProvider.Translate: no choices returned")
		return "", fmt.Errorf("no choices returned")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("OpenAIProvider.Translate succeeded", "from", from, "to", to, "input_length", len(text), "output_length", len(out))
	return out, nil
}
