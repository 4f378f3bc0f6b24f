package translate

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/ChannelRelay/internal/models"
)

// fakeChat records requests and returns a canned completion.
type fakeChat struct {
	lastParams openai.ChatCompletionNewParams
	content    string
	err        error
}

func (f *fakeChat) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIProvider(); err == nil {
		t.Fatal("expected error when no API key is available")
	}
}

func TestTranslateRejectsEmptyText(t *testing.T) {
	p := &OpenAIProvider{chat: &fakeChat{}, model: DefaultModel}
	if _, err := p.Translate(context.Background(), "   ", models.LangEnglish, models.LangPersian); !errors.Is(err, models.ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestTranslateRejectsUnsupportedLanguage(t *testing.T) {
	p := &OpenAIProvider{chat: &fakeChat{}, model: DefaultModel}
	if _, err := p.Translate(context.Background(), "hello", "xx", models.LangPersian); !errors.Is(err, models.ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestTranslateReturnsTrimmedCompletion(t *testing.T) {
	chat := &fakeChat{content: "  سلام دنیا \n"}
	p := &OpenAIProvider{chat: chat, model: DefaultModel}

	out, err := p.Translate(context.Background(), "Hello world", models.LangEnglish, models.LangPersian)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "سلام دنیا" {
		t.Errorf("expected trimmed translation, got %q", out)
	}
	if chat.lastParams.Model != DefaultModel {
		t.Errorf("expected model %q, got %q", DefaultModel, chat.lastParams.Model)
	}
	if len(chat.lastParams.Messages) != 2 {
		t.Errorf("expected system + user message, got %d messages", len(chat.lastParams.Messages))
	}
}

func TestTranslatePropagatesAPIFailure(t *testing.T) {
	chat := &fakeChat{err: errors.New("rate limited")}
	p := &OpenAIProvider{chat: chat, model: DefaultModel}
	if _, err := p.Translate(context.Background(), "Hello", models.LangEnglish, models.LangPersian); err == nil {
		t.Fatal("expected error from API failure")
	}
}
