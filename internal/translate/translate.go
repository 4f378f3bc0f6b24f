// Package translate provides the translation capability used by the relay.
//
// Providers are pure adapters: text in, translated text out, no persisted
// state. The production provider is backed by the OpenAI API.
package translate

import (
	"context"

	"github.com/BTreeMap/ChannelRelay/internal/models"
)

// Provider translates free-form text between languages.
type Provider interface {
	// Translate converts text from one language to another. It returns an
	// error on empty or unsupported input; callers decide retry policy.
	Translate(ctx context.Context, text string, from, to models.LanguageCode) (string, error)

	// Name identifies the provider for logging.
	Name() string
}
