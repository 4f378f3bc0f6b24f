// This file decides which channel posts are worth relaying.
package relay

import (
	"strings"

	"github.com/BTreeMap/ChannelRelay/internal/models"
)

// Template markers identifying the market-news post template.
const (
	templateCheckmark = "✅"
	templateHeading   = "MARKET NEWS"
)

// Filter selects the channel posts that get relayed. Posts rejected here are
// handled, not failed: the watermark advances past them.
type Filter struct {
	// SourceChannel is the normalized username posts must come from.
	// Empty matches any channel.
	SourceChannel string
	// RequireTemplate keeps only posts matching the market-news template.
	RequireTemplate bool
	// Keywords, when non-empty, requires at least one (lowercase) keyword
	// to appear in the post text.
	Keywords []string
}

// ShouldRelay reports whether the post should be translated and forwarded,
// with a short reason for the log when it should not.
func (f Filter) ShouldRelay(m models.SourceMessage) (bool, string) {
	if f.SourceChannel != "" && m.Channel != f.SourceChannel {
		return false, "foreign_channel"
	}
	if strings.TrimSpace(m.Text) == "" {
		return false, "empty_text"
	}
	if f.RequireTemplate && !matchesTemplate(m.Text) {
		return false, "template_mismatch"
	}
	if len(f.Keywords) > 0 && !containsAnyKeyword(m.Text, f.Keywords) {
		return false, "irrelevant"
	}
	return true, ""
}

// matchesTemplate checks for the fixed template markers so random channel
// posts are never relayed.
func matchesTemplate(text string) bool {
	return strings.Contains(text, templateCheckmark) && strings.Contains(text, templateHeading)
}

func containsAnyKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
