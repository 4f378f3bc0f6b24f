// This file extracts the best article link from a channel post.
package telegram

import (
	"regexp"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var urlPattern = regexp.MustCompile(`(?i)(https?://[^\s)>\]]+)`)

// ExtractBestURL finds the article link in a channel post: a raw URL in the
// text wins, then link entities. Returns "" when the post carries no link.
func ExtractBestURL(post *tgbotapi.Message) string {
	if post == nil {
		return ""
	}

	text := post.Text
	entities := post.Entities
	if text == "" {
		text = post.Caption
		entities = post.CaptionEntities
	}

	if m := urlPattern.FindString(text); m != "" {
		return m
	}
	return extractURLFromEntities(text, entities)
}

// extractURLFromEntities handles the two entity forms Telegram uses for links:
// "text_link" carries the URL directly, "url" marks a span of the text.
// Entity offsets and lengths count UTF-16 code units, so the text is sliced in
// that encoding; emoji before the link would otherwise shift the span.
func extractURLFromEntities(text string, entities []tgbotapi.MessageEntity) string {
	units := utf16.Encode([]rune(text))
	for _, e := range entities {
		switch e.Type {
		case "text_link":
			if e.URL != "" {
				return e.URL
			}
		case "url":
			if e.Length > 0 && e.Offset >= 0 && e.Offset+e.Length <= len(units) {
				return string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
			}
		}
	}
	return ""
}
