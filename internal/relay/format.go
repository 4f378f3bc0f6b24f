// This file renders a source post into the translated message published to
// the target channel.
package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/BTreeMap/ChannelRelay/internal/langdetect"
	"github.com/BTreeMap/ChannelRelay/internal/models"
	"github.com/BTreeMap/ChannelRelay/internal/translate"
)

// fixedHeaders are template lines kept verbatim; translating them would break
// the post layout readers know.
var fixedHeaders = map[string]bool{
	"✅ <b>MARKET NEWS</b>":      true,
	"📰 <b>Headline</b>":         true,
	"📌 <b>What happened?</b>":   true,
	"📊 <b>Impact</b>":           true,
	"🕒 <b>Source & time</b>":    true,
}

// keptLabelPrefixes are label lines whose values are not prose and stay as-is.
var keptLabelPrefixes = []string{"<b>source:</b>", "<b>date:</b>", "<b>asset:</b>"}

// translatedLabelPrefix marks the one label line whose value is translated.
const translatedLabelPrefix = "<b>direction:</b>"

// Formatter turns a source post into the translated target message. It
// translates content lines only, preserving structure: hashtags, links,
// fixed template headers, and label keys pass through untouched.
type Formatter struct {
	translator translate.Provider
	detector   *langdetect.Detector
	from       models.LanguageCode
	to         models.LanguageCode
	maxLength  int
}

// NewFormatter creates a formatter translating from EN to FA. The detector is
// optional; when present, lines already in the target language are passed
// through without a provider call.
func NewFormatter(translator translate.Provider, detector *langdetect.Detector) *Formatter {
	return &Formatter{
		translator: translator,
		detector:   detector,
		from:       models.LangEnglish,
		to:         models.LangPersian,
		maxLength:  models.MaxMessageLength,
	}
}

// Render translates the post line by line, re-attaches the article link if the
// translation lost it, and truncates to the message length limit.
func (f *Formatter) Render(ctx context.Context, m models.SourceMessage) (string, error) {
	translated, err := f.translateStructured(ctx, m.Text)
	if err != nil {
		return "", err
	}
	translated = ensureLink(translated, m.URL)
	return truncate(translated, f.maxLength), nil
}

// translateStructured walks the post line by line, translating prose and
// keeping everything structural.
func (f *Formatter) translateStructured(ctx context.Context, text string) (string, error) {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		s := strings.TrimSpace(line)

		switch {
		case s == "":
			out = append(out, "")
		case strings.HasPrefix(s, "#"):
			out = append(out, s)
		case strings.Contains(s, "<a href=") || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://"):
			out = append(out, line)
		case fixedHeaders[s]:
			out = append(out, line)
		case hasKeptLabel(s):
			out = append(out, line)
		case strings.HasPrefix(strings.ToLower(s), translatedLabelPrefix):
			rendered, err := f.translateLabelValue(ctx, line)
			if err != nil {
				return "", err
			}
			out = append(out, rendered)
		default:
			rendered, err := f.translateLine(ctx, s)
			if err != nil {
				return "", err
			}
			out = append(out, rendered)
		}
	}

	return strings.TrimSpace(strings.Join(out, "\n")), nil
}

// translateLabelValue translates only the value after the closing </b> of a
// label line, keeping the label key intact.
func (f *Formatter) translateLabelValue(ctx context.Context, line string) (string, error) {
	label, value, found := strings.Cut(line, "</b>")
	if !found {
		return line, nil
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return line, nil
	}
	rendered, err := f.translateLine(ctx, value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s</b> %s", label, rendered), nil
}

func (f *Formatter) translateLine(ctx context.Context, s string) (string, error) {
	if f.detector != nil && !f.detector.NeedsTranslation(s, f.from, f.to) {
		return s, nil
	}
	return f.translator.Translate(ctx, s, f.from, f.to)
}

func hasKeptLabel(s string) bool {
	lower := strings.ToLower(s)
	for _, prefix := range keptLabelPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// ensureLink appends the article link when the rendered text no longer
// carries one.
func ensureLink(text, url string) string {
	if url == "" {
		return text
	}
	if strings.Contains(text, "http://") || strings.Contains(text, "https://") || strings.Contains(text, "<a href=") {
		return text
	}
	return strings.TrimSpace(strings.TrimRight(text, " \n") + "\n\n" + fmt.Sprintf(`🔗 <a href="%s">Read full article</a>`, url))
}

// truncate shortens text to at most max runes, marking the cut with an ellipsis.
func truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-3]) + "..."
}
