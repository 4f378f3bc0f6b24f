// Package langdetect wraps lingua-go for deciding whether a line of channel
// content still needs translation.
package langdetect

import (
	"strings"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"

	"github.com/BTreeMap/ChannelRelay/internal/models"
)

// minLetters is the minimum number of letters required before detection is
// attempted; shorter samples are too ambiguous to classify.
const minLetters = 6

// Detector classifies text between the relay source and target languages.
type Detector struct {
	inner lingua.LanguageDetector
}

// New builds a detector restricted to English and Persian. Restricting the
// language set keeps the models small and the classification sharp.
func New() *Detector {
	inner := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.English, lingua.Persian).
		Build()
	return &Detector{inner: inner}
}

// Detect returns the ISO 639-1 code of the detected language, or the empty
// string when the sample is blank, too short, or unclassifiable.
func (d *Detector) Detect(text string) models.LanguageCode {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minLetters {
		return ""
	}

	language, exists := d.inner.DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return models.LanguageCode(code)
}

// NeedsTranslation reports whether text appears to be written in from rather
// than to. Undetectable samples default to true so that real content is never
// silently passed through untranslated.
func (d *Detector) NeedsTranslation(text string, from, to models.LanguageCode) bool {
	detected := d.Detect(text)
	if detected == "" {
		return true
	}
	return detected != to
}
