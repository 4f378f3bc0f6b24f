package relay

import (
	"context"
	"strings"
	"testing"

	"github.com/BTreeMap/ChannelRelay/internal/models"
)

func render(t *testing.T, tr *fakeTranslator, m models.SourceMessage) string {
	t.Helper()
	f := NewFormatter(tr, nil)
	out, err := f.Render(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out
}

func TestRenderPreservesStructure(t *testing.T) {
	text := strings.Join([]string{
		"✅ <b>MARKET NEWS</b>",
		"",
		"📰 <b>Headline</b>",
		"Gold climbs to a record high",
		"",
		"<b>Source:</b> FXStreet",
		"<b>Direction:</b> Bullish",
		"",
		`🔗 <a href="https://example.com/gold">Read full article</a>`,
		"",
		"#XAUUSD #GOLD",
	}, "\n")

	tr := &fakeTranslator{}
	out := render(t, tr, models.SourceMessage{ID: 1, Text: text})

	if !strings.Contains(out, "✅ <b>MARKET NEWS</b>") {
		t.Error("fixed header was not preserved")
	}
	if !strings.Contains(out, "FA[Gold climbs to a record high]") {
		t.Error("content line was not translated")
	}
	if !strings.Contains(out, "<b>Source:</b> FXStreet") {
		t.Error("source label line must stay verbatim")
	}
	if !strings.Contains(out, "<b>Direction:</b> FA[Bullish]") {
		t.Error("direction value must be translated, label kept")
	}
	if !strings.Contains(out, `<a href="https://example.com/gold">`) {
		t.Error("link line must stay verbatim")
	}
	if !strings.Contains(out, "#XAUUSD #GOLD") {
		t.Error("hashtags must stay verbatim")
	}
}

func TestRenderAppendsLostLink(t *testing.T) {
	tr := &fakeTranslator{}
	out := render(t, tr, models.SourceMessage{ID: 1, Text: "Oil spikes after supply cut", URL: "https://example.com/oil"})
	if !strings.Contains(out, `🔗 <a href="https://example.com/oil">Read full article</a>`) {
		t.Errorf("link footer not appended: %q", out)
	}

	// A post already carrying a link gets no duplicate footer.
	withLink := render(t, tr, models.SourceMessage{ID: 2, Text: "see https://example.com/x", URL: "https://example.com/x"})
	if strings.Count(withLink, "https://example.com/x") != 1 {
		t.Errorf("link duplicated: %q", withLink)
	}
}

func TestRenderTruncatesLongMessages(t *testing.T) {
	tr := &fakeTranslator{}
	long := strings.Repeat("a", models.MaxMessageLength+500)
	out := render(t, tr, models.SourceMessage{ID: 1, Text: long})
	if n := len([]rune(out)); n > models.MaxMessageLength {
		t.Errorf("message not truncated: %d runes", n)
	}
	if !strings.HasSuffix(out, "...") {
		t.Error("truncation must be marked with an ellipsis")
	}
}

func TestRenderPropagatesTranslationFailure(t *testing.T) {
	f := NewFormatter(&fakeTranslator{failOn: "prose"}, nil)
	_, err := f.Render(context.Background(), models.SourceMessage{ID: 1, Text: "some prose line"})
	if err == nil {
		t.Fatal("expected translation error to propagate")
	}
}

func TestRenderBlankAndHashtagLines(t *testing.T) {
	tr := &fakeTranslator{}
	out := render(t, tr, models.SourceMessage{ID: 1, Text: "#EURUSD\n\nEuro slides"})
	lines := strings.Split(out, "\n")
	if lines[0] != "#EURUSD" {
		t.Errorf("hashtag line altered: %q", lines[0])
	}
	if lines[1] != "" {
		t.Errorf("blank line not preserved: %q", lines[1])
	}
	if lines[2] != "FA[Euro slides]" {
		t.Errorf("content line not translated: %q", lines[2])
	}
	// Only the prose line hits the provider.
	if tr.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", tr.calls)
	}
}
