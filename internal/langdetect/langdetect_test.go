package langdetect

import (
	"testing"

	"github.com/BTreeMap/ChannelRelay/internal/models"
)

func TestDetectEnglish(t *testing.T) {
	d := New()
	if got := d.Detect("The central bank raised interest rates again this quarter."); got != models.LangEnglish {
		t.Errorf("expected en, got %q", got)
	}
}

func TestDetectPersian(t *testing.T) {
	d := New()
	if got := d.Detect("بانک مرکزی نرخ بهره را دوباره افزایش داد"); got != models.LangPersian {
		t.Errorf("expected fa, got %q", got)
	}
}

func TestDetectShortSampleIsUnknown(t *testing.T) {
	d := New()
	if got := d.Detect("ok"); got != "" {
		t.Errorf("expected empty code for short sample, got %q", got)
	}
	if got := d.Detect("   "); got != "" {
		t.Errorf("expected empty code for blank sample, got %q", got)
	}
}

func TestNeedsTranslation(t *testing.T) {
	d := New()
	if !d.NeedsTranslation("Gold prices surged after the announcement.", models.LangEnglish, models.LangPersian) {
		t.Error("English content should need translation")
	}
	if d.NeedsTranslation("قیمت طلا پس از این خبر افزایش یافت", models.LangEnglish, models.LangPersian) {
		t.Error("Persian content should not need translation")
	}
	// Undetectable samples default to needing translation.
	if !d.NeedsTranslation("#xau", models.LangEnglish, models.LangPersian) {
		t.Error("undetectable content should default to needing translation")
	}
}
