package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestRelayStateAdvanceIsMonotonic(t *testing.T) {
	var s RelayState
	s.Advance(10)
	if s.LastMessageID != 10 {
		t.Fatalf("expected watermark 10, got %d", s.LastMessageID)
	}
	s.Advance(5)
	if s.LastMessageID != 10 {
		t.Errorf("watermark moved backwards to %d", s.LastMessageID)
	}
	s.Advance(11)
	if s.LastMessageID != 11 {
		t.Errorf("expected watermark 11, got %d", s.LastMessageID)
	}
}

func TestRelayStateSeenRing(t *testing.T) {
	var s RelayState
	s.MarkSeen("a")
	s.MarkSeen("a")
	if len(s.SeenIDs) != 1 {
		t.Errorf("duplicate id was re-appended: %v", s.SeenIDs)
	}
	if !s.HasSeen("a") || s.HasSeen("b") {
		t.Error("HasSeen gave wrong answer")
	}

	for i := 0; i < MaxSeenIDs+50; i++ {
		s.MarkSeen(fmt.Sprintf("uid-%d", i))
	}
	if len(s.SeenIDs) > MaxSeenIDs {
		t.Errorf("seen ring not bounded: %d entries", len(s.SeenIDs))
	}
	if !s.HasSeen(fmt.Sprintf("uid-%d", MaxSeenIDs+49)) {
		t.Error("newest id evicted from ring")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	cases := []error{
		&FetchError{Cause: cause},
		&TranslationError{MessageID: 7, Cause: cause},
		&PublishError{MessageID: 7, Cause: cause},
		&ConfigError{Field: "BOT_CREDENTIAL", Cause: cause},
	}
	for _, err := range cases {
		if !errors.Is(err, cause) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
	}
}

func TestTranslationErrorMessage(t *testing.T) {
	err := &TranslationError{MessageID: 42, Cause: ErrEmptyText}
	if got := err.Error(); got != "translation failed for message 42: text cannot be empty" {
		t.Errorf("unexpected error message: %q", got)
	}
}
