// Package models defines the core data structures for ChannelRelay.
//
// It includes the relay state (watermark plus seen-id ring), source and relayed
// message types, and the error taxonomy shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// LanguageCode is an ISO 639-1 language code.
type LanguageCode string

const (
	// LangEnglish is the relay source language.
	LangEnglish LanguageCode = "en"
	// LangPersian is the relay target language.
	LangPersian LanguageCode = "fa"
)

// Limits shared across modules
const (
	// MaxMessageLength is the maximum length of a published message body.
	// Telegram caps messages at 4096 characters; we stay below to leave room
	// for the appended link footer.
	MaxMessageLength = 3800
	// MaxSeenIDs bounds the seen-id ring kept in RelayState.
	MaxSeenIDs = 500
)

// Error variables for better error handling and testability
var (
	ErrMissingBotCredential = errors.New("BOT_CREDENTIAL is required")
	ErrMissingSourceChannel = errors.New("SOURCE_CHANNEL is required")
	ErrMissingTargetChannel = errors.New("TARGET_CHANNEL is required")
	ErrEmptyText            = errors.New("text cannot be empty")
	ErrUnsupportedLanguage  = errors.New("unsupported language pair")
)

// ConfigError indicates a missing or invalid configuration value. It is fatal
// and reported before any network call is made.
type ConfigError struct {
	Field string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error for %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("missing required configuration: %s", e.Field)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// FetchError indicates the source reader failed before any message could be
// processed. Nothing is committed when a FetchError occurs.
type FetchError struct {
	Cause error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch failed: %v", e.Cause) }

func (e *FetchError) Unwrap() error { return e.Cause }

// TranslationError indicates a single message failed to translate. The relay
// watermark must not advance past the failed message.
type TranslationError struct {
	MessageID int64
	Cause     error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translation failed for message %d: %v", e.MessageID, e.Cause)
}

func (e *TranslationError) Unwrap() error { return e.Cause }

// PublishError indicates a single message failed to post to the target
// channel. The relay watermark must not advance past the failed message.
type PublishError struct {
	MessageID int64
	Cause     error
}

func (e *PublishError) Error() string {
	if e.MessageID == 0 {
		return fmt.Sprintf("publish failed: %v", e.Cause)
	}
	return fmt.Sprintf("publish failed for message %d: %v", e.MessageID, e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }

// RelayState is the persisted relay checkpoint. LastMessageID is the watermark:
// the id of the last source message successfully relayed or skipped. SeenIDs is
// a bounded ring of externally keyed items (feed entries) already published.
type RelayState struct {
	LastMessageID int64    `json:"lastMessageId"`
	SeenIDs       []string `json:"seenIds,omitempty"`
}

// Advance moves the watermark forward. The watermark is monotonically
// non-decreasing; calls with a smaller id are ignored.
func (s *RelayState) Advance(id int64) {
	if id > s.LastMessageID {
		s.LastMessageID = id
	}
}

// HasSeen reports whether uid is in the seen-id ring.
func (s *RelayState) HasSeen(uid string) bool {
	for _, v := range s.SeenIDs {
		if v == uid {
			return true
		}
	}
	return false
}

// MarkSeen appends uid to the seen-id ring, evicting the oldest entries once
// the ring exceeds MaxSeenIDs. Duplicate ids are not re-appended.
func (s *RelayState) MarkSeen(uid string) {
	if uid == "" || s.HasSeen(uid) {
		return
	}
	s.SeenIDs = append(s.SeenIDs, uid)
	if len(s.SeenIDs) > MaxSeenIDs {
		s.SeenIDs = s.SeenIDs[len(s.SeenIDs)-MaxSeenIDs:]
	}
}

// SourceMessage is a single post fetched from the source channel. Immutable
// once fetched. ID is the Telegram update id, unique and monotonically
// increasing per bot.
type SourceMessage struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"` // best article link found in the post, if any
	Channel   string    `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RelayedMessage records one successful relay of a source message.
type RelayedMessage struct {
	SourceID        int64     `json:"source_id"`
	TranslatedText  string    `json:"translated_text"`
	TargetMessageID int64     `json:"target_message_id"`
	PostedAt        time.Time `json:"posted_at"`
}

// FeedItem is a single entry pulled from a watched RSS feed.
type FeedItem struct {
	UID       string    `json:"uid"` // entry id, falling back to the link
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Link      string    `json:"link"`
	Source    string    `json:"source"`
	Published time.Time `json:"published"`
}
