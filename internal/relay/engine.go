// Package relay implements the relay engine: the batch orchestrator that
// pulls unseen posts from the source channel, translates them, publishes them
// to the target channel, and advances the persisted watermark.
//
// One Run is one pass: fetch, then translate-publish-commit per message in
// ascending id order. The watermark is persisted after every successful
// publish, bounding data loss on crash to at most one unpersisted message.
// On the first translate or publish failure the run stops without advancing
// the watermark past the failed message: relay order must match source order,
// and no message is ever skipped silently.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ChannelRelay/internal/models"
	"github.com/BTreeMap/ChannelRelay/internal/store"
)

// SourceReader fetches source messages newer than the watermark, ascending.
type SourceReader interface {
	FetchNewMessages(ctx context.Context, after int64) ([]models.SourceMessage, error)
}

// Publisher posts a formatted message to the target channel.
type Publisher interface {
	Publish(ctx context.Context, text string) (int64, error)
}

// StateStore loads and persists the relay checkpoint.
type StateStore interface {
	Load() models.RelayState
	Save(st models.RelayState) error
}

// Report summarizes one relay run.
type Report struct {
	Fetched       int
	Relayed       int
	Skipped       int
	LastMessageID int64
	FailedID      int64  // id of the message that stopped the run, 0 if none
	FailedStage   string // "fetch", "translate" or "publish"
}

// Engine is the relay orchestrator.
type Engine struct {
	state     StateStore
	reader    SourceReader
	formatter *Formatter
	publisher Publisher
	relayLog  store.RelayLog
	filter    Filter
	retry     RetryPolicy
	now       func() time.Time
}

// EngineOption defines a configuration option for the relay engine.
type EngineOption func(*Engine)

// WithRelayLog records every relayed message in the given relay log.
func WithRelayLog(log store.RelayLog) EngineOption {
	return func(e *Engine) {
		e.relayLog = log
	}
}

// WithFilter sets the post filter.
func WithFilter(f Filter) EngineOption {
	return func(e *Engine) {
		e.filter = f
	}
}

// WithRetryPolicy sets the per-step retry policy.
func WithRetryPolicy(p RetryPolicy) EngineOption {
	return func(e *Engine) {
		e.retry = p
	}
}

// NewEngine creates a relay engine from its collaborators.
func NewEngine(state StateStore, reader SourceReader, formatter *Formatter, publisher Publisher, opts ...EngineOption) *Engine {
	e := &Engine{
		state:     state,
		reader:    reader,
		formatter: formatter,
		publisher: publisher,
		retry:     DefaultRetryPolicy(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one relay pass and returns a report. The returned error is nil
// on a clean pass; a typed FetchError, TranslationError, or PublishError when
// the run stopped early; or a plain error when the checkpoint could not be
// persisted. Progress committed before the failure is always preserved.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	st := e.state.Load()
	report := &Report{LastMessageID: st.LastMessageID}
	slog.Info("Engine.Run: starting relay run", "watermark", st.LastMessageID)

	var msgs []models.SourceMessage
	err := e.retry.Do(ctx, "fetch", func(ctx context.Context) error {
		var ferr error
		msgs, ferr = e.reader.FetchNewMessages(ctx, st.LastMessageID)
		return ferr
	})
	if err != nil {
		report.FailedStage = "fetch"
		slog.Error("Engine.Run: fetch failed, nothing committed", "error", err, "watermark", st.LastMessageID)
		return report, &models.FetchError{Cause: err}
	}
	report.Fetched = len(msgs)
	slog.Debug("Engine.Run: fetched messages", "count", len(msgs), "after", st.LastMessageID)

	for _, m := range msgs {
		// At-most-once guard: never reprocess anything at or below the watermark.
		if m.ID <= st.LastMessageID {
			slog.Debug("Engine.Run: message at or below watermark, ignoring", "message_id", m.ID)
			continue
		}

		if ok, reason := e.filter.ShouldRelay(m); !ok {
			slog.Info("Engine.Run: skipping message", "message_id", m.ID, "reason", reason)
			if err := e.commit(&st, m.ID, report); err != nil {
				return report, err
			}
			report.Skipped++
			continue
		}

		var text string
		err := e.retry.Do(ctx, "translate", func(ctx context.Context) error {
			var terr error
			text, terr = e.formatter.Render(ctx, m)
			return terr
		})
		if err != nil {
			report.FailedID = m.ID
			report.FailedStage = "translate"
			slog.Error("Engine.Run: translation failed, stopping run",
				"message_id", m.ID, "stage", "translate", "error", err, "watermark", st.LastMessageID)
			return report, &models.TranslationError{MessageID: m.ID, Cause: err}
		}

		var targetID int64
		err = e.retry.Do(ctx, "publish", func(ctx context.Context) error {
			var perr error
			targetID, perr = e.publisher.Publish(ctx, text)
			return perr
		})
		if err != nil {
			report.FailedID = m.ID
			report.FailedStage = "publish"
			slog.Error("Engine.Run: publish failed, stopping run",
				"message_id", m.ID, "stage", "publish", "error", err, "watermark", st.LastMessageID)
			return report, &models.PublishError{MessageID: m.ID, Cause: err}
		}

		if e.relayLog != nil {
			rm := models.RelayedMessage{
				SourceID:        m.ID,
				TranslatedText:  text,
				TargetMessageID: targetID,
				PostedAt:        e.now(),
			}
			if err := e.relayLog.RecordRelay(rm); err != nil {
				// The relay log is an operator aid, not the checkpoint.
				slog.Warn("Engine.Run: relay log write failed", "message_id", m.ID, "error", err)
			}
		}

		if err := e.commit(&st, m.ID, report); err != nil {
			return report, err
		}
		report.Relayed++
		slog.Info("Engine.Run: message relayed", "message_id", m.ID, "target_message_id", targetID)
	}

	slog.Info("Engine.Run: relay run complete",
		"fetched", report.Fetched, "relayed", report.Relayed, "skipped", report.Skipped, "watermark", report.LastMessageID)
	return report, nil
}

// commit advances the watermark and persists the checkpoint before the next
// message is processed.
func (e *Engine) commit(st *models.RelayState, id int64, report *Report) error {
	st.Advance(id)
	if err := e.state.Save(*st); err != nil {
		slog.Error("Engine.Run: failed to persist checkpoint, stopping run", "message_id", id, "error", err)
		return fmt.Errorf("failed to persist checkpoint after message %d: %w", id, err)
	}
	report.LastMessageID = st.LastMessageID
	return nil
}
