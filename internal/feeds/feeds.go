// Package feeds implements the market-news feed watcher: the second batch job
// next to the channel relay. It polls RSS feeds, keeps the keyword-relevant
// entries, formats them with instrument hashtags, and publishes them to the
// target channel exactly once each, deduplicated by entry id.
package feeds

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/BTreeMap/ChannelRelay/internal/models"
	"github.com/BTreeMap/ChannelRelay/internal/relay"
	"github.com/BTreeMap/ChannelRelay/internal/store"
)

// Feed names one watched RSS source.
type Feed struct {
	Name string
	URL  string
}

// DefaultFeeds are the market-news sources watched when none are configured.
var DefaultFeeds = []Feed{
	{Name: "FXStreet", URL: "https://www.fxstreet.com/rss/news"},
	{Name: "DailyFX", URL: "https://www.dailyfx.com/feeds/market-news"},
	{Name: "Forexlive", URL: "https://www.forexlive.com/feed/news/"},
}

// DefaultKeywords select the instruments worth posting about.
var DefaultKeywords = []string{
	// forex majors
	"eurusd", "gbpusd", "usdjpy", "usdchf",
	"audusd", "usdcad", "nzdusd",
	// forex crosses
	"eurgbp", "eurjpy", "gbpjpy",
	// spot metals
	"xauusd", "gold", "xagusd", "silver",
	// indices
	"dax", "daxeur", "dow", "dji", "nasdaq", "ndx", "s&p", "spx",
	// energy
	"brent", "brnusd", "wti", "wtiusd", "crude oil",
}

// summaryLimit bounds the summary excerpt included in a post.
const summaryLimit = 500

// Report summarizes one feed watch run.
type Report struct {
	Feeds       int
	FailedFeeds int
	Items       int
	Published   int
	Skipped     int
}

// Watcher is the feed-to-channel batch job.
type Watcher struct {
	state     relay.StateStore
	publisher relay.Publisher
	relayLog  store.RelayLog
	feeds     []Feed
	keywords  []string
	parser    *gofeed.Parser
	retry     relay.RetryPolicy
}

// WatcherOption defines a configuration option for the feed watcher.
type WatcherOption func(*Watcher)

// WithFeeds sets the watched feeds.
func WithFeeds(feeds []Feed) WatcherOption {
	return func(w *Watcher) {
		if len(feeds) > 0 {
			w.feeds = feeds
		}
	}
}

// WithKeywords sets the relevance keywords.
func WithKeywords(keywords []string) WatcherOption {
	return func(w *Watcher) {
		if len(keywords) > 0 {
			w.keywords = keywords
		}
	}
}

// WithRelayLog also deduplicates against (and records into) the relay log's
// seen-item table.
func WithRelayLog(log store.RelayLog) WatcherOption {
	return func(w *Watcher) {
		w.relayLog = log
	}
}

// WithHTTPClient bounds feed fetches with the given client.
func WithHTTPClient(client *http.Client) WatcherOption {
	return func(w *Watcher) {
		w.parser.Client = client
	}
}

// WithRetryPolicy sets the per-step retry policy.
func WithRetryPolicy(p relay.RetryPolicy) WatcherOption {
	return func(w *Watcher) {
		w.retry = p
	}
}

// NewWatcher creates a feed watcher publishing through publisher and
// checkpointing seen entry ids through state.
func NewWatcher(state relay.StateStore, publisher relay.Publisher, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		state:     state,
		publisher: publisher,
		feeds:     DefaultFeeds,
		keywords:  DefaultKeywords,
		parser:    gofeed.NewParser(),
		retry:     relay.DefaultRetryPolicy(),
	}
	w.parser.Client = &http.Client{Timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes one watch pass over every configured feed. A feed that fails
// to fetch is logged and skipped; a publish failure stops the run with the
// seen-id checkpoint preserved.
func (w *Watcher) Run(ctx context.Context) (*Report, error) {
	st := w.state.Load()
	report := &Report{Feeds: len(w.feeds)}
	slog.Info("Watcher.Run: starting feed watch", "feeds", len(w.feeds), "seen_ids", len(st.SeenIDs))

	for _, feed := range w.feeds {
		items, err := w.fetchFeed(ctx, feed)
		if err != nil {
			report.FailedFeeds++
			slog.Error("Watcher.Run: feed fetch failed, skipping feed", "feed", feed.Name, "error", err)
			continue
		}
		report.Items += len(items)

		for _, item := range items {
			if item.UID == "" {
				report.Skipped++
				continue
			}
			seen, err := w.alreadySeen(&st, item.UID)
			if err != nil {
				slog.Warn("Watcher.Run: seen lookup failed, treating as unseen", "uid", item.UID, "error", err)
			}
			if seen {
				report.Skipped++
				continue
			}
			if !w.relevant(item) {
				slog.Debug("Watcher.Run: item not relevant", "feed", feed.Name, "uid", item.UID)
				report.Skipped++
				continue
			}

			body := w.formatItem(item)
			err = w.retry.Do(ctx, "publish", func(ctx context.Context) error {
				_, perr := w.publisher.Publish(ctx, body)
				return perr
			})
			if err != nil {
				slog.Error("Watcher.Run: publish failed, stopping run", "feed", feed.Name, "uid", item.UID, "stage", "publish", "error", err)
				return report, &models.PublishError{Cause: err}
			}

			w.markSeen(&st, item.UID)
			if err := w.state.Save(st); err != nil {
				slog.Error("Watcher.Run: failed to persist checkpoint, stopping run", "uid", item.UID, "error", err)
				return report, fmt.Errorf("failed to persist checkpoint after item %s: %w", item.UID, err)
			}
			report.Published++
			slog.Info("Watcher.Run: item published", "feed", feed.Name, "uid", item.UID)
		}
	}

	slog.Info("Watcher.Run: feed watch complete",
		"feeds", report.Feeds, "failed_feeds", report.FailedFeeds, "items", report.Items,
		"published", report.Published, "skipped", report.Skipped)
	return report, nil
}

// fetchFeed downloads and parses one feed, returning its entries oldest first.
func (w *Watcher) fetchFeed(ctx context.Context, feed Feed) ([]models.FeedItem, error) {
	var parsed *gofeed.Feed
	err := w.retry.Do(ctx, "fetch", func(ctx context.Context) error {
		var ferr error
		parsed, ferr = w.parser.ParseURLWithContext(feed.URL, ctx)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feed.Name, err)
	}

	items := make([]models.FeedItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		uid := entry.GUID
		if uid == "" {
			uid = entry.Link
		}
		item := models.FeedItem{
			UID:     uid,
			Title:   strings.TrimSpace(entry.Title),
			Summary: strings.TrimSpace(entry.Description),
			Link:    entry.Link,
			Source:  feed.Name,
		}
		if entry.PublishedParsed != nil {
			item.Published = *entry.PublishedParsed
		}
		items = append(items, item)
	}

	// Publish oldest first so the channel reads chronologically.
	sort.SliceStable(items, func(i, j int) bool { return items[i].Published.Before(items[j].Published) })

	slog.Debug("Watcher.fetchFeed succeeded", "feed", feed.Name, "items", len(items))
	return items, nil
}

func (w *Watcher) relevant(item models.FeedItem) bool {
	text := strings.ToLower(item.Title + " " + item.Summary)
	for _, k := range w.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// alreadySeen consults the state checkpoint and, when present, the relay log.
func (w *Watcher) alreadySeen(st *models.RelayState, uid string) (bool, error) {
	if st.HasSeen(uid) {
		return true, nil
	}
	if w.relayLog == nil {
		return false, nil
	}
	return w.relayLog.IsSeen(uid)
}

func (w *Watcher) markSeen(st *models.RelayState, uid string) {
	st.MarkSeen(uid)
	if w.relayLog != nil {
		if _, err := w.relayLog.MarkSeen(uid); err != nil {
			slog.Warn("Watcher.markSeen: relay log write failed", "uid", uid, "error", err)
		}
	}
}

// formatItem renders the channel post for one feed entry. Feed titles and
// summaries routinely carry raw & and <; they must be entity-escaped or
// Telegram rejects the HTML body and the run wedges on that item.
func (w *Watcher) formatItem(item models.FeedItem) string {
	summary := item.Summary
	if runes := []rune(summary); len(runes) > summaryLimit {
		summary = string(runes[:summaryLimit]) + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(item.Title))
	if summary != "" {
		fmt.Fprintf(&b, "%s\n\n", html.EscapeString(summary))
	}
	fmt.Fprintf(&b, "<b>Source:</b> %s\n", html.EscapeString(item.Source))
	if !item.Published.IsZero() {
		fmt.Fprintf(&b, "<b>Date:</b> %s\n", item.Published.UTC().Format(time.RFC1123))
	}
	if item.Link != "" {
		fmt.Fprintf(&b, `<a href="%s">Read full article</a>`, html.EscapeString(item.Link))
		b.WriteString("\n")
	}
	b.WriteString("\n<i>This content is a direct reference to the original source and does not constitute trading advice.</i>")
	if tags := DetectHashtags(item.Title + " " + item.Summary); tags != "" {
		fmt.Fprintf(&b, "\n\n%s", tags)
	}
	return b.String()
}
