package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/ChannelRelay/internal/feeds"
	"github.com/BTreeMap/ChannelRelay/internal/langdetect"
	"github.com/BTreeMap/ChannelRelay/internal/lockfile"
	"github.com/BTreeMap/ChannelRelay/internal/models"
	"github.com/BTreeMap/ChannelRelay/internal/relay"
	"github.com/BTreeMap/ChannelRelay/internal/state"
	"github.com/BTreeMap/ChannelRelay/internal/store"
	"github.com/BTreeMap/ChannelRelay/internal/telegram"
	"github.com/BTreeMap/ChannelRelay/internal/translate"
	"github.com/BTreeMap/ChannelRelay/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ChannelRelay state data
	DefaultStateDir = "/var/lib/channelrelay"
	// DefaultDBFileName is the default SQLite database filename for the relay log
	DefaultDBFileName = "channelrelay.db"
	// JobRelay relays channel posts, JobFeeds watches the RSS feeds.
	JobRelay = "relay"
	JobFeeds = "feeds"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	if err := validateRequiredSettings(flags); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Refuse to run next to another live invocation; the watermark protocol
	// assumes a single writer.
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Another invocation is already running", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping ChannelRelay", "job", *flags.job, "state_dir", *flags.stateDir)
	if err := run(flags); err != nil {
		slog.Error("ChannelRelay failed to start", "job", *flags.job, "error", err)
		os.Exit(1)
	}
	slog.Info("ChannelRelay exited successfully")
}

// Config holds environment configuration
type Config struct {
	SourceChannel  string
	TargetChannel  string
	BotCredential  string
	StateDir       string
	StateFile      string
	DatabaseDSN    string
	OpenAIKey      string
	TranslateModel string
	FeedList       string
}

// Flags holds command line flag values
type Flags struct {
	job            *string
	sourceChannel  *string
	targetChannel  *string
	botCredential  *string
	stateDir       *string
	stateFile      *string
	dbDSN          *string
	openaiKey      *string
	translateModel *string
	feedList       *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		SourceChannel:  os.Getenv("SOURCE_CHANNEL"),
		TargetChannel:  os.Getenv("TARGET_CHANNEL"),
		BotCredential:  os.Getenv("BOT_CREDENTIAL"),
		StateDir:       os.Getenv("RELAY_STATE_DIR"),
		StateFile:      os.Getenv("RELAY_STATE_FILE"),
		DatabaseDSN:    os.Getenv("RELAY_DB_DSN"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		TranslateModel: os.Getenv("TRANSLATE_MODEL"),
		FeedList:       os.Getenv("RELAY_FEEDS"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No RELAY_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("RELAY_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// Default to the legacy DATABASE_URL when RELAY_DB_DSN is not set
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = os.Getenv("DATABASE_URL")
		if config.DatabaseDSN != "" {
			slog.Debug("Using DATABASE_URL as RELAY_DB_DSN", "dsn_set", true)
		}
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	if config.StateFile == "" {
		config.StateFile = state.DefaultFileName
	}

	slog.Debug("environment variables loaded",
		"SOURCE_CHANNEL", config.SourceChannel,
		"TARGET_CHANNEL_SET", config.TargetChannel != "",
		"BOT_CREDENTIAL_SET", config.BotCredential != "",
		"RELAY_STATE_DIR", config.StateDir,
		"RELAY_STATE_FILE", config.StateFile,
		"RELAY_DB_DSN_SET", config.DatabaseDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"TRANSLATE_MODEL", config.TranslateModel,
		"RELAY_FEEDS_SET", config.FeedList != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		job:            flag.String("job", JobRelay, "job to run: relay (channel posts) or feeds (RSS watch)"),
		sourceChannel:  flag.String("source-channel", config.SourceChannel, "source channel username (overrides $SOURCE_CHANNEL)"),
		targetChannel:  flag.String("target-channel", config.TargetChannel, "target channel username or chat id (overrides $TARGET_CHANNEL)"),
		botCredential:  flag.String("bot-credential", config.BotCredential, "bot API token (overrides $BOT_CREDENTIAL)"),
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for ChannelRelay data (overrides $RELAY_STATE_DIR)"),
		stateFile:      flag.String("state-file", config.StateFile, "checkpoint filename inside the state directory (overrides $RELAY_STATE_FILE)"),
		dbDSN:          flag.String("db-dsn", config.DatabaseDSN, "relay log database DSN (overrides $RELAY_DB_DSN or $DATABASE_URL)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		translateModel: flag.String("translate-model", config.TranslateModel, "chat model used for translation (overrides $TRANSLATE_MODEL)"),
		feedList:       flag.String("feeds", config.FeedList, "comma-separated RSS feed URLs for the feeds job (overrides $RELAY_FEEDS)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"job", *flags.job,
		"sourceChannel", *flags.sourceChannel,
		"targetChannelSet", *flags.targetChannel != "",
		"botCredentialSet", *flags.botCredential != "",
		"stateDir", *flags.stateDir,
		"stateFile", *flags.stateFile,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"translateModel", *flags.translateModel,
		"feedsSet", *flags.feedList != "")

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseDSN && config.DatabaseDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// validateRequiredSettings checks the settings every job needs before any
// network call is made.
func validateRequiredSettings(flags Flags) error {
	if *flags.botCredential == "" {
		return &models.ConfigError{Field: "BOT_CREDENTIAL"}
	}
	if *flags.targetChannel == "" {
		return &models.ConfigError{Field: "TARGET_CHANNEL"}
	}
	if *flags.job == JobRelay && *flags.sourceChannel == "" {
		return &models.ConfigError{Field: "SOURCE_CHANNEL"}
	}
	if *flags.job != JobRelay && *flags.job != JobFeeds {
		return &models.ConfigError{Field: "job", Cause: fmt.Errorf("unknown job %q", *flags.job)}
	}
	return nil
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	slog.Debug("Creating state directory", "state_dir", *flags.stateDir)
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", *flags.stateDir)
		return err
	}
	if *flags.dbDSN != "" && store.DetectDSNType(*flags.dbDSN) != "postgres" {
		dbDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating directory for file-based relay log", "db_dir", dbDir)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			slog.Error("Failed to create relay log directory", "error", err, "db_dir", dbDir)
			return err
		}
	}
	return nil
}

// buildRelayLog constructs the relay log backend matching the DSN. No DSN means
// no durable relay log; the engine runs on the state file alone.
func buildRelayLog(flags Flags) (store.RelayLog, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, running without a durable relay log")
		return nil, nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL relay log", "dsn_type", "postgresql")
		return store.NewPostgresRelayLog(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite relay log", "dsn_type", "sqlite", "db_path", dsn)
	return store.NewSQLiteRelayLog(store.WithSQLiteDSN(dsn))
}

// buildTelegramOptions constructs Telegram client configuration options
func buildTelegramOptions(flags Flags) []telegram.Option {
	opts := []telegram.Option{
		telegram.WithToken(*flags.botCredential),
		telegram.WithTargetChannel(*flags.targetChannel),
	}
	if *flags.sourceChannel != "" {
		opts = append(opts, telegram.WithSourceChannel(*flags.sourceChannel))
	}
	return opts
}

// buildTranslatorOptions constructs translation provider configuration options
func buildTranslatorOptions(flags Flags) []translate.Option {
	var opts []translate.Option
	if *flags.openaiKey != "" {
		opts = append(opts, translate.WithAPIKey(*flags.openaiKey))
	}
	if *flags.translateModel != "" {
		opts = append(opts, translate.WithModel(*flags.translateModel))
	}
	return opts
}

// parseFeedList turns a comma-separated URL list into named feeds, naming each
// feed after its host.
func parseFeedList(list string) []feeds.Feed {
	var out []feeds.Feed
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name := raw
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			name = strings.TrimPrefix(u.Hostname(), "www.")
		}
		out = append(out, feeds.Feed{Name: name, URL: raw})
	}
	return out
}

// run builds the requested job and executes one pass. A run that stops early
// on a message failure is partial success: committed progress is preserved and
// the next invocation resumes at the watermark, so no error is returned.
func run(flags Flags) error {
	stateStore := state.NewStore(filepath.Join(*flags.stateDir, *flags.stateFile))

	relayLog, err := buildRelayLog(flags)
	if err != nil {
		return err
	}
	if relayLog != nil {
		defer relayLog.Close()
	}

	client, err := telegram.NewClient(buildTelegramOptions(flags)...)
	if err != nil {
		return err
	}

	ctx := context.Background()

	switch *flags.job {
	case JobFeeds:
		var watcherOpts []feeds.WatcherOption
		if parsed := parseFeedList(*flags.feedList); len(parsed) > 0 {
			watcherOpts = append(watcherOpts, feeds.WithFeeds(parsed))
		}
		if keywords := util.ParseListEnv("RELAY_KEYWORDS"); len(keywords) > 0 {
			watcherOpts = append(watcherOpts, feeds.WithKeywords(keywords))
		}
		if relayLog != nil {
			watcherOpts = append(watcherOpts, feeds.WithRelayLog(relayLog))
		}
		watcher := feeds.NewWatcher(stateStore, client, watcherOpts...)
		if report, err := watcher.Run(ctx); err != nil {
			slog.Warn("Feed watch stopped early, committed progress preserved",
				"published", report.Published, "skipped", report.Skipped, "error", err)
		}
		return nil

	default:
		translator, err := translate.NewOpenAIProvider(buildTranslatorOptions(flags)...)
		if err != nil {
			return err
		}
		formatter := relay.NewFormatter(translator, langdetect.New())

		engineOpts := []relay.EngineOption{
			relay.WithFilter(relay.Filter{
				SourceChannel:   client.SourceChannel(),
				RequireTemplate: util.ParseBoolEnv("RELAY_REQUIRE_TEMPLATE", true),
				Keywords:        util.ParseListEnv("RELAY_KEYWORDS"),
			}),
		}
		if relayLog != nil {
			engineOpts = append(engineOpts, relay.WithRelayLog(relayLog))
		}

		engine := relay.NewEngine(stateStore, client, formatter, client, engineOpts...)
		if report, err := engine.Run(ctx); err != nil {
			slog.Warn("Relay run stopped early, committed progress preserved",
				"relayed", report.Relayed, "skipped", report.Skipped,
				"watermark", report.LastMessageID, "failed_id", report.FailedID,
				"failed_stage", report.FailedStage, "error", err)
		}
		return nil
	}
}
