package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BTreeMap/Recommendy/internal/api"
	"github.com/BTreeMap/Recommendy/internal/config"
	"github.com/BTreeMap/Recommendy/internal/genai"
	"github.com/BTreeMap/Recommendy/internal/lockfile"
	"github.com/BTreeMap/Recommendy/internal/places"
	"github.com/BTreeMap/Recommendy/internal/store"
	"github.com/BTreeMap/Recommendy/internal/twiliowhatsapp"
	"github.com/BTreeMap/Recommendy/internal/whatsapp"
)

// DefaultConfigPath is read when neither -config nor $RECOMMENDY_CONFIG is set.
const DefaultConfigPath = "recommendy.yaml"

// logLevel is shared by the default handler so the configured level can be
// applied after startup logging has begun.
var logLevel = new(slog.LevelVar)

func main() {
	// Initialize structured logger
	initializeLogger()

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(2)
	}

	lock, err := lockfile.AcquireLock(cfg.StateDir, cfg.API.Addr)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modules := buildModules(cfg)
	slog.Info("Bootstrapping Recommendy with configured modules")
	slog.Debug("Module options counts",
		"store", len(modules.Store), "redis", len(modules.Redis), "genai", len(modules.GenAI),
		"places", len(modules.Places), "whatsapp", len(modules.WhatsApp), "twilio", len(modules.Twilio), "api", len(modules.API))
	if err := api.Run(ctx, modules); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Recommendy failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Recommendy exited successfully")
}

// Flags holds command line flag values. Empty values leave the file and
// environment configuration alone.
type Flags struct {
	configPath *string
	logLevel   *string
	stateDir   *string
	apiAddr    *string
	dbDSN      *string
	redisAddr  *string
	openaiKey  *string
	placesKey  *string
	whatsapp   *bool
	qrOutput   *string
	numeric    *bool
	twilio     *bool
}

// initializeLogger sets up structured logging at debug level until the
// configured level is known.
func initializeLogger() {
	logLevel.Set(slog.LevelDebug)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

// loadConfig layers the YAML file and environment under the command line.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("recommendy", flag.ContinueOnError)
	flags := registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := *flags.configPath
	if path == "" {
		path = os.Getenv("RECOMMENDY_CONFIG")
	}
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	// Only flags given explicitly override the loaded configuration.
	fs.Visit(func(f *flag.Flag) { applyFlag(cfg, flags, f.Name) })
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ResolvePaths()

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logLevel.Set(level)

	slog.Debug("Final configuration",
		"config_path", path,
		"state_dir", cfg.StateDir,
		"api_addr", cfg.API.Addr,
		"dsn_type", dsnType(cfg.Database.DSN),
		"redis_set", cfg.Redis.Addr != "",
		"openai_key_set", cfg.OpenAI.APIKey != "",
		"places_key_set", cfg.Places.APIKey != "",
		"whatsapp", cfg.WhatsApp.Enabled,
		"twilio", cfg.Twilio.Enabled)
	return cfg, nil
}

func registerFlags(fs *flag.FlagSet) Flags {
	return Flags{
		configPath: fs.String("config", "", "path to YAML configuration (overrides $RECOMMENDY_CONFIG)"),
		logLevel:   fs.String("log-level", "", "debug, info, warn or error (overrides $RECOMMENDY_LOG_LEVEL)"),
		stateDir:   fs.String("state-dir", "", "state directory for Recommendy data (overrides $RECOMMENDY_STATE_DIR)"),
		apiAddr:    fs.String("api-addr", "", "API server address (overrides $API_ADDR)"),
		dbDSN:      fs.String("db-dsn", "", "record store DSN: postgres URL, SQLite path or \"memory\" (overrides $DATABASE_URL)"),
		redisAddr:  fs.String("redis-addr", "", "Redis address for dialogue sessions (overrides $REDIS_ADDR)"),
		openaiKey:  fs.String("openai-api-key", "", "OpenAI API key for sentiment scoring (overrides $OPENAI_API_KEY)"),
		placesKey:  fs.String("google-api-key", "", "Google Places API key (overrides $GOOGLE_API_KEY)"),
		whatsapp:   fs.Bool("whatsapp", false, "serve conversations over WhatsApp (overrides $WHATSAPP_ENABLED)"),
		qrOutput:   fs.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:    fs.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		twilio:     fs.Bool("twilio", false, "serve conversations over Twilio WhatsApp (overrides $TWILIO_ENABLED)"),
	}
}

func applyFlag(cfg *config.Config, flags Flags, name string) {
	switch name {
	case "log-level":
		cfg.LogLevel = *flags.logLevel
	case "state-dir":
		cfg.StateDir = *flags.stateDir
	case "api-addr":
		cfg.API.Addr = *flags.apiAddr
	case "db-dsn":
		cfg.Database.DSN = *flags.dbDSN
	case "redis-addr":
		cfg.Redis.Addr = *flags.redisAddr
	case "openai-api-key":
		cfg.OpenAI.APIKey = *flags.openaiKey
	case "google-api-key":
		cfg.Places.APIKey = *flags.placesKey
	case "whatsapp":
		cfg.WhatsApp.Enabled = *flags.whatsapp
	case "qr-output":
		cfg.WhatsApp.QROutput = *flags.qrOutput
	case "numeric-code":
		cfg.WhatsApp.NumericCode = *flags.numeric
	case "twilio":
		cfg.Twilio.Enabled = *flags.twilio
	}
}

func dsnType(dsn string) string {
	if dsn == config.MemoryDSN {
		return "memory"
	}
	return store.DetectDSNType(dsn)
}

func buildModules(cfg *config.Config) api.Modules {
	return api.Modules{
		Store:    buildStoreOptions(cfg),
		Redis:    buildRedisOptions(cfg),
		GenAI:    buildGenAIOptions(cfg),
		Places:   buildPlacesOptions(cfg),
		WhatsApp: buildWhatsAppOptions(cfg),
		Twilio:   buildTwilioOptions(cfg),
		API:      buildAPIOptions(cfg),
	}
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(cfg *config.Config) []store.Option {
	switch dsnType(cfg.Database.DSN) {
	case "memory":
		slog.Debug("In-memory store selected")
		return nil
	case "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(cfg.Database.DSN)}
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", cfg.Database.DSN)
		return []store.Option{store.WithSQLiteDSN(cfg.Database.DSN)}
	}
}

// buildRedisOptions returns nil unless a Redis address is configured.
func buildRedisOptions(cfg *config.Config) []store.RedisOption {
	if cfg.Redis.Addr == "" {
		return nil
	}
	opts := []store.RedisOption{
		store.WithRedisAddr(cfg.Redis.Addr),
		store.WithRedisDB(cfg.Redis.DB),
		store.WithSessionTTL(cfg.Redis.SessionTTL),
	}
	if cfg.Redis.Password != "" {
		opts = append(opts, store.WithRedisPassword(cfg.Redis.Password))
	}
	return opts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(cfg *config.Config) []genai.Option {
	var opts []genai.Option
	if cfg.OpenAI.APIKey != "" {
		opts = append(opts, genai.WithAPIKey(cfg.OpenAI.APIKey))
	}
	if cfg.OpenAI.Model != "" {
		opts = append(opts, genai.WithModel(cfg.OpenAI.Model))
	}
	return opts
}

func buildPlacesOptions(cfg *config.Config) []places.Option {
	opts := []places.Option{places.WithDetails(cfg.Places.Details)}
	if cfg.Places.APIKey != "" {
		opts = append(opts, places.WithAPIKey(cfg.Places.APIKey))
	}
	return opts
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(cfg *config.Config) []whatsapp.Option {
	var opts []whatsapp.Option
	if cfg.WhatsApp.QROutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(cfg.WhatsApp.QROutput))
	}
	if cfg.WhatsApp.NumericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	if cfg.WhatsApp.DBDSN != "" {
		opts = append(opts, whatsapp.WithDBDSN(cfg.WhatsApp.DBDSN))
	}
	return opts
}

func buildTwilioOptions(cfg *config.Config) []twiliowhatsapp.Option {
	if !cfg.Twilio.Enabled {
		return nil
	}
	return []twiliowhatsapp.Option{
		twiliowhatsapp.WithAccountSID(cfg.Twilio.AccountSID),
		twiliowhatsapp.WithAuthToken(cfg.Twilio.AuthToken),
		twiliowhatsapp.WithFromWhats(cfg.Twilio.FromNumber),
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(cfg *config.Config) []api.Option {
	opts := []api.Option{
		api.WithAddr(cfg.API.Addr),
		api.WithWhatsApp(cfg.WhatsApp.Enabled),
		api.WithTwilio(cfg.Twilio.Enabled),
	}
	if cfg.Twilio.WebhookURL != "" {
		opts = append(opts, api.WithTwilioWebhookURL(cfg.Twilio.WebhookURL))
	}
	return opts
}
