// Package api provides the HTTP server for Recommendy.
//
// It exposes the conversation as JSON endpoints, a websocket chat and the
// Twilio WhatsApp webhook, and wires the store, classifier, places search and
// chat channels together in Run.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/Recommendy/internal/flow"
	"github.com/BTreeMap/Recommendy/internal/genai"
	"github.com/BTreeMap/Recommendy/internal/messaging"
	"github.com/BTreeMap/Recommendy/internal/models"
	"github.com/BTreeMap/Recommendy/internal/places"
	"github.com/BTreeMap/Recommendy/internal/recommend"
	"github.com/BTreeMap/Recommendy/internal/store"
	"github.com/BTreeMap/Recommendy/internal/tone"
	"github.com/BTreeMap/Recommendy/internal/twiliowhatsapp"
	"github.com/BTreeMap/Recommendy/internal/whatsapp"
)

const (
	// DefaultServerAddr is the default HTTP listen address.
	DefaultServerAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// TwilioWebhookPath is where Twilio posts inbound messages.
	TwilioWebhookPath = "/twilio/webhook"
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr             string
	EnableWhatsApp   bool
	EnableTwilio     bool
	TwilioWebhookURL string
	ShutdownTimeout  time.Duration
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithWhatsApp enables the whatsmeow chat channel.
func WithWhatsApp(enabled bool) Option {
	return func(o *Opts) { o.EnableWhatsApp = enabled }
}

// WithTwilio enables the Twilio chat channel and its webhook.
func WithTwilio(enabled bool) Option {
	return func(o *Opts) { o.EnableTwilio = enabled }
}

// WithTwilioWebhookURL sets the public webhook URL used to verify signatures.
func WithTwilioWebhookURL(u string) Option {
	return func(o *Opts) { o.TwilioWebhookURL = u }
}

// WithShutdownTimeout sets how long to wait for in-flight requests on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// Modules groups per-module options passed to Run.
type Modules struct {
	Store    []store.Option
	Redis    []store.RedisOption // nil keeps sessions in Store
	GenAI    []genai.Option
	Places   []places.Option
	WhatsApp []whatsapp.Option
	Twilio   []twiliowhatsapp.Option
	API      []Option
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	cm         *flow.ConversationManager
	classifier *tone.Classifier
	twilio     *messaging.TwilioService // nil when the Twilio channel is off
	upgrader   websocket.Upgrader
}

// NewServer creates a Server. twilioSvc may be nil.
func NewServer(cm *flow.ConversationManager, twilioSvc *messaging.TwilioService) *Server {
	return &Server{
		cm:         cm,
		classifier: cm.Classifier(),
		twilio:     twilioSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/start_conversation", s.startConversationHandler)
	mux.HandleFunc("/process_input", s.processInputHandler)
	mux.HandleFunc("/recommendations", s.recommendationsHandler)
	mux.HandleFunc("/sentiment_analysis", s.sentimentAnalysisHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/chat", s.chatHandler)
	if s.twilio != nil {
		mux.HandleFunc(TwilioWebhookPath, s.twilio.WebhookHandler)
	}
	return mux
}

// Run builds every module from its options and serves until ctx is cancelled
// or the listener fails.
func Run(ctx context.Context, m Modules) error {
	cfg := Opts{Addr: DefaultServerAddr, ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range m.API {
		opt(&cfg)
	}

	st, err := openStore(m.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	var sessions store.SessionStore = st
	if m.Redis != nil {
		rs, err := store.NewRedisSessionStore(ctx, m.Redis...)
		if err != nil {
			return fmt.Errorf("failed to open Redis session store: %w", err)
		}
		defer rs.Close()
		sessions = rs
		slog.Info("Run: sessions stored in Redis")
	}

	cm := flow.NewConversationManager(nil,
		flow.NewStoreBasedSessionManager(sessions),
		tone.NewClassifier(buildPolarityScorer(m.GenAI)),
		recommend.NewScorer(buildSearcher(m.Places), st))

	var services []messaging.Service
	var twilioSvc *messaging.TwilioService
	if cfg.EnableTwilio {
		tc, err := twiliowhatsapp.NewClient(m.Twilio...)
		if err != nil {
			return fmt.Errorf("failed to create Twilio client: %w", err)
		}
		twilioSvc = messaging.NewTwilioService(tc, messaging.WithWebhookValidator(tc.Validator(), cfg.TwilioWebhookURL))
		services = append(services, twilioSvc)
	}
	if cfg.EnableWhatsApp {
		wc, err := whatsapp.NewClient(ctx, m.WhatsApp...)
		if err != nil {
			return fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		defer wc.Disconnect()
		services = append(services, messaging.NewWhatsAppService(wc))
	}

	srv := NewServer(cm, twilioSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		if err := svc.Start(gctx); err != nil {
			return fmt.Errorf("failed to start messaging service: %w", err)
		}
		rh := messaging.NewResponseHandler(svc, cm, st)
		rh.Start(gctx)
		g.Go(func() error {
			<-rh.Done()
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("Recommendy API server listening", "addr", cfg.Addr, "channels", len(services))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		for _, svc := range services {
			if stopErr := svc.Stop(); stopErr != nil {
				slog.Warn("Run: failed to stop messaging service", "error", stopErr)
			}
		}
		return err
	})

	return g.Wait()
}

// openStore picks the backend from the configured DSN; no DSN keeps
// everything in memory.
func openStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Info("openStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	case store.DetectDSNType(cfg.DSN) == "postgres":
		st, err := store.NewPostgresStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open Postgres store: %w", err)
		}
		return st, nil
	default:
		st, err := store.NewSQLiteStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite store: %w", err)
		}
		return st, nil
	}
}

// buildPolarityScorer prefers the LLM scorer and falls back to the lexicon
// when no API key is configured.
func buildPolarityScorer(opts []genai.Option) tone.PolarityScorer {
	lexicon := tone.NewLexiconScorer()
	client, err := genai.NewClient(opts...)
	if err != nil {
		slog.Info("buildPolarityScorer: GenAI unavailable, using lexicon scorer", "reason", err)
		return lexicon
	}
	return genai.NewScorer(client, lexicon)
}

// buildSearcher returns the Places client, or nil when it cannot be created.
func buildSearcher(opts []places.Option) recommend.Searcher {
	client, err := places.NewClient(opts...)
	if err != nil {
		slog.Warn("buildSearcher: Places search disabled, conversations will end without a match", "reason", err)
		return nil
	}
	return client
}

// errorStatus maps request validation errors to 400 and everything else to 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyUserID),
		errors.Is(err, models.ErrUserIDTooLong),
		errors.Is(err, models.ErrEmptyText),
		errors.Is(err, models.ErrTextTooLong),
		errors.Is(err, models.ErrDisplayNameTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
