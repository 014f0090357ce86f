// Command talkscene is the main entry point for the TalkScene practice server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/talkscene/talkscene/internal/api"
	"github.com/talkscene/talkscene/internal/auth"
	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/config"
	"github.com/talkscene/talkscene/internal/dialogue"
	"github.com/talkscene/talkscene/internal/observe"
	"github.com/talkscene/talkscene/internal/payment"
	"github.com/talkscene/talkscene/internal/usage"
	"github.com/talkscene/talkscene/internal/user"
	"github.com/talkscene/talkscene/pkg/provider/image"
	imageopenai "github.com/talkscene/talkscene/pkg/provider/image/openai"
	"github.com/talkscene/talkscene/pkg/provider/llm"
	"github.com/talkscene/talkscene/pkg/provider/llm/anyllm"
	llmopenai "github.com/talkscene/talkscene/pkg/provider/llm/openai"
	"github.com/talkscene/talkscene/pkg/provider/stt"
	sttopenai "github.com/talkscene/talkscene/pkg/provider/stt/openai"
	"github.com/talkscene/talkscene/pkg/provider/tts"
	ttsopenai "github.com/talkscene/talkscene/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env first so ${VAR} expansion in the config file sees it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "talkscene: load .env: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "talkscene: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "talkscene: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("talkscene starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "talkscene"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProv, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}
	sttProv, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}
	ttsProv, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to build tts provider", "err", err)
		return 1
	}
	imageProv, err := reg.CreateImage(cfg.Providers.Image)
	if err != nil {
		slog.Error("failed to build image provider", "err", err)
		return 1
	}

	// ── Stores ────────────────────────────────────────────────────────────────
	var (
		users      user.Store
		counts     usage.Store
		characters character.Store
	)
	if dsn := cfg.Database.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to open postgres pool", "err", err)
			return 1
		}
		defer pool.Close()

		userStore := user.NewPostgresStore(pool)
		usageStore := usage.NewPostgresStore(pool)
		charStore := character.NewPostgresStore(pool)
		for _, m := range []interface {
			Migrate(context.Context) error
		}{userStore, usageStore, charStore} {
			if err := m.Migrate(ctx); err != nil {
				slog.Error("migration failed", "err", err)
				return 1
			}
		}
		users, counts, characters = userStore, usageStore, charStore
		slog.Info("postgres connected")
	} else {
		users = user.NewMemStore()
		counts = usage.NewMemStore()
		characters = character.NewMemStore()
		slog.Warn("no postgres_dsn configured, using in-memory stores; data is lost on restart")
	}

	// ── Services ──────────────────────────────────────────────────────────────
	ledger := usage.NewLedger(users, counts, logger)

	var authOpts []auth.Option
	if cfg.Auth.SessionTTLHours > 0 {
		authOpts = append(authOpts, auth.WithTTL(time.Duration(cfg.Auth.SessionTTLHours)*time.Hour))
	}
	authSvc := auth.NewService(users, logger, authOpts...)

	var google *auth.Google
	if g := cfg.Auth.Google; g != nil {
		google = auth.NewGoogle(g.ClientID, g.ClientSecret, g.RedirectURL, users, logger)
	}

	var payments *payment.Service
	if cfg.Payment.BaseURL != "" {
		restProv, err := payment.NewRESTProvider(cfg.Payment.BaseURL, cfg.Payment.APIKey)
		if err != nil {
			slog.Error("failed to build payment provider", "err", err)
			return 1
		}
		payments = payment.NewService(restProv, users, logger)
	}

	tutor := dialogue.NewTutor(llmProv)
	orch := dialogue.New(tutor, sttProv, ttsProv, ledger, logger,
		dialogueOptions(cfg.Dialogue, metrics)...)
	creator := character.NewCreator(imageProv, characters, ledger, logger)

	srv := api.New(api.Deps{
		Auth:           authSvc,
		Google:         google,
		Users:          users,
		Ledger:         ledger,
		Payments:       payments,
		Characters:     characters,
		Creator:        creator,
		Orchestrator:   orch,
		Tutor:          tutor,
		TTS:            ttsProv,
		STT:            sttProv,
		Metrics:        metrics,
		Log:            logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down")
		if tls := cfg.Server.TLS; tls != nil {
			errCh <- httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai gets the dedicated backend; everything else goes through anyllm
	// with the shared APIKey + BaseURL pattern.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}
	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})
	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	})
	reg.RegisterImage("openai", func(entry config.ProviderEntry) (image.Provider, error) {
		var opts []imageopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, imageopenai.WithBaseURL(entry.BaseURL))
		}
		return imageopenai.New(entry.APIKey, entry.Model, opts...)
	})
}

// dialogueOptions converts the config block into orchestrator options.
func dialogueOptions(cfg config.DialogueConfig, metrics *observe.Metrics) []dialogue.Option {
	opts := []dialogue.Option{dialogue.WithMetrics(metrics)}
	if cfg.TurnTimeoutSeconds > 0 {
		opts = append(opts, dialogue.WithCallTimeout(time.Duration(cfg.TurnTimeoutSeconds)*time.Second))
	}
	if cfg.HistoryWindow > 0 {
		opts = append(opts, dialogue.WithHistoryWindow(cfg.HistoryWindow))
	}
	if cfg.RelistenDelayMillis > 0 {
		opts = append(opts, dialogue.WithRelistenDelay(time.Duration(cfg.RelistenDelayMillis)*time.Millisecond))
	}
	return opts
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
