package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ai-trader-engine/config"
	"ai-trader-engine/internal/api"
	"ai-trader-engine/internal/auth"
	"ai-trader-engine/internal/cache"
	"ai-trader-engine/internal/database"
	"ai-trader-engine/internal/events"
	"ai-trader-engine/internal/logging"
	"ai-trader-engine/internal/marketdata"
	"ai-trader-engine/internal/position"
	"ai-trader-engine/internal/proposal"
	"ai-trader-engine/internal/vault"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Default().Fatal("failed to load configuration", "error", err)
	}

	appLog := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		Component:  "engine",
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logging.SetDefault(appLog)

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if !cfg.LoggingConfig.JSONFormat {
		zlog = zlog.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	appLog.Info("starting trade proposal engine",
		"port", cfg.ServerConfig.Port,
		"mock_market_data", cfg.MarketDataConfig.MockMode)

	// Persistence is optional; the engine runs in-memory without it
	var repo *database.Repository
	if cfg.DatabaseConfig.Host != "" {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			appLog.Warn("database unavailable, running without persistence", "error", err)
		} else {
			defer db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := db.Migrate(ctx); err != nil {
				cancel()
				appLog.Fatal("database migration failed", "error", err)
			}
			cancel()

			repo = database.NewRepository(db)
			appLog.Info("database connected", "host", cfg.DatabaseConfig.Host)
		}
	}

	// Quote cache is optional
	var quoteCache *cache.QuoteCache
	if cfg.RedisConfig.Enabled {
		quoteCache, err = cache.NewQuoteCache(cfg.RedisConfig, zlog.With().Str("component", "cache").Logger())
		if err != nil {
			appLog.Warn("quote cache disabled", "error", err)
		} else {
			defer quoteCache.Close()
		}
	}

	// Broker credentials live in Vault when enabled
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		appLog.Fatal("failed to initialize vault client", "error", err)
	}
	if vaultClient.IsEnabled() {
		if err := vaultClient.Health(context.Background()); err != nil {
			appLog.Warn("vault health check failed", "error", err)
		}
	}

	var provider marketdata.QuoteProvider
	if cfg.MarketDataConfig.MockMode {
		provider = marketdata.NewMockProvider(time.Now().UnixNano())
	} else {
		stream := marketdata.NewStream(cfg.MarketDataConfig.StreamURL, nil,
			zlog.With().Str("component", "marketdata").Logger())
		stream.Start()
		defer stream.Stop()
		provider = streamProvider{stream}
	}

	eventBus := events.NewEventBus()
	proposals := proposal.NewStore(zlog.With().Str("component", "proposals").Logger())
	positions := position.NewStore()

	var authService *auth.Service
	if cfg.AuthConfig.Enabled {
		jwtManager := auth.NewJWTManager(
			cfg.AuthConfig.JWTSecret,
			time.Duration(cfg.AuthConfig.AccessTokenMinutes)*time.Minute,
			time.Duration(cfg.AuthConfig.RefreshTokenHours)*time.Hour,
		)
		authService = auth.NewService(jwtManager, auth.NewPasswordManager(auth.DefaultBcryptCost, auth.MinPasswordLength))
		if cfg.AuthConfig.AdminEmail != "" {
			if err := authService.RegisterUser(cfg.AuthConfig.AdminEmail, cfg.AuthConfig.AdminPassword, true); err != nil {
				appLog.Fatal("failed to seed admin user", "error", err)
			}
			appLog.Info("admin user seeded", "email", cfg.AuthConfig.AdminEmail)
		}
	}

	server := api.NewServer(
		api.ServerConfig{
			Host:             cfg.ServerConfig.Host,
			Port:             cfg.ServerConfig.Port,
			ProductionMode:   cfg.ServerConfig.ProductionMode,
			AllowedOrigins:   cfg.ServerConfig.AllowedOrigins,
			SampleRangePct:   cfg.EngineConfig.SampleRangePct,
			SampleCount:      cfg.EngineConfig.SampleCount,
			ProposalDeadline: cfg.ProposalDeadline(),
		},
		proposals,
		positions,
		repo,
		provider,
		quoteCache,
		eventBus,
		authService,
		vaultClient,
		zlog.With().Str("component", "api").Logger(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			appLog.Fatal("server failed", "error", err)
		}
	case sig := <-sigCh:
		appLog.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLog.Error("shutdown error", "error", err)
	}
	appLog.Info("engine stopped")
}

// streamProvider adapts the websocket stream's last-known quotes to the
// QuoteProvider interface.
type streamProvider struct {
	stream *marketdata.Stream
}

func (p streamProvider) GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	if q := p.stream.Latest(symbol); q != nil {
		return q, nil
	}
	return nil, marketdata.ErrUnknownSymbol
}
