package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3l0x42/flipply/internal/config"
	"github.com/m3l0x42/flipply/internal/ebay"
	"github.com/m3l0x42/flipply/internal/ledger"
	"github.com/m3l0x42/flipply/internal/llm"
	"github.com/m3l0x42/flipply/internal/pipeline"
	"github.com/m3l0x42/flipply/internal/server"
	"github.com/m3l0x42/flipply/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	apiBase := ebay.SandboxBaseURL
	viewURLBase := "https://sandbox.ebay.com/itm/"
	if !cfg.Sandbox {
		apiBase = ebay.ProductionBaseURL
		viewURLBase = "https://www.ebay.com/itm/"
	}
	log.Info().Bool("sandbox", cfg.Sandbox).Str("apiBase", apiBase).Msg("ebay environment selected")

	store, err := storage.NewSQLiteStore(cfg.DBPath, storage.DeriveKey(cfg.TokenPassphrase))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("store initialized")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	geminiAnalyzer, err := llm.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gemini analyzer")
	}
	analyzer := llm.NewCachedAnalyzer(geminiAnalyzer, store)
	log.Info().Msg("vision analyzer initialized with caching")

	tokens := ebay.NewTokenSource(apiBase, cfg.EbayClientID, cfg.EbayClientSecret)
	browse := ebay.NewBrowseClient(apiBase, tokens)

	trading := ebay.NewTradingClient(apiBase, ebay.TradingCredentials{
		DevID:  cfg.EbayDevID,
		AppID:  cfg.EbayAppID,
		CertID: cfg.EbayCertID,
	})
	tradingToken, _, err := store.GetTradingToken()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load trading token")
	}
	if tradingToken == "" {
		log.Warn().Msg("no trading auth token stored; listing creation will fail until ebay-auth is run")
	} else {
		trading.SetAuthToken(tradingToken)
	}

	listingLedger := ledger.New(cfg.LedgerPath)
	listings := ebay.NewListingService(trading, listingLedger, viewURLBase)
	orchestrator := pipeline.New(analyzer, browse)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(orchestrator, listings, listingLedger).Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}
