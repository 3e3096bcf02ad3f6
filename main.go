package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"google.golang.org/api/option"

	"money-tracker-go-be/ai"
	"money-tracker-go-be/alerts"
	"money-tracker-go-be/apperr"
	"money-tracker-go-be/banks"
	"money-tracker-go-be/categorize"
	"money-tracker-go-be/config"
	"money-tracker-go-be/database"
	"money-tracker-go-be/handlers"
	"money-tracker-go-be/logger"
	"money-tracker-go-be/rules"
	"money-tracker-go-be/sepay"
	"money-tracker-go-be/sheets"
	"money-tracker-go-be/transactions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, !cfg.IsProduction())
	ctx := logger.WithContext(context.Background(), log)

	db, err := database.Connect(cfg.Database.URL, log, cfg.IsProduction())
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	if err := database.SeedDefaults(db); err != nil {
		log.Fatal().Err(err).Msg("seed defaults")
	}

	patterns := categorize.NewPatternStore(db)
	categories := categorize.NewCategoryStore(db)
	engine := categorize.NewEngine(patterns, categories)
	learner := categorize.NewLearner(patterns)
	ruleSvc := rules.NewService(db, categories)
	bankSvc := banks.NewService(db, cfg.Sepay.BaseURL)
	alertSvc := alerts.NewService(db)
	detector := alerts.NewDetector(db, alertSvc, alerts.ThresholdsFrom(cfg.Alerts))

	pipeline := sepay.NewPipeline(db, bankSvc, engine, detector, sepay.Options{
		Verifier:      sepay.Verifier{Secret: cfg.Sepay.WebhookSecret, Tolerance: cfg.Sepay.TimestampTolerance},
		Strict:        cfg.IsProduction(),
		AllowFallback: cfg.Sepay.AllowFallbackAccount,
	})
	if cfg.Sepay.WebhookSecret == "" {
		log.Warn().Msg("SEPAY_WEBHOOK_SECRET is not set, webhook signatures are not checked")
	}

	var sepayAPI handlers.SepayAPI
	if cfg.Sepay.APIKey != "" {
		sepayAPI = sepay.NewClient(cfg.Sepay.BaseURL, cfg.Sepay.APIKey, nil)
	}

	var sheet handlers.SheetOpener
	if cfg.Sheets.SpreadsheetID != "" {
		sheet = func(ctx context.Context) (sheets.RowSource, error) {
			return sheets.NewAPISource(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range, option.WithAPIKey(cfg.Sheets.APIKey))
		}
	}

	var gen ai.Generator
	if g, err := ai.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model); err != nil {
		log.Warn().Err(err).Msg("ai suggestions disabled")
	} else {
		gen = g
	}

	h := handlers.New(handlers.Deps{
		Pipeline:        pipeline,
		SepayAPI:        sepayAPI,
		Banks:           bankSvc,
		Importer:        sheets.NewImporter(pipeline),
		Sheet:           sheet,
		Transactions:    transactions.NewService(db, categories, engine, learner, ruleSvc),
		Categories:      categories,
		Patterns:        patterns,
		Rules:           ruleSvc,
		Alerts:          alertSvc,
		Analyzer:        ai.NewAnalyzer(db, categories, gen),
		SignatureHeader: cfg.Sepay.SignatureHeader,
		TimestampHeader: cfg.Sepay.TimestampHeader,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: apperr.Handler(log, cfg.IsProduction()),
		BodyLimit:    10 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(handlers.RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-User-ID, " + cfg.Sepay.SignatureHeader + ", " + cfg.Sepay.TimestampHeader,
	}))
	h.Register(app)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()
	log.Info().Str("port", cfg.Server.Port).Str("env", cfg.App.Env).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
