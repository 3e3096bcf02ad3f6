// Package handlers exposes the services over HTTP with Fiber.
package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"money-tracker-go-be/ai"
	"money-tracker-go-be/alerts"
	"money-tracker-go-be/apperr"
	"money-tracker-go-be/banks"
	"money-tracker-go-be/categorize"
	"money-tracker-go-be/rules"
	"money-tracker-go-be/sepay"
	"money-tracker-go-be/sheets"
	"money-tracker-go-be/transactions"
)

// SepayAPI is the part of the aggregator REST API the handlers use.
type SepayAPI interface {
	sepay.TransactionSource
	BankAccounts(ctx context.Context) ([]sepay.APIBankAccount, error)
}

// SheetOpener opens the configured spreadsheet.
type SheetOpener func(ctx context.Context) (sheets.RowSource, error)

// Deps lists everything the routes need. SepayAPI and Sheet may be nil when
// the integration is not configured.
type Deps struct {
	Pipeline     *sepay.Pipeline
	SepayAPI     SepayAPI
	Banks        *banks.Service
	Importer     *sheets.Importer
	Sheet        SheetOpener
	Transactions *transactions.Service
	Categories   *categorize.CategoryStore
	Patterns     *categorize.PatternStore
	Rules        *rules.Service
	Alerts       *alerts.Service
	Analyzer     *ai.Analyzer

	SignatureHeader string
	TimestampHeader string
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.SignatureHeader == "" {
		d.SignatureHeader = "x-sepay-signature"
	}
	if d.TimestampHeader == "" {
		d.TimestampHeader = "x-sepay-timestamp"
	}
	return &Handler{Deps: d}
}

// Register mounts every route under /api/v1.
func (h *Handler) Register(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Called by the aggregator, not by users.
	api.Post("/sepay/webhook", h.SepayWebhook)

	user := api.Group("", RequireUser())

	user.Post("/sepay/webhook/simulate", h.SimulateWebhook)
	user.Post("/sepay/sync", h.SepaySync)
	user.Post("/sepay/link-account", h.LinkAccount)
	user.Get("/sepay/accounts", h.SepayAccounts)
	user.Get("/accounts", h.ListAccounts)

	user.Post("/sheets/import", h.SheetsImport)
	user.Post("/sheets/sync", h.SheetsSync)

	user.Get("/transactions", h.ListTransactions)
	user.Post("/transactions/bulk-update-category", h.BulkUpdateCategory)
	user.Get("/transactions/:id", h.GetTransaction)
	user.Put("/transactions/:id/category", h.UpdateCategory)

	user.Get("/categories", h.ListCategories)
	user.Post("/categorization/auto", h.AutoCategorize)
	user.Get("/categorization/patterns", h.ListPatterns)
	user.Post("/categorization/patterns", h.CreatePattern)
	user.Delete("/categorization/patterns/:id", h.DeletePattern)

	user.Get("/rules", h.ListRules)
	user.Post("/rules", h.CreateRule)
	user.Put("/rules/:id", h.UpdateRule)
	user.Delete("/rules/:id", h.DeleteRule)

	user.Get("/alerts", h.ListAlerts)
	user.Get("/alerts/unread-count", h.UnreadAlerts)
	user.Put("/alerts/read-all", h.MarkAllAlertsRead)
	user.Put("/alerts/:id/read", h.MarkAlertRead)
	user.Delete("/alerts/:id", h.DeleteAlert)

	user.Get("/analyze", h.AnalyzeUncategorized)
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid "+name, map[string]string{name: "must be a uuid"})
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Validation("Invalid request body", nil)
	}
	return nil
}
