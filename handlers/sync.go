package handlers

import (
	"github.com/gofiber/fiber/v2"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/banks"
	"money-tracker-go-be/models"
	"money-tracker-go-be/sepay"
	"money-tracker-go-be/sheets"
)

// WebhookResponse is what the aggregator sees for every delivery.
type WebhookResponse struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	TransactionID interface{} `json:"transactionId,omitempty"`
}

func webhookResponse(res sepay.Result) WebhookResponse {
	out := WebhookResponse{Success: true, Message: res.Message}
	if res.TransactionID != nil {
		out.TransactionID = res.TransactionID.String()
	}
	return out
}

// SepayWebhook ingests a pushed notification. It answers 200 for anything
// short of a rejected signature so the aggregator does not retry.
func (h *Handler) SepayWebhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	res, err := h.Pipeline.Receive(c.UserContext(), body, c.Get(h.SignatureHeader), c.Get(h.TimestampHeader))
	if err != nil {
		return err
	}
	return c.JSON(webhookResponse(res))
}

// SimulateWebhook runs a payload through the pipeline for the calling user.
func (h *Handler) SimulateWebhook(c *fiber.Ctx) error {
	var p sepay.Payload
	if err := parseBody(c, &p); err != nil {
		return err
	}
	res, err := h.Pipeline.Ingest(c.UserContext(), currentUser(c), p, models.SourceAuto)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"message":       res.Message,
		"transactionId": res.TransactionID,
		"transaction":   res.Transaction,
		"alerts":        res.Alerts,
	})
}

// SepaySync pulls one account's transactions from the aggregator API.
func (h *Handler) SepaySync(c *fiber.Ctx) error {
	if h.SepayAPI == nil {
		return apperr.Unavailable("sepay api key is not configured")
	}
	var req sepay.SyncRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	stats, err := h.Pipeline.Sync(c.UserContext(), h.SepayAPI, currentUser(c), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": stats})
}

// SepayAccounts lists the accounts registered with the aggregator.
func (h *Handler) SepayAccounts(c *fiber.Ctx) error {
	if h.SepayAPI == nil {
		return apperr.Unavailable("sepay api key is not configured")
	}
	accounts, err := h.SepayAPI.BankAccounts(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": accounts})
}

// LinkAccount attaches an account number to the caller so webhooks for it resolve.
func (h *Handler) LinkAccount(c *fiber.Ctx) error {
	var in banks.LinkInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	acc, created, err := h.Banks.Link(c.UserContext(), currentUser(c), in)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"success": true, "data": acc})
}

func (h *Handler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.Banks.Accounts(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": accounts})
}

// SheetsImport accepts an exported statement as multipart field "file".
func (h *Handler) SheetsImport(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.Validation("csv file is required", map[string]string{"file": "required"})
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Validation("cannot read uploaded file", nil)
	}
	defer f.Close()

	stats, err := h.Importer.Import(c.UserContext(), currentUser(c), sheets.NewCSVSource(f))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": stats.Message, "data": stats})
}

// SheetsSync imports the configured spreadsheet through the Sheets API.
func (h *Handler) SheetsSync(c *fiber.Ctx) error {
	if h.Sheet == nil {
		return apperr.Unavailable("google sheets is not configured")
	}
	src, err := h.Sheet(c.UserContext())
	if err != nil {
		return err
	}
	stats, err := h.Importer.Import(c.UserContext(), currentUser(c), src)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": stats.Message, "data": stats})
}
