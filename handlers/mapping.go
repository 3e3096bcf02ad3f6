package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/categorize"
	"money-tracker-go-be/models"
	"money-tracker-go-be/rules"
	"money-tracker-go-be/transactions"
)

// BulkCategoryRequest moves several transactions to one category.
type BulkCategoryRequest struct {
	TransactionIDs []uuid.UUID `json:"transaction_ids"`
	CategoryID     uuid.UUID   `json:"category_id"`
}

func queryUUID(c *fiber.Ctx, key string) (*uuid.UUID, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("invalid "+key, map[string]string{key: "must be a uuid"})
	}
	return &id, nil
}

// queryDate accepts RFC 3339 or a plain date. A plain "to" date covers the whole day.
func queryDate(c *fiber.Ctx, key string, endOfDay bool) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.Validation("invalid "+key, map[string]string{key: "use YYYY-MM-DD or RFC 3339"})
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	f := transactions.Filter{
		Type:  models.TransactionType(strings.ToLower(c.Query("type"))),
		Page:  c.QueryInt("page", 1),
		Limit: c.QueryInt("limit", 20),
	}
	if f.Type != "" && f.Type != models.TransactionIncome && f.Type != models.TransactionExpense {
		return apperr.Validation("invalid type", map[string]string{"type": "must be income or expense"})
	}
	var err error
	if f.CategoryID, err = queryUUID(c, "category_id"); err != nil {
		return err
	}
	if f.AccountID, err = queryUUID(c, "account_id"); err != nil {
		return err
	}
	if f.From, err = queryDate(c, "from", false); err != nil {
		return err
	}
	if f.To, err = queryDate(c, "to", true); err != nil {
		return err
	}

	page, err := h.Transactions.List(c.UserContext(), currentUser(c), f)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": page.Transactions, "pagination": page.Pagination})
}

func (h *Handler) GetTransaction(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	txn, err := h.Transactions.Get(c.UserContext(), currentUser(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": txn})
}

// UpdateCategory corrects a transaction's category and learns from it.
func (h *Handler) UpdateCategory(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in transactions.UpdateCategoryInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	txn, err := h.Transactions.UpdateCategory(c.UserContext(), currentUser(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Transaction updated successfully", "data": txn})
}

func (h *Handler) BulkUpdateCategory(c *fiber.Ctx) error {
	var req BulkCategoryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.TransactionIDs) == 0 {
		return apperr.Validation("transaction_ids must be a non-empty array", map[string]string{"transaction_ids": "required"})
	}
	res, err := h.Transactions.BulkUpdateCategory(c.UserContext(), currentUser(c), req.TransactionIDs, req.CategoryID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": res})
}

func (h *Handler) ListCategories(c *fiber.Ctx) error {
	cats, err := h.Categories.List(c.UserContext(), currentUser(c), models.TransactionType(c.Query("type")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": cats})
}

// AutoCategorize re-runs categorization over the caller's uncategorized transactions.
func (h *Handler) AutoCategorize(c *fiber.Ctx) error {
	n, err := h.Transactions.AutoCategorizePending(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"categorized": n}})
}

func (h *Handler) ListPatterns(c *fiber.Ctx) error {
	patterns, err := h.Patterns.List(c.UserContext(), currentUser(c), models.PatternType(c.Query("type")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": patterns})
}

func (h *Handler) CreatePattern(c *fiber.Ctx) error {
	var in categorize.CreateInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	user := currentUser(c)
	if in.CategoryID != uuid.Nil {
		if _, err := h.Categories.Get(c.UserContext(), user, in.CategoryID); err != nil {
			return err
		}
	}
	p, err := h.Patterns.Create(c.UserContext(), user, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": p})
}

func (h *Handler) DeletePattern(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Patterns.Delete(c.UserContext(), currentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Pattern deleted"})
}

func (h *Handler) ListRules(c *fiber.Ctx) error {
	categoryID, err := queryUUID(c, "category_id")
	if err != nil {
		return err
	}
	list, err := h.Rules.List(c.UserContext(), categoryID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": list})
}

func (h *Handler) CreateRule(c *fiber.Ctx) error {
	var in rules.CreateInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	r, err := h.Rules.Create(c.UserContext(), currentUser(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": r})
}

func (h *Handler) UpdateRule(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in rules.UpdateInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	r, err := h.Rules.Update(c.UserContext(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": r})
}

func (h *Handler) DeleteRule(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Rules.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Rule deleted"})
}
