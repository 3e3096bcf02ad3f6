// Package transactions lists stored transactions and changes their categories.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/categorize"
	"money-tracker-go-be/logger"
	"money-tracker-go-be/models"
	"money-tracker-go-be/rules"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type Service struct {
	db         *gorm.DB
	categories *categorize.CategoryStore
	engine     *categorize.Engine
	learner    *categorize.Learner
	rules      *rules.Service
}

func NewService(db *gorm.DB, categories *categorize.CategoryStore, engine *categorize.Engine, learner *categorize.Learner, rules *rules.Service) *Service {
	return &Service{db: db, categories: categories, engine: engine, learner: learner, rules: rules}
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Type       models.TransactionType
	CategoryID *uuid.UUID
	AccountID  *uuid.UUID
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

type Page struct {
	Transactions []models.Transaction `json:"transactions"`
	Pagination   Pagination           `json:"pagination"`
}

// List returns userID's transactions, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, f Filter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}

	q := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	if f.AccountID != nil {
		q = q.Where("bank_account_id = ?", *f.AccountID)
	}
	if f.From != nil {
		q = q.Where("posted_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("posted_at <= ?", f.To.UTC())
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page{}, fmt.Errorf("count transactions: %w", err)
	}
	out := Page{
		Transactions: []models.Transaction{},
		Pagination: Pagination{
			Page:       f.Page,
			Limit:      f.Limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(f.Limit))),
		},
	}
	err := q.Preload("Category").Preload("BankAccount").
		Order("posted_at DESC").Order("created_at DESC").
		Offset((f.Page - 1) * f.Limit).Limit(f.Limit).
		Find(&out.Transactions).Error
	if err != nil {
		return Page{}, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (models.Transaction, error) {
	var t models.Transaction
	err := s.db.WithContext(ctx).Preload("Category").Preload("BankAccount").
		Where("id = ? AND user_id = ?", id, userID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t, apperr.NotFound("transaction")
	}
	if err != nil {
		return t, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// UpdateCategoryInput is a manual correction. Remember also turns the
// correction into a keyword rule.
type UpdateCategoryInput struct {
	CategoryID uuid.UUID `json:"category_id"`
	Notes      *string   `json:"notes"`
	Remember   bool      `json:"remember"`
}

// UpdateCategory assigns a category by hand and learns patterns from the
// transaction's description so later ingestion picks the same category.
func (s *Service) UpdateCategory(ctx context.Context, userID, id uuid.UUID, in UpdateCategoryInput) (models.Transaction, error) {
	if in.CategoryID == uuid.Nil {
		return models.Transaction{}, apperr.Validation("invalid category update", map[string]string{"category_id": "required"})
	}
	t, err := s.Get(ctx, userID, id)
	if err != nil {
		return t, err
	}
	cat, err := s.categories.Get(ctx, userID, in.CategoryID)
	if err != nil {
		return t, err
	}

	updates := map[string]interface{}{
		"category_id":           cat.ID,
		"classification_source": models.SourceManual,
	}
	if in.Notes != nil {
		updates["notes"] = *in.Notes
	}
	if err := s.db.WithContext(ctx).Model(&t).Updates(updates).Error; err != nil {
		return t, fmt.Errorf("update transaction category: %w", err)
	}
	t.CategoryID = &cat.ID
	t.Category = &cat
	t.ClassificationSource = models.SourceManual
	if in.Notes != nil {
		t.Notes = in.Notes
	}

	if _, err := s.learner.Learn(ctx, userID, cat.ID, t.Description()); err != nil {
		return t, fmt.Errorf("learn from correction: %w", err)
	}
	if in.Remember {
		if _, err := s.rules.CreateFromTransaction(ctx, userID, t.Description(), cat.ID); err != nil {
			if apperr.StatusOf(err) != http.StatusBadRequest {
				return t, err
			}
			log := logger.FromContext(ctx)
			log.Debug().Str("transaction_id", id.String()).Msg("no keyword to remember")
		}
	}
	return t, nil
}

type BulkResult struct {
	SuccessCount int         `json:"successCount"`
	FailedCount  int         `json:"failedCount"`
	FailedIDs    []uuid.UUID `json:"failedIds"`
}

// BulkUpdateCategory moves every listed transaction of userID into categoryID
// inside one database transaction. Ids that do not belong to the user are reported, not fatal.
func (s *Service) BulkUpdateCategory(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, categoryID uuid.UUID) (BulkResult, error) {
	res := BulkResult{FailedIDs: []uuid.UUID{}}
	if len(ids) == 0 {
		return res, apperr.Validation("transaction ids are required", nil)
	}
	cat, err := s.categories.Get(ctx, userID, categoryID)
	if err != nil {
		return res, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			r := tx.Model(&models.Transaction{}).
				Where("id = ? AND user_id = ?", id, userID).
				Updates(map[string]interface{}{
					"category_id":           cat.ID,
					"classification_source": models.SourceManual,
				})
			if r.Error != nil {
				return fmt.Errorf("update transaction %s: %w", id, r.Error)
			}
			if r.RowsAffected == 0 {
				res.FailedIDs = append(res.FailedIDs, id)
				continue
			}
			res.SuccessCount++
		}
		return nil
	})
	if err != nil {
		return BulkResult{FailedIDs: []uuid.UUID{}}, err
	}
	res.FailedCount = len(res.FailedIDs)

	log := logger.FromContext(ctx)
	log.Info().
		Str("user_id", userID.String()).
		Int("success", res.SuccessCount).
		Int("failed", res.FailedCount).
		Msg("bulk category update")
	return res, nil
}

// AutoCategorizePending re-runs categorization over userID's transactions that
// have no category or the fallback one, and returns how many got a real category.
func (s *Service) AutoCategorizePending(ctx context.Context, userID uuid.UUID) (int, error) {
	unc, err := s.categories.EnsureUncategorized(ctx)
	if err != nil {
		return 0, err
	}
	var pending []models.Transaction
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND (category_id IS NULL OR category_id = ?)", userID, unc.ID).
		Order("posted_at ASC").
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("load pending transactions: %w", err)
	}

	n := 0
	for _, t := range pending {
		mcc := ""
		if t.MCC != nil {
			mcc = *t.MCC
		}
		res, err := s.engine.Categorize(ctx, userID, t.Description(), mcc)
		if err != nil {
			return n, err
		}
		if !res.Matched() || res.Category.ID == unc.ID {
			continue
		}
		err = s.db.WithContext(ctx).Model(&t).Updates(map[string]interface{}{
			"category_id":           res.Category.ID,
			"classification_source": models.SourceAuto,
		}).Error
		if err != nil {
			return n, fmt.Errorf("update transaction %s: %w", t.ID, err)
		}
		n++
	}
	return n, nil
}
