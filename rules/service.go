// Package rules implements the static keyword rule table. Rules are matched by
// priority alone and are independent of the learned patterns in categorize.
package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/categorize"
	"money-tracker-go-be/models"
	"money-tracker-go-be/textnorm"
)

// DefaultPriority is used for rules created without an explicit priority.
const DefaultPriority = 5

// Match is a rule hit.
type Match struct {
	RuleID       uuid.UUID `json:"rule_id"`
	CategoryID   uuid.UUID `json:"category_id"`
	CategoryName string    `json:"category_name"`
	Keyword      string    `json:"matched_keyword"`
	Confidence   float64   `json:"confidence"`
}

// Confidence derives a match confidence from a rule priority.
func Confidence(priority int) float64 {
	return math.Max(0.5, 1-0.1*float64(priority))
}

type Service struct {
	db         *gorm.DB
	categories *categorize.CategoryStore
}

func NewService(db *gorm.DB, categories *categorize.CategoryStore) *Service {
	return &Service{db: db, categories: categories}
}

// Match returns the highest precedence active rule whose keyword occurs in description.
func (s *Service) Match(ctx context.Context, description string) (Match, bool, error) {
	text := textnorm.Normalize(description)
	if text == "" {
		return Match{}, false, nil
	}
	var rules []models.CategoryRule
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority ASC").Order("LENGTH(keyword_normalized) DESC").Order("created_at ASC").
		Preload("Category").
		Find(&rules).Error
	if err != nil {
		return Match{}, false, fmt.Errorf("load rules: %w", err)
	}
	for _, r := range rules {
		if r.KeywordNormalized == "" || !strings.Contains(text, r.KeywordNormalized) {
			continue
		}
		m := Match{RuleID: r.ID, CategoryID: r.CategoryID, Keyword: r.Keyword, Confidence: Confidence(r.Priority)}
		if r.Category != nil {
			m.CategoryName = r.Category.Name
		}
		return m, true, nil
	}
	return Match{}, false, nil
}

// List returns rules ordered by priority, optionally restricted to one category.
func (s *Service) List(ctx context.Context, categoryID *uuid.UUID) ([]models.CategoryRule, error) {
	q := s.db.WithContext(ctx).Preload("Category")
	if categoryID != nil {
		q = q.Where("category_id = ?", *categoryID)
	}
	var out []models.CategoryRule
	if err := q.Order("priority ASC").Order("keyword ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return out, nil
}

type CreateInput struct {
	CategoryID uuid.UUID `json:"category_id"`
	Keyword    string    `json:"keyword"`
	Priority   *int      `json:"priority"`
}

// Create adds a rule for a category visible to userID.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (models.CategoryRule, error) {
	keyword := strings.TrimSpace(in.Keyword)
	priority := DefaultPriority
	if in.Priority != nil {
		priority = *in.Priority
	}
	details := map[string]string{}
	if keyword == "" {
		details["keyword"] = "required"
	}
	if priority < 0 {
		details["priority"] = "must not be negative"
	}
	if in.CategoryID == uuid.Nil {
		details["category_id"] = "required"
	}
	if len(details) > 0 {
		return models.CategoryRule{}, apperr.Validation("invalid rule", details)
	}

	cat, err := s.categories.Get(ctx, userID, in.CategoryID)
	if err != nil {
		return models.CategoryRule{}, err
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.CategoryRule{}).
		Where("keyword = ? AND category_id = ?", keyword, cat.ID).
		Count(&count).Error; err != nil {
		return models.CategoryRule{}, fmt.Errorf("find rule: %w", err)
	}
	if count > 0 {
		return models.CategoryRule{}, apperr.Validation("rule with this keyword already exists for this category", nil)
	}

	r := models.CategoryRule{
		CategoryID:        cat.ID,
		Keyword:           keyword,
		KeywordNormalized: textnorm.Normalize(keyword),
		Priority:          priority,
		IsActive:          true,
	}
	if err := db.Create(&r).Error; err != nil {
		return r, fmt.Errorf("create rule: %w", err)
	}
	r.Category = &cat
	return r, nil
}

// CreateFromTransaction remembers a manual categorization as a rule on the first
// significant keyword of description. An existing rule for that keyword is promoted instead.
func (s *Service) CreateFromTransaction(ctx context.Context, userID uuid.UUID, description string, categoryID uuid.UUID) (models.CategoryRule, error) {
	keywords := categorize.ExtractKeywords(description)
	if len(keywords) == 0 {
		return models.CategoryRule{}, apperr.Validation("could not extract keywords from description", nil)
	}
	keyword := keywords[0]

	var existing models.CategoryRule
	err := s.db.WithContext(ctx).
		Where("keyword_normalized = ? AND category_id = ?", textnorm.Normalize(keyword), categoryID).
		First(&existing).Error
	switch {
	case err == nil:
		priority := existing.Priority - 1
		if priority < 0 {
			priority = 0
		}
		if err := s.db.WithContext(ctx).Model(&existing).Update("priority", priority).Error; err != nil {
			return existing, fmt.Errorf("promote rule: %w", err)
		}
		existing.Priority = priority
		return existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return existing, fmt.Errorf("find rule: %w", err)
	}

	p := DefaultPriority
	return s.Create(ctx, userID, CreateInput{CategoryID: categoryID, Keyword: strings.ToUpper(keyword), Priority: &p})
}

type UpdateInput struct {
	Keyword  *string `json:"keyword"`
	Priority *int    `json:"priority"`
	IsActive *bool   `json:"is_active"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (models.CategoryRule, error) {
	db := s.db.WithContext(ctx)
	var r models.CategoryRule
	if err := db.First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r, apperr.NotFound("rule")
		}
		return r, fmt.Errorf("find rule: %w", err)
	}

	updates := map[string]interface{}{}
	if in.Keyword != nil {
		kw := strings.TrimSpace(*in.Keyword)
		if kw == "" {
			return r, apperr.Validation("invalid rule", map[string]string{"keyword": "required"})
		}
		updates["keyword"] = kw
		updates["keyword_normalized"] = textnorm.Normalize(kw)
	}
	if in.Priority != nil {
		if *in.Priority < 0 {
			return r, apperr.Validation("invalid rule", map[string]string{"priority": "must not be negative"})
		}
		updates["priority"] = *in.Priority
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) > 0 {
		if err := db.Model(&r).Updates(updates).Error; err != nil {
			return r, fmt.Errorf("update rule: %w", err)
		}
	}
	if err := db.Preload("Category").First(&r, "id = ?", id).Error; err != nil {
		return r, fmt.Errorf("reload rule: %w", err)
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.CategoryRule{})
	if res.Error != nil {
		return fmt.Errorf("delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("rule")
	}
	return nil
}
