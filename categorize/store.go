package categorize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/models"
)

// PatternStore persists CategoryPatterns. Patterns with a nil UserID are global and visible to everyone.
type PatternStore struct {
	db *gorm.DB
}

func NewPatternStore(db *gorm.DB) *PatternStore {
	return &PatternStore{db: db}
}

func visibleTo(db *gorm.DB, userID uuid.UUID) *gorm.DB {
	return db.Where("category_patterns.user_id IS NULL OR category_patterns.user_id = ?", userID)
}

// ordered applies match precedence: confidence, then usage, then the longer (more specific) pattern.
func ordered(db *gorm.DB) *gorm.DB {
	return db.Order("confidence DESC").Order("usage_count DESC").
		Order("LENGTH(pattern) DESC").Order("created_at ASC")
}

// Visible returns the patterns of type t visible to userID in match order.
func (s *PatternStore) Visible(ctx context.Context, userID uuid.UUID, t models.PatternType) ([]models.CategoryPattern, error) {
	var out []models.CategoryPattern
	err := ordered(visibleTo(s.db.WithContext(ctx), userID)).
		Where("pattern_type = ?", t).
		Preload("Category").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load %s patterns: %w", t, err)
	}
	return out, nil
}

// List returns the patterns visible to userID, optionally filtered by type.
func (s *PatternStore) List(ctx context.Context, userID uuid.UUID, t models.PatternType) ([]models.CategoryPattern, error) {
	q := ordered(visibleTo(s.db.WithContext(ctx), userID))
	if t != "" {
		if !t.Valid() {
			return nil, apperr.Validation("invalid pattern type", map[string]string{"type": "must be merchant, keyword or mcc"})
		}
		q = q.Where("pattern_type = ?", t)
	}
	var out []models.CategoryPattern
	if err := q.Preload("Category").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	return out, nil
}

// Reinforce atomically bumps usage by one and confidence by step, saturating at 1.0.
func (s *PatternStore) Reinforce(ctx context.Context, id uuid.UUID, step float64) error {
	res := s.db.WithContext(ctx).Model(&models.CategoryPattern{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + 1"),
			"confidence":  gorm.Expr("CASE WHEN confidence + ? >= 1.0 THEN 1.0 ELSE confidence + ? END", step, step),
		})
	if res.Error != nil {
		return fmt.Errorf("reinforce pattern %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("pattern")
	}
	return nil
}

// PatternKey identifies a pattern. A nil UserID addresses the global pattern.
type PatternKey struct {
	UserID     *uuid.UUID
	Pattern    string
	Type       models.PatternType
	CategoryID uuid.UUID
}

func (s *PatternStore) find(db *gorm.DB, k PatternKey) (models.CategoryPattern, error) {
	q := db.Where("pattern = ? AND pattern_type = ? AND category_id = ?", k.Pattern, k.Type, k.CategoryID)
	if k.UserID == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", *k.UserID)
	}
	var p models.CategoryPattern
	err := q.First(&p).Error
	return p, err
}

// Upsert reinforces the pattern at k by step, or creates it with confidence seed and usage 1.
func (s *PatternStore) Upsert(ctx context.Context, k PatternKey, seed, step float64) (models.CategoryPattern, error) {
	k.Pattern = strings.ToLower(strings.TrimSpace(k.Pattern))
	db := s.db.WithContext(ctx)

	existing, err := s.find(db, k)
	switch {
	case err == nil:
		if err := s.Reinforce(ctx, existing.ID, step); err != nil {
			return existing, err
		}
		return s.find(db, k)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return existing, fmt.Errorf("find pattern %q: %w", k.Pattern, err)
	}

	p := models.CategoryPattern{
		UserID:      k.UserID,
		Pattern:     k.Pattern,
		PatternType: k.Type,
		CategoryID:  k.CategoryID,
		Confidence:  seed,
		UsageCount:  1,
	}
	if err := db.Create(&p).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return p, fmt.Errorf("create pattern %q: %w", k.Pattern, err)
		}
		// Lost a race with a concurrent learner; count this correction on the winner's row.
		existing, err = s.find(db, k)
		if err != nil {
			return existing, fmt.Errorf("find pattern %q: %w", k.Pattern, err)
		}
		if err := s.Reinforce(ctx, existing.ID, step); err != nil {
			return existing, err
		}
		return s.find(db, k)
	}
	return p, nil
}

// CreateInput is a user-authored pattern.
type CreateInput struct {
	Pattern     string             `json:"pattern"`
	PatternType models.PatternType `json:"pattern_type"`
	CategoryID  uuid.UUID          `json:"category_id"`
	Confidence  *float64           `json:"confidence"`
}

// Create stores a user-authored pattern. Existing identical patterns are reported as conflicts.
func (s *PatternStore) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (models.CategoryPattern, error) {
	details := map[string]string{}
	pattern := strings.ToLower(strings.TrimSpace(in.Pattern))
	if pattern == "" {
		details["pattern"] = "required"
	}
	if !in.PatternType.Valid() {
		details["pattern_type"] = "must be merchant, keyword or mcc"
	}
	if in.CategoryID == uuid.Nil {
		details["category_id"] = "required"
	}
	confidence := 0.5
	if in.Confidence != nil {
		confidence = *in.Confidence
		if confidence <= 0 || confidence > 1 {
			details["confidence"] = "must be in (0, 1]"
		}
	}
	if len(details) > 0 {
		return models.CategoryPattern{}, apperr.Validation("invalid pattern", details)
	}

	p := models.CategoryPattern{
		UserID:      &userID,
		Pattern:     pattern,
		PatternType: in.PatternType,
		CategoryID:  in.CategoryID,
		Confidence:  confidence,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
	if res.Error != nil {
		return p, fmt.Errorf("create pattern: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return p, apperr.Conflict("pattern already exists")
	}
	return p, nil
}

// Delete removes a user-owned pattern. Global patterns cannot be deleted by users.
func (s *PatternStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	db := s.db.WithContext(ctx)
	var p models.CategoryPattern
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("pattern")
		}
		return fmt.Errorf("find pattern: %w", err)
	}
	if p.UserID == nil {
		return apperr.Forbidden("default patterns cannot be deleted")
	}
	if *p.UserID != userID {
		return apperr.NotFound("pattern")
	}
	if err := db.Delete(&p).Error; err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	return nil
}
