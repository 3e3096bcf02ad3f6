package categorize

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/database"
	"money-tracker-go-be/models"
)

// CategoryStore resolves categories visible to a user: their own plus the shared defaults.
type CategoryStore struct {
	db *gorm.DB
}

func NewCategoryStore(db *gorm.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) visible(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return s.db.WithContext(ctx).Where("user_id = ? OR (user_id IS NULL AND is_default = ?)", userID, true)
}

// Get returns the category id if userID may use it.
func (s *CategoryStore) Get(ctx context.Context, userID, id uuid.UUID) (models.Category, error) {
	var c models.Category
	err := s.visible(ctx, userID).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c, apperr.NotFound("category")
	}
	if err != nil {
		return c, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// FindByName prefers the user's own category over the default of the same name.
func (s *CategoryStore) FindByName(ctx context.Context, userID uuid.UUID, name string) (models.Category, bool, error) {
	var c models.Category
	err := s.visible(ctx, userID).Where("name = ?", name).
		Order("is_default ASC").Order("priority ASC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c, false, nil
	}
	if err != nil {
		return c, false, fmt.Errorf("find category %q: %w", name, err)
	}
	return c, true, nil
}

// List returns every category visible to userID.
func (s *CategoryStore) List(ctx context.Context, userID uuid.UUID, t models.TransactionType) ([]models.Category, error) {
	q := s.visible(ctx, userID)
	if t != "" {
		q = q.Where("type = ?", t)
	}
	var out []models.Category
	if err := q.Order("type").Order("priority").Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// EnsureUncategorized returns the shared fallback category, creating it on first use.
// Concurrent callers converge on one row through the unique system key.
func (s *CategoryStore) EnsureUncategorized(ctx context.Context) (models.Category, error) {
	db := s.db.WithContext(ctx)
	find := func() (models.Category, error) {
		var c models.Category
		err := db.Where("system_key = ?", models.SystemKeyUncategorized).First(&c).Error
		return c, err
	}

	c, err := find()
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c, fmt.Errorf("find uncategorized: %w", err)
	}

	c = database.Uncategorized
	key := models.SystemKeyUncategorized
	c.SystemKey = &key
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&c).Error; err != nil {
		return c, fmt.Errorf("create uncategorized: %w", err)
	}
	c, err = find()
	if err != nil {
		return c, fmt.Errorf("find uncategorized: %w", err)
	}
	return c, nil
}
