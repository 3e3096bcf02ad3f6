// Package alerts stores user notifications and raises them for unusual spending.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/models"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateInput describes a new alert. DedupKey identifies repeated firings of the same condition.
type CreateInput struct {
	UserID   uuid.UUID
	Type     models.AlertType
	Message  string
	DedupKey string
	Payload  map[string]interface{}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (models.Alert, error) {
	if in.Payload == nil {
		in.Payload = map[string]interface{}{}
	}
	raw, err := json.Marshal(in.Payload)
	if err != nil {
		return models.Alert{}, fmt.Errorf("encode alert payload: %w", err)
	}
	a := models.Alert{
		UserID:    in.UserID,
		AlertType: in.Type,
		DedupKey:  in.DedupKey,
		Message:   in.Message,
		Payload:   datatypes.JSON(raw),
	}
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return a, fmt.Errorf("create alert: %w", err)
	}
	return a, nil
}

// ExistsSince reports whether an alert with the same type and key was created at or after since.
func (s *Service) ExistsSince(ctx context.Context, userID uuid.UUID, typ models.AlertType, key string, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("user_id = ? AND alert_type = ? AND dedup_key = ? AND created_at >= ?", userID, typ, key, since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("find alert: %w", err)
	}
	return count > 0, nil
}

// List returns userID's alerts, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.Alert, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_flag = ?", false)
	}
	var out []models.Alert
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("user_id = ? AND read_flag = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_flag", true)
	if res.Error != nil {
		return fmt.Errorf("mark alert read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("alert")
	}
	return nil
}

// MarkAllRead marks every unread alert of userID and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("user_id = ? AND read_flag = ?", userID, false).
		Update("read_flag", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark alerts read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Alert{})
	if res.Error != nil {
		return fmt.Errorf("delete alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("alert")
	}
	return nil
}
