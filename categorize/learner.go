package categorize

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"money-tracker-go-be/logger"
	"money-tracker-go-be/merchant"
	"money-tracker-go-be/models"
)

// Seed confidences and the bump applied when a correction repeats.
const (
	MerchantSeed = 0.9
	KeywordSeed  = 0.7
	LearnStep    = 0.1
)

// Learner turns manual corrections into user-owned patterns.
type Learner struct {
	patterns *PatternStore
}

func NewLearner(patterns *PatternStore) *Learner {
	return &Learner{patterns: patterns}
}

// Learn records that description belongs to categoryID for userID: one merchant
// pattern when a merchant can be extracted, plus up to three keyword patterns.
func (l *Learner) Learn(ctx context.Context, userID, categoryID uuid.UUID, description string) ([]models.CategoryPattern, error) {
	if strings.TrimSpace(description) == "" {
		return nil, nil
	}
	uid := userID
	var learned []models.CategoryPattern

	if name, ok := merchant.Extract(description); ok {
		p, err := l.patterns.Upsert(ctx, PatternKey{
			UserID: &uid, Pattern: name, Type: models.PatternMerchant, CategoryID: categoryID,
		}, MerchantSeed, LearnStep)
		if err != nil {
			return learned, err
		}
		learned = append(learned, p)
	}

	for _, kw := range ExtractKeywords(description) {
		p, err := l.patterns.Upsert(ctx, PatternKey{
			UserID: &uid, Pattern: kw, Type: models.PatternKeyword, CategoryID: categoryID,
		}, KeywordSeed, LearnStep)
		if err != nil {
			return learned, err
		}
		learned = append(learned, p)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("user_id", userID.String()).
		Str("category_id", categoryID.String()).
		Int("patterns", len(learned)).
		Msg("learned patterns")
	return learned, nil
}
