// Package categorize assigns categories to transaction descriptions and learns from manual corrections.
package categorize

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"money-tracker-go-be/logger"
	"money-tracker-go-be/merchant"
	"money-tracker-go-be/models"
	"money-tracker-go-be/textnorm"
)

// Tier names the stage of the engine that produced a result.
type Tier string

const (
	TierMerchant Tier = "merchant"
	TierKeyword  Tier = "keyword"
	TierMCC      Tier = "mcc"
	TierMCCTable Tier = "mcc_table"
	TierFallback Tier = "uncategorized"
)

// Confidence added to a pattern each time it decides a categorization.
const MatchStep = 0.05

// Result is the outcome of Categorize.
type Result struct {
	Category  models.Category
	Tier      Tier
	PatternID *uuid.UUID
	Merchant  string
}

// Matched reports whether a real category was found.
func (r Result) Matched() bool { return r.Tier != TierFallback }

// Engine runs the merchant, keyword and MCC tiers in order.
type Engine struct {
	patterns   *PatternStore
	categories *CategoryStore
}

func NewEngine(patterns *PatternStore, categories *CategoryStore) *Engine {
	return &Engine{patterns: patterns, categories: categories}
}

// Categorize picks a category for description. It falls back to Uncategorized
// when nothing matches; errors are storage failures only.
// At most one pattern is reinforced per call.
func (e *Engine) Categorize(ctx context.Context, userID uuid.UUID, description, mcc string) (Result, error) {
	log := logger.FromContext(ctx).With().Str("user_id", userID.String()).Logger()

	var merchantName string
	if strings.TrimSpace(description) != "" {
		res, ok, err := e.byText(ctx, log, userID, description)
		if err != nil {
			return res, err
		}
		if ok {
			return res, nil
		}
		merchantName = res.Merchant
	}
	if mcc = strings.TrimSpace(mcc); mcc != "" {
		res, ok, err := e.byMCC(ctx, log, userID, mcc, merchantName)
		if err != nil {
			return res, err
		}
		if ok {
			return res, nil
		}
		if name, ok := MCCCategoryName(mcc); ok {
			c, found, err := e.categories.FindByName(ctx, userID, name)
			if err != nil {
				return Result{}, err
			}
			if found {
				return Result{Category: c, Tier: TierMCCTable}, nil
			}
		}
	}

	c, err := e.categories.EnsureUncategorized(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Category: c, Tier: TierFallback}, nil
}

func (e *Engine) hit(ctx context.Context, log zerolog.Logger, p models.CategoryPattern, tier Tier, merchantName string) (Result, bool, error) {
	if err := e.patterns.Reinforce(ctx, p.ID, MatchStep); err != nil {
		log.Warn().Err(err).Str("pattern_id", p.ID.String()).Msg("reinforce pattern")
	}
	id := p.ID
	return Result{Category: *p.Category, Tier: tier, PatternID: &id, Merchant: merchantName}, true, nil
}

// byText runs the merchant and keyword tiers.
func (e *Engine) byText(ctx context.Context, log zerolog.Logger, userID uuid.UUID, description string) (Result, bool, error) {
	name, hasMerchant := merchant.Extract(description)
	if hasMerchant {
		patterns, err := e.patterns.Visible(ctx, userID, models.PatternMerchant)
		if err != nil {
			return Result{}, false, err
		}
		lower := strings.ToLower(name)
		for _, p := range patterns {
			if p.Category == nil || p.Pattern == "" {
				continue
			}
			if lower == p.Pattern || strings.Contains(lower, p.Pattern) {
				return e.hit(ctx, log, p, TierMerchant, name)
			}
		}
	}

	normalized := textnorm.Normalize(description)
	patterns, err := e.patterns.Visible(ctx, userID, models.PatternKeyword)
	if err != nil {
		return Result{}, false, err
	}
	for _, p := range patterns {
		if p.Category == nil || p.Pattern == "" {
			continue
		}
		if keywordMatches(log, p.Pattern, normalized) {
			return e.hit(ctx, log, p, TierKeyword, name)
		}
	}

	return Result{Merchant: name}, false, nil
}

// byMCC looks for an exact MCC pattern. It does not need a description.
func (e *Engine) byMCC(ctx context.Context, log zerolog.Logger, userID uuid.UUID, mcc, merchantName string) (Result, bool, error) {
	patterns, err := e.patterns.Visible(ctx, userID, models.PatternMCC)
	if err != nil {
		return Result{}, false, err
	}
	for _, p := range patterns {
		if p.Category != nil && p.Pattern == mcc {
			return e.hit(ctx, log, p, TierMCC, merchantName)
		}
	}
	return Result{}, false, nil
}

// keywordMatches tests a substring pattern, or a case-insensitive regular
// expression when the pattern is wrapped in slashes. Bad expressions never match.
func keywordMatches(log zerolog.Logger, pattern, text string) bool {
	if strings.Contains(text, pattern) {
		return true
	}
	if len(pattern) < 3 || !strings.HasPrefix(pattern, "/") || !strings.HasSuffix(pattern, "/") {
		return false
	}
	re, err := regexp.Compile("(?i)" + pattern[1:len(pattern)-1])
	if err != nil {
		log.Debug().Err(err).Str("pattern", pattern).Msg("skip invalid regex pattern")
		return false
	}
	return re.MatchString(text)
}
