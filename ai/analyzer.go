package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/categorize"
	"money-tracker-go-be/logger"
	"money-tracker-go-be/models"
)

// BatchLimit bounds how many transactions go into one prompt.
const BatchLimit = 50

// Suggestion is one model proposal. Nothing is written back.
type Suggestion struct {
	TransactionID string `json:"transaction_id"`
	NewCategory   string `json:"new_category"`
	NewMerchant   string `json:"new_merchant"`
}

type Analysis struct {
	Message     string       `json:"message,omitempty"`
	Count       int          `json:"count"`
	Suggestions []Suggestion `json:"suggestions"`
}

type Analyzer struct {
	db         *gorm.DB
	categories *categorize.CategoryStore
	gen        Generator
}

// NewAnalyzer accepts a nil Generator; Analyze then reports the feature as unavailable.
func NewAnalyzer(db *gorm.DB, categories *categorize.CategoryStore, gen Generator) *Analyzer {
	return &Analyzer{db: db, categories: categories, gen: gen}
}

// Analyze sends the user's uncategorized transactions to the model.
func (a *Analyzer) Analyze(ctx context.Context, userID uuid.UUID) (Analysis, error) {
	log := logger.FromContext(ctx).With().Str("user_id", userID.String()).Logger()
	out := Analysis{Suggestions: []Suggestion{}}

	unc, err := a.categories.EnsureUncategorized(ctx)
	if err != nil {
		return out, err
	}
	var txns []models.Transaction
	err = a.db.WithContext(ctx).
		Where("user_id = ? AND (category_id IS NULL OR category_id = ?)", userID, unc.ID).
		Order("posted_at DESC").
		Limit(BatchLimit).
		Find(&txns).Error
	if err != nil {
		return out, fmt.Errorf("find uncategorized transactions: %w", err)
	}
	if len(txns) == 0 {
		out.Message = "No uncategorized transactions found"
		return out, nil
	}
	if a.gen == nil {
		return out, apperr.Unavailable("ai suggestions are not configured")
	}

	log.Info().Int("count", len(txns)).Msg("requesting category suggestions")
	text, err := a.gen.Generate(ctx, BuildPrompt(txns))
	if err != nil {
		return out, err
	}
	suggestions, err := ParseSuggestions(text)
	if err != nil {
		log.Warn().Err(err).Int("length", len(text)).Msg("unreadable model response")
		return out, apperr.ExternalAPI("gemini", err)
	}

	known := make(map[string]bool, len(txns))
	for _, t := range txns {
		known[t.ID.String()] = true
	}
	for _, s := range suggestions {
		if known[s.TransactionID] && s.NewCategory != "" {
			out.Suggestions = append(out.Suggestions, s)
		}
	}
	out.Count = len(out.Suggestions)
	log.Info().Int("suggestions", out.Count).Msg("category suggestions parsed")
	return out, nil
}

type promptLine struct {
	TransactionID string `json:"transaction_id"`
	Text          string `json:"text"`
	Amount        string `json:"amount"`
	Type          string `json:"type"`
}

// BuildPrompt lists one JSON object per transaction after the instructions.
func BuildPrompt(txns []models.Transaction) string {
	var sb strings.Builder
	sb.WriteString("You are a financial analyst. Analyze these Vietnamese bank transaction descriptions.\n")
	sb.WriteString("Return a RAW JSON ARRAY of objects. Do NOT use markdown formatting.\n")
	sb.WriteString("Each object must have: 'transaction_id', 'new_category' (e.g. Food, Transport, Bills, Shopping, Education, Salary, Transfer) and 'new_merchant' (clean name).\n\n")
	for _, t := range txns {
		line, _ := json.Marshal(promptLine{
			TransactionID: t.ID.String(),
			Text:          t.RawDescription,
			Amount:        t.Amount.StringFixed(0),
			Type:          string(t.Type),
		})
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ParseSuggestions reads the model's JSON array, tolerating a markdown fence around it.
func ParseSuggestions(text string) ([]Suggestion, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var out []Suggestion
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}
	return out, nil
}
