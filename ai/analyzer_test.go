package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/categorize"
	"money-tracker-go-be/database/dbtest"
	"money-tracker-go-be/models"
)

type fakeGenerator struct {
	prompt string
	reply  func(prompt string) string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply(prompt), nil
}

func TestParseSuggestions(t *testing.T) {
	fenced := "```json\n[{\"transaction_id\":\"a\",\"new_category\":\"Food\",\"new_merchant\":\"Grab\"}]\n```"
	got, err := ParseSuggestions(fenced)
	require.NoError(t, err)
	require.Equal(t, []Suggestion{{TransactionID: "a", NewCategory: "Food", NewMerchant: "Grab"}}, got)

	got, err = ParseSuggestions(`  []  `)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = ParseSuggestions("Sure! Here are your categories.")
	require.Error(t, err)
}

func TestAnalyze(t *testing.T) {
	db := dbtest.Seeded(t)
	cats := categorize.NewCategoryStore(db)
	ctx := context.Background()
	user := uuid.New()

	unc, err := cats.EnsureUncategorized(ctx)
	require.NoError(t, err)
	add := func(desc string, category *uuid.UUID) models.Transaction {
		txn := models.Transaction{
			UserID: user, Amount: decimal.NewFromInt(45000), Type: models.TransactionExpense,
			RawDescription: desc, PostedAt: time.Now().UTC(), CategoryID: category,
			ClassificationSource: models.SourceAuto,
		}
		require.NoError(t, db.Create(&txn).Error)
		return txn
	}
	first := add("HIGHLANDS COFFEE Q1", nil)
	second := add("CK DEN NGUYEN VAN A", &unc.ID)
	var food models.Category
	require.NoError(t, db.Where("name = ? AND user_id IS NULL", "Food").First(&food).Error)
	add("already placed", &food.ID)

	// The model suggests for both, plus an id it invented.
	gen := &fakeGenerator{reply: func(string) string {
		return fmt.Sprintf("```json\n[%s,%s,%s]\n```",
			fmt.Sprintf(`{"transaction_id":%q,"new_category":"Food","new_merchant":"Highlands Coffee"}`, first.ID),
			fmt.Sprintf(`{"transaction_id":%q,"new_category":"Transfer","new_merchant":""}`, second.ID),
			`{"transaction_id":"made-up","new_category":"Food","new_merchant":""}`)
	}}
	an := NewAnalyzer(db, cats, gen)

	res, err := an.Analyze(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	require.Len(t, res.Suggestions, 2)
	require.Contains(t, gen.prompt, first.ID.String())
	require.Contains(t, gen.prompt, "CK DEN NGUYEN VAN A")
	require.NotContains(t, gen.prompt, "already placed")
	require.Equal(t, 2, strings.Count(gen.prompt, `"transaction_id":`))

	// Nothing is written back.
	var reloaded models.Transaction
	require.NoError(t, db.First(&reloaded, "id = ?", first.ID).Error)
	require.Nil(t, reloaded.CategoryID)
}

func TestAnalyzeEdgeCases(t *testing.T) {
	db := dbtest.Seeded(t)
	cats := categorize.NewCategoryStore(db)
	ctx := context.Background()

	res, err := NewAnalyzer(db, cats, nil).Analyze(ctx, uuid.New())
	require.NoError(t, err)
	require.Equal(t, "No uncategorized transactions found", res.Message)
	require.NotNil(t, res.Suggestions)

	user := uuid.New()
	require.NoError(t, db.Create(&models.Transaction{
		UserID: user, Amount: decimal.NewFromInt(1000), Type: models.TransactionExpense,
		RawDescription: "???", PostedAt: time.Now().UTC(), ClassificationSource: models.SourceAuto,
	}).Error)

	_, err = NewAnalyzer(db, cats, nil).Analyze(ctx, user)
	require.Equal(t, http.StatusServiceUnavailable, apperr.StatusOf(err))

	_, err = NewAnalyzer(db, cats, &fakeGenerator{err: apperr.ExternalAPI("gemini", errors.New("quota"))}).Analyze(ctx, user)
	require.Equal(t, http.StatusBadGateway, apperr.StatusOf(err))

	_, err = NewAnalyzer(db, cats, &fakeGenerator{reply: func(string) string { return "not json" }}).Analyze(ctx, user)
	require.Equal(t, http.StatusBadGateway, apperr.StatusOf(err))

	_, err = NewGemini(ctx, "", "")
	require.Equal(t, http.StatusServiceUnavailable, apperr.StatusOf(err))
}
