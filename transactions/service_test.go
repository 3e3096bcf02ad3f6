package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/categorize"
	"money-tracker-go-be/database/dbtest"
	"money-tracker-go-be/models"
	"money-tracker-go-be/rules"
)

type fixture struct {
	db     *gorm.DB
	svc    *Service
	engine *categorize.Engine
	user   uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Seeded(t)
	patterns := categorize.NewPatternStore(db)
	cats := categorize.NewCategoryStore(db)
	engine := categorize.NewEngine(patterns, cats)
	svc := NewService(db, cats, engine, categorize.NewLearner(patterns), rules.NewService(db, cats))
	return fixture{db: db, svc: svc, engine: engine, user: uuid.New()}
}

func (f fixture) category(t *testing.T, name string) models.Category {
	t.Helper()
	var c models.Category
	require.NoError(t, f.db.Where("name = ? AND user_id IS NULL", name).First(&c).Error)
	return c
}

func (f fixture) add(t *testing.T, user uuid.UUID, desc string, typ models.TransactionType, at time.Time, category *uuid.UUID) models.Transaction {
	t.Helper()
	txn := models.Transaction{
		UserID:               user,
		Amount:               decimal.NewFromInt(50000),
		Type:                 typ,
		RawDescription:       desc,
		PostedAt:             at.UTC(),
		CategoryID:           category,
		ClassificationSource: models.SourceAuto,
	}
	require.NoError(t, f.db.Create(&txn).Error)
	return txn
}

func TestUpdateCategoryLearns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shopping := f.category(t, "Shopping")
	txn := f.add(t, f.user, "GRAB FOOD DON HANG GF123456", models.TransactionExpense, time.Now(), nil)

	note := "team lunch"
	got, err := f.svc.UpdateCategory(ctx, f.user, txn.ID, UpdateCategoryInput{CategoryID: shopping.ID, Notes: &note, Remember: true})
	require.NoError(t, err)
	require.Equal(t, models.SourceManual, got.ClassificationSource)
	require.Equal(t, shopping.ID, *got.CategoryID)

	var stored models.Transaction
	require.NoError(t, f.db.First(&stored, "id = ?", txn.ID).Error)
	require.Equal(t, models.SourceManual, stored.ClassificationSource)
	require.Equal(t, "team lunch", *stored.Notes)

	res, err := f.engine.Categorize(ctx, f.user, "GRAB FOOD DON HANG GF999999", "")
	require.NoError(t, err)
	require.Equal(t, categorize.TierMerchant, res.Tier)
	require.Equal(t, shopping.ID, res.Category.ID)

	var rule models.CategoryRule
	require.NoError(t, f.db.Where("keyword_normalized = ? AND category_id = ?", "grab", shopping.ID).First(&rule).Error)
	require.Equal(t, rules.DefaultPriority, rule.Priority)
}

func TestUpdateCategoryErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food := f.category(t, "Food")
	txn := f.add(t, f.user, "coffee", models.TransactionExpense, time.Now(), nil)

	_, err := f.svc.UpdateCategory(ctx, f.user, txn.ID, UpdateCategoryInput{})
	require.Equal(t, 400, apperr.StatusOf(err))
	_, err = f.svc.UpdateCategory(ctx, uuid.New(), txn.ID, UpdateCategoryInput{CategoryID: food.ID})
	require.Equal(t, 404, apperr.StatusOf(err))
	_, err = f.svc.UpdateCategory(ctx, f.user, txn.ID, UpdateCategoryInput{CategoryID: uuid.New()})
	require.Equal(t, 404, apperr.StatusOf(err))
}

func TestBulkUpdateCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	travel := f.category(t, "Travel")
	now := time.Now()

	a := f.add(t, f.user, "one", models.TransactionExpense, now, nil)
	b := f.add(t, f.user, "two", models.TransactionExpense, now, nil)
	foreign := f.add(t, uuid.New(), "three", models.TransactionExpense, now, nil)
	missing := uuid.New()

	res, err := f.svc.BulkUpdateCategory(ctx, f.user, []uuid.UUID{a.ID, foreign.ID, b.ID, missing}, travel.ID)
	require.NoError(t, err)
	require.Equal(t, 2, res.SuccessCount)
	require.Equal(t, 2, res.FailedCount)
	require.ElementsMatch(t, []uuid.UUID{foreign.ID, missing}, res.FailedIDs)

	var moved int64
	require.NoError(t, f.db.Model(&models.Transaction{}).
		Where("category_id = ? AND classification_source = ?", travel.ID, models.SourceManual).
		Count(&moved).Error)
	require.EqualValues(t, 2, moved)

	_, err = f.svc.BulkUpdateCategory(ctx, f.user, nil, travel.ID)
	require.Equal(t, 400, apperr.StatusOf(err))
	_, err = f.svc.BulkUpdateCategory(ctx, f.user, []uuid.UUID{a.ID}, uuid.New())
	require.Equal(t, 404, apperr.StatusOf(err))
}

func TestAutoCategorizePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	unc, err := categorize.NewCategoryStore(f.db).EnsureUncategorized(ctx)
	require.NoError(t, err)
	bills := f.category(t, "Bills")
	travel := f.category(t, "Travel")

	food := f.add(t, f.user, "GRAB FOOD DON HANG GF123456", models.TransactionExpense, now, nil)
	power := f.add(t, f.user, "Thanh toan tien dien EVN", models.TransactionExpense, now, &unc.ID)
	f.add(t, f.user, "xyzzy plugh", models.TransactionExpense, now, nil)
	manual := f.add(t, f.user, "EVN again", models.TransactionExpense, now, &travel.ID)

	n, err := f.svc.AutoCategorizePending(ctx, f.user)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	var gotFood, gotPower, gotManual models.Transaction
	require.NoError(t, f.db.Preload("Category").First(&gotFood, "id = ?", food.ID).Error)
	require.Equal(t, "Food", gotFood.Category.Name)
	require.Equal(t, models.SourceAuto, gotFood.ClassificationSource)

	require.NoError(t, f.db.First(&gotPower, "id = ?", power.ID).Error)
	require.Equal(t, power.ID, gotPower.ID)
	require.Equal(t, bills.ID, *gotPower.CategoryID)

	require.NoError(t, f.db.First(&gotManual, "id = ?", manual.ID).Error)
	require.Equal(t, manual.ID, gotManual.ID)
	require.Equal(t, travel.ID, *gotManual.CategoryID)
}

func TestListFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food := f.category(t, "Food")
	base := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		f.add(t, f.user, "expense", models.TransactionExpense, base.AddDate(0, 0, i), &food.ID)
	}
	f.add(t, f.user, "salary", models.TransactionIncome, base.AddDate(0, 0, 10), nil)
	f.add(t, uuid.New(), "someone else", models.TransactionExpense, base, nil)

	page, err := f.svc.List(ctx, f.user, Filter{Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 6, page.Pagination.Total)
	require.Equal(t, 3, page.Pagination.TotalPages)
	require.Len(t, page.Transactions, 2)
	require.Equal(t, "salary", page.Transactions[0].RawDescription)

	page, err = f.svc.List(ctx, f.user, Filter{Type: models.TransactionExpense, Page: 3, Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, page.Pagination.Total)
	require.Len(t, page.Transactions, 1)
	require.Equal(t, "Food", page.Transactions[0].Category.Name)

	from := base.AddDate(0, 0, 1)
	to := base.AddDate(0, 0, 3)
	page, err = f.svc.List(ctx, f.user, Filter{CategoryID: &food.ID, From: &from, To: &to})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Pagination.Total)
}
