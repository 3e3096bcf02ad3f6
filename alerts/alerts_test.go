package alerts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/database/dbtest"
	"money-tracker-go-be/models"
)

func addTxn(t *testing.T, db *gorm.DB, user uuid.UUID, amount int64, typ models.TransactionType, at time.Time, category *uuid.UUID) models.Transaction {
	t.Helper()
	txn := models.Transaction{
		UserID:               user,
		Amount:               decimal.NewFromInt(amount),
		Type:                 typ,
		RawDescription:       "test payment",
		PostedAt:             at.UTC(),
		CategoryID:           category,
		ClassificationSource: models.SourceAuto,
	}
	require.NoError(t, db.Create(&txn).Error)
	return txn
}

func countAlerts(t *testing.T, db *gorm.DB, user uuid.UUID, typ models.AlertType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Alert{}).Where("user_id = ? AND alert_type = ?", user, typ).Count(&n).Error)
	return n
}

func TestFormatVND(t *testing.T) {
	require.Equal(t, "5.000.000", FormatVND(decimal.NewFromInt(5000000)))
	require.Equal(t, "750", FormatVND(decimal.NewFromInt(750)))
	require.Equal(t, "1.000", FormatVND(decimal.RequireFromString("999.6")))
	require.Equal(t, "-12.345", FormatVND(decimal.NewFromInt(-12345)))
}

func TestServiceLifecycle(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db)
	ctx := context.Background()
	user, other := uuid.New(), uuid.New()

	a, err := svc.Create(ctx, CreateInput{UserID: user, Type: models.AlertInfo, Message: "hello", Payload: map[string]interface{}{"k": 1}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{UserID: user, Type: models.AlertSuccess, Message: "done"})
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(a.Payload, &payload))
	require.EqualValues(t, 1, payload["k"])

	unread, err := svc.UnreadCount(ctx, user)
	require.NoError(t, err)
	require.EqualValues(t, 2, unread)

	require.Equal(t, 404, apperr.StatusOf(svc.MarkRead(ctx, other, a.ID)))
	require.NoError(t, svc.MarkRead(ctx, user, a.ID))

	list, err := svc.List(ctx, user, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "done", list[0].Message)

	n, err := svc.MarkAllRead(ctx, user)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	list, err = svc.List(ctx, user, false)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.Equal(t, 404, apperr.StatusOf(svc.Delete(ctx, other, a.ID)))
	require.NoError(t, svc.Delete(ctx, user, a.ID))
	require.Equal(t, 404, apperr.StatusOf(svc.Delete(ctx, user, a.ID)))
}

func TestLargeTransaction(t *testing.T) {
	db := dbtest.New(t)
	d := NewDetector(db, NewService(db), Thresholds{LargeAmount: decimal.NewFromInt(5000000)})
	ctx := context.Background()
	user := uuid.New()
	now := time.Now()

	income := addTxn(t, db, user, 10000000, models.TransactionIncome, now, nil)
	fired, err := d.Check(ctx, income, "")
	require.NoError(t, err)
	require.Empty(t, fired)

	small := addTxn(t, db, user, 4999999, models.TransactionExpense, now, nil)
	fired, err = d.Check(ctx, small, "")
	require.NoError(t, err)
	require.Empty(t, fired)

	big := addTxn(t, db, user, 5000000, models.TransactionExpense, now, nil)
	fired, err = d.Check(ctx, big, "")
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.Equal(t, models.AlertLargeTransaction, fired[0].AlertType)
	require.Contains(t, fired[0].Message, "5.000.000 VND")
	require.Equal(t, big.ID.String(), fired[0].DedupKey)
}

func TestUnusualSpendingNeedsHistory(t *testing.T) {
	db := dbtest.New(t)
	d := NewDetector(db, NewService(db), Thresholds{Multiplier: decimal.NewFromInt(3)})
	ctx := context.Background()
	user := uuid.New()
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		addTxn(t, db, user, 100000, models.TransactionExpense, now.Add(-time.Duration(i+1)*24*time.Hour), nil)
	}
	addTxn(t, db, user, 100000, models.TransactionExpense, now.Add(-40*24*time.Hour), nil)

	spend := addTxn(t, db, user, 1000000, models.TransactionExpense, now, nil)
	fired, err := d.Check(ctx, spend, "")
	require.NoError(t, err)
	require.Empty(t, fired)

	addTxn(t, db, user, 100000, models.TransactionExpense, now.Add(-10*24*time.Hour), nil)
	fired, err = d.Check(ctx, spend, "")
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.Equal(t, models.AlertUnusualSpending, fired[0].AlertType)
	require.Contains(t, fired[0].Message, "gấp 10.0 lần")

	modest := addTxn(t, db, user, 300000, models.TransactionExpense, now, nil)
	fired, err = d.Check(ctx, modest, "")
	require.NoError(t, err)
	require.Empty(t, fired)
}

func TestCategorySpikeOncePerMonth(t *testing.T) {
	db := dbtest.New(t)
	d := NewDetector(db, NewService(db), Thresholds{SpikePercent: decimal.NewFromInt(150)})
	ctx := context.Background()
	user := uuid.New()
	category := uuid.New()

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	d.WithClock(func() time.Time { return now })

	first := addTxn(t, db, user, 400000, models.TransactionExpense, now, &category)
	fired, err := d.Check(ctx, first, "Food")
	require.NoError(t, err)
	require.Empty(t, fired, "no baseline without prior spending")

	// 300k, 300k and an empty month average to 200k; older spending is ignored.
	addTxn(t, db, user, 300000, models.TransactionExpense, monthStart.AddDate(0, -1, 2), &category)
	addTxn(t, db, user, 300000, models.TransactionExpense, monthStart.AddDate(0, -2, 5), &category)
	addTxn(t, db, user, 900000, models.TransactionExpense, monthStart.AddDate(0, -5, 0), &category)

	fired, err = d.Check(ctx, first, "Food")
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.Equal(t, models.AlertCategorySpike, fired[0].AlertType)
	require.Contains(t, fired[0].Message, `"Food" tăng 200%`)

	second := addTxn(t, db, user, 200000, models.TransactionExpense, now, &category)
	fired, err = d.Check(ctx, second, "Food")
	require.NoError(t, err)
	require.Empty(t, fired)
	require.EqualValues(t, 1, countAlerts(t, db, user, models.AlertCategorySpike))
}
