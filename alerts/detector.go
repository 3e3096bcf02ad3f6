package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"money-tracker-go-be/config"
	"money-tracker-go-be/logger"
	"money-tracker-go-be/models"
)

const (
	unusualWindow     = 30 * 24 * time.Hour
	unusualMinHistory = 5
	spikeMonths       = 3
)

var hundred = decimal.NewFromInt(100)

// Thresholds configures the detector. A zero threshold disables its check.
type Thresholds struct {
	LargeAmount  decimal.Decimal
	Multiplier   decimal.Decimal
	SpikePercent decimal.Decimal
}

func ThresholdsFrom(c config.AlertsConfig) Thresholds {
	return Thresholds{
		LargeAmount:  decimal.NewFromFloat(c.LargeTransactionAmount),
		Multiplier:   decimal.NewFromFloat(c.LargeTransactionMultiplier),
		SpikePercent: decimal.NewFromFloat(c.CategorySpikePercent),
	}
}

// Detector raises alerts for newly stored expense transactions.
type Detector struct {
	db     *gorm.DB
	alerts *Service
	limits Thresholds
	now    func() time.Time
}

func NewDetector(db *gorm.DB, alerts *Service, limits Thresholds) *Detector {
	return &Detector{db: db, alerts: alerts, limits: limits, now: time.Now}
}

// WithClock replaces the time source used for the trailing windows.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Check runs every check against txn, which must already be persisted.
// Income is ignored. A failing check does not stop the others.
func (d *Detector) Check(ctx context.Context, txn models.Transaction, categoryName string) ([]models.Alert, error) {
	if txn.Type != models.TransactionExpense {
		return nil, nil
	}
	log := logger.FromContext(ctx)

	var fired []models.Alert
	var errs []error
	for _, check := range []func(context.Context, models.Transaction, string) (*models.Alert, error){
		d.large, d.unusual, d.spike,
	} {
		a, err := check(ctx, txn, categoryName)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if a != nil {
			log.Info().
				Str("alert_type", string(a.AlertType)).
				Str("transaction_id", txn.ID.String()).
				Msg("alert raised")
			fired = append(fired, *a)
		}
	}
	return fired, errors.Join(errs...)
}

func (d *Detector) large(ctx context.Context, txn models.Transaction, _ string) (*models.Alert, error) {
	if !d.limits.LargeAmount.IsPositive() || txn.Amount.LessThan(d.limits.LargeAmount) {
		return nil, nil
	}
	desc := txn.Description()
	a, err := d.alerts.Create(ctx, CreateInput{
		UserID:   txn.UserID,
		Type:     models.AlertLargeTransaction,
		Message:  fmt.Sprintf("Phát hiện giao dịch lớn: %s VND - %s", FormatVND(txn.Amount), desc),
		DedupKey: txn.ID.String(),
		Payload: map[string]interface{}{
			"transactionId": txn.ID,
			"amount":        txn.Amount,
			"description":   desc,
			"threshold":     d.limits.LargeAmount,
		},
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *Detector) unusual(ctx context.Context, txn models.Transaction, _ string) (*models.Alert, error) {
	if !d.limits.Multiplier.IsPositive() {
		return nil, nil
	}
	var amounts []decimal.Decimal
	err := d.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND type = ? AND posted_at >= ? AND id <> ?",
			txn.UserID, models.TransactionExpense, d.now().UTC().Add(-unusualWindow), txn.ID).
		Pluck("amount", &amounts).Error
	if err != nil {
		return nil, fmt.Errorf("load recent expenses: %w", err)
	}
	if len(amounts) < unusualMinHistory {
		return nil, nil
	}
	avg := decimal.Avg(amounts[0], amounts[1:]...)
	if !avg.IsPositive() || !txn.Amount.GreaterThan(avg.Mul(d.limits.Multiplier)) {
		return nil, nil
	}
	ratio := txn.Amount.Div(avg)
	a, err := d.alerts.Create(ctx, CreateInput{
		UserID:   txn.UserID,
		Type:     models.AlertUnusualSpending,
		Message:  fmt.Sprintf("Giao dịch bất thường: %s VND - gấp %s lần mức chi trung bình", FormatVND(txn.Amount), ratio.StringFixed(1)),
		DedupKey: txn.ID.String(),
		Payload: map[string]interface{}{
			"transactionId": txn.ID,
			"amount":        txn.Amount,
			"averageAmount": avg.Round(2),
			"multiplier":    ratio.Round(2),
			"description":   txn.Description(),
		},
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type postedAmount struct {
	Amount   decimal.Decimal
	PostedAt time.Time
}

func (d *Detector) spike(ctx context.Context, txn models.Transaction, categoryName string) (*models.Alert, error) {
	if txn.CategoryID == nil || !d.limits.SpikePercent.IsPositive() {
		return nil, nil
	}
	categoryID := *txn.CategoryID

	now := d.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	historyStart := monthStart.AddDate(0, -spikeMonths, 0)
	nextMonth := monthStart.AddDate(0, 1, 0)

	rows, err := d.categoryExpenses(ctx, txn.UserID, categoryID, historyStart, nextMonth)
	if err != nil {
		return nil, err
	}
	current := decimal.Zero
	history := decimal.Zero
	for _, r := range rows {
		if !r.PostedAt.UTC().Before(monthStart) {
			current = current.Add(r.Amount)
			continue
		}
		history = history.Add(r.Amount)
	}
	// Months without spending count toward the average.
	avg := history.Div(decimal.NewFromInt(spikeMonths))
	if !avg.IsPositive() {
		return nil, nil
	}
	pct := current.Div(avg).Mul(hundred)
	if pct.LessThan(d.limits.SpikePercent) {
		return nil, nil
	}

	key := categoryID.String()
	exists, err := d.alerts.ExistsSince(ctx, txn.UserID, models.AlertCategorySpike, key, monthStart)
	if err != nil || exists {
		return nil, err
	}
	a, err := d.alerts.Create(ctx, CreateInput{
		UserID:   txn.UserID,
		Type:     models.AlertCategorySpike,
		Message:  fmt.Sprintf("Chi tiêu danh mục %q tăng %s%% so với trung bình 3 tháng trước", categoryName, pct.StringFixed(0)),
		DedupKey: key,
		Payload: map[string]interface{}{
			"categoryId":      categoryID,
			"categoryName":    categoryName,
			"currentSpending": current,
			"averageSpending": avg.Round(2),
			"spikePercentage": pct.Round(2),
		},
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *Detector) categoryExpenses(ctx context.Context, userID, categoryID uuid.UUID, from, to time.Time) ([]postedAmount, error) {
	var rows []postedAmount
	err := d.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("amount, posted_at").
		Where("user_id = ? AND category_id = ? AND type = ? AND posted_at >= ? AND posted_at < ?",
			userID, categoryID, models.TransactionExpense, from, to).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load category expenses: %w", err)
	}
	return rows, nil
}

// FormatVND renders a whole-dong amount with dot thousands separators, e.g. 5.000.000.
func FormatVND(amount decimal.Decimal) string {
	s := amount.Round(0).Abs().String()
	var b strings.Builder
	if amount.Round(0).IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}
