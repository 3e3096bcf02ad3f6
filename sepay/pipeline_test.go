package sepay

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"money-tracker-go-be/alerts"
	"money-tracker-go-be/apperr"
	"money-tracker-go-be/banks"
	"money-tracker-go-be/categorize"
	"money-tracker-go-be/database/dbtest"
	"money-tracker-go-be/models"
)

const grabPayload = `{"id":101,"gateway":"MBBank","transactionDate":"2024-07-11 12:00:00",
	"accountNumber":"0123456789","transferType":"out","transferAmount":75000,
	"content":"GRAB FOOD DON HANG GF123456","referenceCode":"FT001","accumulated":0}`

type fixture struct {
	db    *gorm.DB
	banks *banks.Service
	user  uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Seeded(t)
	f := fixture{db: db, banks: banks.NewService(db, "https://sepay.test"), user: uuid.New()}
	_, _, err := f.banks.Link(context.Background(), f.user, banks.LinkInput{AccountNumber: "9999996789", BankCode: "MBBANK"})
	require.NoError(t, err)
	return f
}

func (f fixture) pipeline(opts Options, limits alerts.Thresholds) *Pipeline {
	cats := categorize.NewCategoryStore(f.db)
	engine := categorize.NewEngine(categorize.NewPatternStore(f.db), cats)
	detector := alerts.NewDetector(f.db, alerts.NewService(f.db), limits)
	return NewPipeline(f.db, f.banks, engine, detector, opts)
}

func (f fixture) count(t *testing.T, user uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("user_id = ?", user).Count(&n).Error)
	return n
}

func TestReceiveEndToEnd(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(Options{}, alerts.Thresholds{})
	ctx := context.Background()

	res, err := p.Receive(ctx, []byte(grabPayload), "", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, res.Outcome)
	require.Equal(t, "Transaction processed", res.Message)
	require.NotNil(t, res.TransactionID)

	var txn models.Transaction
	require.NoError(t, f.db.Preload("Category").First(&txn, "id = ?", *res.TransactionID).Error)
	require.Equal(t, f.user, txn.UserID)
	require.True(t, decimal.NewFromInt(75000).Equal(txn.Amount))
	require.Equal(t, models.TransactionExpense, txn.Type)
	require.Equal(t, models.SourceAuto, txn.ClassificationSource)
	require.Equal(t, "Food", txn.Category.Name)
	require.Equal(t, "FT001", *txn.ExternalTxnID)
	require.NotNil(t, txn.BankAccountID)

	again, err := p.Receive(ctx, []byte(grabPayload), "", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, again.Outcome)
	require.Equal(t, "Duplicate transaction", again.Message)
	require.Equal(t, *res.TransactionID, *again.TransactionID)
	require.EqualValues(t, 1, f.count(t, f.user))

	var hit models.CategoryPattern
	require.NoError(t, f.db.Where("pattern = ? AND user_id IS NULL", "grab food").First(&hit).Error)
	require.Equal(t, 1, hit.UsageCount, "duplicates do not categorize again")
}

func TestReceiveInvalidPayloads(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(Options{}, alerts.Thresholds{})
	ctx := context.Background()

	cases := []struct{ body, msg string }{
		{`{"transferAmount":1000}`, "Invalid payload - missing accountNumber"},
		{`{"accountNumber":"0123456789"}`, "Invalid payload - missing transferAmount"},
		{`{"accountNumber":"0123","transferAmount":null}`, "Invalid payload - missing transferAmount"},
		{`not json`, "Invalid payload - malformed JSON"},
	}
	for _, tc := range cases {
		res, err := p.Receive(ctx, []byte(tc.body), "", "")
		require.NoError(t, err, tc.body)
		require.Equal(t, OutcomeInvalid, res.Outcome, tc.body)
		require.Equal(t, tc.msg, res.Message, tc.body)
	}
	require.EqualValues(t, 0, f.count(t, f.user))
}

func TestReceiveUnknownAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := []byte(`{"id":5,"accountNumber":"5550001111","transferType":"in","transferAmount":10,"content":"salary"}`)

	res, err := f.pipeline(Options{}, alerts.Thresholds{}).Receive(ctx, body, "", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoAccount, res.Outcome)
	require.Equal(t, "No matching user found", res.Message)

	res, err = f.pipeline(Options{AllowFallback: true}, alerts.Thresholds{}).Receive(ctx, body, "", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, res.Outcome)
	require.True(t, res.Fallback)
	require.Equal(t, "Transaction processed (fallback user)", res.Message)
	require.Equal(t, f.user, res.Transaction.UserID)
	require.Equal(t, "sepay_5", *res.Transaction.ExternalTxnID)
}

func TestReceiveSignatures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := []byte(grabPayload)
	v := Verifier{Secret: "s3cret", Tolerance: 5 * time.Minute}

	lenient := f.pipeline(Options{Verifier: v}, alerts.Thresholds{})
	res, err := lenient.Receive(ctx, body, "deadbeef", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.Equal(t, "Received", res.Message)
	require.EqualValues(t, 0, f.count(t, f.user))

	strict := f.pipeline(Options{Verifier: v, Strict: true}, alerts.Thresholds{})
	_, err = strict.Receive(ctx, body, "deadbeef", "")
	require.Equal(t, 401, apperr.StatusOf(err))
	_, err = strict.Receive(ctx, body, "", "")
	require.Equal(t, 401, apperr.StatusOf(err))

	stale := strconv.FormatInt(time.Now().Add(-time.Hour).UnixMilli(), 10)
	_, err = strict.Receive(ctx, body, Sign("s3cret", body, stale), stale)
	require.Equal(t, 401, apperr.StatusOf(err))

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	res, err = strict.Receive(ctx, body, Sign("s3cret", body, ts), ts)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, res.Outcome)

	unsigned := []byte(`{"id":2,"accountNumber":"0123456789","transferType":"in","transferAmount":5,"referenceCode":"FT002"}`)
	res, err = lenient.Receive(ctx, unsigned, "", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, res.Outcome, "missing signatures pass outside strict mode")
}

func TestConcurrentDeliveriesStoreOnce(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(Options{}, alerts.Thresholds{})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = p.Receive(ctx, []byte(grabPayload), "", "")
		}(i)
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		if r.Outcome == OutcomeCreated {
			created++
		}
	}
	require.LessOrEqual(t, created, 1)
	require.EqualValues(t, created, f.count(t, f.user))
}

func TestIngestKnownUserRaisesAlerts(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(Options{}, alerts.Thresholds{LargeAmount: decimal.NewFromInt(5000000)})
	ctx := context.Background()
	user := uuid.New()
	amount := decimal.NewFromInt(6000000)

	res, err := p.Ingest(ctx, user, Payload{
		Gateway:        "Techcombank",
		AccountNumber:  "1903 5555 1234",
		TransferType:   TransferOut,
		TransferAmount: &amount,
		Content:        "Thanh toan hoc phi dai hoc",
		ReferenceCode:  "sheets_abc",
	}, models.SourceGoogleSheets)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, res.Outcome)
	require.Equal(t, models.SourceGoogleSheets, res.Transaction.ClassificationSource)
	require.Equal(t, "Education", res.Transaction.Category.Name)
	require.Len(t, res.Alerts, 1)
	require.Equal(t, models.AlertLargeTransaction, res.Alerts[0].AlertType)

	accounts, err := f.banks.Accounts(ctx, user)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "Techcombank", accounts[0].BankName)

	_, err = p.Ingest(ctx, user, Payload{AccountNumber: "1"}, models.SourceManual)
	require.Equal(t, 400, apperr.StatusOf(err))
}

type fakeSource struct {
	rows []APITransaction
	got  Query
}

func (s *fakeSource) Transactions(_ context.Context, q Query) ([]APITransaction, error) {
	s.got = q
	return s.rows, nil
}

func TestSync(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(Options{}, alerts.Thresholds{})
	ctx := context.Background()

	var rows []APITransaction
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id":"11","transaction_date":"2024-07-01 09:00:00","account_number":"0123456789","amount":50000,
		 "description":"CGV cinema","reference_code":"R1","transaction_type":"out","bank_code":"MBBANK"},
		{"id":12,"transaction_date":"2024-07-02 09:00:00","account_number":"0123456789","amount":"2000000",
		 "description":"Luong thang 6","reference_code":"","transaction_type":"in","bank_code":"MBBANK"},
		{"id":"13","transaction_date":"2024-07-03 09:00:00","account_number":"","amount":1,
		 "description":"broken","reference_code":"R3","transaction_type":"out","bank_code":"MBBANK"}
	]`), &rows))
	src := &fakeSource{rows: rows}

	_, err := p.Sync(ctx, src, f.user, SyncRequest{})
	require.Equal(t, 400, apperr.StatusOf(err))

	stats, err := p.Sync(ctx, src, f.user, SyncRequest{AccountNumber: "0123456789", FromDate: "2024-07-01"})
	require.NoError(t, err)
	require.Equal(t, SyncStats{Synced: 2, Skipped: 0, Errors: 1}, stats)
	require.Equal(t, "2024-07-01", src.got.From)

	stats, err = p.Sync(ctx, src, f.user, SyncRequest{AccountNumber: "0123456789"})
	require.NoError(t, err)
	require.Equal(t, SyncStats{Synced: 0, Skipped: 2, Errors: 1}, stats)

	var salary models.Transaction
	require.NoError(t, f.db.Where("external_txn_id = ?", "sepay_12").First(&salary).Error)
	require.Equal(t, models.TransactionIncome, salary.Type)
}
