package sepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"money-tracker-go-be/alerts"
	"money-tracker-go-be/apperr"
	"money-tracker-go-be/banks"
	"money-tracker-go-be/categorize"
	"money-tracker-go-be/logger"
	"money-tracker-go-be/models"
)

// Outcome is the terminal state of one notification.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeNoAccount Outcome = "no_account"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

const (
	msgReceived       = "Received"
	msgMalformed      = "Invalid payload - malformed JSON"
	msgMissingAccount = "Invalid payload - missing accountNumber"
	msgMissingAmount  = "Invalid payload - missing transferAmount"
	msgNoUser         = "No matching user found"
	msgDuplicate      = "Duplicate transaction"
	msgProcessed      = "Transaction processed"
	msgFallback       = "Transaction processed (fallback user)"
	msgErrorPrefix    = "Error processing webhook: "
)

// Result is what a notification turned into. Message is safe to return to the sender.
type Result struct {
	Outcome       Outcome
	Message       string
	TransactionID *uuid.UUID
	Transaction   *models.Transaction
	Alerts        []models.Alert
	Fallback      bool
}

// Created reports whether a new transaction was stored.
func (r Result) Created() bool { return r.Outcome == OutcomeCreated }

// Options configures webhook handling.
type Options struct {
	Verifier Verifier
	// Strict rejects unsigned or badly signed webhooks with an error instead of acknowledging them.
	Strict bool
	// AllowFallback routes webhooks for unknown accounts to the oldest active account.
	AllowFallback bool
}

// Pipeline turns notifications into categorized, stored transactions.
type Pipeline struct {
	db       *gorm.DB
	banks    *banks.Service
	engine   *categorize.Engine
	detector *alerts.Detector
	opts     Options
	now      func() time.Time
}

func NewPipeline(db *gorm.DB, banks *banks.Service, engine *categorize.Engine, detector *alerts.Detector, opts Options) *Pipeline {
	return &Pipeline{db: db, banks: banks, engine: engine, detector: detector, opts: opts, now: time.Now}
}

// Receive handles a pushed webhook body. The returned error is non-nil only
// when a strict pipeline rejects the signature; every other failure is
// reported through Result so the sender sees an acknowledgement.
func (p *Pipeline) Receive(ctx context.Context, body []byte, signature, timestamp string) (Result, error) {
	log := logger.FromContext(ctx)

	if p.opts.Verifier.Enabled() {
		err := p.opts.Verifier.Verify(body, signature, timestamp)
		switch {
		case errors.Is(err, ErrMissingSignature):
			if p.opts.Strict {
				log.Warn().Msg("webhook without signature rejected")
				return Result{Outcome: OutcomeRejected}, apperr.Unauthenticated("missing webhook signature")
			}
			log.Warn().Msg("webhook received without signature")
		case err != nil:
			log.Warn().Err(err).Msg("webhook signature check failed")
			if p.opts.Strict {
				return Result{Outcome: OutcomeRejected}, apperr.Unauthenticated(err.Error())
			}
			return Result{Outcome: OutcomeRejected, Message: msgReceived}, nil
		}
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn().Err(err).Str("outcome", string(OutcomeInvalid)).Msg("webhook body is not valid JSON")
		return Result{Outcome: OutcomeInvalid, Message: msgMalformed}, nil
	}
	return p.Push(ctx, payload), nil
}

// Push handles a decoded webhook: the owning user is found through the account number.
func (p *Pipeline) Push(ctx context.Context, payload Payload) Result {
	log := logger.FromContext(ctx).With().Str("idempotency_key", payload.IdempotencyKey()).Logger()

	if res, ok := validate(payload); !ok {
		log.Warn().Str("outcome", string(res.Outcome)).Msg(res.Message)
		return res
	}

	acc, found, err := p.banks.ResolveByAccountNumber(ctx, payload.AccountNumber)
	if err != nil {
		return p.failed(log, err)
	}
	fallback := false
	if !found && p.opts.AllowFallback {
		acc, found, err = p.banks.FirstActive(ctx)
		if err != nil {
			return p.failed(log, err)
		}
		fallback = found
	}
	if !found {
		log.Info().Str("account", banks.Mask(payload.AccountNumber)).Str("outcome", string(OutcomeNoAccount)).Msg("no account for webhook")
		return Result{Outcome: OutcomeNoAccount, Message: msgNoUser}
	}
	if fallback {
		log.Warn().Str("user_id", acc.UserID.String()).Msg("routing webhook to fallback account")
	}

	res, err := p.store(ctx, acc, payload, models.SourceAuto)
	if err != nil {
		return p.failed(log, err)
	}
	res.Fallback = fallback
	switch {
	case res.Outcome == OutcomeDuplicate:
		res.Message = msgDuplicate
	case fallback:
		res.Message = msgFallback
	default:
		res.Message = msgProcessed
	}
	return res
}

// Ingest stores payload for a known user, linking the account on first sight.
// It backs API sync, spreadsheet import and simulated webhooks.
func (p *Pipeline) Ingest(ctx context.Context, userID uuid.UUID, payload Payload, source models.ClassificationSource) (Result, error) {
	if res, ok := validate(payload); !ok {
		return res, apperr.Validation(res.Message, nil)
	}
	acc, err := p.banks.FindOrCreate(ctx, userID, payload.AccountNumber, payload.Gateway)
	if err != nil {
		return Result{Outcome: OutcomeFailed}, err
	}
	res, err := p.store(ctx, acc, payload, source)
	if err != nil {
		return Result{Outcome: OutcomeFailed}, err
	}
	if res.Outcome == OutcomeDuplicate {
		res.Message = msgDuplicate
	} else {
		res.Message = msgProcessed
	}
	return res, nil
}

func validate(payload Payload) (Result, bool) {
	if strings.TrimSpace(payload.AccountNumber) == "" {
		return Result{Outcome: OutcomeInvalid, Message: msgMissingAccount}, false
	}
	if payload.TransferAmount == nil {
		return Result{Outcome: OutcomeInvalid, Message: msgMissingAmount}, false
	}
	return Result{}, true
}

func (p *Pipeline) failed(log zerolog.Logger, err error) Result {
	log.Error().Err(err).Str("outcome", string(OutcomeFailed)).Msg("webhook processing failed")
	return Result{Outcome: OutcomeFailed, Message: msgErrorPrefix + err.Error()}
}

func (p *Pipeline) existing(ctx context.Context, userID uuid.UUID, key string) (models.Transaction, bool, error) {
	var t models.Transaction
	err := p.db.WithContext(ctx).Where("user_id = ? AND external_txn_id = ?", userID, key).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t, false, nil
	}
	if err != nil {
		return t, false, fmt.Errorf("find transaction %s: %w", key, err)
	}
	return t, true, nil
}

func duplicate(t models.Transaction) Result {
	id := t.ID
	return Result{Outcome: OutcomeDuplicate, TransactionID: &id, Transaction: &t}
}

// store runs dedup, categorization, persistence and alerting for an account's payload.
func (p *Pipeline) store(ctx context.Context, acc models.BankAccount, payload Payload, source models.ClassificationSource) (Result, error) {
	key := payload.IdempotencyKey()
	log := logger.FromContext(ctx).With().
		Str("idempotency_key", key).
		Str("user_id", acc.UserID.String()).
		Logger()
	ctx = logger.WithContext(ctx, log)

	prev, found, err := p.existing(ctx, acc.UserID, key)
	if err != nil {
		return Result{}, err
	}
	if found {
		log.Info().Str("outcome", string(OutcomeDuplicate)).Msg("transaction already processed")
		return duplicate(prev), nil
	}

	text := payload.Text()
	cat, err := p.engine.Categorize(ctx, acc.UserID, text, "")
	if err != nil {
		return Result{}, fmt.Errorf("categorize: %w", err)
	}

	accountID := acc.ID
	categoryID := cat.Category.ID
	txn := models.Transaction{
		UserID:                acc.UserID,
		BankAccountID:         &accountID,
		ExternalTxnID:         &key,
		Amount:                payload.Amount(),
		Type:                  payload.Type(),
		RawDescription:        text,
		NormalizedDescription: NormalizeDescription(text),
		PostedAt:              payload.PostedAt(p.now()),
		CategoryID:            &categoryID,
		ClassificationSource:  source,
	}
	if err := p.db.WithContext(ctx).Create(&txn).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return Result{}, fmt.Errorf("create transaction: %w", err)
		}
		// A concurrent delivery won the insert.
		prev, found, lookupErr := p.existing(ctx, acc.UserID, key)
		if lookupErr != nil {
			return Result{}, lookupErr
		}
		if !found {
			return Result{}, fmt.Errorf("create transaction: %w", err)
		}
		log.Info().Str("outcome", string(OutcomeDuplicate)).Msg("lost insert race to concurrent delivery")
		return duplicate(prev), nil
	}
	txn.Category = &cat.Category

	fired, err := p.detector.Check(ctx, txn, cat.Category.Name)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("alert checks failed")
	}

	log.Info().
		Str("outcome", string(OutcomeCreated)).
		Str("transaction_id", txn.ID.String()).
		Str("category", cat.Category.Name).
		Str("tier", string(cat.Tier)).
		Int("alerts", len(fired)).
		Msg("transaction stored")
	id := txn.ID
	return Result{Outcome: OutcomeCreated, TransactionID: &id, Transaction: &txn, Alerts: fired}, nil
}

// SyncRequest selects transactions to pull from the aggregator.
type SyncRequest struct {
	AccountNumber string `json:"accountNumber"`
	FromDate      string `json:"fromDate"`
	ToDate        string `json:"toDate"`
	Limit         int    `json:"limit"`
}

type SyncStats struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// TransactionSource lists transactions held by the aggregator.
type TransactionSource interface {
	Transactions(ctx context.Context, q Query) ([]APITransaction, error)
}

// Sync pulls transactions for one account and feeds each through Ingest.
// Rows already stored are counted as skipped.
func (p *Pipeline) Sync(ctx context.Context, src TransactionSource, userID uuid.UUID, req SyncRequest) (SyncStats, error) {
	var stats SyncStats
	if strings.TrimSpace(req.AccountNumber) == "" {
		return stats, apperr.Validation("account number is required", map[string]string{"accountNumber": "required"})
	}
	rows, err := src.Transactions(ctx, Query{
		AccountNumber: req.AccountNumber,
		From:          req.FromDate,
		To:            req.ToDate,
		Limit:         req.Limit,
	})
	if err != nil {
		return stats, err
	}

	log := logger.FromContext(ctx)
	for _, row := range rows {
		res, err := p.Ingest(ctx, userID, row.Payload(), models.SourceAuto)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("sepay_id", row.ID.String()).Msg("sync row failed")
			stats.Errors++
		case res.Outcome == OutcomeDuplicate:
			stats.Skipped++
		default:
			stats.Synced++
		}
	}
	log.Info().
		Str("user_id", userID.String()).
		Int("synced", stats.Synced).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Msg("sepay sync completed")
	return stats, nil
}
