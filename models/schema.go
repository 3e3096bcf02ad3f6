package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransactionType is the direction of money movement. Amounts are always stored positive.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// ClassificationSource records who assigned a transaction's category.
type ClassificationSource string

const (
	SourceAuto         ClassificationSource = "AUTO"
	SourceManual       ClassificationSource = "MANUAL"
	SourceGoogleSheets ClassificationSource = "GOOGLE_SHEETS"
)

// PatternType is the kind of a CategoryPattern.
type PatternType string

const (
	PatternMerchant PatternType = "merchant"
	PatternKeyword  PatternType = "keyword"
	PatternMCC      PatternType = "mcc"
)

// Valid reports whether t is one of the known pattern types.
func (t PatternType) Valid() bool {
	switch t {
	case PatternMerchant, PatternKeyword, PatternMCC:
		return true
	}
	return false
}

// AlertType classifies an Alert.
type AlertType string

const (
	AlertBudgetWarning    AlertType = "BUDGET_WARNING"
	AlertBudgetExceeded   AlertType = "BUDGET_EXCEEDED"
	AlertLargeTransaction AlertType = "LARGE_TRANSACTION"
	AlertUnusualSpending  AlertType = "UNUSUAL_SPENDING"
	AlertCategorySpike    AlertType = "CATEGORY_SPIKE"
	AlertInfo             AlertType = "INFO"
	AlertSuccess          AlertType = "SUCCESS"
)

// Status values shared by bank connections and accounts.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// SystemKeyUncategorized marks the singleton fallback category.
const SystemKeyUncategorized = "uncategorized"

// Base carries the uuid primary key; ids are generated client side so the
// schema works on any SQL dialect.
type Base struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
}

func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// User represents a user in the system.
type User struct {
	Base
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Category is a spending/income bucket, either a shared default (UserID nil) or user owned.
type Category struct {
	Base
	UserID    *uuid.UUID      `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Name      string          `gorm:"not null;index" json:"name"`
	Type      TransactionType `gorm:"type:varchar(10);not null" json:"type"`
	IsDefault bool            `gorm:"not null;default:false" json:"is_default"`
	Priority  int             `gorm:"not null;default:50" json:"priority"`
	Icon      string          `json:"icon"`
	Color     string          `json:"color"`
	SystemKey *string         `gorm:"uniqueIndex" json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

// CategoryPattern is a learned or authored matching rule. Pattern text is stored lowercased.
type CategoryPattern struct {
	Base
	UserID      *uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_pattern_identity" json:"user_id,omitempty"`
	Pattern     string      `gorm:"not null;uniqueIndex:idx_pattern_identity" json:"pattern"`
	PatternType PatternType `gorm:"type:varchar(10);not null;index;uniqueIndex:idx_pattern_identity" json:"pattern_type"`
	CategoryID  uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_pattern_identity" json:"category_id"`
	Category    *Category   `json:"category,omitempty"`
	Confidence  float64     `gorm:"not null;default:0.5" json:"confidence"`
	UsageCount  int         `gorm:"not null;default:0" json:"usage_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CategoryRule is the static keyword rule table (lower priority value wins).
type CategoryRule struct {
	Base
	CategoryID        uuid.UUID `gorm:"type:uuid;not null;index" json:"category_id"`
	Category          *Category `json:"category,omitempty"`
	Keyword           string    `gorm:"not null" json:"keyword"`
	KeywordNormalized string    `gorm:"not null;index" json:"keyword_normalized"`
	Priority          int       `gorm:"not null" json:"priority"`
	IsActive          bool      `gorm:"not null" json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Transaction represents a posted financial event.
type Transaction struct {
	Base
	UserID                uuid.UUID            `gorm:"type:uuid;not null;index;uniqueIndex:idx_user_external_txn" json:"user_id"`
	BankAccountID         *uuid.UUID           `gorm:"type:uuid;index" json:"bank_account_id,omitempty"`
	BankAccount           *BankAccount         `json:"bank_account,omitempty"`
	ExternalTxnID         *string              `gorm:"uniqueIndex:idx_user_external_txn" json:"external_txn_id,omitempty"`
	Amount                decimal.Decimal      `gorm:"type:numeric(18,2);not null" json:"amount"`
	Type                  TransactionType      `gorm:"type:varchar(10);not null;index" json:"type"`
	RawDescription        string               `json:"raw_description"`
	NormalizedDescription string               `gorm:"size:500" json:"normalized_description"`
	PostedAt              time.Time            `gorm:"not null;index" json:"posted_at"`
	CategoryID            *uuid.UUID           `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Category              *Category            `json:"category,omitempty"`
	ClassificationSource  ClassificationSource `gorm:"type:varchar(20);not null" json:"classification_source"`
	MCC                   *string              `gorm:"column:mcc" json:"mcc,omitempty"`
	Notes                 *string              `json:"notes,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// Description returns the text used for categorization and learning.
func (t Transaction) Description() string {
	if t.NormalizedDescription != "" {
		return t.NormalizedDescription
	}
	return t.RawDescription
}

// Alert is an out-of-band notification. DedupKey mirrors the payload key
// (categoryId, transactionId, budgetId) that identifies repeated firings.
type Alert struct {
	Base
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_alert_dedup" json:"user_id"`
	AlertType AlertType      `gorm:"type:varchar(30);not null;index:idx_alert_dedup" json:"alert_type"`
	DedupKey  string         `gorm:"index:idx_alert_dedup" json:"-"`
	Message   string         `gorm:"not null" json:"message"`
	Payload   datatypes.JSON `json:"payload"`
	ReadFlag  bool           `gorm:"not null;default:false" json:"read_flag"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// BankProvider is a bank or aggregator gateway, keyed by upper-cased code.
type BankProvider struct {
	Base
	Name       string    `gorm:"not null" json:"name"`
	Code       string    `gorm:"uniqueIndex;not null" json:"code"`
	AuthType   string    `json:"auth_type"`
	APIBaseURL string    `json:"api_base_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// BankConnection links a user to a provider.
type BankConnection struct {
	Base
	UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	BankProviderID uuid.UUID `gorm:"type:uuid;not null;index" json:"bank_provider_id"`
	Status         string    `gorm:"not null;default:active" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// BankAccount is a user's account; only the last four digits of the number are kept.
type BankAccount struct {
	Base
	UserID            uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ConnectionID      uuid.UUID `gorm:"type:uuid;not null;index" json:"connection_id"`
	BankName          string    `json:"bank_name"`
	AccountAlias      string    `json:"account_alias"`
	AccountNumberMask string    `gorm:"not null;index" json:"account_number_mask"`
	AccountType       string    `json:"account_type"`
	Currency          string    `json:"currency"`
	Status            string    `gorm:"not null;default:active;index" json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &Category{}, &CategoryPattern{}, &CategoryRule{},
		&BankProvider{}, &BankConnection{}, &BankAccount{},
		&Transaction{}, &Alert{},
	}
}
