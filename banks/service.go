// Package banks manages bank providers, connections and accounts, and matches
// incoming account numbers to linked accounts.
package banks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/models"
)

const (
	defaultAccountType = "checking"
	defaultCurrency    = "VND"
	authTypeSepay      = "sepay"
)

type Service struct {
	db          *gorm.DB
	providerURL string
}

// NewService returns a Service. providerURL is recorded on providers created on the fly.
func NewService(db *gorm.DB, providerURL string) *Service {
	return &Service{db: db, providerURL: providerURL}
}

// ResolveByAccountNumber finds the oldest active account whose masked number
// ends with the last four characters of accountNumber.
func (s *Service) ResolveByAccountNumber(ctx context.Context, accountNumber string) (models.BankAccount, bool, error) {
	var acc models.BankAccount
	// A shorter suffix would match unrelated masks.
	last4 := Last4(accountNumber)
	if len(last4) != 4 {
		return acc, false, nil
	}
	err := s.db.WithContext(ctx).
		Where("status = ? AND account_number_mask LIKE ?", models.StatusActive, "%"+last4).
		Order("created_at ASC").
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return acc, false, nil
	}
	if err != nil {
		return acc, false, fmt.Errorf("resolve account: %w", err)
	}
	return acc, true, nil
}

// FirstActive returns the oldest active account of any user.
func (s *Service) FirstActive(ctx context.Context) (models.BankAccount, bool, error) {
	var acc models.BankAccount
	err := s.db.WithContext(ctx).Where("status = ?", models.StatusActive).Order("created_at ASC").First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return acc, false, nil
	}
	if err != nil {
		return acc, false, fmt.Errorf("first active account: %w", err)
	}
	return acc, true, nil
}

// Provider returns the provider for gateway, creating it when unknown.
func (s *Service) Provider(ctx context.Context, gateway string) (models.BankProvider, error) {
	db := s.db.WithContext(ctx)
	code := Code(gateway)
	if code == "" {
		code = "UNKNOWN"
	}
	find := func() (models.BankProvider, error) {
		var p models.BankProvider
		return p, db.Where("code = ?", code).First(&p).Error
	}

	p, err := find()
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return p, fmt.Errorf("find provider %s: %w", code, err)
	}
	p = models.BankProvider{Name: BankName(gateway), Code: code, AuthType: authTypeSepay, APIBaseURL: s.providerURL}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
		return p, fmt.Errorf("create provider %s: %w", code, err)
	}
	if p, err = find(); err != nil {
		return p, fmt.Errorf("find provider %s: %w", code, err)
	}
	return p, nil
}

func (s *Service) connection(ctx context.Context, userID, providerID uuid.UUID) (models.BankConnection, error) {
	db := s.db.WithContext(ctx)
	var c models.BankConnection
	err := db.Where("user_id = ? AND bank_provider_id = ? AND status = ?", userID, providerID, models.StatusActive).
		Order("created_at ASC").First(&c).Error
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c, fmt.Errorf("find connection: %w", err)
	}
	c = models.BankConnection{UserID: userID, BankProviderID: providerID, Status: models.StatusActive}
	if err := db.Create(&c).Error; err != nil {
		return c, fmt.Errorf("create connection: %w", err)
	}
	return c, nil
}

// FindOrCreate returns userID's account with accountNumber's mask, creating
// the provider, connection and account as needed.
func (s *Service) FindOrCreate(ctx context.Context, userID uuid.UUID, accountNumber, gateway string) (models.BankAccount, error) {
	acc, _, err := s.link(ctx, userID, accountNumber, gateway, "")
	return acc, err
}

// LinkInput is a request to attach an account to a user.
type LinkInput struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Alias         string `json:"alias"`
}

// Link attaches an account to userID. An account that already exists is
// reactivated and its alias updated. created reports whether a row was added.
func (s *Service) Link(ctx context.Context, userID uuid.UUID, in LinkInput) (acc models.BankAccount, created bool, err error) {
	details := map[string]string{}
	if AccountNumber(in.AccountNumber) == "" {
		details["account_number"] = "required"
	}
	if Code(in.BankCode) == "" {
		details["bank_code"] = "required"
	}
	if len(details) > 0 {
		return acc, false, apperr.Validation("account number and bank code are required", details)
	}
	return s.link(ctx, userID, in.AccountNumber, in.BankCode, strings.TrimSpace(in.Alias))
}

func (s *Service) link(ctx context.Context, userID uuid.UUID, accountNumber, gateway, alias string) (models.BankAccount, bool, error) {
	db := s.db.WithContext(ctx)
	mask := Mask(accountNumber)

	var acc models.BankAccount
	err := db.Where("user_id = ? AND account_number_mask = ?", userID, mask).First(&acc).Error
	if err == nil {
		updates := map[string]interface{}{}
		if acc.Status != models.StatusActive {
			updates["status"] = models.StatusActive
		}
		if alias != "" && alias != acc.AccountAlias {
			updates["account_alias"] = alias
		}
		if len(updates) > 0 {
			if err := db.Model(&acc).Updates(updates).Error; err != nil {
				return acc, false, fmt.Errorf("update account: %w", err)
			}
		}
		return acc, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return acc, false, fmt.Errorf("find account: %w", err)
	}

	provider, err := s.Provider(ctx, gateway)
	if err != nil {
		return acc, false, err
	}
	conn, err := s.connection(ctx, userID, provider.ID)
	if err != nil {
		return acc, false, err
	}
	if alias == "" {
		alias = provider.Name + " - " + Last4(accountNumber)
	}
	acc = models.BankAccount{
		UserID:            userID,
		ConnectionID:      conn.ID,
		BankName:          provider.Name,
		AccountAlias:      alias,
		AccountNumberMask: mask,
		AccountType:       defaultAccountType,
		Currency:          defaultCurrency,
		Status:            models.StatusActive,
	}
	if err := db.Create(&acc).Error; err != nil {
		return acc, false, fmt.Errorf("create account: %w", err)
	}
	return acc, true, nil
}

// Accounts lists userID's accounts.
func (s *Service) Accounts(ctx context.Context, userID uuid.UUID) ([]models.BankAccount, error) {
	var out []models.BankAccount
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}
