// Package sepay ingests bank transaction notifications from the Sepay aggregator,
// either pushed by webhook or pulled through its REST API.
package sepay

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"money-tracker-go-be/models"
)

// Payload is the webhook body. Spreadsheet rows and API pulls are converted to it
// so every source shares one pipeline.
type Payload struct {
	ID              int64            `json:"id"`
	Gateway         string           `json:"gateway"`
	TransactionDate string           `json:"transactionDate"`
	AccountNumber   string           `json:"accountNumber"`
	SubAccount      *string          `json:"subAccount"`
	Code            *string          `json:"code"`
	Content         string           `json:"content"`
	TransferType    string           `json:"transferType"`
	Description     *string          `json:"description"`
	TransferAmount  *decimal.Decimal `json:"transferAmount"`
	ReferenceCode   string           `json:"referenceCode"`
	Accumulated     decimal.Decimal  `json:"accumulated"`
}

const (
	TransferIn  = "in"
	TransferOut = "out"

	maxDescriptionLen = 500
)

// Bank timestamps carry no zone and are Vietnam local time.
var bankZone = time.FixedZone("ICT", 7*60*60)

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

var spaces = regexp.MustCompile(`\s+`)

// IdempotencyKey identifies the underlying bank transaction across redeliveries.
func (p Payload) IdempotencyKey() string {
	if ref := strings.TrimSpace(p.ReferenceCode); ref != "" {
		return ref
	}
	return "sepay_" + strconv.FormatInt(p.ID, 10)
}

func (p Payload) Type() models.TransactionType {
	if strings.EqualFold(strings.TrimSpace(p.TransferType), TransferIn) {
		return models.TransactionIncome
	}
	return models.TransactionExpense
}

// Text is the description used for categorization: content, else description.
func (p Payload) Text() string {
	if strings.TrimSpace(p.Content) != "" {
		return p.Content
	}
	if p.Description != nil {
		return *p.Description
	}
	return ""
}

// Amount is the magnitude of the transfer. Callers check TransferAmount first.
func (p Payload) Amount() decimal.Decimal {
	if p.TransferAmount == nil {
		return decimal.Zero
	}
	return p.TransferAmount.Abs()
}

// PostedAt parses TransactionDate, falling back to now when it is empty or unreadable.
func (p Payload) PostedAt(now time.Time) time.Time {
	t, ok := ParseDate(p.TransactionDate)
	if !ok {
		return now.UTC()
	}
	return t
}

// ParseDate accepts the date formats seen from Sepay and bank statement exports.
// Values without a zone are read as Vietnam local time.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, bankZone); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeDescription collapses whitespace and caps the length.
func NormalizeDescription(s string) string {
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	if r := []rune(s); len(r) > maxDescriptionLen {
		s = string(r[:maxDescriptionLen])
	}
	return s
}
