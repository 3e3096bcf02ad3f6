// Package sheets imports bank statement rows kept in a spreadsheet.
// Columns: bank, date, account number, sub account, code, content, type,
// amount, reference code, accumulated.
package sheets

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"money-tracker-go-be/sepay"
	"money-tracker-go-be/textnorm"
)

const minColumns = 8

// Row is one statement line as text.
type Row struct {
	Bank          string
	Date          string
	AccountNumber string
	SubAccount    string
	Code          string
	Content       string
	Type          string
	Amount        string
	ReferenceCode string
	Accumulated   string
}

var (
	moneyNoise   = regexp.MustCompile(`[,\s₫đĐVND]`)
	dotThousands = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)
)

// ParseRows skips the header row and rows without an account number or amount.
func ParseRows(records [][]string) []Row {
	var out []Row
	for i, rec := range records {
		if i == 0 || len(rec) < minColumns {
			continue
		}
		col := func(n int) string {
			if n < len(rec) {
				return strings.TrimSpace(rec[n])
			}
			return ""
		}
		r := Row{
			Bank: col(0), Date: col(1), AccountNumber: col(2), SubAccount: col(3), Code: col(4),
			Content: col(5), Type: col(6), Amount: col(7), ReferenceCode: col(8), Accumulated: col(9),
		}
		if r.AccountNumber == "" || r.Amount == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParseAmount reads amounts such as "1,250,000 ₫", "75.000" or "-20000 VND".
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := moneyNoise.ReplaceAllString(strings.TrimSpace(s), "")
	if dotThousands.MatchString(clean) {
		clean = strings.ReplaceAll(clean, ".", "")
	}
	if clean == "" {
		return decimal.Zero, fmt.Errorf("empty amount %q", s)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// Direction maps the type column to a transfer type. Anything that is not
// recognisably incoming is treated as outgoing.
func Direction(s string) string {
	switch textnorm.Normalize(s) {
	case "in", "tien vao", "thu", "credit":
		return sepay.TransferIn
	}
	return sepay.TransferOut
}

// IdempotencyKey is the reference code, or a stable hash of the row's content.
func (r Row) IdempotencyKey() string {
	if r.ReferenceCode != "" {
		return r.ReferenceCode
	}
	h := fnv.New64a()
	for _, f := range []string{r.Bank, r.Date, r.AccountNumber, r.Content, r.Type, r.Amount} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("sheets_%016x", h.Sum64())
}

// Payload converts the row to the webhook shape.
func (r Row) Payload() (sepay.Payload, error) {
	amount, err := ParseAmount(r.Amount)
	if err != nil {
		return sepay.Payload{}, err
	}
	amount = amount.Abs()
	accumulated, err := ParseAmount(r.Accumulated)
	if err != nil {
		accumulated = decimal.Zero
	}

	p := sepay.Payload{
		Gateway:         r.Bank,
		TransactionDate: r.Date,
		AccountNumber:   r.AccountNumber,
		Content:         r.Content,
		TransferType:    Direction(r.Type),
		TransferAmount:  &amount,
		ReferenceCode:   r.IdempotencyKey(),
		Accumulated:     accumulated,
	}
	if p.Gateway == "" {
		p.Gateway = "Unknown"
	}
	if r.SubAccount != "" {
		sub := r.SubAccount
		p.SubAccount = &sub
	}
	if r.Code != "" {
		code := r.Code
		p.Code = &code
	}
	if r.Content != "" {
		desc := r.Content
		p.Description = &desc
	}
	return p, nil
}
