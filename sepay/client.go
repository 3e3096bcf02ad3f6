package sepay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/logger"
)

const (
	defaultPullLimit = 100
	clientTimeout    = 30 * time.Second
)

// Client calls the aggregator's user API with a bearer API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient returns a Client. A nil hc gets a client with a 30s timeout.
func NewClient(baseURL, apiKey string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: clientTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: hc}
}

// Query filters Transactions. Dates are passed through as given.
type Query struct {
	AccountNumber string
	From          string
	To            string
	Limit         int
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*f = ""
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	*f = flexString(s)
	return nil
}

func (f flexString) String() string { return string(f) }

// APITransaction is a row of GET /transactions.
type APITransaction struct {
	ID              flexString      `json:"id"`
	TransactionDate string          `json:"transaction_date"`
	AccountNumber   string          `json:"account_number"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	ReferenceCode   string          `json:"reference_code"`
	TransactionType string          `json:"transaction_type"`
	BankCode        string          `json:"bank_code"`
}

// Payload converts the row to the webhook shape.
func (t APITransaction) Payload() Payload {
	id, _ := strconv.ParseInt(t.ID.String(), 10, 64)
	amount := t.Amount.Abs()
	desc := t.Description
	return Payload{
		ID:              id,
		Gateway:         t.BankCode,
		TransactionDate: t.TransactionDate,
		AccountNumber:   t.AccountNumber,
		Content:         t.Description,
		Description:     &desc,
		TransferType:    t.TransactionType,
		TransferAmount:  &amount,
		ReferenceCode:   t.ReferenceCode,
	}
}

// APIBankAccount is a row of GET /bankaccounts.
type APIBankAccount struct {
	ID            flexString `json:"id"`
	AccountNumber string     `json:"account_number"`
	BankName      string     `json:"bank_name"`
	BankCode      string     `json:"bank_code"`
	Status        string     `json:"status"`
}

func (c *Client) Transactions(ctx context.Context, q Query) ([]APITransaction, error) {
	params := url.Values{}
	if q.AccountNumber != "" {
		params.Set("account_number", q.AccountNumber)
	}
	if q.From != "" {
		params.Set("transaction_date_min", q.From)
	}
	if q.To != "" {
		params.Set("transaction_date_max", q.To)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPullLimit
	}
	params.Set("limit", strconv.Itoa(limit))

	var body struct {
		Transactions []APITransaction `json:"transactions"`
	}
	if err := c.get(ctx, "/transactions", params, &body); err != nil {
		return nil, err
	}
	return body.Transactions, nil
}

func (c *Client) BankAccounts(ctx context.Context) ([]APIBankAccount, error) {
	var body struct {
		BankAccounts []APIBankAccount `json:"bankAccounts"`
	}
	if err := c.get(ctx, "/bankaccounts", nil, &body); err != nil {
		return nil, err
	}
	return body.BankAccounts, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build sepay request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	log := logger.FromContext(ctx)
	resp, err := c.http.Do(req)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("sepay request failed")
		return apperr.ExternalAPI("sepay", err)
	}
	defer resp.Body.Close()
	log.Info().Str("path", path).Int("status", resp.StatusCode).Msg("sepay response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.ExternalAPI("sepay", fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.ExternalAPI("sepay", fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}
