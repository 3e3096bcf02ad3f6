package sheets

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"money-tracker-go-be/apperr"
)

// RowSource yields raw spreadsheet records, header first.
type RowSource interface {
	Records(ctx context.Context) ([][]string, error)
}

// CSVSource reads an exported sheet.
type CSVSource struct {
	r io.Reader
}

func NewCSVSource(r io.Reader) *CSVSource {
	return &CSVSource{r: r}
}

func (s *CSVSource) Records(_ context.Context) ([][]string, error) {
	cr := csv.NewReader(s.r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid csv: %v", err), nil)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, nil
}

// APISource reads a range through the Google Sheets API.
type APISource struct {
	svc           *gsheets.Service
	spreadsheetID string
	readRange     string
}

// NewAPISource builds a Sheets client from opts, typically option.WithAPIKey
// for a sheet shared by link.
func NewAPISource(ctx context.Context, spreadsheetID, readRange string, opts ...option.ClientOption) (*APISource, error) {
	if spreadsheetID == "" {
		return nil, apperr.Validation("spreadsheet id is not configured", nil)
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &APISource{svc: svc, spreadsheetID: spreadsheetID, readRange: readRange}, nil
}

func (s *APISource) Records(ctx context.Context) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).Context(ctx).Do()
	if err != nil {
		return nil, apperr.ExternalAPI("google sheets", err)
	}
	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		rec := make([]string, len(row))
		for i, cell := range row {
			if cell != nil {
				rec[i] = fmt.Sprint(cell)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
