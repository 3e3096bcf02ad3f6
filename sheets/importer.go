package sheets

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"money-tracker-go-be/logger"
	"money-tracker-go-be/models"
	"money-tracker-go-be/sepay"
)

// Ingester stores a payload for a known user.
type Ingester interface {
	Ingest(ctx context.Context, userID uuid.UUID, p sepay.Payload, source models.ClassificationSource) (sepay.Result, error)
}

type Stats struct {
	Synced  int    `json:"synced"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
	Message string `json:"message"`
}

// Importer feeds spreadsheet rows through the same pipeline as webhooks.
type Importer struct {
	ingester Ingester
}

func NewImporter(ingester Ingester) *Importer {
	return &Importer{ingester: ingester}
}

// Import reads src and stores its rows for userID. Bad rows are counted, not fatal.
func (im *Importer) Import(ctx context.Context, userID uuid.UUID, src RowSource) (Stats, error) {
	var st Stats
	records, err := src.Records(ctx)
	if err != nil {
		return st, err
	}
	log := logger.FromContext(ctx).With().Str("user_id", userID.String()).Logger()

	rows := ParseRows(records)
	for i, row := range rows {
		p, err := row.Payload()
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("skipping unreadable sheet row")
			st.Errors++
			continue
		}
		res, err := im.ingester.Ingest(ctx, userID, p, models.SourceGoogleSheets)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("idempotency_key", p.IdempotencyKey()).Msg("sheet row failed")
			st.Errors++
		case res.Outcome == sepay.OutcomeDuplicate:
			st.Skipped++
		default:
			st.Synced++
		}
	}
	st.Message = fmt.Sprintf("Synced %d transactions, skipped %d duplicates, %d errors", st.Synced, st.Skipped, st.Errors)
	log.Info().Int("synced", st.Synced).Int("skipped", st.Skipped).Int("errors", st.Errors).Msg("sheet import completed")
	return st, nil
}
