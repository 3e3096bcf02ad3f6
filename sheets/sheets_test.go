package sheets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/models"
	"money-tracker-go-be/sepay"
)

const statement = "\ufeffNgân hàng,Ngày giao dịch,Số tài khoản,Tài khoản phụ,Code TT,Nội dung,Loại,Số tiền,Mã tham chiếu,Lũy kế\n" +
	"MBBank,11/07/2024,0123456789,,,GRAB FOOD DON HANG,out,\"75,000\",FT001,\"1,000,000\"\n" +
	"MBBank,12/07/2024,0123456789,,,Luong thang 7,Tiền vào,15.000.000 ₫,,\n" +
	"MBBank,13/07/2024,,,,no account,out,100,FT003,\n" +
	"short,row\n" +
	"MBBank,14/07/2024,0123456789,,,bad amount,out,abc,FT004,\n"

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"75,000":       "75000",
		"15.000.000 ₫": "15000000",
		"-20000 VND":   "-20000",
		"1,250.50":     "1250.5",
		"120000đ":      "120000",
		"12.5":         "12.5",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got.String(), in)
	}
	_, err := ParseAmount("VND")
	require.Error(t, err)
	_, err = ParseAmount("abc")
	require.Error(t, err)
}

func TestDirection(t *testing.T) {
	for _, in := range []string{"in", "IN", "Tiền vào", "thu", " Thu "} {
		require.Equal(t, sepay.TransferIn, Direction(in), in)
	}
	for _, in := range []string{"out", "Tiền ra", "chi", ""} {
		require.Equal(t, sepay.TransferOut, Direction(in), in)
	}
}

func TestParseRowsAndPayload(t *testing.T) {
	records, err := NewCSVSource(strings.NewReader(statement)).Records(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Ngân hàng", records[0][0])

	rows := ParseRows(records)
	require.Len(t, rows, 3)

	p, err := rows[0].Payload()
	require.NoError(t, err)
	require.Equal(t, "FT001", p.IdempotencyKey())
	require.Equal(t, models.TransactionExpense, p.Type())
	require.Equal(t, "75000", p.Amount().String())
	require.Equal(t, "1000000", p.Accumulated.String())
	require.Equal(t, "GRAB FOOD DON HANG", p.Text())

	salary, err := rows[1].Payload()
	require.NoError(t, err)
	require.Equal(t, models.TransactionIncome, salary.Type())
	require.True(t, strings.HasPrefix(salary.IdempotencyKey(), "sheets_"))
	again, err := rows[1].Payload()
	require.NoError(t, err)
	require.Equal(t, salary.IdempotencyKey(), again.IdempotencyKey())

	other := rows[1]
	other.Content = "Luong thang 8"
	require.NotEqual(t, salary.IdempotencyKey(), other.IdempotencyKey())

	_, err = rows[2].Payload()
	require.Error(t, err)
}

type fakeIngester struct {
	seen map[string]bool
	got  []sepay.Payload
}

func (f *fakeIngester) Ingest(_ context.Context, _ uuid.UUID, p sepay.Payload, source models.ClassificationSource) (sepay.Result, error) {
	if source != models.SourceGoogleSheets {
		return sepay.Result{}, errors.New("wrong source")
	}
	f.got = append(f.got, p)
	key := p.IdempotencyKey()
	if f.seen[key] {
		return sepay.Result{Outcome: sepay.OutcomeDuplicate}, nil
	}
	f.seen[key] = true
	return sepay.Result{Outcome: sepay.OutcomeCreated}, nil
}

func TestImport(t *testing.T) {
	ing := &fakeIngester{seen: map[string]bool{}}
	im := NewImporter(ing)
	ctx := context.Background()
	user := uuid.New()

	st, err := im.Import(ctx, user, NewCSVSource(strings.NewReader(statement)))
	require.NoError(t, err)
	require.Equal(t, 2, st.Synced)
	require.Equal(t, 0, st.Skipped)
	require.Equal(t, 1, st.Errors)
	require.Equal(t, "Synced 2 transactions, skipped 0 duplicates, 1 errors", st.Message)

	st, err = im.Import(ctx, user, NewCSVSource(strings.NewReader(statement)))
	require.NoError(t, err)
	require.Equal(t, 0, st.Synced)
	require.Equal(t, 2, st.Skipped)

	_, err = im.Import(ctx, user, NewCSVSource(iotest.ErrReader(errors.New("disk gone"))))
	require.Equal(t, 400, apperr.StatusOf(err))
}

func TestAPISource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sheet-1/values/"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"Sheet1!A1:J2","majorDimension":"ROWS","values":[
			["Bank","Date","Account","Sub","Code","Content","Type","Amount","Ref","Acc"],
			["VCB","2024-07-11","0123456789","","","HIGHLANDS COFFEE","out",45000,"FT9"]]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	src, err := NewAPISource(ctx, "sheet-1", "Sheet1!A1:J2",
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	records, err := src.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "45000", records[1][7])

	rows := ParseRows(records)
	require.Len(t, rows, 1)
	require.Equal(t, "FT9", rows[0].IdempotencyKey())

	_, err = NewAPISource(ctx, "", "A1:J2")
	require.Equal(t, 400, apperr.StatusOf(err))
}
