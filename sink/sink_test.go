package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

var jane = Transaction{
	TransactionType:  "Refund",
	Name:             "Jane Doe",
	AmountUSD:        amount("110"),
	OriginalAmount:   amount("100"),
	OriginalCurrency: "EUR",
	Date:             "2024-11-02",
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestTransactionRow(t *testing.T) {
	assert.Equal(t,
		[]string{"Refund", "Jane Doe", "", "110.00", "100", "EUR", "2024-11-02"},
		jane.Row())

	empty := Transaction{TransactionType: "Unknown"}
	assert.Equal(t, []string{"Unknown", "", "", "", "", "", ""}, empty.Row())
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale,content\n1,2\n"), 0o644))

	s, err := NewCSV(path)
	require.NoError(t, err)
	assert.Equal(t, [][]string{Header}, readCSV(t, path), "existing content is truncated")

	require.NoError(t, s.Write(context.Background(), jane))
	require.NoError(t, s.Write(context.Background(), Transaction{
		TransactionType: "Payment",
		Name:            "Smith, John",
		Email:           "john@example.com",
		AmountUSD:       amount("42.5"),
		OriginalAmount:  amount("42.5"),
		Date:            "2024-11-02",
	}))
	require.NoError(t, s.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"Refund", "Jane Doe", "", "110.00", "100", "EUR", "2024-11-02"}, rows[1])
	assert.Equal(t, []string{"Payment", "Smith, John", "john@example.com", "42.50", "42.5", "", "2024-11-02"}, rows[2])
}

func TestCSVSink_WriteFailsWhenFileRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	assert.Error(t, s.Write(context.Background(), jane))
}

func TestNewCSV_BadPath(t *testing.T) {
	_, err := NewCSV(filepath.Join(t.TempDir(), "missing", "out.csv"))
	assert.Error(t, err)
}

func TestSQLSink_Write(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	runID := uuid.New()
	s, err := NewSQLSink(db, "transactions", runID)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions (id, run_id, transaction_type")).
		WithArgs(sqlmock.AnyArg(), runID.String(), "Refund", "Jane Doe", nil, "110.00", "100", "EUR", "2024-11-02", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	approx := Transaction{
		TransactionType:  "Payment",
		AmountUSD:        amount("5000"),
		OriginalAmount:   amount("5000"),
		OriginalCurrency: "RUB",
		Approximate:      true,
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WithArgs(sqlmock.AnyArg(), runID.String(), "Payment", nil, nil, "5000.00", "5000", "RUB", nil, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectClose()

	require.NoError(t, s.Write(context.Background(), jane))
	require.NoError(t, s.Write(context.Background(), approx))
	require.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_WriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := NewSQLSink(db, "public.transactions", uuid.New())
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO public.transactions").WillReturnError(errors.New("relation does not exist"))

	err = s.Write(context.Background(), jane)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLSink_RejectsUnsafeTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"", "transactions; DROP TABLE x", "a.b.c", "1abc"} {
		_, err := NewSQLSink(db, table, uuid.New())
		assert.Error(t, err, table)
	}
}

type fakePutter struct {
	rows []bigQueryRow
	err  error
}

func (f *fakePutter) Put(_ context.Context, src interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, src.(bigQueryRow))
	return nil
}

func TestBigQuerySink_Write(t *testing.T) {
	putter := &fakePutter{}
	runID := uuid.New()
	s := &BigQuerySink{inserter: putter, runID: runID}

	require.NoError(t, s.Write(context.Background(), jane))
	require.Len(t, putter.rows, 1)

	row, insertID, err := putter.rows[0].Save()
	require.NoError(t, err)
	assert.Equal(t, row["id"], insertID)
	assert.Equal(t, runID.String(), row["run_id"])
	assert.Equal(t, "Refund", row["transaction_type"])
	assert.Nil(t, row["email"])
	assert.Equal(t, "110.00", row["amount_usd"])
	assert.Equal(t, "100", row["original_amount"])
	assert.Equal(t, false, row["amount_usd_approximate"])
	assert.NoError(t, s.Close())
}

func TestBigQuerySink_WriteError(t *testing.T) {
	s := &BigQuerySink{inserter: &fakePutter{err: errors.New("quota")}}
	err := s.Write(context.Background(), jane)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bigquery insert")
}
