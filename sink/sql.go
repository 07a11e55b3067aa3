package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLSink inserts each transaction as one row of a PostgreSQL table:
//
//	id uuid, run_id uuid, transaction_type text, name text, email text,
//	amount_usd numeric, original_amount numeric, original_currency text,
//	date date, amount_usd_approximate boolean
type SQLSink struct {
	db     *sql.DB
	insert string
	runID  uuid.UUID
}

// OpenSQL connects with driver ("postgres" or "pgx") and verifies the
// connection.
func OpenSQL(ctx context.Context, driver, dsn, table string, runID uuid.UUID) (*SQLSink, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s, err := NewSQLSink(db, table, runID)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSink wraps an open database handle.
func NewSQLSink(db *sql.DB, table string, runID uuid.UUID) (*SQLSink, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLSink{
		db: db,
		insert: `INSERT INTO ` + table + ` (id, run_id, transaction_type, name, email, amount_usd, original_amount, original_currency, date, amount_usd_approximate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		runID: runID,
	}, nil
}

func (s *SQLSink) Write(ctx context.Context, t Transaction) error {
	_, err := s.db.ExecContext(ctx, s.insert,
		uuid.NewString(),
		s.runID.String(),
		nullIfEmpty(t.TransactionType),
		nullIfEmpty(t.Name),
		nullIfEmpty(t.Email),
		nullIfEmpty(formatUSD(t.AmountUSD)),
		nullIfEmpty(formatAmount(t.OriginalAmount)),
		nullIfEmpty(t.OriginalCurrency),
		nullIfEmpty(t.Date),
		t.Approximate,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *SQLSink) Close() error {
	return s.db.Close()
}
