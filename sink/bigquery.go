package sink

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// rowPutter is the part of *bigquery.Inserter the sink needs.
type rowPutter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQuerySink streams each transaction into a BigQuery table with the same
// columns as SQLSink. Amounts are sent as strings into NUMERIC columns.
type BigQuerySink struct {
	client   *bigquery.Client
	inserter rowPutter
	runID    uuid.UUID
}

// OpenBigQuery creates a client for project. credentialsFile may be empty to
// use application default credentials.
func OpenBigQuery(ctx context.Context, project, credentialsFile, dataset, table string, runID uuid.UUID) (*BigQuerySink, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	return &BigQuerySink{
		client:   client,
		inserter: client.Dataset(dataset).Table(table).Inserter(),
		runID:    runID,
	}, nil
}

type bigQueryRow struct {
	id  string
	row map[string]bigquery.Value
}

// Save implements bigquery.ValueSaver. The row id doubles as the insert id so
// a retried Put does not duplicate the row.
func (r bigQueryRow) Save() (map[string]bigquery.Value, string, error) {
	return r.row, r.id, nil
}

func (s *BigQuerySink) newRow(t Transaction) bigQueryRow {
	id := uuid.NewString()
	return bigQueryRow{
		id: id,
		row: map[string]bigquery.Value{
			"id":                     id,
			"run_id":                 s.runID.String(),
			"transaction_type":       nullIfEmpty(t.TransactionType),
			"name":                   nullIfEmpty(t.Name),
			"email":                  nullIfEmpty(t.Email),
			"amount_usd":             nullIfEmpty(formatUSD(t.AmountUSD)),
			"original_amount":        nullIfEmpty(formatAmount(t.OriginalAmount)),
			"original_currency":      nullIfEmpty(t.OriginalCurrency),
			"date":                   nullIfEmpty(t.Date),
			"amount_usd_approximate": t.Approximate,
		},
	}
}

func (s *BigQuerySink) Write(ctx context.Context, t Transaction) error {
	if err := s.inserter.Put(ctx, s.newRow(t)); err != nil {
		return fmt.Errorf("bigquery insert: %w", err)
	}
	return nil
}

func (s *BigQuerySink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
