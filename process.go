package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/helpcomp/txn-normalizer/extractor"
	"github.com/helpcomp/txn-normalizer/prom"
	"github.com/helpcomp/txn-normalizer/rates"
	"github.com/helpcomp/txn-normalizer/sink"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
)

// linePrefix matches the "<digits>|" numbering left behind by copy-pasting
// from numbered listings.
var linePrefix = regexp.MustCompile(`^\s*\d+\|`)

type Processor struct {
	extractor RecordExtractor
	converter USDConverter
	output    sink.Sink
	stores    []sink.Sink
	stats     *prom.Stats
	pacing    time.Duration
	progress  io.Writer
	sleep     func(context.Context, time.Duration) error
}

// NewProcessor creates a Processor. A failed write to output fails the line;
// failed writes to stores are only logged.
func NewProcessor(ex RecordExtractor, conv USDConverter, output sink.Sink, stores []sink.Sink, pacing time.Duration, stats *prom.Stats) *Processor {
	return &Processor{
		extractor: ex,
		converter: conv,
		output:    output,
		stores:    stores,
		stats:     stats,
		pacing:    pacing,
		progress:  io.Discard,
		sleep:     sleepContext,
	}
}

// WithProgress sends the progress bar to w.
func (p *Processor) WithProgress(w io.Writer) *Processor {
	p.progress = w
	return p
}

// ReadLines returns every raw line of r without its line ending. Lines have no
// length limit.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
	}
}

// CleanLine trims whitespace and a leading "<digits>|" prefix.
func CleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = linePrefix.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

func cleanLines(lines []string) []string {
	cleaned := make([]string, 0, len(lines))
	for _, l := range lines {
		if c := CleanLine(l); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return cleaned
}

// Run processes lines one at a time. A line that fails is logged and skipped.
// Run stops early only when ctx is cancelled.
func (p *Processor) Run(ctx context.Context, lines []string) Summary {
	start := time.Now()
	texts := cleanLines(lines)
	summary := Summary{Total: len(texts)}
	p.stats.SetLinesTotal(len(texts))

	log.Info().Int("lines", len(texts)).Msg("Processing transactions")

	bar := progressbar.NewOptions(len(texts),
		progressbar.OptionSetWriter(p.progress),
		progressbar.OptionSetDescription("Processing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
	)

	for i, text := range texts {
		if i > 0 && p.pacing > 0 {
			if err := p.sleep(ctx, p.pacing); err != nil {
				summary.Cancelled = true
				break
			}
		}

		t, err := p.processLine(ctx, text)
		if err != nil {
			summary.Failed++
			p.stats.LineFailed()
			log.Error().
				Err(err).
				Int("line", i+1).
				Str("text", text).
				Msg("Error processing line")
			if ctx.Err() != nil {
				summary.Cancelled = true
				break
			}
			_ = bar.Add(1)
			continue
		}

		summary.Processed++
		p.stats.LineProcessed()
		bar.Describe(describe(t))
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	summary.Elapsed = time.Since(start)
	p.stats.Finish()
	return summary
}

// processLine runs one line through extract, convert and write. Panics are
// turned into errors so one line cannot abort the batch.
func (p *Processor) processLine(ctx context.Context, text string) (t sink.Transaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	rec, err := p.extractor.Extract(ctx, text)
	if err != nil {
		return sink.Transaction{}, fmt.Errorf("extracting: %w", err)
	}

	t = sink.Transaction{
		TransactionType:  rec.TransactionType,
		Name:             rec.Name,
		Email:            rec.Email,
		OriginalAmount:   rec.Amount,
		OriginalCurrency: rec.Currency,
		Date:             rec.Date,
	}
	t.AmountUSD, t.Approximate = p.amountUSD(ctx, rec)

	if err := p.output.Write(ctx, t); err != nil {
		return sink.Transaction{}, fmt.Errorf("writing output: %w", err)
	}
	for _, s := range p.stores {
		p.stats.DatastoreCall()
		if err := s.Write(ctx, t); err != nil {
			p.stats.DatastoreError()
			log.Error().Err(err).Str("text", text).Msg("Error saving transaction to datastore")
		}
	}
	return t, nil
}

// amountUSD converts the record amount. When no rate can be found the original
// amount is used as is and approximate is true for a non-USD currency.
func (p *Processor) amountUSD(ctx context.Context, rec extractor.Record) (usd decimal.NullDecimal, approximate bool) {
	if !rec.Amount.Valid {
		return decimal.NullDecimal{}, false
	}
	usd, ok := p.converter.ToUSD(ctx, rec.Amount, rec.Currency)
	if ok {
		return usd, false
	}

	currency := strings.ToUpper(strings.TrimSpace(rec.Currency))
	if currency == "" || currency == rates.USD {
		return rec.Amount, false
	}

	if rate, ok := p.converter.Rate(ctx, currency); ok {
		return rates.Round(rec.Amount.Decimal.Mul(rate)), false
	}

	p.stats.ApproximateConverted()
	log.Error().
		Str("amount", rec.Amount.Decimal.String()).
		Str("currency", currency).
		Msg("No exchange rate available. Using original amount as USD")
	return rec.Amount, true
}

func describe(t sink.Transaction) string {
	usd := "N/A"
	if t.AmountUSD.Valid {
		usd = t.AmountUSD.Decimal.StringFixed(2)
	}
	original := "N/A"
	if t.OriginalAmount.Valid {
		original = strings.TrimSpace(t.OriginalAmount.Decimal.String() + " " + t.OriginalCurrency)
	}
	return fmt.Sprintf("Last: %s - $%s USD (Original: %s)", t.TransactionType, usd, original)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// logSummary reports the outcome of a run.
func logSummary(s Summary, output string) {
	evt := log.Info()
	if s.Cancelled {
		evt = log.Warn()
	}
	evt.
		Int("total", s.Total).
		Int("processed", s.Processed).
		Int("failed", s.Failed).
		Dur("elapsed", s.Elapsed).
		Dur("average", s.Average()).
		Str("output", output).
		Bool("cancelled", s.Cancelled).
		Msgf("Processed %d of %d lines", s.Processed, s.Total)
}
