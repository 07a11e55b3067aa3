package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/helpcomp/txn-normalizer/prom"
	"github.com/rs/zerolog/log"
)

type Extractor struct {
	provider   Provider
	maxRetries int
	retryBase  time.Duration
	stats      *prom.Stats
	sleep      func(context.Context, time.Duration) error
}

// New returns an Extractor that retries rate limited calls maxRetries times,
// waiting 2^attempt * retryBase before each retry.
func New(provider Provider, maxRetries int, retryBase time.Duration, stats *prom.Stats) *Extractor {
	return &Extractor{
		provider:   provider,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		stats:      stats,
		sleep:      sleepContext,
	}
}

// Extract returns the structured record for text. Service failures never
// surface: rate limits are retried and anything else degrades to Default().
// The error is non-nil only when ctx ends while waiting, in which case the
// record is Default().
func (e *Extractor) Extract(ctx context.Context, text string) (Record, error) {
	for attempt := 0; ; attempt++ {
		rec, warnings, err := e.extractOnce(ctx, text)
		if err == nil {
			for _, w := range warnings {
				log.Warn().Str("text", text).Msg(w)
			}
			e.stats.CoercionWarning(len(warnings))
			return rec, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Default(), ctxErr
		}

		if IsRateLimited(err) && attempt < e.maxRetries {
			e.stats.RateLimitHit()
			wait := backoff(attempt, e.retryBase)
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max_retries", e.maxRetries).
				Dur("wait", wait).
				Msgf("Rate limit hit, waiting %s before retry %d/%d", wait, attempt+1, e.maxRetries)
			if serr := e.sleep(ctx, wait); serr != nil {
				return Default(), serr
			}
			continue
		}

		log.Error().Err(err).Str("text", text).Msg("Error parsing transaction with LLM")
		e.stats.ExtractionFallback()
		return Default(), nil
	}
}

// extractOnce performs a single service call. Empty and non-JSON responses are
// errors so they reach the same fallback path as service errors.
func (e *Extractor) extractOnce(ctx context.Context, text string) (Record, []string, error) {
	e.stats.ExtractionCall()
	completion, err := e.provider.Complete(ctx, systemPrompt, userPrompt(text))
	if err != nil {
		e.stats.ExtractionError()
		return Record{}, nil, err
	}
	e.stats.AddTokens(completion.PromptTokens, completion.CompletionTokens, completion.TotalTokens)

	raw, err := decodeObject(completion.Content)
	if err != nil {
		log.Warn().Err(err).Str("raw", completion.Content).Msg("Failed to parse JSON response")
		return Record{}, nil, err
	}

	rec, warnings := Coerce(raw)
	log.Debug().
		Str("type", rec.TransactionType).
		Str("name", rec.Name).
		Str("currency", rec.Currency).
		Msg("🤖 Extracted transaction")
	return rec, warnings, nil
}

// decodeObject parses s as exactly one JSON object, keeping numbers as
// json.Number so amounts are not rounded through float64.
func decodeObject(s string) (map[string]any, error) {
	s = cleanModelJSON(s)
	if s == "" {
		return nil, ErrEmptyResponse
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: null", ErrMalformedResponse)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedResponse)
	}
	return raw, nil
}

func backoff(attempt int, base time.Duration) time.Duration {
	return time.Duration(1<<uint(attempt)) * base
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
