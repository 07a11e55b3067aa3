// Package prom keeps run statistics and exposes them as Prometheus metrics.
package prom

import (
	"sync"
	"time"
)

type apiCounters struct {
	Extraction float64
	Rates      float64
	Datastore  float64
}

type tokenUsage struct {
	Prompt     float64
	Completion float64
	Total      float64
}

// Stats is the mutable counter set of one batch run. It is written by the
// pipeline and read by the exporter, so every access goes through mu.
// A nil *Stats is valid and records nothing.
type Stats struct {
	mu sync.Mutex

	APICalls  apiCounters
	APIErrors apiCounters
	Tokens    tokenUsage

	RateLimitHits         float64
	ExtractionFallbacks   float64
	CoercionWarnings      float64
	ApproximateConversion float64

	LinesTotal     float64
	LinesProcessed float64
	LinesFailed    float64

	Started  time.Time
	Finished time.Time
}

func NewStats() *Stats {
	return &Stats{Started: time.Now()}
}

func (s *Stats) update(fn func(*Stats)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Stats) ExtractionCall() { s.update(func(s *Stats) { s.APICalls.Extraction++ }) }
func (s *Stats) ExtractionError() { s.update(func(s *Stats) { s.APIErrors.Extraction++ }) }
func (s *Stats) RateLimitHit() { s.update(func(s *Stats) { s.RateLimitHits++ }) }
func (s *Stats) ExtractionFallback() { s.update(func(s *Stats) { s.ExtractionFallbacks++ }) }
func (s *Stats) CoercionWarning(n int) { s.update(func(s *Stats) { s.CoercionWarnings += float64(n) }) }
func (s *Stats) RatesCall() { s.update(func(s *Stats) { s.APICalls.Rates++ }) }
func (s *Stats) RatesError() { s.update(func(s *Stats) { s.APIErrors.Rates++ }) }
func (s *Stats) DatastoreCall() { s.update(func(s *Stats) { s.APICalls.Datastore++ }) }
func (s *Stats) DatastoreError() { s.update(func(s *Stats) { s.APIErrors.Datastore++ }) }
func (s *Stats) ApproximateConverted() { s.update(func(s *Stats) { s.ApproximateConversion++ }) }
func (s *Stats) LineProcessed() { s.update(func(s *Stats) { s.LinesProcessed++ }) }
func (s *Stats) LineFailed() { s.update(func(s *Stats) { s.LinesFailed++ }) }
func (s *Stats) SetLinesTotal(n int) { s.update(func(s *Stats) { s.LinesTotal = float64(n) }) }
func (s *Stats) Finish() { s.update(func(s *Stats) { s.Finished = time.Now() }) }

// AddTokens records the usage reported by one extraction response.
func (s *Stats) AddTokens(prompt, completion, total int) {
	s.update(func(s *Stats) {
		s.Tokens.Prompt += float64(prompt)
		s.Tokens.Completion += float64(completion)
		s.Tokens.Total += float64(total)
	})
}

// Snapshot is a copy of Stats safe to read without locking.
type Snapshot struct {
	APICalls              apiCounters `json:"api_calls"`
	APIErrors             apiCounters `json:"api_errors"`
	Tokens                tokenUsage  `json:"tokens"`
	RateLimitHits         float64     `json:"rate_limit_hits"`
	ExtractionFallbacks   float64     `json:"extraction_fallbacks"`
	CoercionWarnings      float64     `json:"coercion_warnings"`
	ApproximateConversion float64     `json:"approximate_conversions"`
	LinesTotal            float64     `json:"lines_total"`
	LinesProcessed        float64     `json:"lines_processed"`
	LinesFailed           float64     `json:"lines_failed"`
	Started               time.Time   `json:"started"`
	Finished              time.Time   `json:"finished,omitempty"`
}

func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		APICalls:              s.APICalls,
		APIErrors:             s.APIErrors,
		Tokens:                s.Tokens,
		RateLimitHits:         s.RateLimitHits,
		ExtractionFallbacks:   s.ExtractionFallbacks,
		CoercionWarnings:      s.CoercionWarnings,
		ApproximateConversion: s.ApproximateConversion,
		LinesTotal:            s.LinesTotal,
		LinesProcessed:        s.LinesProcessed,
		LinesFailed:           s.LinesFailed,
		Started:               s.Started,
		Finished:              s.Finished,
	}
}
