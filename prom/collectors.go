package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.stats.Snapshot()
	e.CollectAPI(ch, s)   // API calls, errors and tokens
	e.CollectBatch(ch, s) // Line outcomes and fallbacks
}

// CollectAPI Collects external service usage
func (e *Exporter) CollectAPI(ch chan<- prometheus.Metric, s Snapshot) {
	for api, calls := range map[string]float64{
		"extraction": s.APICalls.Extraction,
		"rates":      s.APICalls.Rates,
		"datastore":  s.APICalls.Datastore,
	} {
		ch <- prometheus.MustNewConstMetric(e.APICalls, prometheus.CounterValue, calls, api)
	}
	for api, errs := range map[string]float64{
		"extraction": s.APIErrors.Extraction,
		"rates":      s.APIErrors.Rates,
		"datastore":  s.APIErrors.Datastore,
	} {
		ch <- prometheus.MustNewConstMetric(e.APIErrors, prometheus.CounterValue, errs, api)
	}
	ch <- prometheus.MustNewConstMetric(
		e.OpenAITokens,
		prometheus.CounterValue,
		s.Tokens.Completion,
		"completion",
	)
	ch <- prometheus.MustNewConstMetric(
		e.OpenAITokens,
		prometheus.CounterValue,
		s.Tokens.Total,
		"total",
	)
	ch <- prometheus.MustNewConstMetric(
		e.OpenAITokens,
		prometheus.CounterValue,
		s.Tokens.Prompt,
		"prompt",
	)
	ch <- prometheus.MustNewConstMetric(
		e.RateLimitHits,
		prometheus.CounterValue,
		s.RateLimitHits,
	)
}

// CollectBatch Collects per-line outcomes of the run
func (e *Exporter) CollectBatch(ch chan<- prometheus.Metric, s Snapshot) {
	ch <- prometheus.MustNewConstMetric(e.Lines, prometheus.GaugeValue, s.LinesTotal, "total")
	ch <- prometheus.MustNewConstMetric(e.Lines, prometheus.GaugeValue, s.LinesProcessed, "processed")
	ch <- prometheus.MustNewConstMetric(e.Lines, prometheus.GaugeValue, s.LinesFailed, "failed")
	ch <- prometheus.MustNewConstMetric(
		e.ExtractionFallbacks,
		prometheus.CounterValue,
		s.ExtractionFallbacks,
	)
	ch <- prometheus.MustNewConstMetric(
		e.CoercionWarnings,
		prometheus.CounterValue,
		s.CoercionWarnings,
	)
	ch <- prometheus.MustNewConstMetric(
		e.ApproximateConversion,
		prometheus.CounterValue,
		s.ApproximateConversion,
	)

	end := s.Finished
	if end.IsZero() {
		end = time.Now()
	}
	var elapsed float64
	if !s.Started.IsZero() {
		elapsed = end.Sub(s.Started).Seconds()
	}
	ch <- prometheus.MustNewConstMetric(e.RunDuration, prometheus.GaugeValue, elapsed)
}
