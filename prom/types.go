package prom

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Exporter struct {
	APICalls              *prometheus.Desc
	APIErrors             *prometheus.Desc
	OpenAITokens          *prometheus.Desc
	RateLimitHits         *prometheus.Desc
	ExtractionFallbacks   *prometheus.Desc
	CoercionWarnings      *prometheus.Desc
	ApproximateConversion *prometheus.Desc
	Lines                 *prometheus.Desc
	RunDuration           *prometheus.Desc
	stats                 *Stats
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.APICalls
	ch <- e.APIErrors
	ch <- e.OpenAITokens
	ch <- e.RateLimitHits
	ch <- e.ExtractionFallbacks
	ch <- e.CoercionWarnings
	ch <- e.ApproximateConversion
	ch <- e.Lines
	ch <- e.RunDuration
}

func NewExporter(namespace string, stats *Stats) *Exporter {
	return &Exporter{
		APICalls: prometheus.NewDesc(
			prometheus.BuildFQName(
				namespace,
				"status",
				"api_calls",
			),
			"Count of API calls",
			[]string{"type"},
			nil,
		),
		APIErrors: prometheus.NewDesc(
			prometheus.BuildFQName(
				namespace,
				"status",
				"api_errors",
			),
			"Count of API Errors",
			[]string{"type"},
			nil,
		),
		OpenAITokens: prometheus.NewDesc(
			prometheus.BuildFQName(
				namespace,
				"openai",
				"tokens",
			),
			"Count of extraction service tokens",
			[]string{"type"},
			nil,
		),
		RateLimitHits: extractionStatsDesc(
			namespace,
			"rate_limit_hits",
			"Count of rate limited extraction calls",
		),
		ExtractionFallbacks: extractionStatsDesc(
			namespace,
			"fallbacks",
			"Count of lines that fell back to a fully defaulted record",
		),
		CoercionWarnings: extractionStatsDesc(
			namespace,
			"coercion_warnings",
			"Count of fields replaced by their default during validation",
		),
		ApproximateConversion: prometheus.NewDesc(
			prometheus.BuildFQName(
				namespace,
				"rates",
				"approximate_conversions",
			),
			"Count of amounts written as USD without a conversion rate",
			[]string{},
			nil,
		),
		Lines: prometheus.NewDesc(
			prometheus.BuildFQName(
				namespace,
				"batch",
				"lines",
			),
			"Count of input lines by outcome",
			[]string{"state"},
			nil,
		),
		RunDuration: prometheus.NewDesc(
			prometheus.BuildFQName(
				namespace,
				"batch",
				"duration_seconds",
			),
			"Elapsed time of the batch run",
			[]string{},
			nil,
		),
		stats: stats,
	}
}

func extractionStatsDesc(namespace string, metric string, help string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(
			namespace,
			"extraction",
			metric,
		),
		help,
		[]string{},
		nil,
	)
}
