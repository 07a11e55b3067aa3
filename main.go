package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/helpcomp/txn-normalizer/config"
	"github.com/helpcomp/txn-normalizer/extractor"
	"github.com/helpcomp/txn-normalizer/prom"
	"github.com/helpcomp/txn-normalizer/rates"
	"github.com/helpcomp/txn-normalizer/sink"
	"github.com/prometheus/common/version"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultKeyFile = "key.env"

var cli struct {
	Input               string `env:"INPUT_FILE" help:"${env} - File with one transaction description per line" default:"data.md"`
	Output              string `env:"OUTPUT_FILE" help:"${env} - CSV file to write (truncated on start)" default:"transactions.csv"`
	ConfigPath          string `name:"config" env:"CONFIG_PATH" help:"${env} - Path to config file" default:"./config.yml"`
	EnvFile             string `env:"ENV_FILE" help:"${env} - Dotenv file holding API keys" default:"key.env"`
	Provider            string `env:"EXTRACTION_PROVIDER" help:"${env} - Extraction service (openai, azure, gemini)" enum:"openai,azure,gemini" default:"openai"`
	OpenAIAPIKey        string `name:"openai-api-key" env:"OPENAI_API_KEY" help:"${env} - API Key for OpenAI or Azure OpenAI"`
	AzureEndpoint       string `env:"AZURE_ENDPOINT" help:"${env} - Azure OpenAI Endpoint"`
	GeminiAPIKey        string `name:"gemini-api-key" env:"GEMINI_API_KEY" help:"${env} - API Key for Gemini"`
	DatabaseURL         string `name:"database-url" env:"DATABASE_URL" help:"${env} - Postgres URL. If set, every row is also inserted into the database"`
	BigQueryProject     string `name:"bigquery-project" env:"BIGQUERY_PROJECT" help:"${env} - Google Cloud project. If set, every row is also streamed into BigQuery"`
	BigQueryCredentials string `name:"bigquery-credentials" env:"BIGQUERY_CREDENTIALS_FILE" help:"${env} - Service account file. Application default credentials are used if empty"`
	MetricsListen       string `env:"METRICS_LISTEN" help:"${env} - Address for the metrics server, e.g. :9717. Disabled if empty"`
	MetricsPath         string `env:"EXPORTER_METRICS_PATH" help:"${env} - Path under which to expose metrics" default:"/metrics"`
	PushgatewayURL      string `name:"pushgateway-url" env:"PUSHGATEWAY_URL" help:"${env} - Pushgateway to send run metrics to when the run ends"`
	LogLevel            string `env:"LOG_LEVEL" help:"${env} - Log level" enum:"trace,debug,info,warn,error" default:"info"`
	NoProgress          bool   `env:"NO_PROGRESS" help:"${env} - Disable the progress bar" default:"false"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).With().Caller().Logger()

	// Keys must be in the environment before kong resolves env tags.
	if err := config.LoadKeyFile(keyFilePath(os.Args[1:])); err != nil {
		log.Fatal().Err(err).Msg("Unable to load key file")
	}
	kong.Parse(&cli,
		kong.Name(AppName),
		kong.Description(AppDesc),
	)
	if level, err := zerolog.ParseLevel(cli.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func run() error {
	log.Info().
		Str("version", version.Info()).
		Msg("Starting " + AppName)

	cfg, err := config.InitConfig(cli.ConfigPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	stats := prom.NewStats()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}
	ex := extractor.New(provider, cfg.Extraction.MaxRetries, cfg.ExtractionRetryBase(), stats)

	cache := rates.NewCache(
		rates.New(cfg.Rates.URL, cfg.RatesTimeout(), stats),
		cfg.Rates.MaxRetries,
		cfg.RatesRetryBase(),
	)
	converter := rates.NewConverter(cache)

	f, err := os.Open(cli.Input)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	lines, err := ReadLines(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	output, stores, err := openOutputs(ctx, cli.Output, func(ctx context.Context) ([]sink.Sink, error) {
		return openStores(ctx, cfg)
	})
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range stores {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing datastore")
			}
		}
	}()

	reg := prom.NewRegistry(AppName, stats)
	if cli.MetricsListen != "" {
		handler, err := prom.NewHandler(AppName, AppDesc, cli.MetricsPath, reg, stats)
		if err != nil {
			return err
		}
		server := prom.Serve(cli.MetricsListen, handler)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			log.Info().Msg("Shutting down HTTP server...")
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	var progress io.Writer = os.Stdout
	if cli.NoProgress {
		progress = io.Discard
	}
	summary := NewProcessor(ex, converter, output, stores, cfg.PacingDelay(), stats).
		WithProgress(progress).
		Run(ctx, lines)
	logSummary(summary, output.Path())

	if cli.PushgatewayURL != "" {
		if err := prom.Push(cli.PushgatewayURL, AppName, reg); err != nil {
			log.Error().Err(err).Msg("Unable to push metrics")
		}
	}
	return nil
}

// newProvider builds the extraction service client selected by --provider.
func newProvider(ctx context.Context, cfg *config.MasterConfig) (extractor.Provider, error) {
	model := cfg.Extraction.Model
	switch cli.Provider {
	case "gemini":
		if cli.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
		if model == config.DefaultModel {
			model = config.DefaultGeminiModel
		}
		log.Info().Str("model", model).Msg("🤖 Using Gemini")
		return extractor.NewGeminiProvider(ctx, cli.GeminiAPIKey, model, cfg.Extraction.Temperature)
	case "azure":
		if cli.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the azure provider")
		}
		if cli.AzureEndpoint == "" {
			return nil, errors.New("AZURE_ENDPOINT is required for the azure provider")
		}
		log.Info().Str("model", model).Str("endpoint", cli.AzureEndpoint).Msg("🤖 Using Azure OpenAI")
	default:
		if cli.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required. Set it in the environment or the key file")
		}
		log.Info().Str("model", model).Msg("🤖 Using OpenAI")
	}
	client := extractor.NewOpenAIClient(cli.OpenAIAPIKey, cli.AzureEndpoint)
	return extractor.NewOpenAIProvider(client, model, cfg.Extraction.Temperature), nil
}

// openOutputs opens the datastores before truncating the CSV, so a datastore
// configuration error leaves the previous output untouched.
func openOutputs(ctx context.Context, outputPath string, open func(context.Context) ([]sink.Sink, error)) (*sink.CSVSink, []sink.Sink, error) {
	stores, err := open(ctx)
	if err != nil {
		return nil, nil, err
	}
	output, err := sink.NewCSV(outputPath)
	if err != nil {
		closeAll(stores)
		return nil, nil, err
	}
	return output, stores, nil
}

// openStores opens the optional datastores. They share one run id.
func openStores(ctx context.Context, cfg *config.MasterConfig) ([]sink.Sink, error) {
	var stores []sink.Sink
	runID := uuid.New()

	if cli.DatabaseURL != "" {
		s, err := sink.OpenSQL(ctx, cfg.Datastore.Driver, cli.DatabaseURL, cfg.Datastore.Table, runID)
		if err != nil {
			return nil, err
		}
		log.Info().Str("table", cfg.Datastore.Table).Str("run_id", runID.String()).Msg("📜 Writing rows to database")
		stores = append(stores, s)
	}

	if cli.BigQueryProject != "" {
		if cfg.BigQuery.Dataset == "" {
			closeAll(stores)
			return nil, errors.New("bigquery.dataset must be set in the config file to use BigQuery")
		}
		s, err := sink.OpenBigQuery(ctx, cli.BigQueryProject, cli.BigQueryCredentials, cfg.BigQuery.Dataset, cfg.BigQuery.Table, runID)
		if err != nil {
			closeAll(stores)
			return nil, err
		}
		log.Info().
			Str("dataset", cfg.BigQuery.Dataset).
			Str("table", cfg.BigQuery.Table).
			Str("run_id", runID.String()).
			Msg("📜 Writing rows to BigQuery")
		stores = append(stores, s)
	}
	return stores, nil
}

func closeAll(stores []sink.Sink) {
	for _, s := range stores {
		_ = s.Close()
	}
}

// keyFilePath finds the key file before flag parsing: --env-file, then
// ENV_FILE, then the default.
func keyFilePath(args []string) string {
	for i, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--env-file="); ok {
			return v
		}
		if arg == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v := os.Getenv("ENV_FILE"); v != "" {
		return v
	}
	return defaultKeyFile
}
