package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/fsrs/internal/simulate"
	"github.com/okian/fsrs/pkg/logger"
)

func main() {
	defaults := simulate.DefaultRunConfig()
	var (
		baseURL      = flag.String("url", defaults.BaseURL, "Base URL of the service")
		cards        = flag.Int("cards", defaults.Corpus.Cards, "Number of cards to simulate")
		reviews      = flag.Int("reviews", defaults.Corpus.ReviewsPerCard, "Reviews per card, including the first")
		seed         = flag.Int64("seed", defaults.Corpus.Seed, "Corpus seed")
		retention    = flag.Float64("retention", defaults.Corpus.Retention, "Desired retention used to schedule reviews")
		sameDay      = flag.Float64("same-day", defaults.Corpus.SameDayRate, "Chance of a same-day relearning step after a lapse")
		shortTerm    = flag.Bool("short-term", false, "Fit the same-day stability terms")
		timeout      = flag.Duration("timeout", defaults.Timeout, "HTTP request timeout")
		pollInterval = flag.Duration("poll", defaults.PollInterval, "Delay between job status checks")
		pollTimeout  = flag.Duration("wait", defaults.PollTimeout, "Give up on the job after this long")
		outputFile   = flag.String("output", "", "Write the generated corpus to this file")
		logFormat    = flag.String("log-format", "text", "Log format: text or json")
		verbose      = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cfg := defaults
	cfg.BaseURL = *baseURL
	cfg.Timeout = *timeout
	cfg.PollInterval = *pollInterval
	cfg.PollTimeout = *pollTimeout
	cfg.EnableShortTerm = *shortTerm
	cfg.OutputFile = *outputFile
	cfg.Corpus.Cards = *cards
	cfg.Corpus.ReviewsPerCard = *reviews
	cfg.Corpus.Seed = *seed
	cfg.Corpus.Retention = *retention
	cfg.Corpus.SameDayRate = *sameDay

	report, err := simulate.Run(ctx, cfg)
	stop()
	if err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	if !report.Improved() {
		os.Stderr.WriteString("fitted parameters score worse than the defaults\n")
		os.Exit(2)
	}
}
