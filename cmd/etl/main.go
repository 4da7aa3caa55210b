package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aetrend/internal/config"
	"aetrend/internal/infrastructure"
	"aetrend/internal/pipeline"
)

func main() {
	rawDir := flag.String("raw", "", "raw quarterly dump directory (defaults to configured paths.raw_dir)")
	outDir := flag.String("out", "", "processed output directory (defaults to configured paths.processed_dir)")
	limitQuarters := flag.Int("limit-quarters", -1, "process only the N most recent quarters (0 means all)")
	workers := flag.Int("workers", 0, "number of quarters to process in parallel")
	method := flag.String("method", "", "anomaly detection method: rolling_z or stl")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if *rawDir != "" {
		cfg.Paths.RawDir = *rawDir
	}
	if *outDir != "" {
		cfg.Paths.ProcessedDir = *outDir
	}
	if *limitQuarters >= 0 {
		cfg.Pipeline.LimitQuarters = *limitQuarters
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *method != "" {
		cfg.Anomaly.Method = *method
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.NewRunner(cfg, logger).Run(ctx)
	if err != nil {
		logger.Error("Pipeline run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Run finished",
		slog.String("run_id", summary.RunID),
		slog.Int("quarters", len(summary.Quarters)),
		slog.Int("failed_quarters", len(summary.FailedQuarters)),
		slog.Int("events", summary.TotalEvents),
		slog.Duration("elapsed", summary.Elapsed))
}
