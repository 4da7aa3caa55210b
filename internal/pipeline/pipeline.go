package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"aetrend/internal/analysis"
	"aetrend/internal/config"
	"aetrend/internal/dataprocessing"
	apperrors "aetrend/internal/errors"
	"aetrend/internal/exporter"
	"aetrend/internal/files"
)

// RunSummary describes one pipeline run end to end.
type RunSummary struct {
	RunID             string
	Quarters          []string
	FailedQuarters    []string
	TotalEvents       int
	CrossQuarterDupes int
	UniqueDrugs       int
	UniqueReactions   int
	SeriousPercent    float64
	FirstEventDate    *time.Time
	LastEventDate     *time.Time
	OverallMonths     int
	Elapsed           time.Duration
}

// Runner orchestrates discovery, per-quarter consolidation, trend
// analysis, and export.
type Runner struct {
	cfg        *config.Config
	logger     *slog.Logger
	discovery  *files.Discovery
	reader     *dataprocessing.Reader
	normalizer *dataprocessing.Normalizer
	joiner     *dataprocessing.Joiner
	aggregator *analysis.Aggregator
	insights   *analysis.Insights
	csv        *exporter.CSVWriter
	store      *exporter.EventStore
	reports    *exporter.ReportWriter
}

// NewRunner wires a pipeline from configuration.
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:        cfg,
		logger:     logger,
		discovery:  files.NewDiscovery(cfg.Paths.RawDir, logger),
		reader:     dataprocessing.NewReader(cfg.Reader, logger),
		normalizer: dataprocessing.NewNormalizer(logger),
		joiner:     dataprocessing.NewJoiner(cfg.Join, logger),
		aggregator: analysis.NewAggregator(logger),
		insights:   analysis.NewInsights(cfg.Anomaly, logger),
		csv:        exporter.NewCSVWriter(logger),
		store:      exporter.NewEventStore(logger),
		reports:    exporter.NewReportWriter(logger),
	}
}

type quarterResult struct {
	quarter string
	events  []dataprocessing.Event
	err     error
}

// Run executes the full pipeline. A quarter that fails to process is
// logged and skipped; the run fails only when no quarter produces
// events or an output cannot be written.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	runID := uuid.New().String()
	logger := r.logger.With(slog.String("run_id", runID))

	if err := r.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	quarters, err := r.discovery.DiscoverQuarters()
	if err != nil {
		return nil, err
	}
	if len(quarters) == 0 {
		return nil, apperrors.NewMissingInputError("no quarterly folders found", nil).
			WithContext("raw_dir", r.cfg.Paths.RawDir)
	}
	if limit := r.cfg.Pipeline.LimitQuarters; limit > 0 && len(quarters) > limit {
		quarters = quarters[len(quarters)-limit:]
		logger.Info("limiting run to most recent quarters",
			slog.Int("limit", limit))
	}

	logger.Info("starting pipeline run",
		slog.Int("quarters", len(quarters)),
		slog.Int("workers", r.cfg.Pipeline.Workers))

	results := make([]quarterResult, len(quarters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Pipeline.Workers)
	for i, q := range quarters {
		i, q := i, q
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			label := fmt.Sprintf("%dQ%d", q.Year, q.Quarter)
			events, err := r.processQuarter(q, label, logger)
			results[i] = quarterResult{quarter: label, events: events, err: err}
			// A failed quarter is recorded, not fatal.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &RunSummary{RunID: runID}
	var events []dataprocessing.Event
	for _, res := range results {
		if res.err != nil {
			logger.Error("quarter processing failed, skipping",
				slog.String("quarter", res.quarter),
				slog.String("error", res.err.Error()))
			summary.FailedQuarters = append(summary.FailedQuarters, res.quarter)
			continue
		}
		summary.Quarters = append(summary.Quarters, res.quarter)
		events = append(events, res.events...)
	}
	if len(summary.Quarters) == 0 {
		return nil, apperrors.NewValidationError("every quarter failed to process")
	}

	// Cases spanning quarter boundaries show up twice.
	before := len(events)
	events = dataprocessing.DeduplicateEvents(events)
	summary.CrossQuarterDupes = before - len(events)
	if summary.CrossQuarterDupes > 0 {
		logger.Info("removed duplicates across quarters",
			slog.Int("removed", summary.CrossQuarterDupes))
	}
	sortEvents(events)
	summary.TotalEvents = len(events)
	describeEvents(events, summary)

	if err := r.export(events, summary, logger); err != nil {
		return nil, err
	}

	summary.Elapsed = time.Since(start)
	logger.Info("pipeline run complete",
		slog.Int("quarters", len(summary.Quarters)),
		slog.Int("failed_quarters", len(summary.FailedQuarters)),
		slog.Int("events", summary.TotalEvents),
		slog.Int("unique_drugs", summary.UniqueDrugs),
		slog.Int("unique_reactions", summary.UniqueReactions),
		slog.Float64("serious_pct", summary.SeriousPercent),
		slog.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// processQuarter loads, normalizes, and consolidates one quarter.
func (r *Runner) processQuarter(q files.QuarterFolder, label string, logger *slog.Logger) ([]dataprocessing.Event, error) {
	logger.Info("processing quarter", slog.String("quarter", label))

	paths, err := r.discovery.ResolveQuarterFiles(q)
	if err != nil {
		return nil, err
	}

	var tables dataprocessing.NormalizedTables
	if path := paths[files.TableDemo]; path != "" {
		t, err := r.reader.ReadTable(path, files.TableDemo)
		if err != nil {
			return nil, err
		}
		tables.Demo = r.normalizer.NormalizeDemo(t)
	}
	if path := paths[files.TableReac]; path != "" {
		t, err := r.reader.ReadTable(path, files.TableReac)
		if err != nil {
			return nil, err
		}
		tables.Reac = r.normalizer.NormalizeReac(t)
	}
	if path := paths[files.TableDrug]; path != "" {
		t, err := r.reader.ReadTable(path, files.TableDrug)
		if err != nil {
			return nil, err
		}
		tables.Drug = r.normalizer.NormalizeDrug(t)
	}
	if path := paths[files.TableOutc]; path != "" {
		t, err := r.reader.ReadTable(path, files.TableOutc)
		if err != nil {
			return nil, err
		}
		tables.Outcome = r.normalizer.NormalizeOutcome(t)
	}

	result, err := r.joiner.BuildEvents(tables, label)
	if err != nil {
		return nil, err
	}
	return result.Events, nil
}

// export persists the consolidated events, the monthly series, and the
// summary workbook.
func (r *Runner) export(events []dataprocessing.Event, summary *RunSummary, logger *slog.Logger) error {
	if err := r.store.WriteEvents(r.cfg.EventsPath(), events); err != nil {
		return err
	}

	overall := r.aggregator.MonthlyOverall(events)
	byReaction := r.aggregator.MonthlyByReaction(events)
	byDrug := r.aggregator.MonthlyByDrug(events)
	summary.OverallMonths = len(overall)

	if err := r.csv.WriteMonthlyCounts(r.cfg.MonthlyCountsPath(), overall); err != nil {
		return err
	}
	if err := r.csv.WriteMonthlyByTerm(r.cfg.MonthlyByReactionPath(), "reaction_pt", byReaction); err != nil {
		return err
	}
	if err := r.csv.WriteMonthlyByTerm(r.cfg.MonthlyByDrugPath(), "drug", byDrug); err != nil {
		return err
	}

	method := r.cfg.Anomaly.Method
	overallSummary := r.insights.SummarizeOverall(overall, method)
	drugSummaries := r.insights.SummarizeByDrug(byDrug, method)
	reactionSummaries := r.insights.SummarizeByReaction(byReaction, method)

	if err := r.reports.WriteSummaryReport(r.cfg.SummaryReportPath(),
		overallSummary, drugSummaries, reactionSummaries); err != nil {
		return err
	}

	logger.Info("exports complete",
		slog.String("events", r.cfg.EventsPath()),
		slog.String("report", r.cfg.SummaryReportPath()))
	return nil
}

// describeEvents fills the dataset statistics of a run summary from the
// deduplicated, date-sorted event slice.
func describeEvents(events []dataprocessing.Event, summary *RunSummary) {
	drugs := make(map[string]struct{})
	reactions := make(map[string]struct{})
	serious := 0
	for i := range events {
		drugs[events[i].Drug] = struct{}{}
		reactions[events[i].ReactionPT] = struct{}{}
		if events[i].Serious {
			serious++
		}
		if events[i].EventDate == nil {
			continue
		}
		if summary.FirstEventDate == nil {
			summary.FirstEventDate = events[i].EventDate
		}
		summary.LastEventDate = events[i].EventDate
	}
	summary.UniqueDrugs = len(drugs)
	summary.UniqueReactions = len(reactions)
	if len(events) > 0 {
		summary.SeriousPercent = float64(serious) / float64(len(events)) * 100
	}
}

// sortEvents orders events by date ascending with undated events last,
// breaking ties by case, drug, and reaction.
func sortEvents(events []dataprocessing.Event) {
	sort.Slice(events, func(i, j int) bool {
		di, dj := events[i].EventDate, events[j].EventDate
		switch {
		case di == nil && dj == nil:
		case di == nil:
			return false
		case dj == nil:
			return true
		case !di.Equal(*dj):
			return di.Before(*dj)
		}
		if events[i].CaseID != events[j].CaseID {
			return events[i].CaseID < events[j].CaseID
		}
		if events[i].Drug != events[j].Drug {
			return events[i].Drug < events[j].Drug
		}
		return events[i].ReactionPT < events[j].ReactionPT
	})
}
