package analysis

import (
	"log/slog"

	"aetrend/internal/config"
)

// Summary is the reporting unit for one scored series.
type Summary struct {
	Series    string
	Method    string
	Months    int
	TopSpikes []RankedSpike
	Note      string
}

// Insights turns monthly series into ranked spike summaries.
type Insights struct {
	cfg    config.AnomalyConfig
	logger *slog.Logger
}

// NewInsights creates a summary builder with the given detector settings.
func NewInsights(cfg config.AnomalyConfig, logger *slog.Logger) *Insights {
	if logger == nil {
		logger = slog.Default()
	}
	return &Insights{cfg: cfg, logger: logger}
}

// SummarizeSeries reindexes, scores, and ranks one series. When the
// seasonal method is requested but the series is too short for it, the
// rolling detector is used and the summary carries an explanatory note.
func (in *Insights) SummarizeSeries(name string, series []MonthlyCount, method string) Summary {
	indexed := EnsureMonthlyIndex(series)
	points, used := Detect(indexed, method, in.cfg)

	s := Summary{
		Series:    name,
		Method:    used,
		Months:    len(indexed),
		TopSpikes: RankSpikes(points, in.cfg.TopK),
	}
	if method != MethodRollingZ && used == MethodRollingZ {
		s.Note = "series too short for seasonal decomposition, fell back to rolling Z-score"
	}

	in.logger.Info("summarized series",
		slog.String("series", name),
		slog.String("method", used),
		slog.Int("months", s.Months),
		slog.Int("spikes", len(s.TopSpikes)))
	return s
}

// SummarizeOverall summarizes the all-events monthly series.
func (in *Insights) SummarizeOverall(series []MonthlyCount, method string) Summary {
	return in.SummarizeSeries("overall", series, method)
}

// SummarizeByDrug summarizes the highest-volume drugs, one summary each.
func (in *Insights) SummarizeByDrug(groups []TermMonthlyCount, method string) []Summary {
	return in.summarizeTopTerms(groups, method)
}

// SummarizeByReaction summarizes the highest-volume reactions, one
// summary each.
func (in *Insights) SummarizeByReaction(groups []TermMonthlyCount, method string) []Summary {
	return in.summarizeTopTerms(groups, method)
}

func (in *Insights) summarizeTopTerms(groups []TermMonthlyCount, method string) []Summary {
	terms := TopTerms(groups, in.cfg.TopTerms)
	out := make([]Summary, 0, len(terms))
	for _, term := range terms {
		out = append(out, in.SummarizeSeries(term, TermSeries(groups, term), method))
	}
	return out
}

// SpikeMonths returns the months flagged as spikes, in series order.
func SpikeMonths(points []ScorePoint) []string {
	months := []string{}
	for _, p := range points {
		if p.Spike {
			months = append(months, p.YearMonth)
		}
	}
	return months
}
