package analysis

import (
	"log/slog"
	"sort"

	"aetrend/internal/dataprocessing"
)

// MonthlyCount is one month's event count in an overall series.
// YearMonth is formatted YYYY-MM.
type MonthlyCount struct {
	YearMonth string
	Count     int
}

// TermMonthlyCount is one month's event count for a single term
// (a drug or a reaction).
type TermMonthlyCount struct {
	YearMonth string
	Term      string
	Count     int
}

// Aggregator builds monthly count series from consolidated events.
// Events without a parseable date are excluded from every series.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates a new monthly aggregator.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// MonthlyOverall counts events per month, sorted by month ascending.
// An empty input yields an empty, non-nil series.
func (a *Aggregator) MonthlyOverall(events []dataprocessing.Event) []MonthlyCount {
	counts := make(map[string]int)
	excluded := 0
	for _, e := range events {
		if e.EventDate == nil {
			excluded++
			continue
		}
		counts[e.EventDate.Format("2006-01")]++
	}
	a.logExcluded("overall", excluded, len(events))

	out := make([]MonthlyCount, 0, len(counts))
	for ym, c := range counts {
		out = append(out, MonthlyCount{YearMonth: ym, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	return out
}

// MonthlyByReaction counts events per (month, reaction), sorted by month
// ascending then count descending.
func (a *Aggregator) MonthlyByReaction(events []dataprocessing.Event) []TermMonthlyCount {
	return a.monthlyByTerm(events, "reaction", func(e dataprocessing.Event) string {
		return e.ReactionPT
	})
}

// MonthlyByDrug counts events per (month, drug), sorted by month
// ascending then count descending.
func (a *Aggregator) MonthlyByDrug(events []dataprocessing.Event) []TermMonthlyCount {
	return a.monthlyByTerm(events, "drug", func(e dataprocessing.Event) string {
		return e.Drug
	})
}

func (a *Aggregator) monthlyByTerm(events []dataprocessing.Event, dim string, term func(dataprocessing.Event) string) []TermMonthlyCount {
	type key struct {
		ym   string
		term string
	}

	counts := make(map[key]int)
	excluded := 0
	for _, e := range events {
		tv := term(e)
		if e.EventDate == nil || tv == "" {
			excluded++
			continue
		}
		counts[key{ym: e.EventDate.Format("2006-01"), term: tv}]++
	}
	a.logExcluded(dim, excluded, len(events))

	out := make([]TermMonthlyCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, TermMonthlyCount{YearMonth: k.ym, Term: k.term, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].YearMonth != out[j].YearMonth {
			return out[i].YearMonth < out[j].YearMonth
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	return out
}

func (a *Aggregator) logExcluded(dim string, excluded, total int) {
	if excluded > 0 {
		a.logger.Info("excluded events from monthly aggregation",
			slog.String("dimension", dim),
			slog.Int("excluded", excluded),
			slog.Int("total", total))
	}
}

// TopTerms returns the k terms with the highest total counts across the
// whole series, largest first. Ties break alphabetically.
func TopTerms(groups []TermMonthlyCount, k int) []string {
	totals := make(map[string]int)
	for _, g := range groups {
		totals[g.Term] += g.Count
	}

	terms := make([]string, 0, len(totals))
	for term := range totals {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if totals[terms[i]] != totals[terms[j]] {
			return totals[terms[i]] > totals[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if k > 0 && len(terms) > k {
		terms = terms[:k]
	}
	return terms
}

// TermSeries extracts one term's monthly series from a grouped count set.
func TermSeries(groups []TermMonthlyCount, term string) []MonthlyCount {
	out := []MonthlyCount{}
	for _, g := range groups {
		if g.Term == term {
			out = append(out, MonthlyCount{YearMonth: g.YearMonth, Count: g.Count})
		}
	}
	return out
}
