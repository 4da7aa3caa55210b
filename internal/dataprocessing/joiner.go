package dataprocessing

import (
	"log/slog"
	"time"

	"aetrend/internal/config"
	apperrors "aetrend/internal/errors"
)

// UnknownDrug is the sentinel drug value used when a period has no drug
// table at all.
const UnknownDrug = "UNKNOWN"

// JoinKind distinguishes the join strategies the engine performs.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
)

// LossSeverity classifies the row loss of a join step.
type LossSeverity string

const (
	LossPerfect  LossSeverity = "PERFECT"
	LossMinor    LossSeverity = "MINOR"
	LossModerate LossSeverity = "MODERATE"
	LossHigh     LossSeverity = "HIGH"
)

// Event is the canonical consolidated unit: one
// (case, drug, reaction, date) tuple plus demographic attributes.
type Event struct {
	EventDate  *time.Time
	CaseID     string
	Drug       string
	ReactionPT string
	Sex        string
	Age        *float64
	Country    string
	Serious    bool
	Quarter    string
}

// JoinDiagnostic is the audit record emitted for every join step.
type JoinDiagnostic struct {
	Step        string
	Kind        JoinKind
	Before      int
	After       int
	Lost        int
	LossPercent float64
	Severity    LossSeverity
}

// KeyOverlap reports the set-overlap between two tables' de-duplicated
// non-null key sets, computed before the join is performed.
type KeyOverlap struct {
	Step           string
	LeftKeys       int
	RightKeys      int
	Overlap        int
	LeftOnly       int
	RightOnly      int
	OverlapPercent float64
	LowOverlap     bool
}

// NormalizedTables holds one period's normalized record sets. A nil
// slice means the source table was absent for the period.
type NormalizedTables struct {
	Demo    []DemoRecord
	Reac    []ReacRecord
	Drug    []DrugRecord
	Outcome []OutcomeRecord
}

// JoinResult is the consolidated event set for one period plus the
// diagnostics every step emitted.
type JoinResult struct {
	Events            []Event
	Overlaps          []KeyOverlap
	Diagnostics       []JoinDiagnostic
	TotalLoss         JoinDiagnostic
	NullDropped       int
	DuplicatesDropped int
}

// Joiner merges normalized tables into consolidated events, computing
// key-overlap and row-loss statistics at every step. The diagnostics are
// the only way silently broken join keys surface, so they are returned
// to the caller rather than merely logged.
type Joiner struct {
	cfg    config.JoinConfig
	logger *slog.Logger
}

// NewJoiner creates a new join engine with the given thresholds.
func NewJoiner(cfg config.JoinConfig, logger *slog.Logger) *Joiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Joiner{cfg: cfg, logger: logger}
}

// BuildEvents builds one period's consolidated event set.
// Demographics and reactions are mandatory; drug and outcome tables are
// optional enrichments.
func (j *Joiner) BuildEvents(tables NormalizedTables, quarter string) (*JoinResult, error) {
	if tables.Demo == nil || tables.Reac == nil {
		return nil, apperrors.NewMissingInputError(
			"DEMO and REAC tables are mandatory", nil).
			WithContext("quarter", quarter)
	}

	result := &JoinResult{}
	initialCount := len(tables.Demo)

	// Demographics x Reactions: mandatory inner join.
	result.Overlaps = append(result.Overlaps,
		j.analyzeKeyOverlap("DEMO vs REAC", demoKeys(tables.Demo), reacKeys(tables.Reac)))

	reacByCase := make(map[string][]ReacRecord, len(tables.Reac))
	for _, r := range tables.Reac {
		if r.CaseID == "" {
			continue
		}
		reacByCase[r.CaseID] = append(reacByCase[r.CaseID], r)
	}

	events := make([]Event, 0, len(tables.Demo))
	for _, d := range tables.Demo {
		if d.CaseID == "" {
			continue
		}
		for _, r := range reacByCase[d.CaseID] {
			events = append(events, Event{
				EventDate:  d.EventDate,
				CaseID:     d.CaseID,
				ReactionPT: r.ReactionPT,
				Sex:        d.Sex,
				Age:        d.Age,
				Country:    d.Country,
				Quarter:    quarter,
			})
		}
	}
	result.Diagnostics = append(result.Diagnostics,
		j.diagnose("DEMO with REAC", JoinInner, initialCount, len(events)))

	// Drugs: left join when present, sentinel when the table is absent.
	if tables.Drug != nil {
		result.Overlaps = append(result.Overlaps,
			j.analyzeKeyOverlap("EVENTS vs DRUG", eventKeys(events), drugKeys(tables.Drug)))

		drugsByCase := make(map[string][]string, len(tables.Drug))
		for _, d := range tables.Drug {
			if d.CaseID == "" {
				continue
			}
			drugsByCase[d.CaseID] = append(drugsByCase[d.CaseID], d.Drug)
		}

		before := len(events)
		joined := make([]Event, 0, len(events))
		for _, e := range events {
			drugs := drugsByCase[e.CaseID]
			if len(drugs) == 0 {
				joined = append(joined, e)
				continue
			}
			for _, drug := range drugs {
				withDrug := e
				withDrug.Drug = drug
				joined = append(joined, withDrug)
			}
		}
		events = joined
		result.Diagnostics = append(result.Diagnostics,
			j.diagnose("EVENTS with DRUG", JoinLeft, before, len(events)))
	} else {
		for i := range events {
			events[i].Drug = UnknownDrug
		}
		j.logger.Warn("no DRUG table available, setting drug to sentinel",
			slog.String("quarter", quarter),
			slog.String("sentinel", UnknownDrug))
	}

	// Outcomes: collapse to per-case maximum seriousness, then left join.
	if tables.Outcome != nil {
		seriousByCase := make(map[string]bool, len(tables.Outcome))
		for _, o := range tables.Outcome {
			if o.CaseID == "" {
				continue
			}
			seriousByCase[o.CaseID] = seriousByCase[o.CaseID] || o.Serious
		}

		result.Overlaps = append(result.Overlaps,
			j.analyzeKeyOverlap("EVENTS vs OUTC", eventKeys(events), boolKeys(seriousByCase)))

		before := len(events)
		for i := range events {
			events[i].Serious = seriousByCase[events[i].CaseID]
		}
		result.Diagnostics = append(result.Diagnostics,
			j.diagnose("EVENTS with OUTC", JoinLeft, before, len(events)))
	}

	// Drop rows violating the non-null invariants.
	beforeFilter := len(events)
	filtered := events[:0]
	for _, e := range events {
		if e.CaseID == "" || e.ReactionPT == "" {
			continue
		}
		filtered = append(filtered, e)
	}
	events = filtered
	result.NullDropped = beforeFilter - len(events)
	if result.NullDropped > 0 {
		j.logger.Info("removed records with null case_id or reaction",
			slog.Int("removed", result.NullDropped),
			slog.String("quarter", quarter))
	}

	// Exact duplicate (case, drug, reaction, date) tuples.
	beforeDedup := len(events)
	events = DeduplicateEvents(events)
	result.DuplicatesDropped = beforeDedup - len(events)
	if result.DuplicatesDropped > 0 {
		j.logger.Info("removed duplicate records",
			slog.Int("removed", result.DuplicatesDropped),
			slog.String("quarter", quarter))
	}

	result.Events = events
	result.TotalLoss = j.diagnoseTotal(initialCount, len(events))

	j.logger.Info("period consolidation complete",
		slog.String("quarter", quarter),
		slog.Int("initial_demo_rows", initialCount),
		slog.Int("final_events", len(events)),
		slog.Float64("total_loss_percent", result.TotalLoss.LossPercent),
		slog.String("total_loss_severity", string(result.TotalLoss.Severity)))

	return result, nil
}

// DeduplicateEvents drops exact duplicate (case_id, drug, reaction_pt,
// event_date) tuples, keeping the first occurrence.
func DeduplicateEvents(events []Event) []Event {
	type key struct {
		caseID   string
		drug     string
		reaction string
		date     string
	}

	seen := make(map[key]bool, len(events))
	out := events[:0]
	for _, e := range events {
		k := key{caseID: e.CaseID, drug: e.Drug, reaction: e.ReactionPT}
		if e.EventDate != nil {
			k.date = e.EventDate.Format("2006-01-02")
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

// analyzeKeyOverlap computes the set overlap between two key sets and
// logs a warning when the overlap falls below the configured threshold.
func (j *Joiner) analyzeKeyOverlap(step string, left, right map[string]bool) KeyOverlap {
	overlap := 0
	for k := range left {
		if right[k] {
			overlap++
		}
	}

	ko := KeyOverlap{
		Step:      step,
		LeftKeys:  len(left),
		RightKeys: len(right),
		Overlap:   overlap,
		LeftOnly:  len(left) - overlap,
		RightOnly: len(right) - overlap,
	}
	if len(left) > 0 {
		ko.OverlapPercent = float64(overlap) / float64(len(left)) * 100
	}
	ko.LowOverlap = ko.OverlapPercent < j.cfg.KeyOverlapWarnPct

	j.logger.Info("key overlap analysis",
		slog.String("step", step),
		slog.Int("left_keys", ko.LeftKeys),
		slog.Int("right_keys", ko.RightKeys),
		slog.Int("overlap", ko.Overlap),
		slog.Int("left_only", ko.LeftOnly),
		slog.Int("right_only", ko.RightOnly),
		slog.Float64("overlap_percent", ko.OverlapPercent))

	if ko.LowOverlap {
		j.logger.Warn("low key overlap between join tables",
			slog.String("step", step),
			slog.Float64("overlap_percent", ko.OverlapPercent),
			slog.Float64("threshold", j.cfg.KeyOverlapWarnPct))
	}

	return ko
}

// diagnose builds and logs the audit record for one join step.
func (j *Joiner) diagnose(step string, kind JoinKind, before, after int) JoinDiagnostic {
	d := JoinDiagnostic{Step: step, Kind: kind, Before: before, After: after}

	switch kind {
	case JoinInner:
		d.Lost = before - after
		if before > 0 {
			d.LossPercent = float64(d.Lost) / float64(before) * 100
		}
		d.Severity = j.classify(d.LossPercent, d.Lost, j.cfg.LossHighPct, j.cfg.LossModeratePct)

	case JoinLeft:
		// A left join must never shrink the left side; expansion from
		// 1-to-many relationships is expected.
		if after < before {
			d.Lost = before - after
			d.LossPercent = float64(d.Lost) / float64(before) * 100
			d.Severity = LossHigh
			j.logger.Warn("unexpected row loss in left join",
				slog.String("step", step),
				slog.Int("lost", d.Lost))
		} else {
			d.Severity = LossPerfect
			if after > before {
				j.logger.Info("left join added rows (1-to-many relationship)",
					slog.String("step", step),
					slog.Int("added", after-before))
			}
		}
	}

	j.logger.Info("join diagnostics",
		slog.String("step", step),
		slog.String("kind", string(kind)),
		slog.Int("before", d.Before),
		slog.Int("after", d.After),
		slog.Int("lost", d.Lost),
		slog.Float64("loss_percent", d.LossPercent),
		slog.String("severity", string(d.Severity)))

	if d.Kind == JoinInner && d.Severity == LossHigh {
		j.logger.Warn("high data loss in join",
			slog.String("step", step),
			slog.Float64("loss_percent", d.LossPercent))
	}

	return d
}

// diagnoseTotal classifies the overall period-level loss from the initial
// demographic row count to the final deduplicated event count.
func (j *Joiner) diagnoseTotal(initial, final int) JoinDiagnostic {
	d := JoinDiagnostic{
		Step:   "period total",
		Kind:   JoinInner,
		Before: initial,
		After:  final,
	}
	if final < initial {
		d.Lost = initial - final
	}
	if initial > 0 && d.Lost > 0 {
		d.LossPercent = float64(d.Lost) / float64(initial) * 100
	}
	d.Severity = j.classify(d.LossPercent, d.Lost, j.cfg.TotalLossHighPct, j.cfg.TotalLossModeratePct)
	return d
}

// classify maps a loss percentage to a severity class.
func (j *Joiner) classify(lossPct float64, lost int, highPct, moderatePct float64) LossSeverity {
	switch {
	case lossPct > highPct:
		return LossHigh
	case lossPct > moderatePct:
		return LossModerate
	case lost > 0:
		return LossMinor
	default:
		return LossPerfect
	}
}

func demoKeys(records []DemoRecord) map[string]bool {
	keys := make(map[string]bool, len(records))
	for _, r := range records {
		if r.CaseID != "" {
			keys[r.CaseID] = true
		}
	}
	return keys
}

func reacKeys(records []ReacRecord) map[string]bool {
	keys := make(map[string]bool, len(records))
	for _, r := range records {
		if r.CaseID != "" {
			keys[r.CaseID] = true
		}
	}
	return keys
}

func drugKeys(records []DrugRecord) map[string]bool {
	keys := make(map[string]bool, len(records))
	for _, r := range records {
		if r.CaseID != "" {
			keys[r.CaseID] = true
		}
	}
	return keys
}

func eventKeys(events []Event) map[string]bool {
	keys := make(map[string]bool, len(events))
	for _, e := range events {
		if e.CaseID != "" {
			keys[e.CaseID] = true
		}
	}
	return keys
}

func boolKeys(m map[string]bool) map[string]bool {
	keys := make(map[string]bool, len(m))
	for k := range m {
		keys[k] = true
	}
	return keys
}
