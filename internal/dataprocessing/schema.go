package dataprocessing

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// columnAliases maps each canonical field to its known source-column
// names across historical schema variants, in priority order. Matching is
// a case-sensitive exact probe; the lowercase variants are listed
// explicitly.
var columnAliases = map[string][]string{
	"case_id":     {"PRIMARYID", "CASEID", "primaryid", "caseid"},
	"drug":        {"DRUGNAME", "MEDICINALPRODUCT", "drugname", "medicinalproduct"},
	"reaction_pt": {"PT", "REACTIONMEDDRAPT", "pt", "reactionmeddrapt"},
	"sex":         {"SEX", "PATIENTSEX", "sex", "patientsex"},
	"age":         {"AGE", "AGE_YRS", "age", "age_yrs"},
	"country":     {"OCCUR_COUNTRY", "COUNTRY", "occur_country", "country"},
	"serious":     {"SERIOUS", "SERIOUSNESS", "serious", "seriousness"},
	"event_date":  {"EVENT_DT", "RECEIPTDATE", "event_dt", "receiptdate"},
}

// sexMapping collapses raw sex tokens to {M, F, UNK}.
var sexMapping = map[string]string{
	"M": "M", "MALE": "M", "m": "M", "male": "M",
	"F": "F", "FEMALE": "F", "f": "F", "female": "F",
	"U": "UNK", "UNKNOWN": "UNK", "UNK": "UNK",
}

// seriousMapping collapses raw seriousness tokens to a boolean.
// Lookup happens on the upper-cased token.
var seriousMapping = map[string]bool{
	"1": true, "Y": true, "YES": true, "TRUE": true,
	"0": false, "N": false, "NO": false, "FALSE": false,
}

// dateLayouts are tried in order before the lenient fallback pass.
var dateLayouts = []string{
	"20060102",   // YYYYMMDD
	"2006-01-02", // YYYY-MM-DD
	"01/02/2006", // MM/DD/YYYY
	"01-02-2006", // MM-DD-YYYY
	"2006/01/02", // YYYY/MM/DD
}

// lenientDateLayouts is the general-purpose fallback applied only when
// every primary layout fails.
var lenientDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2 Jan 2006",
	"Jan 2, 2006",
	"2006-01",
	"200601",
	"2006",
}

// DemoRecord is a normalized demographics row.
type DemoRecord struct {
	CaseID    string
	Sex       string
	Age       *float64
	Country   string
	EventDate *time.Time
}

// ReacRecord is a normalized reaction row.
type ReacRecord struct {
	CaseID     string
	ReactionPT string
}

// DrugRecord is a normalized drug row.
type DrugRecord struct {
	CaseID string
	Drug   string
}

// OutcomeRecord is a normalized outcome row.
type OutcomeRecord struct {
	CaseID  string
	Serious bool
}

// Normalizer resolves per-era schema variants to the canonical field set
// and normalizes value encodings.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a new schema normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// resolveColumn returns an accessor for the first alias of target present
// in the table. A missing field resolves to an all-missing column, never
// an error.
func (n *Normalizer) resolveColumn(t *Table, target string) func(row int) string {
	for _, alias := range columnAliases[target] {
		if col, ok := t.Column(alias); ok {
			return func(row int) string { return strings.TrimSpace(col.Value(row)) }
		}
	}
	n.logger.Debug("no source column found for canonical field",
		slog.String("field", target))
	return func(row int) string { return "" }
}

// NormalizeDemo converts a raw DEMO table to demographics records.
func (n *Normalizer) NormalizeDemo(t *Table) []DemoRecord {
	caseID := n.resolveColumn(t, "case_id")
	sex := n.resolveColumn(t, "sex")
	age := n.resolveColumn(t, "age")
	country := n.resolveColumn(t, "country")
	eventDate := n.resolveColumn(t, "event_date")

	records := make([]DemoRecord, t.NumRows())
	for i := range records {
		records[i] = DemoRecord{
			CaseID:    caseID(i),
			Sex:       NormalizeSex(sex(i)),
			Age:       ParseAge(age(i)),
			Country:   NormalizeTerm(country(i)),
			EventDate: ParseDate(eventDate(i)),
		}
	}
	n.logger.Info("normalized DEMO table", slog.Int("rows", len(records)))
	return records
}

// NormalizeReac converts a raw REAC table to reaction records.
func (n *Normalizer) NormalizeReac(t *Table) []ReacRecord {
	caseID := n.resolveColumn(t, "case_id")
	reaction := n.resolveColumn(t, "reaction_pt")

	records := make([]ReacRecord, t.NumRows())
	for i := range records {
		records[i] = ReacRecord{
			CaseID:     caseID(i),
			ReactionPT: NormalizeTerm(reaction(i)),
		}
	}
	n.logger.Info("normalized REAC table", slog.Int("rows", len(records)))
	return records
}

// NormalizeDrug converts a raw DRUG table to drug records.
func (n *Normalizer) NormalizeDrug(t *Table) []DrugRecord {
	caseID := n.resolveColumn(t, "case_id")
	drug := n.resolveColumn(t, "drug")

	records := make([]DrugRecord, t.NumRows())
	for i := range records {
		records[i] = DrugRecord{
			CaseID: caseID(i),
			Drug:   NormalizeTerm(drug(i)),
		}
	}
	n.logger.Info("normalized DRUG table", slog.Int("rows", len(records)))
	return records
}

// NormalizeOutcome converts a raw OUTC table to outcome records.
func (n *Normalizer) NormalizeOutcome(t *Table) []OutcomeRecord {
	caseID := n.resolveColumn(t, "case_id")
	serious := n.resolveColumn(t, "serious")

	records := make([]OutcomeRecord, t.NumRows())
	for i := range records {
		records[i] = OutcomeRecord{
			CaseID:  caseID(i),
			Serious: NormalizeSerious(serious(i)),
		}
	}
	n.logger.Info("normalized OUTC table", slog.Int("rows", len(records)))
	return records
}

// NormalizeSex collapses a raw sex token to M, F, or UNK.
func NormalizeSex(v string) string {
	if mapped, ok := sexMapping[strings.TrimSpace(v)]; ok {
		return mapped
	}
	return "UNK"
}

// NormalizeSerious collapses a raw seriousness token to a boolean,
// defaulting to false.
func NormalizeSerious(v string) bool {
	if mapped, ok := seriousMapping[strings.ToUpper(strings.TrimSpace(v))]; ok {
		return mapped
	}
	return false
}

// NormalizeTerm upper-cases, trims, and collapses internal whitespace
// runs to a single space. Used for country, drug, and reaction values.
func NormalizeTerm(v string) string {
	fields := strings.Fields(strings.ToUpper(v))
	return strings.Join(fields, " ")
}

// ParseAge coerces an age string to a number, or nil when non-numeric.
func ParseAge(v string) *float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	age, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &age
}

// ParseDate parses a date string via the ordered primary layouts, then the
// lenient fallback layouts. Unparseable strings yield nil, never an error.
func ParseDate(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, v); err == nil {
			return &d
		}
	}
	for _, layout := range lenientDateLayouts {
		if d, err := time.Parse(layout, v); err == nil {
			return &d
		}
	}
	return nil
}
