package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetrend/internal/dataprocessing"
)

func eventAt(ym string, drug, reaction string) dataprocessing.Event {
	d, err := time.Parse("2006-01", ym)
	if err != nil {
		panic(err)
	}
	return dataprocessing.Event{
		CaseID:     "C",
		Drug:       drug,
		ReactionPT: reaction,
		EventDate:  &d,
	}
}

func TestMonthlyOverall(t *testing.T) {
	events := []dataprocessing.Event{
		eventAt("2024-02", "ASPIRIN", "HEADACHE"),
		eventAt("2024-01", "ASPIRIN", "NAUSEA"),
		eventAt("2024-01", "IBUPROFEN", "RASH"),
		{CaseID: "X", Drug: "ASPIRIN", ReactionPT: "HEADACHE"}, // no date
	}

	series := NewAggregator(nil).MonthlyOverall(events)
	require.Equal(t, []MonthlyCount{
		{YearMonth: "2024-01", Count: 2},
		{YearMonth: "2024-02", Count: 1},
	}, series)
}

func TestMonthlyOverall_Empty(t *testing.T) {
	series := NewAggregator(nil).MonthlyOverall(nil)
	require.NotNil(t, series)
	assert.Empty(t, series)
}

func TestMonthlyByReaction(t *testing.T) {
	events := []dataprocessing.Event{
		eventAt("2024-01", "ASPIRIN", "NAUSEA"),
		eventAt("2024-01", "IBUPROFEN", "HEADACHE"),
		eventAt("2024-01", "ASPIRIN", "HEADACHE"),
		eventAt("2024-02", "ASPIRIN", "HEADACHE"),
	}

	groups := NewAggregator(nil).MonthlyByReaction(events)
	require.Equal(t, []TermMonthlyCount{
		{YearMonth: "2024-01", Term: "HEADACHE", Count: 2},
		{YearMonth: "2024-01", Term: "NAUSEA", Count: 1},
		{YearMonth: "2024-02", Term: "HEADACHE", Count: 1},
	}, groups)
}

func TestMonthlyByDrug_ExcludesNullDrug(t *testing.T) {
	events := []dataprocessing.Event{
		eventAt("2024-01", "ASPIRIN", "HEADACHE"),
		eventAt("2024-01", "", "HEADACHE"),
	}

	groups := NewAggregator(nil).MonthlyByDrug(events)
	require.Equal(t, []TermMonthlyCount{
		{YearMonth: "2024-01", Term: "ASPIRIN", Count: 1},
	}, groups)
}

func TestTopTerms(t *testing.T) {
	groups := []TermMonthlyCount{
		{YearMonth: "2024-01", Term: "A", Count: 5},
		{YearMonth: "2024-02", Term: "A", Count: 5},
		{YearMonth: "2024-01", Term: "B", Count: 12},
		{YearMonth: "2024-01", Term: "C", Count: 10},
		{YearMonth: "2024-01", Term: "D", Count: 10},
	}

	// Ties (C vs D) break alphabetically.
	assert.Equal(t, []string{"B", "A", "C"}, TopTerms(groups, 3))
	assert.Equal(t, []string{"B", "A", "C", "D"}, TopTerms(groups, 0))
}

func TestTermSeries(t *testing.T) {
	groups := []TermMonthlyCount{
		{YearMonth: "2024-01", Term: "A", Count: 5},
		{YearMonth: "2024-01", Term: "B", Count: 1},
		{YearMonth: "2024-02", Term: "A", Count: 7},
	}

	assert.Equal(t, []MonthlyCount{
		{YearMonth: "2024-01", Count: 5},
		{YearMonth: "2024-02", Count: 7},
	}, TermSeries(groups, "A"))
	assert.Empty(t, TermSeries(groups, "Z"))
}
