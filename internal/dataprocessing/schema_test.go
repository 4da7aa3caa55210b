package dataprocessing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTable(names []string, rows ...[]string) *Table {
	b := NewTableBuilder(names)
	for _, row := range rows {
		b.AppendRow(row)
	}
	return b.Build()
}

func TestNormalizeDemo(t *testing.T) {
	tbl := buildTable(
		[]string{"PRIMARYID", "SEX", "AGE", "OCCUR_COUNTRY", "EVENT_DT"},
		[]string{"100", "M", "45", "us", "20240115"},
		[]string{"101", "x", "abc", "  united states ", "not-a-date"},
	)

	records := NewNormalizer(nil).NormalizeDemo(tbl)
	require.Len(t, records, 2)

	assert.Equal(t, "100", records[0].CaseID)
	assert.Equal(t, "M", records[0].Sex)
	require.NotNil(t, records[0].Age)
	assert.Equal(t, 45.0, *records[0].Age)
	assert.Equal(t, "US", records[0].Country)
	require.NotNil(t, records[0].EventDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *records[0].EventDate)

	assert.Equal(t, "UNK", records[1].Sex)
	assert.Nil(t, records[1].Age)
	assert.Equal(t, "UNITED STATES", records[1].Country)
	assert.Nil(t, records[1].EventDate)
}

func TestNormalizeDemo_LegacyAliases(t *testing.T) {
	tbl := buildTable(
		[]string{"caseid", "patientsex", "receiptdate"},
		[]string{"200", "female", "2024-02-01"},
	)

	records := NewNormalizer(nil).NormalizeDemo(tbl)
	require.Len(t, records, 1)
	assert.Equal(t, "200", records[0].CaseID)
	assert.Equal(t, "F", records[0].Sex)
	require.NotNil(t, records[0].EventDate)
}

func TestNormalizeReac_MissingColumn(t *testing.T) {
	// No reaction column at all resolves to empty values, not an error.
	tbl := buildTable([]string{"PRIMARYID"}, []string{"100"})

	records := NewNormalizer(nil).NormalizeReac(tbl)
	require.Len(t, records, 1)
	assert.Equal(t, "100", records[0].CaseID)
	assert.Equal(t, "", records[0].ReactionPT)
}

func TestNormalizeDrug(t *testing.T) {
	tbl := buildTable(
		[]string{"PRIMARYID", "DRUGNAME"},
		[]string{"100", "  aspirin   extra strength "},
	)

	records := NewNormalizer(nil).NormalizeDrug(tbl)
	require.Len(t, records, 1)
	assert.Equal(t, "ASPIRIN EXTRA STRENGTH", records[0].Drug)
}

func TestNormalizeOutcome(t *testing.T) {
	tbl := buildTable(
		[]string{"PRIMARYID", "SERIOUS"},
		[]string{"100", "1"},
		[]string{"101", "no"},
		[]string{"102", ""},
	)

	records := NewNormalizer(nil).NormalizeOutcome(tbl)
	require.Len(t, records, 3)
	assert.True(t, records[0].Serious)
	assert.False(t, records[1].Serious)
	assert.False(t, records[2].Serious)
}

func TestNormalizeSex(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"M", "M"},
		{"male", "M"},
		{" F ", "F"},
		{"FEMALE", "F"},
		{"U", "UNK"},
		{"", "UNK"},
		{"garbage", "UNK"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSex(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeSerious(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"1", true},
		{"Y", true},
		{"yes", true},
		{"TRUE", true},
		{"0", false},
		{"n", false},
		{"", false},
		{"maybe", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSerious(tt.in), "input %q", tt.in)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"20240115", timePtr(2024, 1, 15)},
		{"2024-01-15", timePtr(2024, 1, 15)},
		{"01/15/2024", timePtr(2024, 1, 15)},
		{"01-15-2024", timePtr(2024, 1, 15)},
		{"2024/01/15", timePtr(2024, 1, 15)},
		{"2024-01", timePtr(2024, 1, 1)}, // lenient fallback
		{"2024", timePtr(2024, 1, 1)},
		{"", nil},
		{"nonsense", nil},
	}

	for _, tt := range tests {
		got := ParseDate(tt.in)
		if tt.want == nil {
			assert.Nil(t, got, "input %q", tt.in)
			continue
		}
		require.NotNil(t, got, "input %q", tt.in)
		assert.Equal(t, *tt.want, *got, "input %q", tt.in)
	}
}

func TestParseAge(t *testing.T) {
	got := ParseAge("62.5")
	require.NotNil(t, got)
	assert.Equal(t, 62.5, *got)

	assert.Nil(t, ParseAge(""))
	assert.Nil(t, ParseAge("sixty"))
}

func timePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}
