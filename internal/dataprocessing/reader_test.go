package dataprocessing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetrend/internal/config"
	apperrors "aetrend/internal/errors"
	"aetrend/internal/files"
)

func writeTableFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func testReader() *Reader {
	return NewReader(config.Default().Reader, nil)
}

func TestReadTable(t *testing.T) {
	content := "PRIMARYID$CASEID$AGE$SEX$EVENT_DT$FDA_DT\n" +
		"100$10$45$M$20240115$20240201\n" +
		"101$11$NULL$F$20240116$20240202\n" +
		"$$$$$\n" // all-empty row is dropped

	path := writeTableFile(t, "DEMO24Q1.txt", []byte(content))
	table, err := testReader().ReadTable(path, files.TableDemo)
	require.NoError(t, err)

	// FDA_DT is not essential for DEMO and must be projected away.
	assert.Equal(t, 2, table.NumRows())
	assert.NotContains(t, table.ColumnNames(), "FDA_DT")
	assert.Contains(t, table.ColumnNames(), "PRIMARYID")

	assert.Equal(t, "100", table.Value(0, "PRIMARYID"))
	assert.Equal(t, "", table.Value(1, "AGE")) // NULL token normalized
	assert.Equal(t, "F", table.Value(1, "SEX"))
}

func TestReadTable_TabDelimited(t *testing.T) {
	content := "primaryid\tpt\n100\tHEADACHE\n101\tNAUSEA\n"
	path := writeTableFile(t, "REAC24Q1.txt", []byte(content))

	cfg := config.Default().Reader
	cfg.Delimiter = "\t"
	table, err := NewReader(cfg, nil).ReadTable(path, files.TableReac)
	require.NoError(t, err)

	require.Equal(t, 2, table.NumRows())
	assert.Equal(t, "HEADACHE", table.Value(0, "pt"))
}

func TestReadTable_Latin1Fallback(t *testing.T) {
	// 0xE9 is "é" in Latin-1 and invalid as a standalone UTF-8 byte.
	content := append([]byte("PRIMARYID$DRUGNAME\n100$CAF"), 0xE9)
	content = append(content, []byte("INE\n")...)
	path := writeTableFile(t, "DRUG24Q1.txt", content)

	table, err := testReader().ReadTable(path, files.TableDrug)
	require.NoError(t, err)

	require.Equal(t, 1, table.NumRows())
	assert.Equal(t, "CAFéINE", table.Value(0, "DRUGNAME"))
}

func TestReadTable_NoEssentialColumnsKeepsAll(t *testing.T) {
	content := "COL_A$COL_B\n1$2\n"
	path := writeTableFile(t, "DEMO24Q1.txt", []byte(content))

	table, err := testReader().ReadTable(path, files.TableDemo)
	require.NoError(t, err)

	assert.Equal(t, []string{"COL_A", "COL_B"}, table.ColumnNames())
	assert.Equal(t, 1, table.NumRows())
}

func TestReadTable_MissingFile(t *testing.T) {
	_, err := testReader().ReadTable(filepath.Join(t.TempDir(), "nope.txt"), files.TableDemo)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput))
}

func TestReadTable_EmptyFile(t *testing.T) {
	path := writeTableFile(t, "empty.txt", nil)
	table, err := testReader().ReadTable(path, files.TableDemo)
	require.NoError(t, err)
	assert.Equal(t, 0, table.NumRows())
}

func TestProjectColumns(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		wanted []string
		expect []int
	}{
		{
			name:   "case insensitive match in wanted order",
			header: []string{"caseid", "pt", "drug_seq"},
			wanted: []string{"PRIMARYID", "CASEID", "PT"},
			expect: []int{0, 1},
		},
		{
			name:   "no matches",
			header: []string{"a", "b"},
			wanted: []string{"PRIMARYID"},
			expect: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, projectColumns(tt.header, tt.wanted))
		})
	}
}
