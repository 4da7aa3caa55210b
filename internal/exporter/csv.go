package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"aetrend/internal/analysis"
	apperrors "aetrend/internal/errors"
)

// CSVWriter provides CSV export functionality.
type CSVWriter struct {
	logger *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance.
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{logger: logger}
}

// WriteOptions configures CSV writing behavior.
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	Append    bool
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes data to a CSV file with the given options.
func (w *CSVWriter) WriteCSV(path string, options WriteOptions) error {
	w.logger.Info("writing CSV file",
		slog.String("path", path),
		slog.Int("record_count", len(options.Records)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if options.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if options.BOMPrefix && !options.Append {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if !options.Append && len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	return writer.Error()
}

// WriteMonthlyCounts writes an overall monthly series as ym,count.
// An empty series still produces a file with the header row.
func (w *CSVWriter) WriteMonthlyCounts(path string, series []analysis.MonthlyCount) error {
	records := make([][]string, len(series))
	for i, p := range series {
		records[i] = []string{p.YearMonth, strconv.Itoa(p.Count)}
	}
	return w.WriteCSV(path, WriteOptions{
		Headers: []string{"ym", "count"},
		Records: records,
	})
}

// WriteMonthlyByTerm writes a grouped monthly series as ym,<term>,count,
// where termHeader names the middle column (drug or reaction_pt).
func (w *CSVWriter) WriteMonthlyByTerm(path, termHeader string, groups []analysis.TermMonthlyCount) error {
	records := make([][]string, len(groups))
	for i, g := range groups {
		records[i] = []string{g.YearMonth, g.Term, strconv.Itoa(g.Count)}
	}
	return w.WriteCSV(path, WriteOptions{
		Headers: []string{"ym", termHeader, "count"},
		Records: records,
	})
}

// ReadMonthlyCounts loads a persisted ym,count series back into memory,
// so anomaly summaries can run against a prior export without re-joining
// the raw dumps.
func ReadMonthlyCounts(path string) ([]analysis.MonthlyCount, error) {
	rows, err := readCSVRows(path, 2)
	if err != nil {
		return nil, err
	}

	series := make([]analysis.MonthlyCount, len(rows))
	for i, row := range rows {
		count, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, apperrors.NewStorageError("malformed count column", err).
				WithContext("path", path).
				WithContext("row", i+2)
		}
		series[i] = analysis.MonthlyCount{YearMonth: row[0], Count: count}
	}
	return series, nil
}

// ReadMonthlyByTerm loads a persisted ym,<term>,count grouped series.
func ReadMonthlyByTerm(path string) ([]analysis.TermMonthlyCount, error) {
	rows, err := readCSVRows(path, 3)
	if err != nil {
		return nil, err
	}

	groups := make([]analysis.TermMonthlyCount, len(rows))
	for i, row := range rows {
		count, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, apperrors.NewStorageError("malformed count column", err).
				WithContext("path", path).
				WithContext("row", i+2)
		}
		groups[i] = analysis.TermMonthlyCount{YearMonth: row[0], Term: row[1], Count: count}
	}
	return groups, nil
}

// readCSVRows reads a headered CSV file and returns its body rows.
func readCSVRows(path string, fields int) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open CSV", err).
			WithContext("path", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = fields
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read CSV", err).
			WithContext("path", path)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	// Drop the header row. A leading BOM on the first cell is tolerated.
	return rows[1:], nil
}

// StreamWriter provides streaming CSV writing for large datasets.
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
}

// CreateStreamWriter creates a new streaming CSV writer with the header
// already written.
func (w *CSVWriter) CreateStreamWriter(path string, headers []string) (*StreamWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}

	return &StreamWriter{file: file, writer: writer}, nil
}

// Write writes one record to the stream.
func (s *StreamWriter) Write(record []string) error {
	return s.writer.Write(record)
}

// Close flushes and closes the stream.
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
