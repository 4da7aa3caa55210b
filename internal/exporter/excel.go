package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"aetrend/internal/analysis"
	apperrors "aetrend/internal/errors"
)

// ReportWriter renders spike summaries into an Excel workbook.
type ReportWriter struct {
	logger *slog.Logger
}

// NewReportWriter creates a new workbook writer.
func NewReportWriter(logger *slog.Logger) *ReportWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportWriter{logger: logger}
}

// WriteSummaryReport writes the overall series plus the per-drug and
// per-reaction summaries as a three-sheet workbook.
func (r *ReportWriter) WriteSummaryReport(path string, overall analysis.Summary, byDrug, byReaction []analysis.Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("failed to create reports directory", err).
			WithContext("path", path)
	}

	f := excelize.NewFile()

	if err := r.writeSummarySheet(f, "Overall", []analysis.Summary{overall}); err != nil {
		return err
	}
	if err := r.writeSummarySheet(f, "Top Drugs", byDrug); err != nil {
		return err
	}
	if err := r.writeSummarySheet(f, "Top Reactions", byReaction); err != nil {
		return err
	}

	// Drop the default sheet so the workbook opens on Overall.
	if idx, err := f.GetSheetIndex("Sheet1"); err == nil && idx != -1 {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return apperrors.NewStorageError("failed to remove default sheet", err)
		}
	}
	if idx, err := f.GetSheetIndex("Overall"); err == nil && idx != -1 {
		f.SetActiveSheet(idx)
	}

	if err := f.SaveAs(path); err != nil {
		return apperrors.NewStorageError("failed to save summary workbook", err).
			WithContext("path", path)
	}

	r.logger.Info("wrote summary workbook",
		slog.String("path", path),
		slog.Int("drug_summaries", len(byDrug)),
		slog.Int("reaction_summaries", len(byReaction)))
	return nil
}

func (r *ReportWriter) writeSummarySheet(f *excelize.File, sheet string, summaries []analysis.Summary) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return apperrors.NewStorageError("failed to create sheet", err).
			WithContext("sheet", sheet)
	}

	headers := []string{"series", "method", "months", "rank", "date", "count", "z_score", "note"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return apperrors.NewStorageError("failed to write header", err).
				WithContext("sheet", sheet)
		}
	}

	rowIdx := 2
	for _, s := range summaries {
		if len(s.TopSpikes) == 0 {
			if err := r.writeRow(f, sheet, rowIdx, []interface{}{
				s.Series, s.Method, s.Months, "", "no spikes detected", "", "", s.Note,
			}); err != nil {
				return err
			}
			rowIdx++
			continue
		}
		for _, spike := range s.TopSpikes {
			if err := r.writeRow(f, sheet, rowIdx, []interface{}{
				s.Series, s.Method, s.Months, spike.Rank, spike.Date,
				spike.Count, fmt.Sprintf("%.2f", spike.Z), s.Note,
			}); err != nil {
				return err
			}
			rowIdx++
		}
	}
	return nil
}

func (r *ReportWriter) writeRow(f *excelize.File, sheet string, rowIdx int, values []interface{}) error {
	for c, v := range values {
		cell, _ := excelize.CoordinatesToCellName(c+1, rowIdx)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return apperrors.NewStorageError("failed to write cell", err).
				WithContext("sheet", sheet).
				WithContext("cell", cell)
		}
	}
	return nil
}
