// Package exporter persists pipeline outputs: the consolidated event set
// as Parquet, the monthly count series as CSV, and the spike summaries as
// an Excel workbook.
//
// CSVWriter: core CSV writing with headers, streaming, and a UTF-8 BOM
// for Excel compatibility.
//
// EventStore: Parquet persistence for consolidated events, with a
// streaming writer for large runs and a read-back path for downstream
// analysis.
//
// ReportWriter: renders the overall, by-drug, and by-reaction spike
// summaries into a single workbook.
package exporter
