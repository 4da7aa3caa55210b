package exporter

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"aetrend/internal/dataprocessing"
	apperrors "aetrend/internal/errors"
)

const flushInterval = 100_000

// EventRow is the Parquet schema for consolidated events. Dates are
// stored as YYYY-MM-DD strings; a missing date is null.
type EventRow struct {
	EventDate  *string  `parquet:"event_date,optional"`
	CaseID     string   `parquet:"case_id"`
	Drug       string   `parquet:"drug"`
	ReactionPT string   `parquet:"reaction_pt"`
	Sex        string   `parquet:"sex"`
	Age        *float64 `parquet:"age,optional"`
	Country    string   `parquet:"country"`
	Serious    bool     `parquet:"serious"`
	Quarter    string   `parquet:"quarter"`
}

// EventStore persists consolidated events as Parquet.
type EventStore struct {
	logger *slog.Logger
}

// NewEventStore creates a new Parquet event store.
func NewEventStore(logger *slog.Logger) *EventStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStore{logger: logger}
}

// WriteEvents writes the full event set to path with snappy compression.
func (s *EventStore) WriteEvents(path string, events []dataprocessing.Event) error {
	w, err := s.CreateWriter(path)
	if err != nil {
		return err
	}
	for _, e := range events {
		if err := w.Write(e); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	s.logger.Info("wrote events parquet",
		slog.String("path", path),
		slog.Int("rows", len(events)))
	return nil
}

// ReadEvents reads a previously written event set back from path.
func (s *EventStore) ReadEvents(path string) ([]dataprocessing.Event, error) {
	rows, err := parquet.ReadFile[EventRow](path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read events parquet", err).
			WithContext("path", path)
	}

	events := make([]dataprocessing.Event, len(rows))
	for i, r := range rows {
		events[i] = rowToEvent(r)
	}
	return events, nil
}

// EventWriter streams event rows into a Parquet file, flushing row
// groups periodically so memory stays bounded on large runs.
type EventWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[EventRow]
	count  int
}

// CreateWriter creates a streaming writer for the given path.
func (s *EventStore) CreateWriter(path string) (*EventWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.NewStorageError("failed to create output directory", err).
			WithContext("path", path)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create events parquet", err).
			WithContext("path", path)
	}

	writer := parquet.NewGenericWriter[EventRow](file,
		parquet.Compression(&parquet.Snappy),
	)
	return &EventWriter{file: file, writer: writer}, nil
}

// Write writes a single event.
func (w *EventWriter) Write(e dataprocessing.Event) error {
	if _, err := w.writer.Write([]EventRow{eventToRow(e)}); err != nil {
		return apperrors.NewStorageError("failed to write event row", err)
	}
	w.count++
	if w.count%flushInterval == 0 {
		if err := w.writer.Flush(); err != nil {
			return apperrors.NewStorageError("failed to flush event rows", err)
		}
	}
	return nil
}

// Close flushes and closes the writer.
func (w *EventWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return apperrors.NewStorageError("failed to close events writer", err)
	}
	return w.file.Close()
}

// Count returns the number of rows written.
func (w *EventWriter) Count() int { return w.count }

func eventToRow(e dataprocessing.Event) EventRow {
	row := EventRow{
		CaseID:     e.CaseID,
		Drug:       e.Drug,
		ReactionPT: e.ReactionPT,
		Sex:        e.Sex,
		Age:        e.Age,
		Country:    e.Country,
		Serious:    e.Serious,
		Quarter:    e.Quarter,
	}
	if e.EventDate != nil {
		d := e.EventDate.Format("2006-01-02")
		row.EventDate = &d
	}
	return row
}

func rowToEvent(r EventRow) dataprocessing.Event {
	e := dataprocessing.Event{
		CaseID:     r.CaseID,
		Drug:       r.Drug,
		ReactionPT: r.ReactionPT,
		Sex:        r.Sex,
		Age:        r.Age,
		Country:    r.Country,
		Serious:    r.Serious,
		Quarter:    r.Quarter,
	}
	if r.EventDate != nil {
		if d, err := time.Parse("2006-01-02", *r.EventDate); err == nil {
			e.EventDate = &d
		}
	}
	return e
}
