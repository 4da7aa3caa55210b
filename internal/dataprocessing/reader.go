package dataprocessing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"aetrend/internal/config"
	apperrors "aetrend/internal/errors"
	"aetrend/internal/files"
)

// maxCardinalityRatio is the unique-value ratio below which a column is
// dictionary-encoded after load.
const maxCardinalityRatio = 0.5

// errInvalidUTF8 signals that the primary decode attempt hit a byte
// sequence that is not valid UTF-8.
var errInvalidUTF8 = errors.New("invalid utf-8 byte sequence")

// essentialColumns lists, per table type, the column subset needed to
// reconstruct canonical fields. Matching is case-insensitive.
var essentialColumns = map[files.TableType][]string{
	files.TableDemo: {"PRIMARYID", "CASEID", "AGE", "SEX", "PATIENTSEX",
		"OCCUR_COUNTRY", "COUNTRY", "EVENT_DT", "RECEIPTDATE"},
	files.TableReac: {"PRIMARYID", "CASEID", "PT", "REACTIONMEDDRAPT"},
	files.TableDrug: {"PRIMARYID", "CASEID", "DRUGNAME", "MEDICINALPRODUCT"},
	files.TableOutc: {"PRIMARYID", "CASEID", "OUTC_COD", "SERIOUS", "SERIOUSNESS"},
	files.TableTher: {"PRIMARYID", "CASEID"},
	files.TableIndi: {"PRIMARYID", "CASEID"},
}

// Reader reads delimited table files in bounded-memory chunks.
type Reader struct {
	cfg    config.ReaderConfig
	logger *slog.Logger
}

// NewReader creates a new chunked table reader.
func NewReader(cfg config.ReaderConfig, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{cfg: cfg, logger: logger}
}

// ReadTable reads the file at path into a Table, projecting down to the
// essential columns for the table type. UTF-8 is attempted first; on
// decode failure the entire read is retried with a Latin-1 fallback that
// never fails on invalid bytes.
func (r *Reader) ReadTable(path string, tableType files.TableType) (*Table, error) {
	table, err := r.read(path, tableType, false)
	if err != nil {
		if errors.Is(err, errInvalidUTF8) {
			r.logger.Warn("utf-8 decode failed, retrying with latin-1",
				slog.String("file", path))
			table, err = r.read(path, tableType, true)
			if err != nil {
				return nil, apperrors.NewEncodingError("latin-1 fallback read failed", err).
					WithContext("file", path)
			}
			return table, nil
		}
		return nil, err
	}
	return table, nil
}

func (r *Reader) read(path string, tableType files.TableType, latin1 bool) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewMissingInputError("table file not accessible", err).
			WithContext("file", path)
	}
	large := info.Size() > r.cfg.LargeFileMB<<20

	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewMissingInputError("failed to open table file", err).
			WithContext("file", path)
	}
	defer file.Close()

	var decoded io.Reader
	if latin1 {
		decoded = transform.NewReader(file, charmap.ISO8859_1.NewDecoder())
	} else {
		decoded = transform.NewReader(file, utf8Validator{})
	}

	cr := csv.NewReader(decoded)
	cr.Comma = r.delimiter()
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return NewTableBuilder(nil).Build(), nil
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	keep := projectColumns(header, essentialColumns[tableType])
	if len(keep) == 0 {
		r.logger.Warn("no essential columns found, keeping all columns",
			slog.String("file", path),
			slog.String("table", string(tableType)))
		keep = make([]int, len(header))
		for i := range header {
			keep[i] = i
		}
	} else {
		r.logger.Info("projected essential columns",
			slog.String("file", path),
			slog.Int("kept", len(keep)),
			slog.Int("available", len(header)))
	}

	keptNames := make([]string, len(keep))
	for i, idx := range keep {
		keptNames[i] = header[idx]
	}
	builder := NewTableBuilder(keptNames)

	if large {
		r.logger.Info("large file detected, using chunked reading",
			slog.String("file", path),
			slog.Int64("size_mb", info.Size()>>20),
			slog.Int("chunk_size", r.cfg.ChunkSize))
	}

	chunkRows, chunks := 0, 0
	row := make([]string, len(keep))
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, errInvalidUTF8) {
				return nil, err
			}
			return nil, apperrors.NewParsingError("failed to read record", err).
				WithContext("file", path)
		}

		empty := true
		for i, idx := range keep {
			v := ""
			if idx < len(record) {
				v = normalizeNull(record[idx])
			}
			row[i] = v
			if v != "" {
				empty = false
			}
		}
		if empty {
			continue
		}

		builder.AppendRow(row)
		chunkRows++
		if chunkRows >= r.cfg.ChunkSize {
			chunkRows = 0
			chunks++
			if large && chunks%r.cfg.GCChunkInterval == 0 {
				runtime.GC()
			}
		}
	}

	table := builder.Build()

	if r.cfg.MemoryOptimize {
		encoded := table.Optimize(maxCardinalityRatio)
		if encoded > 0 {
			r.logger.Debug("dictionary-encoded low-cardinality columns",
				slog.String("file", path),
				slog.Int("column_count", encoded))
		}
	}

	r.logger.Info("loaded table",
		slog.String("file", path),
		slog.String("table", string(tableType)),
		slog.Int("rows", table.NumRows()),
		slog.Int("columns", table.NumColumns()))

	return table, nil
}

func (r *Reader) delimiter() rune {
	if r.cfg.Delimiter == "" {
		return '$'
	}
	d, _ := utf8.DecodeRuneInString(r.cfg.Delimiter)
	return d
}

// projectColumns returns the header indices whose names case-insensitively
// match one of the wanted columns, in wanted order.
func projectColumns(header, wanted []string) []int {
	var keep []int
	seen := make(map[int]bool)
	for _, w := range wanted {
		for i, h := range header {
			if strings.EqualFold(h, w) && !seen[i] {
				keep = append(keep, i)
				seen[i] = true
				break
			}
		}
	}
	return keep
}

// normalizeNull maps the conventional null tokens to the empty string.
func normalizeNull(v string) string {
	v = strings.TrimSpace(v)
	if v == "NULL" || v == "null" {
		return ""
	}
	return v
}

// utf8Validator passes bytes through unchanged but fails the stream on
// the first invalid UTF-8 sequence, so the caller can retry with a
// lossless fallback encoding.
type utf8Validator struct {
	transform.NopResetter
}

func (utf8Validator) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c, size := utf8.DecodeRune(src[nSrc:])
		if c == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			return nDst, nSrc, errInvalidUTF8
		}
		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		copy(dst[nDst:], src[nSrc:nSrc+size])
		nDst += size
		nSrc += size
	}
	return nDst, nSrc, nil
}
