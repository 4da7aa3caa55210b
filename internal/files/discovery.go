package files

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TableType identifies one of the six source extract types within a quarter.
type TableType string

const (
	TableDemo TableType = "DEMO"
	TableReac TableType = "REAC"
	TableDrug TableType = "DRUG"
	TableOutc TableType = "OUTC"
	TableTher TableType = "THER"
	TableIndi TableType = "INDI"
)

// AllTableTypes lists every table type a quarter folder may contain.
var AllTableTypes = []TableType{TableDemo, TableReac, TableDrug, TableOutc, TableTher, TableIndi}

// quarterPattern matches quarterly folder names like faers_ascii_2024q1.
var quarterPattern = regexp.MustCompile(`(?i)^faers_ascii_(\d{4})q([1-4])$`)

// QuarterFolder represents one discovered quarterly source folder.
type QuarterFolder struct {
	Path    string
	Name    string
	Year    int
	Quarter int
}

// Discovery locates quarterly source folders and their table files.
type Discovery struct {
	rawDir string
	logger *slog.Logger
}

// NewDiscovery creates a new discovery instance rooted at rawDir.
func NewDiscovery(rawDir string, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{rawDir: rawDir, logger: logger}
}

// DiscoverQuarters returns all quarterly folders under the raw directory,
// sorted lexicographically (chronological for this naming convention).
func (d *Discovery) DiscoverQuarters() ([]QuarterFolder, error) {
	entries, err := os.ReadDir(d.rawDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw data directory %s: %w", d.rawDir, err)
	}

	var quarters []QuarterFolder
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		m := quarterPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		year, _ := strconv.Atoi(m[1])
		quarter, _ := strconv.Atoi(m[2])
		quarters = append(quarters, QuarterFolder{
			Path:    filepath.Join(d.rawDir, entry.Name()),
			Name:    entry.Name(),
			Year:    year,
			Quarter: quarter,
		})
	}

	sort.Slice(quarters, func(i, j int) bool {
		return strings.ToLower(quarters[i].Name) < strings.ToLower(quarters[j].Name)
	})

	d.logger.Info("discovered quarterly folders",
		slog.String("raw_dir", d.rawDir),
		slog.Int("quarter_count", len(quarters)))

	return quarters, nil
}

// ResolveQuarterFiles locates the table files within a quarter folder.
// Each table type resolves to its file path, or "" when no candidate
// exists; a missing file is reported, never an error.
func (d *Discovery) ResolveQuarterFiles(quarter QuarterFolder) (map[TableType]string, error) {
	resolved := make(map[TableType]string, len(AllTableTypes))
	for _, tt := range AllTableTypes {
		resolved[tt] = ""
	}

	asciiDir, err := findASCIIDir(quarter.Path)
	if err != nil {
		return resolved, err
	}
	if asciiDir == "" {
		d.logger.Warn("no ascii subdirectory found", slog.String("quarter", quarter.Name))
		return resolved, nil
	}

	entries, err := os.ReadDir(asciiDir)
	if err != nil {
		return resolved, fmt.Errorf("failed to read ascii directory %s: %w", asciiDir, err)
	}

	// Case-insensitive lookup of actual file names.
	byLower := make(map[string]string, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			byLower[strings.ToLower(entry.Name())] = entry.Name()
		}
	}

	yy := fmt.Sprintf("%02d", quarter.Year%100)
	for _, tt := range AllTableTypes {
		candidates := []string{
			fmt.Sprintf("%s%sQ%d.txt", tt, yy, quarter.Quarter),           // DEMO24Q1.txt
			fmt.Sprintf("%s%dQ%d.txt", tt, quarter.Year, quarter.Quarter), // DEMO2024Q1.txt
		}

		for _, candidate := range candidates {
			if name, ok := byLower[strings.ToLower(candidate)]; ok {
				resolved[tt] = filepath.Join(asciiDir, name)
				break
			}
		}

		if resolved[tt] == "" {
			d.logger.Debug("table file not found",
				slog.String("quarter", quarter.Name),
				slog.String("table", string(tt)))
		}
	}

	return resolved, nil
}

// findASCIIDir locates the case-insensitively named "ascii" subdirectory.
func findASCIIDir(quarterPath string) (string, error) {
	entries, err := os.ReadDir(quarterPath)
	if err != nil {
		return "", fmt.Errorf("failed to read quarter directory %s: %w", quarterPath, err)
	}

	for _, entry := range entries {
		if entry.IsDir() && strings.EqualFold(entry.Name(), "ascii") {
			return filepath.Join(quarterPath, entry.Name()), nil
		}
	}

	return "", nil
}
