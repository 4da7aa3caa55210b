package dataprocessing

import (
	"strings"
)

// Table is an in-memory tabular extract with untyped string cells.
// An empty string cell is the null value.
type Table struct {
	columns []Column
	byName  map[string]int
	rows    int
}

// Column is one named column of a Table.
type Column interface {
	Name() string
	Len() int
	Value(row int) string
}

// stringColumn stores values directly.
type stringColumn struct {
	name   string
	values []string
}

func (c *stringColumn) Name() string         { return c.name }
func (c *stringColumn) Len() int             { return len(c.values) }
func (c *stringColumn) Value(row int) string { return c.values[row] }

// dictColumn stores low-cardinality values as codes into an interned
// value table. Purely a memory optimization; observed values are identical
// to the plain representation.
type dictColumn struct {
	name  string
	codes []int32
	dict  []string
}

func (c *dictColumn) Name() string         { return c.name }
func (c *dictColumn) Len() int             { return len(c.codes) }
func (c *dictColumn) Value(row int) string { return c.dict[c.codes[row]] }

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int { return t.rows }

// NumColumns returns the number of columns in the table.
func (t *Table) NumColumns() int { return len(t.columns) }

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name()
	}
	return names
}

// Column returns the named column, or false when absent.
// Lookup is case-sensitive; schema aliasing happens in the normalizer.
func (t *Table) Column(name string) (Column, bool) {
	idx, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.columns[idx], true
}

// Value returns the cell at (row, column name), or "" when the column is
// absent.
func (t *Table) Value(row int, name string) string {
	col, ok := t.Column(name)
	if !ok {
		return ""
	}
	return col.Value(row)
}

// Optimize dictionary-encodes every column whose unique-value ratio is
// below maxCardinalityRatio. Returns the number of columns encoded.
func (t *Table) Optimize(maxCardinalityRatio float64) int {
	if t.rows == 0 {
		return 0
	}

	encoded := 0
	for i, col := range t.columns {
		sc, ok := col.(*stringColumn)
		if !ok {
			continue
		}

		index := make(map[string]int32)
		codes := make([]int32, len(sc.values))
		var dict []string
		for row, v := range sc.values {
			code, seen := index[v]
			if !seen {
				code = int32(len(dict))
				index[v] = code
				dict = append(dict, v)
			}
			codes[row] = code
		}

		if float64(len(dict))/float64(t.rows) < maxCardinalityRatio {
			t.columns[i] = &dictColumn{name: sc.name, codes: codes, dict: dict}
			encoded++
		}
	}
	return encoded
}

// TableBuilder accumulates rows into a Table one chunk at a time.
type TableBuilder struct {
	names  []string
	values [][]string
}

// NewTableBuilder creates a builder for the given column names.
// Names are trimmed of surrounding whitespace.
func NewTableBuilder(names []string) *TableBuilder {
	clean := make([]string, len(names))
	values := make([][]string, len(names))
	for i, n := range names {
		clean[i] = strings.TrimSpace(n)
		values[i] = []string{}
	}
	return &TableBuilder{names: clean, values: values}
}

// AppendRow appends one row. Short rows are padded with nulls; extra
// fields are dropped.
func (b *TableBuilder) AppendRow(row []string) {
	for i := range b.names {
		if i < len(row) {
			b.values[i] = append(b.values[i], row[i])
		} else {
			b.values[i] = append(b.values[i], "")
		}
	}
}

// NumRows returns the number of rows appended so far.
func (b *TableBuilder) NumRows() int {
	if len(b.values) == 0 {
		return 0
	}
	return len(b.values[0])
}

// Build finalizes the accumulated rows into a Table.
func (b *TableBuilder) Build() *Table {
	columns := make([]Column, len(b.names))
	byName := make(map[string]int, len(b.names))
	for i, name := range b.names {
		columns[i] = &stringColumn{name: name, values: b.values[i]}
		byName[name] = i
	}
	return &Table{columns: columns, byName: byName, rows: b.NumRows()}
}
