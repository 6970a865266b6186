package seo

import (
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Dataset is one immutable snapshot of the crawl export.
type Dataset struct {
	Columns  []string
	Rows     [][]string
	Source   string
	LoadedAt time.Time

	index map[string]int
}

type derivation struct {
	column string
	from   string
	fn     func(string) string
}

// Columns computed when the export lacks them but has their source column.
var derivations = []derivation{
	{column: "Protocol", from: "Address", fn: protocolOf},
	{column: "Title 1 Length", from: "Title 1", fn: runeLength},
	{column: "Meta Description 1 Length", from: "Meta Description 1", fn: runeLength},
	{column: "H1-1 Length", from: "H1-1", fn: runeLength},
}

// NewDataset indexes columns and adds derived columns. Short rows are padded,
// long rows truncated, so every row has len(Columns) cells.
func NewDataset(columns []string, rows [][]string, source string) *Dataset {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = strings.TrimSpace(c)
	}
	if len(cols) > 0 {
		cols[0] = strings.TrimPrefix(cols[0], "\ufeff")
	}

	d := &Dataset{Columns: cols, Source: source, LoadedAt: time.Now().UTC()}
	d.reindex()

	d.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		row := make([]string, len(cols))
		copy(row, r)
		d.Rows = append(d.Rows, row)
	}

	for _, dv := range derivations {
		if d.Has(dv.column) || !d.Has(dv.from) {
			continue
		}
		src := d.index[dv.from]
		d.Columns = append(d.Columns, dv.column)
		for i, row := range d.Rows {
			d.Rows[i] = append(row, dv.fn(row[src]))
		}
		d.reindex()
	}
	return d
}

func (d *Dataset) reindex() {
	d.index = make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		if _, dup := d.index[c]; !dup {
			d.index[c] = i
		}
	}
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

func (d *Dataset) Has(column string) bool {
	_, ok := d.index[column]
	return ok
}

// Value returns the cell of row i in column, or "" when the column is absent.
func (d *Dataset) Value(i int, column string) string {
	c, ok := d.index[column]
	if !ok {
		return ""
	}
	return d.Rows[i][c]
}

func protocolOf(address string) string {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil || u.Scheme == "" {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

func runeLength(s string) string {
	return strconv.Itoa(utf8.RuneCountInString(strings.TrimSpace(s)))
}
