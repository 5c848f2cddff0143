package export

import "fmt"

// Column maps a row key to its printed heading.
type Column struct {
	Key   string
	Title string
	// Width is a relative weight used by the PDF renderer. Zero means 1.
	Width float64
}

// Table is tabular report content shared by the CSV and PDF renderers.
type Table struct {
	Title    string
	Subtitle string
	Columns  []Column
	Rows     []map[string]string
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("table requires at least one column")
	}
	return nil
}

func (t Table) record(row map[string]string) []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = row[col.Key]
	}
	return out
}
