package reports

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"cryptofmv/internal/dates"
	"cryptofmv/internal/fsutil"
)

// table is a whole CSV file held in memory.
type table struct {
	header []string
	index  map[string]int
	rows   [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := dates.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &table{index: map[string]int{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &table{header: header, index: dates.Header(header)}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.rows)+2, err)
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func (t *table) has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// cell returns the value in col, or "" when the row is short.
func (t *table) cell(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (t *table) set(row []string, col, value string) []string {
	i := t.index[col]
	for len(row) <= i {
		row = append(row, "")
	}
	row[i] = value
	return row
}

func writeTable(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// EachRow streams the data rows of a CSV file with its header index.
func EachRow(path string, fn func(header map[string]int, row []string)) error {
	t, err := readTable(path)
	if err != nil {
		return err
	}
	for _, row := range t.rows {
		fn(t.index, row)
	}
	return nil
}
