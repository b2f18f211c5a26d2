package dates

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cryptofmv/logger"
	"cryptofmv/models"
)

const utf8BOM = "\ufeff"

// Extractor reads the transaction date of CSV rows from an ordered list of
// candidate columns.
type Extractor struct {
	columns []string
	log     *logger.Log
}

// NewExtractor returns an extractor trying columns in order.
func NewExtractor(columns []string) *Extractor {
	return &Extractor{columns: columns, log: logger.GetLogger()}
}

// Summary describes one scanned file.
type Summary struct {
	Rows    int
	Skipped int
	Dates   []models.Date
}

// Header maps column names to indexes. A leading byte-order mark on the
// first column is dropped.
func Header(record []string) map[string]int {
	idx := make(map[string]int, len(record))
	for i, name := range record {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

// NewReader returns a lenient CSV reader for wallet exports.
func NewReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

// Value returns the first non-empty cell among the candidate columns.
func (e *Extractor) Value(header map[string]int, record []string) (string, bool) {
	for _, col := range e.columns {
		i, ok := header[col]
		if !ok || i >= len(record) {
			continue
		}
		if v := strings.TrimSpace(record[i]); v != "" {
			return v, true
		}
	}
	return "", false
}

// Distinct scans a CSV file and returns its sorted distinct transaction
// dates. Rows without a parseable date are logged and skipped.
func (e *Extractor) Distinct(path string) (Summary, error) {
	log := e.log.WithComponent("date_extractor").WithFields(logger.Fields{"file": filepath.Base(path)})

	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := NewReader(f)
	first, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Summary{}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("read header of %s: %w", path, err)
	}
	header := Header(first)

	var sum Summary
	seen := make(map[models.Date]bool)
	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Summary{}, fmt.Errorf("read %s line %d: %w", path, line, err)
		}
		sum.Rows++

		value, ok := e.Value(header, record)
		if !ok {
			sum.Skipped++
			log.WithFields(logger.Fields{"line": line}).Warn("row has no date")
			continue
		}
		d, err := Parse(value)
		if err != nil {
			sum.Skipped++
			log.WithError(err).WithFields(logger.Fields{"line": line}).Warn("failed to parse date")
			continue
		}
		if !seen[d] {
			seen[d] = true
			sum.Dates = append(sum.Dates, d)
		}
	}

	models.SortDates(sum.Dates)
	return sum, nil
}
