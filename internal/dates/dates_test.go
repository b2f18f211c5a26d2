package dates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptofmv/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1705320000", "2024-01-15"},
		{"1705320000000", "2024-01-15"},
		{"2024-01-15T23:59:59Z", "2024-01-15"},
		{"2024-01-15T22:00:00-05:00", "2024-01-15"},
		{"2024-01-16T01:00:00+09:00", "2024-01-16"},
		{"2024-01-15 22:30:00 -0500", "2024-01-15"},
		{"2024-01-15T10:00:00.123Z", "2024-01-15"},
		{"2024-01-15T10:00:00", "2024-01-15"},
		{"2024-01-15 10:00:00 UTC", "2024-01-15"},
		{"2024-01-15 10:00:00", "2024-01-15"},
		{"2024-01-15", "2024-01-15"},
		{"2024/01/15", "2024-01-15"},
		{"Jan 15, 2024", "2024-01-15"},
		{"  2024-01-15  ", "2024-01-15"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "15/45/2024"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tx.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDistinctUsesFirstNonEmptyColumn(t *testing.T) {
	path := writeCSV(t, "\ufeffDate (UTC),Block Time,Amount\n"+
		"2024-01-02 10:00:00,,1\n"+
		",1704067200,2\n"+
		"2024-01-02T23:00:00Z,,3\n"+
		"not a date,,4\n"+
		",,5\n")

	sum, err := NewExtractor([]string{"Date (UTC)", "DateTime (UTC)", "Block Time", "Human Time"}).Distinct(path)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Rows)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, []models.Date{models.MustParseDate("2024-01-01"), models.MustParseDate("2024-01-02")}, sum.Dates)
}

func TestDistinctEmptyFile(t *testing.T) {
	sum, err := NewExtractor([]string{"Date (UTC)"}).Distinct(writeCSV(t, ""))
	require.NoError(t, err)
	assert.Empty(t, sum.Dates)
}

func TestDistinctMissingFile(t *testing.T) {
	_, err := NewExtractor([]string{"Date (UTC)"}).Distinct(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}
