package reports

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptofmv/config"
	"cryptofmv/internal/dates"
	"cryptofmv/internal/fsutil"
	"cryptofmv/logger"
)

// YearSummary aggregates one wallet's transactions for a calendar year.
type YearSummary struct {
	Wallet   string
	Year     int
	Total    int
	Incoming decimal.Decimal
	Outgoing decimal.Decimal
	Fees     decimal.Decimal
	Large    int
}

// Net is incoming minus outgoing.
func (s YearSummary) Net() decimal.Decimal {
	return s.Incoming.Sub(s.Outgoing)
}

// Columns names the transaction export fields used by Summarize.
type Columns struct {
	Date   *dates.Extractor
	Amount string
	Fee    string
	Type   string
}

// Summarize groups rows by transaction year. Rows without a usable date
// are counted in skipped and left out.
func Summarize(wallet string, header []string, rows [][]string, cols Columns, large decimal.Decimal, places int32) (out []YearSummary, skipped int) {
	t := &table{header: header, index: dates.Header(header), rows: rows}
	byYear := make(map[int]*YearSummary)
	for _, row := range t.rows {
		raw, ok := cols.Date.Value(t.index, row)
		if !ok {
			skipped++
			continue
		}
		d, err := dates.Parse(raw)
		if err != nil {
			skipped++
			continue
		}
		s, ok := byYear[d.Year]
		if !ok {
			s = &YearSummary{Wallet: wallet, Year: d.Year}
			byYear[d.Year] = s
		}

		amount := parseAmount(t.cell(row, cols.Amount))
		s.Total++
		switch strings.ToUpper(strings.TrimSpace(t.cell(row, cols.Type))) {
		case "IN":
			s.Incoming = s.Incoming.Add(amount)
		case "OUT":
			s.Outgoing = s.Outgoing.Add(amount)
		}
		s.Fees = s.Fees.Add(parseAmount(t.cell(row, cols.Fee)))
		if amount.GreaterThanOrEqual(large) {
			s.Large++
		}
	}

	for _, s := range byYear {
		s.Incoming = s.Incoming.Round(places)
		s.Outgoing = s.Outgoing.Round(places)
		s.Fees = s.Fees.Round(places)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, skipped
}

func parseAmount(s string) decimal.Decimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Reporter writes yearly summaries for the latest export of each wallet.
type Reporter struct {
	inputDir  string
	outputDir string
	logDir    string
	cfg       config.ReportsConfig
	cols      Columns
	now       func() time.Time
	log       *logger.Log
}

// NewReporter builds a reporter from the configuration.
func NewReporter(cfg *config.Config) *Reporter {
	return &Reporter{
		inputDir:  cfg.Paths.CSVDir,
		outputDir: cfg.Paths.ReportsDir,
		logDir:    cfg.Paths.LogDir,
		cfg:       cfg.Reports,
		cols: Columns{
			Date:   dates.NewExtractor(cfg.Input.DateColumns),
			Amount: cfg.Reports.AmountColumn,
			Fee:    cfg.Reports.FeeColumn,
			Type:   cfg.Reports.TypeColumn,
		},
		now: time.Now,
		log: logger.GetLogger(),
	}
}

// Run summarises every wallet and returns the summaries written.
func (r *Reporter) Run(ctx context.Context) ([]YearSummary, error) {
	log := r.log.WithComponent("tax_report")

	files, err := LatestByWallet(r.inputDir, r.cfg.TransactionPrefix)
	if err != nil {
		return nil, err
	}

	large := decimal.NewFromFloat(r.cfg.LargeThreshold)
	var all []YearSummary
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		flog := log.WithFields(logger.Fields{"wallet": f.Wallet, "file": filepath.Base(f.Path)})

		t, err := readTable(f.Path)
		if err != nil {
			flog.WithError(err).Error("failed to read transactions")
			continue
		}
		summaries, skipped := Summarize(f.Wallet, t.header, t.rows, r.cols, large, r.cfg.Decimals)
		if skipped > 0 {
			flog.WithFields(logger.Fields{"skipped": skipped}).Warn("rows without a usable date")
		}

		for _, s := range summaries {
			if err := r.write(s); err != nil {
				flog.WithError(err).WithFields(logger.Fields{"year": s.Year}).Error("failed to write summary")
				continue
			}
			flog.WithFields(logger.Fields{
				"year":     s.Year,
				"total":    s.Total,
				"incoming": s.Incoming.String(),
				"outgoing": s.Outgoing.String(),
				"fees":     s.Fees.String(),
			}).Info("yearly summary written")
			all = append(all, s)
		}
	}
	return all, nil
}

func (r *Reporter) write(s YearSummary) error {
	csvPath := filepath.Join(r.outputDir, fmt.Sprintf("cra_%s_%d.csv", s.Wallet, s.Year))
	header := []string{"wallet_id", "year", "total_txs", "incoming", "outgoing", "fees", "net_movement", "large_txs"}
	row := []string{
		s.Wallet,
		strconv.Itoa(s.Year),
		strconv.Itoa(s.Total),
		s.Incoming.String(),
		s.Outgoing.String(),
		s.Fees.String(),
		s.Net().String(),
		strconv.Itoa(s.Large),
	}
	if err := writeTable(csvPath, header, [][]string{row}); err != nil {
		return err
	}

	txtPath := filepath.Join(r.logDir, fmt.Sprintf("report_%s_%d.txt", s.Wallet, s.Year))
	return fsutil.WriteFileAtomic(txtPath, []byte(r.humanReport(s)), 0o644)
}

func (r *Reporter) humanReport(s YearSummary) string {
	rule := strings.Repeat("=", 46)
	sub := strings.Repeat("-", 28)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nTRANSACTION TAX REPORT - %d\n%s\n", rule, s.Year, rule)
	fmt.Fprintf(&b, "Wallet: %s\nReport Generated: %s\n\n", s.Wallet, r.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%s\nTRANSACTION SUMMARY\n%s\n", sub, sub)
	fmt.Fprintf(&b, "Total Transactions: %12d\n", s.Total)
	fmt.Fprintf(&b, "Incoming:           %12s\n", s.Incoming.String())
	fmt.Fprintf(&b, "Outgoing:           %12s\n", s.Outgoing.String())
	fmt.Fprintf(&b, "Fees Paid:          %12s\n", s.Fees.String())
	fmt.Fprintf(&b, "Net Movement:       %12s\n\n", s.Net().String())
	fmt.Fprintf(&b, "Large Transactions (>= %s): %6d\n%s\n", decimal.NewFromFloat(r.cfg.LargeThreshold).String(), s.Large, rule)
	return b.String()
}
