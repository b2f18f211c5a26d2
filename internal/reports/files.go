// Package reports maintains the CRA report CSVs: filling N/A values from
// the rate cache and producing yearly transaction summaries.
package reports

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// WalletFile is the newest export of one wallet.
type WalletFile struct {
	Path   string
	Wallet string
	Stamp  string
}

// LatestByWallet scans dir for <prefix>_<wallet>_<YYYYMMDD_HHMMSS>.csv and
// returns the newest file per wallet, ordered by wallet.
func LatestByWallet(dir, prefix string) ([]WalletFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read reports directory %s: %w", dir, err)
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(.+?)_(\d{8}_\d{6})\.csv$`)
	latest := make(map[string]WalletFile)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		f := WalletFile{Path: filepath.Join(dir, e.Name()), Wallet: m[1], Stamp: m[2]}
		if cur, ok := latest[f.Wallet]; !ok || f.Stamp > cur.Stamp {
			latest[f.Wallet] = f
		}
	}

	out := make([]WalletFile, 0, len(latest))
	for _, f := range latest {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out, nil
}
