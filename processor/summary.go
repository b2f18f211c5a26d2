package processor

import (
	"sort"
	"sync"

	"cryptofmv/internal/pricing"
	"cryptofmv/logger"
)

// ChainResult counts fetch outcomes for one chain in a run.
type ChainResult struct {
	Chain        string
	RatesFound   int
	Missing      int
	Cached       int
	KnownMissing int
	ByReason     map[pricing.Reason]int
}

// RunSummary describes a coordinator run.
type RunSummary struct {
	RunID     string
	Files     int
	Processed int
	Skipped   int
	Failed    int
	Chains    []ChainResult
}

type tally struct {
	mu     sync.Mutex
	chains map[string]*ChainResult
}

func newTally() *tally {
	return &tally{chains: make(map[string]*ChainResult)}
}

func (t *tally) chain(name string) *ChainResult {
	r, ok := t.chains[name]
	if !ok {
		r = &ChainResult{Chain: name, ByReason: make(map[pricing.Reason]int)}
		t.chains[name] = r
	}
	return r
}

// record counts one performed fetch. Results shared through the in-flight
// group are not counted again.
func (t *tally) record(chain string, res pricing.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.chain(chain)
	if res.Found {
		r.RatesFound++
		return
	}
	r.Missing++
	r.ByReason[res.Reason]++
}

func (t *tally) partition(chain string, cached, knownMissing int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.chain(chain)
	r.Cached += cached
	r.KnownMissing += knownMissing
}

func (t *tally) results() []ChainResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ChainResult, 0, len(t.chains))
	for _, r := range t.chains {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out
}

func logChainResults(log *logger.Entry, component string, results []ChainResult) {
	for _, r := range results {
		fields := logger.Fields{
			"chain":         r.Chain,
			"rates_found":   r.RatesFound,
			"missing":       r.Missing,
			"cached":        r.Cached,
			"known_missing": r.KnownMissing,
		}
		for _, reason := range pricing.Reasons {
			if n := r.ByReason[reason]; n > 0 {
				fields["missing_"+string(reason)] = n
			}
		}
		log.WithFields(fields).Info("chain results")

		log.LogMetric(component, "rates_found", r.RatesFound, "counter", logger.Fields{"chain": r.Chain})
		log.LogMetric(component, "dates_missing", r.Missing, "counter", logger.Fields{"chain": r.Chain})
	}
}
