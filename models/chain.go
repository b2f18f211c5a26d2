package models

import "fmt"

// ChainProfile describes how one blockchain is priced. It is resolved once
// per input file and is never mutated afterwards.
type ChainProfile struct {
	Name       string
	FeedID     string
	Currency   string
	FilePrefix string
}

// NewChainProfile builds a profile and derives its cache file prefix.
func NewChainProfile(name, feedID, currency string) ChainProfile {
	return ChainProfile{
		Name:       name,
		FeedID:     feedID,
		Currency:   currency,
		FilePrefix: fmt.Sprintf("historical_fmv_%s_%s", name, currency),
	}
}
