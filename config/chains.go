package config

import (
	"fmt"
	"regexp"
	"strings"

	"cryptofmv/models"
)

// DefaultChains is the built-in filename-to-feed table. Order matters: the
// first rule with a matching pattern wins, so short patterns such as "op"
// sit after the chains whose names contain them.
func DefaultChains() []ChainRule {
	return []ChainRule{
		{Name: "opbnb", Patterns: []string{"opbnb"}, ID: "opbnb", Currency: "cad"},
		{Name: "scroll", Patterns: []string{"scroll", "scr"}, ID: "scroll", Currency: "cad"},
		{Name: "bsc", Patterns: []string{"bsc", "binance"}, ID: "binancecoin", Currency: "cad"},
		{Name: "sol", Patterns: []string{"sol", "solana"}, ID: "solana", Currency: "cad"},
		{Name: "base", Patterns: []string{"base"}, ID: "base", Currency: "cad"},
		{Name: "arb", Patterns: []string{"arb", "arbitrum"}, ID: "arbitrum", Currency: "cad"},
		{Name: "eth", Patterns: []string{"eth", "ethereum"}, ID: "ethereum", Currency: "cad"},
		{Name: "ton", Patterns: []string{"ton"}, ID: "the-open-network", Currency: "cad"},
		{Name: "op", Patterns: []string{"op", "opt", "opti", "optimism"}, ID: "optimism", Currency: "cad"},
		{Name: "lin", Patterns: []string{"lin", "linea"}, ID: "linea", Currency: "cad"},
		{Name: "sonic", Patterns: []string{"sonic"}, ID: "sonic", Currency: "cad"},
		{Name: "zksync", Patterns: []string{"zksync"}, ID: "zksync", Currency: "cad"},
	}
}

// Profile converts the rule into the immutable per-file chain profile.
func (r ChainRule) Profile() models.ChainProfile {
	return models.NewChainProfile(strings.ToLower(r.Name), r.ID, strings.ToLower(r.Currency))
}

func validateChains(rules []ChainRule) error {
	if len(rules) == 0 {
		return fmt.Errorf("chains must not be empty")
	}
	seen := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		if rule.Name == "" || rule.ID == "" || rule.Currency == "" {
			return fmt.Errorf("chains[%d]: name, id and currency are required", i)
		}
		if len(rule.Patterns) == 0 {
			return fmt.Errorf("chains[%d] (%s): at least one pattern is required", i, rule.Name)
		}
		for _, p := range rule.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("chains[%d] (%s): invalid pattern %q: %w", i, rule.Name, p, err)
			}
		}
		key := strings.ToLower(rule.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("chains[%d]: duplicate chain name %q", i, rule.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
