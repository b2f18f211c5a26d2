package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptofmv/config"
)

func TestClassifyDefaultRules(t *testing.T) {
	c, err := NewClassifier(config.DefaultChains())
	require.NoError(t, err)

	tests := []struct {
		file  string
		chain string
		id    string
	}{
		{"CSV_Files/opBNB_wallet_export.csv", "opbnb", "opbnb"},
		{"ton_transactions_UQabc_20240101_120000.csv", "ton", "the-open-network"},
		{"Solana-History.CSV", "sol", "solana"},
		{"export-ETH-0xabc.csv", "eth", "ethereum"},
		{"optimism_tx.csv", "op", "optimism"},
		{"BSC_tokens.csv", "bsc", "binancecoin"},
		{"linea.csv", "lin", "linea"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			p, ok := c.Classify(tt.file)
			require.True(t, ok)
			assert.Equal(t, tt.chain, p.Name)
			assert.Equal(t, tt.id, p.FeedID)
			assert.Equal(t, "cad", p.Currency)
			assert.Equal(t, "historical_fmv_"+tt.chain+"_cad", p.FilePrefix)
		})
	}
}

func TestClassifyNoMatch(t *testing.T) {
	c, err := NewClassifier(config.DefaultChains())
	require.NoError(t, err)
	_, ok := c.Classify("random_wallet.csv")
	assert.False(t, ok)
}

func TestClassifyFirstRuleWins(t *testing.T) {
	c, err := NewClassifier([]config.ChainRule{
		{Name: "first", Patterns: []string{"wallet"}, ID: "a", Currency: "usd"},
		{Name: "second", Patterns: []string{"wallet"}, ID: "b", Currency: "usd"},
	})
	require.NoError(t, err)
	p, ok := c.Classify("my_wallet.csv")
	require.True(t, ok)
	assert.Equal(t, "first", p.Name)
	assert.Len(t, c.Profiles(), 2)
}

func TestNewClassifierRejectsBadPattern(t *testing.T) {
	_, err := NewClassifier([]config.ChainRule{{Name: "x", Patterns: []string{"("}, ID: "x", Currency: "cad"}})
	assert.Error(t, err)
}
