package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRegistry struct {
	aliases   []string
	negatives []string
}

func (r fakeRegistry) Aliases(string) []string       { return r.aliases }
func (r fakeRegistry) NegativeTerms(string) []string { return r.negatives }

func TestQuoteIfPhraseOrProper(t *testing.T) {
	assert.Equal(t, "BTC", QuoteIfPhraseOrProper("BTC"))
	assert.Equal(t, `"Bitcoin"`, QuoteIfPhraseOrProper("Bitcoin"))
	assert.Equal(t, `"Solana Labs"`, QuoteIfPhraseOrProper("Solana Labs"))
	assert.Equal(t, "", QuoteIfPhraseOrProper(""))
}

func TestBuilderCoreBoolean(t *testing.T) {
	registry := fakeRegistry{
		aliases:   []string{"Solana Labs"},
		negatives: []string{"solar", "peru"},
	}
	b := NewBuilder(registry, DefaultBuildParams())
	query := strings.ToLower(b.BuildCoreBoolean("SOL"))

	assert.Contains(t, query, `sol or solana or "solana labs"`)
	assert.Contains(t, query, "crypto or cryptocurrency")
	assert.Contains(t, query, "not (solar or peru)")
}

func TestBuilderCoreBooleanNoContext(t *testing.T) {
	registry := fakeRegistry{}
	b := NewBuilder(registry, BuildParams{RequireCryptoContext: false})
	query := b.BuildCoreBoolean("BTC")

	assert.Contains(t, query, "Bitcoin")
	assert.NotContains(t, query, "crypto")
}

func TestBuilderForGDELT(t *testing.T) {
	registry := fakeRegistry{aliases: []string{"Solana Labs"}}
	b := NewBuilder(registry, DefaultBuildParams())
	query := b.BuildForGDELT("DOT")

	assert.Contains(t, query, "Polkadot")
}

func TestBuilderForRSS(t *testing.T) {
	registry := fakeRegistry{aliases: []string{"Solana Labs"}}
	b := NewBuilder(registry, DefaultBuildParams())
	query := b.BuildForRSS("ETH", "2025-10-01", "2025-10-02")

	assert.Contains(t, query, "after:2025-10-01 before:2025-10-02")
	assert.Contains(t, query, "Ethereum")
}

func TestBuilderNilRegistry(t *testing.T) {
	b := NewBuilder(nil, DefaultBuildParams())
	query := b.BuildCoreBoolean("ADA")

	assert.Contains(t, query, "ADA")
	assert.NotContains(t, query, "NOT")
}
