// Package query builds the boolean search strings consumed by the GDELT
// adapter, plus a Google News variant (BuildForRSS) that the Google News RSS
// adapter does not call, since it builds its own query (spec.md §4.1), grounded on
// features/news/application/news_query_builder.py and
// features/news/infrastructure/search_query.py.
package query

import (
	"fmt"
	"strings"
)

// AssetRegistry supplies the per-asset aliases and negative terms a query
// is built from. A nil registry behaves like the original's
// AssetRegistryPortNull: no aliases, no negatives.
type AssetRegistry interface {
	Aliases(assetSymbol string) []string
	NegativeTerms(assetSymbol string) []string
}

var cryptoContextTerms = []string{"crypto", "cryptocurrency", "blockchain", "token", "defi", "nft"}

// BuildParams parametrizes query construction.
type BuildParams struct {
	RequireCryptoContext bool
}

// DefaultBuildParams matches the original's QueryBuildParams defaults.
func DefaultBuildParams() BuildParams {
	return BuildParams{RequireCryptoContext: true}
}

// Builder builds GDELT and Google News RSS query strings for an asset.
type Builder struct {
	registry AssetRegistry
	params   BuildParams
}

// NewBuilder constructs a Builder. A nil registry yields empty aliases/negatives.
func NewBuilder(registry AssetRegistry, params BuildParams) *Builder {
	return &Builder{registry: registry, params: params}
}

func (b *Builder) aliases(assetSymbol string) []string {
	if b.registry == nil {
		return nil
	}
	return b.registry.Aliases(assetSymbol)
}

func (b *Builder) negativeTerms(assetSymbol string) []string {
	if b.registry == nil {
		return nil
	}
	return b.registry.NegativeTerms(assetSymbol)
}

// symbolSynonyms mirrors search_query.py's _symbol_synonyms: the raw
// symbol plus its upper/lower forms, plus a hard-coded proper-noun synonym
// for the four assets the original special-cases.
func symbolSynonyms(symbol string) []string {
	sym := strings.TrimSpace(symbol)
	if sym == "" {
		return nil
	}
	out := []string{sym, strings.ToUpper(sym), strings.ToLower(sym)}
	switch strings.ToUpper(sym) {
	case "BTC":
		out = append(out, "Bitcoin")
	case "ETH":
		out = append(out, "Ethereum")
	case "DOT":
		out = append(out, "Polkadot")
	case "SOL":
		out = append(out, "Solana")
	}
	return normTerms(out)
}

// normTerms trims, drops blanks, and de-duplicates case-insensitively while
// preserving first-seen casing and order (search_query.py's _norm_terms).
func normTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// renderTerm quotes only multi-word phrases; short tokens/symbols (BTC,
// SOL, Bitcoin) are left unquoted, matching search_query.py's _render_term.
func renderTerm(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if strings.Contains(t, " ") {
		return fmt.Sprintf("%q", t)
	}
	return t
}

// QuoteIfPhraseOrProper quotes phrases (containing a space) and a small set
// of single-word proper nouns (Bitcoin, Ethereum, Polkadot, Solana).
//
// This is kept as a standalone helper for parity with the original's
// _quote_if_phrase_or_proper, but note it is NOT used by the boolean-core
// builders below — those call renderTerm, which only quotes phrases. The
// original python exposes both functions but only wires renderTerm's
// equivalent into the actual query path; single-word proper nouns like
// "Bitcoin" appear unquoted in real GDELT/RSS queries.
func QuoteIfPhraseOrProper(term string) string {
	t := strings.TrimSpace(term)
	if t == "" {
		return ""
	}
	if strings.Contains(t, " ") {
		return fmt.Sprintf("%q", t)
	}
	switch strings.ToLower(t) {
	case "bitcoin", "ethereum", "polkadot", "solana":
		return fmt.Sprintf("%q", t)
	}
	return t
}

func orBlock(terms []string) string {
	rendered := make([]string, 0, len(terms))
	for _, t := range terms {
		if r := renderTerm(t); r != "" {
			rendered = append(rendered, r)
		}
	}
	if len(rendered) == 0 {
		return ""
	}
	if len(rendered) == 1 {
		return rendered[0]
	}
	return "(" + strings.Join(rendered, " OR ") + ")"
}

// buildBooleanCore builds the combined boolean query string reused by
// GDELT and Google News, structured as:
//
//	(positives) AND (crypto-context) [AND NOT (negatives)]
func (b *Builder) buildBooleanCore(assetSymbol string) string {
	positives := normTerms(append(symbolSynonyms(assetSymbol), b.aliases(assetSymbol)...))
	var cryptoCtx []string
	if b.params.RequireCryptoContext {
		cryptoCtx = cryptoContextTerms
	}
	negatives := normTerms(b.negativeTerms(assetSymbol))

	mustPos := orBlock(positives)
	mustCtx := orBlock(cryptoCtx)
	notBlock := orBlock(negatives)

	var parts []string
	if mustPos != "" {
		parts = append(parts, mustPos)
	}
	if mustCtx != "" {
		parts = append(parts, mustCtx)
	}
	if notBlock != "" {
		parts = append(parts, "NOT "+notBlock)
	}

	if len(parts) == 0 {
		return renderTerm(assetSymbol)
	}
	return strings.Join(parts, " AND ")
}

// BuildCoreBoolean returns the boolean core shared by GDELT and RSS.
func (b *Builder) BuildCoreBoolean(assetSymbol string) string {
	return b.buildBooleanCore(assetSymbol)
}

// BuildForGDELT returns the query string for the GDELT Doc API.
func (b *Builder) BuildForGDELT(assetSymbol string) string {
	return b.buildBooleanCore(assetSymbol)
}

// BuildForRSS returns the query string for Google News RSS, including the
// after:/before: date filter GDELT does not use.
func (b *Builder) BuildForRSS(assetSymbol, startISODate, endISODate string) string {
	core := b.buildBooleanCore(assetSymbol)
	return fmt.Sprintf("%s after:%s before:%s", core, startISODate, endISODate)
}
