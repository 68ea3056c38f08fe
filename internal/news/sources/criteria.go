// Package sources implements the News Source Adapters of spec.md §4.2: the
// GDELT Doc API client and the Google News RSS client.
package sources

import "time"

// HarvestCriteria is the per-asset fetch window passed to every source
// adapter, grounded on features/news/application/ports.HarvestCriteriaDTO.
type HarvestCriteria struct {
	AssetSymbol string
	Start       time.Time // UTC-aware
	End         time.Time // UTC-aware
	Limit       int
}
