package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rrp/internal/news/query"
)

// assetRegistryRepo implements query.AssetRegistry over Postgres, grounded
// on duckdb_asset_registry.py. A missing table or query error yields empty
// results rather than failing the search — the original catches
// duckdb.CatalogException the same way.
type assetRegistryRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewAssetRegistryRepo(db *sqlx.DB, timeout time.Duration) query.AssetRegistry {
	return &assetRegistryRepo{db: db, timeout: timeout}
}

func (r *assetRegistryRepo) Aliases(assetSymbol string) []string {
	return r.column("asset_aliases", "alias", assetSymbol)
}

func (r *assetRegistryRepo) NegativeTerms(assetSymbol string) []string {
	return r.column("asset_negative_terms", "term", assetSymbol)
}

func (r *assetRegistryRepo) column(table, col, assetSymbol string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	sym := strings.ToUpper(assetSymbol)
	rows, err := r.db.QueryxContext(ctx, `SELECT `+col+` FROM `+table+` WHERE UPPER(symbol) = $1`, sym)
	if err != nil {
		log.Debug().Err(err).Str("table", table).Msg("asset registry: query failed, returning empty")
		return nil
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			continue
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
