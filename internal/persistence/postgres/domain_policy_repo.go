package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/persistence/ports"
)

// domainPolicyRepo implements ports.DomainPolicyRepository over Postgres,
// grounded on duckdb_domain_policy_repository.py. IsAllowed is fail-open: a
// missing policy row or a backing-store error both resolve to allowed.
type domainPolicyRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewDomainPolicyRepo(db *sqlx.DB, timeout time.Duration) ports.DomainPolicyRepository {
	return &domainPolicyRepo{db: db, timeout: timeout}
}

func (r *domainPolicyRepo) IsAllowed(ctx context.Context, assetSymbol, dom string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var allowed bool
	err := r.db.QueryRowxContext(ctx,
		`SELECT allowed FROM news_domain_policy WHERE asset_symbol = $1 AND domain = $2`,
		assetSymbol, dom,
	).Scan(&allowed)

	if err != nil {
		if err == sql.ErrNoRows {
			return true, nil
		}
		log.Warn().Err(err).Str("asset", assetSymbol).Str("domain", dom).Msg("domain policy: is_allowed query failed, failing open")
		return true, nil
	}
	return allowed, nil
}

func (r *domainPolicyRepo) SetPolicy(ctx context.Context, assetSymbol, dom string, allowed bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO news_domain_policy (asset_symbol, domain, allowed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (asset_symbol, domain) DO UPDATE
			SET allowed = excluded.allowed, updated_at = excluded.updated_at`,
		assetSymbol, dom, allowed, now,
	)
	if err != nil {
		return fmt.Errorf("failed to set domain policy: %w", err)
	}
	return nil
}

func (r *domainPolicyRepo) RecordHarvest(ctx context.Context, assetSymbol, dom string, stored bool) error {
	if err := r.bumpCounter(ctx, assetSymbol, dom, "harvested_total", 1); err != nil {
		return err
	}
	if stored {
		return r.bumpCounter(ctx, assetSymbol, dom, "stored_total", 1)
	}
	return nil
}

func (r *domainPolicyRepo) RecordLlmDecision(ctx context.Context, assetSymbol, dom string, relevant bool) error {
	if relevant {
		return r.bumpCounter(ctx, assetSymbol, dom, "llm_accepted", 1)
	}
	return r.bumpCounter(ctx, assetSymbol, dom, "llm_rejected", 1)
}

// bumpCounter mirrors DuckDBDomainPolicyRepository._upsert_counter: insert a
// zeroed row if absent, then increment the named column. col is always one
// of the four fixed literals above, never caller-controlled, so the
// interpolation below is not a SQL-injection vector.
func (r *domainPolicyRepo) bumpCounter(ctx context.Context, assetSymbol, dom, col string, by int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO news_domain_stats (asset_symbol, domain, harvested_total, stored_total, llm_accepted, llm_rejected)
		VALUES ($1, $2, 0, 0, 0, 0)
		ON CONFLICT (asset_symbol, domain) DO NOTHING`,
		assetSymbol, dom,
	); err != nil {
		return fmt.Errorf("failed to seed domain stats row: %w", err)
	}

	query := fmt.Sprintf(`UPDATE news_domain_stats SET %s = %s + $1 WHERE asset_symbol = $2 AND domain = $3`, col, col)
	if _, err := tx.ExecContext(ctx, query, by, assetSymbol, dom); err != nil {
		return fmt.Errorf("failed to bump %s: %w", col, err)
	}

	return tx.Commit()
}

func (r *domainPolicyRepo) Stats(ctx context.Context, assetSymbol string) ([]domain.NewsDomainStats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT asset_symbol, domain, harvested_total, stored_total, llm_accepted, llm_rejected
		FROM news_domain_stats
		WHERE asset_symbol = $1
		ORDER BY domain`,
		assetSymbol,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query domain stats: %w", err)
	}
	defer rows.Close()

	var out []domain.NewsDomainStats
	for rows.Next() {
		var s domain.NewsDomainStats
		if err := rows.Scan(&s.AssetSymbol, &s.Domain, &s.HarvestedTotal, &s.StoredTotal, &s.LlmAccepted, &s.LlmRejected); err != nil {
			return nil, fmt.Errorf("failed to scan domain stats row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating domain stats rows: %w", err)
	}
	return out, nil
}
