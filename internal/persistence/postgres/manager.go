package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/sawpanic/rrp/internal/persistence/ports"
)

// Repositories bundles every port implementation the CLI wires up, the way
// the teacher's persistence.Repository groups Trades/Regimes/Premove.
type Repositories struct {
	News         ports.NewsRepository
	Articles     ports.SummarizedArticleRepository
	Market       ports.MarketRepository
	Factors      ports.FactorsRepository
	DomainPolicy ports.DomainPolicyRepository
	ArticlesView ports.ArticlesQuery
}

// Manager owns the pooled connection and the repository bundle built on
// top of it, grounded on internal/infrastructure/db.Manager.
type Manager struct {
	db    *sqlx.DB
	repos *Repositories
}

// Config mirrors internal/infrastructure/db.Config's pool-tuning knobs.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// NewManager opens the pool, pings to confirm connectivity, runs pending
// migrations, and wires every repository against the shared *sqlx.DB.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	repos := &Repositories{
		News:         NewNewsRepo(db, cfg.QueryTimeout),
		Articles:     NewSummarizedArticleRepo(db, cfg.QueryTimeout),
		Market:       NewMarketRepo(db, cfg.QueryTimeout),
		Factors:      NewFactorsRepo(db, cfg.QueryTimeout),
		DomainPolicy: NewDomainPolicyRepo(db, cfg.QueryTimeout),
		ArticlesView: NewArticlesQuery(db, cfg.QueryTimeout),
	}

	return &Manager{db: db, repos: repos}, nil
}

func (m *Manager) Repositories() *Repositories { return m.repos }

func (m *Manager) DB() *sqlx.DB { return m.db }

func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
