package repository

import (
	"context"
	"fmt"
	"strings"

	"crypto-summary-bot/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

// CreateCoinsTable is the tracked_coins DDL. cmd/migrate reuses it so
// the versioned migration and the repo-owned bootstrap cannot drift.
const CreateCoinsTable = `
CREATE TABLE IF NOT EXISTS tracked_coins (
    symbol           TEXT        PRIMARY KEY,
    name             TEXT        NOT NULL,
    cmc_id           TEXT        NOT NULL DEFAULT '',
    chain_id         TEXT        NOT NULL DEFAULT '',
    token_address    TEXT        NOT NULL DEFAULT '',
    dex_search_query TEXT        NOT NULL DEFAULT '',
    feed_queries     TEXT[]      NOT NULL DEFAULT '{}',
    active           BOOLEAN     NOT NULL DEFAULT TRUE,
    added_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CoinRepository stores the set of coins the pipeline tracks.
type CoinRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewCoinRepository(pool PgxPool, tracer trace.Tracer) *CoinRepository {
	return &CoinRepository{pool: pool, tracer: tracer}
}

func (r *CoinRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "coin-repo.run-migrations")
	defer span.End()

	if _, err := r.pool.Exec(ctx, CreateCoinsTable); err != nil {
		return err
	}
	return r.seedDefaults(ctx)
}

// seedDefaults inserts the initial tracked coins on first boot.
// Existing rows, including ones the operator later edited, are left
// alone.
func (r *CoinRepository) seedDefaults(ctx context.Context) error {
	for _, coin := range defaultCoins {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO tracked_coins (symbol, name, cmc_id, chain_id, token_address, dex_search_query, feed_queries)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (symbol) DO NOTHING`,
			coin.Symbol, coin.Name, coin.CMCID, coin.ChainID, coin.TokenAddress, coin.DexSearchQuery, coin.FeedQueries,
		)
		if err != nil {
			return fmt.Errorf("seed coin %s: %w", coin.Symbol, err)
		}
	}
	return nil
}

func (r *CoinRepository) ListActive(ctx context.Context) ([]domain.Coin, error) {
	_, span := r.tracer.Start(ctx, "coin-repo.list-active")
	defer span.End()

	return r.list(ctx, `SELECT symbol, name, cmc_id, chain_id, token_address, dex_search_query, feed_queries, active, added_at
		 FROM tracked_coins
		 WHERE active
		 ORDER BY symbol`)
}

func (r *CoinRepository) ListAll(ctx context.Context) ([]domain.Coin, error) {
	_, span := r.tracer.Start(ctx, "coin-repo.list-all")
	defer span.End()

	return r.list(ctx, `SELECT symbol, name, cmc_id, chain_id, token_address, dex_search_query, feed_queries, active, added_at
		 FROM tracked_coins
		 ORDER BY symbol`)
}

func (r *CoinRepository) list(ctx context.Context, sql string) ([]domain.Coin, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coins []domain.Coin
	for rows.Next() {
		var c domain.Coin
		if err := rows.Scan(&c.Symbol, &c.Name, &c.CMCID, &c.ChainID, &c.TokenAddress, &c.DexSearchQuery, &c.FeedQueries, &c.Active, &c.AddedAt); err != nil {
			return nil, err
		}
		coins = append(coins, c)
	}
	return coins, rows.Err()
}

func (r *CoinRepository) Get(ctx context.Context, symbol string) (*domain.Coin, error) {
	_, span := r.tracer.Start(ctx, "coin-repo.get")
	defer span.End()

	var c domain.Coin
	err := r.pool.QueryRow(ctx,
		`SELECT symbol, name, cmc_id, chain_id, token_address, dex_search_query, feed_queries, active, added_at
		 FROM tracked_coins
		 WHERE symbol = $1`,
		normalizeSymbol(symbol),
	).Scan(&c.Symbol, &c.Name, &c.CMCID, &c.ChainID, &c.TokenAddress, &c.DexSearchQuery, &c.FeedQueries, &c.Active, &c.AddedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("coin %s not tracked", symbol)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CoinRepository) Upsert(ctx context.Context, coin domain.Coin) error {
	_, span := r.tracer.Start(ctx, "coin-repo.upsert")
	defer span.End()

	coin.Symbol = normalizeSymbol(coin.Symbol)
	if coin.Symbol == "" {
		return fmt.Errorf("coin symbol cannot be empty")
	}
	if coin.Name == "" {
		coin.Name = coin.Symbol
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tracked_coins (symbol, name, cmc_id, chain_id, token_address, dex_search_query, feed_queries, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		 ON CONFLICT (symbol) DO UPDATE SET
		     name = EXCLUDED.name,
		     cmc_id = EXCLUDED.cmc_id,
		     chain_id = EXCLUDED.chain_id,
		     token_address = EXCLUDED.token_address,
		     dex_search_query = EXCLUDED.dex_search_query,
		     feed_queries = EXCLUDED.feed_queries,
		     active = TRUE`,
		coin.Symbol, coin.Name, coin.CMCID, coin.ChainID, coin.TokenAddress, coin.DexSearchQuery, coin.FeedQueries,
	)
	return err
}

func (r *CoinRepository) SetActive(ctx context.Context, symbol string, active bool) error {
	_, span := r.tracer.Start(ctx, "coin-repo.set-active")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE tracked_coins SET active = $2 WHERE symbol = $1`,
		normalizeSymbol(symbol), active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("coin %s not tracked", symbol)
	}
	return nil
}

// Remove is idempotent; deleting an unknown symbol is not an error.
func (r *CoinRepository) Remove(ctx context.Context, symbol string) error {
	_, span := r.tracer.Start(ctx, "coin-repo.remove")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`DELETE FROM tracked_coins WHERE symbol = $1`,
		normalizeSymbol(symbol),
	)
	return err
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
