package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityEngine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS exchange_logs (
	chain_id     BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	tx_hash      TEXT NOT NULL,
	log_index    BIGINT NOT NULL,
	address      TEXT NOT NULL,
	topics       TEXT[] NOT NULL,
	data         TEXT NOT NULL,
	ts           BIGINT NOT NULL,
	op           TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (chain_id, block_number, tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS pools (
	chain_id     BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	token        TEXT NOT NULL,
	symbol       TEXT NOT NULL DEFAULT '',
	registry     TEXT NOT NULL DEFAULT '',
	created_seq  BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);

CREATE TABLE IF NOT EXISTS pool_window_metrics (
	chain_id            BIGINT NOT NULL,
	pool_address        TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts     TIMESTAMPTZ NOT NULL,
	window_end_ts       TIMESTAMPTZ NOT NULL,
	swap_count          BIGINT NOT NULL,
	liquidity_events    BIGINT NOT NULL,
	base_volume         NUMERIC NOT NULL,
	token_volume        NUMERIC NOT NULL,
	base_fee            NUMERIC NOT NULL,
	token_fee           NUMERIC NOT NULL,
	fee_rate_base       NUMERIC,
	fee_rate_token      NUMERIC,
	tvl_base            NUMERIC,
	tvl_token           NUMERIC,
	apr                 NUMERIC,
	tvl_method          TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address, window_size_seconds, window_start_ts)
);

CREATE TABLE IF NOT EXISTS indexer_state (
	name              TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS world_state (
	name       TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for logs, pools, metrics and world
// snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutLogBatch inserts log records, ignoring ones already stored.
func (s *Store) PutLogBatch(logs []model.LogRecord) error {
	return s.InsertLogs(context.Background(), logs)
}

func (s *Store) InsertLogs(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range logs {
		batch.Queue(`
			INSERT INTO exchange_logs (
				chain_id, block_number, tx_hash, log_index, address, topics, data, ts, op
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (chain_id, block_number, tx_hash, log_index) DO NOTHING
		`,
			int64(rec.ChainID),
			int64(rec.BlockNumber),
			rec.TxHash,
			int64(rec.LogIndex),
			rec.Address,
			rec.Topics,
			rec.Data,
			int64(rec.Timestamp),
			rec.Op,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range logs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert log: %w", err)
		}
	}
	return nil
}

// UpsertPools inserts or updates pool rows.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, token, symbol, registry, created_seq, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				token = EXCLUDED.token,
				symbol = CASE WHEN EXCLUDED.symbol = '' THEN pools.symbol ELSE EXCLUDED.symbol END,
				registry = CASE WHEN EXCLUDED.registry = '' THEN pools.registry ELSE EXCLUDED.registry END,
				created_seq = LEAST(pools.created_seq, EXCLUDED.created_seq),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.Token,
			pool.Symbol,
			pool.Registry,
			int64(pool.CreatedSeq),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, liquidity_events, base_volume, token_volume, base_fee, token_fee,
				fee_rate_base, fee_rate_token, tvl_base, tvl_token, apr, tvl_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				liquidity_events = EXCLUDED.liquidity_events,
				base_volume = EXCLUDED.base_volume,
				token_volume = EXCLUDED.token_volume,
				base_fee = EXCLUDED.base_fee,
				token_fee = EXCLUDED.token_fee,
				fee_rate_base = EXCLUDED.fee_rate_base,
				fee_rate_token = EXCLUDED.fee_rate_token,
				tvl_base = EXCLUDED.tvl_base,
				tvl_token = EXCLUDED.tvl_token,
				apr = EXCLUDED.apr,
				tvl_method = EXCLUDED.tvl_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.LiquidityEvents),
			m.BaseVolume,
			m.TokenVolume,
			m.BaseFee,
			m.TokenFee,
			m.FeeRateBase,
			m.FeeRateToken,
			m.TVLBase,
			m.TVLToken,
			m.APR,
			m.TVLMethod,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

// LoadWorldState returns the snapshot saved under name.
func (s *Store) LoadWorldState(ctx context.Context, name string) (model.WorldState, bool, error) {
	if name == "" {
		return model.WorldState{}, false, fmt.Errorf("state name required")
	}
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT state FROM world_state WHERE name=$1`, name)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.WorldState{}, false, nil
		}
		return model.WorldState{}, false, err
	}
	var state model.WorldState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.WorldState{}, false, fmt.Errorf("parse world state: %w", err)
	}
	return state, true, nil
}

// SaveWorldState upserts the snapshot stored under name.
func (s *Store) SaveWorldState(ctx context.Context, name string, state model.WorldState) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal world state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO world_state (name, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET state = EXCLUDED.state, updated_at = now()
	`, name, data)
	return err
}
