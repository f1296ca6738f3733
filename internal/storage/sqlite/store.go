package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"liquidityEngine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS exchange_logs (
	chain_id     INTEGER NOT NULL,
	block_number INTEGER NOT NULL,
	tx_hash      TEXT NOT NULL,
	log_index    INTEGER NOT NULL,
	address      TEXT NOT NULL,
	topics       TEXT NOT NULL,
	data         TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	op           TEXT NOT NULL DEFAULT '',
	ingested_at  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (chain_id, block_number, tx_hash, log_index)
);

CREATE INDEX IF NOT EXISTS exchange_logs_address ON exchange_logs (address, block_number);

CREATE TABLE IF NOT EXISTS indexer_state (
	name              TEXT PRIMARY KEY,
	last_processed_ts INTEGER NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS world_state (
	name       TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store is an embedded SQLite database holding exchange logs and world
// snapshots.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutLogBatch inserts logs in one transaction. Records already stored are
// ignored, so replaying a batch is harmless.
func (s *Store) PutLogBatch(logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO exchange_logs
		(chain_id, block_number, tx_hash, log_index, address, topics, data, ts, op, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range logs {
		topics, err := json.Marshal(rec.Topics)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal topics: %w", err)
		}
		if _, err := stmt.Exec(
			int64(rec.ChainID),
			int64(rec.BlockNumber),
			rec.TxHash,
			int64(rec.LogIndex),
			rec.Address,
			string(topics),
			rec.Data,
			int64(rec.Timestamp),
			rec.Op,
			rec.IngestedAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert log: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Logs returns stored logs with block_number >= fromBlock in log order.
func (s *Store) Logs(ctx context.Context, fromBlock uint64) ([]model.LogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_id, block_number, tx_hash, log_index, address, topics, data, ts, op, ingested_at
		FROM exchange_logs
		WHERE block_number >= ?
		ORDER BY block_number, log_index
	`, int64(fromBlock))
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var out []model.LogRecord
	for rows.Next() {
		var rec model.LogRecord
		var chainID, block, index, ts int64
		var topics string
		if err := rows.Scan(&chainID, &block, &rec.TxHash, &index, &rec.Address, &topics, &rec.Data, &ts, &rec.Op, &rec.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if err := json.Unmarshal([]byte(topics), &rec.Topics); err != nil {
			return nil, fmt.Errorf("parse topics: %w", err)
		}
		rec.ChainID = uint64(chainID)
		rec.BlockNumber = uint64(block)
		rec.LogIndex = uint64(index)
		rec.Timestamp = uint64(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadWorldState returns the snapshot saved under name.
func (s *Store) LoadWorldState(ctx context.Context, name string) (model.WorldState, bool, error) {
	if name == "" {
		return model.WorldState{}, false, fmt.Errorf("state name required")
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM world_state WHERE name = ?`, name).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.WorldState{}, false, nil
		}
		return model.WorldState{}, false, fmt.Errorf("load world state: %w", err)
	}
	var state model.WorldState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return model.WorldState{}, false, fmt.Errorf("parse world state: %w", err)
	}
	return state, true, nil
}

// SaveWorldState replaces the snapshot stored under name.
func (s *Store) SaveWorldState(ctx context.Context, name string, state model.WorldState) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal world state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO world_state (name, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, name, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save world state: %w", err)
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name = ?`, name).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("load state: %w", err)
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET last_processed_ts = excluded.last_processed_ts, updated_at = excluded.updated_at
	`, name, int64(ts), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
