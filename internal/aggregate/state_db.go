package aggregate

import "context"

// StateDB is implemented by postgres.Store and sqlite.Store.
type StateDB interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// DBStateStore stores state in the indexer_state table.
type DBStateStore struct {
	DB   StateDB
	Name string
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.DB == nil {
		return 0, false, nil
	}
	return s.DB.LoadState(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.SaveState(ctx, s.Name, ts)
}
