package statestore

import (
	"context"
	"fmt"
	"time"

	"liquidityEngine/internal/model"
)

// Store persists world snapshots.
type Store interface {
	Load(ctx context.Context) (model.WorldState, bool, error)
	Save(ctx context.Context, state model.WorldState) error
}

// FileStore keeps the snapshot in a local JSON file.
type FileStore struct {
	Path string
}

func (s *FileStore) Load(ctx context.Context) (model.WorldState, bool, error) {
	if s == nil || s.Path == "" {
		return model.WorldState{}, false, nil
	}
	var state model.WorldState
	ok, err := ReadJSON(s.Path, &state)
	if err != nil || !ok {
		return model.WorldState{}, false, err
	}
	if err := checkVersion(state); err != nil {
		return model.WorldState{}, false, err
	}
	return state, true, nil
}

func (s *FileStore) Save(ctx context.Context, state model.WorldState) error {
	if s == nil || s.Path == "" {
		return nil
	}
	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	return WriteJSONAtomic(s.Path, state)
}

// DB is the subset of the SQL stores that can hold named snapshots.
type DB interface {
	LoadWorldState(ctx context.Context, name string) (model.WorldState, bool, error)
	SaveWorldState(ctx context.Context, name string, state model.WorldState) error
}

// DBStore keeps the snapshot in a database row identified by Name.
type DBStore struct {
	DB   DB
	Name string
}

func (s *DBStore) Load(ctx context.Context) (model.WorldState, bool, error) {
	if s == nil || s.DB == nil {
		return model.WorldState{}, false, nil
	}
	state, ok, err := s.DB.LoadWorldState(ctx, s.Name)
	if err != nil || !ok {
		return model.WorldState{}, false, err
	}
	if err := checkVersion(state); err != nil {
		return model.WorldState{}, false, err
	}
	return state, true, nil
}

func (s *DBStore) Save(ctx context.Context, state model.WorldState) error {
	if s == nil || s.DB == nil {
		return nil
	}
	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	return s.DB.SaveWorldState(ctx, s.Name, state)
}

func checkVersion(state model.WorldState) error {
	if state.Version != model.WorldStateVersion {
		return fmt.Errorf("unsupported world state version %d (want %d)", state.Version, model.WorldStateVersion)
	}
	return nil
}
