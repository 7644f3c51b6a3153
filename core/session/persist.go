package session

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
)

const snapshotVersion = 0

type (
	// Snapshot is the part of State that survives reloads.
	Snapshot struct {
		User            *user.User `json:"user"`
		IsAuthenticated bool       `json:"isAuthenticated"`
	}

	// Persister saves & restores snapshots under one storage key.
	Persister struct {
		Storage core.Storage
		Key     string
	}

	envelope struct {
		State   Snapshot `json:"state"`
		Version int      `json:"version"`
	}
)

// NewPersister returns a Persister using the default snapshot key.
func NewPersister(storage core.Storage) *Persister {
	return &Persister{Storage: storage, Key: core.AuthSnapshotKey}
}

func (p *Persister) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(envelope{State: snap, Version: snapshotVersion})
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}
	return errors.Wrap(p.Storage.SetItem(ctx, p.Key, string(data)), "saving snapshot")
}

// Load returns nil, nil when no snapshot was saved.
func (p *Persister) Load(ctx context.Context) (*Snapshot, error) {
	data, err := p.Storage.GetItem(ctx, p.Key)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "loading snapshot")
	}
	var env envelope
	if err = json.Unmarshal([]byte(data), &env); err != nil {
		return nil, errors.Wrap(err, "decoding snapshot")
	}
	if env.Version != snapshotVersion {
		return nil, nil
	}
	snap := env.State
	if snap.IsAuthenticated && snap.User == nil {
		snap.IsAuthenticated = false
	}
	return &snap, nil
}
