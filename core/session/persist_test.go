package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/storage/inmem"
)

func TestPersister(t *testing.T) {
	usr := user.User{ID: 1, Email: email, Role: user.RoleTeacher, IsActive: true}

	tests := []struct {
		name     string
		stored   string
		want     *Snapshot
		wantErr  bool
		noStored bool
	}{
		{name: "nothing stored", noStored: true},
		{name: "corrupted", stored: "{lol", wantErr: true},
		{name: "unknown version", stored: `{"state":{"user":null,"isAuthenticated":false},"version":3}`},
		{
			name:   "logged out",
			stored: `{"state":{"user":null,"isAuthenticated":false},"version":0}`,
			want:   &Snapshot{},
		},
		{
			name:   "authenticated without user",
			stored: `{"state":{"user":null,"isAuthenticated":true},"version":0}`,
			want:   &Snapshot{},
		},
		{
			name:   "authenticated",
			stored: `{"state":{"user":{"id":1,"email":"a@b.com","role":"teacher","is_active":true,"created_at":"0001-01-01T00:00:00Z"},"isAuthenticated":true},"version":0}`,
			want:   &Snapshot{User: &usr, IsAuthenticated: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			storage := inmemstore.New()
			if !tt.noStored {
				require.NoError(t, storage.SetItem(ctx, core.AuthSnapshotKey, tt.stored))
			}

			snap, err := NewPersister(storage).Load(ctx)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap)
		})
	}
}

func TestPersister_Save(t *testing.T) {
	ctx := context.Background()
	storage := inmemstore.New()
	p := NewPersister(storage)
	usr := user.User{ID: 1, Email: email, Role: user.RoleAdmin}

	require.NoError(t, p.Save(ctx, Snapshot{User: &usr, IsAuthenticated: true}))

	raw, err := storage.GetItem(ctx, core.AuthSnapshotKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":{"user":{"id":1,"email":"a@b.com","role":"admin","is_active":false,"created_at":"0001-01-01T00:00:00Z"},"isAuthenticated":true},"version":0}`, raw)

	snap, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Snapshot{User: &usr, IsAuthenticated: true}, snap)
}
