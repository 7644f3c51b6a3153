package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
)

type (
	// Store keeps the items of every namespace as rows of one table.
	Store struct {
		db    *sqlx.DB
		table string
	}

	storage struct {
		store     *Store
		namespace string
	}

	// Item is one stored row.
	Item struct {
		Namespace string    `db:"namespace"`
		Key       string    `db:"key"`
		Value     string    `db:"value"`
		UpdatedAt time.Time `db:"updated_at"`
	}
)

var (
	_ core.StorageProvider = (*Store)(nil)
	_ core.Storage         = (*storage)(nil)

	NowFunc = time.Now // mockable
)

// NewStore expects a table already created by Migrate.
func NewStore(db *sqlx.DB, table string) *Store {
	return &Store{db: db, table: table}
}

func (st *Store) Storage(namespace string) core.Storage {
	return &storage{store: st, namespace: namespace}
}

// Items lists the items of namespace, ordered by key.
func (st *Store) Items(ctx context.Context, namespace string) ([]Item, error) {
	var items []Item
	q := st.db.Rebind(`SELECT namespace, key, value, updated_at FROM ` + st.table + ` WHERE namespace = ? ORDER BY key`)
	if err := st.db.SelectContext(ctx, &items, q, namespace); err != nil {
		return nil, errors.Wrap(err, "selecting items")
	}
	return items, nil
}

// Purge deletes the namespaces with no item written since `before`. Returns the number of deleted items.
func (st *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	q := st.db.Rebind(`DELETE FROM ` + st.table + ` WHERE namespace IN (
	SELECT namespace FROM ` + st.table + ` GROUP BY namespace HAVING MAX(updated_at) < ?
)`)
	res, err := st.db.ExecContext(ctx, q, before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purging items")
	}
	return res.RowsAffected()
}

func (s *storage) GetItem(ctx context.Context, key string) (string, error) {
	var val string
	q := s.store.db.Rebind(`SELECT value FROM ` + s.store.table + ` WHERE namespace = ? AND key = ?`)
	if err := s.store.db.GetContext(ctx, &val, q, s.namespace, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", core.ErrNotFound
		}
		return "", errors.Wrap(err, "selecting item")
	}
	return val, nil
}

func (s *storage) SetItem(ctx context.Context, key, value string) error {
	q := `INSERT INTO ` + s.store.table + ` (namespace, key, value, updated_at)
VALUES (:namespace, :key, :value, :updated_at)
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	it := Item{Namespace: s.namespace, Key: key, Value: value, UpdatedAt: NowFunc().UTC()}
	if _, err := s.store.db.NamedExecContext(ctx, q, it); err != nil {
		return errors.Wrap(err, "upserting item")
	}
	return nil
}

func (s *storage) RemoveItem(ctx context.Context, key string) error {
	q := s.store.db.Rebind(`DELETE FROM ` + s.store.table + ` WHERE namespace = ? AND key = ?`)
	if _, err := s.store.db.ExecContext(ctx, q, s.namespace, key); err != nil {
		return errors.Wrap(err, "deleting item")
	}
	return nil
}
