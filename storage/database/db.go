package database

import (
	"context"
	"database/sql"
	"embed"
	"regexp"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/masomo-portal/core"
)

var tableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Open connects to the configured postgres database and waits for it to be ready.
func Open(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", conf.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

var (
	migrateMutex   sync.Mutex
	migrationTable string // table of the running migration

	noFiles embed.FS // the migrations are Go functions only
)

func init() {
	goose.AddNamedMigrationContext("00001_create_storage_table.go", upCreateStorageTable, downCreateStorageTable)
}

func upCreateStorageTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
	namespace  TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`)
	return err
}

func downCreateStorageTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+migrationTable)
	return err
}

// Migrate brings the storage table up to date. Its goose version is tracked in `<table>_version`.
func Migrate(ctx context.Context, db *sqlx.DB, table string) error {
	if !tableNameRegex.MatchString(table) {
		return errors.Errorf("invalid table name %q", table)
	}

	migrateMutex.Lock()
	defer migrateMutex.Unlock()

	goose.SetBaseFS(noFiles)
	goose.SetTableName(table + "_version")
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting migration dialect")
	}
	migrationTable = table
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
