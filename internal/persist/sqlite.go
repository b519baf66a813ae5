// Package persist snapshots the resource cache to SQLite so a restarted
// process can warm-start instead of refetching everything. This is a
// durability optimization, not part of the reconciliation contract: dropping
// the file and starting cold is always correct.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/nexcal/nexcal/internal/common"
	"github.com/nexcal/nexcal/internal/dbx"
	"github.com/nexcal/nexcal/internal/filex"
	"github.com/nexcal/nexcal/internal/models"
	"github.com/nexcal/nexcal/internal/persist/migrations"
	"github.com/nexcal/nexcal/internal/store"
)

// InitDatabase opens the SQLite database at dsn and applies migrations,
// creating the containing directory if needed.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	if _, err := filex.EnsureParentDir(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// SQLiteRepository implements store.Saver plus LoadAll, bound to a DBTX
// (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save upserts one cache entry by resource key.
func (r *SQLiteRepository) Save(ctx context.Context, snap store.Snapshot) error {
	payload, err := json.Marshal(snap.Resource)
	if err != nil {
		return fmt.Errorf("failed to marshal resource: %w", err)
	}

	query := `INSERT INTO resources (kind, author, id, payload, source, local_sequence, sync_attempts, synced_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(kind, author, id) DO UPDATE SET payload = excluded.payload,
				source = excluded.source,
				local_sequence = excluded.local_sequence,
				sync_attempts = excluded.sync_attempts,
				synced_at = excluded.synced_at,
				updated_at = excluded.updated_at
	`
	key := snap.Resource.Key
	_, err = r.db.ExecContext(ctx, query,
		string(key.Kind), key.Author, key.ID,
		string(payload), string(snap.Meta.Source),
		snap.Meta.LocalSequence, snap.Meta.SyncAttempts,
		unixMilliOrZero(snap.Meta.SyncedAt), unixMilliOrZero(snap.Meta.LocalWrittenAt))
	if err != nil {
		return fmt.Errorf("failed to upsert resource: %w", err)
	}
	return nil
}

// Delete removes the row for key. Deleting an absent row is a no-op.
func (r *SQLiteRepository) Delete(ctx context.Context, key models.Key) error {
	query := `DELETE FROM resources WHERE kind=? AND author=? AND id=?`
	if _, err := r.db.ExecContext(ctx, query, string(key.Kind), key.Author, key.ID); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

// LoadAll returns every persisted cache entry, reconstructing sync metadata
// from the stored columns.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]store.Snapshot, error) {
	query := `SELECT payload, source, local_sequence, sync_attempts, synced_at, updated_at FROM resources`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select resources: %w", err)
	}
	defer rows.Close()

	var result []store.Snapshot
	for rows.Next() {
		var (
			payload       string
			source        string
			localSequence uint64
			syncAttempts  uint
			syncedAt      int64
			updatedAt     int64
		)
		if err := rows.Scan(&payload, &source, &localSequence, &syncAttempts, &syncedAt, &updatedAt); err != nil {
			return nil, err
		}

		var res models.Resource
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal resource: %w", err)
		}
		result = append(result, store.Snapshot{
			Resource: &res,
			Meta: store.SyncMetadata{
				Source:         store.Source(source),
				LocalSequence:  localSequence,
				SyncAttempts:   syncAttempts,
				SyncedAt:       timeOrZero(syncedAt),
				LocalWrittenAt: timeOrZero(updatedAt),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ResetSyncState prepares persisted rows for a fresh process: abandoned
// entries are dropped and the attempt counters of unsynced entries reset, so
// warm-started resources come back with a full sync budget.
func ResetSyncState(ctx context.Context, db *sql.DB) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM resources WHERE sync_attempts > ?`, common.MaxSyncAttempts); err != nil {
			return fmt.Errorf("failed to drop abandoned resources: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE resources SET sync_attempts = 0 WHERE synced_at = 0`); err != nil {
			return fmt.Errorf("failed to reset sync attempts: %w", err)
		}
		return nil
	})
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeOrZero(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
