package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveDataset stores a normalized upload, replacing an entry with the same
// hash.
func (db *DB) SaveDataset(ctx context.Context, d *Dataset) error {
	return saveDataset(ctx, db.conn, d)
}

// StoreSession saves d, points the session at it and drops datasets no
// session holds, in one transaction. It returns how many datasets were
// pruned.
func (db *DB) StoreSession(ctx context.Context, sessionID string, d *Dataset) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := saveDataset(ctx, tx, d); err != nil {
		return 0, fmt.Errorf("saving dataset: %w", err)
	}
	if err := attachSession(ctx, tx, sessionID, d.ContentHash); err != nil {
		return 0, fmt.Errorf("attaching session: %w", err)
	}
	pruned, err := pruneDatasets(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("pruning datasets: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return pruned, nil
}

func saveDataset(ctx context.Context, ex execer, d *Dataset) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO datasets (content_hash, file_name, size_bytes, row_count, payload)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(content_hash) DO UPDATE SET
             file_name = excluded.file_name,
             size_bytes = excluded.size_bytes,
             payload = excluded.payload,
             row_count = excluded.row_count,
             loaded_at = datetime('now')`,
		d.ContentHash, d.FileName, d.SizeBytes, d.RowCount, d.Payload,
	)
	return err
}

// GetDataset returns a cached dataset, or nil if the hash is unknown.
func (db *DB) GetDataset(ctx context.Context, hash string) (*Dataset, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT content_hash, file_name, size_bytes, row_count, payload, loaded_at
         FROM datasets WHERE content_hash = ?`,
		hash,
	)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// PruneDatasets removes datasets no session points at and returns how many
// were dropped.
func (db *DB) PruneDatasets(ctx context.Context) (int64, error) {
	return pruneDatasets(ctx, db.conn)
}

func pruneDatasets(ctx context.Context, ex execer) (int64, error) {
	result, err := ex.ExecContext(ctx,
		`DELETE FROM datasets
         WHERE content_hash NOT IN (SELECT content_hash FROM sessions)`,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetStats returns cache totals.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(row_count), 0), COALESCE(SUM(size_bytes), 0) FROM datasets`,
	).Scan(&s.Datasets, &s.TotalRows, &s.Bytes)
	if err != nil {
		return nil, err
	}
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&s.Sessions); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanDataset(row *sql.Row) (*Dataset, error) {
	var d Dataset
	if err := row.Scan(&d.ContentHash, &d.FileName, &d.SizeBytes, &d.RowCount, &d.Payload, &d.LoadedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
