package database

import (
	"context"
	"database/sql"
	"errors"
)

// AttachSession points a session at a cached dataset, replacing whatever it
// held before. A session never has more than one dataset.
func (db *DB) AttachSession(ctx context.Context, sessionID, hash string) error {
	return attachSession(ctx, db.conn, sessionID, hash)
}

func attachSession(ctx context.Context, ex execer, sessionID, hash string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO sessions (session_id, content_hash) VALUES (?, ?)
         ON CONFLICT(session_id) DO UPDATE SET
             content_hash = excluded.content_hash,
             updated_at = datetime('now')`,
		sessionID, hash,
	)
	return err
}

// GetSessionDataset returns the dataset attached to a session, or nil.
func (db *DB) GetSessionDataset(ctx context.Context, sessionID string) (*Dataset, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT d.content_hash, d.file_name, d.size_bytes, d.row_count, d.payload, d.loaded_at
         FROM sessions s JOIN datasets d ON d.content_hash = s.content_hash
         WHERE s.session_id = ?`,
		sessionID,
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

// DetachSession forgets a session's dataset.
func (db *DB) DetachSession(ctx context.Context, sessionID string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}
