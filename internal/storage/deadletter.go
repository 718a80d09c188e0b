// Package storage persists picture batches that could not be delivered so a
// later run can retry them.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/loomsight/weavesync/internal/engine"
)

// DeadLetterStore spools undeliverable picture batches in a local sqlite
// file. Batches are stored as JSON; they are opaque to the store.
type DeadLetterStore struct {
	db *sql.DB
}

// OpenDeadLetter opens (creating if needed) the spool at path.
func OpenDeadLetter(path string) (*DeadLetterStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS dead_batches (
			batch_id          TEXT PRIMARY KEY,
			payload           BLOB NOT NULL,
			spooled_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dead letter schema: %w", err)
	}

	return &DeadLetterStore{db: db}, nil
}

// Spool stores one batch. Re-spooling the same batch id overwrites it.
func (s *DeadLetterStore) Spool(batch engine.PictureBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", batch.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO dead_batches (batch_id, payload) VALUES (?, ?)`,
		batch.ID.String(), payload,
	)
	if err != nil {
		return fmt.Errorf("spool batch %s: %w", batch.ID, err)
	}
	return nil
}

// Pending returns up to limit spooled batches, oldest first.
func (s *DeadLetterStore) Pending(limit int) ([]engine.PictureBatch, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM dead_batches ORDER BY spooled_at, batch_id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []engine.PictureBatch
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var batch engine.PictureBatch
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, fmt.Errorf("decode spooled batch: %w", err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// Remove deletes a batch from the spool, typically after re-delivery.
func (s *DeadLetterStore) Remove(id uuid.UUID) error {
	_, err := s.db.Exec(`DELETE FROM dead_batches WHERE batch_id = ?`, id.String())
	return err
}

// Count returns the number of spooled batches.
func (s *DeadLetterStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM dead_batches`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *DeadLetterStore) Close() error {
	return s.db.Close()
}
