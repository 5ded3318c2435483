// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The foreign_keys pragma is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession persists a new session with its receipt and allocation.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	r := session.Receipt
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, link, receipt_id, receipt_total, store_name, address, cashier,
		 receipt_date, receipt_time, mode, allocated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Link, r.ID, r.Total.String(), r.Metadata.StoreName, r.Metadata.Address,
		r.Metadata.Cashier, r.Metadata.Date, r.Metadata.Time, string(session.Allocation.Mode),
		storage.Millis(session.Allocation.CreatedAt), storage.Millis(session.CreatedAt),
		storage.Millis(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for i, item := range r.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO receipt_items (session_id, position, item_id, name, unit_price, quantity, line_total)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			session.ID, i, item.ID, item.Name, item.UnitPrice.String(), item.Quantity.String(), item.LineTotal.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert receipt item: %w", err)
		}
	}

	if err := insertParticipants(ctx, tx, session.ID, session.Allocation.Participants); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID, including items, participants and selections.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session := &models.Session{}
	var (
		total, mode                       string
		allocatedAt, createdAt, updatedAt int64
	)
	meta := &session.Receipt.Metadata
	err := s.db.QueryRowContext(ctx,
		`SELECT id, link, receipt_id, receipt_total, store_name, address, cashier, receipt_date,
		 receipt_time, mode, allocated_at, created_at, updated_at FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&session.ID, &session.Link, &session.Receipt.ID, &total, &meta.StoreName, &meta.Address,
		&meta.Cashier, &meta.Date, &meta.Time, &mode, &allocatedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.Receipt.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("failed to parse receipt total: %w", err)
	}
	session.Allocation.Mode = models.SplitMode(mode)
	session.Allocation.CreatedAt = storage.FromMillis(allocatedAt)
	session.CreatedAt = storage.FromMillis(createdAt)
	session.UpdatedAt = storage.FromMillis(updatedAt)

	if session.Receipt.Items, err = s.getItems(ctx, sessionID); err != nil {
		return nil, err
	}
	if session.Allocation.Participants, err = s.getParticipants(ctx, sessionID); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSession replaces the allocation of a session.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE sessions SET mode = ?, allocated_at = ?, updated_at = ? WHERE id = ?",
		string(session.Allocation.Mode), storage.Millis(session.Allocation.CreatedAt),
		storage.Millis(session.UpdatedAt), session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, session.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM participants WHERE session_id = ?", session.ID); err != nil {
		return fmt.Errorf("failed to clear participants: %w", err)
	}
	if err := insertParticipants(ctx, tx, session.ID, session.Allocation.Participants); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteSession removes a session; items and participants cascade.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, sessionID)
	}
	return nil
}

func insertParticipants(ctx context.Context, tx *sql.Tx, sessionID string, participants []models.Participant) error {
	for i, p := range participants {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO participants (session_id, id, position, name, amount, reference, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, p.ID, i, p.Name, p.Amount.String(), p.Reference, string(p.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}

		for j, itemID := range p.SelectedItemIDs {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO participant_items (session_id, participant_id, position, item_id) VALUES (?, ?, ?, ?)",
				sessionID, p.ID, j, itemID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert participant item: %w", err)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) getItems(ctx context.Context, sessionID string) ([]models.LineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, name, unit_price, quantity, line_total FROM receipt_items
		 WHERE session_id = ? ORDER BY position`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.ID, &item.Name, &item.UnitPrice, &item.Quantity, &item.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan receipt item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt items: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) getParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, amount, reference, status FROM participants
		 WHERE session_id = ? ORDER BY position`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &p.Amount, &p.Reference, &status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Status = models.PaymentStatus(status)
		participants = append(participants, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	// Selections are read after the participant cursor is closed; the
	// store holds a single connection.
	for i := range participants {
		p := &participants[i]
		selRows, err := s.db.QueryContext(ctx,
			`SELECT item_id FROM participant_items
			 WHERE session_id = ? AND participant_id = ? ORDER BY position`,
			sessionID, p.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to get participant items: %w", err)
		}
		for selRows.Next() {
			var itemID string
			if err := selRows.Scan(&itemID); err != nil {
				selRows.Close()
				return nil, fmt.Errorf("failed to scan participant item: %w", err)
			}
			p.SelectedItemIDs = append(p.SelectedItemIDs, itemID)
		}
		selRows.Close()
		if err := selRows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate participant items: %w", err)
		}
	}
	return participants, nil
}
