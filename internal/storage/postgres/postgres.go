// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool, verifies it with a ping and applies migrations.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	r := session.Receipt
	batch := &pgx.Batch{}
	batch.Queue(`
INSERT INTO sessions (id, link, receipt_id, receipt_total, store_name, address, cashier,
                      receipt_date, receipt_time, mode, allocated_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`, session.ID, session.Link, r.ID, r.Total.String(), r.Metadata.StoreName, r.Metadata.Address,
		r.Metadata.Cashier, r.Metadata.Date, r.Metadata.Time, string(session.Allocation.Mode),
		nullTime(session.Allocation.CreatedAt), session.CreatedAt, session.UpdatedAt)

	for i, item := range r.Items {
		batch.Queue(`
INSERT INTO receipt_items (session_id, position, item_id, name, unit_price, quantity, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, session.ID, i, item.ID, item.Name, item.UnitPrice.String(), item.Quantity.String(), item.LineTotal.String())
	}
	queueParticipants(batch, session.ID, session.Allocation.Participants)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session := &models.Session{}
	meta := &session.Receipt.Metadata
	var (
		total, mode string
		allocatedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, link, receipt_id, receipt_total, store_name, address, cashier, receipt_date,
       receipt_time, mode, allocated_at, created_at, updated_at
FROM sessions
WHERE id = $1
`, sessionID).Scan(&session.ID, &session.Link, &session.Receipt.ID, &total, &meta.StoreName,
		&meta.Address, &meta.Cashier, &meta.Date, &meta.Time, &mode, &allocatedAt,
		&session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.Receipt.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("failed to parse receipt total: %w", err)
	}
	session.Allocation.Mode = models.SplitMode(mode)
	if allocatedAt != nil {
		session.Allocation.CreatedAt = allocatedAt.UTC()
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()

	if session.Receipt.Items, err = s.getItems(ctx, sessionID); err != nil {
		return nil, err
	}
	if session.Allocation.Participants, err = s.getParticipants(ctx, sessionID); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) UpdateSession(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE sessions
SET mode = $1, allocated_at = $2, updated_at = $3
WHERE id = $4
`, string(session.Allocation.Mode), nullTime(session.Allocation.CreatedAt), session.UpdatedAt, session.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, session.ID)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM participants WHERE session_id = $1`, session.ID)
	queueParticipants(batch, session.ID, session.Allocation.Participants)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to replace participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, sessionID)
	}
	return nil
}

func queueParticipants(batch *pgx.Batch, sessionID string, participants []models.Participant) {
	for i, p := range participants {
		batch.Queue(`
INSERT INTO participants (session_id, id, position, name, amount, reference, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, sessionID, p.ID, i, p.Name, p.Amount.String(), p.Reference, string(p.Status))
		for j, itemID := range p.SelectedItemIDs {
			batch.Queue(`
INSERT INTO participant_items (session_id, participant_id, position, item_id)
VALUES ($1, $2, $3, $4)
`, sessionID, p.ID, j, itemID)
		}
	}
}

func (s *Store) getItems(ctx context.Context, sessionID string) ([]models.LineItem, error) {
	rows, err := s.pool.Query(ctx, `
SELECT item_id, name, unit_price, quantity, line_total
FROM receipt_items
WHERE session_id = $1
ORDER BY position
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		var unitPrice, quantity, lineTotal string
		if err := rows.Scan(&item.ID, &item.Name, &unitPrice, &quantity, &lineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan receipt item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("failed to parse unit price: %w", err)
		}
		if item.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("failed to parse quantity: %w", err)
		}
		if item.LineTotal, err = decimal.NewFromString(lineTotal); err != nil {
			return nil, fmt.Errorf("failed to parse line total: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt items: %w", err)
	}
	return items, nil
}

func (s *Store) getParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, name, amount, reference, status
FROM participants
WHERE session_id = $1
ORDER BY position
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	byID := map[string]int{}
	for rows.Next() {
		var p models.Participant
		var amount, status string
		if err := rows.Scan(&p.ID, &p.Name, &amount, &p.Reference, &status); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		p.Status = models.PaymentStatus(status)
		byID[p.ID] = len(participants)
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	selRows, err := s.pool.Query(ctx, `
SELECT participant_id, item_id
FROM participant_items
WHERE session_id = $1
ORDER BY participant_id, position
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant items: %w", err)
	}
	defer selRows.Close()

	for selRows.Next() {
		var participantID, itemID string
		if err := selRows.Scan(&participantID, &itemID); err != nil {
			return nil, fmt.Errorf("failed to scan participant item: %w", err)
		}
		if i, ok := byID[participantID]; ok {
			participants[i].SelectedItemIDs = append(participants[i].SelectedItemIDs, itemID)
		}
	}
	if err := selRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participant items: %w", err)
	}
	return participants, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
