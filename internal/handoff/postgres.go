package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresWriter stores booking requests in the relational database.
type PostgresWriter struct {
	pool rowQuerier
}

var _ Writer = (*PostgresWriter)(nil)

// NewPostgresWriter initializes a writer backed by pgxpool.
func NewPostgresWriter(pool *pgxpool.Pool) *PostgresWriter {
	if pool == nil {
		panic("handoff: pgx pool required")
	}
	return &PostgresWriter{pool: pool}
}

func newPostgresWriterWithQuerier(q rowQuerier) *PostgresWriter {
	if q == nil {
		panic("handoff: querier required")
	}
	return &PostgresWriter{pool: q}
}

// Create inserts a new booking request row.
func (w *PostgresWriter) Create(ctx context.Context, rec *Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	bookingType := rec.BookingType
	if bookingType == "" {
		bookingType = "call"
	}

	query := `
		INSERT INTO bookings (id, org_id, session_id, name, email, details, timeline, page_url, booking_type, escalated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := w.pool.QueryRow(ctx, query,
		id,
		rec.OrgID,
		rec.SessionID,
		rec.Name,
		rec.Email,
		rec.Details,
		rec.Timeline,
		rec.PageURL,
		bookingType,
		rec.Escalated,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("handoff: insert failed: %w", err)
	}

	out := *rec
	out.ID = id.String()
	out.BookingType = bookingType
	out.CreatedAt = createdAt
	return &out, nil
}
