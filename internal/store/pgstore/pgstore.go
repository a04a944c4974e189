// Package pgstore is a Postgres implementation of the booking repository,
// selected with store.driver "postgres".
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soyeahso/clinicbot/internal/booking"
	"github.com/soyeahso/clinicbot/internal/logging"
	"github.com/soyeahso/clinicbot/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	email       TEXT NOT NULL UNIQUE,
	phone       TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bookings (
	id            BIGSERIAL PRIMARY KEY,
	customer_id   BIGINT NOT NULL REFERENCES customers(id),
	booking_type  TEXT NOT NULL,
	date          TEXT NOT NULL,
	time          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'confirmed',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bookings_created ON bookings (created_at);
CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings (date);
`

var _ store.BookingRepository = (*Store)(nil)

// Store persists customers and bookings in Postgres.
type Store struct {
	pool *pgxpool.Pool
	log  *logging.Logger
	now  func() time.Time
}

// New connects to Postgres, verifies the connection and creates the schema
// if needed.
func New(ctx context.Context, databaseURL string, log *logging.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{pool: pool, log: log.Sub("pgstore"), now: time.Now}
	s.log.Info().Msg("postgres booking store ready")
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveBooking upserts the customer by email and inserts a confirmed booking.
func (s *Store) SaveBooking(ctx context.Context, d booking.Details) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The no-op update makes RETURNING yield the existing row on conflict.
	var customerID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO customers (name, email, phone)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id`,
		d.Name, d.Email, d.Phone,
	).Scan(&customerID)
	if err != nil {
		return 0, fmt.Errorf("upsert customer: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (customer_id, booking_type, date, time, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		customerID, d.BookingType, d.Date, d.Time, store.StatusConfirmed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.log.Info().Int64("booking", id).Int64("customer", customerID).Msg("booking saved")
	return id, nil
}

const bookingColumns = `
	b.id, b.booking_type, b.date, b.time, b.status, b.created_at,
	c.id, c.name, c.email, c.phone, c.created_at
	FROM bookings b JOIN customers c ON c.id = b.customer_id`

// List returns bookings newest first. A limit of zero or less returns all.
func (s *Store) List(ctx context.Context, limit int) ([]store.Booking, error) {
	query := "SELECT" + bookingColumns + " ORDER BY b.created_at DESC, b.id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return collect(rows)
}

// Search returns bookings whose customer name or email contains term,
// ignoring case.
func (s *Store) Search(ctx context.Context, term string) ([]store.Booking, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"
	rows, err := s.pool.Query(ctx,
		"SELECT"+bookingColumns+`
		WHERE c.name ILIKE $1 OR c.email ILIKE $1
		ORDER BY b.created_at DESC, b.id DESC`,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("search bookings: %w", err)
	}
	return collect(rows)
}

// Get returns a single booking or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*store.Booking, error) {
	rows, err := s.pool.Query(ctx, "SELECT"+bookingColumns+" WHERE b.id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBooking)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return &b, nil
}

// Stats counts all bookings, bookings dated today, confirmed bookings, and
// distinct customers.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE date = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(DISTINCT customer_id)
		FROM bookings`,
		s.now().Format(time.DateOnly), store.StatusConfirmed,
	).Scan(&st.Total, &st.Today, &st.Confirmed, &st.UniqueCustomers)
	if err != nil {
		return store.Stats{}, fmt.Errorf("booking stats: %w", err)
	}
	return st, nil
}

func scanBooking(row pgx.CollectableRow) (store.Booking, error) {
	var b store.Booking
	err := row.Scan(
		&b.ID, &b.BookingType, &b.Date, &b.Time, &b.Status, &b.CreatedAt,
		&b.Customer.ID, &b.Customer.Name, &b.Customer.Email, &b.Customer.Phone, &b.Customer.CreatedAt,
	)
	return b, err
}

func collect(rows pgx.Rows) ([]store.Booking, error) {
	out, err := pgx.CollectRows(rows, scanBooking)
	if err != nil {
		return nil, fmt.Errorf("scan bookings: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
