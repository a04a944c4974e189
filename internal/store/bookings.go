package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/clinicbot/internal/booking"
)

// StatusConfirmed is the status of every booking written by the assistant.
const StatusConfirmed = "confirmed"

// Customer is a person who has made at least one booking. Customers are
// keyed by email address.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

// Booking is a persisted appointment together with its customer.
type Booking struct {
	ID          int64     `json:"id"`
	Customer    Customer  `json:"customer"`
	BookingType string    `json:"bookingType"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Stats summarises the bookings table.
type Stats struct {
	Total           int `json:"total"`
	Today           int `json:"today"`
	Confirmed       int `json:"confirmed"`
	UniqueCustomers int `json:"uniqueCustomers"`
}

// BookingRepository is implemented by every booking backend.
type BookingRepository interface {
	SaveBooking(ctx context.Context, d booking.Details) (int64, error)
	List(ctx context.Context, limit int) ([]Booking, error)
	Search(ctx context.Context, term string) ([]Booking, error)
	Get(ctx context.Context, id int64) (*Booking, error)
	Stats(ctx context.Context) (Stats, error)
}

var _ BookingRepository = (*BookingStore)(nil)

// BookingStore persists customers and bookings in SQLite.
type BookingStore struct {
	db  *DB
	now func() time.Time
}

// NewBookingStore creates a BookingStore.
func NewBookingStore(db *DB) *BookingStore {
	return &BookingStore{db: db, now: time.Now}
}

// SaveBooking upserts the customer by email and inserts a confirmed booking.
// An existing customer keeps the name and phone recorded first.
func (s *BookingStore) SaveBooking(ctx context.Context, d booking.Details) (int64, error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin booking: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(time.DateTime)

	customerID, err := upsertCustomer(ctx, tx, d, now)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (customer_id, booking_type, date, time, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		customerID, d.BookingType, d.Date, d.Time, StatusConfirmed, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("booking id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit booking: %w", err)
	}

	s.db.log.Info().
		Int64("booking", id).
		Int64("customer", customerID).
		Str("type", d.BookingType).
		Str("date", d.Date).
		Msg("booking saved")
	return id, nil
}

func upsertCustomer(ctx context.Context, tx *sql.Tx, d booking.Details, now string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM customers WHERE email = ?", d.Email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up customer: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO customers (name, email, phone, created_at) VALUES (?, ?, ?, ?)",
		d.Name, d.Email, d.Phone, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting customer: %w", err)
	}
	return res.LastInsertId()
}

const bookingColumns = `
	b.id, b.booking_type, b.date, b.time, b.status, b.created_at,
	c.id, c.name, c.email, c.phone, c.created_at
	FROM bookings b JOIN customers c ON c.id = b.customer_id`

// List returns bookings newest first. A limit of zero or less returns all.
func (s *BookingStore) List(ctx context.Context, limit int) ([]Booking, error) {
	query := "SELECT" + bookingColumns + " ORDER BY b.created_at DESC, b.id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// Search returns bookings whose customer name or email contains term,
// ignoring case.
func (s *BookingStore) Search(ctx context.Context, term string) ([]Booking, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(term))) + "%"
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT"+bookingColumns+`
		 WHERE lower(c.name) LIKE ? ESCAPE '\' OR lower(c.email) LIKE ? ESCAPE '\'
		 ORDER BY b.created_at DESC, b.id DESC`,
		pattern, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("searching bookings: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// Get returns a single booking or ErrNotFound.
func (s *BookingStore) Get(ctx context.Context, id int64) (*Booking, error) {
	row := s.db.sql.QueryRowContext(ctx, "SELECT"+bookingColumns+" WHERE b.id = ?", id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting booking %d: %w", id, err)
	}
	return &b, nil
}

// Stats counts all bookings, bookings dated today, confirmed bookings, and
// distinct customers.
func (s *BookingStore) Stats(ctx context.Context) (Stats, error) {
	today := s.now().Format(time.DateOnly)
	var st Stats
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN date = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT customer_id)
		FROM bookings`, today, StatusConfirmed,
	).Scan(&st.Total, &st.Today, &st.Confirmed, &st.UniqueCustomers)
	if err != nil {
		return Stats{}, fmt.Errorf("booking stats: %w", err)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (Booking, error) {
	var b Booking
	var created, customerCreated string
	err := row.Scan(
		&b.ID, &b.BookingType, &b.Date, &b.Time, &b.Status, &created,
		&b.Customer.ID, &b.Customer.Name, &b.Customer.Email, &b.Customer.Phone, &customerCreated,
	)
	if err != nil {
		return Booking{}, err
	}
	b.CreatedAt, _ = time.Parse(time.DateTime, created)
	b.Customer.CreatedAt, _ = time.Parse(time.DateTime, customerCreated)
	return b, nil
}

func scanBookings(rows *sql.Rows) ([]Booking, error) {
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
