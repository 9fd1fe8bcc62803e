package scheduling

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/medrex/booking/pkg/database"
	"github.com/medrex/booking/pkg/interfaces"
	"github.com/medrex/booking/pkg/logger"
	"github.com/medrex/booking/pkg/monitoring"
	"github.com/medrex/booking/pkg/timerange"
	"github.com/medrex/booking/pkg/types"
)

// Postgres error codes mapped to domain conflicts
const (
	pqUniqueViolation    = "23505"
	pqExclusionViolation = "23P01"
)

const (
	windowColumns  = `id, doctor_id, to_char(date, 'YYYY-MM-DD'), start_minute, end_minute, created_at`
	bookingColumns = `id, doctor_id, patient_id, to_char(date, 'YYYY-MM-DD'), start_minute, end_minute, duration, status, reason, created_at, updated_at`
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Repository implements interfaces.Store on PostgreSQL. A (doctor, date)
// scope is serialized with a transaction-level advisory lock; the schema's
// exclusion constraints back that up.
type Repository struct {
	db      *database.DB
	q       querier
	logger  *logger.Logger
	monitor *monitoring.MonitoringMiddleware
}

// NewRepository creates a new scheduling repository
func NewRepository(db *database.DB, log *logger.Logger, metrics *monitoring.MetricsCollector) *Repository {
	return &Repository{
		db:      db,
		q:       db.DB,
		logger:  log,
		monitor: monitoring.NewMonitoringMiddleware(metrics, log, nil),
	}
}

// InScope runs fn inside one transaction holding the scope's advisory lock
func (r *Repository) InScope(ctx context.Context, doctorID, date string, fn func(repo interfaces.SchedulingRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewInternalError("failed to begin transaction", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, doctorID, date); err != nil {
		_ = tx.Rollback()
		return types.NewInternalError("failed to lock scheduling scope", err)
	}

	scoped := &Repository{db: r.db, q: tx, logger: r.logger, monitor: r.monitor}
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.WithComponent("repository").WithError(rbErr).Warn("Failed to roll back scope transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapPQError(err, "failed to commit transaction")
	}
	return nil
}

// Close closes the underlying pool
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Health(ctx)
}

// GetDoctor reads a doctor directory record
func (r *Repository) GetDoctor(ctx context.Context, id string) (*types.Doctor, error) {
	query := `
		SELECT id, name, role, specialty, is_active, is_verified
		FROM doctors
		WHERE id = $1`

	d := &types.Doctor{}
	err := r.timed(ctx, "select", "doctors", func() (int64, error) {
		return 1, r.q.QueryRowContext(ctx, query, id).Scan(
			&d.ID,
			&d.Name,
			&d.Role,
			&d.Specialty,
			&d.IsActive,
			&d.IsVerified,
		)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewError(types.ErrNotFound, "doctor %s not found", id)
		}
		return nil, types.NewInternalError("failed to get doctor", err)
	}
	return d, nil
}

// InsertWindow stores a new availability window
func (r *Repository) InsertWindow(ctx context.Context, w *types.AvailabilityWindow) error {
	query := `
		INSERT INTO availability_windows (id, doctor_id, date, start_minute, end_minute, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	err := r.timed(ctx, "insert", "availability_windows", func() (int64, error) {
		res, err := r.q.ExecContext(ctx, query,
			w.ID,
			w.DoctorID,
			w.Date,
			w.Range.Start,
			w.Range.End,
			w.CreatedAt,
		)
		return rowsAffected(res), err
	})
	if err != nil {
		return mapPQError(err, "failed to insert availability window")
	}
	return nil
}

// GetWindow returns a window by id
func (r *Repository) GetWindow(ctx context.Context, id string) (*types.AvailabilityWindow, error) {
	query := `SELECT ` + windowColumns + ` FROM availability_windows WHERE id = $1`

	var w *types.AvailabilityWindow
	err := r.timed(ctx, "select", "availability_windows", func() (int64, error) {
		var scanErr error
		w, scanErr = scanWindow(r.q.QueryRowContext(ctx, query, id))
		return 1, scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewError(types.ErrNotFound, "availability window %s not found", id)
		}
		return nil, types.NewInternalError("failed to get availability window", err)
	}
	return w, nil
}

// ListWindows returns matching windows sorted by (date, start)
func (r *Repository) ListWindows(ctx context.Context, filter types.AvailabilityFilter) ([]*types.AvailabilityWindow, error) {
	where, args := dateConditions(nil, nil, filter.Date, filter.FromDate, filter.ToDate)
	if filter.DoctorID != "" {
		args = append(args, filter.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}

	query := `SELECT ` + windowColumns + ` FROM availability_windows` + whereClause(where) +
		` ORDER BY date, start_minute, id`

	windows := make([]*types.AvailabilityWindow, 0)
	err := r.timed(ctx, "select", "availability_windows", func() (int64, error) {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		for rows.Next() {
			w, err := scanWindow(rows)
			if err != nil {
				return 0, err
			}
			windows = append(windows, w)
		}
		return int64(len(windows)), rows.Err()
	})
	if err != nil {
		return nil, types.NewInternalError("failed to list availability windows", err)
	}
	return windows, nil
}

// DeleteWindow removes a window
func (r *Repository) DeleteWindow(ctx context.Context, id string) error {
	var affected int64
	err := r.timed(ctx, "delete", "availability_windows", func() (int64, error) {
		res, err := r.q.ExecContext(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
		affected = rowsAffected(res)
		return affected, err
	})
	if err != nil {
		return types.NewInternalError("failed to delete availability window", err)
	}
	if affected == 0 {
		return types.NewError(types.ErrNotFound, "availability window %s not found", id)
	}
	return nil
}

// InsertBooking stores a new booking
func (r *Repository) InsertBooking(ctx context.Context, b *types.Booking) error {
	query := `
		INSERT INTO bookings (
			id, doctor_id, patient_id, date, start_minute, end_minute,
			duration, status, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	err := r.timed(ctx, "insert", "bookings", func() (int64, error) {
		res, err := r.q.ExecContext(ctx, query,
			b.ID,
			b.DoctorID,
			b.PatientID,
			b.Date,
			b.Range.Start,
			b.Range.End,
			b.Duration,
			string(b.Status),
			b.Reason,
			b.CreatedAt,
			b.UpdatedAt,
		)
		return rowsAffected(res), err
	})
	if err != nil {
		return mapPQError(err, "failed to insert booking")
	}
	return nil
}

// GetBooking returns a booking by id
func (r *Repository) GetBooking(ctx context.Context, id string) (*types.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	var b *types.Booking
	err := r.timed(ctx, "select", "bookings", func() (int64, error) {
		var scanErr error
		b, scanErr = scanBooking(r.q.QueryRowContext(ctx, query, id))
		return 1, scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewError(types.ErrNotFound, "booking %s not found", id)
		}
		return nil, types.NewInternalError("failed to get booking", err)
	}
	return b, nil
}

// ListBookings returns matching bookings sorted by (date, start)
func (r *Repository) ListBookings(ctx context.Context, filter types.BookingFilter) ([]*types.Booking, error) {
	where, args := dateConditions(nil, nil, filter.Date, filter.FromDate, filter.ToDate)
	if filter.DoctorID != "" {
		args = append(args, filter.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.ExcludeStatuses) > 0 {
		args = append(args, pq.Array(statusStrings(filter.ExcludeStatuses)))
		where = append(where, fmt.Sprintf("NOT (status = ANY($%d))", len(args)))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings` + whereClause(where) +
		` ORDER BY date, start_minute, id`

	bookings := make([]*types.Booking, 0)
	err := r.timed(ctx, "select", "bookings", func() (int64, error) {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		for rows.Next() {
			b, err := scanBooking(rows)
			if err != nil {
				return 0, err
			}
			bookings = append(bookings, b)
		}
		return int64(len(bookings)), rows.Err()
	})
	if err != nil {
		return nil, types.NewInternalError("failed to list bookings", err)
	}
	return bookings, nil
}

// UpdateBookingStatus sets the status of a booking and returns the result
func (r *Repository) UpdateBookingStatus(ctx context.Context, id string, status types.BookingStatus, updatedAt time.Time) (*types.Booking, error) {
	query := `
		UPDATE bookings SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + bookingColumns

	var b *types.Booking
	err := r.timed(ctx, "update", "bookings", func() (int64, error) {
		var scanErr error
		b, scanErr = scanBooking(r.q.QueryRowContext(ctx, query, string(status), updatedAt, id))
		return 1, scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewError(types.ErrNotFound, "booking %s not found", id)
		}
		return nil, mapPQError(err, "failed to update booking status")
	}
	return b, nil
}

// timed records query latency. A missing row is an answer, not a failure.
func (r *Repository) timed(ctx context.Context, operation, table string, fn func() (int64, error)) error {
	var noRows bool
	err := r.monitor.DatabaseMiddleware(operation, table)(ctx, func() (int64, error) {
		n, err := fn()
		if errors.Is(err, sql.ErrNoRows) {
			noRows = true
			return 0, nil
		}
		return n, err
	})
	if noRows {
		return sql.ErrNoRows
	}
	return err
}

func scanWindow(row rowScanner) (*types.AvailabilityWindow, error) {
	w := &types.AvailabilityWindow{}
	var start, end int
	if err := row.Scan(&w.ID, &w.DoctorID, &w.Date, &start, &end, &w.CreatedAt); err != nil {
		return nil, err
	}
	rng, err := timerange.New(start, end)
	if err != nil {
		return nil, fmt.Errorf("corrupt window %s: %w", w.ID, err)
	}
	w.Range = rng
	return w, nil
}

func scanBooking(row rowScanner) (*types.Booking, error) {
	b := &types.Booking{}
	var start, end int
	var status string
	if err := row.Scan(
		&b.ID,
		&b.DoctorID,
		&b.PatientID,
		&b.Date,
		&start,
		&end,
		&b.Duration,
		&status,
		&b.Reason,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rng, err := timerange.New(start, end)
	if err != nil {
		return nil, fmt.Errorf("corrupt booking %s: %w", b.ID, err)
	}
	b.Range = rng
	b.Status = types.BookingStatus(status)
	return b, nil
}

// dateConditions appends exact/from/to date predicates
func dateConditions(where []string, args []interface{}, exact, from, to string) ([]string, []interface{}) {
	if exact != "" {
		args = append(args, exact)
		where = append(where, fmt.Sprintf("date = $%d", len(args)))
	}
	if from != "" {
		args = append(args, from)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if to != "" {
		args = append(args, to)
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	return where, args
}

func whereClause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

func statusStrings(statuses []types.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// mapPQError translates constraint violations into domain conflicts
func mapPQError(err error, message string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqExclusionViolation && pqErr.Constraint == database.ConstraintWindowNoOverlap:
			return &types.SchedulingError{Type: types.ErrorTypeConflict, Code: types.ErrCodeOverlap, Message: types.ErrOverlap.Message, Cause: err}
		case pqErr.Code == pqExclusionViolation && pqErr.Constraint == database.ConstraintBookingNoOverlap:
			return &types.SchedulingError{Type: types.ErrorTypeConflict, Code: types.ErrCodeSlotConflict, Message: types.ErrSlotConflict.Message, Cause: err}
		case pqErr.Code == pqUniqueViolation && pqErr.Constraint == database.ConstraintBookingOnePerPatient:
			return &types.SchedulingError{Type: types.ErrorTypeConflict, Code: types.ErrCodeDuplicateBooking, Message: types.ErrDuplicateBooking.Message, Cause: err}
		}
	}
	return types.NewInternalError(message, err)
}
