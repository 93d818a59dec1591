package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"center-scheduler/errors"
	"center-scheduler/models"
)

// Postgres implements Store on a postgres database through the pgx stdlib
// driver. Optimistic concurrency is enforced in SQL: every UPDATE carries a
// version predicate and bumps the version column.
type Postgres struct {
	db *sql.DB
}

// Open connects to postgres and verifies the connection.
func Open(ctx context.Context, connStr string) (*Postgres, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

const assignmentColumns = `id, center_id, technician_id, booking_id, service_request_id,
	start_utc, end_utc, shift, status, note, version, created_at, updated_at`

func scanAssignment(row interface{ Scan(...any) error }) (models.Assignment, error) {
	var a models.Assignment
	var bookingID, serviceRequestID, shift, note sql.NullString
	err := row.Scan(&a.ID, &a.CenterID, &a.TechnicianID, &bookingID, &serviceRequestID,
		&a.StartUTC, &a.EndUTC, &shift, &a.Status, &note, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Assignment{}, err
	}
	a.BookingID = bookingID.String
	a.ServiceRequestID = serviceRequestID.String
	a.Shift = models.Shift(shift.String)
	a.Note = note.String
	return a, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateAssignment inserts a new assignment record at version 1.
func (p *Postgres) CreateAssignment(ctx context.Context, a models.Assignment) (models.Assignment, error) {
	query := `
		INSERT INTO assignments (id, center_id, technician_id, booking_id, service_request_id,
			start_utc, end_utc, shift, status, note, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1,$11,$12)
	`
	_, err := p.db.ExecContext(ctx, query, a.ID, a.CenterID, a.TechnicianID,
		nullable(a.BookingID), nullable(a.ServiceRequestID),
		a.StartUTC, a.EndUTC, nullable(string(a.Shift)), a.Status, nullable(a.Note),
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}
	a.Version = 1
	return a, nil
}

// GetAssignment returns the assignment with the given id.
func (p *Postgres) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id=$1`
	a, err := scanAssignment(p.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Assignment{}, &errors.NotFoundError{Kind: "assignment", ID: id}
	}
	if err != nil {
		return models.Assignment{}, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

// UpdateAssignment applies a compare-and-swap update keyed on the version
// column.
func (p *Postgres) UpdateAssignment(ctx context.Context, a models.Assignment) (models.Assignment, error) {
	query := `
		UPDATE assignments
		SET center_id=$1, technician_id=$2, booking_id=$3, service_request_id=$4,
			start_utc=$5, end_utc=$6, shift=$7, status=$8, note=$9,
			version=version+1, updated_at=$10
		WHERE id=$11 AND version=$12
	`
	res, err := p.db.ExecContext(ctx, query, a.CenterID, a.TechnicianID,
		nullable(a.BookingID), nullable(a.ServiceRequestID),
		a.StartUTC, a.EndUTC, nullable(string(a.Shift)), a.Status, nullable(a.Note),
		a.UpdatedAt, a.ID, a.Version)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("update assignment: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Distinguish a missing row from a lost race.
		if _, err := p.GetAssignment(ctx, a.ID); err != nil {
			return models.Assignment{}, err
		}
		return models.Assignment{}, &errors.StaleVersionError{Kind: "assignment", ID: a.ID, Version: a.Version}
	}
	a.Version++
	return a, nil
}

// ListAssignments returns assignments matching the provided filter, ordered
// by start time. Filtering happens in SQL for the indexed fields and in Go
// for the derived ones (date, shift).
func (p *Postgres) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE 1=1`
	args := make([]any, 0, 2)
	if filter.CenterID != "" {
		args = append(args, filter.CenterID)
		query += fmt.Sprintf(" AND center_id=$%d", len(args))
	}
	if filter.TechnicianID != "" {
		args = append(args, filter.TechnicianID)
		query += fmt.Sprintf(" AND technician_id=$%d", len(args))
	}
	query += " ORDER BY start_utc, id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var results []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if filter.Matches(a) {
			results = append(results, a)
		}
	}
	return results, rows.Err()
}

const ticketColumns = `id, center_id, date, service_request_id, queue_no, priority,
	status, estimated_start_utc, version, created_at, updated_at`

func scanTicket(row interface{ Scan(...any) error }) (models.QueueTicket, error) {
	var t models.QueueTicket
	err := row.Scan(&t.ID, &t.CenterID, &t.Date, &t.ServiceRequestID, &t.QueueNo,
		&t.Priority, &t.Status, &t.EstimatedStartUTC, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.QueueTicket{}, err
	}
	return t, nil
}

// CreateTicket inserts a new queue ticket at version 1.
func (p *Postgres) CreateTicket(ctx context.Context, t models.QueueTicket) (models.QueueTicket, error) {
	query := `
		INSERT INTO queue_tickets (id, center_id, date, service_request_id, queue_no,
			priority, status, estimated_start_utc, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1,$9,$10)
	`
	_, err := p.db.ExecContext(ctx, query, t.ID, t.CenterID, t.Date, t.ServiceRequestID,
		t.QueueNo, t.Priority, t.Status, t.EstimatedStartUTC, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return models.QueueTicket{}, fmt.Errorf("insert ticket: %w", err)
	}
	t.Version = 1
	return t, nil
}

// GetTicket returns the ticket with the given id.
func (p *Postgres) GetTicket(ctx context.Context, id string) (models.QueueTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM queue_tickets WHERE id=$1`
	t, err := scanTicket(p.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.QueueTicket{}, &errors.NotFoundError{Kind: "ticket", ID: id}
	}
	if err != nil {
		return models.QueueTicket{}, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

// UpdateTicket applies a compare-and-swap update keyed on the version column.
func (p *Postgres) UpdateTicket(ctx context.Context, t models.QueueTicket) (models.QueueTicket, error) {
	query := `
		UPDATE queue_tickets
		SET queue_no=$1, priority=$2, status=$3, estimated_start_utc=$4,
			version=version+1, updated_at=$5
		WHERE id=$6 AND version=$7
	`
	res, err := p.db.ExecContext(ctx, query, t.QueueNo, t.Priority, t.Status,
		t.EstimatedStartUTC, t.UpdatedAt, t.ID, t.Version)
	if err != nil {
		return models.QueueTicket{}, fmt.Errorf("update ticket: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		if _, err := p.GetTicket(ctx, t.ID); err != nil {
			return models.QueueTicket{}, err
		}
		return models.QueueTicket{}, &errors.StaleVersionError{Kind: "ticket", ID: t.ID, Version: t.Version}
	}
	t.Version++
	return t, nil
}

// ListTickets returns all tickets of a (center, date) queue ordered by queue
// number.
func (p *Postgres) ListTickets(ctx context.Context, centerID, date string) ([]models.QueueTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM queue_tickets
		WHERE center_id=$1 AND date=$2 ORDER BY queue_no, created_at`
	rows, err := p.db.QueryContext(ctx, query, centerID, date)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var results []models.QueueTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}
