package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs. Tests substitute a
// pgxmock pool.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const transactionColumns = `id, order_id, patient_id, appointment_id, doctor_slot_id,
	amount, order_info, services, status, created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var patientID, appointmentID, assignmentID *uuid.UUID
	var services []byte

	err := row.Scan(
		&t.ID,
		&t.OrderID,
		&patientID,
		&appointmentID,
		&assignmentID,
		&t.Amount,
		&t.OrderInfo,
		&services,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	t.PatientID = patientID
	t.AppointmentID = appointmentID
	t.AssignmentID = assignmentID
	t.Services = services
	return &t, nil
}

func (r *PgRepository) CreateTransaction(ctx context.Context, in NewTransaction) (*Transaction, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO transactions (
			order_id, patient_id, appointment_id, doctor_slot_id,
			amount, order_info, services, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', now(), now())
		RETURNING `+transactionColumns+`
	`, in.OrderID, in.PatientID, in.AppointmentID, in.AssignmentID,
		in.Amount, in.OrderInfo, in.Services)

	t, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func (r *PgRepository) GetByOrderID(ctx context.Context, orderID string) (*Transaction, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE order_id = $1
	`, orderID)
	return scanTransaction(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, orderID string, from, to Status) (*Transaction, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE transactions
		SET status = $2,
		    updated_at = now()
		WHERE order_id = $1
		  AND status = $3
		RETURNING `+transactionColumns+`
	`, orderID, to, from)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			// Distinguish "gone" from "already transitioned".
			if _, getErr := r.GetByOrderID(ctx, orderID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return t, nil
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, olderThan time.Time) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = 'pending'
		  AND created_at < $1
	`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
