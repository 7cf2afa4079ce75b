package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidTransition is returned when a guarded status update matches no
	// row, typically because the transaction already reached a terminal state.
	ErrInvalidTransition = errors.New("transaction is not in the expected status")
)

type NewTransaction struct {
	OrderID       string
	PatientID     *uuid.UUID
	AppointmentID *uuid.UUID
	AssignmentID  *uuid.UUID
	Amount        int64
	OrderInfo     string
	Services      []byte
}

// Repository contains all DB interactions for payment transactions.
type Repository interface {
	CreateTransaction(ctx context.Context, in NewTransaction) (*Transaction, error)
	GetByOrderID(ctx context.Context, orderID string) (*Transaction, error)

	// UpdateStatus transitions orderID from one status to another. It matches
	// nothing when the row is absent or no longer in `from`, so terminal
	// states are never re-opened.
	UpdateStatus(ctx context.Context, orderID string, from, to Status) (*Transaction, error)

	// FindExpiredPending returns pending transactions created before olderThan.
	FindExpiredPending(ctx context.Context, olderThan time.Time) ([]Transaction, error)
}
