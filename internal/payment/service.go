package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidAmount = errors.New("amount must be positive")

const orderIDCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewOrderID generates a TXN_<unix-ms>_<random> order reference.
func NewOrderID() string {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = orderIDCharset[rand.Intn(len(orderIDCharset))]
	}
	return fmt.Sprintf("TXN_%d_%s", time.Now().UnixMilli(), suffix)
}

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "payment").Logger(),
	}
}

type StartInput struct {
	PatientID     *uuid.UUID
	AppointmentID *uuid.UUID
	AssignmentID  *uuid.UUID
	Amount        int64
	OrderInfo     string
	Services      []byte
}

// StartTransaction opens a pending transaction for a payment-backed booking.
// Gateway signature generation and callbacks live outside this core; callers
// later settle the transaction through MarkStatus.
func (s *Service) StartTransaction(ctx context.Context, in StartInput) (*Transaction, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	orderInfo := in.OrderInfo
	if orderInfo == "" {
		orderInfo = "appointment booking"
	}

	t, err := s.repo.CreateTransaction(ctx, NewTransaction{
		OrderID:       NewOrderID(),
		PatientID:     in.PatientID,
		AppointmentID: in.AppointmentID,
		AssignmentID:  in.AssignmentID,
		Amount:        in.Amount,
		OrderInfo:     orderInfo,
		Services:      in.Services,
	})
	if err != nil {
		return nil, fmt.Errorf("start transaction: %w", err)
	}

	s.log.Info().
		Str("order_id", t.OrderID).
		Int64("amount", t.Amount).
		Msg("transaction opened")
	return t, nil
}

// MarkStatus settles a pending transaction. Terminal rows are never re-opened;
// attempting it returns ErrInvalidTransition.
func (s *Service) MarkStatus(ctx context.Context, orderID string, to Status) (*Transaction, error) {
	if to == StatusPending {
		return nil, ErrInvalidTransition
	}

	t, err := s.repo.UpdateStatus(ctx, orderID, StatusPending, to)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", orderID).
		Str("status", string(to)).
		Msg("transaction settled")
	return t, nil
}
