package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careportal/booking-core/internal/booking"
	"github.com/careportal/booking-core/internal/metrics"
)

// SeatReleaser is the slice of the booking repository the sweeper needs to
// give expired capacity back.
type SeatReleaser interface {
	ReleaseSeat(ctx context.Context, assignmentID uuid.UUID) (int, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to booking.AppointmentStatus) (*booking.Appointment, error)
}

// Sweeper cancels transactions left pending past the TTL. Cancelling also
// cancels the linked pending appointment and then releases the linked slot
// seat, so slot capacity and payment state cannot drift apart. A linked
// appointment that already settled keeps its seat.
type Sweeper struct {
	txs   Repository
	seats SeatReleaser
	ttl   time.Duration
	log   zerolog.Logger
}

func NewSweeper(txs Repository, seats SeatReleaser, ttl time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		txs:   txs,
		seats: seats,
		ttl:   ttl,
		log:   log.With().Str("component", "sweeper").Logger(),
	}
}

// Sweep is invoked on an interval by the expiry worker. Returns the number of
// transactions it cancelled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	olderThan := time.Now().Add(-s.ttl)

	expired, err := s.txs.FindExpiredPending(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, t := range expired {
		if _, err := s.txs.UpdateStatus(ctx, t.OrderID, StatusPending, StatusCancel); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrTransactionNotFound) {
				// Settled between the scan and the update; nothing to do.
				continue
			}
			s.log.Error().Err(err).Str("order_id", t.OrderID).Msg("cancel failed")
			continue
		}

		cancelled++
		metrics.TransactionsExpired.Inc()
		s.releaseCapacity(ctx, t)
	}

	if cancelled > 0 {
		s.log.Info().Int("cancelled", cancelled).Msg("sweep complete")
	}
	return cancelled, nil
}

func (s *Sweeper) releaseCapacity(ctx context.Context, t Transaction) {
	if t.AppointmentID != nil {
		_, err := s.seats.UpdateAppointmentStatus(ctx, *t.AppointmentID, booking.StatusPending, booking.StatusCancelled)
		if err != nil {
			if errors.Is(err, booking.ErrAppointmentNotFound) {
				// The linked appointment is gone or no longer pending; its seat
				// belongs to whatever settled it, not to this transaction.
				return
			}
			s.log.Error().Err(err).
				Str("order_id", t.OrderID).
				Str("appointment_id", t.AppointmentID.String()).
				Msg("appointment cancel failed for expired transaction")
			return
		}
	}

	if t.AssignmentID != nil {
		if _, err := s.seats.ReleaseSeat(ctx, *t.AssignmentID); err != nil {
			if !errors.Is(err, booking.ErrNoCapacityHeld) {
				s.log.Error().Err(err).
					Str("order_id", t.OrderID).
					Str("doctor_slot_id", t.AssignmentID.String()).
					Msg("seat release failed for expired transaction")
			}
		}
	}
}
