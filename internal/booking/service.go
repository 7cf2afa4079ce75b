package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careportal/booking-core/internal/metrics"
)

var (
	// ErrCounterCorrupt means the post-reservation consistency read observed a
	// count the atomic increment could not have produced. Fatal, not retryable.
	ErrCounterCorrupt = errors.New("slot counter inconsistent after reservation")

	// ErrRecordingFailed marks the partial-failure state: capacity was
	// consumed but no appointment row exists. The seat has been released.
	ErrRecordingFailed = errors.New("appointment recording failed after reservation")

	// ErrReconcileRequired means recording failed and the compensating seat
	// release failed too, leaving a dangling increment for the operator.
	ErrReconcileRequired = errors.New("seat release failed after recording failure, operator reconciliation required")

	ErrInvalidDate = errors.New("appointment_date must be YYYY-MM-DD")
)

// FanoutResult reports notification delivery for one booking. Publish
// failures are operational data, never booking failures.
type FanoutResult struct {
	Attempted int         `json:"attempted"`
	Delivered int         `json:"delivered"`
	Failed    []uuid.UUID `json:"failed,omitempty"`
	FellBack  bool        `json:"fell_back,omitempty"`
}

// Notifier fans one appointment out to the staff members covering its slot.
type Notifier interface {
	Notify(ctx context.Context, appt *Appointment, staff []StaffMember) (FanoutResult, error)
}

type Service struct {
	repo       Repository
	notifier   Notifier
	windowDays int
	log        zerolog.Logger
}

func NewService(repo Repository, notifier Notifier, windowDays int, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		notifier:   notifier,
		windowDays: windowDays,
		log:        log.With().Str("component", "booking").Logger(),
	}
}

type BookRequest struct {
	DoctorID        uuid.UUID
	Date            string // YYYY-MM-DD
	Schedule        ScheduleBucket
	PreferredSlotID *uuid.UUID
	PreferredTime   *string
	VisitType       string
	FullName        string
	Phone           string
	Email           *string
	PatientID       *uuid.UUID
	Message         *string
}

type BookResult struct {
	Appointment *Appointment
	Slot        SlotCandidate
	Fanout      FanoutResult
}

// ListAvailableSlots returns the bookable catalog for a doctor over the
// rolling window [today, today+windowDays]. windowDays <= 0 uses the
// configured default.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, windowDays int) ([]SlotCandidate, error) {
	if windowDays <= 0 {
		windowDays = s.windowDays
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	from := midnightUTC(time.Now())
	to := from.AddDate(0, 0, windowDays)
	return s.repo.ListAvailableSlots(ctx, doctorID, from, to)
}

// Book runs the full pipeline: selection, atomic reservation, recording,
// fan-out. Stages are strictly sequenced; each depends on the previous
// stage's committed effect.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, ErrInvalidDate
	}

	// ListAvailableSlots already verifies the doctor exists.
	candidates, err := s.ListAvailableSlots(ctx, req.DoctorID, 0)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	chosen, err := SelectSlot(candidates, req.Date, req.Schedule, req.PreferredSlotID, req.PreferredTime)
	if err != nil {
		metrics.BookingsTotal.WithLabelValues(outcomeOf(err)).Inc()
		return nil, err
	}

	newCount, err := s.repo.ReserveSeat(ctx, chosen.AssignmentID)
	if err != nil {
		if errors.Is(err, ErrSlotFull) {
			// Lost the race. Surface the current candidate list so the booker
			// can re-select against fresh availability.
			metrics.ReservationConflicts.Inc()
			metrics.BookingsTotal.WithLabelValues("slot_full").Inc()
			return nil, &SelectionError{
				Err:        ErrSlotFull,
				Candidates: s.freshCandidates(ctx, req),
			}
		}
		metrics.BookingsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("reserve seat: %w", err)
	}

	if err := s.verifyReservation(ctx, chosen.AssignmentID, newCount); err != nil {
		metrics.BookingsTotal.WithLabelValues("error").Inc()
		metrics.CompensatingReleases.Inc()
		if _, relErr := s.repo.ReleaseSeat(ctx, chosen.AssignmentID); relErr != nil {
			s.log.Error().
				Err(relErr).
				Str("doctor_slot_id", chosen.AssignmentID.String()).
				Msg("seat release failed after reservation verify failure, manual reconciliation required")
		}
		return nil, err
	}

	appt, err := s.record(ctx, req, chosen)
	if err != nil {
		metrics.BookingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	fanout := s.fanOut(ctx, appt, chosen)

	metrics.BookingsTotal.WithLabelValues("booked").Inc()
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_slot_id", chosen.AssignmentID.String()).
		Int("seat", newCount).
		Int("notified", fanout.Delivered).
		Msg("booking complete")

	return &BookResult{
		Appointment: appt,
		Slot:        chosen,
		Fanout:      fanout,
	}, nil
}

// verifyReservation re-reads the assignment after the atomic increment.
// Other bookers may have incremented further or released compensatively in
// the meantime, so the count can legally sit anywhere in [0, max]; the only
// impossible observations are a non-positive increment result and a counter
// above capacity.
func (s *Service) verifyReservation(ctx context.Context, assignmentID uuid.UUID, newCount int) error {
	a, err := s.repo.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}

	if newCount < 1 || a.AppointmentsCount > a.MaxAppointments {
		s.log.Error().
			Str("doctor_slot_id", assignmentID.String()).
			Int("reserved_count", newCount).
			Int("observed_count", a.AppointmentsCount).
			Int("max_appointments", a.MaxAppointments).
			Msg("reservation counter out of bounds")
		return ErrCounterCorrupt
	}
	return nil
}

// record resolves the booker identity and inserts the appointment row. On
// failure it releases the reserved seat synchronously before returning, so no
// dangling increment survives the request.
func (s *Service) record(ctx context.Context, req BookRequest, chosen SlotCandidate) (*Appointment, error) {
	date, _ := time.Parse("2006-01-02", req.Date)

	in := NewAppointment{
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		AssignmentID: chosen.AssignmentID,
		Phone:        req.Phone,
		Email:        req.Email,
		VisitType:    req.VisitType,
		Schedule:     req.Schedule,
		Date:         date,
		Time:         chosen.SlotTime,
		Message:      req.Message,
		Status:       StatusConfirmed,
	}

	var recordErr error
	if req.PatientID == nil {
		guest, err := s.repo.GetOrCreateGuest(ctx, req.FullName, req.Phone, req.Email)
		if err != nil {
			recordErr = fmt.Errorf("resolve guest: %w", err)
		} else {
			in.GuestID = &guest.ID
		}
	}

	var appt *Appointment
	if recordErr == nil {
		appt, recordErr = s.repo.CreateAppointment(ctx, in)
	}

	if recordErr == nil {
		return appt, nil
	}

	metrics.CompensatingReleases.Inc()
	if _, relErr := s.repo.ReleaseSeat(ctx, chosen.AssignmentID); relErr != nil {
		s.log.Error().
			Err(relErr).
			Str("doctor_slot_id", chosen.AssignmentID.String()).
			AnErr("record_error", recordErr).
			Msg("seat release failed after recording failure, manual reconciliation required")
		return nil, fmt.Errorf("%w: %v", ErrReconcileRequired, recordErr)
	}

	s.log.Warn().
		Err(recordErr).
		Str("doctor_slot_id", chosen.AssignmentID.String()).
		Msg("recording failed, reserved seat released")
	return nil, fmt.Errorf("%w: %v", ErrRecordingFailed, recordErr)
}

// fanOut is best-effort relative to booking durability: a booking that cannot
// notify staff is still a valid, confirmed booking.
func (s *Service) fanOut(ctx context.Context, appt *Appointment, chosen SlotCandidate) FanoutResult {
	staff, err := s.repo.ListStaffCovering(ctx, chosen.SlotTime)
	if err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("could not load staff schedules for fan-out")
		return FanoutResult{}
	}

	res, err := s.notifier.Notify(ctx, appt, staff)
	if err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("notification fan-out failed")
	}
	if n := len(res.Failed); n > 0 {
		metrics.NotificationPublishFailures.Add(float64(n))
	}
	return res
}

func (s *Service) freshCandidates(ctx context.Context, req BookRequest) []SlotCandidate {
	all, err := s.ListAvailableSlots(ctx, req.DoctorID, 0)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not refresh candidates after capacity conflict")
		return nil
	}
	return FilterCandidates(all, req.Date, req.Schedule)
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNoAvailability):
		return "no_availability"
	case errors.Is(err, ErrSelectionRequired):
		return "selection_required"
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrPreferredTimeUnavailable):
		return "slot_unavailable"
	default:
		return "error"
	}
}
