package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAssignmentNotFound  = errors.New("slot assignment not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotFull is returned by ReserveSeat when the capacity check loses the
	// race: the row exists but appointments_count has reached max_appointments.
	ErrSlotFull = errors.New("slot is fully booked")

	// ErrNoCapacityHeld is returned by ReleaseSeat when the counter is already
	// at zero, meaning there is nothing to give back.
	ErrNoCapacityHeld = errors.New("no reserved capacity to release")
)

// NewAppointment carries everything needed to insert an appointment row.
// Exactly one of PatientID and GuestID must be set.
type NewAppointment struct {
	PatientID    *uuid.UUID
	GuestID      *uuid.UUID
	DoctorID     uuid.UUID
	AssignmentID uuid.UUID
	Phone        string
	Email        *string
	VisitType    string
	Schedule     ScheduleBucket
	Date         time.Time
	Time         string
	Message      *string
	Status       AppointmentStatus
}

// Repository contains all DB interactions needed by the booking service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// ListAvailableSlots returns assignment×slot joins for active slots whose
	// date falls in [from, to] inclusive, ordered by slot_date then slot_time.
	ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]SlotCandidate, error)

	GetAssignmentByID(ctx context.Context, id uuid.UUID) (*SlotAssignment, error)

	// ReserveSeat performs the capacity-checked increment as one atomic
	// statement and returns the new appointments_count.
	ReserveSeat(ctx context.Context, assignmentID uuid.UUID) (int, error)

	// ReleaseSeat is the compensating decrement, used when a later stage fails
	// after a successful reservation.
	ReleaseSeat(ctx context.Context, assignmentID uuid.UUID) (int, error)

	// GetOrCreateGuest resolves a guest identity idempotently on phone number.
	GetOrCreateGuest(ctx context.Context, fullName, phone string, email *string) (*Guest, error)

	CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// ListStaffCovering returns staff members whose duty schedule covers the
	// given time of day, restricted to notification-eligible roles.
	ListStaffCovering(ctx context.Context, slotTime string) ([]StaffMember, error)

	InsertNotifications(ctx context.Context, ns []Notification) error
}
