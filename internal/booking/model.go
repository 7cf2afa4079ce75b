package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// ScheduleBucket is a coarse time-of-day range used to narrow candidate slots
// before exact selection.
type ScheduleBucket string

const (
	BucketMorning   ScheduleBucket = "Morning"   // [06:00, 12:00)
	BucketAfternoon ScheduleBucket = "Afternoon" // [12:00, 18:00)
	BucketEvening   ScheduleBucket = "Evening"   // everything else
)

// ParseBucket validates a request-supplied schedule value.
func ParseBucket(s string) (ScheduleBucket, bool) {
	switch ScheduleBucket(s) {
	case BucketMorning, BucketAfternoon, BucketEvening:
		return ScheduleBucket(s), true
	}
	return "", false
}

// BucketForHour maps an hour of day to its schedule bucket.
func BucketForHour(hour int) ScheduleBucket {
	switch {
	case hour >= 6 && hour < 12:
		return BucketMorning
	case hour >= 12 && hour < 18:
		return BucketAfternoon
	default:
		return BucketEvening
	}
}

type Doctor struct {
	ID        uuid.UUID
	FullName  string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is a point in time for a single doctor. Immutable once created except
// for deactivation.
type Slot struct {
	ID        uuid.UUID
	Date      time.Time // date only, midnight UTC
	Time      string    // HH:MM
	IsActive  bool
	CreatedAt time.Time
}

// SlotAssignment is the bookable unit: it joins a doctor to a slot and carries
// the capacity counter. AppointmentsCount is mutated only through ReserveSeat
// and ReleaseSeat.
type SlotAssignment struct {
	ID                uuid.UUID
	DoctorID          uuid.UUID
	SlotID            uuid.UUID
	AppointmentsCount int
	MaxAppointments   int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SlotCandidate is one row of the slot catalog: an assignment joined with its
// active slot, as offered to bookers.
type SlotCandidate struct {
	AssignmentID      uuid.UUID `json:"doctor_slot_id"`
	SlotID            uuid.UUID `json:"slot_id"`
	SlotDate          time.Time `json:"slot_date"`
	SlotTime          string    `json:"slot_time"`
	AppointmentsCount int       `json:"appointments_count"`
	MaxAppointments   int       `json:"max_appointments"`
}

// Bucket returns the schedule bucket the candidate's time falls into.
func (c SlotCandidate) Bucket() ScheduleBucket {
	return BucketForHour(hourOf(c.SlotTime))
}

func hourOf(hhmm string) int {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return -1
	}
	return t.Hour()
}

type Guest struct {
	ID        uuid.UUID
	FullName  string
	Phone     string
	Email     *string
	CreatedAt time.Time
}

type Appointment struct {
	ID           uuid.UUID         `json:"appointment_id"`
	PatientID    *uuid.UUID        `json:"patient_id,omitempty"`
	GuestID      *uuid.UUID        `json:"guest_id,omitempty"`
	DoctorID     uuid.UUID         `json:"doctor_id"`
	AssignmentID uuid.UUID         `json:"doctor_slot_id"`
	Phone        string            `json:"phone"`
	Email        *string           `json:"email,omitempty"`
	VisitType    string            `json:"visit_type"`
	Schedule     ScheduleBucket    `json:"schedule"`
	Date         time.Time         `json:"appointment_date"`
	Time         string            `json:"appointment_time"`
	Message      *string           `json:"message,omitempty"`
	Status       AppointmentStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type StaffMember struct {
	ID           uuid.UUID
	FullName     string
	WorkingEmail string
	Role         string
}

type Notification struct {
	ID            int64     `json:"notification_id,omitempty"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	StaffID       uuid.UUID `json:"staff_id"`
	Type          string    `json:"notification_type"`
	SentAt        time.Time `json:"sent_at"`
	Delivered     bool      `json:"delivered"`
}
