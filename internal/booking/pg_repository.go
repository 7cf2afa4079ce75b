package booking

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

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.FullName,
		&specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanAssignment(row pgx.Row) (*SlotAssignment, error) {
	var a SlotAssignment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.SlotID,
		&a.AppointmentsCount,
		&a.MaxAppointments,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var patientID, guestID *uuid.UUID
	var email, message *string

	err := row.Scan(
		&a.ID,
		&patientID,
		&guestID,
		&a.DoctorID,
		&a.AssignmentID,
		&a.Phone,
		&email,
		&a.VisitType,
		&a.Schedule,
		&a.Date,
		&a.Time,
		&message,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.PatientID = patientID
	a.GuestID = guestID
	a.Email = email
	a.Message = message
	return &a, nil
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT doctor_id, full_name, specialty, created_at, updated_at
		FROM doctors
		WHERE doctor_id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]SlotCandidate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.doctor_slot_id, s.slot_id, s.slot_date, to_char(s.slot_time, 'HH24:MI'),
		       a.appointments_count, a.max_appointments
		FROM doctor_slot_assignments a
		JOIN slots s ON s.slot_id = a.slot_id
		WHERE a.doctor_id = $1
		  AND s.is_active = true
		  AND a.appointments_count < a.max_appointments
		  AND s.slot_date BETWEEN $2 AND $3
		ORDER BY s.slot_date ASC, s.slot_time ASC
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SlotCandidate
	for rows.Next() {
		var c SlotCandidate
		if err := rows.Scan(
			&c.AssignmentID,
			&c.SlotID,
			&c.SlotDate,
			&c.SlotTime,
			&c.AppointmentsCount,
			&c.MaxAppointments,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetAssignmentByID(ctx context.Context, id uuid.UUID) (*SlotAssignment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT doctor_slot_id, doctor_id, slot_id, appointments_count, max_appointments, created_at, updated_at
		FROM doctor_slot_assignments
		WHERE doctor_slot_id = $1
	`, id)
	return scanAssignment(row)
}

// ReserveSeat runs the capacity check and increment as a single conditional
// UPDATE so two concurrent callers can never both win the last seat. A split
// SELECT-then-UPDATE from here would race and is deliberately not offered.
func (r *PgRepository) ReserveSeat(ctx context.Context, assignmentID uuid.UUID) (int, error) {
	var newCount int
	err := r.db.QueryRow(ctx, `
		UPDATE doctor_slot_assignments
		SET appointments_count = appointments_count + 1,
		    updated_at = now()
		WHERE doctor_slot_id = $1
		  AND appointments_count < max_appointments
		RETURNING appointments_count
	`, assignmentID).Scan(&newCount)
	if err == nil {
		return newCount, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("reserve seat: %w", err)
	}

	// No row updated: either the assignment is full or it does not exist.
	if _, lookupErr := r.GetAssignmentByID(ctx, assignmentID); lookupErr != nil {
		return 0, lookupErr
	}
	return 0, ErrSlotFull
}

// ReleaseSeat gives one unit of capacity back, guarded so the counter can
// never go negative.
func (r *PgRepository) ReleaseSeat(ctx context.Context, assignmentID uuid.UUID) (int, error) {
	var newCount int
	err := r.db.QueryRow(ctx, `
		UPDATE doctor_slot_assignments
		SET appointments_count = appointments_count - 1,
		    updated_at = now()
		WHERE doctor_slot_id = $1
		  AND appointments_count > 0
		RETURNING appointments_count
	`, assignmentID).Scan(&newCount)
	if err == nil {
		return newCount, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("release seat: %w", err)
	}

	if _, lookupErr := r.GetAssignmentByID(ctx, assignmentID); lookupErr != nil {
		return 0, lookupErr
	}
	return 0, ErrNoCapacityHeld
}

// GetOrCreateGuest upserts on the guest's phone number so retries of the same
// booking never create duplicate guest rows.
func (r *PgRepository) GetOrCreateGuest(ctx context.Context, fullName, phone string, email *string) (*Guest, error) {
	var g Guest
	var gotEmail *string

	err := r.db.QueryRow(ctx, `
		INSERT INTO guests (guest_id, full_name, phone, email, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING guest_id, full_name, phone, email, created_at
	`, uuid.New(), fullName, phone, email).Scan(
		&g.ID,
		&g.FullName,
		&g.Phone,
		&gotEmail,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert guest: %w", err)
	}

	g.Email = gotEmail
	return &g, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (
			appointment_id, patient_id, guest_id, doctor_id, doctor_slot_id,
			phone, email, visit_type, schedule, appointment_date, appointment_time,
			message, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING appointment_id, patient_id, guest_id, doctor_id, doctor_slot_id,
		          phone, email, visit_type, schedule, appointment_date,
		          to_char(appointment_time, 'HH24:MI'), message, status, created_at, updated_at
	`, uuid.New(), in.PatientID, in.GuestID, in.DoctorID, in.AssignmentID,
		in.Phone, in.Email, in.VisitType, in.Schedule, in.Date, in.Time,
		in.Message, in.Status)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE appointment_id = $1
		  AND status = $3
		RETURNING appointment_id, patient_id, guest_id, doctor_id, doctor_slot_id,
		          phone, email, visit_type, schedule, appointment_date,
		          to_char(appointment_time, 'HH24:MI'), message, status, created_at, updated_at
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ListStaffCovering(ctx context.Context, slotTime string) ([]StaffMember, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT m.staff_id, m.full_name, m.working_email, m.role
		FROM staff_schedules sch
		JOIN staff_members m ON m.staff_id = sch.staff_id
		WHERE sch.start_time <= $1::time
		  AND sch.end_time > $1::time
		  AND m.role IN ('receptionist', 'doctor')
		ORDER BY m.full_name ASC
	`, slotTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StaffMember
	for rows.Next() {
		var m StaffMember
		if err := rows.Scan(&m.ID, &m.FullName, &m.WorkingEmail, &m.Role); err != nil {
			return nil, err
		}
		result = append(result, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertNotifications(ctx context.Context, ns []Notification) error {
	for _, n := range ns {
		_, err := r.db.Exec(ctx, `
			INSERT INTO notifications (appointment_id, staff_id, notification_type, sent_at, delivered)
			VALUES ($1, $2, $3, $4, $5)
		`, n.AppointmentID, n.StaffID, n.Type, n.SentAt, n.Delivered)
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}
