package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careportal/booking-core/internal/booking"
)

const TypeNewAppointment = "new_appointment"

// Store persists notification rows. The booking repository satisfies it.
type Store interface {
	InsertNotifications(ctx context.Context, ns []booking.Notification) error
}

type Fanout struct {
	store Store
	pub   Publisher
	log   zerolog.Logger
}

func NewFanout(store Store, pub Publisher, log zerolog.Logger) *Fanout {
	return &Fanout{
		store: store,
		pub:   pub,
		log:   log.With().Str("component", "fanout").Logger(),
	}
}

type staffPayload struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	Date          string    `json:"appointment_date"`
	Time          string    `json:"appointment_time"`
	VisitType     string    `json:"visit_type"`
	BookerPhone   string    `json:"booker_phone"`
	BookerEmail   string    `json:"booker_email,omitempty"`
	StaffID       uuid.UUID `json:"staff_id"`
	StaffEmail    string    `json:"staff_email"`
	Type          string    `json:"notification_type"`
}

// Notify writes one notification row per recipient to durable storage, then
// attempts a publish per recipient on the primary channel. Rows are persisted
// first so a dead channel degrades to at-least-once delivery from the table
// instead of silent loss.
func (f *Fanout) Notify(ctx context.Context, appt *booking.Appointment, staff []booking.StaffMember) (booking.FanoutResult, error) {
	res := booking.FanoutResult{Attempted: len(staff)}
	if len(staff) == 0 {
		return res, nil
	}

	now := time.Now().UTC()
	rows := make([]booking.Notification, 0, len(staff))
	for _, m := range staff {
		rows = append(rows, booking.Notification{
			AppointmentID: appt.ID,
			StaffID:       m.ID,
			Type:          TypeNewAppointment,
			SentAt:        now,
			Delivered:     false,
		})
	}

	if err := f.store.InsertNotifications(ctx, rows); err != nil {
		// Durable log is the floor of the delivery guarantee; losing it is a
		// reportable failure even though the booking itself stands.
		return res, fmt.Errorf("persist notifications: %w", err)
	}

	if err := f.pub.Ping(ctx); err != nil {
		f.log.Warn().Err(err).
			Str("appointment_id", appt.ID.String()).
			Int("recipients", len(staff)).
			Msg("primary channel unavailable, relying on persisted notifications")
		res.FellBack = true
		return res, nil
	}

	email := ""
	if appt.Email != nil {
		email = *appt.Email
	}

	for _, m := range staff {
		payload, err := json.Marshal(staffPayload{
			AppointmentID: appt.ID,
			DoctorID:      appt.DoctorID,
			Date:          appt.Date.Format("2006-01-02"),
			Time:          appt.Time,
			VisitType:     appt.VisitType,
			BookerPhone:   appt.Phone,
			BookerEmail:   email,
			StaffID:       m.ID,
			StaffEmail:    m.WorkingEmail,
			Type:          TypeNewAppointment,
		})
		if err != nil {
			res.Failed = append(res.Failed, m.ID)
			continue
		}

		channel := fmt.Sprintf("notifications:staff:%s", m.ID)
		if err := f.pub.Publish(ctx, channel, payload); err != nil {
			f.log.Warn().Err(err).
				Str("staff_id", m.ID.String()).
				Str("appointment_id", appt.ID.String()).
				Msg("notification publish failed")
			res.Failed = append(res.Failed, m.ID)
			continue
		}
		res.Delivered++
	}

	return res, nil
}
