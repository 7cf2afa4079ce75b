package api

import (
	"encoding/json"

	"github.com/careportal/booking-core/internal/booking"
	"github.com/careportal/booking-core/internal/payment"
)

type BookingRequest struct {
	DoctorID        string  `json:"doctor_id" validate:"required,uuid"`
	AppointmentDate string  `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Schedule        string  `json:"schedule" validate:"required,oneof=Morning Afternoon Evening"`
	PreferredSlotID *string `json:"preferred_slot_id,omitempty" validate:"omitempty,uuid"`
	PreferredTime   *string `json:"preferred_time,omitempty" validate:"omitempty,datetime=15:04"`
	VisitType       string  `json:"visit_type" validate:"required"`
	FullName        string  `json:"full_name" validate:"required"`
	Phone           string  `json:"phone" validate:"required,intl_phone"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email"`
	PatientID       *string `json:"patient_id,omitempty" validate:"omitempty,uuid"`
	Message         *string `json:"message,omitempty"`
}

type BookingData struct {
	Appointment   *booking.Appointment  `json:"appointment"`
	SlotInfo      booking.SlotCandidate `json:"slot_info"`
	Notifications booking.FanoutResult  `json:"notifications"`
}

type SlotsResponse struct {
	DoctorID string                  `json:"doctor_id"`
	Slots    []booking.SlotCandidate `json:"slots"`
}

type TransactionRequest struct {
	Amount        int64           `json:"amount" validate:"required,gt=0"`
	OrderInfo     string          `json:"order_info,omitempty"`
	PatientID     *string         `json:"patient_id,omitempty" validate:"omitempty,uuid"`
	AppointmentID *string         `json:"appointment_id,omitempty" validate:"omitempty,uuid"`
	DoctorSlotID  *string         `json:"doctor_slot_id,omitempty" validate:"omitempty,uuid"`
	Services      json.RawMessage `json:"services,omitempty"`
}

type TransactionData struct {
	Transaction *payment.Transaction `json:"transaction"`
}
