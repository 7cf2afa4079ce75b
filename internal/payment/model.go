package payment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusSuccess          Status = "success"
	StatusFailed           Status = "failed"
	StatusCancel           Status = "cancel"
	StatusSignatureInvalid Status = "signature_invalid"
)

// Terminal reports whether a transaction in this status may never change
// again.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Transaction is the payment-side record of a booking flow. AssignmentID and
// AppointmentID link it back to the reserved capacity so expiry can release
// the seat.
type Transaction struct {
	ID            int64           `json:"id"`
	OrderID       string          `json:"order_id"`
	PatientID     *uuid.UUID      `json:"patient_id,omitempty"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	AssignmentID  *uuid.UUID      `json:"doctor_slot_id,omitempty"`
	Amount        int64           `json:"amount"`
	OrderInfo     string          `json:"order_info"`
	Services      json.RawMessage `json:"services,omitempty"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
