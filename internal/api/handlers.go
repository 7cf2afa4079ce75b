package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careportal/booking-core/internal/booking"
	"github.com/careportal/booking-core/internal/payment"
)

// Optional leading +, no leading zero, up to 15 digits.
var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("intl_phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

func listSlotsHandler(svc *booking.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "doctor id must be a valid UUID", nil)
			return
		}

		windowDays := 0
		if raw := r.URL.Query().Get("window_days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "window_days must be a positive integer", nil)
				return
			}
			windowDays = n
		}

		slots, err := svc.ListAvailableSlots(r.Context(), doctorID, windowDays)
		if err != nil {
			if errors.Is(err, booking.ErrDoctorNotFound) {
				writeError(w, http.StatusNotFound, "doctor not found", nil)
				return
			}
			logger.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("list slots failed")
			writeError(w, http.StatusInternalServerError, "internal error", nil)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			DoctorID: doctorID.String(),
			Slots:    slots,
		})
	}
}

func createBookingHandler(svc *booking.Service, v *validator.Validate, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON body", nil)
			return
		}

		if err := v.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid booking request", validationDetails(err))
			return
		}

		in, err := toBookRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}

		result, err := svc.Book(r.Context(), in)
		if err != nil {
			handleBookError(w, r, err, logger)
			return
		}

		writeSuccess(w, BookingData{
			Appointment:   result.Appointment,
			SlotInfo:      result.Slot,
			Notifications: result.Fanout,
		})
	}
}

func toBookRequest(req BookingRequest) (booking.BookRequest, error) {
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return booking.BookRequest{}, errors.New("doctor_id must be a valid UUID")
	}

	bucket, ok := booking.ParseBucket(req.Schedule)
	if !ok {
		return booking.BookRequest{}, errors.New("schedule must be Morning, Afternoon or Evening")
	}

	in := booking.BookRequest{
		DoctorID:      doctorID,
		Date:          req.AppointmentDate,
		Schedule:      bucket,
		PreferredTime: req.PreferredTime,
		VisitType:     req.VisitType,
		FullName:      req.FullName,
		Phone:         req.Phone,
		Email:         req.Email,
		Message:       req.Message,
	}

	if req.PreferredSlotID != nil {
		id, err := uuid.Parse(*req.PreferredSlotID)
		if err != nil {
			return booking.BookRequest{}, errors.New("preferred_slot_id must be a valid UUID")
		}
		in.PreferredSlotID = &id
	}

	if req.PatientID != nil {
		id, err := uuid.Parse(*req.PatientID)
		if err != nil {
			return booking.BookRequest{}, errors.New("patient_id must be a valid UUID")
		}
		in.PatientID = &id
	}

	return in, nil
}

func handleBookError(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	var selErr *booking.SelectionError
	switch {
	case errors.As(err, &selErr):
		writeError(w, http.StatusBadRequest, selErr.Error(), map[string]any{
			"available_slots": selErr.Candidates,
		})
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor not found", nil)
	case errors.Is(err, booking.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		// Reservation, recording, or infrastructure failure: generic message
		// out, full detail in the log.
		logger.Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Msg("booking failed")
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func createTransactionHandler(svc *payment.Service, v *validator.Validate, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON body", nil)
			return
		}

		if err := v.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid transaction request", validationDetails(err))
			return
		}

		in := payment.StartInput{
			Amount:    req.Amount,
			OrderInfo: req.OrderInfo,
			Services:  req.Services,
		}

		var parseErr error
		in.PatientID, parseErr = parseOptionalUUID(req.PatientID, "patient_id")
		if parseErr == nil {
			in.AppointmentID, parseErr = parseOptionalUUID(req.AppointmentID, "appointment_id")
		}
		if parseErr == nil {
			in.AssignmentID, parseErr = parseOptionalUUID(req.DoctorSlotID, "doctor_slot_id")
		}
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error(), nil)
			return
		}

		t, err := svc.StartTransaction(r.Context(), in)
		if err != nil {
			if errors.Is(err, payment.ErrInvalidAmount) {
				writeError(w, http.StatusBadRequest, err.Error(), nil)
				return
			}
			logger.Error().Err(err).
				Str("request_id", GetRequestID(r.Context())).
				Msg("transaction start failed")
			writeError(w, http.StatusInternalServerError, "internal error", nil)
			return
		}

		writeSuccess(w, TransactionData{Transaction: t})
	}
}

func parseOptionalUUID(s *string, field string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, errors.New(field + " must be a valid UUID")
	}
	return &id, nil
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return map[string]any{"invalid_fields": fields}
}
