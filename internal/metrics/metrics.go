package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookingsTotal counts booking attempts by final outcome
	// (booked, no_availability, selection_required, slot_full, error).
	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_requests_total",
		Help: "Booking attempts by outcome.",
	}, []string{"outcome"})

	// ReservationConflicts counts ReserveSeat calls that lost the capacity race.
	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_reservation_conflicts_total",
		Help: "Reservations rejected because the slot was already full.",
	})

	// CompensatingReleases counts seat releases after a failed recording step.
	CompensatingReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_compensating_releases_total",
		Help: "Reserved seats released because appointment recording failed.",
	})

	// NotificationPublishFailures counts per-recipient publish failures.
	NotificationPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_publish_failures_total",
		Help: "Staff notification publishes that failed on the primary channel.",
	})

	// TransactionsExpired counts transactions cancelled by the sweeper.
	TransactionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_transactions_expired_total",
		Help: "Pending payment transactions auto-cancelled after the TTL.",
	})
)
