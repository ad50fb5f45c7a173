package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_service_bookings_created_total",
			Help: "Bookings written, by creation path",
		},
		[]string{"path"},
	)

	paymentIntentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_service_payment_intents_created_total",
			Help: "Payment reservations requested from the processor",
		},
	)

	settlementOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_service_settlement_outcomes_total",
			Help: "Reconciled payment outcomes",
		},
		[]string{"source", "event", "outcome"},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_service_notification_failures_total",
			Help: "Booking confirmations that could not be published",
		},
		[]string{"recipient"},
	)

	lifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_service_lifecycle_transitions_total",
			Help: "Booking status transitions applied from lifecycle events",
		},
		[]string{"status", "outcome"},
	)
)
