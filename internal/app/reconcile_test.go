package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cutline/booking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkout runs InitiatePayment and returns the reservation as the processor
// reports it after the client pays.
func checkout(t *testing.T, f *fixture) domain.PaymentReservation {
	t.Helper()
	result, err := f.svc.InitiatePayment(context.Background(), f.request())
	require.NoError(t, err)
	req := f.processor.requests[len(f.processor.requests)-1]
	return f.succeededReservation(result.PaymentIntentID, req.Metadata, req.Amount)
}

func succeededEvent(res domain.PaymentReservation) domain.PaymentEvent {
	return domain.PaymentEvent{ID: "evt_" + res.ID, Type: domain.PaymentEventSucceeded, Reservation: res}
}

func TestHandlePaymentEvent_SuccessCreatesBooking(t *testing.T) {
	f := newFixture()
	res := checkout(t, f)

	require.NoError(t, f.svc.HandlePaymentEvent(context.Background(), succeededEvent(res)))

	booking, err := f.repo.FindBookingByPaymentIntentID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, domain.PaymentStatusSucceeded, booking.PaymentStatus)
	assert.Equal(t, int64(4338), booking.Price)
	assert.Equal(t, int64(338), booking.PlatformFee)
	assert.Equal(t, int64(4135), booking.BarberPayout)
	assert.Equal(t, int64(1000), booking.AddonTotal)
	require.NotNil(t, booking.Notes)
	assert.Equal(t, "first visit", *booking.Notes)

	require.Len(t, f.repo.lineItems[booking.ID], 1)
	assert.Equal(t, f.addon.ID, f.repo.lineItems[booking.ID][0].AddonID)

	assert.Equal(t, 2, f.publisher.count(routingKeyBookingConfirmed))
	assert.Equal(t, 1, f.publisher.count(routingKeyBookingSettled))
}

func TestHandlePaymentEvent_ReplayCreatesOneBooking(t *testing.T) {
	f := newFixture()
	res := checkout(t, f)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.HandlePaymentEvent(context.Background(), succeededEvent(res)))
	}

	assert.Equal(t, 1, f.repo.bookingCount())
	assert.Equal(t, 2, f.publisher.count(routingKeyBookingConfirmed), "confirmations go out once")
}

func TestHandlePaymentEvent_ConcurrentDeliveries(t *testing.T) {
	f := newFixture()
	res := checkout(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.HandlePaymentEvent(context.Background(), succeededEvent(res)))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.repo.bookingCount())
	assert.Equal(t, 2, f.publisher.count(routingKeyBookingConfirmed))
}

func TestSettleSuccess_LosingWriterReturnsWinner(t *testing.T) {
	f := newFixture()
	res := checkout(t, f)
	f.repo.raceOnCreate = true

	booking, outcome, err := f.svc.settleSuccess(context.Background(), res, sourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, res.ID, booking.PaymentIntentID)
	assert.Equal(t, 1, f.repo.bookingCount())
	assert.Zero(t, f.publisher.count(routingKeyBookingConfirmed))
}

func TestHandlePaymentEvent_SuccessSettlesPendingBooking(t *testing.T) {
	f := newFixture()
	res := checkout(t, f)
	pending := seedBooking(f, res.ID, domain.PaymentStatusPending)

	require.NoError(t, f.svc.HandlePaymentEvent(context.Background(), succeededEvent(res)))

	got, err := f.repo.FindBookingByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSucceeded, got.PaymentStatus)
	assert.Equal(t, 1, f.repo.bookingCount())
	assert.Equal(t, 1, f.publisher.count(routingKeyBookingSettled))
}

func TestHandlePaymentEvent_FailureWithoutBookingWritesNothing(t *testing.T) {
	f := newFixture()
	res := checkout(t, f)
	res.Status = "requires_payment_method"
	res.FailureMessage = "Your card was declined."

	err := f.svc.HandlePaymentEvent(context.Background(), domain.PaymentEvent{
		ID:          "evt_failed",
		Type:        domain.PaymentEventFailed,
		Reservation: res,
	})
	require.NoError(t, err)
	assert.Zero(t, f.repo.bookingCount())
	assert.Empty(t, f.publisher.events)
}

func TestHandlePaymentEvent_FailureMarksPendingBookingFailed(t *testing.T) {
	f := newFixture()
	pending := seedBooking(f, "pi_legacy", domain.PaymentStatusPending)

	err := f.svc.HandlePaymentEvent(context.Background(), domain.PaymentEvent{
		ID:          "evt_failed",
		Type:        domain.PaymentEventFailed,
		Reservation: domain.PaymentReservation{ID: "pi_legacy"},
	})
	require.NoError(t, err)

	got, err := f.repo.FindBookingByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, got.PaymentStatus)
	assert.Equal(t, 1, f.publisher.count(routingKeyBookingPaymentFailed))
}

func TestHandlePaymentEvent_FailureNeverDowngradesSucceeded(t *testing.T) {
	f := newFixture()
	paid := seedBooking(f, "pi_paid", domain.PaymentStatusSucceeded)

	err := f.svc.HandlePaymentEvent(context.Background(), domain.PaymentEvent{
		ID:          "evt_late_failure",
		Type:        domain.PaymentEventFailed,
		Reservation: domain.PaymentReservation{ID: "pi_paid"},
	})
	require.NoError(t, err)

	got, err := f.repo.FindBookingByID(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSucceeded, got.PaymentStatus)
	assert.Empty(t, f.publisher.events)
}

func TestHandlePaymentEvent_UnresolvableMetadataIsDropped(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(res *domain.PaymentReservation)
	}{
		{"missing metadata", func(res *domain.PaymentReservation) { res.Metadata = nil }},
		{"bad service id", func(res *domain.PaymentReservation) { res.Metadata["service_id"] = "nope" }},
		{"unbalanced amounts", func(res *domain.PaymentReservation) { res.Metadata["payee_payout"] = "4338" }},
		{"charged amount differs", func(res *domain.PaymentReservation) { res.Amount = 100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			res := checkout(t, f)
			tt.mutate(&res)

			assert.NoError(t, f.svc.HandlePaymentEvent(context.Background(), succeededEvent(res)))
			assert.Zero(t, f.repo.bookingCount())
		})
	}
}

func TestHandlePaymentEvent_PaymentFromOtherProductIsIgnored(t *testing.T) {
	f := newFixture()
	res := f.succeededReservation("pi_tip_jar", map[string]string{"order_id": "tip_42"}, 500)

	booking, outcome, err := f.svc.settleSuccess(context.Background(), res, sourceWebhook)
	require.NoError(t, err)
	assert.Nil(t, booking)
	assert.Equal(t, OutcomeIgnored, outcome)

	require.NoError(t, f.svc.HandlePaymentEvent(context.Background(), succeededEvent(res)))
	assert.Zero(t, f.repo.createCalls)
	assert.Zero(t, f.repo.bookingCount())
	assert.Empty(t, f.publisher.events)

	f.processor.intents[res.ID] = &res
	booking, outcome, err = f.svc.ReplayPaymentIntent(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Nil(t, booking)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestConfirmBooking_SubSecondSlot(t *testing.T) {
	f := newFixture()
	req := f.request()
	req.ScheduledAt = req.ScheduledAt.Add(250 * time.Millisecond)
	result, err := f.svc.InitiatePayment(context.Background(), req)
	require.NoError(t, err)
	sent := f.processor.requests[0]
	f.processor.listed = []domain.PaymentReservation{f.succeededReservation(result.PaymentIntentID, sent.Metadata, sent.Amount)}

	booking, err := f.svc.ConfirmBooking(context.Background(), domain.IntentMatch{
		ClientID:    &f.clientID,
		ServiceID:   f.service.ID,
		BarberID:    f.barber.ID,
		ScheduledAt: req.ScheduledAt,
	})
	require.NoError(t, err)
	assert.True(t, booking.ScheduledAt.Equal(req.ScheduledAt))
}

func TestHandlePaymentEvent_StoreErrorIsRetryable(t *testing.T) {
	f := newFixture()
	res := checkout(t, f)
	f.repo.findErr = errors.New("connection refused")

	err := f.svc.HandlePaymentEvent(context.Background(), succeededEvent(res))
	assert.ErrorIs(t, err, ErrUpstreamFailure)

	f.repo.findErr = nil
	f.repo.createErr = errors.New("deadlock detected")
	err = f.svc.HandlePaymentEvent(context.Background(), succeededEvent(res))
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.Zero(t, f.repo.bookingCount())
}

func TestHandlePaymentEvent_IgnoresOtherEventTypes(t *testing.T) {
	f := newFixture()

	err := f.svc.HandlePaymentEvent(context.Background(), domain.PaymentEvent{ID: "evt_1", Type: "charge.refunded"})
	require.NoError(t, err)
	assert.Zero(t, f.repo.createCalls)
}

func TestReconcileRecent_SettlesOnlyBookingIntents(t *testing.T) {
	f := newFixture()
	ours := checkout(t, f)
	processing := ours
	processing.ID = "pi_processing"
	processing.Status = "processing"
	foreign := domain.PaymentReservation{ID: "pi_foreign", Status: domain.ReservationStatusSucceeded, Amount: 500}

	f.processor.listed = []domain.PaymentReservation{ours, processing, foreign}

	result, err := f.svc.ReconcileRecent(context.Background(), 30*time.Minute, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, f.now.Add(-30*time.Minute), f.processor.listSince)

	// A webhook arriving after the poll finds the booking already there.
	require.NoError(t, f.svc.HandlePaymentEvent(context.Background(), succeededEvent(ours)))
	assert.Equal(t, 1, f.repo.bookingCount())

	result, err = f.svc.ReconcileRecent(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Duplicate)
	assert.Equal(t, f.now.Add(-time.Hour), f.processor.listSince)
}

func TestReconcileRecent_CountsFailuresAndContinues(t *testing.T) {
	f := newFixture()
	good := checkout(t, f)
	bad := good
	bad.ID = "pi_bad"
	bad.Metadata = map[string]string{"booking_intent": domain.IntentMetadataVersion}

	f.processor.listed = []domain.PaymentReservation{bad, good}

	result, err := f.svc.ReconcileRecent(context.Background(), time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Created)
}

func TestReconcileRecent_ProcessorError(t *testing.T) {
	f := newFixture()
	f.processor.listErr = errors.New("rate limited")

	_, err := f.svc.ReconcileRecent(context.Background(), time.Hour, nil)
	assert.ErrorIs(t, err, ErrUpstreamFailure)
}

func TestConfirmBooking(t *testing.T) {
	f := newFixture()
	req := f.request()
	match := domain.IntentMatch{
		ClientID:    &f.clientID,
		ServiceID:   f.service.ID,
		BarberID:    f.barber.ID,
		ScheduledAt: req.ScheduledAt,
	}

	_, err := f.svc.ConfirmBooking(context.Background(), match)
	assert.ErrorIs(t, err, ErrNotFound)

	res := checkout(t, f)
	other := uuid.New()
	otherRes := res
	otherRes.ID = "pi_other_client"
	otherRes.Metadata = copyMetadata(res.Metadata)
	otherRes.Metadata["client_id"] = other.String()
	f.processor.listed = []domain.PaymentReservation{otherRes, res}

	booking, err := f.svc.ConfirmBooking(context.Background(), match)
	require.NoError(t, err)
	assert.Equal(t, res.ID, booking.PaymentIntentID)
	assert.Equal(t, 1, f.repo.bookingCount(), "only the matching reservation is settled")
}

func TestReplayPaymentIntent(t *testing.T) {
	f := newFixture()
	res := checkout(t, f)
	f.processor.intents[res.ID] = &res

	booking, outcome, err := f.svc.ReplayPaymentIntent(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, res.ID, booking.PaymentIntentID)

	_, outcome, err = f.svc.ReplayPaymentIntent(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	pending := res
	pending.ID = "pi_pending"
	pending.Status = "requires_action"
	f.processor.intents[pending.ID] = &pending
	_, outcome, err = f.svc.ReplayPaymentIntent(context.Background(), pending.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, OutcomeIgnored, outcome)

	_, _, err = f.svc.ReplayPaymentIntent(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, ErrUpstreamFailure)
}

func seedBooking(f *fixture, paymentIntentID, paymentStatus string) *domain.Booking {
	clientID := f.clientID
	booking := &domain.Booking{
		ID:              uuid.New(),
		ServiceID:       f.service.ID,
		BarberID:        f.barber.ID,
		ClientID:        &clientID,
		ScheduledAt:     time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC),
		Status:          domain.BookingStatusConfirmed,
		PaymentStatus:   paymentStatus,
		Price:           4338,
		AddonTotal:      1000,
		PlatformFee:     338,
		BarberPayout:    4135,
		PaymentIntentID: paymentIntentID,
	}
	f.repo.bookings[booking.ID] = booking
	f.repo.byIntent[paymentIntentID] = booking.ID
	return booking
}

func copyMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
