package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cutline/booking-service/internal/config"
	"github.com/cutline/booking-service/internal/domain"
	"github.com/cutline/booking-service/internal/store"
	"github.com/google/uuid"
)

type memRepo struct {
	Repository

	mu        sync.Mutex
	services  map[uuid.UUID]*domain.Service
	addons    map[uuid.UUID]domain.Addon
	barbers   map[uuid.UUID]*domain.Barber
	clients   map[uuid.UUID]*domain.Contact
	bookings  map[uuid.UUID]*domain.Booking
	byIntent  map[string]uuid.UUID
	lineItems map[uuid.UUID][]domain.BookingAddon

	findErr      error
	createErr    error
	addonsErr    error
	raceOnCreate bool
	createCalls  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		services:  map[uuid.UUID]*domain.Service{},
		addons:    map[uuid.UUID]domain.Addon{},
		barbers:   map[uuid.UUID]*domain.Barber{},
		clients:   map[uuid.UUID]*domain.Contact{},
		bookings:  map[uuid.UUID]*domain.Booking{},
		byIntent:  map[string]uuid.UUID{},
		lineItems: map[uuid.UUID][]domain.BookingAddon{},
	}
}

func (r *memRepo) FindServiceByID(ctx context.Context, serviceID uuid.UUID) (*domain.Service, error) {
	svc, ok := r.services[serviceID]
	if !ok {
		return nil, store.ErrServiceNotFound
	}
	return svc, nil
}

func (r *memRepo) ListAddonsByIDs(ctx context.Context, addonIDs []uuid.UUID) ([]domain.Addon, error) {
	var out []domain.Addon
	for _, id := range addonIDs {
		if addon, ok := r.addons[id]; ok {
			out = append(out, addon)
		}
	}
	return out, nil
}

func (r *memRepo) FindBarberByID(ctx context.Context, barberID uuid.UUID) (*domain.Barber, error) {
	barber, ok := r.barbers[barberID]
	if !ok {
		return nil, store.ErrBarberNotFound
	}
	return barber, nil
}

func (r *memRepo) FindBarberByUserID(ctx context.Context, userID uuid.UUID) (*domain.Barber, error) {
	for _, barber := range r.barbers {
		if barber.UserID == userID {
			return barber, nil
		}
	}
	return nil, store.ErrBarberNotFound
}

func (r *memRepo) FindClientContact(ctx context.Context, clientID uuid.UUID) (*domain.Contact, error) {
	contact, ok := r.clients[clientID]
	if !ok {
		return nil, store.ErrClientNotFound
	}
	return contact, nil
}

func (r *memRepo) CreateBookingWithAddons(ctx context.Context, booking *domain.Booking, addons []domain.BookingAddon) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++

	if r.createErr != nil {
		return false, r.createErr
	}
	if r.raceOnCreate {
		winner := *booking
		winner.ID = uuid.New()
		r.bookings[winner.ID] = &winner
		r.byIntent[winner.PaymentIntentID] = winner.ID
		r.raceOnCreate = false
	}
	if _, exists := r.byIntent[booking.PaymentIntentID]; exists {
		return false, nil
	}

	stored := *booking
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.bookings[stored.ID] = &stored
	r.byIntent[stored.PaymentIntentID] = stored.ID
	r.lineItems[stored.ID] = append([]domain.BookingAddon(nil), addons...)
	return true, nil
}

func (r *memRepo) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	booking, ok := r.bookings[bookingID]
	if !ok {
		return nil, store.ErrBookingNotFound
	}
	copied := *booking
	return &copied, nil
}

func (r *memRepo) FindBookingByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Booking, error) {
	r.mu.Lock()
	id, ok := r.byIntent[paymentIntentID]
	findErr := r.findErr
	r.mu.Unlock()
	if findErr != nil {
		return nil, findErr
	}
	if !ok {
		return nil, store.ErrBookingNotFound
	}
	return r.FindBookingByID(ctx, id)
}

func (r *memRepo) ListBookingAddons(ctx context.Context, bookingID uuid.UUID) ([]domain.BookingAddon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addonsErr != nil {
		return nil, r.addonsErr
	}
	return append([]domain.BookingAddon(nil), r.lineItems[bookingID]...), nil
}

func (r *memRepo) MarkBookingPaymentSucceeded(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking := r.bookings[bookingID]
	if booking.PaymentStatus == domain.PaymentStatusSucceeded {
		return false, nil
	}
	booking.PaymentStatus = domain.PaymentStatusSucceeded
	return true, nil
}

func (r *memRepo) MarkBookingPaymentFailed(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking := r.bookings[bookingID]
	if booking.PaymentStatus != domain.PaymentStatusPending {
		return false, nil
	}
	booking.PaymentStatus = domain.PaymentStatusFailed
	return true, nil
}

func (r *memRepo) TransitionBookingStatus(ctx context.Context, bookingID uuid.UUID, from, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[bookingID]
	if !ok || booking.Status != from {
		return false, nil
	}
	booking.Status = to
	return true, nil
}

func (r *memRepo) bookingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bookings)
}

type processorStub struct {
	account    *domain.ProcessorAccount
	accountErr error
	createErr  error
	requests   []domain.PaymentIntentRequest
	intents    map[string]*domain.PaymentReservation
	listed     []domain.PaymentReservation
	listErr    error
	listSince  time.Time
}

func (p *processorStub) CreatePaymentIntent(ctx context.Context, req domain.PaymentIntentRequest) (*domain.PaymentReservation, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.requests = append(p.requests, req)
	id := fmt.Sprintf("pi_%d", len(p.requests))
	return &domain.PaymentReservation{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		Amount:       req.Amount,
		Currency:     req.Currency,
		Metadata:     req.Metadata,
	}, nil
}

func (p *processorStub) RetrieveAccount(ctx context.Context, accountID string) (*domain.ProcessorAccount, error) {
	if p.accountErr != nil {
		return nil, p.accountErr
	}
	if p.account == nil {
		return &domain.ProcessorAccount{ID: accountID, ChargesEnabled: true, PayoutsEnabled: true}, nil
	}
	return p.account, nil
}

func (p *processorStub) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*domain.PaymentReservation, error) {
	res, ok := p.intents[paymentIntentID]
	if !ok {
		return nil, fmt.Errorf("no such payment_intent: %s", paymentIntentID)
	}
	return res, nil
}

func (p *processorStub) ListPaymentIntentsSince(ctx context.Context, since time.Time) ([]domain.PaymentReservation, error) {
	p.listSince = since
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.listed, nil
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.routingKey == routingKey {
			n++
		}
	}
	return n
}

type fixture struct {
	repo      *memRepo
	processor *processorStub
	publisher *recordingPublisher
	svc       Service

	barber   *domain.Barber
	service  *domain.Service
	addon    domain.Addon
	clientID uuid.UUID
	now      time.Time
}

func newFixture() *fixture {
	repo := newMemRepo()
	account := "acct_barber"
	price := int64(3000)

	barber := &domain.Barber{ID: uuid.New(), UserID: uuid.New(), Name: "Marcus", Phone: "+15550199", StripeAccountID: &account}
	service := &domain.Service{ID: uuid.New(), BarberID: barber.ID, Name: "Skin fade", Price: &price, IsActive: true}
	addon := domain.Addon{ID: uuid.New(), BarberID: barber.ID, Name: "Beard trim", Price: 1000, IsActive: true}
	clientID := uuid.New()

	repo.barbers[barber.ID] = barber
	repo.services[service.ID] = service
	repo.addons[addon.ID] = addon
	repo.clients[clientID] = &domain.Contact{Name: "Dana", Email: "dana@example.com"}

	processor := &processorStub{intents: map[string]*domain.PaymentReservation{}}
	publisher := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		PlatformFeeMode:        config.FeeModeFlat,
		PlatformFeeCents:       338,
		PayeeFeeShare:          0.40,
		PaymentCurrency:        "usd",
		EventsExchange:         "cutline.events",
		ReconcilePollWindowMin: 60,
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, processor, publisher, cfg, logger)
	svc.now = func() time.Time { return now }

	return &fixture{
		repo:      repo,
		processor: processor,
		publisher: publisher,
		svc:       svc,
		barber:    barber,
		service:   service,
		addon:     addon,
		clientID:  clientID,
		now:       now,
	}
}

func (f *fixture) request() BookingRequest {
	clientID := f.clientID
	return BookingRequest{
		ServiceID:   f.service.ID,
		AddonIDs:    []uuid.UUID{f.addon.ID},
		Payer:       domain.Payer{ClientID: &clientID},
		ScheduledAt: time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC),
		Notes:       "first visit",
	}
}

// succeededReservation returns what the processor reports once the checkout
// created by InitiatePayment has been paid.
func (f *fixture) succeededReservation(id string, metadata map[string]string, amount int64) domain.PaymentReservation {
	return domain.PaymentReservation{
		ID:        id,
		Status:    domain.ReservationStatusSucceeded,
		Amount:    amount,
		Currency:  "usd",
		Metadata:  metadata,
		CreatedAt: f.now.Add(-10 * time.Minute),
	}
}
