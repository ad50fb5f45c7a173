/**
 * @description
 * Stripe adapter for payment intents and connected accounts.
 */
package stripeclient

import (
	"context"
	"errors"
	"time"

	"github.com/cutline/booking-service/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// maxListedIntents bounds one polling sweep.
const maxListedIntents = 500

// Client talks to Stripe on behalf of the booking service.
type Client struct {
	api *client.API
}

// NewClient creates a Stripe client using the platform secret key.
func NewClient(secretKey string) *Client {
	return &Client{api: client.New(secretKey, nil)}
}

// CreatePaymentIntent reserves funds with a destination charge to the barber's
// connected account.
func (c *Client) CreatePaymentIntent(ctx context.Context, req domain.PaymentIntentRequest) (*domain.PaymentReservation, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(req.Amount),
		Currency:             stripe.String(req.Currency),
		ApplicationFeeAmount: stripe.Int64(req.ApplicationFee),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.DestinationAccount),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	return toReservation(pi), nil
}

// RetrieveAccount loads a connected account's capabilities.
func (c *Client) RetrieveAccount(ctx context.Context, accountID string) (*domain.ProcessorAccount, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, err
	}
	return &domain.ProcessorAccount{
		ID:             acct.ID,
		ChargesEnabled: acct.ChargesEnabled,
		PayoutsEnabled: acct.PayoutsEnabled,
	}, nil
}

// RetrievePaymentIntent loads one payment intent.
func (c *Client) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*domain.PaymentReservation, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return nil, err
	}
	return toReservation(pi), nil
}

// ListPaymentIntentsSince pages through payment intents created at or after since.
func (c *Client) ListPaymentIntentsSince(ctx context.Context, since time.Time) ([]domain.PaymentReservation, error) {
	params := &stripe.PaymentIntentListParams{
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var out []domain.PaymentReservation
	iter := c.api.PaymentIntents.List(params)
	for iter.Next() {
		out = append(out, *toReservation(iter.PaymentIntent()))
		if len(out) >= maxListedIntents {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func toReservation(pi *stripe.PaymentIntent) *domain.PaymentReservation {
	res := &domain.PaymentReservation{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.Created > 0 {
		res.CreatedAt = time.Unix(pi.Created, 0).UTC()
	}
	if pi.LastPaymentError != nil {
		res.FailureMessage = pi.LastPaymentError.Msg
	}
	return res
}

// IsNotFound reports whether err is a Stripe missing-resource error.
func IsNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
