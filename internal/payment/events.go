package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

type EventKind string

const (
	EventSucceeded  EventKind = "succeeded"
	EventFailed     EventKind = "failed"
	EventCancelled  EventKind = "cancelled"
	EventProcessing EventKind = "processing"
	EventRefunded   EventKind = "refunded"
)

// Event is a processor lifecycle notification reduced to what orders need.
// Amounts are in minor units.
type Event struct {
	ID             string
	Kind           EventKind
	TransactionID  string
	Amount         int64
	AmountRefunded int64
	OccurredAt     time.Time
}

// Verifier authenticates webhook deliveries with the endpoint secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Parse verifies the signature header and decodes the delivery. It returns
// a nil event for types that do not affect orders. Any verification or
// decoding failure is a validation error.
func (v *Verifier) Parse(payload []byte, signatureHeader string) (*Event, error) {
	raw, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperr.Validation("invalid webhook signature: %v", err)
	}

	ev, err := DecodeEvent(raw)
	if err != nil {
		return nil, apperr.Validation("malformed webhook payload: %v", err)
	}
	return ev, nil
}

// DecodeEvent maps a verified processor event onto an Event.
func DecodeEvent(raw stripe.Event) (*Event, error) {
	if raw.Data == nil {
		return nil, fmt.Errorf("event %s has no data", raw.ID)
	}

	ev := &Event{ID: raw.ID, OccurredAt: time.Unix(raw.Created, 0).UTC()}

	switch raw.Type {
	case "payment_intent.succeeded":
		ev.Kind = EventSucceeded
	case "payment_intent.payment_failed":
		ev.Kind = EventFailed
	case "payment_intent.canceled":
		ev.Kind = EventCancelled
	case "payment_intent.processing":
		ev.Kind = EventProcessing
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(raw.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			return nil, fmt.Errorf("charge %s has no payment intent", charge.ID)
		}
		ev.Kind = EventRefunded
		ev.TransactionID = charge.PaymentIntent.ID
		ev.Amount = charge.Amount
		ev.AmountRefunded = charge.AmountRefunded
		return ev, nil
	default:
		return nil, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(raw.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	if intent.ID == "" {
		return nil, fmt.Errorf("event %s has no payment intent id", raw.ID)
	}
	ev.TransactionID = intent.ID
	ev.Amount = intent.Amount
	return ev, nil
}
