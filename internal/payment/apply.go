package payment

import (
	"github.com/safar/farmstand/internal/models"
)

// precedence orders payment states so that, among events stamped with the
// same second, a later lifecycle stage is never overwritten by an earlier one.
var precedence = map[models.PaymentStatus]int{
	models.PaymentStatusPending:           0,
	models.PaymentStatusProcessing:        1,
	models.PaymentStatusAuthorized:        2,
	models.PaymentStatusFailed:            3,
	models.PaymentStatusPaid:              4,
	models.PaymentStatusCancelled:         4,
	models.PaymentStatusPartiallyRefunded: 5,
	models.PaymentStatusRefunded:          6,
}

// Apply folds ev into o and reports whether anything changed. Every field is
// set to an absolute value derived from the event, so replaying an event is
// a no-op. Events older than the last one applied are ignored, and the
// refunded amount never decreases.
func Apply(o *models.Order, ev Event) bool {
	if ev.Kind == EventRefunded && FromMinorUnits(ev.AmountRefunded).LessThan(o.Payment.RefundAmount) {
		return false
	}

	target := targetPaymentStatus(o, ev)

	if last := o.Payment.LastEventAt; last != nil {
		if ev.OccurredAt.Before(*last) {
			return false
		}
		if ev.OccurredAt.Equal(*last) && precedence[target] < precedence[o.PaymentStatus] {
			return false
		}
	}

	before := snapshot(o)
	occurred := ev.OccurredAt

	o.PaymentStatus = target
	switch ev.Kind {
	case EventSucceeded:
		if o.Payment.PaidAt == nil {
			o.Payment.PaidAt = &occurred
		}
		if o.Status == models.OrderStatusPending {
			o.Status = models.OrderStatusProcessing
		}
	case EventCancelled:
		o.Status = models.OrderStatusCancelled
	case EventRefunded:
		o.Payment.RefundAmount = FromMinorUnits(ev.AmountRefunded)
		o.Payment.RefundedAt = &occurred
		if target == models.PaymentStatusRefunded {
			o.Status = models.OrderStatusRefunded
		} else {
			o.Status = models.OrderStatusPartiallyRefunded
		}
	}

	changed := before != snapshot(o)
	if o.Payment.LastEventAt == nil || occurred.After(*o.Payment.LastEventAt) {
		o.Payment.LastEventAt = &occurred
		changed = true
	}
	return changed
}

func targetPaymentStatus(o *models.Order, ev Event) models.PaymentStatus {
	switch ev.Kind {
	case EventSucceeded:
		return models.PaymentStatusPaid
	case EventFailed:
		return models.PaymentStatusFailed
	case EventCancelled:
		return models.PaymentStatusCancelled
	case EventProcessing:
		return models.PaymentStatusProcessing
	case EventRefunded:
		if FromMinorUnits(ev.AmountRefunded).GreaterThanOrEqual(o.TotalAmount) {
			return models.PaymentStatusRefunded
		}
		return models.PaymentStatusPartiallyRefunded
	}
	return o.PaymentStatus
}

type orderState struct {
	status     models.OrderStatus
	payment    models.PaymentStatus
	refund     string
	paidAt     int64
	refundedAt int64
}

func snapshot(o *models.Order) orderState {
	s := orderState{
		status:  o.Status,
		payment: o.PaymentStatus,
		refund:  o.Payment.RefundAmount.String(),
	}
	if o.Payment.PaidAt != nil {
		s.paidAt = o.Payment.PaidAt.UnixNano()
	}
	if o.Payment.RefundedAt != nil {
		s.refundedAt = o.Payment.RefundedAt.UnixNano()
	}
	return s
}
