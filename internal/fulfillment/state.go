// Package fulfillment runs the per-farmer item group lifecycle and the
// order-level operations built on it.
package fulfillment

import (
	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/models"
)

var transitions = map[models.ItemStatus][]models.ItemStatus{
	models.ItemStatusPending:   {models.ItemStatusAccepted, models.ItemStatusCancelled},
	models.ItemStatusAccepted:  {models.ItemStatusSent, models.ItemStatusCancelled},
	models.ItemStatusSent:      {models.ItemStatusDelivered, models.ItemStatusCancelled},
	models.ItemStatusDelivered: {},
	models.ItemStatusCancelled: {},
}

func CanTransition(from, to models.ItemStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves g to status to, or reports why it cannot.
func Transition(g *models.OrderItemGroup, to models.ItemStatus) error {
	if !to.Valid() {
		return apperr.Validation("unknown item status %q", to)
	}
	if !CanTransition(g.Status, to) {
		return apperr.InvalidTransition(string(g.Status), string(to))
	}
	g.Status = to
	return nil
}

// AggregateOrderStatus derives the order status after a group transition.
// The order becomes delivered once every group is delivered or cancelled
// and at least one was delivered; otherwise it keeps its current status.
func AggregateOrderStatus(current models.OrderStatus, groups []models.OrderItemGroup) models.OrderStatus {
	switch current {
	case models.OrderStatusCancelled, models.OrderStatusRefunded:
		return current
	}
	if len(groups) == 0 {
		return current
	}

	delivered := false
	for _, g := range groups {
		if !g.Status.IsTerminal() {
			return current
		}
		if g.Status == models.ItemStatusDelivered {
			delivered = true
		}
	}

	if delivered {
		return models.OrderStatusDelivered
	}
	return current
}
