package fulfillment

import (
	"testing"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTable(t *testing.T) {
	all := []models.ItemStatus{
		models.ItemStatusPending,
		models.ItemStatusAccepted,
		models.ItemStatusSent,
		models.ItemStatusDelivered,
		models.ItemStatusCancelled,
	}
	legal := map[[2]models.ItemStatus]bool{
		{models.ItemStatusPending, models.ItemStatusAccepted}:   true,
		{models.ItemStatusPending, models.ItemStatusCancelled}:  true,
		{models.ItemStatusAccepted, models.ItemStatusSent}:      true,
		{models.ItemStatusAccepted, models.ItemStatusCancelled}: true,
		{models.ItemStatusSent, models.ItemStatusDelivered}:     true,
		{models.ItemStatusSent, models.ItemStatusCancelled}:     true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]models.ItemStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionHappyPath(t *testing.T) {
	g := &models.OrderItemGroup{Status: models.ItemStatusPending}

	require.NoError(t, Transition(g, models.ItemStatusAccepted))
	require.NoError(t, Transition(g, models.ItemStatusSent))
	require.NoError(t, Transition(g, models.ItemStatusDelivered))
	assert.Equal(t, models.ItemStatusDelivered, g.Status)
}

func TestTransitionSkippingAStepFails(t *testing.T) {
	g := &models.OrderItemGroup{Status: models.ItemStatusAccepted}

	err := Transition(g, models.ItemStatusDelivered)

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
	assert.Contains(t, err.Error(), "accepted")
	assert.Contains(t, err.Error(), "delivered")
	assert.Equal(t, models.ItemStatusAccepted, g.Status)
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	for _, terminal := range []models.ItemStatus{models.ItemStatusDelivered, models.ItemStatusCancelled} {
		for _, to := range []models.ItemStatus{
			models.ItemStatusPending, models.ItemStatusAccepted, models.ItemStatusSent,
			models.ItemStatusDelivered, models.ItemStatusCancelled,
		} {
			g := &models.OrderItemGroup{Status: terminal}
			assert.True(t, apperr.Is(Transition(g, to), apperr.KindInvalidTransition), "%s -> %s", terminal, to)
		}
	}
}

func TestTransitionUnknownStatus(t *testing.T) {
	g := &models.OrderItemGroup{Status: models.ItemStatusPending}
	assert.True(t, apperr.Is(Transition(g, "lost"), apperr.KindValidation))
}

func groups(statuses ...models.ItemStatus) []models.OrderItemGroup {
	out := make([]models.OrderItemGroup, len(statuses))
	for i, s := range statuses {
		out[i] = models.OrderItemGroup{ID: int64(i + 1), Status: s}
	}
	return out
}

func TestAggregateOrderStatus(t *testing.T) {
	tests := []struct {
		name    string
		current models.OrderStatus
		groups  []models.OrderItemGroup
		want    models.OrderStatus
	}{
		{"all delivered", models.OrderStatusProcessing, groups(models.ItemStatusDelivered, models.ItemStatusDelivered), models.OrderStatusDelivered},
		{"delivered and cancelled", models.OrderStatusProcessing, groups(models.ItemStatusDelivered, models.ItemStatusCancelled), models.OrderStatusDelivered},
		{"one still sent", models.OrderStatusProcessing, groups(models.ItemStatusDelivered, models.ItemStatusSent), models.OrderStatusProcessing},
		{"all cancelled keeps status", models.OrderStatusProcessing, groups(models.ItemStatusCancelled, models.ItemStatusCancelled), models.OrderStatusProcessing},
		{"refunded order is left alone", models.OrderStatusRefunded, groups(models.ItemStatusDelivered), models.OrderStatusRefunded},
		{"no groups", models.OrderStatusPending, nil, models.OrderStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateOrderStatus(tt.current, tt.groups))
		})
	}
}

func TestScenarioTwoFarmersDeliverInTurn(t *testing.T) {
	gs := groups(models.ItemStatusPending, models.ItemStatusPending)
	status := models.OrderStatusProcessing

	for _, to := range []models.ItemStatus{models.ItemStatusAccepted, models.ItemStatusSent, models.ItemStatusDelivered} {
		require.NoError(t, Transition(&gs[0], to))
		status = AggregateOrderStatus(status, gs)
	}
	assert.Equal(t, models.OrderStatusProcessing, status)

	for _, to := range []models.ItemStatus{models.ItemStatusAccepted, models.ItemStatusSent, models.ItemStatusDelivered} {
		require.NoError(t, Transition(&gs[1], to))
		status = AggregateOrderStatus(status, gs)
	}
	assert.Equal(t, models.OrderStatusDelivered, status)
}
