package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveSLA(t *testing.T) {
	o := Order{}
	assert.Equal(t, DefaultSLAMinutes, o.EffectiveSLA())

	o.SLATime = IntPtr(0)
	assert.Equal(t, DefaultSLAMinutes, o.EffectiveSLA())

	o.SLATime = IntPtr(35)
	assert.Equal(t, 35, o.EffectiveSLA())
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	o := Order{
		ID:         "ord-1",
		Timeline:   []TimelineEntry{{Status: OrderStatusPending, Timestamp: now}},
		AcceptedAt: TimePtr(now),
		SLATime:    IntPtr(20),
	}

	c := o.Clone()
	c.Timeline[0].Notes = "changed"
	*c.AcceptedAt = now.Add(time.Hour)
	*c.SLATime = 30

	assert.Empty(t, o.Timeline[0].Notes)
	assert.Equal(t, now, *o.AcceptedAt)
	assert.Equal(t, 20, *o.SLATime)
}

func TestNewOrderComputesTotals(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	items := []OrderItem{
		{ProductID: "p1", ProductName: "Jollof Rice", Quantity: 2, Price: decimal.RequireFromString("4.50")},
		{ProductID: "p2", ProductName: "Chapman", Quantity: 1, Price: decimal.RequireFromString("3.25")},
	}

	o := NewOrder("ORD-2024-010", Customer{Name: "Ada Obi"}, items, now)

	assert.True(t, strings.HasPrefix(o.ID, "ord-"))
	assert.Equal(t, OrderStatusPending, o.Status)
	assert.Equal(t, "12.25", o.Total.StringFixed(2))
	require.Len(t, o.Timeline, 1)
	assert.Equal(t, OrderStatusPending, o.Timeline[0].Status)
}

func TestStatusChangedEventPayload(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	o := &Order{
		ID:          "ord-1",
		OrderNumber: "ORD-2024-001",
		Status:      OrderStatusAccepted,
		Timeline:    []TimelineEntry{{Status: OrderStatusAccepted, Timestamp: now, Notes: "Order accepted by vendor"}},
	}

	payload, err := NewOrderStatusChangedEvent(o, OrderStatusPending, now).Payload()
	require.NoError(t, err)

	var decoded InboundEvent
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, EventOrderStatusChanged, decoded.EventType)
	assert.Equal(t, "ord-1", decoded.AggregateID)

	var change StatusChange
	require.NoError(t, json.Unmarshal(decoded.Data, &change))
	assert.Equal(t, OrderStatusPending, change.OldStatus)
	assert.Equal(t, OrderStatusAccepted, change.NewStatus)
	assert.Equal(t, "Order accepted by vendor", change.Notes)
}
