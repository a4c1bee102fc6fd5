package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agritrade/agritrade-backend/pkg/db/dbtest"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
)

func TestEmitStoresEnvelopeInTransaction(t *testing.T) {
	conn := dbtest.Open(t).DB()
	svc := NewService(NewRepository(conn), nil)
	fixed := time.Date(2026, 3, 2, 9, 30, 0, 0, time.FixedZone("EAT", 3*3600))
	svc.now = func() time.Time { return fixed }

	orderID := uuid.New()
	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          map[string]string{"orderNo": "ORD-1"},
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.Where("aggregate_id = ?", orderID).First(&row).Error)
	env, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.True(t, env.OccurredAt.Equal(fixed))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.JSONEq(t, `{"orderNo":"ORD-1"}`, string(env.Data))
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	conn := dbtest.Open(t).DB()
	svc := NewService(NewRepository(conn), nil)

	cases := map[string]DomainEvent{
		"unknown type":      {EventType: "order_vanished", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()},
		"unknown aggregate": {EventType: enums.EventOrderCreated, AggregateType: "fleet", AggregateID: uuid.New()},
		"nil aggregate id":  {EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			event.Data = map[string]string{"k": "v"}
			assert.Error(t, svc.Emit(context.Background(), conn, event))
		})
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDisabledServiceDropsEvents(t *testing.T) {
	svc := NewDisabledService(nil)
	assert.NoError(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}
