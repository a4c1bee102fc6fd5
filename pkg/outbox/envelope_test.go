package outbox

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agritrade/agritrade-backend/pkg/enums"
)

func TestNewEnvelopeDefaultsVersionAndTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	env, err := newEnvelope(DomainEvent{
		EventType: enums.EventOrderPaid,
		Data:      map[string]string{"orderNo": "ORD-1"},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.Equal(t, now.UTC(), env.OccurredAt)
	_, err = uuid.Parse(env.EventID)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"orderNo":"ORD-1"}`, string(env.Data))
}

func TestDecodeEnvelopeRejectsMissingData(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"x","data":null}`))
	assert.True(t, errors.Is(err, ErrEmptyPayload))

	_, err = DecodeEnvelope([]byte(`{not json`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptyPayload))

	env, err := DecodeEnvelope([]byte(`{"version":2,"eventId":"x","data":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, env.Version)
}
