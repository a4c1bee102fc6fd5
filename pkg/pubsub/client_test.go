package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/agritrade/agritrade-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/agri/topics/domain", ResourceName("agri", "topics", "domain"))
	assert.Equal(t, "projects/other/topics/domain", ResourceName("agri", "topics", "projects/other/topics/domain"))
	assert.Equal(t, "projects/agri/subscriptions/audit", ResourceName("agri", "subscriptions", " audit "))
	assert.Empty(t, ResourceName("agri", "topics", ""))
	assert.Empty(t, ResourceName("", "topics", "domain"))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{DomainTopic: "domain"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "agri"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errTopicRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("domain"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}

func TestLookupMapsNotFound(t *testing.T) {
	ctx := context.Background()
	found := func(context.Context) error { return nil }
	missing := func(context.Context) error { return status.Error(codes.NotFound, "gone") }
	denied := func(context.Context) error { return status.Error(codes.PermissionDenied, "nope") }

	assert.NoError(t, lookup(ctx, "topic", "domain", found))
	assert.EqualError(t, lookup(ctx, "topic", "domain", missing), `topic "domain" does not exist`)

	err := lookup(ctx, "subscription", "audit", denied)
	require.Error(t, err)
	assert.Equal(t, codes.PermissionDenied, status.Code(errors.Unwrap(err)))
}
