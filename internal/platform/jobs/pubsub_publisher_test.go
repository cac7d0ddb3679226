package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fazaproducts/storefront/internal/reviews"
)

func newTestPublisher(t *testing.T) (*pstest.Server, *ReviewEventPublisher) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "faza-test",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "storefront-review-events")
	require.NoError(t, err)

	publisher, err := NewReviewEventPublisher(topic)
	require.NoError(t, err)
	t.Cleanup(publisher.Stop)
	return srv, publisher
}

func TestReviewEventsCarryAttributesAndOrderingKey(t *testing.T) {
	srv, publisher := newTestPublisher(t)
	ctx := context.Background()

	submitted := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	events := []reviews.Event{
		{Type: "review.created", ReviewKey: "01HZX0A", ProductID: "4", Rating: 5, OccurredAt: submitted},
		{Type: "review.created", ReviewKey: "01HZX0B", ProductID: "4", Rating: 2, OccurredAt: submitted.Add(time.Minute)},
		{Type: "review.created", ReviewKey: "01HZX0C", ProductID: "7", Rating: 4, OccurredAt: submitted.Add(2 * time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, publisher.PublishReviewEvent(ctx, e))
	}

	messages := srv.Messages()
	require.Len(t, messages, len(events))
	for i, msg := range messages {
		var got reviews.Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, events[i].ReviewKey, got.ReviewKey)
		assert.True(t, got.OccurredAt.Equal(events[i].OccurredAt))
		assert.Equal(t, events[i].ProductID, msg.Attributes["productId"])
		assert.Equal(t, "review.created", msg.Attributes["eventType"])
		assert.Equal(t, "product/"+events[i].ProductID, msg.OrderingKey)
	}
	assert.Equal(t, "2", messages[1].Attributes["rating"])
}

func TestNewReviewEventPublisherRequiresTopic(t *testing.T) {
	_, err := NewReviewEventPublisher(nil)
	assert.Error(t, err)
}
