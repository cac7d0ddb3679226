// Package jobs delivers storefront domain events to background consumers over Pub/Sub.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/fazaproducts/storefront/internal/reviews"
)

// ReviewEventPublisher publishes review events. Events for one product share an ordering key,
// so subscribers with ordering enabled see them in submission order.
type ReviewEventPublisher struct {
	topic *pubsub.Topic
}

// NewReviewEventPublisher enables message ordering on topic and wraps it.
func NewReviewEventPublisher(topic *pubsub.Topic) (*ReviewEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("review event publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &ReviewEventPublisher{topic: topic}, nil
}

func orderingKey(productID string) string { return "product/" + productID }

// PublishReviewEvent sends event as JSON and waits for the server acknowledgement. Type, product
// and rating are copied into attributes for subscription filters.
func (p *ReviewEventPublisher) PublishReviewEvent(ctx context.Context, event reviews.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal review event: %w", err)
	}
	key := orderingKey(event.ProductID)
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: key,
		Attributes: map[string]string{
			"eventType": event.Type,
			"productId": event.ProductID,
			"rating":    strconv.Itoa(event.Rating),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		// A failed publish pauses its ordering key until resumed.
		p.topic.ResumePublish(key)
		return fmt.Errorf("publish review event for product %s: %w", event.ProductID, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *ReviewEventPublisher) Stop() {
	p.topic.Stop()
}
