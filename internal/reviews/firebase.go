package reviews

import (
	"context"
	"errors"
	"fmt"

	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
)

// FirebaseStore keeps reviews in the Realtime Database under /reviews, one child per review.
type FirebaseStore struct {
	client *db.Client
	path   string
	logger *zap.Logger
}

// NewFirebaseStore binds a store to client.
func NewFirebaseStore(client *db.Client, logger *zap.Logger) (*FirebaseStore, error) {
	if client == nil {
		return nil, errors.New("reviews: firebase database client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirebaseStore{client: client, path: Collection, logger: logger}, nil
}

// Append pushes rec as a new child; the push id is returned as the key.
func (s *FirebaseStore) Append(ctx context.Context, rec Record) (string, error) {
	ref, err := s.client.NewRef(s.path).Push(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("reviews: push: %w", err)
	}
	return ref.Key, nil
}

// ListByProduct runs a one-shot equality query on productId. Results come back ordered by push
// key, which is arrival order.
func (s *FirebaseStore) ListByProduct(ctx context.Context, productID string) ([]KeyedRecord, error) {
	nodes, err := s.client.NewRef(s.path).
		OrderByChild("productId").
		EqualTo(productID).
		GetOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("reviews: query product %s: %w", productID, err)
	}
	return decodeNodes(nodes, s.logger), nil
}

// decodeNodes skips children that do not decode so one bad record does not hide the rest.
func decodeNodes(nodes []db.QueryNode, logger *zap.Logger) []KeyedRecord {
	out := make([]KeyedRecord, 0, len(nodes))
	for _, node := range nodes {
		var rec Record
		if err := node.Unmarshal(&rec); err != nil {
			logger.Warn("reviews: skipping undecodable record", zap.String("key", node.Key()), zap.Error(err))
			continue
		}
		out = append(out, KeyedRecord{Key: node.Key(), Record: rec})
	}
	return out
}
