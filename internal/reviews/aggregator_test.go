package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"firebase.google.com/go/v4/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fazaproducts/storefront/internal/domain"
)

type fixedCatalog map[int64]domain.Product

func (c fixedCatalog) Contains(id int64) bool {
	_, ok := c[id]
	return ok
}

func (c fixedCatalog) Find(id int64) (domain.Product, error) {
	p, ok := c[id]
	if !ok {
		return domain.Product{}, errors.New("not found")
	}
	return p, nil
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) PublishReviewEvent(_ context.Context, event Event) error {
	p.events = append(p.events, event)
	return p.err
}

type brokenStore struct{ appends, lists int }

func (b *brokenStore) Append(context.Context, Record) (string, error) {
	b.appends++
	return "", errors.New("permission denied")
}

func (b *brokenStore) ListByProduct(context.Context, string) ([]KeyedRecord, error) {
	b.lists++
	return nil, errors.New("network unreachable")
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time {
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newAggregator(t *testing.T, store Store, order Order, pub EventPublisher) *Aggregator {
	t.Helper()
	c := &clock{now: time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)}
	agg, err := New(Deps{
		Store:     store,
		Catalog:   fixedCatalog{1: {ID: 1}, 2: {ID: 2}},
		Publisher: pub,
		Clock:     c.Now,
		Order:     order,
	})
	require.NoError(t, err)
	return agg
}

func TestComputeAggregate(t *testing.T) {
	assert.Equal(t, domain.ReviewAggregate{}, ComputeAggregate(nil))
	assert.Equal(t, domain.ReviewAggregate{Average: 4.5, Count: 2},
		ComputeAggregate([]domain.Review{{Rating: 5}, {Rating: 4}}))
	assert.Equal(t, domain.ReviewAggregate{Average: 4.3, Count: 3},
		ComputeAggregate([]domain.Review{{Rating: 5}, {Rating: 4}, {Rating: 4}}))
	assert.Equal(t, domain.ReviewAggregate{Average: 1.7, Count: 3},
		ComputeAggregate([]domain.Review{{Rating: 1}, {Rating: 2}, {Rating: 2}}))
}

func TestSubmitAndFetchNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pub := &recordingPublisher{}
	agg := newAggregator(t, store, OrderNewest, pub)

	first, err := agg.SubmitReview(ctx, Submission{ProductID: 1, Name: "Nimali", Rating: 5, Comment: "Great"})
	require.NoError(t, err)
	_, err = agg.SubmitReview(ctx, Submission{ProductID: 1, Name: "", Rating: 4, Comment: "Good"})
	require.NoError(t, err)
	_, err = agg.SubmitReview(ctx, Submission{ProductID: 2, Name: "Other", Rating: 1})
	require.NoError(t, err)

	assert.Equal(t, "2025-03-01", first.Date)
	assert.NotEmpty(t, first.ID)

	got, err := agg.FetchReviews(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, AnonymousName, got[0].Name, "newest first")
	assert.Equal(t, "Nimali", got[1].Name)
	assert.Equal(t, "2025-03-01", got[0].Date)

	pr, err := agg.ProductReviews(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewAggregate{Average: 4.5, Count: 2}, pr.Aggregate)

	require.Len(t, pub.events, 3)
	assert.Equal(t, "review.created", pub.events[0].Type)
	assert.Equal(t, "1", pub.events[0].ProductID)
	assert.Equal(t, first.ID, pub.events[0].ReviewKey)
}

func TestFetchInsertionOrder(t *testing.T) {
	ctx := context.Background()
	agg := newAggregator(t, NewMemoryStore(), OrderInsertion, nil)
	for _, name := range []string{"a", "b", "c"} {
		_, err := agg.SubmitReview(ctx, Submission{ProductID: 2, Name: name, Rating: 3})
		require.NoError(t, err)
	}
	got, err := agg.FetchReviews(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Name, got[1].Name, got[2].Name})
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{}
	agg := newAggregator(t, store, OrderNewest, nil)

	cases := []Submission{
		{ProductID: 1, Rating: 0},
		{ProductID: 1, Rating: 6},
		{ProductID: 1, Rating: -1},
		{ProductID: 0, Rating: 3},
		{ProductID: 1, Rating: 3, Comment: strings.Repeat("é", DefaultCommentMax+1)},
	}
	for _, sub := range cases {
		_, err := agg.SubmitReview(ctx, sub)
		assert.ErrorIs(t, err, ErrInvalidReview, "%+v", sub)
	}
	_, err := agg.SubmitReview(ctx, Submission{ProductID: 99, Rating: 3})
	assert.ErrorIs(t, err, ErrUnknownProduct)
	assert.NotErrorIs(t, err, ErrInvalidReview)
	assert.Zero(t, store.appends, "validation must run before any store call")

	_, err = agg.SubmitReview(ctx, Submission{ProductID: 1, Rating: 3, Comment: strings.Repeat("é", DefaultCommentMax)})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, store.appends)
}

func TestCommentLimitCountsSanitisedText(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	agg := newAggregator(t, store, OrderNewest, nil)

	body := strings.Repeat("x", DefaultCommentMax)
	wrapped := `<span class="quote">` + body + `</span>`
	require.Greater(t, len(wrapped), DefaultCommentMax)

	review, err := agg.SubmitReview(ctx, Submission{ProductID: 1, Rating: 4, Comment: wrapped})
	require.NoError(t, err)
	assert.Equal(t, body, review.Comment)

	_, err = agg.SubmitReview(ctx, Submission{ProductID: 1, Rating: 4, Comment: "<i>" + body + "y</i>"})
	assert.ErrorIs(t, err, ErrInvalidReview)
}

func TestProductReviewsUnknownProduct(t *testing.T) {
	store := &brokenStore{}
	agg := newAggregator(t, store, OrderNewest, nil)

	pr, err := agg.ProductReviews(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnknownProduct)
	assert.Empty(t, pr.Reviews)
	assert.Zero(t, store.lists, "unknown ids must not reach the store")
}

func TestRecordAlwaysCarriesComment(t *testing.T) {
	data, err := json.Marshal(Record{ProductID: "1", Name: AnonymousName, Rating: 5, CreatedAt: 1})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"comment":""`)
}

func TestStoreFailureYieldsEmptyState(t *testing.T) {
	agg := newAggregator(t, &brokenStore{}, OrderNewest, nil)
	pr, err := agg.ProductReviews(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotNil(t, pr.Reviews)
	assert.Empty(t, pr.Reviews)
	assert.Equal(t, domain.ReviewAggregate{}, pr.Aggregate)
}

func TestPublishFailureDoesNotFailSubmission(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("topic gone")}
	agg := newAggregator(t, NewMemoryStore(), OrderNewest, pub)
	_, err := agg.SubmitReview(context.Background(), Submission{ProductID: 1, Rating: 5})
	assert.NoError(t, err)
	assert.Len(t, pub.events, 1)
}

func TestSubmitSanitisesText(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	agg := newAggregator(t, store, OrderNewest, nil)

	_, err := agg.SubmitReview(ctx, Submission{
		ProductID: 1,
		Name:      "  <b>Kasun</b> ",
		Rating:    4,
		Comment:   "Tasty   &  quick<script>alert(1)</script>\r\nwould   buy",
	})
	require.NoError(t, err)

	records, err := store.ListByProduct(ctx, "1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Kasun", records[0].Name)
	assert.Equal(t, "Tasty & quick\nwould buy", records[0].Comment)
}

func TestNormalizeLegacyRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	legacy := []Record{
		{ProductID: "1", Name: "old", Rating: "4", Date: "2023-12-24", Text: "from text"},
		{ProductID: "1", Name: "float", Rating: float64(5), CreatedAt: time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC).UnixMilli(), Comment: "c"},
		{ProductID: "1", Name: "bad", Rating: "great"},
	}
	for _, rec := range legacy {
		_, err := store.Append(ctx, rec)
		require.NoError(t, err)
	}
	agg := newAggregator(t, store, OrderNewest, nil)

	got, err := agg.FetchReviews(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "float", got[0].Name)
	assert.Equal(t, "2024-01-02", got[0].Date)
	assert.Equal(t, "old", got[1].Name)
	assert.Equal(t, "from text", got[1].Comment)
	assert.Equal(t, "2023-12-24", got[1].Date)
	assert.Equal(t, 4, got[1].Rating)
}

func TestEmbeddedStore(t *testing.T) {
	ctx := context.Background()
	catalog := fixedCatalog{
		1: {ID: 1, Reviews: []domain.Review{{Name: "Nimali", Rating: 5, Comment: "Soft skin", Date: "2024-03-14"}}},
		2: {ID: 2},
	}
	store, err := NewEmbeddedStore(CatalogReviews(catalog))
	require.NoError(t, err)

	agg, err := New(Deps{Store: store, Catalog: catalog, Order: OrderInsertion})
	require.NoError(t, err)
	_, err = agg.SubmitReview(ctx, Submission{ProductID: 1, Name: "New", Rating: 3})
	require.NoError(t, err)

	got, err := agg.FetchReviews(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Nimali", got[0].Name)
	assert.Equal(t, "New", got[1].Name)
	assert.Equal(t, domain.ReviewAggregate{Average: 4, Count: 2}, ComputeAggregate(got))

	empty, err := agg.FetchReviews(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNewRejectsUnknownOrder(t *testing.T) {
	_, err := New(Deps{Store: NewMemoryStore(), Order: "random"})
	assert.Error(t, err)
	_, err = New(Deps{})
	assert.Error(t, err)
}

type fakeNode struct {
	key string
	raw string
}

func (n fakeNode) Key() string { return n.key }
func (n fakeNode) Unmarshal(v interface{}) error { return json.Unmarshal([]byte(n.raw), v) }

func TestDecodeNodes(t *testing.T) {
	nodes := []fakeNode{
		{key: "-Nb1", raw: `{"productId":"5","name":"A","rating":"4","comment":"ok","createdAt":1717000000000}`},
		{key: "-Nb2", raw: `{"productId":5,"name":"numeric id"}`},
		{key: "-Nb3", raw: `{"productId":"5","name":"B","rating":2,"text":"legacy","date":"2024-01-01"}`},
	}
	in := make([]db.QueryNode, 0, len(nodes))
	for _, n := range nodes {
		in = append(in, n)
	}
	got := decodeNodes(in, zap.NewNop())
	require.Len(t, got, 2)
	assert.Equal(t, "-Nb1", got[0].Key)
	assert.Equal(t, "4", got[0].Rating)
	assert.Equal(t, int64(1717000000000), got[0].CreatedAt)
	assert.Equal(t, "legacy", got[1].Text)
}
