package orders

import (
	"context"
	"encoding/json"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/growlock/store-engine/internal/store"
	"github.com/growlock/store-engine/internal/store/memory"
)

type capturePublisher struct {
	messages [][]byte
}

func (c *capturePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	c.messages = append(c.messages, value)
}

func newProcessor(t *testing.T) (*Processor, *memory.Store, *capturePublisher, *capturePublisher) {
	t.Helper()
	st := memory.New()
	ord := &capturePublisher{}
	grant := &capturePublisher{}
	return &Processor{
		Store:         st,
		ProducerOrder: ord,
		ProducerGrant: grant,
		Log:           zap.NewNop(),
		Service:       "store-api-test",
	}, st, ord, grant
}

func seedAlice(t *testing.T, st *memory.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.BindIdentity(ctx, "discord:42", "alice"))
	require.NoError(t, st.CreditBalance(ctx, "alice", 500, 0, 0))
	require.NoError(t, st.CreateProduct(ctx, store.Product{Code: "P1", Name: "Product One", Price: 100}))
	_, err := st.IngestTokens(ctx, "P1", []string{"c1", "c2", "c3"}, "admin", "b1")
	require.NoError(t, err)
}

func TestPurchaseHappyPathThenStockout(t *testing.T) {
	ctx := context.Background()
	p, st, ord, _ := newProcessor(t)
	seedAlice(t, st)

	receipt, err := p.Purchase(ctx, "discord:42", "P1", 2, "trace-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, receipt.OrderNumber)
	assert.Equal(t, "alice", receipt.GrowID)
	assert.EqualValues(t, 200, receipt.TotalPrice)
	assert.Len(t, receipt.Items, 2)

	b, _ := st.GetBalance(ctx, "alice")
	assert.EqualValues(t, 300, b.WL)
	stats, _ := st.ProductStats(ctx, "P1")
	assert.EqualValues(t, 1, stats.Available)

	// Second attempt for 2 hits the single remaining token.
	_, err = p.Purchase(ctx, "discord:42", "P1", 2, "trace-2")
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	b, _ = st.GetBalance(ctx, "alice")
	assert.EqualValues(t, 300, b.WL)
	stats, _ = st.ProductStats(ctx, "P1")
	assert.EqualValues(t, 1, stats.Available)
	orders, _ := st.ListOrders(ctx, "alice", 0)
	require.Len(t, orders, 1)
	assert.EqualValues(t, 1, orders[0].Number)

	// Exactly one completed-order event went out, with the snapshot price.
	require.Len(t, ord.messages, 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(ord.messages[0], &env))
	assert.Equal(t, EventOrderCompleted, env.EventType)
	var payload OrderCompletedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.EqualValues(t, 1, payload.OrderNumber)
	assert.EqualValues(t, 100, payload.UnitPrice)
	assert.Equal(t, []string{"c1", "c2"}, payload.Items)
}

func TestPurchaseValidation(t *testing.T) {
	ctx := context.Background()
	p, st, ord, _ := newProcessor(t)
	seedAlice(t, st)

	_, err := p.Purchase(ctx, "discord:42", "P1", 0, "")
	require.ErrorIs(t, err, store.ErrInvalidQuantity)

	_, err = p.Purchase(ctx, "unbound-principal", "P1", 1, "")
	require.ErrorIs(t, err, store.ErrNoIdentity)

	_, err = p.Purchase(ctx, "discord:42", "NOPE", 1, "")
	require.ErrorIs(t, err, store.ErrNotFound)

	assert.Empty(t, ord.messages, "no event for failed purchases")
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	p, st, ord, _ := newProcessor(t)
	seedAlice(t, st)

	_, err := p.Purchase(ctx, "discord:42", "P1", 3, "")
	require.NoError(t, err)

	// Alice now has 200 WL and the pool is empty; restock and retry.
	_, err = st.IngestTokens(ctx, "P1", []string{"c4", "c5", "c6"}, "admin", "b2")
	require.NoError(t, err)
	_, err = p.Purchase(ctx, "discord:42", "P1", 3, "")
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	b, _ := st.GetBalance(ctx, "alice")
	assert.EqualValues(t, 200, b.WL)
	stats, _ := st.ProductStats(ctx, "P1")
	assert.EqualValues(t, 3, stats.Available)
	assert.Len(t, ord.messages, 1)
}

func TestGrant(t *testing.T) {
	ctx := context.Background()
	p, st, _, grant := newProcessor(t)
	seedAlice(t, st)

	items, err := p.Grant(ctx, "alice", "P1", 2, "admin#1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, items)

	// No charge.
	b, _ := st.GetBalance(ctx, "alice")
	assert.EqualValues(t, 500, b.WL)

	require.Len(t, grant.messages, 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(grant.messages[0], &env))
	assert.Equal(t, EventStockGranted, env.EventType)

	_, err = p.Grant(ctx, "alice", "P1", 0, "admin#1", "")
	require.ErrorIs(t, err, store.ErrInvalidQuantity)
}
