package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/growlock/store-engine/internal/store"
	"github.com/growlock/store-engine/internal/store/memory"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New(), zap.NewNop())
}

func TestIngestFiltersBlankLines(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	require.NoError(t, svc.CreateProduct(ctx, "Product One", "P1", 100, ""))

	n, err := svc.Ingest(ctx, "P1", []string{"code1", "", "  ", "code2"}, "admin", "batch1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	st, err := svc.Stats(ctx, "P1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Available)
	assert.EqualValues(t, 0, st.Consumed)
	assert.NotNil(t, st.LastAddedAt)
}

func TestIngestEmptyBatch(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	require.NoError(t, svc.CreateProduct(ctx, "Product One", "P1", 100, ""))

	_, err := svc.Ingest(ctx, "P1", []string{"", "   ", "\t"}, "admin", "batch1")
	require.ErrorIs(t, err, store.ErrEmptyBatch)

	_, err = svc.Ingest(ctx, "P1", nil, "admin", "batch1")
	require.ErrorIs(t, err, store.ErrEmptyBatch)
}

func TestIngestUnknownProduct(t *testing.T) {
	svc := newService(t)
	_, err := svc.Ingest(context.Background(), "NOPE", []string{"code1"}, "admin", "batch1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateProductValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	require.ErrorIs(t, svc.CreateProduct(ctx, "", "P1", 100, ""), store.ErrInvalidInput)
	require.ErrorIs(t, svc.CreateProduct(ctx, "name", "", 100, ""), store.ErrInvalidInput)
	require.ErrorIs(t, svc.CreateProduct(ctx, "name", "P1", -1, ""), store.ErrInvalidInput)

	require.NoError(t, svc.CreateProduct(ctx, "name", "P1", 100, "desc"))
	require.ErrorIs(t, svc.CreateProduct(ctx, "other", "P1", 50, ""), store.ErrDuplicateCode)
}

func TestListProductsDerivesAvailability(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	require.NoError(t, svc.CreateProduct(ctx, "A", "PA", 10, ""))
	require.NoError(t, svc.CreateProduct(ctx, "B", "PB", 20, ""))
	_, err := svc.Ingest(ctx, "PB", []string{"x", "y"}, "admin", "b1")
	require.NoError(t, err)

	ps, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "PA", ps[0].Code)
	assert.EqualValues(t, 0, ps[0].Available)
	assert.Equal(t, "PB", ps[1].Code)
	assert.EqualValues(t, 2, ps[1].Available)
}

func TestChangePriceAndDescription(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	require.NoError(t, svc.CreateProduct(ctx, "A", "PA", 10, ""))

	require.NoError(t, svc.ChangePrice(ctx, "PA", 25))
	require.ErrorIs(t, svc.ChangePrice(ctx, "PA", -5), store.ErrInvalidAmount)
	require.ErrorIs(t, svc.ChangePrice(ctx, "NOPE", 25), store.ErrNotFound)

	require.NoError(t, svc.SetDescription(ctx, "PA", "fresh"))
	require.ErrorIs(t, svc.SetDescription(ctx, "NOPE", "x"), store.ErrNotFound)

	ps, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.EqualValues(t, 25, ps[0].Price)
	assert.Equal(t, "fresh", ps[0].Description)
}

func TestCleanLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, CleanLines([]string{" a ", "", "b", "\t"}))
	assert.Empty(t, CleanLines(nil))
}
