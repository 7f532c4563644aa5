package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growlock/store-engine/internal/store"
)

func seed(t *testing.T, s *Store, growid string, wl int64, code string, price int64, tokens []string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreditBalance(ctx, growid, wl, 0, 0))
	require.NoError(t, s.CreateProduct(ctx, store.Product{Code: code, Name: code, Price: price}))
	if len(tokens) > 0 {
		n, err := s.IngestTokens(ctx, code, tokens, "seed", "seed-batch")
		require.NoError(t, err)
		require.EqualValues(t, len(tokens), n)
	}
}

func TestPurchaseDebitsAndConsumes(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "alice", 500, "P1", 100, []string{"c1", "c2", "c3"})

	res, err := s.Purchase(ctx, "principal-1", "alice", "P1", 2, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.OrderNumber)
	assert.EqualValues(t, 200, res.TotalPrice)
	assert.Equal(t, []string{"c1", "c2"}, res.Items) // insertion order

	b, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 300, b.WL)

	st, err := s.ProductStats(ctx, "P1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Available)
	assert.EqualValues(t, 2, st.Consumed)
	assert.EqualValues(t, 3, st.Total)
	assert.NotNil(t, st.LastUsedAt)
}

func TestPurchaseFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient stock", func(t *testing.T) {
		s := New()
		seed(t, s, "alice", 500, "P1", 100, []string{"c1"})

		_, err := s.Purchase(ctx, "p", "alice", "P1", 2, "alice")
		require.ErrorIs(t, err, store.ErrInsufficientStock)

		b, _ := s.GetBalance(ctx, "alice")
		assert.EqualValues(t, 500, b.WL)
		st, _ := s.ProductStats(ctx, "P1")
		assert.EqualValues(t, 1, st.Available)
		orders, _ := s.ListOrders(ctx, "alice", 0)
		assert.Empty(t, orders)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		s := New()
		seed(t, s, "alice", 150, "P1", 100, []string{"c1", "c2"})

		_, err := s.Purchase(ctx, "p", "alice", "P1", 2, "alice")
		require.ErrorIs(t, err, store.ErrInsufficientFunds)

		b, _ := s.GetBalance(ctx, "alice")
		assert.EqualValues(t, 150, b.WL)
		st, _ := s.ProductStats(ctx, "P1")
		assert.EqualValues(t, 2, st.Available)
	})

	t.Run("unknown product", func(t *testing.T) {
		s := New()
		seed(t, s, "alice", 500, "P1", 100, nil)
		_, err := s.Purchase(ctx, "p", "alice", "NOPE", 1, "alice")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	ctx := context.Background()
	s := New()
	const available = 10
	tokens := make([]string, available)
	for i := range tokens {
		tokens[i] = "tok"
	}
	// Everyone is rich; stock is the only constraint.
	seed(t, s, "buyer", 1<<40, "P1", 1, tokens)

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Purchase(ctx, "p", "buyer", "P1", 1, "buyer")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var committed int
	for err := range results {
		if err == nil {
			committed++
		} else {
			require.ErrorIs(t, err, store.ErrInsufficientStock)
		}
	}
	assert.Equal(t, available, committed)

	st, _ := s.ProductStats(ctx, "P1")
	assert.EqualValues(t, 0, st.Available)
	assert.EqualValues(t, available, st.Consumed)
}

func TestConcurrentPurchasesNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	s := New()
	const balance = 500
	tokens := make([]string, 100)
	for i := range tokens {
		tokens[i] = "tok"
	}
	seed(t, s, "alice", balance, "P1", 100, tokens)

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Purchase(ctx, "p", "alice", "P1", 1, "alice")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var committed int64
	for err := range results {
		if err == nil {
			committed++
		}
	}
	assert.EqualValues(t, balance/100, committed)
	b, _ := s.GetBalance(ctx, "alice")
	assert.EqualValues(t, 0, b.WL)
	assert.GreaterOrEqual(t, b.WL, int64(0))
}

func TestOrderNumbersStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	s := New()
	tokens := make([]string, 64)
	for i := range tokens {
		tokens[i] = "tok"
	}
	seed(t, s, "alice", 1<<40, "P1", 1, tokens)

	var wg sync.WaitGroup
	nums := make(chan int64, len(tokens))
	for i := 0; i < len(tokens); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Purchase(ctx, "p", "alice", "P1", 1, "alice")
			if err == nil {
				nums <- res.OrderNumber
			}
		}()
	}
	wg.Wait()
	close(nums)

	seen := map[int64]bool{}
	var max int64
	var count int64
	for n := range nums {
		require.False(t, seen[n], "order number %d assigned twice", n)
		seen[n] = true
		if n > max {
			max = n
		}
		count++
	}
	assert.EqualValues(t, len(tokens), count)
	// Gap-free for committed orders.
	assert.Equal(t, count, max)
}

func TestGrantConsumesWithoutDebit(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "alice", 100, "P1", 100, []string{"c1", "c2"})

	items, err := s.Grant(ctx, "alice", "P1", 2, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, items)

	b, _ := s.GetBalance(ctx, "alice")
	assert.EqualValues(t, 100, b.WL)
	st, _ := s.ProductStats(ctx, "P1")
	assert.EqualValues(t, 0, st.Available)

	_, err = s.Grant(ctx, "alice", "P1", 1, "admin")
	require.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestAdminAdjustMayGoNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	b, err := s.AdminAdjustBalance(ctx, "ghost", -50, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, -50, b.WL)
}

func TestDebitWLChecked(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreditBalance(ctx, "alice", 100, 0, 0))

	require.ErrorIs(t, s.DebitWL(ctx, "alice", 101), store.ErrInsufficientFunds)
	require.ErrorIs(t, s.DebitWL(ctx, "nobody", 1), store.ErrInsufficientFunds)
	require.NoError(t, s.DebitWL(ctx, "alice", 100))

	b, _ := s.GetBalance(ctx, "alice")
	assert.EqualValues(t, 0, b.WL)
}

func TestGetBalanceDistinguishesMissingFromZero(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.GetBalance(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.CreditBalance(ctx, "zero", 0, 0, 0))
	b, err := s.GetBalance(ctx, "zero")
	require.NoError(t, err)
	assert.EqualValues(t, 0, b.WL)
}

func TestDeleteProductCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "alice", 0, "P1", 10, []string{"c1", "c2"})

	require.NoError(t, s.DeleteProduct(ctx, "P1"))
	_, err := s.ProductStats(ctx, "P1")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.DeleteProduct(ctx, "P1"), store.ErrNotFound)
}

func TestCreateProductDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateProduct(ctx, store.Product{Code: "P1", Name: "one", Price: 5}))
	err := s.CreateProduct(ctx, store.Product{Code: "P1", Name: "two", Price: 9})
	require.ErrorIs(t, err, store.ErrDuplicateCode)
}

func TestBindAndResolveIdentity(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.ResolveIdentity(ctx, "discord:1")
	require.ErrorIs(t, err, store.ErrNoIdentity)

	require.NoError(t, s.BindIdentity(ctx, "discord:1", "alice"))
	g, err := s.ResolveIdentity(ctx, "discord:1")
	require.NoError(t, err)
	assert.Equal(t, "alice", g)

	// Binding creates the account.
	_, err = s.GetBalance(ctx, "alice")
	require.NoError(t, err)

	// Rebinding overwrites.
	require.NoError(t, s.BindIdentity(ctx, "discord:1", "alice2"))
	g, _ = s.ResolveIdentity(ctx, "discord:1")
	assert.Equal(t, "alice2", g)
}

func TestWorldInfo(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.GetWorldInfo(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	w := store.WorldInfo{World: "BUYSHOP", Owner: "alice", Bot: "storebot"}
	require.NoError(t, s.SetWorldInfo(ctx, w))
	got, err := s.GetWorldInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestListOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "alice", 1000, "P1", 10, []string{"a", "b", "c"})

	for i := 0; i < 3; i++ {
		_, err := s.Purchase(ctx, "p", "alice", "P1", 1, "alice")
		require.NoError(t, err)
	}
	got, err := s.ListOrders(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.EqualValues(t, 3, got[0].Number)
	assert.EqualValues(t, 2, got[1].Number)
}

func TestConvertBalanceConditionalMove(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.GetBalance(ctx, "nobody")
	require.True(t, errors.Is(err, store.ErrNotFound))

	require.ErrorIs(t,
		s.ConvertBalance(ctx, "nobody", store.DenomWL, 1, store.DenomDL, 0),
		store.ErrNotFound)

	require.NoError(t, s.CreditBalance(ctx, "bob", 0, 3, 0))
	require.NoError(t, s.ConvertBalance(ctx, "bob", store.DenomDL, 3, store.DenomWL, 300))
	b, _ := s.GetBalance(ctx, "bob")
	assert.EqualValues(t, 300, b.WL)
	assert.EqualValues(t, 0, b.DL)

	require.ErrorIs(t,
		s.ConvertBalance(ctx, "bob", store.DenomDL, 1, store.DenomWL, 100),
		store.ErrInsufficientFunds)
}
