package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/growlock/store-engine/internal/store"
	"github.com/growlock/store-engine/internal/store/memory"
)

func newService() *Service {
	return New(memory.New(), zap.NewNop())
}

func TestConvertPairs(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		start    store.Balance
		from, to store.Denomination
		amount   int64
		want     store.Balance
		wantErr  error
	}{
		{
			name:   "dl to wl multiplies",
			start:  store.Balance{DL: 3},
			from:   store.DenomDL, to: store.DenomWL, amount: 3,
			want: store.Balance{WL: 300, DL: 0},
		},
		{
			name:   "wl to dl floors",
			start:  store.Balance{WL: 250},
			from:   store.DenomWL, to: store.DenomDL, amount: 250,
			// 250 WL buys 2 DL; the 50 WL remainder is burned.
			want: store.Balance{WL: 0, DL: 2},
		},
		{
			name:   "dl to bgl floors",
			start:  store.Balance{DL: 150},
			from:   store.DenomDL, to: store.DenomBGL, amount: 150,
			want: store.Balance{DL: 0, BGL: 1},
		},
		{
			name:   "bgl to dl multiplies",
			start:  store.Balance{BGL: 2},
			from:   store.DenomBGL, to: store.DenomDL, amount: 2,
			want: store.Balance{BGL: 0, DL: 200},
		},
		{
			name:    "wl to bgl not in table",
			start:   store.Balance{WL: 100000},
			from:    store.DenomWL, to: store.DenomBGL, amount: 100000,
			wantErr: store.ErrInvalidConversion,
		},
		{
			name:    "same denomination rejected",
			start:   store.Balance{WL: 10},
			from:    store.DenomWL, to: store.DenomWL, amount: 10,
			wantErr: store.ErrInvalidConversion,
		},
		{
			name:    "insufficient source",
			start:   store.Balance{DL: 2},
			from:    store.DenomDL, to: store.DenomWL, amount: 3,
			wantErr: store.ErrInsufficientFunds,
		},
		{
			name:    "zero amount rejected",
			start:   store.Balance{DL: 2},
			from:    store.DenomDL, to: store.DenomWL, amount: 0,
			wantErr: store.ErrInvalidAmount,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newService()
			require.NoError(t, svc.Credit(ctx, "bob", tc.start.WL, tc.start.DL, tc.start.BGL))

			err := svc.Convert(ctx, "bob", tc.from, tc.to, tc.amount)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				// Balances untouched on failure.
				b, gerr := svc.Balance(ctx, "bob")
				require.NoError(t, gerr)
				assert.Equal(t, tc.start.WL, b.WL)
				assert.Equal(t, tc.start.DL, b.DL)
				assert.Equal(t, tc.start.BGL, b.BGL)
				return
			}
			require.NoError(t, err)
			b, err := svc.Balance(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, tc.want.WL, b.WL)
			assert.Equal(t, tc.want.DL, b.DL)
			assert.Equal(t, tc.want.BGL, b.BGL)
		})
	}
}

func TestConvertUnknownAccount(t *testing.T) {
	svc := newService()
	err := svc.Convert(context.Background(), "ghost", store.DenomDL, store.DenomWL, 1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreditRejectsNegative(t *testing.T) {
	svc := newService()
	err := svc.Credit(context.Background(), "bob", -1, 0, 0)
	require.ErrorIs(t, err, store.ErrInvalidAmount)
}

func TestAdminAdjustAllowsNegativeResult(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	require.NoError(t, svc.Credit(ctx, "bob", 10, 0, 0))

	b, err := svc.AdminAdjust(ctx, "bob", -25, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, -15, b.WL)
}

func TestTotalWL(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	require.NoError(t, svc.Credit(ctx, "bob", 150, 2, 1))

	total, err := svc.TotalWL(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 150+2*100+1*10000, total)

	_, err = svc.TotalWL(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
}
