// Package ledger owns per-account balances in the three denominations and
// the fixed-rate conversions between them. The atomic moves live in the
// store; this service owns the rate table and the business rules around it.
package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/growlock/store-engine/internal/store"
)

// Fixed exchange rates: 100 WL = 1 DL, 100 DL = 1 BGL. Downward conversions
// floor-divide, so round trips may lose remainders. That loss is intended.
const (
	WLPerDL  = 100
	DLPerBGL = 100
	WLPerBGL = WLPerDL * DLPerBGL
)

type conversion struct {
	mul int64 // target units per source unit, 0 when dividing
	div int64 // source units per target unit, 0 when multiplying
}

var rateTable = map[[2]store.Denomination]conversion{
	{store.DenomWL, store.DenomDL}:  {div: WLPerDL},
	{store.DenomDL, store.DenomWL}:  {mul: WLPerDL},
	{store.DenomDL, store.DenomBGL}: {div: DLPerBGL},
	{store.DenomBGL, store.DenomDL}: {mul: DLPerBGL},
}

type Service struct {
	Store store.Store
	Log   *zap.Logger
}

func New(st store.Store, log *zap.Logger) *Service {
	return &Service{Store: st, Log: log}
}

// Credit adds non-negative amounts to each denomination, creating the
// account if absent.
func (s *Service) Credit(ctx context.Context, growid string, wl, dl, bgl int64) error {
	if wl < 0 || dl < 0 || bgl < 0 {
		return store.ErrInvalidAmount
	}
	if err := s.Store.CreditBalance(ctx, growid, wl, dl, bgl); err != nil {
		return fmt.Errorf("credit %s: %w", growid, err)
	}
	s.Log.Info("balance credited",
		zap.String("growid", growid),
		zap.Int64("wl", wl), zap.Int64("dl", dl), zap.Int64("bgl", bgl))
	return nil
}

// Debit is the checked, customer-facing WL debit used by the purchase path.
func (s *Service) Debit(ctx context.Context, growid string, wl int64) error {
	if wl < 0 {
		return store.ErrInvalidAmount
	}
	return s.Store.DebitWL(ctx, growid, wl)
}

// AdminAdjust applies a signed delta with no sufficiency check and may drive
// a balance negative. Deliberately a separate operation from Debit so the
// unchecked path stays auditable.
func (s *Service) AdminAdjust(ctx context.Context, growid string, wl, dl, bgl int64) (store.Balance, error) {
	b, err := s.Store.AdminAdjustBalance(ctx, growid, wl, dl, bgl)
	if err != nil {
		return store.Balance{}, fmt.Errorf("admin adjust %s: %w", growid, err)
	}
	s.Log.Warn("admin balance adjustment",
		zap.String("growid", growid),
		zap.Int64("wl", wl), zap.Int64("dl", dl), zap.Int64("bgl", bgl),
		zap.Int64("result_wl", b.WL), zap.Int64("result_dl", b.DL), zap.Int64("result_bgl", b.BGL))
	return b, nil
}

// Convert moves amount units of from into the equivalent of to. Only the
// four pairs in the rate table are legal; everything else is
// ErrInvalidConversion regardless of balances.
func (s *Service) Convert(ctx context.Context, growid string, from, to store.Denomination, amount int64) error {
	conv, ok := rateTable[[2]store.Denomination{from, to}]
	if !ok {
		return store.ErrInvalidConversion
	}
	if amount <= 0 {
		return store.ErrInvalidAmount
	}

	target := amount * conv.mul
	if conv.div > 0 {
		target = amount / conv.div // floor, remainder is burned
	}
	if err := s.Store.ConvertBalance(ctx, growid, from, amount, to, target); err != nil {
		return err
	}
	s.Log.Info("balance converted",
		zap.String("growid", growid),
		zap.String("from", string(from)), zap.String("to", string(to)),
		zap.Int64("amount", amount), zap.Int64("credited", target))
	return nil
}

func (s *Service) Balance(ctx context.Context, growid string) (store.Balance, error) {
	return s.Store.GetBalance(ctx, growid)
}

// TotalWL values the whole wallet in WL at the fixed rates.
func (s *Service) TotalWL(ctx context.Context, growid string) (int64, error) {
	b, err := s.Store.GetBalance(ctx, growid)
	if err != nil {
		return 0, err
	}
	return b.WL + b.DL*WLPerDL + b.BGL*WLPerBGL, nil
}
