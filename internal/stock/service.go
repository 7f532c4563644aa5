// Package stock owns the pool of consumable tokens per product and the
// catalog entries they belong to. Reservation itself happens inside the
// store's purchase/grant transactions; this service covers ingestion and
// catalog administration.
package stock

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/growlock/store-engine/internal/store"
)

type Service struct {
	Store store.Store
	Log   *zap.Logger
}

func New(st store.Store, log *zap.Logger) *Service {
	return &Service{Store: st, Log: log}
}

// CleanLines trims every line and drops the blank ones. Ingestion counts
// only what survives.
func CleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Ingest appends the usable lines of a batch as available tokens for the
// product. Returns how many were ingested.
func (s *Service) Ingest(ctx context.Context, code string, lines []string, addedBy, sourceBatch string) (int64, error) {
	clean := CleanLines(lines)
	if len(clean) == 0 {
		return 0, store.ErrEmptyBatch
	}
	n, err := s.Store.IngestTokens(ctx, code, clean, addedBy, sourceBatch)
	if err != nil {
		return 0, fmt.Errorf("ingest %s: %w", code, err)
	}
	s.Log.Info("stock ingested",
		zap.String("product", code),
		zap.Int64("count", n),
		zap.String("added_by", addedBy),
		zap.String("batch", sourceBatch))
	return n, nil
}

func (s *Service) Stats(ctx context.Context, code string) (store.ProductStats, error) {
	return s.Store.ProductStats(ctx, code)
}

func (s *Service) CreateProduct(ctx context.Context, name, code string, price int64, description string) error {
	if code == "" || name == "" || price < 0 {
		return store.ErrInvalidInput
	}
	if err := s.Store.CreateProduct(ctx, store.Product{
		Code:        code,
		Name:        name,
		Price:       price,
		Description: description,
	}); err != nil {
		return err
	}
	s.Log.Info("product created", zap.String("code", code), zap.Int64("price", price))
	return nil
}

func (s *Service) DeleteProduct(ctx context.Context, code string) error {
	if err := s.Store.DeleteProduct(ctx, code); err != nil {
		return err
	}
	s.Log.Warn("product deleted with its token pool", zap.String("code", code))
	return nil
}

func (s *Service) ChangePrice(ctx context.Context, code string, price int64) error {
	if price < 0 {
		return store.ErrInvalidAmount
	}
	return s.Store.UpdatePrice(ctx, code, price)
}

func (s *Service) SetDescription(ctx context.Context, code, description string) error {
	return s.Store.UpdateDescription(ctx, code, description)
}

func (s *Service) ListProducts(ctx context.Context) ([]store.ProductListing, error) {
	return s.Store.ListProducts(ctx)
}
