// Package memory implements store.Store entirely in process. A single mutex
// serializes every operation, and multi-step operations validate all
// preconditions before touching state, so a failed call mutates nothing.
// Used by tests and embeddable deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/growlock/store-engine/internal/store"
)

type Store struct {
	mu sync.Mutex

	accounts map[string]*store.Balance
	bindings map[string]string // principal id -> growid
	products map[string]*store.Product
	tokens   map[string][]*store.StockToken // product code -> insertion order
	orders   []store.Order
	lastNum  int64
	world    *store.WorldInfo
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: make(map[string]*store.Balance),
		bindings: make(map[string]string),
		products: make(map[string]*store.Product),
		tokens:   make(map[string][]*store.StockToken),
	}
}

func (s *Store) account(growid string) *store.Balance {
	b, ok := s.accounts[growid]
	if !ok {
		b = &store.Balance{GrowID: growid}
		s.accounts[growid] = b
	}
	return b
}

func (s *Store) CreditBalance(ctx context.Context, growid string, wl, dl, bgl int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.account(growid)
	b.WL += wl
	b.DL += dl
	b.BGL += bgl
	return nil
}

func (s *Store) DebitWL(ctx context.Context, growid string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.accounts[growid]
	if !ok || b.WL < amount {
		return store.ErrInsufficientFunds
	}
	b.WL -= amount
	return nil
}

func (s *Store) AdminAdjustBalance(ctx context.Context, growid string, wl, dl, bgl int64) (store.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.account(growid)
	b.WL += wl
	b.DL += dl
	b.BGL += bgl
	return *b, nil
}

func (s *Store) ConvertBalance(ctx context.Context, growid string, from store.Denomination, fromAmount int64, to store.Denomination, toAmount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.accounts[growid]
	if !ok {
		return store.ErrNotFound
	}
	src := denomField(b, from)
	if *src < fromAmount {
		return store.ErrInsufficientFunds
	}
	*src -= fromAmount
	*denomField(b, to) += toAmount
	return nil
}

func denomField(b *store.Balance, d store.Denomination) *int64 {
	switch d {
	case store.DenomDL:
		return &b.DL
	case store.DenomBGL:
		return &b.BGL
	default:
		return &b.WL
	}
}

func (s *Store) GetBalance(ctx context.Context, growid string) (store.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.accounts[growid]
	if !ok {
		return store.Balance{}, store.ErrNotFound
	}
	return *b, nil
}

func (s *Store) BindIdentity(ctx context.Context, principalID, growid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[principalID] = growid
	s.account(growid)
	return nil
}

func (s *Store) ResolveIdentity(ctx context.Context, principalID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.bindings[principalID]
	if !ok {
		return "", store.ErrNoIdentity
	}
	return g, nil
}

func (s *Store) CreateProduct(ctx context.Context, p store.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.Code]; ok {
		return store.ErrDuplicateCode
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.Code] = &p
	return nil
}

func (s *Store) GetProduct(ctx context.Context, code string) (store.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[code]
	if !ok {
		return store.Product{}, store.ErrNotFound
	}
	return *p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]store.ProductListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.ProductListing, 0, len(s.products))
	for code, p := range s.products {
		out = append(out, store.ProductListing{Product: *p, Available: s.availableLocked(code)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) availableLocked(code string) int64 {
	var n int64
	for _, t := range s.tokens[code] {
		if t.State == store.TokenAvailable {
			n++
		}
	}
	return n
}

func (s *Store) UpdatePrice(ctx context.Context, code string, price int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[code]
	if !ok {
		return store.ErrNotFound
	}
	p.Price = price
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateDescription(ctx context.Context, code, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[code]
	if !ok {
		return store.ErrNotFound
	}
	p.Description = description
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[code]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, code)
	delete(s.tokens, code) // cascade
	return nil
}

func (s *Store) IngestTokens(ctx context.Context, code string, contents []string, addedBy, sourceBatch string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[code]; !ok {
		return 0, store.ErrNotFound
	}
	now := time.Now().UTC()
	for _, c := range contents {
		s.tokens[code] = append(s.tokens[code], &store.StockToken{
			ID:          uuid.NewString(),
			ProductCode: code,
			Content:     c,
			State:       store.TokenAvailable,
			AddedBy:     addedBy,
			AddedAt:     now,
			SourceBatch: sourceBatch,
		})
	}
	return int64(len(contents)), nil
}

func (s *Store) ProductStats(ctx context.Context, code string) (store.ProductStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[code]; !ok {
		return store.ProductStats{}, store.ErrNotFound
	}
	var st store.ProductStats
	for _, t := range s.tokens[code] {
		st.Total++
		if t.State == store.TokenAvailable {
			st.Available++
		} else {
			st.Consumed++
			if t.ConsumedAt != nil && (st.LastUsedAt == nil || t.ConsumedAt.After(*st.LastUsedAt)) {
				used := *t.ConsumedAt
				st.LastUsedAt = &used
			}
		}
		if st.LastAddedAt == nil || t.AddedAt.After(*st.LastAddedAt) {
			added := t.AddedAt
			st.LastAddedAt = &added
		}
	}
	return st, nil
}

// reserveLocked selects quantity available tokens in insertion order without
// mutating them. Callers mark them consumed only once every other
// precondition of the enclosing operation has passed.
func (s *Store) reserveLocked(code string, quantity int64) ([]*store.StockToken, error) {
	if _, ok := s.products[code]; !ok {
		return nil, store.ErrNotFound
	}
	picked := make([]*store.StockToken, 0, quantity)
	for _, t := range s.tokens[code] {
		if t.State != store.TokenAvailable {
			continue
		}
		picked = append(picked, t)
		if int64(len(picked)) == quantity {
			return picked, nil
		}
	}
	return nil, store.ErrInsufficientStock
}

func consume(tokens []*store.StockToken, by string, at time.Time) []string {
	items := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t.State = store.TokenConsumed
		t.ConsumedBy = by
		when := at
		t.ConsumedAt = &when
		items = append(items, t.Content)
	}
	return items
}

func (s *Store) Purchase(ctx context.Context, principalID, growid, code string, quantity int64, consumedBy string) (store.PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[code]
	if !ok {
		return store.PurchaseResult{}, store.ErrNotFound
	}
	total := p.Price * quantity

	picked, err := s.reserveLocked(code, quantity)
	if err != nil {
		return store.PurchaseResult{}, err
	}
	b, ok := s.accounts[growid]
	if !ok || b.WL < total {
		return store.PurchaseResult{}, store.ErrInsufficientFunds
	}

	// All checks passed; apply in one go.
	now := time.Now().UTC()
	b.WL -= total
	items := consume(picked, consumedBy, now)
	s.lastNum++
	s.orders = append(s.orders, store.Order{
		Number:      s.lastNum,
		PrincipalID: principalID,
		GrowID:      growid,
		ProductCode: code,
		Quantity:    quantity,
		UnitPrice:   p.Price,
		TotalPrice:  total,
		CreatedAt:   now,
	})
	return store.PurchaseResult{
		OrderNumber: s.lastNum,
		UnitPrice:   p.Price,
		TotalPrice:  total,
		Items:       items,
	}, nil
}

func (s *Store) Grant(ctx context.Context, growid, code string, quantity int64, grantedBy string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	picked, err := s.reserveLocked(code, quantity)
	if err != nil {
		return nil, err
	}
	// Tokens record the receiving account; the granting admin shows up in
	// the service log, not the token row.
	return consume(picked, growid, time.Now().UTC()), nil
}

func (s *Store) ListOrders(ctx context.Context, growid string, limit int64) ([]store.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []store.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		if s.orders[i].GrowID != growid {
			continue
		}
		out = append(out, s.orders[i])
		if int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SetWorldInfo(ctx context.Context, w store.WorldInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.world = &w
	return nil
}

func (s *Store) GetWorldInfo(ctx context.Context) (store.WorldInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.world == nil {
		return store.WorldInfo{}, store.ErrNotFound
	}
	return *s.world, nil
}
