// Package postgres implements store.Store on a pgx pool. Multi-step
// operations run inside a single transaction with row locks, so a failure at
// any step rolls the whole operation back.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/growlock/store-engine/internal/store"
)

type Store struct{ DB *pgxpool.Pool }

var _ store.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var denomColumn = map[store.Denomination]string{
	store.DenomWL:  "balance_wl",
	store.DenomDL:  "balance_dl",
	store.DenomBGL: "balance_bgl",
}

func (s *Store) CreditBalance(ctx context.Context, growid string, wl, dl, bgl int64) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO accounts (growid, balance_wl, balance_dl, balance_bgl)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (growid) DO UPDATE SET
			balance_wl  = accounts.balance_wl  + EXCLUDED.balance_wl,
			balance_dl  = accounts.balance_dl  + EXCLUDED.balance_dl,
			balance_bgl = accounts.balance_bgl + EXCLUDED.balance_bgl`,
		growid, wl, dl, bgl)
	return err
}

func (s *Store) DebitWL(ctx context.Context, growid string, amount int64) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE accounts SET balance_wl = balance_wl - $2
		WHERE growid = $1 AND balance_wl >= $2`, growid, amount)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrInsufficientFunds
	}
	return nil
}

func (s *Store) AdminAdjustBalance(ctx context.Context, growid string, wl, dl, bgl int64) (store.Balance, error) {
	b := store.Balance{GrowID: growid}
	err := s.DB.QueryRow(ctx, `
		INSERT INTO accounts (growid, balance_wl, balance_dl, balance_bgl)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (growid) DO UPDATE SET
			balance_wl  = accounts.balance_wl  + EXCLUDED.balance_wl,
			balance_dl  = accounts.balance_dl  + EXCLUDED.balance_dl,
			balance_bgl = accounts.balance_bgl + EXCLUDED.balance_bgl
		RETURNING balance_wl, balance_dl, balance_bgl`,
		growid, wl, dl, bgl).Scan(&b.WL, &b.DL, &b.BGL)
	if err != nil {
		return store.Balance{}, err
	}
	return b, nil
}

func (s *Store) ConvertBalance(ctx context.Context, growid string, from store.Denomination, fromAmount int64, to store.Denomination, toAmount int64) error {
	fromCol, ok := denomColumn[from]
	if !ok {
		return store.ErrInvalidConversion
	}
	toCol, ok := denomColumn[to]
	if !ok {
		return store.ErrInvalidConversion
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var have int64
	err = tx.QueryRow(ctx,
		`SELECT `+fromCol+` FROM accounts WHERE growid = $1 FOR UPDATE`, growid).Scan(&have)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if have < fromAmount {
		return store.ErrInsufficientFunds
	}
	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET
			`+fromCol+` = `+fromCol+` - $2,
			`+toCol+`   = `+toCol+`   + $3
		WHERE growid = $1`, growid, fromAmount, toAmount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetBalance(ctx context.Context, growid string) (store.Balance, error) {
	b := store.Balance{GrowID: growid}
	err := s.DB.QueryRow(ctx, `
		SELECT balance_wl, balance_dl, balance_bgl FROM accounts WHERE growid = $1`,
		growid).Scan(&b.WL, &b.DL, &b.BGL)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Balance{}, store.ErrNotFound
	}
	if err != nil {
		return store.Balance{}, err
	}
	return b, nil
}

func (s *Store) BindIdentity(ctx context.Context, principalID, growid string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO identity_bindings (principal_id, growid) VALUES ($1, $2)
		ON CONFLICT (principal_id) DO UPDATE SET growid = EXCLUDED.growid, bound_at = now()`,
		principalID, growid); err != nil {
		return err
	}
	// Account comes into existence on first registration.
	if _, err := tx.Exec(ctx, `
		INSERT INTO accounts (growid) VALUES ($1) ON CONFLICT (growid) DO NOTHING`,
		growid); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ResolveIdentity(ctx context.Context, principalID string) (string, error) {
	var growid string
	err := s.DB.QueryRow(ctx,
		`SELECT growid FROM identity_bindings WHERE principal_id = $1`, principalID).Scan(&growid)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNoIdentity
	}
	if err != nil {
		return "", err
	}
	return growid, nil
}

func (s *Store) CreateProduct(ctx context.Context, p store.Product) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products (code, name, price, description) VALUES ($1, $2, $3, $4)`,
		p.Code, p.Name, p.Price, p.Description)
	if isUniqueViolation(err) {
		return store.ErrDuplicateCode
	}
	return err
}

func (s *Store) GetProduct(ctx context.Context, code string) (store.Product, error) {
	var p store.Product
	err := s.DB.QueryRow(ctx, `
		SELECT code, name, price, description, created_at, updated_at
		FROM products WHERE code = $1`, code).
		Scan(&p.Code, &p.Name, &p.Price, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Product{}, store.ErrNotFound
	}
	if err != nil {
		return store.Product{}, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]store.ProductListing, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT p.code, p.name, p.price, p.description, p.created_at, p.updated_at,
		       COUNT(t.id) FILTER (WHERE t.state = 'available')
		FROM products p
		LEFT JOIN stock_tokens t ON t.product_code = p.code
		GROUP BY p.code
		ORDER BY p.code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ProductListing
	for rows.Next() {
		var l store.ProductListing
		if err := rows.Scan(&l.Code, &l.Name, &l.Price, &l.Description,
			&l.CreatedAt, &l.UpdatedAt, &l.Available); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePrice(ctx context.Context, code string, price int64) error {
	ct, err := s.DB.Exec(ctx,
		`UPDATE products SET price = $2, updated_at = now() WHERE code = $1`, code, price)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateDescription(ctx context.Context, code, description string) error {
	ct, err := s.DB.Exec(ctx,
		`UPDATE products SET description = $2, updated_at = now() WHERE code = $1`, code, description)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, code string) error {
	// Tokens cascade via the FK.
	ct, err := s.DB.Exec(ctx, `DELETE FROM products WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) IngestTokens(ctx context.Context, code string, contents []string, addedBy, sourceBatch string) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE code = $1)`, code).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	now := time.Now().UTC()
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"stock_tokens"},
		[]string{"id", "product_code", "content", "state", "added_by", "added_at", "source_batch"},
		pgx.CopyFromSlice(len(contents), func(i int) ([]any, error) {
			return []any{uuid.NewString(), code, contents[i], string(store.TokenAvailable), addedBy, now, sourceBatch}, nil
		}))
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ProductStats(ctx context.Context, code string) (store.ProductStats, error) {
	var exists bool
	if err := s.DB.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE code = $1)`, code).Scan(&exists); err != nil {
		return store.ProductStats{}, err
	}
	if !exists {
		return store.ProductStats{}, store.ErrNotFound
	}

	var st store.ProductStats
	err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE state = 'available'),
		       COUNT(*) FILTER (WHERE state = 'consumed'),
		       COUNT(*),
		       MAX(added_at),
		       MAX(consumed_at)
		FROM stock_tokens WHERE product_code = $1`, code).
		Scan(&st.Available, &st.Consumed, &st.Total, &st.LastAddedAt, &st.LastUsedAt)
	if err != nil {
		return store.ProductStats{}, err
	}
	return st, nil
}

// reserveTx locks and consumes quantity available tokens for code inside tx,
// picking them in insertion order. The product row is locked first so
// concurrent reservations for the same product serialize.
func reserveTx(ctx context.Context, tx pgx.Tx, code string, quantity int64, consumedBy string, now time.Time) (price int64, items []string, err error) {
	err = tx.QueryRow(ctx,
		`SELECT price FROM products WHERE code = $1 FOR UPDATE`, code).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, store.ErrNotFound
	}
	if err != nil {
		return 0, nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, content FROM stock_tokens
		WHERE product_code = $1 AND state = 'available'
		ORDER BY seq
		LIMIT $2
		FOR UPDATE`, code, quantity)
	if err != nil {
		return 0, nil, err
	}
	var ids []string
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return 0, nil, err
		}
		ids = append(ids, id)
		items = append(items, content)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}
	if int64(len(ids)) < quantity {
		return 0, nil, store.ErrInsufficientStock
	}

	ct, err := tx.Exec(ctx, `
		UPDATE stock_tokens
		SET state = 'consumed', consumed_by = $2, consumed_at = $3
		WHERE id = ANY($1) AND state = 'available'`, ids, consumedBy, now)
	if err != nil {
		return 0, nil, err
	}
	if ct.RowsAffected() != quantity {
		return 0, nil, fmt.Errorf("reserved %d of %d tokens", ct.RowsAffected(), quantity)
	}
	return price, items, nil
}

func (s *Store) Purchase(ctx context.Context, principalID, growid, code string, quantity int64, consumedBy string) (store.PurchaseResult, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.PurchaseResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	price, items, err := reserveTx(ctx, tx, code, quantity, consumedBy, now)
	if err != nil {
		return store.PurchaseResult{}, err
	}
	total := price * quantity

	ct, err := tx.Exec(ctx, `
		UPDATE accounts SET balance_wl = balance_wl - $2
		WHERE growid = $1 AND balance_wl >= $2`, growid, total)
	if err != nil {
		return store.PurchaseResult{}, err
	}
	if ct.RowsAffected() == 0 {
		// Rollback via defer returns the reserved tokens to available.
		return store.PurchaseResult{}, store.ErrInsufficientFunds
	}

	var number int64
	if err := tx.QueryRow(ctx, `
		UPDATE order_counter SET last_number = last_number + 1
		WHERE id = 1
		RETURNING last_number`).Scan(&number); err != nil {
		return store.PurchaseResult{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (order_number, principal_id, growid, product_code, quantity, unit_price, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		number, principalID, growid, code, quantity, price, total, now); err != nil {
		return store.PurchaseResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return store.PurchaseResult{}, err
	}
	return store.PurchaseResult{OrderNumber: number, UnitPrice: price, TotalPrice: total, Items: items}, nil
}

func (s *Store) Grant(ctx context.Context, growid, code string, quantity int64, grantedBy string) ([]string, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, items, err := reserveTx(ctx, tx, code, quantity, growid, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOrders(ctx context.Context, growid string, limit int64) ([]store.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx, `
		SELECT order_number, principal_id, growid, product_code, quantity, unit_price, total_price, created_at
		FROM orders WHERE growid = $1
		ORDER BY order_number DESC
		LIMIT $2`, growid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Order
	for rows.Next() {
		var o store.Order
		if err := rows.Scan(&o.Number, &o.PrincipalID, &o.GrowID, &o.ProductCode,
			&o.Quantity, &o.UnitPrice, &o.TotalPrice, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) SetWorldInfo(ctx context.Context, w store.WorldInfo) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO world_info (id, world, owner, bot) VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET world = EXCLUDED.world, owner = EXCLUDED.owner, bot = EXCLUDED.bot`,
		w.World, w.Owner, w.Bot)
	return err
}

func (s *Store) GetWorldInfo(ctx context.Context) (store.WorldInfo, error) {
	var w store.WorldInfo
	err := s.DB.QueryRow(ctx,
		`SELECT world, owner, bot FROM world_info WHERE id = 1`).Scan(&w.World, &w.Owner, &w.Bot)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.WorldInfo{}, store.ErrNotFound
	}
	if err != nil {
		return store.WorldInfo{}, err
	}
	return w, nil
}
