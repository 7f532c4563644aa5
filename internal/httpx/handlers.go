package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/growlock/store-engine/internal/ledger"
	"github.com/growlock/store-engine/internal/orders"
	"github.com/growlock/store-engine/internal/redisx"
	"github.com/growlock/store-engine/internal/stock"
	"github.com/growlock/store-engine/internal/store"
)

// Handler exposes every engine operation to the command-layer collaborator.
// Admin routes bypass purchase invariants by design; authenticating the
// caller is the collaborator's job, which is why they live under a separate
// subtree that can be wrapped in its own middleware.
type Handler struct {
	Ledger    *ledger.Service
	Stock     *stock.Service
	Processor *orders.Processor
	Redis     *redis.Client
	Log       *zap.Logger
}

func (h *Handler) Register(r *chi.Mux) {
	r.Post("/purchase", h.purchase)
	r.Get("/balance/{growid}", h.getBalance)
	r.Post("/convert", h.convert)
	r.Post("/identity", h.bindIdentity)
	r.Get("/identity/{principal}", h.getIdentity)
	r.Get("/products", h.listProducts)
	r.Get("/products/{code}/stats", h.stockStats)
	r.Get("/orders/{growid}", h.listOrders)
	r.Get("/world", h.getWorld)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/products", h.addProduct)
		r.Delete("/products/{code}", h.deleteProduct)
		r.Put("/products/{code}/price", h.changePrice)
		r.Put("/products/{code}/description", h.setDescription)
		r.Post("/products/{code}/stock", h.ingestStock)
		r.Post("/balance/credit", h.creditBalance)
		r.Post("/balance/adjust", h.adjustBalance)
		r.Post("/grant", h.grant)
		r.Put("/world", h.setWorld)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidQuantity),
		errors.Is(err, store.ErrInvalidAmount),
		errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, store.ErrEmptyBatch),
		errors.Is(err, store.ErrInvalidConversion):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrNoIdentity):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateCode),
		errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.Log.Error("storage failure", zap.Error(err))
		msg = "storage failure"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

// ---- customer surface ----

type purchaseReq struct {
	PrincipalID string `json:"principal_id"`
	ProductCode string `json:"product_code"`
	Quantity    int64  `json:"quantity"`
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseReq
	if !decode(w, r, &req) {
		return
	}
	if req.PrincipalID == "" || req.ProductCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	receipt, err := h.Processor.Purchase(ctx, req.PrincipalID, req.ProductCode, req.Quantity, r.Header.Get("X-Request-Id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.invalidate(ctx,
		redisx.KeyProductListing,
		fmt.Sprintf(redisx.KeyProductStats, req.ProductCode),
		fmt.Sprintf(redisx.KeyBalance, receipt.GrowID))
	writeJSON(w, http.StatusOK, receipt)
}

type balanceResp struct {
	store.Balance
	TotalWL int64 `json:"total_wl"`
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	growid := chi.URLParam(r, "growid")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyBalance, growid)
	if s, ok := h.cacheGet(ctx, key); ok {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	b, err := h.Ledger.Balance(ctx, growid)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	resp := balanceResp{Balance: b, TotalWL: b.WL + b.DL*ledger.WLPerDL + b.BGL*ledger.WLPerBGL}
	body, _ := json.Marshal(resp)
	h.cacheSet(ctx, key, body, redisx.TTLBalanceCache)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type convertReq struct {
	GrowID string `json:"growid"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	var req convertReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	err := h.Ledger.Convert(ctx, req.GrowID,
		store.Denomination(req.From), store.Denomination(req.To), req.Amount)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.invalidate(ctx, fmt.Sprintf(redisx.KeyBalance, req.GrowID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type bindReq struct {
	PrincipalID string `json:"principal_id"`
	GrowID      string `json:"growid"`
}

func (h *Handler) bindIdentity(w http.ResponseWriter, r *http.Request) {
	var req bindReq
	if !decode(w, r, &req) {
		return
	}
	if req.PrincipalID == "" || req.GrowID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Processor.Store.BindIdentity(ctx, req.PrincipalID, req.GrowID); err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"growid": req.GrowID})
}

func (h *Handler) getIdentity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	growid, err := h.Processor.Store.ResolveIdentity(ctx, chi.URLParam(r, "principal"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"growid": growid})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if s, ok := h.cacheGet(ctx, redisx.KeyProductListing); ok {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	ps, err := h.Stock.ListProducts(ctx)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	body, _ := json.Marshal(ps)
	h.cacheSet(ctx, redisx.KeyProductListing, body, redisx.TTLListingCache)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) stockStats(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyProductStats, code)
	if s, ok := h.cacheGet(ctx, key); ok {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	st, err := h.Stock.Stats(ctx, code)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	body, _ := json.Marshal(st)
	h.cacheSet(ctx, key, body, redisx.TTLStatsCache)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	os, err := h.Processor.Store.ListOrders(ctx, chi.URLParam(r, "growid"), 50)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *Handler) getWorld(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	wi, err := h.Processor.Store.GetWorldInfo(ctx)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wi)
}

// ---- admin surface ----

type addProductReq struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
}

func (h *Handler) addProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Stock.CreateProduct(ctx, req.Name, req.Code, req.Price, req.Description); err != nil {
		h.writeErr(w, err)
		return
	}
	h.invalidate(ctx, redisx.KeyProductListing)
	writeJSON(w, http.StatusCreated, map[string]string{"code": req.Code})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Stock.DeleteProduct(ctx, code); err != nil {
		h.writeErr(w, err)
		return
	}
	h.invalidate(ctx, redisx.KeyProductListing, fmt.Sprintf(redisx.KeyProductStats, code))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) changePrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price int64 `json:"price"`
	}
	if !decode(w, r, &req) {
		return
	}
	code := chi.URLParam(r, "code")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Stock.ChangePrice(ctx, code, req.Price); err != nil {
		h.writeErr(w, err)
		return
	}
	h.invalidate(ctx, redisx.KeyProductListing)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) setDescription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Stock.SetDescription(ctx, chi.URLParam(r, "code"), req.Description); err != nil {
		h.writeErr(w, err)
		return
	}
	h.invalidate(ctx, redisx.KeyProductListing)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestReq struct {
	Lines       []string `json:"lines"`
	AddedBy     string   `json:"added_by"`
	SourceBatch string   `json:"source_batch"`
}

func (h *Handler) ingestStock(w http.ResponseWriter, r *http.Request) {
	var req ingestReq
	if !decode(w, r, &req) {
		return
	}
	code := chi.URLParam(r, "code")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Stock.Ingest(ctx, code, req.Lines, req.AddedBy, req.SourceBatch)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.invalidate(ctx, redisx.KeyProductListing, fmt.Sprintf(redisx.KeyProductStats, code))
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

type balanceDeltaReq struct {
	GrowID string `json:"growid"`
	WL     int64  `json:"wl"`
	DL     int64  `json:"dl"`
	BGL    int64  `json:"bgl"`
}

func (h *Handler) creditBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceDeltaReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Ledger.Credit(ctx, req.GrowID, req.WL, req.DL, req.BGL); err != nil {
		h.writeErr(w, err)
		return
	}
	h.invalidate(ctx, fmt.Sprintf(redisx.KeyBalance, req.GrowID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// adjustBalance takes signed deltas and skips the sufficiency check; the
// result may be negative. Kept separate from the customer debit on purpose.
func (h *Handler) adjustBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceDeltaReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	b, err := h.Ledger.AdminAdjust(ctx, req.GrowID, req.WL, req.DL, req.BGL)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.invalidate(ctx, fmt.Sprintf(redisx.KeyBalance, req.GrowID))
	writeJSON(w, http.StatusOK, b)
}

type grantReq struct {
	GrowID      string `json:"growid"`
	ProductCode string `json:"product_code"`
	Quantity    int64  `json:"quantity"`
	GrantedBy   string `json:"granted_by"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.Processor.Grant(ctx, req.GrowID, req.ProductCode, req.Quantity,
		req.GrantedBy, r.Header.Get("X-Request-Id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.invalidate(ctx, redisx.KeyProductListing, fmt.Sprintf(redisx.KeyProductStats, req.ProductCode))
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) setWorld(w http.ResponseWriter, r *http.Request) {
	var req store.WorldInfo
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Processor.Store.SetWorldInfo(ctx, req); err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Cache helpers. Redis is an optional accelerator; the store stays the
// source of truth and a nil client just means every read goes to it.

func (h *Handler) cacheGet(ctx context.Context, key string) (string, bool) {
	if h.Redis == nil {
		return "", false
	}
	s, err := h.Redis.Get(ctx, key).Result()
	return s, err == nil && s != ""
}

func (h *Handler) cacheSet(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Set(ctx, key, body, ttl).Err()
}

func (h *Handler) invalidate(ctx context.Context, keys ...string) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, keys...).Err()
}
