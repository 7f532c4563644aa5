// Package orders is the purchase orchestrator: it validates requests,
// resolves the buyer's identity, runs the atomic reserve-debit-record unit
// through the store, and publishes the outcome for the notification layer.
package orders

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/growlock/store-engine/internal/kafka"
	"github.com/growlock/store-engine/internal/store"
)

// Publisher is the slice of the kafka producer the processor needs.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Receipt struct {
	OrderNumber int64    `json:"order_number"`
	GrowID      string   `json:"growid"`
	ProductCode string   `json:"product_code"`
	Quantity    int64    `json:"quantity"`
	UnitPrice   int64    `json:"unit_price"`
	TotalPrice  int64    `json:"total_price"`
	Items       []string `json:"items"`
}

type Processor struct {
	Store         store.Store
	ProducerOrder Publisher // store.order.completed
	ProducerGrant Publisher // store.stock.granted
	Log           *zap.Logger
	Service       string
}

// Purchase claims quantity tokens of the product for the caller's bound
// account. The reserve, the WL debit, the order number and the order row
// commit as one unit; any failure rolls everything back.
func (p *Processor) Purchase(ctx context.Context, principalID, code string, quantity int64, traceID string) (Receipt, error) {
	if quantity < 1 {
		return Receipt{}, store.ErrInvalidQuantity
	}
	growid, err := p.Store.ResolveIdentity(ctx, principalID)
	if err != nil {
		return Receipt{}, err
	}

	res, err := p.Store.Purchase(ctx, principalID, growid, code, quantity, growid)
	if err != nil {
		if store.IsBusiness(err) {
			return Receipt{}, err
		}
		return Receipt{}, fmt.Errorf("purchase %s x%d for %s: %w", code, quantity, growid, err)
	}

	p.Log.Info("purchase committed",
		zap.Int64("order_number", res.OrderNumber),
		zap.String("growid", growid),
		zap.String("product", code),
		zap.Int64("quantity", quantity),
		zap.Int64("total_price", res.TotalPrice))

	p.publish(p.ProducerOrder, EventOrderCompleted,
		strconv.FormatInt(res.OrderNumber, 10), traceID,
		OrderCompletedPayload{
			OrderNumber: res.OrderNumber,
			PrincipalID: principalID,
			GrowID:      growid,
			ProductCode: code,
			Quantity:    quantity,
			UnitPrice:   res.UnitPrice,
			TotalPrice:  res.TotalPrice,
			Items:       res.Items,
		})

	return Receipt{
		OrderNumber: res.OrderNumber,
		GrowID:      growid,
		ProductCode: code,
		Quantity:    quantity,
		UnitPrice:   res.UnitPrice,
		TotalPrice:  res.TotalPrice,
		Items:       res.Items,
	}, nil
}

// Grant hands quantity tokens to an account without a debit. Admin path.
func (p *Processor) Grant(ctx context.Context, growid, code string, quantity int64, grantedBy, traceID string) ([]string, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidQuantity
	}
	items, err := p.Store.Grant(ctx, growid, code, quantity, grantedBy)
	if err != nil {
		return nil, err
	}
	p.Log.Warn("stock granted without charge",
		zap.String("growid", growid),
		zap.String("product", code),
		zap.Int64("quantity", quantity),
		zap.String("granted_by", grantedBy))

	p.publish(p.ProducerGrant, EventStockGranted, code, traceID,
		StockGrantedPayload{GrowID: growid, ProductCode: code, Quantity: quantity, GrantedBy: grantedBy})
	return items, nil
}

// publish is fire-and-forget: the purchase is already committed and a
// delivery hiccup must not undo it. Producers are bound to their topic at
// construction.
func (p *Processor) publish(prod Publisher, eventType, correlationID, traceID string, payload any) {
	if prod == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	prod.Publish(PartitionKey(correlationID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
