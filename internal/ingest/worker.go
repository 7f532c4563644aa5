// Package ingest consumes bulk stock batches from the ingestion topic and
// loads them into the allocator's token pool. Delivery is at-least-once;
// event-id dedup keys make ingestion effectively once.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/growlock/store-engine/internal/kafka"
	"github.com/growlock/store-engine/internal/orders"
	"github.com/growlock/store-engine/internal/redisx"
	"github.com/growlock/store-engine/internal/stock"
	"github.com/growlock/store-engine/internal/store"
)

type Worker struct {
	Stock       *stock.Service
	Redis       *redis.Client
	Producer    orders.Publisher // store.stock.ingested
	Log         *zap.Logger
	ServiceName string
}

// HandleStockBatch is mounted as the consumer handler for the batch topic.
func (w *Worker) HandleStockBatch(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// Poison message; log and commit rather than loop forever.
		w.Log.Error("undecodable batch message", zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventStockBatch {
		return nil // ignore
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, w.ServiceName, env.EventID)
	if w.Redis != nil {
		if exists, _ := redisx.Exists(ctx, w.Redis, dkey); exists {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.StockBatchPayload](env.Payload)
	if err != nil {
		w.Log.Error("undecodable batch payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	n, err := w.Stock.Ingest(ctx, p.ProductCode, p.Lines, p.AddedBy, p.SourceBatch)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrEmptyBatch):
		// Business rejection is final; commit the offset and record it.
		w.Log.Warn("batch rejected",
			zap.String("product", p.ProductCode),
			zap.String("batch", p.SourceBatch),
			zap.Error(err))
	case err != nil:
		return err // storage failure: retry via redelivery
	}

	if w.Redis != nil {
		_ = w.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	if err == nil {
		w.publishIngested(p, n, env.TraceID)
	}
	return nil
}

func (w *Worker) publishIngested(p orders.StockBatchPayload, count int64, trace string) {
	if w.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventStockIngested,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      w.ServiceName,
		TraceID:       trace,
		CorrelationID: p.ProductCode,
		Payload: kafkax.MustMarshal(orders.StockIngestedPayload{
			ProductCode: p.ProductCode,
			Count:       count,
			AddedBy:     p.AddedBy,
			SourceBatch: p.SourceBatch,
		}),
	}
	w.Producer.Publish(orders.PartitionKey(p.ProductCode), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockIngested)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
