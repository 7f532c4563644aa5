package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCompleted = "OrderCompleted"
	EventStockIngested  = "StockIngested"
	EventStockGranted   = "StockGranted"
	EventStockBatch     = "StockBatch"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "store-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload types per event ----

// OrderCompletedPayload is published after a purchase commits. The token
// contents ride along so the notification collaborator can deliver them to
// the buyer; the topic is internal-only for that reason.
type OrderCompletedPayload struct {
	OrderNumber int64    `json:"order_number"`
	PrincipalID string   `json:"principal_id"`
	GrowID      string   `json:"growid"`
	ProductCode string   `json:"product_code"`
	Quantity    int64    `json:"quantity"`
	UnitPrice   int64    `json:"unit_price"`
	TotalPrice  int64    `json:"total_price"`
	Items       []string `json:"items"`
}

type StockIngestedPayload struct {
	ProductCode string `json:"product_code"`
	Count       int64  `json:"count"`
	AddedBy     string `json:"added_by"`
	SourceBatch string `json:"source_batch"`
}

type StockGrantedPayload struct {
	GrowID      string `json:"growid"`
	ProductCode string `json:"product_code"`
	Quantity    int64  `json:"quantity"`
	GrantedBy   string `json:"granted_by"`
}

// StockBatchPayload is the inbound bulk-ingestion message consumed by the
// stock worker.
type StockBatchPayload struct {
	ProductCode string   `json:"product_code"`
	Lines       []string `json:"lines"`
	AddedBy     string   `json:"added_by"`
	SourceBatch string   `json:"source_batch"`
}
