package orders

const (
	TopicOrderCompleted = "store.order.completed"
	TopicStockIngested  = "store.stock.ingested"
	TopicStockGranted   = "store.stock.granted"
	TopicStockBatch     = "store.stock.batch"
)

// Partition key = correlation id, so all events for one order or one product
// keep their order.
func PartitionKey(id string) []byte { return []byte(id) }
