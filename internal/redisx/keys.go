package redisx

import "time"

const (
	// Product listing snapshot: stock:listing -> JSON array
	KeyProductListing = "stock:listing"

	// Per-product stats cache: stock:stats:{code} -> JSON
	KeyProductStats = "stock:stats:%s"

	// Balance snapshot cache: balance:{growid} -> JSON
	KeyBalance = "balance:%s"

	// Dedup for batch ingestion: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLListingCache = 30 * time.Second
	TTLStatsCache   = 30 * time.Second
	TTLBalanceCache = 15 * time.Second
	TTLDedup        = 48 * time.Hour
)
