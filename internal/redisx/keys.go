package redisx

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// idem:order:create:{idempotency key} -> order id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// order_status:{order id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%d"

	// dedup:{service}:{event id}
	KeyDedup = "dedup:%s:%s"

	// hash seller_order_stats:{seller id} -> status -> count
	KeySellerStats = "seller_order_stats:%d"

	// pub/sub channel carrying one seller's order events
	ChannelSellerOrders = "orders:seller:%d"
	PatternSellerOrders = "orders:seller:*"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLIdemPending = 30 * time.Second
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func SellerChannel(sellerID int64) string { return fmt.Sprintf(ChannelSellerOrders, sellerID) }

// SellerFromChannel parses the seller id out of a channel name built by
// SellerChannel.
func SellerFromChannel(ch string) (int64, bool) {
	prefix := strings.TrimSuffix(PatternSellerOrders, "*")
	if !strings.HasPrefix(ch, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(ch, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
