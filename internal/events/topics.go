package events

const (
	TopicSaleCompleted = "sale.completed"
	TopicStockReleased = "stock.released"
)

// PartitionKey keeps all events for one correlation id in order.
func PartitionKey(id string) []byte { return []byte(id) }
