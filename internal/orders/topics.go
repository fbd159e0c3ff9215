package orders

const (
	TopicOrderStatusChanged = "order.status.changed"
	TopicOrderUpdated       = "order.updated"
)

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
