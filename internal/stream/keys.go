package stream

import (
	"github.com/aws/aws-lambda-go/events"

	"github.com/saplingsites/orders-email/internal/orders"
)

// ExtractKey resolves the order identity, preferring the record's Keys image
// and falling back per field to the decoded body. ok is false when either
// field is still empty.
func ExtractKey(rec events.DynamoDBEventRecord, body map[string]any) (orders.Key, bool) {
	var keys map[string]any
	if len(rec.Change.Keys) > 0 {
		keys = DecodeImage(rec.Change.Keys)
	}

	key := orders.Key{
		BusinessID:       firstString(keys["businessId"], body["businessId"]),
		CreatedAtOrderID: firstString(keys["createdAtOrderId"], body["createdAtOrderId"]),
	}
	if key.BusinessID == "" || key.CreatedAtOrderID == "" {
		return orders.Key{}, false
	}
	return key, true
}

func firstString(values ...any) string {
	for _, v := range values {
		if s := str(v); s != "" {
			return s
		}
	}
	return ""
}
