package stream

import (
	"fmt"
	"math"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/saplingsites/orders-email/internal/orders"
)

// DecodeImage converts a stream image into plain Go values
// (string, float64, bool, []any, map[string]any, ...).
// Any failure yields an empty map so one bad record cannot abort a batch.
func DecodeImage(image map[string]events.DynamoDBAttributeValue) map[string]any {
	out := map[string]any{}
	if len(image) == 0 {
		return out
	}
	item, err := toSDKMap(image)
	if err != nil {
		return out
	}
	if err := attributevalue.UnmarshalMap(item, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func toSDKMap(m map[string]events.DynamoDBAttributeValue) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(m))
	for k, v := range m {
		av, err := toSDK(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func toSDK(v events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, 0, len(list))
		for i, el := range list {
			av, err := toSDK(el)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out = append(out, av)
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m, err := toSDKMap(v.Map())
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	}
	return nil, fmt.Errorf("unsupported attribute type %d", v.DataType())
}

// OrderView builds the typed view of a decoded order body. Wrongly typed
// fields are treated as absent; non-object items are dropped.
func OrderView(body map[string]any) orders.View {
	v := orders.EmptyView()
	v.BusinessID = str(body["businessId"])
	v.CreatedAtOrderID = str(body["createdAtOrderId"])
	v.OrderID = str(body["orderId"])
	v.CreatedAt = str(body["createdAt"])
	v.CustomerEmail = str(body["customerEmail"])
	v.CustomerName = str(body["customerName"])
	v.BusinessDisplayName = str(body["businessDisplayName"])
	v.BusinessNotificationEmail = str(body["businessNotificationEmail"])
	v.Total = num(body["total"])
	v.Currency = str(body["currency"])

	if list, ok := body["items"].([]any); ok {
		for _, raw := range list {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			v.Items = append(v.Items, orders.ItemView{
				Name:     str(m["name"]),
				Quantity: num(m["quantity"]),
				Price:    num(m["price"]),
				Total:    num(m["total"]),
			})
		}
	}
	return v
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return math.NaN()
}
