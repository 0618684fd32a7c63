package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/saplingsites/orders-email/internal/aws"
	"github.com/saplingsites/orders-email/internal/orders"
)

// ErrConditionFailed is returned when a record to update does not exist.
var ErrConditionFailed = errors.New("conditional check failed")

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow is how long a key is remembered, e.g. 48*time.Hour.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

func (s *Store) keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrKey: &types.AttributeValueMemberS{Value: key},
	}
}

// Begin records key as IN_PROGRESS if it has not been seen.
// Returns (true, nil) when the caller owns the request, (false, nil) when the
// key already exists (caller should Get to inspect) and (false, err) otherwise.
func (s *Store) Begin(ctx context.Context, key string) (bool, error) {
	now := s.nowFunc()
	rec := Record{
		Key:       key,
		Status:    StatusInProgress,
		CreatedAt: orders.FormatTimestamp(now),
		UpdatedAt: orders.FormatTimestamp(now),
		ExpiresAt: now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		if orders.IsConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves a record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.keyAttr(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone stores the response replayed for later requests with key, along with
// the order it created.
func (s *Store) MarkDone(ctx context.Context, key string, order orders.Key, responseBody string, responseStatus int) error {
	return s.update(ctx, key,
		"SET #s = :s, business_id = :b, created_at_order_id = :k, response_body = :rb, response_status = :rs, updated_at = :ua",
		map[string]types.AttributeValue{
			":s":  &types.AttributeValueMemberS{Value: StatusDone},
			":b":  &types.AttributeValueMemberS{Value: order.BusinessID},
			":k":  &types.AttributeValueMemberS{Value: order.CreatedAtOrderID},
			":rb": &types.AttributeValueMemberS{Value: responseBody},
			":rs": &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
		})
}

// MarkFailed marks the record FAILED with a note.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	return s.update(ctx, key,
		"SET #s = :s, note = :n, updated_at = :ua",
		map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: StatusFailed},
			":n": &types.AttributeValueMemberS{Value: note},
		})
}

func (s *Store) update(ctx context.Context, key, expr string, values map[string]types.AttributeValue) error {
	values[":ua"] = &types.AttributeValueMemberS{Value: orders.FormatTimestamp(s.nowFunc())}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       s.keyAttr(key),
		UpdateExpression:          awsString(expr),
		ConditionExpression:       awsString("attribute_exists(idempotency_key)"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if orders.IsConditionalCheckFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
