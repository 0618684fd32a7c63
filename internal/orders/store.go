package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/saplingsites/orders-email/internal/aws"
)

// Expressions used against the orders table.
const (
	claimUpdateExpr     = "SET emailSendLockId = :lock, emailSendLockAt = :ts"
	claimCondition      = "attribute_not_exists(emailSentAt) AND attribute_not_exists(emailSendLockId)"
	claimStaleCondition = "attribute_not_exists(emailSentAt) AND (attribute_not_exists(emailSendLockId) OR emailSendLockAt < :stale)"
	finalizeUpdateExpr  = "SET emailSentAt = :ts REMOVE emailSendLockId, emailSendLockAt"
	createCondition     = "attribute_not_exists(createdAtOrderId)"
)

// DefaultTTL is how long created orders live before DynamoDB expires them.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrNotFound is returned by Get when no order exists for the key.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidKey is returned when an operation is given an incomplete key.
	ErrInvalidKey = errors.New("order key requires businessId and createdAtOrderId")
)

// Claim is the outcome of a claim attempt.
type Claim struct {
	Claimed bool
	LockID  string
	LockAt  string
}

// Store encapsulates operations on the orders table.
type Store struct {
	client      aws.DynamoDBAPI
	tableName   string
	lockTimeout time.Duration
	ttl         time.Duration
	nowFunc     func() time.Time
	newID       func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout lets Claim take over a lock older than d. Zero (the default)
// means a claimed order stays locked until Finalize, even if the holder died.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFunc = now }
}

// WithIDGenerator overrides lock and order id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string, opts ...Option) *Store {
	s := &Store{
		client:    client,
		tableName: tableName,
		ttl:       DefaultTTL,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LockTimeout returns the configured lock timeout; zero means disabled.
func (s *Store) LockTimeout() time.Duration { return s.lockTimeout }

func keyAttributes(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrBusinessID:       &types.AttributeValueMemberS{Value: key.BusinessID},
		AttrCreatedAtOrderID: &types.AttributeValueMemberS{Value: key.CreatedAtOrderID},
	}
}

// Claim tries to take the exclusive email-send lock for key.
// It returns Claimed=false with a nil error when the order was already sent or
// another worker holds the lock. Any other failure is returned as an error.
func (s *Store) Claim(ctx context.Context, key Key) (Claim, error) {
	if !key.Valid() {
		return Claim{}, ErrInvalidKey
	}

	now := s.nowFunc()
	claim := Claim{LockID: s.newID(), LockAt: FormatTimestamp(now)}

	values := map[string]types.AttributeValue{
		":lock": &types.AttributeValueMemberS{Value: claim.LockID},
		":ts":   &types.AttributeValueMemberS{Value: claim.LockAt},
	}
	condition := claimCondition
	if s.lockTimeout > 0 {
		condition = claimStaleCondition
		values[":stale"] = &types.AttributeValueMemberS{Value: FormatTimestamp(now.Add(-s.lockTimeout))}
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       keyAttributes(key),
		UpdateExpression:          awsString(claimUpdateExpr),
		ConditionExpression:       awsString(condition),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if IsConditionalCheckFailed(err) {
			return Claim{}, nil
		}
		return Claim{}, fmt.Errorf("claim email send %s: %w", key, err)
	}

	claim.Claimed = true
	return claim, nil
}

// Finalize records the send and releases the lock in one update.
func (s *Store) Finalize(ctx context.Context, key Key) error {
	if !key.Valid() {
		return ErrInvalidKey
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              keyAttributes(key),
		UpdateExpression: awsString(finalizeUpdateExpr),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ts": &types.AttributeValueMemberS{Value: FormatTimestamp(s.nowFunc())},
		},
	})
	if err != nil {
		return fmt.Errorf("finalize email send %s: %w", key, err)
	}
	return nil
}

// Get fetches an order by key. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, key Key) (*Order, error) {
	if !key.Valid() {
		return nil, ErrInvalidKey
	}

	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            keyAttributes(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// NewOrder is the input to Create.
type NewOrder struct {
	BusinessID                string
	CustomerEmail             string
	CustomerName              string
	BusinessDisplayName       string
	BusinessNotificationEmail string
	Items                     []Item
	Total                     *float64
	Currency                  string
	Status                    string
	Notes                     string
	TestEmail                 bool
}

// Create writes a new order with a generated id, sort key and TTL.
// The insert is what fires the stream event that drives the email dispatcher.
func (s *Store) Create(ctx context.Context, in NewOrder) (*Order, error) {
	if strings.TrimSpace(in.BusinessID) == "" {
		return nil, ErrInvalidKey
	}

	now := s.nowFunc()
	orderID := s.newID()
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = StatusPlaced
	}

	order := Order{
		BusinessID:                in.BusinessID,
		CreatedAtOrderID:          NewCreatedAtOrderID(now, orderID),
		OrderID:                   orderID,
		CreatedAt:                 FormatTimestamp(now),
		ExpiresAt:                 now.Add(s.ttl).Unix(),
		Status:                    status,
		CustomerEmail:             in.CustomerEmail,
		CustomerName:              in.CustomerName,
		BusinessDisplayName:       in.BusinessDisplayName,
		BusinessNotificationEmail: in.BusinessNotificationEmail,
		Items:                     in.Items,
		Total:                     in.Total,
		Currency:                  in.Currency,
		Notes:                     in.Notes,
		TestEmail:                 in.TestEmail,
	}

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(createCondition),
	})
	if err != nil {
		return nil, fmt.Errorf("put order: %w", err)
	}
	return &order, nil
}

// IsConditionalCheckFailed reports whether err is DynamoDB's
// ConditionalCheckFailedException, either typed or as a generic API error.
func IsConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
