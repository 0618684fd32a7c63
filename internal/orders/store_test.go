package orders_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saplingsites/orders-email/internal/email"
	"github.com/saplingsites/orders-email/internal/orders"
	"github.com/saplingsites/orders-email/internal/stream"
	"github.com/saplingsites/orders-email/internal/testutil"
)

const table = "SC-Orders"

var testKey = orders.Key{BusinessID: "biz-1", CreatedAtOrderID: "2026-01-02T03:04:05.000Z#o-1"}

func keyItem(k orders.Key) testutil.Item {
	return testutil.Item{
		"businessId":       &types.AttributeValueMemberS{Value: k.BusinessID},
		"createdAtOrderId": &types.AttributeValueMemberS{Value: k.CreatedAtOrderID},
	}
}

func seedOrder(t *testing.T, db *testutil.Dynamo, o orders.Order) {
	t.Helper()
	item, err := attributevalue.MarshalMap(o)
	require.NoError(t, err)
	db.Seed(table, item)
}

func fixedClock(ts time.Time) orders.Option {
	return orders.WithClock(func() time.Time { return ts })
}

func TestClaim_FirstWinsSecondNotClaimed(t *testing.T) {
	db := testutil.NewDynamo()
	seedOrder(t, db, orders.Order{BusinessID: testKey.BusinessID, CreatedAtOrderID: testKey.CreatedAtOrderID, OrderID: "o-1"})
	now := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	store := orders.NewStore(db, table, fixedClock(now), orders.WithIDGenerator(func() string { return "lock-1" }))

	claim, err := store.Claim(context.Background(), testKey)
	require.NoError(t, err)
	assert.True(t, claim.Claimed)
	assert.Equal(t, "lock-1", claim.LockID)
	assert.Equal(t, "2026-01-02T03:04:05.006Z", claim.LockAt)

	item := db.Item(table, keyItem(testKey))
	assert.Equal(t, "lock-1", item["emailSendLockId"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "2026-01-02T03:04:05.006Z", item["emailSendLockAt"].(*types.AttributeValueMemberS).Value)

	again, err := store.Claim(context.Background(), testKey)
	require.NoError(t, err)
	assert.False(t, again.Claimed)
	assert.Equal(t, "lock-1", db.Item(table, keyItem(testKey))["emailSendLockId"].(*types.AttributeValueMemberS).Value)
}

func TestClaim_AlreadySentNeverClaims(t *testing.T) {
	db := testutil.NewDynamo()
	seedOrder(t, db, orders.Order{
		BusinessID:       testKey.BusinessID,
		CreatedAtOrderID: testKey.CreatedAtOrderID,
		EmailSentAt:      "2026-01-01T00:00:00.000Z",
	})
	store := orders.NewStore(db, table)

	claim, err := store.Claim(context.Background(), testKey)
	require.NoError(t, err)
	assert.False(t, claim.Claimed)
}

func TestClaim_ConcurrentExactlyOneWins(t *testing.T) {
	db := testutil.NewDynamo()
	seedOrder(t, db, orders.Order{BusinessID: testKey.BusinessID, CreatedAtOrderID: testKey.CreatedAtOrderID})
	store := orders.NewStore(db, table)

	const workers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, err := store.Claim(context.Background(), testKey)
			if err != nil {
				errs <- err
				return
			}
			if claim.Claimed {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected claim error: %v", err)
	}
	assert.Equal(t, int32(1), wins.Load())
}

func TestClaim_UnexpectedErrorPropagates(t *testing.T) {
	db := testutil.NewDynamo()
	db.UpdateHook = func(*dyn.UpdateItemInput) error { return errors.New("throughput exceeded") }
	store := orders.NewStore(db, table)

	_, err := store.Claim(context.Background(), testKey)
	require.Error(t, err)
	assert.ErrorContains(t, err, "throughput exceeded")
	assert.False(t, orders.IsConditionalCheckFailed(err))
}

func TestClaim_InvalidKey(t *testing.T) {
	store := orders.NewStore(testutil.NewDynamo(), table)

	_, err := store.Claim(context.Background(), orders.Key{BusinessID: "biz"})
	assert.ErrorIs(t, err, orders.ErrInvalidKey)
}

func TestClaim_StaleLockStolenOnlyWithTimeout(t *testing.T) {
	db := testutil.NewDynamo()
	seedOrder(t, db, orders.Order{
		BusinessID:       testKey.BusinessID,
		CreatedAtOrderID: testKey.CreatedAtOrderID,
		EmailSendLockID:  "dead-worker",
		EmailSendLockAt:  "2026-01-02T03:00:00.000Z",
	})
	now := time.Date(2026, 1, 2, 3, 20, 0, 0, time.UTC)

	noTimeout := orders.NewStore(db, table, fixedClock(now))
	claim, err := noTimeout.Claim(context.Background(), testKey)
	require.NoError(t, err)
	assert.False(t, claim.Claimed, "locks are never stolen without a timeout")

	shortTimeout := orders.NewStore(db, table, fixedClock(now), orders.WithLockTimeout(30*time.Minute))
	claim, err = shortTimeout.Claim(context.Background(), testKey)
	require.NoError(t, err)
	assert.False(t, claim.Claimed, "lock is only 20 minutes old")

	withTimeout := orders.NewStore(db, table, fixedClock(now), orders.WithLockTimeout(10*time.Minute),
		orders.WithIDGenerator(func() string { return "new-lock" }))
	claim, err = withTimeout.Claim(context.Background(), testKey)
	require.NoError(t, err)
	assert.True(t, claim.Claimed)
	assert.Equal(t, "new-lock", db.Item(table, keyItem(testKey))["emailSendLockId"].(*types.AttributeValueMemberS).Value)
}

func TestFinalize_SetsSentAndClearsLock(t *testing.T) {
	db := testutil.NewDynamo()
	seedOrder(t, db, orders.Order{BusinessID: testKey.BusinessID, CreatedAtOrderID: testKey.CreatedAtOrderID})
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	store := orders.NewStore(db, table, fixedClock(now))

	claim, err := store.Claim(context.Background(), testKey)
	require.NoError(t, err)
	require.True(t, claim.Claimed)

	require.NoError(t, store.Finalize(context.Background(), testKey))

	got, err := store.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04T05:06:07.000Z", got.EmailSentAt)
	assert.Empty(t, got.EmailSendLockID)
	assert.Empty(t, got.EmailSendLockAt)
	assert.Equal(t, orders.ClaimSent, got.State(now, 0))

	again, err := store.Claim(context.Background(), testKey)
	require.NoError(t, err)
	assert.False(t, again.Claimed)
}

func TestGet_NotFound(t *testing.T) {
	store := orders.NewStore(testutil.NewDynamo(), table)

	_, err := store.Get(context.Background(), testKey)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestCreate_WritesKeyAndTTL(t *testing.T) {
	db := testutil.NewDynamo()
	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	store := orders.NewStore(db, table, fixedClock(now), orders.WithIDGenerator(func() string { return "order-uuid" }))

	created, err := store.Create(context.Background(), orders.NewOrder{
		BusinessID:                "biz-9",
		CustomerEmail:             "owner@example.com",
		BusinessNotificationEmail: "owner@example.com",
		Items:                     []orders.Item{{Name: "Email Test Order", Quantity: orders.Amount(1), Price: orders.Amount(0.01), Total: orders.Amount(0.01)}},
		Total:                     orders.Amount(0.01),
		Currency:                  "USD",
		TestEmail:                 true,
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-05-06T07:08:09.000Z#order-uuid", created.CreatedAtOrderID)
	assert.Equal(t, orders.StatusPlaced, created.Status)
	assert.Equal(t, now.Add(orders.DefaultTTL).Unix(), created.ExpiresAt)

	got, err := store.Get(context.Background(), created.Key())
	require.NoError(t, err)
	assert.Equal(t, "order-uuid", got.OrderID)
	assert.True(t, got.TestEmail)
	assert.Equal(t, orders.ClaimPending, got.State(now, 0))

	_, err = store.Create(context.Background(), orders.NewOrder{BusinessID: "biz-9"})
	require.Error(t, err, "same generated sort key must not overwrite")
}

func TestCreate_UnsetNumbersRenderFromPriceAndQuantity(t *testing.T) {
	db := testutil.NewDynamo()
	store := orders.NewStore(db, table)

	created, err := store.Create(context.Background(), orders.NewOrder{
		BusinessID:                "biz-9",
		CustomerEmail:             "jane@example.com",
		BusinessNotificationEmail: "owner@example.com",
		Items:                     []orders.Item{{Name: "Bagel", Quantity: orders.Amount(3), Price: orders.Amount(2)}},
		Currency:                  "USD",
	})
	require.NoError(t, err)

	item := db.Item(table, keyItem(created.Key()))
	require.NotNil(t, item)
	assert.NotContains(t, item, "total")
	stored := item["items"].(*types.AttributeValueMemberL).Value[0].(*types.AttributeValueMemberM).Value
	assert.NotContains(t, stored, "total")
	assert.Contains(t, stored, "price")

	var body map[string]any
	require.NoError(t, attributevalue.UnmarshalMap(item, &body))
	view := stream.OrderView(body)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 6.0, email.LineTotal(view.Items[0]))

	rendered := email.Render(view, "orders@saplingsites.com")
	require.True(t, rendered.Complete())
	assert.Contains(t, rendered.Customer.HTML, "<li><strong>Bagel</strong> × 3 — $6.00</li>")
	assert.NotContains(t, rendered.Customer.HTML, "$0.00")
	assert.NotContains(t, rendered.Customer.HTML, "Total:")
}

func TestOrderState(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	locked := orders.Order{EmailSendLockID: "l", EmailSendLockAt: "2026-01-01T11:00:00.000Z"}

	assert.Equal(t, orders.ClaimSending, locked.State(now, 0))
	assert.Equal(t, orders.ClaimSending, locked.State(now, 2*time.Hour))
	assert.Equal(t, orders.ClaimStale, locked.State(now, 30*time.Minute))
	assert.Equal(t, orders.ClaimPending, orders.Order{}.State(now, time.Minute))
}
