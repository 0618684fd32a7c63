package email

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saplingsites/orders-email/internal/orders"
)

const from = "orders@saplingsites.com"

func baseOrder() orders.View {
	v := orders.EmptyView()
	v.OrderID = "o-123"
	v.CreatedAt = "2026-01-01T10:00:00.000Z"
	v.CustomerEmail = "jane@example.com"
	v.CustomerName = "Jane"
	v.BusinessDisplayName = "Bagel Barn"
	v.BusinessNotificationEmail = "owner@bagelbarn.com"
	v.Total = 15
	v.Currency = "usd"
	v.Items = []orders.ItemView{
		{Name: "Bagel", Quantity: 3, Price: 2, Total: math.NaN()},
		{Name: "Coffee", Quantity: 3, Price: 2, Total: 9},
	}
	return v
}

func TestRender_Completeness(t *testing.T) {
	tests := []struct {
		name          string
		customerEmail string
		businessEmail string
		wantCustomer  bool
		wantBusiness  bool
	}{
		{"both present", "jane@example.com", "owner@example.com", true, true},
		{"customer blank after trim", "   ", "owner@example.com", false, true},
		{"business missing", "jane@example.com", "", false, false},
		{"business blank after trim", "jane@example.com", " \t", false, false},
		{"both missing", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := baseOrder()
			v.CustomerEmail = tt.customerEmail
			v.BusinessNotificationEmail = tt.businessEmail

			r := Render(v, from)
			assert.Equal(t, tt.wantCustomer, r.Customer != nil)
			assert.Equal(t, tt.wantBusiness, r.Business != nil)
			assert.Equal(t, tt.wantCustomer && tt.wantBusiness, r.Complete())
		})
	}
}

func TestRender_CustomerEnvelope(t *testing.T) {
	r := Render(baseOrder(), from)
	require.NotNil(t, r.Customer)

	assert.Equal(t, "jane@example.com", r.Customer.To)
	assert.Equal(t, "Bagel Barn <orders@saplingsites.com>", r.Customer.From)
	assert.Equal(t, "owner@bagelbarn.com", r.Customer.ReplyTo)
	assert.Equal(t, "Your order is confirmed 🎉", r.Customer.Subject)
	assert.Contains(t, r.Customer.HTML, "<p><strong>Order ID:</strong> o-123</p>")
	assert.Contains(t, r.Customer.HTML, "<p><strong>Total:</strong> $15.00</p>")
	assert.Contains(t, r.Customer.HTML, `<a href="mailto:owner@bagelbarn.com">`)
}

func TestRender_DefaultDisplayName(t *testing.T) {
	v := baseOrder()
	v.BusinessDisplayName = "  "

	r := Render(v, from)
	require.NotNil(t, r.Customer)
	assert.Equal(t, "Sapling Sites <orders@saplingsites.com>", r.Customer.From)
}

func TestRender_BusinessEnvelope(t *testing.T) {
	r := Render(baseOrder(), from)
	require.NotNil(t, r.Business)

	assert.Equal(t, "owner@bagelbarn.com", r.Business.To)
	assert.Equal(t, "owner@bagelbarn.com", r.Business.ReplyTo)
	assert.Equal(t, "New Order <orders@saplingsites.com>", r.Business.From)
	assert.Equal(t, "New Order Received – o-123", r.Business.Subject)
	assert.Contains(t, r.Business.HTML, "<p><strong>Customer:</strong> Jane</p>")
	assert.Contains(t, r.Business.HTML, "<p><strong>Created:</strong> 2026-01-01T10:00:00.000Z</p>")
}

func TestRender_BusinessSubjectWithoutOrderID(t *testing.T) {
	v := baseOrder()
	v.OrderID = ""

	r := Render(v, from)
	require.NotNil(t, r.Business)
	assert.Equal(t, "New Order Received – Unknown Order", r.Business.Subject)
	assert.NotContains(t, r.Business.HTML, "Order ID")
}

func TestRender_OmitsAbsentSections(t *testing.T) {
	v := orders.EmptyView()
	v.CustomerEmail = "jane@example.com"
	v.BusinessNotificationEmail = "owner@example.com"

	r := Render(v, from)
	require.True(t, r.Complete())
	for _, html := range []string{r.Customer.HTML, r.Business.HTML} {
		assert.Contains(t, html, "<p>(No items)</p>")
		assert.NotContains(t, html, "Total:")
		assert.NotContains(t, html, "Order ID")
		assert.NotContains(t, html, "NaN")
		assert.NotContains(t, html, "undefined")
	}
	assert.NotContains(t, r.Business.HTML, "Customer:")
	assert.NotContains(t, r.Business.HTML, "Created:")
}

func TestRender_EscapesUserContent(t *testing.T) {
	v := baseOrder()
	v.CustomerName = `<script>alert("x")</script> & 'friends'`
	v.Items = []orders.ItemView{{Name: `<b>Bagel</b> & "Lox" 'n'`, Quantity: 1, Price: 1, Total: math.NaN()}}

	r := Render(v, from)
	require.True(t, r.Complete())

	assert.Contains(t, r.Business.HTML, "&lt;script&gt;alert(&quot;x&quot;)&lt;/script&gt; &amp; &#39;friends&#39;")
	assert.NotContains(t, r.Business.HTML, "<script>")
	for _, html := range []string{r.Customer.HTML, r.Business.HTML} {
		assert.Contains(t, html, "&lt;b&gt;Bagel&lt;/b&gt; &amp; &quot;Lox&quot; &#39;n&#39;")
		assert.NotContains(t, html, "<b>Bagel</b>")
	}
}

func TestLineTotal(t *testing.T) {
	nan := math.NaN()

	assert.Equal(t, 6.0, LineTotal(orders.ItemView{Price: 2, Quantity: 3, Total: nan}))
	assert.Equal(t, 9.0, LineTotal(orders.ItemView{Price: 2, Quantity: 3, Total: 9}))
	assert.Equal(t, 2.0, LineTotal(orders.ItemView{Price: 2, Quantity: nan, Total: nan}), "quantity defaults to 1")
	assert.True(t, math.IsNaN(LineTotal(orders.ItemView{Price: nan, Quantity: 3, Total: nan})))
	assert.Equal(t, 4.0, LineTotal(orders.ItemView{Price: nan, Quantity: 3, Total: 4}))
}

func TestRender_ItemLines(t *testing.T) {
	v := baseOrder()
	v.Items = []orders.ItemView{
		{Name: "Bagel", Quantity: 3, Price: 2, Total: math.NaN()},
		{Name: "Coffee", Quantity: 3, Price: 2, Total: 9},
		{Name: "", Quantity: math.NaN(), Price: math.NaN(), Total: math.NaN()},
	}

	r := Render(v, from)
	require.NotNil(t, r.Customer)
	assert.Contains(t, r.Customer.HTML, "<li><strong>Bagel</strong> × 3 — $6.00</li>")
	assert.Contains(t, r.Customer.HTML, "<li><strong>Coffee</strong> × 3 — $9.00</li>")
	assert.Contains(t, r.Customer.HTML, "<li><strong>Item</strong> × 1</li>")
}
