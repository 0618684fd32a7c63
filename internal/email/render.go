// Package email renders order confirmation emails and sends them through Resend.
package email

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/saplingsites/orders-email/internal/orders"
)

const (
	defaultDisplayName = "Sapling Sites"
	defaultCurrency    = "USD"
	customerSubject    = "Your order is confirmed 🎉"
)

// Message is one outgoing email.
type Message struct {
	To      string
	From    string
	ReplyTo string
	Subject string
	HTML    string
}

// Rendered holds both emails for an order. A nil field means the order lacks
// the fields required to build that email.
type Rendered struct {
	Customer *Message
	Business *Message
}

// Complete reports whether both emails could be built.
func (r Rendered) Complete() bool {
	return r.Customer != nil && r.Business != nil
}

// Render builds the customer receipt and the business notification for order.
// emailFrom is the bare sending address; display names are added here.
func Render(order orders.View, emailFrom string) Rendered {
	return Rendered{
		Customer: CustomerEmail(order, emailFrom),
		Business: BusinessEmail(order, emailFrom),
	}
}

// CustomerEmail requires a customer address and a business address to reply to.
func CustomerEmail(order orders.View, emailFrom string) *Message {
	to := strings.TrimSpace(order.CustomerEmail)
	replyTo := strings.TrimSpace(order.BusinessNotificationEmail)
	if to == "" || replyTo == "" {
		return nil
	}

	displayName := strings.TrimSpace(order.BusinessDisplayName)
	if displayName == "" {
		displayName = defaultDisplayName
	}
	orderID := strings.TrimSpace(order.OrderID)
	cur := currencyOf(order)

	html := joinSections(
		"<h2>Thank you for your order!</h2>",
		"<p>We’ve received your order and it’s confirmed.</p>",
		optional(orderID != "", "<p><strong>Order ID:</strong> "+escapeHTML(orderID)+"</p>"),
		"<h3>Items</h3>",
		renderItems(order.Items, cur),
		renderTotal(order.Total, cur),
		fmt.Sprintf(`<p>If you have questions, contact us at <a href="mailto:%s">%s</a>.</p>`, escapeHTML(replyTo), escapeHTML(replyTo)),
	)

	return &Message{
		To:      to,
		From:    fmt.Sprintf("%s <%s>", displayName, emailFrom),
		ReplyTo: replyTo,
		Subject: customerSubject,
		HTML:    html,
	}
}

// BusinessEmail requires the business notification address.
func BusinessEmail(order orders.View, emailFrom string) *Message {
	to := strings.TrimSpace(order.BusinessNotificationEmail)
	if to == "" {
		return nil
	}

	orderID := strings.TrimSpace(order.OrderID)
	createdAt := strings.TrimSpace(order.CreatedAt)
	customerName := strings.TrimSpace(order.CustomerName)
	customerEmail := strings.TrimSpace(order.CustomerEmail)
	cur := currencyOf(order)

	subjectID := orderID
	if subjectID == "" {
		subjectID = "Unknown Order"
	}

	html := joinSections(
		"<h2>New order received</h2>",
		optional(customerName != "", "<p><strong>Customer:</strong> "+escapeHTML(customerName)+"</p>"),
		optional(customerEmail != "", "<p><strong>Customer email:</strong> "+escapeHTML(customerEmail)+"</p>"),
		optional(orderID != "", "<p><strong>Order ID:</strong> "+escapeHTML(orderID)+"</p>"),
		"<h3>Items</h3>",
		renderItems(order.Items, cur),
		renderTotal(order.Total, cur),
		optional(createdAt != "", "<p><strong>Created:</strong> "+escapeHTML(createdAt)+"</p>"),
	)

	return &Message{
		To:      to,
		From:    fmt.Sprintf("New Order <%s>", emailFrom),
		ReplyTo: to,
		Subject: "New Order Received – " + subjectID,
		HTML:    html,
	}
}

// LineTotal resolves the money figure for an item: explicit total, else
// price × quantity, else NaN. Quantity defaults to 1.
func LineTotal(item orders.ItemView) float64 {
	if isFinite(item.Total) {
		return item.Total
	}
	if isFinite(item.Price) {
		return item.Price * quantityOf(item)
	}
	return math.NaN()
}

func quantityOf(item orders.ItemView) float64 {
	if isFinite(item.Quantity) {
		return item.Quantity
	}
	return 1
}

func renderItems(items []orders.ItemView, cur string) string {
	if len(items) == 0 {
		return "<p>(No items)</p>"
	}
	var b strings.Builder
	b.WriteString("<ul>")
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = "Item"
		}
		fmt.Fprintf(&b, "<li><strong>%s</strong> × %s", escapeHTML(name), formatNumber(quantityOf(item)))
		if total := LineTotal(item); isFinite(total) {
			if money := FormatMoney(total, cur); money != "" {
				b.WriteString(" — " + escapeHTML(money))
			}
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

func renderTotal(total float64, cur string) string {
	if !isFinite(total) {
		return ""
	}
	return "<p><strong>Total:</strong> " + escapeHTML(FormatMoney(total, cur)) + "</p>"
}

func currencyOf(order orders.View) string {
	cur := strings.ToUpper(strings.TrimSpace(order.Currency))
	if cur == "" {
		return defaultCurrency
	}
	return cur
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

func optional(ok bool, section string) string {
	if !ok {
		return ""
	}
	return section
}

func joinSections(sections ...string) string {
	kept := sections[:0]
	for _, s := range sections {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n")
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
