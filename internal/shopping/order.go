package shopping

import (
	"context"
	"encoding/json"
	"net/http"
)

const orderService = "order-service"

// OrderItem is one line item added to a draft order.
type OrderItem struct {
	ProductID   string `json:"productId"`
	VariantID   string `json:"variantId,omitempty"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int    `json:"unitPrice"`
}

// CreateOrder creates a draft order (cart) for a user.
func (c *Clients) CreateOrder(ctx context.Context, userID string) (json.RawMessage, error) {
	body := map[string]string{"userId": userID}
	return c.do(ctx, http.MethodPost, orderService, c.cfg.OrderURL+"/api/orders", nil, body)
}

// GetOrder fetches an order with its items, status, and total.
func (c *Clients) GetOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, orderService, c.cfg.OrderURL+"/api/orders/"+orderID, nil, nil)
}

// GetUserOrders fetches all orders for a user, past orders included.
func (c *Clients) GetUserOrders(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, orderService, c.cfg.OrderURL+"/api/orders/user/"+userID, nil, nil)
}

// AddOrderItem adds a line item to a draft order.
func (c *Clients) AddOrderItem(ctx context.Context, orderID string, item OrderItem) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, orderService, c.cfg.OrderURL+"/api/orders/"+orderID+"/items", nil, item)
}

// RemoveOrderItem removes a line item from a draft order.
func (c *Clients) RemoveOrderItem(ctx context.Context, orderID, itemID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, orderService, c.cfg.OrderURL+"/api/orders/"+orderID+"/items/"+itemID, nil, nil)
}

// UpdateOrderItem changes the quantity of a line item.
func (c *Clients) UpdateOrderItem(ctx context.Context, orderID, itemID string, quantity int) (json.RawMessage, error) {
	body := map[string]int{"quantity": quantity}
	return c.do(ctx, http.MethodPut, orderService, c.cfg.OrderURL+"/api/orders/"+orderID+"/items/"+itemID, nil, body)
}

// CheckoutOrder submits a draft order for checkout, moving it to
// PENDING_APPROVAL. The user must approve before the order is placed.
func (c *Clients) CheckoutOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, orderService, c.cfg.OrderURL+"/api/orders/"+orderID+"/checkout", nil, nil)
}

// ApproveOrder commits an order in PENDING_APPROVAL after explicit user
// approval, starting payment and inventory reservation.
func (c *Clients) ApproveOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, orderService, c.cfg.OrderURL+"/api/orders/"+orderID+"/approve", nil, nil)
}

// CancelOrder cancels an order with an optional reason.
func (c *Clients) CancelOrder(ctx context.Context, orderID, reason string) (json.RawMessage, error) {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	return c.do(ctx, http.MethodPost, orderService, c.cfg.OrderURL+"/api/orders/"+orderID+"/cancel", nil, body)
}

// RequestRefund requests a refund for a confirmed order.
func (c *Clients) RequestRefund(ctx context.Context, orderID, reason string) (json.RawMessage, error) {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	return c.do(ctx, http.MethodPost, orderService, c.cfg.OrderURL+"/api/orders/"+orderID+"/refund", nil, body)
}
