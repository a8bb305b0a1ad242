package shopping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

const inventoryService = "inventory-service"

// CheckInventory checks whether a product variant has the desired quantity
// in stock.
func (c *Clients) CheckInventory(ctx context.Context, productID, variantID string, quantity int) (json.RawMessage, error) {
	if quantity <= 0 {
		quantity = 1
	}

	params := url.Values{}
	params.Set("productId", productID)
	params.Set("quantity", strconv.Itoa(quantity))
	if variantID != "" {
		params.Set("variantId", variantID)
	}

	return c.do(ctx, http.MethodGet, inventoryService, c.cfg.InventoryURL+"/api/inventory/check", params, nil)
}

// GetProductInventory fetches stock levels for all variants of a product.
func (c *Clients) GetProductInventory(ctx context.Context, productID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, inventoryService, c.cfg.InventoryURL+"/api/inventory/product/"+productID, nil, nil)
}
