package shopping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

const productService = "product-service"

// SearchParams filters a product search. Prices are in KRW.
type SearchParams struct {
	Keyword  string
	Category string
	Brand    string
	MinPrice int
	MaxPrice int
	Page     int
	Size     int
}

// SearchProducts searches the catalog with the given filters.
func (c *Clients) SearchProducts(ctx context.Context, p SearchParams) (json.RawMessage, error) {
	size := p.Size
	if size <= 0 {
		size = 10
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(p.Page))
	params.Set("size", strconv.Itoa(size))
	if p.Keyword != "" {
		params.Set("keyword", p.Keyword)
	}
	if p.Category != "" {
		params.Set("category", p.Category)
	}
	if p.Brand != "" {
		params.Set("brand", p.Brand)
	}
	if p.MinPrice > 0 {
		params.Set("minPrice", strconv.Itoa(p.MinPrice))
	}
	if p.MaxPrice > 0 {
		params.Set("maxPrice", strconv.Itoa(p.MaxPrice))
	}

	return c.do(ctx, http.MethodGet, productService, c.cfg.ProductURL+"/api/products", params, nil)
}

// GetProduct fetches product details by ID.
func (c *Clients) GetProduct(ctx context.Context, productID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, productService, c.cfg.ProductURL+"/api/products/"+productID, nil, nil)
}

// GetProductVariants fetches the variants of a product.
func (c *Clients) GetProductVariants(ctx context.Context, productID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, productService, c.cfg.ProductURL+"/api/products/"+productID+"/variants", nil, nil)
}

// GetCategories fetches the category tree.
func (c *Clients) GetCategories(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, productService, c.cfg.ProductURL+"/api/categories", nil, nil)
}
