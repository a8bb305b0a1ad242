package shopping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

const reviewService = "review-service"

// GetProductReviews fetches a page of reviews for a product.
// sort is one of "helpful", "rating", "date".
func (c *Clients) GetProductReviews(ctx context.Context, productID, sort string, page, size int) (json.RawMessage, error) {
	if sort == "" {
		sort = "helpful"
	}
	if size <= 0 {
		size = 10
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	params.Set("sort", sort)

	return c.do(ctx, http.MethodGet, reviewService, c.cfg.ReviewURL+"/api/reviews/product/"+productID, params, nil)
}

// GetReviewSummary fetches the review summary for a product: average rating,
// rating distribution, size feedback distribution, quality rating.
func (c *Clients) GetReviewSummary(ctx context.Context, productID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, reviewService, c.cfg.ReviewURL+"/api/reviews/product/"+productID+"/summary", nil, nil)
}

// SearchReviews searches a product's reviews by keyword.
func (c *Clients) SearchReviews(ctx context.Context, productID, keyword string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("productId", productID)
	params.Set("keyword", keyword)

	return c.do(ctx, http.MethodGet, reviewService, c.cfg.ReviewURL+"/api/reviews/search", params, nil)
}
