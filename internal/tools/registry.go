// Package tools declares the invocable external capabilities per task type
// and executes the reasoning provider's action requests against the domain
// services.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/shopd/internal/agent"
	"github.com/fyrsmithlabs/shopd/internal/engine"
	"github.com/fyrsmithlabs/shopd/internal/shopping"
)

// Handler executes one capability against its external collaborator.
type Handler func(ctx context.Context, args map[string]any) (json.RawMessage, error)

// Definition is one registered capability: its schema as presented to the
// reasoning provider, and the handler that executes it.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Registry holds the capability definitions and the per-task bindings.
//
// The checkout commit capability is deliberately absent: committing a
// purchase happens only through the explicit user-approval path, never
// through a provider-issued tool call.
type Registry struct {
	defs   map[string]Definition
	byTask map[agent.TaskType][]string
}

// NewRegistry builds the capability registry over the domain service clients.
func NewRegistry(clients *shopping.Clients) *Registry {
	r := &Registry{
		defs:   make(map[string]Definition),
		byTask: make(map[agent.TaskType][]string),
	}

	productTools := r.registerProductTools(clients)
	reviewTools := r.registerReviewTools(clients)
	cartTools := r.registerCartTools(clients)
	orderTools := r.registerOrderTools(clients)
	inventoryTools := r.registerInventoryTools(clients)

	r.byTask[agent.TaskSearch] = concat(productTools, inventoryTools)
	r.byTask[agent.TaskReview] = concat(reviewTools, productTools)
	r.byTask[agent.TaskCart] = concat(cartTools, productTools, inventoryTools)
	r.byTask[agent.TaskCheckout] = orderTools
	r.byTask[agent.TaskSupport] = concat(orderTools, productTools)

	return r
}

// Definitions returns the tool schemas bound to a task type.
func (r *Registry) Definitions(task agent.TaskType) []engine.ToolDef {
	names := r.byTask[task]
	out := make([]engine.ToolDef, 0, len(names))
	for _, name := range names {
		def := r.defs[name]
		out = append(out, engine.ToolDef{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return out
}

// Lookup returns the definition for a capability name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

func (r *Registry) register(def Definition) string {
	r.defs[def.Name] = def
	return def.Name
}

func (r *Registry) registerProductTools(clients *shopping.Clients) []string {
	return []string{
		r.register(Definition{
			Name:        "search_products",
			Description: "Search products in the store. Prices are in KRW (Korean Won).",
			Parameters: objectSchema(map[string]any{
				"keyword":   stringProp("Search keyword (product name, description)"),
				"category":  stringProp("Category name to filter"),
				"brand":     stringProp("Brand name to filter"),
				"min_price": intProp("Minimum price in KRW"),
				"max_price": intProp("Maximum price in KRW"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.SearchProducts(ctx, shopping.SearchParams{
					Keyword:  stringArg(args, "keyword"),
					Category: stringArg(args, "category"),
					Brand:    stringArg(args, "brand"),
					MinPrice: intArg(args, "min_price"),
					MaxPrice: intArg(args, "max_price"),
				})
			},
		}),
		r.register(Definition{
			Name:        "get_product_details",
			Description: "Get detailed information about a specific product including variants.",
			Parameters: objectSchema(map[string]any{
				"product_id": stringProp("UUID of the product"),
			}, "product_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				productID := stringArg(args, "product_id")
				product, err := clients.GetProduct(ctx, productID)
				if err != nil {
					return nil, err
				}
				variants, err := clients.GetProductVariants(ctx, productID)
				if err != nil {
					return nil, err
				}

				var merged map[string]any
				if err := json.Unmarshal(product, &merged); err != nil {
					return nil, fmt.Errorf("decode product: %w", err)
				}
				merged["variants"] = json.RawMessage(variants)
				return json.Marshal(merged)
			},
		}),
		r.register(Definition{
			Name:        "get_categories",
			Description: "Get all available product categories.",
			Parameters:  objectSchema(nil),
			Handler: func(ctx context.Context, _ map[string]any) (json.RawMessage, error) {
				return clients.GetCategories(ctx)
			},
		}),
	}
}

func (r *Registry) registerReviewTools(clients *shopping.Clients) []string {
	return []string{
		r.register(Definition{
			Name:        "get_product_reviews",
			Description: "Get reviews for a specific product. Sort by 'helpful', 'rating', or 'date'.",
			Parameters: objectSchema(map[string]any{
				"product_id": stringProp("UUID of the product"),
				"sort":       stringProp("Sort order: helpful, rating, or date"),
			}, "product_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.GetProductReviews(ctx, stringArg(args, "product_id"), stringArg(args, "sort"), 0, 10)
			},
		}),
		r.register(Definition{
			Name:        "get_review_summary",
			Description: "Get review summary: average rating, size feedback distribution, quality rating.",
			Parameters: objectSchema(map[string]any{
				"product_id": stringProp("UUID of the product"),
			}, "product_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.GetReviewSummary(ctx, stringArg(args, "product_id"))
			},
		}),
		r.register(Definition{
			Name:        "search_reviews",
			Description: "Search reviews for specific topics like sizing, quality, or material.",
			Parameters: objectSchema(map[string]any{
				"product_id": stringProp("UUID of the product"),
				"keyword":    stringProp("Search keyword (e.g. 사이즈, 품질, 배송, 소재)"),
			}, "product_id", "keyword"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.SearchReviews(ctx, stringArg(args, "product_id"), stringArg(args, "keyword"))
			},
		}),
	}
}

func (r *Registry) registerCartTools(clients *shopping.Clients) []string {
	return []string{
		r.register(Definition{
			Name:        "create_cart",
			Description: "Create a new shopping cart (draft order) for a user.",
			Parameters: objectSchema(map[string]any{
				"user_id": stringProp("User's UUID"),
			}, "user_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.CreateOrder(ctx, stringArg(args, "user_id"))
			},
		}),
		r.register(Definition{
			Name:        "add_to_cart",
			Description: "Add a product to the shopping cart.",
			Parameters: objectSchema(map[string]any{
				"order_id":     stringProp("The cart/draft order UUID"),
				"product_id":   stringProp("Product UUID to add"),
				"product_name": stringProp("Name of the product"),
				"quantity":     intProp("Number of items"),
				"unit_price":   intProp("Price per unit in KRW"),
				"variant_id":   stringProp("Optional variant UUID for a specific size/color"),
			}, "order_id", "product_id", "product_name", "quantity", "unit_price"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.AddOrderItem(ctx, stringArg(args, "order_id"), shopping.OrderItem{
					ProductID:   stringArg(args, "product_id"),
					VariantID:   stringArg(args, "variant_id"),
					ProductName: stringArg(args, "product_name"),
					Quantity:    intArg(args, "quantity"),
					UnitPrice:   intArg(args, "unit_price"),
				})
			},
		}),
		r.register(Definition{
			Name:        "remove_from_cart",
			Description: "Remove an item from the shopping cart.",
			Parameters: objectSchema(map[string]any{
				"order_id": stringProp("The cart/draft order UUID"),
				"item_id":  stringProp("The order item UUID to remove"),
			}, "order_id", "item_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.RemoveOrderItem(ctx, stringArg(args, "order_id"), stringArg(args, "item_id"))
			},
		}),
		r.register(Definition{
			Name:        "update_cart_item_quantity",
			Description: "Update quantity of an item in the cart.",
			Parameters: objectSchema(map[string]any{
				"order_id": stringProp("The cart/draft order UUID"),
				"item_id":  stringProp("The order item UUID"),
				"quantity": intProp("New quantity"),
			}, "order_id", "item_id", "quantity"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.UpdateOrderItem(ctx, stringArg(args, "order_id"), stringArg(args, "item_id"), intArg(args, "quantity"))
			},
		}),
		r.register(Definition{
			Name:        "get_order_details",
			Description: "Get current order/cart details including items, status, and total.",
			Parameters: objectSchema(map[string]any{
				"order_id": stringProp("Order UUID"),
			}, "order_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.GetOrder(ctx, stringArg(args, "order_id"))
			},
		}),
		r.register(Definition{
			Name:        "checkout_order",
			Description: "Submit order for checkout - moves to PENDING_APPROVAL status. The user must approve before the order is placed.",
			Parameters: objectSchema(map[string]any{
				"order_id": stringProp("Order UUID"),
			}, "order_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.CheckoutOrder(ctx, stringArg(args, "order_id"))
			},
		}),
	}
}

func (r *Registry) registerOrderTools(clients *shopping.Clients) []string {
	return []string{
		r.defs["get_order_details"].Name,
		r.register(Definition{
			Name:        "get_user_orders",
			Description: "Get all orders for a user, including past orders.",
			Parameters: objectSchema(map[string]any{
				"user_id": stringProp("User UUID"),
			}, "user_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.GetUserOrders(ctx, stringArg(args, "user_id"))
			},
		}),
		r.register(Definition{
			Name:        "cancel_order",
			Description: "Cancel an order.",
			Parameters: objectSchema(map[string]any{
				"order_id": stringProp("Order UUID"),
				"reason":   stringProp("Optional cancellation reason"),
			}, "order_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.CancelOrder(ctx, stringArg(args, "order_id"), stringArg(args, "reason"))
			},
		}),
		r.register(Definition{
			Name:        "request_refund",
			Description: "Request a refund for a confirmed order.",
			Parameters: objectSchema(map[string]any{
				"order_id": stringProp("Order UUID"),
				"reason":   stringProp("Reason for refund"),
			}, "order_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.RequestRefund(ctx, stringArg(args, "order_id"), stringArg(args, "reason"))
			},
		}),
	}
}

func (r *Registry) registerInventoryTools(clients *shopping.Clients) []string {
	return []string{
		r.register(Definition{
			Name:        "check_inventory",
			Description: "Check if a product variant is in stock.",
			Parameters: objectSchema(map[string]any{
				"product_id": stringProp("Product UUID"),
				"variant_id": stringProp("Variant UUID (optional)"),
				"quantity":   intProp("Desired quantity"),
			}, "product_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.CheckInventory(ctx, stringArg(args, "product_id"), stringArg(args, "variant_id"), intArg(args, "quantity"))
			},
		}),
		r.register(Definition{
			Name:        "get_product_stock",
			Description: "Get stock levels for all variants of a product.",
			Parameters: objectSchema(map[string]any{
				"product_id": stringProp("Product UUID"),
			}, "product_id"),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return clients.GetProductInventory(ctx, stringArg(args, "product_id"))
			},
		}),
	}
}

// Schema helpers.

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// Argument helpers. JSON numbers decode as float64.

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func concat(groups ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, group := range groups {
		for _, name := range group {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
