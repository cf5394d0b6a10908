package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Product is one provider catalog entry. Variants are populated by the
// detail endpoint; the list endpoint may omit them.
type Product struct {
	ID       ID        `json:"id"`
	Name     string    `json:"name"`
	Variants []Variant `json:"variants"`
}

// Variant is one concrete (product, color, size) SKU in the provider catalog.
type Variant struct {
	ID          ID      `json:"id"`
	SKU         string  `json:"sku"`
	Price       float64 `json:"price"`
	IsAvailable bool    `json:"is_available"`
	Color       string  `json:"color"`
	Size        string  `json:"size"`
}

type productListResponse struct {
	Products []Product `json:"products"`
}

type productDetailResponse struct {
	Product Product `json:"product"`
}

// ListProducts fetches the provider catalog listing.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var resp productListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/products", nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

// GetProduct fetches a single catalog entry including its variants.
func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	if id == "" {
		return Product{}, NewError(KindCatalog, 0, "product id is required")
	}

	var resp productDetailResponse
	path := fmt.Sprintf("/products/%s", url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, true, &resp); err != nil {
		return Product{}, err
	}
	return resp.Product, nil
}
