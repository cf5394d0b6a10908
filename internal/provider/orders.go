package provider

import (
	"context"
	"net/http"
	"strings"
)

// OrderPayload is the wire object posted to the provider's order-create
// endpoint. COD is always false; the storefront collects payment upfront.
type OrderPayload struct {
	ReferenceNumber string          `json:"reference_number"`
	RetailPrice     int64           `json:"retail_price"`
	Customer        CustomerPayload `json:"customer"`
	COD             bool            `json:"cod"`
	OrderProducts   []OrderProduct  `json:"order_products"`
}

// CustomerPayload is the shipping contact block of an order payload.
type CustomerPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Number  string `json:"number,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

// OrderProduct is one provider-order line entry. The populated fields
// depend on how the line item resolved: design-bearing entries carry
// product, design, and variant; plain entries carry product and variant;
// last-resort entries carry the variant alone.
type OrderProduct struct {
	ProductID string         `json:"product_id,omitempty"`
	VariantID string         `json:"variant_id,omitempty"`
	Quantity  int            `json:"quantity"`
	IsPlain   bool           `json:"is_plain"`
	Design    *DesignPayload `json:"design,omitempty"`
}

// DesignPayload carries the per-side uploaded asset references.
type DesignPayload struct {
	Front *AssetPayload `json:"front,omitempty"`
	Back  *AssetPayload `json:"back,omitempty"`
}

// AssetPayload references an uploaded design with its placement rectangle.
type AssetPayload struct {
	ID         string           `json:"id"`
	Dimensions DimensionPayload `json:"dimensions"`
}

// DimensionPayload is the placement rectangle in provider canvas units.
type DimensionPayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Top    int `json:"top"`
	Left   int `json:"left"`
}

// OrderConfirmation is the provider's acknowledgement of a created order.
type OrderConfirmation struct {
	ID     string
	Status string
}

type orderCreateResponse struct {
	ID     ID     `json:"id"`
	Status string `json:"status"`
	Order  struct {
		ID     ID     `json:"id"`
		Status string `json:"status"`
	} `json:"order"`
}

// CreateOrder submits the assembled payload. Failures come back classified:
// 401 auth, 400/422 validation with field paths verbatim, 404 catalog,
// anything else unknown with the raw message.
func (c *Client) CreateOrder(ctx context.Context, payload OrderPayload) (OrderConfirmation, error) {
	var resp orderCreateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/orders", payload, true, &resp); err != nil {
		return OrderConfirmation{}, err
	}

	id := strings.TrimSpace(string(resp.ID))
	status := resp.Status
	if id == "" {
		id = strings.TrimSpace(string(resp.Order.ID))
		status = resp.Order.Status
	}
	if id == "" {
		return OrderConfirmation{}, NewError(KindUnknown, 0, "order endpoint returned no order id")
	}
	return OrderConfirmation{ID: id, Status: status}, nil
}
