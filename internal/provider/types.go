package provider

import (
	"encoding/json"
	"time"
)

// StoreRef identifies the (tenant, store) pair a request is made on behalf of.
type StoreRef struct {
	TenantID   int64
	StoreID    int64
	ExternalID string
}

// Event is the thin envelope returned by the polling endpoint.
type Event struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"orderId"`
	Code       string    `json:"code"`
	FullCode   string    `json:"fullCode"`
	MerchantID string    `json:"merchantId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// OrderTotals carries the monetary totals of an order.
type OrderTotals struct {
	Price       float64 `json:"price"`
	Discounts   float64 `json:"discounts"`
	DeliveryFee float64 `json:"deliveryFee"`
	Tip         float64 `json:"tip"`
}

// ItemOption is an add-on entry attached to an order item. Some provider
// versions ship the amount as "qty" instead of "quantity".
type ItemOption struct {
	Name     string
	Quantity float64
}

// UnmarshalJSON accepts both the current and legacy quantity keys.
func (o *ItemOption) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     string   `json:"name"`
		Quantity *float64 `json:"quantity"`
		Qty      *float64 `json:"qty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Name = raw.Name
	switch {
	case raw.Quantity != nil:
		o.Quantity = *raw.Quantity
	case raw.Qty != nil:
		o.Quantity = *raw.Qty
	default:
		o.Quantity = 1
	}
	return nil
}

// OrderItem is one line of an order detail payload.
type OrderItem struct {
	ExternalCode string       `json:"externalCode"`
	Name         string       `json:"name"`
	Quantity     float64      `json:"quantity"`
	UnitPrice    float64      `json:"unitPrice"`
	Options      []ItemOption `json:"options"`
}

// OrderDetail is the full order payload fetched per event. Raw holds the
// unparsed body for audit and replay.
type OrderDetail struct {
	ID                 string      `json:"id"`
	DisplayID          string      `json:"displayId"`
	FullCode           string      `json:"fullCode"`
	Code               string      `json:"code"`
	Origin             string      `json:"origin"`
	CreatedAt          time.Time   `json:"createdAt"`
	Total              OrderTotals `json:"total"`
	Items              []OrderItem `json:"items"`
	CancellationReason string      `json:"cancellationReason"`

	Raw []byte `json:"-"`
}

// Status resolves the order status from the most complete field available.
func (d *OrderDetail) Status(fallback string) string {
	if d.FullCode != "" {
		return d.FullCode
	}
	if d.Code != "" {
		return d.Code
	}
	return fallback
}

// FinancialEvent is one provider-side settlement record.
type FinancialEvent struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	Description    string  `json:"description"`
	Amount         float64 `json:"amount"`
	CompetenceDate string  `json:"competenceDate"`
	OrderID        string  `json:"orderId"`
}

// FinancialEventsPage is one page of financial events.
type FinancialEventsPage struct {
	FinancialEvents []FinancialEvent `json:"financialEvents"`
	HasNextPage     bool             `json:"hasNextPage"`
}

// Sale is one provider-side sale settlement record.
type Sale struct {
	ID              string  `json:"id"`
	OrderID         string  `json:"orderId"`
	GrossAmount     float64 `json:"grossAmount"`
	NetAmount       float64 `json:"netAmount"`
	SaleDate        string  `json:"saleDate"`
	PaymentMethodID string  `json:"paymentMethodId"`
}

// Merchant is the store display metadata record.
type Merchant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}
