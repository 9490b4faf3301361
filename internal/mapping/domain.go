package mapping

import (
	"encoding/json"
	"strings"
	"time"
)

// Mapping row types and resolver actions.
const (
	MappingMain  = "main"
	MappingAddon = "addon"

	ActionLink   = "link"
	ActionDetach = "detach"

	ItemTypeFlavor = "flavor"
)

// addonKeyPrefix namespaces add-on catalog keys: add-ons have no provider
// SKU, so their mapping key is derived from the add-on name.
const addonKeyPrefix = "addon_"

// AddonKey builds the catalog key for an add-on name.
func AddonKey(name string) string {
	return addonKeyPrefix + name
}

// IsAddonKey reports whether an external item id addresses an add-on.
func IsAddonKey(externalItemID string) bool {
	return strings.HasPrefix(externalItemID, addonKeyPrefix)
}

// AddonName recovers the add-on name from its catalog key.
func AddonName(externalItemID string) string {
	return strings.TrimPrefix(externalItemID, addonKeyPrefix)
}

// ProductMapping links one external catalog item to an internal product.
// InternalProductID is nil for items that were classified but not mapped.
// LinkingSince is a non-nil advisory marker while a resolver run is pending.
type ProductMapping struct {
	ID                int64
	TenantID          int64
	ExternalItemID    string
	InternalProductID *int64
	ItemType          string
	LinkingSince      *time.Time
	UpdatedAt         time.Time
}

// OrderItemMapping is one resolved cost line under an order item. UnitCost
// is a snapshot taken at resolution time so recalculation does not depend
// on later catalog edits. AutoFraction is non-zero only for flavor shares.
// ExternalReference carries the external SKU on main lines and the add-on's
// positional index within the item payload on addon lines.
type OrderItemMapping struct {
	ID                int64
	TenantID          int64
	OrderID           int64
	OrderItemID       int64
	MappingType       string
	ExternalReference string
	ExternalName      string
	InternalProductID int64
	Quantity          float64
	UnitCost          float64
	AutoFraction      float64
}

// PaymentMethodMapping links a provider payment method id to an internal
// method. RecalculatingSince is the advisory marker for a pending
// payment-method recalculation.
type PaymentMethodMapping struct {
	ID                 int64
	TenantID           int64
	ExternalMethodID   string
	Method             string
	RecalculatingSince *time.Time
}

// AddOn is one add-on entry of a stored item payload. Rows ingested by
// earlier system versions carry the quantity under the legacy "qty" key.
type AddOn struct {
	Name     string
	Quantity float64
}

func (a *AddOn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name      string   `json:"name"`
		Quantity  *float64 `json:"quantity"`
		LegacyQty *float64 `json:"qty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Name = raw.Name
	switch {
	case raw.Quantity != nil:
		a.Quantity = *raw.Quantity
	case raw.LegacyQty != nil:
		a.Quantity = *raw.LegacyQty
	default:
		a.Quantity = 1
	}
	return nil
}

// ItemOccurrence is one stored order item a mapping operation touches.
// MainProductID is the item's current main-mapped product, when any.
type ItemOccurrence struct {
	OrderID       int64
	OrderCode     string
	ItemID        int64
	ItemName      string
	Qty           float64
	AddOns        []AddOn
	MainProductID *int64
}
