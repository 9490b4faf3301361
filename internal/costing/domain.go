package costing

import "time"

// InternalProduct is a tenant catalog entry. SizeDependent marks products
// whose cost varies with the size of the parent item they are served in.
type InternalProduct struct {
	ID            int64
	TenantID      int64
	Name          string
	UnitCost      float64
	Category      string
	Size          string
	SizeDependent bool
	IsComposite   bool
	UpdatedAt     time.Time
}

// CostCommission is a tenant-scoped fee rule. An empty Provider applies to
// every provider.
type CostCommission struct {
	ID       int64
	TenantID int64
	Provider string
	Percent  float64
	Fixed    float64
}

// Parent is the context a component's cost is computed in: the parent
// item's own product (when its main mapping is known) and its free-text
// name as a fallback for size detection.
type Parent struct {
	Product  *InternalProduct
	ItemName string
}

// MappingLine is the cost-relevant projection of one item mapping row.
// UnitCost carries the snapshot taken when the mapping was created.
type MappingLine struct {
	Type         string // "main" or "addon"
	Quantity     float64
	UnitCost     float64
	AutoFraction float64
}

// CostItem is one order line with its mapping rows.
type CostItem struct {
	Qty      float64
	Mappings []MappingLine
}

// CostOrder is the projection of an order the cost calculation consumes.
type CostOrder struct {
	TenantID int64
	Provider string
	Total    float64
	Items    []CostItem
}

// OrderCosts is the derived financial triple persisted per order.
type OrderCosts struct {
	TotalCosts       float64
	TotalCommissions float64
	NetRevenue       float64
}
