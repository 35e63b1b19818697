// Package ledger computes the line items and totals shown on the result screen.
package ledger

import "log/slog"

// LineItem is one row of the result screen
type LineItem struct {
	Name      string `json:"name" yaml:"name"`
	Icon      string `json:"icon" yaml:"icon"`
	Quantity  int    `json:"quantity" yaml:"quantity"`
	UnitPrice int    `json:"unit_price" yaml:"unit_price"` // yen
}

// Subtotal returns Quantity × UnitPrice
func (i LineItem) Subtotal() int {
	return i.Quantity * i.UnitPrice
}

// DefaultCatalog is the sample content shown until the backend returns real items.
// It is a fresh copy on every call.
func DefaultCatalog() []LineItem {
	return []LineItem{
		{Name: "商品A", Icon: "●●●●●", Quantity: 1, UnitPrice: 1500},
		{Name: "商品B", Icon: "■■■■■", Quantity: 1, UnitPrice: 2000},
		{Name: "商品C", Icon: "△△△△△", Quantity: 1, UnitPrice: 1200},
		{Name: "商品D", Icon: "★★★★★", Quantity: 1, UnitPrice: 1800},
	}
}

// Total sums the subtotals of items
func Total(items []LineItem) int {
	total := 0
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}

// CalculateTotal sums prices[name] × quantity over items.
// Items without a price count as 0 and are logged.
func CalculateTotal(prices, items map[string]int) int {
	total := 0
	for name, quantity := range items {
		price, ok := prices[name]
		if !ok {
			slog.Warn("No price for item, counting it as 0", "item", name, "quantity", quantity)
			continue
		}
		total += price * quantity
	}
	return total
}
