package ledger

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// PriceList is the YAML document accepted by LoadPriceList:
//
//	prices:
//	  ANPAN: 200
//	items:
//	  ANPAN: 2
//	icons:
//	  ANPAN: "●"
type PriceList struct {
	Prices map[string]int    `yaml:"prices"`
	Items  map[string]int    `yaml:"items"`
	Icons  map[string]string `yaml:"icons"`
}

// LineItems turns the price list into result-screen rows sorted by name.
// Zero-quantity items are left out and items without a price get a unit price of 0.
func (p PriceList) LineItems() ([]LineItem, error) {
	names := make([]string, 0, len(p.Items))
	for name := range p.Items {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]LineItem, 0, len(names))
	for _, name := range names {
		quantity := p.Items[name]
		if quantity < 0 {
			return nil, fmt.Errorf("item %q: negative quantity %d", name, quantity)
		}
		if quantity == 0 {
			continue
		}
		price := p.Prices[name]
		if price < 0 {
			return nil, fmt.Errorf("item %q: negative price %d", name, price)
		}
		items = append(items, LineItem{
			Name:      name,
			Icon:      p.Icons[name],
			Quantity:  quantity,
			UnitPrice: price,
		})
	}
	return items, nil
}

// LoadPriceList reads a YAML price list and returns its line items.
// Items without a price are reported by CalculateTotal while the total is logged.
func LoadPriceList(path string) ([]LineItem, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading price list: %w", err)
	}

	var p PriceList
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parsing price list %s: %w", path, err)
	}

	items, err := p.LineItems()
	if err != nil {
		return nil, fmt.Errorf("price list %s: %w", path, err)
	}

	slog.Info("Price list loaded", "path", path, "items", len(items), "total", CalculateTotal(p.Prices, p.Items))
	return items, nil
}
