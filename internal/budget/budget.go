// Package budget serves the public works budget lines shown on the
// transparency page.
package budget

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Item is one budget line as stored in the seed file.
type Item struct {
	ID         string          `json:"id"`
	Department string          `json:"department"`
	Contractor string          `json:"contractor"`
	BudgetLine string          `json:"budgetLine"`
	WardID     *int            `json:"wardId,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}

// Query filters budget lines. Empty fields match everything.
type Query struct {
	Department string
	Text       string
}

// Result holds the matching lines and the sum of their amounts.
type Result struct {
	Items []Item
	Total decimal.Decimal
}

// Catalog reads budget lines from a JSON file on every query.
type Catalog struct {
	path string
	log  *slog.Logger
}

// NewCatalog returns a Catalog backed by the file at path.
func NewCatalog(path string, log *slog.Logger) *Catalog {
	return &Catalog{path: path, log: log.With("component", "budget_catalog")}
}

// Load returns every budget line in the file.
func (c *Catalog) Load() ([]Item, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read budgets: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to parse budgets: %w", err)
	}
	return items, nil
}

// Find returns the lines matching q. Department matches exactly; Text is a
// case-insensitive substring of the budget line or contractor. A missing or
// unreadable file yields an empty result.
func (c *Catalog) Find(q Query) Result {
	res := Result{Items: []Item{}, Total: decimal.Zero}

	items, err := c.Load()
	if err != nil {
		c.log.Warn("Budget data unavailable", "path", c.path, "error", err)
		return res
	}

	text := strings.ToLower(strings.TrimSpace(q.Text))
	for _, it := range items {
		if q.Department != "" && it.Department != q.Department {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(it.BudgetLine), text) &&
			!strings.Contains(strings.ToLower(it.Contractor), text) {
			continue
		}
		res.Items = append(res.Items, it)
		res.Total = res.Total.Add(it.Amount)
	}
	return res
}
