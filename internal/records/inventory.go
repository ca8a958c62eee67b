package records

import (
	"context"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// SeedInventory is written when the inventory collection does not exist yet
var SeedInventory = []types.InventoryItem{
	{ID: "1", Name: "Paracetamol 500mg", Quantity: 150, Category: "Analgesic", MinThreshold: 50},
	{ID: "2", Name: "Amoxicillin 250mg", Quantity: 12, Category: "Antibiotic", MinThreshold: 30},
	{ID: "3", Name: "Metformin 500mg", Quantity: 45, Category: "Anti-diabetic", MinThreshold: 50},
	{ID: "4", Name: "Atorvastatin 10mg", Quantity: 80, Category: "Lipid-lowering", MinThreshold: 20},
	{ID: "5", Name: "Ibuprofen 200mg", Quantity: 0, Category: "NSAID", MinThreshold: 40},
}

// WithSeedInventory replaces the seed stock; nil disables seeding
func WithSeedInventory(items []types.InventoryItem) Option {
	return func(s *Store) { s.seedStock = items }
}

// inventory loads the stock registry, seeding it on first access. Caller holds s.mu.
func (s *Store) inventory(ctx context.Context) ([]types.InventoryItem, error) {
	items, exists, err := load[types.InventoryItem](ctx, s, InventoryKey)
	if err != nil {
		return nil, err
	}
	if !exists && s.seedStock != nil {
		items = append([]types.InventoryItem(nil), s.seedStock...)
		if err := save(ctx, s, InventoryKey, items); err != nil {
			return nil, err
		}
		s.logger.WithField("count", len(items)).Info("Seeded stock registry")
	}
	return items, nil
}

// ListInventory returns the stock registry in insertion order
func (s *Store) ListInventory(ctx context.Context) ([]types.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.inventory(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []types.InventoryItem{}
	}
	return items, nil
}

// LowStock returns the items at or below their threshold
func (s *Store) LowStock(ctx context.Context) ([]types.InventoryItem, error) {
	items, err := s.ListInventory(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]types.InventoryItem, 0, len(items))
	for _, item := range items {
		if item.Low() {
			low = append(low, item)
		}
	}
	return low, nil
}

// AdjustStock adds delta to the item's quantity, flooring it at zero.
// An unknown id returns nil without error.
func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (*types.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.inventory(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID != id {
			continue
		}
		before := items[i].Quantity
		items[i].Quantity += delta
		if items[i].Quantity < 0 {
			items[i].Quantity = 0
		}
		if err := save(ctx, s, InventoryKey, items); err != nil {
			return nil, err
		}

		s.audit.Audit(id, "adjust_stock", "inventory", true, map[string]interface{}{
			"from":  before,
			"to":    items[i].Quantity,
			"delta": delta,
		})
		item := items[i]
		return &item, nil
	}
	return nil, nil
}
