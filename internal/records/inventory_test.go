package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

func TestListInventory_SeedsOnFirstAccess(t *testing.T) {
	store, kv := setupStore(t)
	ctx := context.Background()

	items, err := store.ListInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedInventory, items)

	raw, err := kv.Get(ctx, InventoryKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"minThreshold":50`)
}

func TestListInventory_SeedingDisabled(t *testing.T) {
	store, _ := setupStore(t, WithSeedInventory(nil))

	items, err := store.ListInventory(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestAdjustStock(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		delta int
		want  int
	}{
		{name: "restock", id: "2", delta: 10, want: 22},
		{name: "dispense", id: "1", delta: -1, want: 149},
		{name: "floored at zero", id: "3", delta: -100, want: 0},
		{name: "empty stays empty", id: "5", delta: -1, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := setupStore(t)
			ctx := context.Background()

			item, err := store.AdjustStock(ctx, tt.id, tt.delta)
			require.NoError(t, err)
			require.NotNil(t, item)
			assert.Equal(t, tt.want, item.Quantity)

			items, err := store.ListInventory(ctx)
			require.NoError(t, err)
			for _, it := range items {
				if it.ID == tt.id {
					assert.Equal(t, tt.want, it.Quantity)
				}
			}
		})
	}
}

func TestAdjustStock_UnknownIDIsNoOp(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	item, err := store.AdjustStock(ctx, "99", 5)
	require.NoError(t, err)
	assert.Nil(t, item)

	items, err := store.ListInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedInventory, items)
}

func TestLowStock(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	low, err := store.LowStock(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(low))
	for _, item := range low {
		names = append(names, item.Name)
	}
	assert.Equal(t, []string{"Amoxicillin 250mg", "Metformin 500mg", "Ibuprofen 200mg"}, names)

	// a quantity equal to the threshold still counts as low
	_, err = store.AdjustStock(ctx, "1", -100)
	require.NoError(t, err)
	low, err = store.LowStock(ctx)
	require.NoError(t, err)
	assert.Len(t, low, 4)

	_, err = store.AdjustStock(ctx, "2", 100)
	require.NoError(t, err)
	low, err = store.LowStock(ctx)
	require.NoError(t, err)
	assert.Len(t, low, 3)
}

func TestInventoryItem_Level(t *testing.T) {
	assert.Equal(t, types.StockOK, SeedInventory[0].Level())
	assert.Equal(t, types.StockLow, SeedInventory[1].Level())
	assert.Equal(t, types.StockEmpty, SeedInventory[4].Level())
	assert.True(t, types.InventoryItem{Quantity: 40, MinThreshold: 40}.Low())
}
