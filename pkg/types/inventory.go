package types

// StockLevel classifies an inventory item against its threshold
type StockLevel string

const (
	StockOK    StockLevel = "OK"
	StockLow   StockLevel = "LOW"
	StockEmpty StockLevel = "OUT_OF_STOCK"
)

// InventoryItem is one line of the pharmacy stock registry
type InventoryItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Category     string `json:"category"`
	MinThreshold int    `json:"minThreshold"`
}

// Low reports whether the quantity is at or below the threshold
func (i InventoryItem) Low() bool {
	return i.Quantity <= i.MinThreshold
}

// Level returns OUT_OF_STOCK at zero, LOW at or below the threshold, else OK
func (i InventoryItem) Level() StockLevel {
	switch {
	case i.Quantity == 0:
		return StockEmpty
	case i.Low():
		return StockLow
	default:
		return StockOK
	}
}

// StockAdjustment changes an item's quantity by Delta
type StockAdjustment struct {
	Delta int `json:"delta" validate:"ne=0"`
}
