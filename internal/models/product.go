package models

// Product is an inventory record held in the local store. Products are
// terminal-local catalog data and never enter the sync queue.
type Product struct {
	ID    string  `json:"id"`
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}
