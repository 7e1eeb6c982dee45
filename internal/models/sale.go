package models

import (
	"encoding/json"
	"time"
)

// LineItem is a frozen snapshot of one cart line at the moment of sale.
// Prices are captured here so the sale total never depends on later
// catalog changes.
type LineItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name,omitempty"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}

// SaleRecord is a committed sale produced by a terminal. It is immutable
// after creation except for the Synced flag, which flips to true exactly
// once when the remote store acknowledges the record.
type SaleRecord struct {
	ID         string     `json:"id"`
	TerminalID string     `json:"terminal_id"`
	Items      []LineItem `json:"items"`
	Total      float64    `json:"total"`
	CreatedAt  time.Time  `json:"created_at"`
	Synced     bool       `json:"synced"`
}

// Marshal serializes the record for storage and transport.
func (s SaleRecord) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSale decodes a stored or received sale payload.
func UnmarshalSale(b []byte) (SaleRecord, error) {
	var s SaleRecord
	err := json.Unmarshal(b, &s)
	return s, err
}
