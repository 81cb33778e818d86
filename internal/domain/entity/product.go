package entity

import "time"

// Product catálogo mínimo para resolver nombre y SKU al desnormalizar stock.
type Product struct {
	ID        string
	SKU       string
	Name      string
	CreatedAt time.Time
}
