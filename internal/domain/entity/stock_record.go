package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockRecord representa el stock de un producto en una ubicación (fila única
// por producto+ubicación). Nombre y SKU se desnormalizan para listados.
// Version habilita compare-and-swap en las mutaciones de contadores.
type StockRecord struct {
	ID           string
	ProductID    string
	ProductName  string
	ProductSKU   string
	LocationID   string
	LocationName string
	Available    int64
	Reserved     int64
	AverageCost  decimal.Decimal
	Version      int64
	UpdatedAt    time.Time
}

// Total devuelve disponible + reservado. Solo para reporte; nunca se muta directo.
func (s *StockRecord) Total() int64 {
	return s.Available + s.Reserved
}
