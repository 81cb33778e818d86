package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockRecordRepository define el puerto del libro de stock por producto+ubicación.
// Las lecturas Get* devuelven (nil, nil) cuando el registro no existe.
type StockRecordRepository interface {
	Get(ctx context.Context, productID, locationID string) (*entity.StockRecord, error)
	GetByID(ctx context.Context, id string) (*entity.StockRecord, error)
	// GetForUpdate bloquea la fila para update (SELECT FOR UPDATE); usar dentro de una tx.
	GetForUpdate(ctx context.Context, productID, locationID string) (*entity.StockRecord, error)
	Create(ctx context.Context, record *entity.StockRecord) error
	ListByProduct(ctx context.Context, productID string) ([]*entity.StockRecord, error)
	ListByLocation(ctx context.Context, locationID string) ([]*entity.StockRecord, error)
	// ListBelowThreshold devuelve registros con disponible menor al umbral (alerta de quiebre).
	ListBelowThreshold(ctx context.Context, threshold int64) ([]*entity.StockRecord, error)
	ListOutOfStock(ctx context.Context) ([]*entity.StockRecord, error)
	// UpdateCounters persiste contadores y costo con compare-and-swap sobre Version.
	// Devuelve domain.ErrConflict si otra mutación ganó la carrera; el caller reintenta.
	UpdateCounters(ctx context.Context, record *entity.StockRecord) error
}
