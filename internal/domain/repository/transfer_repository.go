package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// TransferOrderRepository define el puerto para órdenes de traslado.
type TransferOrderRepository interface {
	Create(ctx context.Context, order *entity.TransferOrder) error
	GetByID(ctx context.Context, id string) (*entity.TransferOrder, error)
	// Update persiste estado, aprobador, fecha de completado y renglones,
	// condicionado a que el estado actual en la fila sea from. Devuelve
	// ErrConflict si otra transición ganó la carrera.
	Update(ctx context.Context, order *entity.TransferOrder, from entity.TransferStatus) error
	ListByStatus(ctx context.Context, status entity.TransferStatus, limit, offset int) ([]*entity.TransferOrder, error)
	// NextNumber genera el consecutivo del día (TRA-YYYYMMDD-NNNN). La unicidad
	// la respalda el constraint sobre number; ante carrera el Create devuelve ErrDuplicate.
	NextNumber(ctx context.Context, day time.Time) (string, error)
}
