package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ReservationRepository define el puerto para las intenciones de reserva.
type ReservationRepository interface {
	Create(ctx context.Context, reservation *entity.Reservation) error
	GetByID(ctx context.Context, id string) (*entity.Reservation, error)
	// UpdateStatus transiciona from -> to condicionado al estado actual de la
	// fila (reclamo): devuelve ErrConflict si la reserva ya no está en from
	// (otro worker la reclamó primero) o no existe.
	UpdateStatus(ctx context.Context, id, from, to string) error
	// ListExpired devuelve reservas activas cuyo ExpiresAt ya pasó.
	ListExpired(ctx context.Context, now time.Time) ([]*entity.Reservation, error)
	ListByReference(ctx context.Context, reference string) ([]*entity.Reservation, error)
}
