package stock

import (
	"context"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// SaleLine renglón de una venta a reservar: producto, cantidad y ubicación
// preferida opcional.
type SaleLine struct {
	ProductID           string
	Quantity            int64
	PreferredLocationID string
}

// ReserveAllocations ejecuta la reserva multi-renglón como saga: por cada
// renglón asigna entre ubicaciones y reserva cada entrada. Si cualquier
// reserva falla (asignación incompleta, faltante por carrera, conflicto
// agotado), libera como compensación todas las reservas ya tomadas de esta
// misma operación antes de devolver el error.
//
// Las reservas quedan activas con TTL bajo la referencia dada; el caller debe
// confirmarlas al cerrar la venta o liberarlas al abortarla.
func (uc *UseCase) ReserveAllocations(ctx context.Context, reference string, lines []SaleLine) ([]*ReservedLine, error) {
	if reference == "" || len(lines) == 0 {
		return nil, domain.ErrInvalidInput
	}
	var reserved []*ReservedLine
	rollback := func() {
		// Compensación best-effort: liberar en orden inverso al reservado.
		for i := len(reserved) - 1; i >= 0; i-- {
			_ = uc.ReleaseReservation(ctx, reserved[i].ReservationID)
		}
	}
	for _, line := range lines {
		result, err := uc.Allocate(ctx, line.ProductID, line.Quantity, line.PreferredLocationID)
		if err != nil {
			rollback()
			return nil, err
		}
		if !result.Success {
			rollback()
			return nil, fmt.Errorf("%s: %w", result.Message, domain.ErrInsufficientStock)
		}
		for _, entry := range result.Entries {
			reservation, err := uc.Reserve(ctx, line.ProductID, entry.LocationID, entry.Quantity, reference)
			if err != nil {
				rollback()
				return nil, err
			}
			reserved = append(reserved, &ReservedLine{
				ReservationID: reservation.ID,
				ProductID:     line.ProductID,
				LocationID:    entry.LocationID,
				Quantity:      entry.Quantity,
			})
		}
	}
	return reserved, nil
}

// ReservedLine reserva tomada para un renglón (una por ubicación asignada).
type ReservedLine struct {
	ReservationID string
	ProductID     string
	LocationID    string
	Quantity      int64
}

// ConfirmAllocations confirma todas las reservas activas de una referencia.
func (uc *UseCase) ConfirmAllocations(ctx context.Context, reference string) error {
	reservations, err := uc.reservationRepo.ListByReference(ctx, reference)
	if err != nil {
		return err
	}
	for _, r := range reservations {
		if r.Status != entity.ReservationStatusActive {
			continue
		}
		if err := uc.ConfirmReservation(ctx, r.ID); err != nil {
			return err
		}
	}
	return nil
}
