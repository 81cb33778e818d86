package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
)

// maxCASRetries acota los reintentos cuando una actualización condicional
// pierde la carrera (domain.ErrConflict).
const maxCASRetries = 3

// UseCase es el motor de stock: ciclo reservar/confirmar/liberar sobre los
// contadores de cada registro, ajustes, inicialización del libro y el
// primitivo de movimiento usado por compras y traslados.
type UseCase struct {
	stockRepo       repository.StockRecordRepository
	reservationRepo repository.ReservationRepository
	productRepo     repository.ProductRepository
	locationRepo    repository.LocationRepository
	txRunner        TxRunner
	reservationTTL  time.Duration
}

// NewUseCase construye el caso de uso.
func NewUseCase(
	stockRepo repository.StockRecordRepository,
	reservationRepo repository.ReservationRepository,
	productRepo repository.ProductRepository,
	locationRepo repository.LocationRepository,
	txRunner TxRunner,
	reservationTTL time.Duration,
) *UseCase {
	return &UseCase{
		stockRepo:       stockRepo,
		reservationRepo: reservationRepo,
		productRepo:     productRepo,
		locationRepo:    locationRepo,
		txRunner:        txRunner,
		reservationTTL:  reservationTTL,
	}
}

// LocationAvailability disponible de un producto en una ubicación.
type LocationAvailability struct {
	LocationID   string
	LocationName string
	Available    int64
}

// QueryAvailable devuelve el disponible del producto por ubicación.
func (uc *UseCase) QueryAvailable(ctx context.Context, productID string) ([]LocationAvailability, error) {
	records, err := uc.stockRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	out := make([]LocationAvailability, 0, len(records))
	for _, r := range records {
		out = append(out, LocationAvailability{
			LocationID:   r.LocationID,
			LocationName: r.LocationName,
			Available:    r.Available,
		})
	}
	return out, nil
}

// Allocate calcula cómo repartir la cantidad solicitada entre ubicaciones con
// disponible, priorizando la preferida. Es consultivo: no muta stock; el
// caller debe reservar cada entrada del resultado.
func (uc *UseCase) Allocate(ctx context.Context, productID string, quantity int64, preferredLocationID string) (entity.AllocationResult, error) {
	if productID == "" || quantity <= 0 {
		return entity.AllocationResult{}, domain.ErrInvalidInput
	}
	records, err := uc.stockRepo.ListByProduct(ctx, productID)
	if err != nil {
		return entity.AllocationResult{}, err
	}
	return inventory.Allocate(records, quantity, preferredLocationID), nil
}

// FulfillmentLine renglón a validar: producto y cantidad solicitada.
type FulfillmentLine struct {
	ProductID string
	Quantity  int64
}

// CanFulfill verifica que el disponible agregado de cada producto cubra la
// cantidad pedida. Lectura sin bloqueo: es solo una pista; la reserva es el
// único punto real de control bajo concurrencia.
func (uc *UseCase) CanFulfill(ctx context.Context, lines []FulfillmentLine) (bool, error) {
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity <= 0 {
			return false, domain.ErrInvalidInput
		}
		records, err := uc.stockRepo.ListByProduct(ctx, line.ProductID)
		if err != nil {
			return false, err
		}
		var total int64
		for _, r := range records {
			total += r.Available
		}
		if total < line.Quantity {
			return false, nil
		}
	}
	return true, nil
}

// Reserve mueve cantidad de disponible a reservado y registra la intención de
// reserva con TTL. Contadores e intención se escriben en la misma transacción:
// si el insert de la intención falla, el movimiento de contadores se revierte
// (nunca queda cantidad reservada sin intención que la libere). Falla con
// StockShortageError si el disponible no alcanza; reintenta ante ErrConflict.
func (uc *UseCase) Reserve(ctx context.Context, productID, locationID string, qty int64, reference string) (*entity.Reservation, error) {
	if productID == "" || locationID == "" || qty <= 0 {
		return nil, domain.ErrInvalidInput
	}
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var reservation *entity.Reservation
		err := uc.txRunner.Run(ctx, func(
			stockRepo repository.StockRecordRepository,
			reservationRepo repository.ReservationRepository,
		) error {
			record, err := stockRepo.Get(ctx, productID, locationID)
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("reservar %s en %s: %w", productID, locationID, domain.ErrNotFound)
			}
			if record.Available < qty {
				return &domain.StockShortageError{
					ProductID:  productID,
					LocationID: locationID,
					Required:   qty,
					Available:  record.Available,
				}
			}
			now := time.Now()
			record.Available -= qty
			record.Reserved += qty
			record.UpdatedAt = now
			if err := stockRepo.UpdateCounters(ctx, record); err != nil {
				return err
			}
			reservation = &entity.Reservation{
				ID:         uuid.New().String(),
				ProductID:  productID,
				LocationID: locationID,
				Quantity:   qty,
				Reference:  reference,
				Status:     entity.ReservationStatusActive,
				CreatedAt:  now,
				ExpiresAt:  now.Add(uc.reservationTTL),
			}
			return reservationRepo.Create(ctx, reservation)
		})
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				metrics.ReservationConflicts.Inc()
				continue
			}
			return nil, err
		}
		return reservation, nil
	}
	return nil, fmt.Errorf("reservar %s en %s: %w", productID, locationID, domain.ErrConflict)
}

// Confirm consume definitivamente cantidad reservada (venta completada):
// reservado -= qty, disponible intacto. Estado terminal por unidad de stock.
func (uc *UseCase) Confirm(ctx context.Context, productID, locationID string, qty int64) error {
	return uc.mutateReserved(ctx, productID, locationID, qty, func(record *entity.StockRecord) {
		record.Reserved -= qty
	})
}

// Release deshace una reserva: reservado -= qty, disponible += qty.
func (uc *UseCase) Release(ctx context.Context, productID, locationID string, qty int64) error {
	return uc.mutateReserved(ctx, productID, locationID, qty, func(record *entity.StockRecord) {
		record.Reserved -= qty
		record.Available += qty
	})
}

// mutateReserved aplica una transición sobre el contador reservado con
// verificación reservado >= qty y reintento ante ErrConflict.
func (uc *UseCase) mutateReserved(ctx context.Context, productID, locationID string, qty int64, apply func(*entity.StockRecord)) error {
	if productID == "" || locationID == "" || qty <= 0 {
		return domain.ErrInvalidInput
	}
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		record, err := uc.stockRepo.Get(ctx, productID, locationID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("stock de %s en %s: %w", productID, locationID, domain.ErrNotFound)
		}
		if record.Reserved < qty {
			return fmt.Errorf("reservado %d menor que %d para %s en %s: %w",
				record.Reserved, qty, productID, locationID, domain.ErrInsufficientStock)
		}
		apply(record)
		record.UpdatedAt = time.Now()
		if err := uc.stockRepo.UpdateCounters(ctx, record); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				metrics.ReservationConflicts.Inc()
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("stock de %s en %s: %w", productID, locationID, domain.ErrConflict)
}

// ConfirmReservation confirma una intención de reserva activa y su contador.
func (uc *UseCase) ConfirmReservation(ctx context.Context, reservationID string) error {
	return uc.closeReservation(ctx, reservationID, entity.ReservationStatusConfirmed)
}

// ReleaseReservation libera una intención de reserva activa (compensación).
func (uc *UseCase) ReleaseReservation(ctx context.Context, reservationID string) error {
	return uc.closeReservation(ctx, reservationID, entity.ReservationStatusReleased)
}

// closeReservation cierra una reserva activa en una única transacción:
// primero reclama la intención con la transición condicional active -> status
// (dos workers cerrando la misma reserva: solo uno gana, el otro recibe
// ErrConflict sin tocar contadores) y solo después, con la fila de la reserva
// ya bloqueada, mueve los contadores del registro de stock.
func (uc *UseCase) closeReservation(ctx context.Context, reservationID, status string) error {
	if reservationID == "" {
		return domain.ErrInvalidInput
	}
	return uc.txRunner.Run(ctx, func(
		stockRepo repository.StockRecordRepository,
		reservationRepo repository.ReservationRepository,
	) error {
		if err := reservationRepo.UpdateStatus(ctx, reservationID, entity.ReservationStatusActive, status); err != nil {
			if !errors.Is(err, domain.ErrConflict) {
				return err
			}
			// Perdimos el reclamo: distinguir inexistente de ya cerrada.
			reservation, getErr := reservationRepo.GetByID(ctx, reservationID)
			if getErr != nil {
				return getErr
			}
			if reservation == nil {
				return fmt.Errorf("reserva %s: %w", reservationID, domain.ErrNotFound)
			}
			return fmt.Errorf("reserva %s en estado %s: %w", reservationID, reservation.Status, domain.ErrConflict)
		}
		reservation, err := reservationRepo.GetByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return fmt.Errorf("reserva %s: %w", reservationID, domain.ErrNotFound)
		}
		record, err := stockRepo.GetForUpdate(ctx, reservation.ProductID, reservation.LocationID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("stock de %s en %s: %w", reservation.ProductID, reservation.LocationID, domain.ErrNotFound)
		}
		if record.Reserved < reservation.Quantity {
			return fmt.Errorf("reservado %d menor que %d para %s en %s: %w",
				record.Reserved, reservation.Quantity, reservation.ProductID, reservation.LocationID,
				domain.ErrInsufficientStock)
		}
		record.Reserved -= reservation.Quantity
		if status != entity.ReservationStatusConfirmed {
			record.Available += reservation.Quantity
		}
		record.UpdatedAt = time.Now()
		return stockRepo.UpdateCounters(ctx, record)
	})
}

// Adjust suma delta al disponible de un registro (por ID). Falla con
// StockShortageError si el resultado quedaría negativo.
func (uc *UseCase) Adjust(ctx context.Context, recordID string, delta int64) error {
	if recordID == "" || delta == 0 {
		return domain.ErrInvalidInput
	}
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		record, err := uc.stockRepo.GetByID(ctx, recordID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("registro de stock %s: %w", recordID, domain.ErrNotFound)
		}
		if record.Available+delta < 0 {
			return &domain.StockShortageError{
				ProductID:  record.ProductID,
				LocationID: record.LocationID,
				Required:   -delta,
				Available:  record.Available,
			}
		}
		record.Available += delta
		record.UpdatedAt = time.Now()
		if err := uc.stockRepo.UpdateCounters(ctx, record); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				metrics.ReservationConflicts.Inc()
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("registro de stock %s: %w", recordID, domain.ErrConflict)
}

// InitializeStock crea el registro en cero para producto+ubicación si no
// existe (idempotente), desnormalizando nombre y SKU para listados.
func (uc *UseCase) InitializeStock(ctx context.Context, productID, locationID string) (*entity.StockRecord, error) {
	if productID == "" || locationID == "" {
		return nil, domain.ErrInvalidInput
	}
	existing, err := uc.stockRepo.Get(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("producto %s: %w", productID, domain.ErrNotFound)
	}
	location, err := uc.locationRepo.GetByID(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if location == nil {
		return nil, fmt.Errorf("ubicación %s: %w", locationID, domain.ErrNotFound)
	}
	record := &entity.StockRecord{
		ID:           uuid.New().String(),
		ProductID:    product.ID,
		ProductName:  product.Name,
		ProductSKU:   product.SKU,
		LocationID:   location.ID,
		LocationName: location.Name,
		AverageCost:  decimal.Zero,
		UpdatedAt:    time.Now(),
	}
	if err := uc.stockRepo.Create(ctx, record); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// Otro worker lo creó primero; el registro existente vale igual.
			return uc.stockRepo.Get(ctx, productID, locationID)
		}
		return nil, err
	}
	return record, nil
}

// InitializeProduct crea registros en cero del producto en todas las
// ubicaciones, para que el libro cubra el dominio completo.
func (uc *UseCase) InitializeProduct(ctx context.Context, productID string) ([]*entity.StockRecord, error) {
	locations, err := uc.locationRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]*entity.StockRecord, 0, len(locations))
	for _, loc := range locations {
		record, err := uc.InitializeStock(ctx, productID, loc.ID)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// MoveOrIncrease es el primitivo de movimiento usado por compras y traslados:
// descuenta del origen (si se indica) y suma en destino recalculando el costo
// promedio ponderado. Corre en una transacción con bloqueo de filas en orden
// determinista de ubicación. Si el origen no alcanza, falla con
// StockShortageError y revierte todo (nada de omisión silenciosa).
func (uc *UseCase) MoveOrIncrease(ctx context.Context, productID, fromLocationID, toLocationID string, qty int64, unitCost decimal.Decimal) error {
	if productID == "" || toLocationID == "" || qty <= 0 || unitCost.IsNegative() {
		return domain.ErrInvalidInput
	}
	if fromLocationID == toLocationID {
		return domain.ErrInvalidInput
	}
	return uc.txRunner.Run(ctx, func(stockRepo repository.StockRecordRepository, _ repository.ReservationRepository) error {
		return moveOrIncrease(ctx, stockRepo, uc.productRepo, uc.locationRepo, productID, fromLocationID, toLocationID, qty, unitCost)
	})
}

// moveOrIncrease aplica el movimiento usando los repositorios atados a la tx
// del caller. Lo comparte el orquestador de traslados para mover cada renglón
// dentro de su propia transacción.
func moveOrIncrease(
	ctx context.Context,
	stockRepo repository.StockRecordRepository,
	productRepo repository.ProductRepository,
	locationRepo repository.LocationRepository,
	productID, fromLocationID, toLocationID string,
	qty int64,
	unitCost decimal.Decimal,
) error {
	// Bloquea filas en orden de ubicación para evitar deadlocks entre workers.
	lockOrder := []string{toLocationID}
	if fromLocationID != "" {
		lockOrder = append(lockOrder, fromLocationID)
		sort.Strings(lockOrder)
	}
	locked := make(map[string]*entity.StockRecord, len(lockOrder))
	for _, locationID := range lockOrder {
		record, err := stockRepo.GetForUpdate(ctx, productID, locationID)
		if err != nil {
			return err
		}
		locked[locationID] = record
	}

	now := time.Now()
	if fromLocationID != "" {
		origin := locked[fromLocationID]
		if origin == nil {
			return fmt.Errorf("stock de %s en %s: %w", productID, fromLocationID, domain.ErrNotFound)
		}
		if origin.Available < qty {
			return &domain.StockShortageError{
				ProductID:  productID,
				LocationID: fromLocationID,
				Required:   qty,
				Available:  origin.Available,
			}
		}
		origin.Available -= qty
		origin.UpdatedAt = now
		if err := stockRepo.UpdateCounters(ctx, origin); err != nil {
			return err
		}
	}

	dest := locked[toLocationID]
	if dest == nil {
		product, err := productRepo.GetByID(ctx, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("producto %s: %w", productID, domain.ErrNotFound)
		}
		location, err := locationRepo.GetByID(ctx, toLocationID)
		if err != nil {
			return err
		}
		if location == nil {
			return fmt.Errorf("ubicación %s: %w", toLocationID, domain.ErrNotFound)
		}
		dest = &entity.StockRecord{
			ID:           uuid.New().String(),
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductSKU:   product.SKU,
			LocationID:   location.ID,
			LocationName: location.Name,
			Available:    qty,
			AverageCost:  unitCost,
			UpdatedAt:    now,
		}
		return stockRepo.Create(ctx, dest)
	}

	// Costo promedio ponderado sobre el disponible previo del destino.
	dest.AverageCost = inventory.CostCalculator(dest.Available, dest.AverageCost, qty, unitCost)
	dest.Available += qty
	dest.UpdatedAt = now
	return stockRepo.UpdateCounters(ctx, dest)
}

// ListBelowThreshold registros con disponible bajo el umbral (alerta de reorden).
func (uc *UseCase) ListBelowThreshold(ctx context.Context, threshold int64) ([]*entity.StockRecord, error) {
	if threshold <= 0 {
		return nil, domain.ErrInvalidInput
	}
	return uc.stockRepo.ListBelowThreshold(ctx, threshold)
}

// ListOutOfStock registros sin disponible.
func (uc *UseCase) ListOutOfStock(ctx context.Context) ([]*entity.StockRecord, error) {
	return uc.stockRepo.ListOutOfStock(ctx)
}

// ListByLocation stock completo de una ubicación.
func (uc *UseCase) ListByLocation(ctx context.Context, locationID string) ([]*entity.StockRecord, error) {
	return uc.stockRepo.ListByLocation(ctx, locationID)
}
