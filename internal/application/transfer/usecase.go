package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
)

// TxRunner ejecuta una función con repositorios de stock y traslados atados a
// la misma transacción, para que completar una orden sea todo-o-nada.
type TxRunner interface {
	RunTransfer(ctx context.Context, fn func(
		stockRepo repository.StockRecordRepository,
		transferRepo repository.TransferOrderRepository,
	) error) error
}

// UseCase orquesta el ciclo de vida de órdenes de traslado entre ubicaciones:
// Pending -> InProgress (aprobación) -> Completed (ejecución de movimientos),
// con cancelación desde cualquier estado no completado.
type UseCase struct {
	txRunner     TxRunner
	stockRepo    repository.StockRecordRepository
	transferRepo repository.TransferOrderRepository
	locationRepo repository.LocationRepository
	productRepo  repository.ProductRepository
}

// NewUseCase construye el orquestador.
func NewUseCase(
	txRunner TxRunner,
	stockRepo repository.StockRecordRepository,
	transferRepo repository.TransferOrderRepository,
	locationRepo repository.LocationRepository,
	productRepo repository.ProductRepository,
) *UseCase {
	return &UseCase{
		txRunner:     txRunner,
		stockRepo:    stockRepo,
		transferRepo: transferRepo,
		locationRepo: locationRepo,
		productRepo:  productRepo,
	}
}

// LineInput renglón solicitado: producto y cantidad a trasladar.
type LineInput struct {
	ProductID string
	Quantity  int64
}

// CreateInput entrada para crear una orden de traslado.
type CreateInput struct {
	FromLocationID string
	ToLocationID   string
	Lines          []LineInput
}

// Create valida ubicaciones y suficiencia en el origen, genera el consecutivo
// del día y persiste la orden en Pending. La validación de suficiencia es al
// momento de crear; la ejecución vuelve a verificar bajo bloqueo de filas.
func (uc *UseCase) Create(ctx context.Context, input CreateInput) (*entity.TransferOrder, error) {
	if input.FromLocationID == "" || input.ToLocationID == "" || len(input.Lines) == 0 {
		return nil, domain.ErrInvalidInput
	}
	if input.FromLocationID == input.ToLocationID {
		return nil, fmt.Errorf("origen y destino iguales: %w", domain.ErrInvalidInput)
	}

	from, err := uc.locationRepo.GetByID(ctx, input.FromLocationID)
	if err != nil {
		return nil, err
	}
	if from == nil {
		return nil, fmt.Errorf("ubicación origen %s: %w", input.FromLocationID, domain.ErrNotFound)
	}
	to, err := uc.locationRepo.GetByID(ctx, input.ToLocationID)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, fmt.Errorf("ubicación destino %s: %w", input.ToLocationID, domain.ErrNotFound)
	}

	now := time.Now()
	lines := make([]entity.TransferLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.ProductID == "" || line.Quantity <= 0 {
			return nil, domain.ErrInvalidInput
		}
		product, err := uc.productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, fmt.Errorf("producto %s: %w", line.ProductID, domain.ErrNotFound)
		}
		record, err := uc.stockRepo.Get(ctx, line.ProductID, input.FromLocationID)
		if err != nil {
			return nil, err
		}
		var available int64
		if record != nil {
			available = record.Available
		}
		if available < line.Quantity {
			return nil, &domain.StockShortageError{
				ProductID:  line.ProductID,
				LocationID: input.FromLocationID,
				Required:   line.Quantity,
				Available:  available,
			}
		}
		lines = append(lines, entity.TransferLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   line.Quantity,
		})
	}

	number, err := uc.transferRepo.NextNumber(ctx, now)
	if err != nil {
		return nil, err
	}
	order := &entity.TransferOrder{
		ID:          uuid.New().String(),
		Number:      number,
		From:        from.Ref(),
		To:          to.Ref(),
		Lines:       lines,
		Status:      entity.TransferStatusPending,
		RequestDate: now,
	}
	if err := uc.transferRepo.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Approve mueve la orden de Pending a InProgress. Cualquier otro estado es conflicto.
func (uc *UseCase) Approve(ctx context.Context, orderID, approver string) (*entity.TransferOrder, error) {
	order, err := uc.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != entity.TransferStatusPending {
		return nil, fmt.Errorf("orden %s en estado %s no admite aprobación: %w", order.Number, order.Status, domain.ErrConflict)
	}
	order.Status = entity.TransferStatusInProgress
	order.ApprovedBy = approver
	if err := uc.transferRepo.Update(ctx, order, entity.TransferStatusPending); err != nil {
		return nil, err
	}
	return order, nil
}

// Complete ejecuta los movimientos de todos los renglones y cierra la orden.
// Solo desde InProgress. Corre en una única transacción con bloqueo de filas:
// la orden se relee y se verifica dentro de la transacción, y el cierre usa la
// transición condicional InProgress -> Completed, de modo que dos ejecuciones
// concurrentes de la misma orden mueven stock una sola vez (la perdedora
// recibe ErrConflict y sus movimientos se revierten). Si algún origen quedó
// corto desde la creación, la operación completa falla con el faltante
// explícito y la orden permanece InProgress (política elegida en lugar de
// omitir el renglón en silencio).
func (uc *UseCase) Complete(ctx context.Context, orderID string) (*entity.TransferOrder, error) {
	if orderID == "" {
		return nil, domain.ErrInvalidInput
	}
	var order *entity.TransferOrder
	err := uc.txRunner.RunTransfer(ctx, func(stockRepo repository.StockRecordRepository, transferRepo repository.TransferOrderRepository) error {
		current, err := transferRepo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("orden de traslado %s: %w", orderID, domain.ErrNotFound)
		}
		if current.Status != entity.TransferStatusInProgress {
			return fmt.Errorf("orden %s en estado %s no admite ejecución: %w", current.Number, current.Status, domain.ErrConflict)
		}
		now := time.Now()
		for i := range current.Lines {
			if err := uc.moveLine(ctx, stockRepo, current, &current.Lines[i], now); err != nil {
				return err
			}
		}
		current.Status = entity.TransferStatusCompleted
		current.CompletedAt = &now
		if err := transferRepo.Update(ctx, current, entity.TransferStatusInProgress); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.TransfersCompleted.Inc()
	return order, nil
}

// moveLine descuenta el renglón del origen y lo suma en destino cargando el
// costo promedio del origen, con filas bloqueadas en orden determinista.
func (uc *UseCase) moveLine(ctx context.Context, stockRepo repository.StockRecordRepository, order *entity.TransferOrder, line *entity.TransferLine, now time.Time) error {
	first, second := order.From.ID, order.To.ID
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]*entity.StockRecord, 2)
	for _, locationID := range []string{first, second} {
		record, err := stockRepo.GetForUpdate(ctx, line.ProductID, locationID)
		if err != nil {
			return err
		}
		locked[locationID] = record
	}

	origin := locked[order.From.ID]
	if origin == nil {
		return fmt.Errorf("stock de %s en %s: %w", line.ProductID, order.From.ID, domain.ErrNotFound)
	}
	if origin.Available < line.Requested {
		return &domain.StockShortageError{
			ProductID:  line.ProductID,
			LocationID: order.From.ID,
			Required:   line.Requested,
			Available:  origin.Available,
		}
	}
	unitCost := origin.AverageCost
	origin.Available -= line.Requested
	origin.UpdatedAt = now
	if err := stockRepo.UpdateCounters(ctx, origin); err != nil {
		return err
	}

	dest := locked[order.To.ID]
	if dest == nil {
		dest = &entity.StockRecord{
			ID:           uuid.New().String(),
			ProductID:    origin.ProductID,
			ProductName:  origin.ProductName,
			ProductSKU:   origin.ProductSKU,
			LocationID:   order.To.ID,
			LocationName: order.To.Name,
			Available:    line.Requested,
			AverageCost:  unitCost,
			UpdatedAt:    now,
		}
		if err := stockRepo.Create(ctx, dest); err != nil {
			return err
		}
	} else {
		dest.AverageCost = inventory.CostCalculator(dest.Available, dest.AverageCost, line.Requested, unitCost)
		dest.Available += line.Requested
		dest.UpdatedAt = now
		if err := stockRepo.UpdateCounters(ctx, dest); err != nil {
			return err
		}
	}
	line.Transferred = line.Requested
	return nil
}

// Cancel cancela la orden desde cualquier estado no completado. La escritura
// va condicionada al estado leído: una cancelación que corre contra una
// ejecución concurrente pierde con ErrConflict en lugar de cancelar una orden
// cuyo stock ya se movió.
func (uc *UseCase) Cancel(ctx context.Context, orderID string) (*entity.TransferOrder, error) {
	order, err := uc.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanCancel() {
		return nil, fmt.Errorf("orden %s ya completada: %w", order.Number, domain.ErrConflict)
	}
	previous := order.Status
	order.Status = entity.TransferStatusCancelled
	if err := uc.transferRepo.Update(ctx, order, previous); err != nil {
		return nil, err
	}
	return order, nil
}

// Get devuelve una orden por ID.
func (uc *UseCase) Get(ctx context.Context, orderID string) (*entity.TransferOrder, error) {
	return uc.getOrder(ctx, orderID)
}

// ListByStatus lista órdenes por estado con paginación.
func (uc *UseCase) ListByStatus(ctx context.Context, status entity.TransferStatus, limit, offset int) ([]*entity.TransferOrder, error) {
	return uc.transferRepo.ListByStatus(ctx, status, limit, offset)
}

func (uc *UseCase) getOrder(ctx context.Context, orderID string) (*entity.TransferOrder, error) {
	if orderID == "" {
		return nil, domain.ErrInvalidInput
	}
	order, err := uc.transferRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("orden de traslado %s: %w", orderID, domain.ErrNotFound)
	}
	return order, nil
}
