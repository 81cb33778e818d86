package transfer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/transfer"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
)

type env struct {
	store *memory.Store
	uc    *transfer.UseCase
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	uc := transfer.NewUseCase(
		store,
		store.StockRecords(),
		store.Transfers(),
		store.Locations(),
		store.Products(),
	)
	e := &env{store: store, uc: uc}
	e.seedLocation(t, "A", "Bodega Central")
	e.seedLocation(t, "B", "Tienda Norte")
	return e
}

func (e *env) seedLocation(t *testing.T, id, name string) {
	t.Helper()
	err := e.store.Locations().Create(context.Background(), &entity.Location{
		ID:        id,
		Kind:      entity.LocationKindWarehouse,
		Name:      name,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func (e *env) seedProduct(t *testing.T, id, name string) {
	t.Helper()
	err := e.store.Products().Create(context.Background(), &entity.Product{
		ID:        id,
		SKU:       "SKU-" + id,
		Name:      name,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func (e *env) seedStock(t *testing.T, productID, locationID string, available int64, cost string) {
	t.Helper()
	err := e.store.StockRecords().Create(context.Background(), &entity.StockRecord{
		ID:          uuid.New().String(),
		ProductID:   productID,
		LocationID:  locationID,
		Available:   available,
		AverageCost: decimal.RequireFromString(cost),
		UpdatedAt:   time.Now(),
	})
	require.NoError(t, err)
}

func (e *env) stock(t *testing.T, productID, locationID string) *entity.StockRecord {
	t.Helper()
	record, err := e.store.StockRecords().Get(context.Background(), productID, locationID)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record
}

func (e *env) create(t *testing.T, lines ...transfer.LineInput) *entity.TransferOrder {
	t.Helper()
	order, err := e.uc.Create(context.Background(), transfer.CreateInput{
		FromLocationID: "A",
		ToLocationID:   "B",
		Lines:          lines,
	})
	require.NoError(t, err)
	return order
}

// TestCreate_OrdenPendiente la orden nace en Pending con consecutivo del día
// y renglones desnormalizados.
func TestCreate_OrdenPendiente(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedStock(t, "P1", "A", 10, "10")

	order := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 4})

	assert.Equal(t, entity.TransferStatusPending, order.Status)
	assert.Equal(t, fmt.Sprintf("TRA-%s-0001", time.Now().Format("20060102")), order.Number)
	assert.Equal(t, "Bodega Central", order.From.Name)
	assert.Equal(t, "Tienda Norte", order.To.Name)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "Camiseta", order.Lines[0].ProductName)
	assert.Equal(t, int64(4), order.Lines[0].Requested)
	assert.Equal(t, int64(0), order.Lines[0].Transferred)
	assert.Nil(t, order.CompletedAt)
}

// TestCreate_ConsecutivoDelDia dos órdenes del mismo día llevan -0001 y -0002.
func TestCreate_ConsecutivoDelDia(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedStock(t, "P1", "A", 10, "10")

	first := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 1})
	second := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 1})

	day := time.Now().Format("20060102")
	assert.Equal(t, "TRA-"+day+"-0001", first.Number)
	assert.Equal(t, "TRA-"+day+"-0002", second.Number)
}

// TestCreate_OrigenInsuficiente pedir más del disponible en origen rechaza la
// orden con el faltante explícito y no persiste nada.
func TestCreate_OrigenInsuficiente(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedStock(t, "P1", "A", 3, "10")

	_, err := e.uc.Create(ctx, transfer.CreateInput{
		FromLocationID: "A",
		ToLocationID:   "B",
		Lines:          []transfer.LineInput{{ProductID: "P1", Quantity: 5}},
	})

	var shortage *domain.StockShortageError
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, int64(5), shortage.Required)
	assert.Equal(t, int64(3), shortage.Available)

	pending, listErr := e.uc.ListByStatus(ctx, entity.TransferStatusPending, 10, 0)
	require.NoError(t, listErr)
	assert.Empty(t, pending)
}

// TestCreate_EntradasInvalidas ubicaciones iguales, faltantes o renglones
// inválidos.
func TestCreate_EntradasInvalidas(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")

	_, err := e.uc.Create(ctx, transfer.CreateInput{FromLocationID: "A", ToLocationID: "A",
		Lines: []transfer.LineInput{{ProductID: "P1", Quantity: 1}}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.uc.Create(ctx, transfer.CreateInput{FromLocationID: "A", ToLocationID: "B"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.uc.Create(ctx, transfer.CreateInput{FromLocationID: "A", ToLocationID: "ZZ",
		Lines: []transfer.LineInput{{ProductID: "P1", Quantity: 1}}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.uc.Create(ctx, transfer.CreateInput{FromLocationID: "A", ToLocationID: "B",
		Lines: []transfer.LineInput{{ProductID: "ZZ", Quantity: 1}}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestApprove_SoloDesdePending aprobar pasa a InProgress con el aprobador;
// cualquier otro estado es conflicto.
func TestApprove_SoloDesdePending(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedStock(t, "P1", "A", 10, "10")
	order := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 4})

	approved, err := e.uc.Approve(ctx, order.ID, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, entity.TransferStatusInProgress, approved.Status)
	assert.Equal(t, "supervisor", approved.ApprovedBy)

	_, err = e.uc.Approve(ctx, order.ID, "otro")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// TestComplete_TrasladoExacto trasladar todo el disponible del origen lo deja
// en cero y crea el destino con el costo promedio del origen.
func TestComplete_TrasladoExacto(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedStock(t, "P1", "A", 3, "12.50")
	order := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 3})
	_, err := e.uc.Approve(ctx, order.ID, "supervisor")
	require.NoError(t, err)

	completed, err := e.uc.Complete(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TransferStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, int64(3), completed.Lines[0].Transferred)

	assert.Equal(t, int64(0), e.stock(t, "P1", "A").Available)
	dest := e.stock(t, "P1", "B")
	assert.Equal(t, int64(3), dest.Available)
	assert.True(t, dest.AverageCost.Equal(decimal.RequireFromString("12.50")),
		"costo destino = %s", dest.AverageCost)
}

// TestComplete_PromediaDestinoExistente el destino con stock propio promedia
// su costo con el del origen.
func TestComplete_PromediaDestinoExistente(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedStock(t, "P1", "A", 10, "10")
	e.seedStock(t, "P1", "B", 5, "40")
	order := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 5})
	_, err := e.uc.Approve(ctx, order.ID, "supervisor")
	require.NoError(t, err)

	_, err = e.uc.Complete(ctx, order.ID)
	require.NoError(t, err)

	dest := e.stock(t, "P1", "B")
	assert.Equal(t, int64(10), dest.Available)
	// (5*40 + 5*10) / 10 = 25
	assert.True(t, dest.AverageCost.Equal(decimal.NewFromInt(25)),
		"costo destino = %s", dest.AverageCost)
}

// TestComplete_SoloDesdeInProgress ejecutar una orden Pending es conflicto.
func TestComplete_SoloDesdeInProgress(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedStock(t, "P1", "A", 10, "10")
	order := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 4})

	_, err := e.uc.Complete(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// TestComplete_RevierteAnteFaltante si un renglón quedó corto después de la
// aprobación, la ejecución completa falla: ningún renglón se mueve y la orden
// sigue InProgress, lista para reintentar cuando haya stock.
func TestComplete_RevierteAnteFaltante(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedProduct(t, "P2", "Pantalón")
	e.seedStock(t, "P1", "A", 10, "10")
	e.seedStock(t, "P2", "A", 5, "20")
	order := e.create(t,
		transfer.LineInput{ProductID: "P1", Quantity: 4},
		transfer.LineInput{ProductID: "P2", Quantity: 5},
	)
	_, err := e.uc.Approve(ctx, order.ID, "supervisor")
	require.NoError(t, err)

	// El stock de P2 se vende entre la aprobación y la ejecución.
	drained := e.stock(t, "P2", "A")
	drained.Available = 2
	require.NoError(t, e.store.StockRecords().UpdateCounters(ctx, drained))

	_, err = e.uc.Complete(ctx, order.ID)
	var shortage *domain.StockShortageError
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, "P2", shortage.ProductID)

	// El primer renglón también quedó sin mover.
	assert.Equal(t, int64(10), e.stock(t, "P1", "A").Available)
	assert.Equal(t, int64(2), e.stock(t, "P2", "A").Available)

	stored, err := e.uc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TransferStatusInProgress, stored.Status)
	assert.Equal(t, int64(0), stored.Lines[0].Transferred)
}

// TestComplete_UnaSolaVez una segunda ejecución de la misma orden pierde la
// transición condicional InProgress -> Completed: el stock se mueve
// exactamente una vez.
func TestComplete_UnaSolaVez(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedStock(t, "P1", "A", 10, "10")
	order := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 3})
	_, err := e.uc.Approve(ctx, order.ID, "supervisor")
	require.NoError(t, err)

	_, err = e.uc.Complete(ctx, order.ID)
	require.NoError(t, err)

	_, err = e.uc.Complete(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Un solo movimiento de 3 unidades.
	assert.Equal(t, int64(7), e.stock(t, "P1", "A").Available)
	assert.Equal(t, int64(3), e.stock(t, "P1", "B").Available)
}

// TestCancel se cancela desde Pending o InProgress; nunca tras Completed.
func TestCancel(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedStock(t, "P1", "A", 10, "10")

	pending := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 2})
	cancelled, err := e.uc.Cancel(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TransferStatusCancelled, cancelled.Status)

	// Cancelada no se aprueba.
	_, err = e.uc.Approve(ctx, pending.ID, "supervisor")
	assert.ErrorIs(t, err, domain.ErrConflict)

	inProgress := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 2})
	_, err = e.uc.Approve(ctx, inProgress.ID, "supervisor")
	require.NoError(t, err)
	_, err = e.uc.Cancel(ctx, inProgress.ID)
	require.NoError(t, err)

	completed := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 2})
	_, err = e.uc.Approve(ctx, completed.ID, "supervisor")
	require.NoError(t, err)
	_, err = e.uc.Complete(ctx, completed.ID)
	require.NoError(t, err)
	_, err = e.uc.Cancel(ctx, completed.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// TestListByStatus filtra por estado con paginación.
func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedProduct(t, "P1", "Camiseta")
	e.seedStock(t, "P1", "A", 10, "10")

	first := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 1})
	second := e.create(t, transfer.LineInput{ProductID: "P1", Quantity: 1})
	_, err := e.uc.Approve(ctx, second.ID, "supervisor")
	require.NoError(t, err)

	pending, err := e.uc.ListByStatus(ctx, entity.TransferStatusPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	inProgress, err := e.uc.ListByStatus(ctx, entity.TransferStatusInProgress, 10, 0)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	assert.Equal(t, second.ID, inProgress[0].ID)
}

// TestGet inexistente es ErrNotFound; vacío es entrada inválida.
func TestGet(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.uc.Get(ctx, uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.uc.Get(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
