package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
)

func seedRecord(t *testing.T, store *memory.Store) *entity.StockRecord {
	t.Helper()
	record := &entity.StockRecord{
		ID:          "rec-1",
		ProductID:   "P1",
		LocationID:  "A",
		Available:   10,
		AverageCost: decimal.NewFromInt(10),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, store.StockRecords().Create(context.Background(), record))
	return record
}

// TestUpdateCounters_ConflictoDeVersion una escritura con versión vieja pierde
// la carrera y devuelve ErrConflict sin mutar.
func TestUpdateCounters_ConflictoDeVersion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRecord(t, store)
	repo := store.StockRecords()

	first, err := repo.Get(ctx, "P1", "A")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "P1", "A")
	require.NoError(t, err)

	first.Available = 8
	require.NoError(t, repo.UpdateCounters(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	// second sigue con la versión anterior.
	second.Available = 5
	assert.ErrorIs(t, repo.UpdateCounters(ctx, second), domain.ErrConflict)

	current, err := repo.Get(ctx, "P1", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(8), current.Available)
}

// TestUpdateCounters_NuncaNegativo contadores negativos se rechazan.
func TestUpdateCounters_NuncaNegativo(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRecord(t, store)
	repo := store.StockRecords()

	record, err := repo.Get(ctx, "P1", "A")
	require.NoError(t, err)
	record.Available = -1
	assert.ErrorIs(t, repo.UpdateCounters(ctx, record), domain.ErrConflict)
}

// TestGet_DevuelveCopia mutar lo leído no toca el estado almacenado.
func TestGet_DevuelveCopia(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRecord(t, store)
	repo := store.StockRecords()

	leaked, err := repo.Get(ctx, "P1", "A")
	require.NoError(t, err)
	leaked.Available = 999

	fresh, err := repo.Get(ctx, "P1", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(10), fresh.Available)
}

// TestCreate_Duplicado producto+ubicación es único.
func TestCreate_Duplicado(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRecord(t, store)

	err := store.StockRecords().Create(ctx, &entity.StockRecord{
		ID:         "rec-2",
		ProductID:  "P1",
		LocationID: "A",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

// TestRun_RestauraAnteFallo si fn falla, todo lo escrito dentro de la
// transacción simulada se revierte.
func TestRun_RestauraAnteFallo(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRecord(t, store)

	boom := errors.New("boom")
	err := store.Run(ctx, func(stockRepo repository.StockRecordRepository, reservationRepo repository.ReservationRepository) error {
		record, err := stockRepo.Get(ctx, "P1", "A")
		require.NoError(t, err)
		record.Available = 0
		require.NoError(t, stockRepo.UpdateCounters(ctx, record))
		require.NoError(t, reservationRepo.Create(ctx, &entity.Reservation{
			ID: "res-1", ProductID: "P1", LocationID: "A", Quantity: 1,
			Status: entity.ReservationStatusActive,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	record, getErr := store.StockRecords().Get(ctx, "P1", "A")
	require.NoError(t, getErr)
	assert.Equal(t, int64(10), record.Available)
	assert.Equal(t, int64(0), record.Version)

	res, getErr := store.Reservations().GetByID(ctx, "res-1")
	require.NoError(t, getErr)
	assert.Nil(t, res)
}

// TestRun_ConfirmaAnteExito lo escrito dentro de la transacción persiste si fn
// termina sin error.
func TestRun_ConfirmaAnteExito(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRecord(t, store)

	err := store.Run(ctx, func(stockRepo repository.StockRecordRepository, _ repository.ReservationRepository) error {
		record, err := stockRepo.Get(ctx, "P1", "A")
		require.NoError(t, err)
		record.Available = 4
		return stockRepo.UpdateCounters(ctx, record)
	})
	require.NoError(t, err)

	record, err := store.StockRecords().Get(ctx, "P1", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(4), record.Available)
}

// TestUpdateStatus_ReclamoCondicional la transición de una reserva exige el
// estado de partida: el segundo worker que intenta cerrarla recibe conflicto.
func TestUpdateStatus_ReclamoCondicional(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Reservations().Create(ctx, &entity.Reservation{
		ID: "res-1", ProductID: "P1", LocationID: "A", Quantity: 2,
		Status: entity.ReservationStatusActive,
	}))

	err := store.Reservations().UpdateStatus(ctx, "res-1",
		entity.ReservationStatusActive, entity.ReservationStatusReleased)
	require.NoError(t, err)

	err = store.Reservations().UpdateStatus(ctx, "res-1",
		entity.ReservationStatusActive, entity.ReservationStatusExpired)
	assert.ErrorIs(t, err, domain.ErrConflict)

	res, err := store.Reservations().GetByID(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationStatusReleased, res.Status)

	err = store.Reservations().UpdateStatus(ctx, "inexistente",
		entity.ReservationStatusActive, entity.ReservationStatusExpired)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// TestTransferUpdate_CondicionadoAlEstado la escritura de una orden exige el
// estado de partida leído; una transición concurrente la invalida.
func TestTransferUpdate_CondicionadoAlEstado(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	order := &entity.TransferOrder{
		ID: "tr-1", Number: "TRA-20260829-0001",
		Status: entity.TransferStatusPending, RequestDate: time.Now(),
	}
	require.NoError(t, store.Transfers().Create(ctx, order))

	order.Status = entity.TransferStatusInProgress
	require.NoError(t, store.Transfers().Update(ctx, order, entity.TransferStatusPending))

	// Otra transición ya consumió Pending.
	stale := &entity.TransferOrder{ID: "tr-1", Number: order.Number, Status: entity.TransferStatusCancelled}
	assert.ErrorIs(t, store.Transfers().Update(ctx, stale, entity.TransferStatusPending), domain.ErrConflict)

	stored, err := store.Transfers().GetByID(ctx, "tr-1")
	require.NoError(t, err)
	assert.Equal(t, entity.TransferStatusInProgress, stored.Status)
}

// TestNextNumber consecutivo por día con relleno a cuatro dígitos.
func TestNextNumber(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	day := time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC)

	number, err := store.Transfers().NextNumber(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "TRA-20260309-0001", number)

	require.NoError(t, store.Transfers().Create(ctx, &entity.TransferOrder{
		ID: "tr-1", Number: number, Status: entity.TransferStatusPending, RequestDate: day,
	}))

	number, err = store.Transfers().NextNumber(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "TRA-20260309-0002", number)
}
