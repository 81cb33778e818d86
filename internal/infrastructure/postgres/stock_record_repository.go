package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockRecordRepository = (*StockRecordRepo)(nil)

const stockRecordColumns = `id, product_id, product_name, product_sku, location_id, location_name,
		available, reserved, average_cost, version, updated_at`

// StockRecordRepo implementación de StockRecordRepository sobre PostgreSQL (usable con pool o tx).
type StockRecordRepo struct {
	q Querier
}

// NewStockRecordRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockRecordRepository(q Querier) *StockRecordRepo {
	return &StockRecordRepo{q: q}
}

func scanStockRecord(row pgx.Row) (*entity.StockRecord, error) {
	var s entity.StockRecord
	err := row.Scan(
		&s.ID, &s.ProductID, &s.ProductName, &s.ProductSKU, &s.LocationID, &s.LocationName,
		&s.Available, &s.Reserved, &s.AverageCost, &s.Version, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan stock record: %w", err)
	}
	return &s, nil
}

// Get obtiene el registro de stock de un producto en una ubicación. (nil, nil) si no existe.
func (r *StockRecordRepo) Get(ctx context.Context, productID, locationID string) (*entity.StockRecord, error) {
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records WHERE product_id = $1 AND location_id = $2`
	return scanStockRecord(r.q.QueryRow(ctx, query, productID, locationID))
}

// GetByID obtiene el registro por su ID. (nil, nil) si no existe.
func (r *StockRecordRepo) GetByID(ctx context.Context, id string) (*entity.StockRecord, error) {
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records WHERE id = $1`
	return scanStockRecord(r.q.QueryRow(ctx, query, id))
}

// GetForUpdate obtiene el registro y bloquea la fila para update (SELECT FOR UPDATE).
func (r *StockRecordRepo) GetForUpdate(ctx context.Context, productID, locationID string) (*entity.StockRecord, error) {
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records WHERE product_id = $1 AND location_id = $2
		FOR UPDATE`
	return scanStockRecord(r.q.QueryRow(ctx, query, productID, locationID))
}

// Create inserta el registro. Devuelve domain.ErrDuplicate si ya existe la
// pareja producto+ubicación (constraint único).
func (r *StockRecordRepo) Create(ctx context.Context, record *entity.StockRecord) error {
	query := `
		INSERT INTO stock_records (id, product_id, product_name, product_sku, location_id, location_name,
			available, reserved, average_cost, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)`
	_, err := r.q.Exec(ctx, query,
		record.ID, record.ProductID, record.ProductName, record.ProductSKU,
		record.LocationID, record.LocationName,
		record.Available, record.Reserved, record.AverageCost, record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("producto %s o ubicación %s inexistente: %w",
				record.ProductID, record.LocationID, domain.ErrNotFound)
		}
		return fmt.Errorf("insert stock record: %w", err)
	}
	record.Version = 0
	return nil
}

// UpdateCounters persiste contadores y costo con compare-and-swap sobre version.
// Si la fila cambió desde la lectura (version distinta), devuelve domain.ErrConflict.
func (r *StockRecordRepo) UpdateCounters(ctx context.Context, record *entity.StockRecord) error {
	query := `
		UPDATE stock_records
		SET available = $3, reserved = $4, average_cost = $5, version = version + 1, updated_at = $6
		WHERE id = $1 AND version = $2 AND $3 >= 0 AND $4 >= 0`
	cmd, err := r.q.Exec(ctx, query,
		record.ID, record.Version,
		record.Available, record.Reserved, record.AverageCost, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update stock counters: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	record.Version++
	return nil
}

func (r *StockRecordRepo) list(ctx context.Context, query string, args ...any) ([]*entity.StockRecord, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock records: %w", err)
	}
	defer rows.Close()
	var list []*entity.StockRecord
	for rows.Next() {
		var s entity.StockRecord
		if err := rows.Scan(
			&s.ID, &s.ProductID, &s.ProductName, &s.ProductSKU, &s.LocationID, &s.LocationName,
			&s.Available, &s.Reserved, &s.AverageCost, &s.Version, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stock record: %w", err)
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}

// ListByProduct registros del producto en todas las ubicaciones.
func (r *StockRecordRepo) ListByProduct(ctx context.Context, productID string) ([]*entity.StockRecord, error) {
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records WHERE product_id = $1 ORDER BY location_id`
	return r.list(ctx, query, productID)
}

// ListByLocation registros de todos los productos en una ubicación.
func (r *StockRecordRepo) ListByLocation(ctx context.Context, locationID string) ([]*entity.StockRecord, error) {
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records WHERE location_id = $1 ORDER BY product_sku`
	return r.list(ctx, query, locationID)
}

// ListBelowThreshold registros con disponible bajo el umbral, mayor quiebre primero.
func (r *StockRecordRepo) ListBelowThreshold(ctx context.Context, threshold int64) ([]*entity.StockRecord, error) {
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records WHERE available < $1 ORDER BY available ASC, product_sku`
	return r.list(ctx, query, threshold)
}

// ListOutOfStock registros sin disponible.
func (r *StockRecordRepo) ListOutOfStock(ctx context.Context) ([]*entity.StockRecord, error) {
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records WHERE available = 0 ORDER BY product_sku`
	return r.list(ctx, query)
}
