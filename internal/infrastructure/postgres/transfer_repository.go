package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.TransferOrderRepository = (*TransferOrderRepo)(nil)

// TransferOrderRepo implementación de TransferOrderRepository sobre PostgreSQL.
// La orden y sus renglones viven en dos tablas; los renglones se reescriben
// completos en cada Update (son pocos y la orden es el agregado).
type TransferOrderRepo struct {
	q Querier
}

// NewTransferOrderRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTransferOrderRepository(q Querier) *TransferOrderRepo {
	return &TransferOrderRepo{q: q}
}

// Create persiste la orden con sus renglones.
func (r *TransferOrderRepo) Create(ctx context.Context, order *entity.TransferOrder) error {
	query := `
		INSERT INTO transfer_orders (id, number,
			from_location_id, from_location_kind, from_location_name,
			to_location_id, to_location_kind, to_location_name,
			status, approved_by, request_date, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query,
		order.ID, order.Number,
		order.From.ID, order.From.Kind, order.From.Name,
		order.To.ID, order.To.Kind, order.To.Name,
		order.Status, order.ApprovedBy, order.RequestDate, order.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert transfer order: %w", err)
	}
	return r.insertLines(ctx, order)
}

func (r *TransferOrderRepo) insertLines(ctx context.Context, order *entity.TransferOrder) error {
	query := `
		INSERT INTO transfer_lines (transfer_id, position, product_id, product_name, requested, transferred)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for i, line := range order.Lines {
		if _, err := r.q.Exec(ctx, query,
			order.ID, i, line.ProductID, line.ProductName, line.Requested, line.Transferred,
		); err != nil {
			return fmt.Errorf("insert transfer line: %w", err)
		}
	}
	return nil
}

// GetByID obtiene la orden y sus renglones. (nil, nil) si no existe.
func (r *TransferOrderRepo) GetByID(ctx context.Context, id string) (*entity.TransferOrder, error) {
	query := `
		SELECT id, number,
			from_location_id, from_location_kind, from_location_name,
			to_location_id, to_location_kind, to_location_name,
			status, approved_by, request_date, completed_at
		FROM transfer_orders WHERE id = $1`
	var o entity.TransferOrder
	err := r.q.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.Number,
		&o.From.ID, &o.From.Kind, &o.From.Name,
		&o.To.ID, &o.To.Kind, &o.To.Name,
		&o.Status, &o.ApprovedBy, &o.RequestDate, &o.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transfer order: %w", err)
	}
	if err := r.loadLines(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *TransferOrderRepo) loadLines(ctx context.Context, order *entity.TransferOrder) error {
	query := `
		SELECT product_id, product_name, requested, transferred
		FROM transfer_lines WHERE transfer_id = $1 ORDER BY position`
	rows, err := r.q.Query(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("list transfer lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line entity.TransferLine
		if err := rows.Scan(&line.ProductID, &line.ProductName, &line.Requested, &line.Transferred); err != nil {
			return fmt.Errorf("scan transfer line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	return rows.Err()
}

// Update persiste estado, aprobador, fecha de completado y reescribe los
// renglones, condicionado a que la fila siga en el estado from. Cero filas
// afectadas significa que otra transición ganó la carrera: domain.ErrConflict
// y los renglones no se tocan.
func (r *TransferOrderRepo) Update(ctx context.Context, order *entity.TransferOrder, from entity.TransferStatus) error {
	query := `
		UPDATE transfer_orders
		SET status = $2, approved_by = $3, completed_at = $4
		WHERE id = $1 AND status = $5`
	cmd, err := r.q.Exec(ctx, query, order.ID, order.Status, order.ApprovedBy, order.CompletedAt, from)
	if err != nil {
		return fmt.Errorf("update transfer order: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM transfer_lines WHERE transfer_id = $1`, order.ID); err != nil {
		return fmt.Errorf("delete transfer lines: %w", err)
	}
	return r.insertLines(ctx, order)
}

// ListByStatus lista órdenes por estado, más recientes primero.
func (r *TransferOrderRepo) ListByStatus(ctx context.Context, status entity.TransferStatus, limit, offset int) ([]*entity.TransferOrder, error) {
	query := `
		SELECT id, number,
			from_location_id, from_location_kind, from_location_name,
			to_location_id, to_location_kind, to_location_name,
			status, approved_by, request_date, completed_at
		FROM transfer_orders WHERE status = $1
		ORDER BY request_date DESC LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transfer orders: %w", err)
	}
	defer rows.Close()
	var list []*entity.TransferOrder
	for rows.Next() {
		var o entity.TransferOrder
		if err := rows.Scan(
			&o.ID, &o.Number,
			&o.From.ID, &o.From.Kind, &o.From.Name,
			&o.To.ID, &o.To.Kind, &o.To.Name,
			&o.Status, &o.ApprovedBy, &o.RequestDate, &o.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transfer order: %w", err)
		}
		list = append(list, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range list {
		if err := r.loadLines(ctx, o); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// NextNumber genera el consecutivo del día (TRA-YYYYMMDD-NNNN) contando las
// órdenes ya creadas en esa fecha. El constraint único sobre number respalda
// la unicidad ante carreras.
func (r *TransferOrderRepo) NextNumber(ctx context.Context, day time.Time) (string, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	var count int64
	err := r.q.QueryRow(ctx,
		`SELECT count(*) FROM transfer_orders WHERE request_date >= $1 AND request_date < $2`,
		start, end,
	).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count transfer orders: %w", err)
	}
	return fmt.Sprintf("TRA-%s-%04d", day.Format("20060102"), count+1), nil
}
