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

var _ repository.ReservationRepository = (*ReservationRepo)(nil)

// ReservationRepo implementación de ReservationRepository sobre PostgreSQL (usable con pool o tx).
type ReservationRepo struct {
	q Querier
}

// NewReservationRepository construye el adaptador. Pasar pool o tx (Querier).
func NewReservationRepository(q Querier) *ReservationRepo {
	return &ReservationRepo{q: q}
}

// Create persiste una intención de reserva.
func (r *ReservationRepo) Create(ctx context.Context, reservation *entity.Reservation) error {
	query := `
		INSERT INTO reservations (id, product_id, location_id, quantity, reference, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, query,
		reservation.ID, reservation.ProductID, reservation.LocationID, reservation.Quantity,
		reservation.Reference, reservation.Status, reservation.CreatedAt, reservation.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// GetByID obtiene una reserva por ID. (nil, nil) si no existe.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*entity.Reservation, error) {
	query := `
		SELECT id, product_id, location_id, quantity, reference, status, created_at, expires_at
		FROM reservations WHERE id = $1`
	var res entity.Reservation
	err := r.q.QueryRow(ctx, query, id).Scan(
		&res.ID, &res.ProductID, &res.LocationID, &res.Quantity,
		&res.Reference, &res.Status, &res.CreatedAt, &res.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

// UpdateStatus transiciona el estado solo si el actual coincide con from
// (reclamo condicional, análogo al CAS de stock_records). Cero filas afectadas
// significa que otro worker reclamó la reserva primero: domain.ErrConflict.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id, from, to string) error {
	cmd, err := r.q.Exec(ctx,
		`UPDATE reservations SET status = $3 WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *ReservationRepo) listQuery(ctx context.Context, query string, args ...any) ([]*entity.Reservation, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()
	var list []*entity.Reservation
	for rows.Next() {
		var res entity.Reservation
		if err := rows.Scan(
			&res.ID, &res.ProductID, &res.LocationID, &res.Quantity,
			&res.Reference, &res.Status, &res.CreatedAt, &res.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		list = append(list, &res)
	}
	return list, rows.Err()
}

// ListExpired reservas activas cuyo vencimiento ya pasó, más viejas primero.
func (r *ReservationRepo) ListExpired(ctx context.Context, now time.Time) ([]*entity.Reservation, error) {
	query := `
		SELECT id, product_id, location_id, quantity, reference, status, created_at, expires_at
		FROM reservations WHERE status = 'active' AND expires_at < $1
		ORDER BY expires_at ASC`
	return r.listQuery(ctx, query, now)
}

// ListByReference reservas asociadas a una operación (venta, orden).
func (r *ReservationRepo) ListByReference(ctx context.Context, reference string) ([]*entity.Reservation, error) {
	query := `
		SELECT id, product_id, location_id, quantity, reference, status, created_at, expires_at
		FROM reservations WHERE reference = $1 ORDER BY created_at ASC`
	return r.listQuery(ctx, query, reference)
}
