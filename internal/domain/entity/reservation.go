package entity

import "time"

// Estados de una reserva de stock.
const (
	ReservationStatusActive    = "active"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusReleased  = "released"
	ReservationStatusExpired   = "expired"
)

// Reservation registra la intención de una reserva (cantidad movida de
// disponible a reservado) pendiente de confirmar o liberar. ExpiresAt habilita
// la liberación automática de reservas huérfanas por el barrido de expiración.
type Reservation struct {
	ID         string
	ProductID  string
	LocationID string
	Quantity   int64
	Reference  string // venta, orden u operación que originó la reserva
	Status     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expirada indica si la reserva activa ya venció en el instante dado.
func (r *Reservation) Expirada(now time.Time) bool {
	return r.Status == ReservationStatusActive && now.After(r.ExpiresAt)
}
