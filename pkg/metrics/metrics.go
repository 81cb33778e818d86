package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Contadores Prometheus del motor de stock. Se exponen vía promhttp en cmd.
var (
	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservation_conflicts_total",
		Help: "Actualizaciones de contadores que perdieron la carrera CAS y se reintentaron.",
	})

	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_expired_total",
		Help: "Reservas vencidas liberadas por el barrido de expiración.",
	})

	TransfersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_transfers_completed_total",
		Help: "Órdenes de traslado completadas.",
	})
)
