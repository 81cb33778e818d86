package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
)

// SweepExpired libera las reservas activas cuyo TTL venció, devolviendo la
// cantidad de stock reservado a disponible y marcando la intención como
// expirada. Cada cierre reclama primero la intención (transición condicional
// dentro de su transacción): si un caller la liberó entre el listado y el
// reclamo, se omite sin duplicar la devolución de contadores. Devuelve
// cuántas liberó; los fallos individuales no detienen el barrido.
func (uc *UseCase) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := uc.reservationRepo.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	var (
		released int
		errs     []error
	)
	for _, reservation := range expired {
		if err := uc.closeReservation(ctx, reservation.ID, entity.ReservationStatusExpired); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Otro worker la cerró primero.
				continue
			}
			errs = append(errs, err)
			continue
		}
		released++
		metrics.ReservationsExpired.Inc()
	}
	return released, errors.Join(errs...)
}

// ExpirySweeper corre SweepExpired en segundo plano con cadencia fija, para
// que las reservas huérfanas de workflows abandonados no dejen stock
// "fantasma" retenido.
type ExpirySweeper struct {
	uc       *UseCase
	interval time.Duration
	log      *logger.Logger
}

// NewExpirySweeper construye el barredor.
func NewExpirySweeper(uc *UseCase, interval time.Duration, log *logger.Logger) *ExpirySweeper {
	return &ExpirySweeper{uc: uc, interval: interval, log: log}
}

// Run bloquea hasta que el contexto se cancele.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := s.uc.SweepExpired(ctx, time.Now())
			if err != nil {
				s.log.Error().Err(err).Msg("barrido de reservas vencidas")
			}
			if released > 0 {
				s.log.Info().Int("liberadas", released).Msg("reservas vencidas liberadas")
			}
		}
	}
}
