package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/stock-ledger/internal/application/stock"
	"github.com/jhoicas/stock-ledger/internal/application/transfer"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando motor de stock")

	if err := runMigrations(cfg.DB.ConnectionString()); err != nil {
		log.Fatal().Err(err).Msg("aplicar migraciones")
	}
	log.Info().Msg("migraciones aplicadas")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	stockRepo := postgres.NewStockRecordRepository(pool)
	reservationRepo := postgres.NewReservationRepository(pool)
	locationRepo := postgres.NewLocationRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	transferRepo := postgres.NewTransferOrderRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	stockUC := stock.NewUseCase(
		stockRepo, reservationRepo, productRepo, locationRepo,
		txRunner, cfg.Reservation.TTL(),
	)
	transferUC := transfer.NewUseCase(txRunner, stockRepo, transferRepo, locationRepo, productRepo)

	// Aviso operativo: órdenes aprobadas que quedaron sin completar de una corrida anterior.
	if pending, err := transferUC.ListByStatus(ctx, entity.TransferStatusInProgress, 50, 0); err == nil && len(pending) > 0 {
		log.Warn().Int("ordenes", len(pending)).Msg("traslados en ejecución sin completar")
	}

	// Barrido de reservas vencidas en segundo plano.
	sweeper := stock.NewExpirySweeper(stockUC, cfg.Reservation.SweepInterval(), log)
	go sweeper.Run(ctx)
	log.Info().
		Dur("ttl", cfg.Reservation.TTL()).
		Dur("intervalo", cfg.Reservation.SweepInterval()).
		Msg("barrido de reservas iniciado")

	// Endpoint Prometheus.
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("servidor de métricas")
			}
		}()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("métricas expuestas")
	}

	<-ctx.Done()
	log.Info().Msg("señal recibida, apagando")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}
