package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/stock"
	"github.com/jhoicas/stock-ledger/internal/application/transfer"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Store implementación en memoria de todos los puertos, para tests y modo
// demo sin PostgreSQL. Respeta la semántica CAS de Version y simula
// transacciones con snapshot/restauración del estado mutable. Cada puerto se
// obtiene como vista del mismo estado (StockRecords(), Reservations(), ...).
type Store struct {
	mu           sync.RWMutex
	txMu         sync.Mutex // serializa transacciones simuladas
	stockByID    map[string]entity.StockRecord
	stockIDByKey map[string]string // productID|locationID -> record ID
	products     map[string]entity.Product
	locations    map[string]entity.Location
	reservations map[string]entity.Reservation
	transfers    map[string]entity.TransferOrder
}

// NewStore construye el almacén vacío.
func NewStore() *Store {
	return &Store{
		stockByID:    make(map[string]entity.StockRecord),
		stockIDByKey: make(map[string]string),
		products:     make(map[string]entity.Product),
		locations:    make(map[string]entity.Location),
		reservations: make(map[string]entity.Reservation),
		transfers:    make(map[string]entity.TransferOrder),
	}
}

// Vistas por puerto sobre el mismo estado.
func (s *Store) StockRecords() repository.StockRecordRepository { return &stockRecordRepo{s} }
func (s *Store) Reservations() repository.ReservationRepository { return &reservationRepo{s} }
func (s *Store) Locations() repository.LocationRepository       { return &locationRepo{s} }
func (s *Store) Products() repository.ProductRepository         { return &productRepo{s} }
func (s *Store) Transfers() repository.TransferOrderRepository  { return &transferRepo{s} }

func stockKey(productID, locationID string) string {
	return productID + "|" + locationID
}

// ── StockRecordRepository ─────────────────────────────────────────────────────

type stockRecordRepo struct{ s *Store }

var _ repository.StockRecordRepository = (*stockRecordRepo)(nil)

func (r *stockRecordRepo) Get(_ context.Context, productID, locationID string) (*entity.StockRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.stockIDByKey[stockKey(productID, locationID)]
	if !ok {
		return nil, nil
	}
	rec := r.s.stockByID[id]
	return &rec, nil
}

func (r *stockRecordRepo) GetByID(_ context.Context, id string) (*entity.StockRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.stockByID[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// GetForUpdate equivale a Get: el aislamiento lo da la serialización de
// transacciones simuladas (txMu).
func (r *stockRecordRepo) GetForUpdate(ctx context.Context, productID, locationID string) (*entity.StockRecord, error) {
	return r.Get(ctx, productID, locationID)
}

func (r *stockRecordRepo) Create(_ context.Context, record *entity.StockRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := stockKey(record.ProductID, record.LocationID)
	if _, exists := r.s.stockIDByKey[key]; exists {
		return domain.ErrDuplicate
	}
	record.Version = 0
	r.s.stockByID[record.ID] = *record
	r.s.stockIDByKey[key] = record.ID
	return nil
}

func (r *stockRecordRepo) UpdateCounters(_ context.Context, record *entity.StockRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.stockByID[record.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != record.Version {
		return domain.ErrConflict
	}
	if record.Available < 0 || record.Reserved < 0 {
		return domain.ErrConflict
	}
	record.Version++
	r.s.stockByID[record.ID] = *record
	return nil
}

func (r *stockRecordRepo) list(filter func(entity.StockRecord) bool) []*entity.StockRecord {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var list []*entity.StockRecord
	for _, rec := range r.s.stockByID {
		if filter(rec) {
			c := rec
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ProductID != list[j].ProductID {
			return list[i].ProductID < list[j].ProductID
		}
		return list[i].LocationID < list[j].LocationID
	})
	return list
}

func (r *stockRecordRepo) ListByProduct(_ context.Context, productID string) ([]*entity.StockRecord, error) {
	return r.list(func(rec entity.StockRecord) bool { return rec.ProductID == productID }), nil
}

func (r *stockRecordRepo) ListByLocation(_ context.Context, locationID string) ([]*entity.StockRecord, error) {
	return r.list(func(rec entity.StockRecord) bool { return rec.LocationID == locationID }), nil
}

func (r *stockRecordRepo) ListBelowThreshold(_ context.Context, threshold int64) ([]*entity.StockRecord, error) {
	return r.list(func(rec entity.StockRecord) bool { return rec.Available < threshold }), nil
}

func (r *stockRecordRepo) ListOutOfStock(_ context.Context) ([]*entity.StockRecord, error) {
	return r.list(func(rec entity.StockRecord) bool { return rec.Available == 0 }), nil
}

// ── ReservationRepository ─────────────────────────────────────────────────────

type reservationRepo struct{ s *Store }

var _ repository.ReservationRepository = (*reservationRepo)(nil)

func (r *reservationRepo) Create(_ context.Context, reservation *entity.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reservations[reservation.ID] = *reservation
	return nil
}

func (r *reservationRepo) GetByID(_ context.Context, id string) (*entity.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

// UpdateStatus reclamo condicional: solo transiciona si el estado actual es
// from, igual que el UPDATE ... WHERE status = $2 del adaptador PostgreSQL.
func (r *reservationRepo) UpdateStatus(_ context.Context, id, from, to string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok || res.Status != from {
		return domain.ErrConflict
	}
	res.Status = to
	r.s.reservations[id] = res
	return nil
}

func (r *reservationRepo) ListExpired(_ context.Context, now time.Time) ([]*entity.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var list []*entity.Reservation
	for _, res := range r.s.reservations {
		if res.Status == entity.ReservationStatusActive && now.After(res.ExpiresAt) {
			c := res
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ExpiresAt.Before(list[j].ExpiresAt) })
	return list, nil
}

func (r *reservationRepo) ListByReference(_ context.Context, reference string) ([]*entity.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var list []*entity.Reservation
	for _, res := range r.s.reservations {
		if res.Reference == reference {
			c := res
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

// ── LocationRepository ────────────────────────────────────────────────────────

type locationRepo struct{ s *Store }

var _ repository.LocationRepository = (*locationRepo)(nil)

func (r *locationRepo) Create(_ context.Context, location *entity.Location) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.locations[location.ID]; exists {
		return domain.ErrDuplicate
	}
	r.s.locations[location.ID] = *location
	return nil
}

func (r *locationRepo) GetByID(_ context.Context, id string) (*entity.Location, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	loc, ok := r.s.locations[id]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (r *locationRepo) List(_ context.Context) ([]*entity.Location, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var list []*entity.Location
	for _, loc := range r.s.locations {
		c := loc
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (r *locationRepo) Update(_ context.Context, location *entity.Location) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.locations[location.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.locations[location.ID] = *location
	return nil
}

// ── ProductRepository ─────────────────────────────────────────────────────────

type productRepo struct{ s *Store }

var _ repository.ProductRepository = (*productRepo)(nil)

func (r *productRepo) Create(_ context.Context, product *entity.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.products[product.ID]; exists {
		return domain.ErrDuplicate
	}
	r.s.products[product.ID] = *product
	return nil
}

func (r *productRepo) GetByID(_ context.Context, id string) (*entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *productRepo) List(_ context.Context) ([]*entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var list []*entity.Product
	for _, p := range r.s.products {
		c := p
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SKU < list[j].SKU })
	return list, nil
}

// ── TransferOrderRepository ───────────────────────────────────────────────────

type transferRepo struct{ s *Store }

var _ repository.TransferOrderRepository = (*transferRepo)(nil)

func copyOrder(o entity.TransferOrder) entity.TransferOrder {
	c := o
	c.Lines = append([]entity.TransferLine(nil), o.Lines...)
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

func (r *transferRepo) Create(_ context.Context, order *entity.TransferOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.transfers {
		if existing.Number == order.Number {
			return domain.ErrDuplicate
		}
	}
	r.s.transfers[order.ID] = copyOrder(*order)
	return nil
}

func (r *transferRepo) GetByID(_ context.Context, id string) (*entity.TransferOrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.transfers[id]
	if !ok {
		return nil, nil
	}
	c := copyOrder(o)
	return &c, nil
}

// Update condicionado al estado actual, igual que el adaptador PostgreSQL.
func (r *transferRepo) Update(_ context.Context, order *entity.TransferOrder, from entity.TransferStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.transfers[order.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status != from {
		return domain.ErrConflict
	}
	r.s.transfers[order.ID] = copyOrder(*order)
	return nil
}

func (r *transferRepo) ListByStatus(_ context.Context, status entity.TransferStatus, limit, offset int) ([]*entity.TransferOrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var list []*entity.TransferOrder
	for _, o := range r.s.transfers {
		if o.Status == status {
			c := copyOrder(o)
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].RequestDate.After(list[j].RequestDate) })
	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (r *transferRepo) NextNumber(_ context.Context, day time.Time) (string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var count int
	for _, o := range r.s.transfers {
		if sameDay(o.RequestDate, day) {
			count++
		}
	}
	return fmt.Sprintf("TRA-%s-%04d", day.Format("20060102"), count+1), nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// ── TxRunners ─────────────────────────────────────────────────────────────────

var (
	_ stock.TxRunner    = (*Store)(nil)
	_ transfer.TxRunner = (*Store)(nil)
)

// snapshot clona el estado mutable para poder restaurarlo si la transacción
// simulada falla.
func (s *Store) snapshot() (map[string]entity.StockRecord, map[string]string, map[string]entity.Reservation, map[string]entity.TransferOrder) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stockByID := make(map[string]entity.StockRecord, len(s.stockByID))
	for k, v := range s.stockByID {
		stockByID[k] = v
	}
	stockIDByKey := make(map[string]string, len(s.stockIDByKey))
	for k, v := range s.stockIDByKey {
		stockIDByKey[k] = v
	}
	reservations := make(map[string]entity.Reservation, len(s.reservations))
	for k, v := range s.reservations {
		reservations[k] = v
	}
	transfers := make(map[string]entity.TransferOrder, len(s.transfers))
	for k, v := range s.transfers {
		transfers[k] = copyOrder(v)
	}
	return stockByID, stockIDByKey, reservations, transfers
}

func (s *Store) restore(stockByID map[string]entity.StockRecord, stockIDByKey map[string]string, reservations map[string]entity.Reservation, transfers map[string]entity.TransferOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stockByID = stockByID
	s.stockIDByKey = stockIDByKey
	s.reservations = reservations
	s.transfers = transfers
}

// Run simula la transacción: serializa con txMu y restaura el snapshot si fn falla.
func (s *Store) Run(_ context.Context, fn func(
	stockRepo repository.StockRecordRepository,
	reservationRepo repository.ReservationRepository,
) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	stockByID, stockIDByKey, reservations, transfers := s.snapshot()
	if err := fn(s.StockRecords(), s.Reservations()); err != nil {
		s.restore(stockByID, stockIDByKey, reservations, transfers)
		return err
	}
	return nil
}

// RunTransfer análogo a Run con el repositorio de traslados.
func (s *Store) RunTransfer(_ context.Context, fn func(
	stockRepo repository.StockRecordRepository,
	transferRepo repository.TransferOrderRepository,
) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	stockByID, stockIDByKey, reservations, transfers := s.snapshot()
	if err := fn(s.StockRecords(), s.Transfers()); err != nil {
		s.restore(stockByID, stockIDByKey, reservations, transfers)
		return err
	}
	return nil
}
