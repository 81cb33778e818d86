package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("recurso duplicado")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrInsufficientStock = errors.New("stock insuficiente")
)

// StockShortageError detalla un faltante de stock (disponible vs requerido)
// para construir mensajes legibles hacia el caller externo.
type StockShortageError struct {
	ProductID  string
	LocationID string
	Required   int64
	Available  int64
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("stock insuficiente para producto %s en ubicación %s: disponible %d, requerido %d",
		e.ProductID, e.LocationID, e.Available, e.Required)
}

// Unwrap permite detectar el faltante con errors.Is(err, ErrInsufficientStock).
func (e *StockShortageError) Unwrap() error { return ErrInsufficientStock }
