package entity

import "time"

// Estados del ciclo de vida de una orden de traslado.
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "pending"
	TransferStatusInProgress TransferStatus = "in_progress"
	TransferStatusCompleted  TransferStatus = "completed"
	TransferStatusCancelled  TransferStatus = "cancelled"
)

// TransferLine es un renglón de la orden: cantidad solicitada de un producto.
// Transferred se fija igual a Requested al completar la orden.
type TransferLine struct {
	ProductID   string
	ProductName string
	Requested   int64
	Transferred int64
}

// TransferOrder es una solicitud de mover cantidades de productos entre dos
// ubicaciones, con numeración secuencial por día y su propio ciclo de
// aprobación/ejecución.
type TransferOrder struct {
	ID          string
	Number      string // secuencial por día, ej. TRA-20240115-0003
	From        LocationRef
	To          LocationRef
	Lines       []TransferLine
	Status      TransferStatus
	ApprovedBy  string
	RequestDate time.Time
	CompletedAt *time.Time
}

// CanCancel indica si la orden aún admite cancelación (cualquier estado no completado).
func (t *TransferOrder) CanCancel() bool {
	return t.Status != TransferStatusCompleted
}
