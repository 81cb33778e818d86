package entity

// AllocationEntry es la porción propuesta a tomar de una ubicación.
// Available registra el disponible al momento del cálculo (solo informativo).
type AllocationEntry struct {
	LocationID   string
	LocationName string
	Quantity     int64
	Available    int64
}

// AllocationResult es el resultado transitorio del motor de asignación.
// No se persiste: el caller debe reservar por separado cada entrada.
// Invariante: sum(Entries.Quantity) + Unallocated == cantidad solicitada.
type AllocationResult struct {
	Success     bool
	Entries     []AllocationEntry
	Unallocated int64
	Message     string
}

// Allocated devuelve el total asignado entre todas las ubicaciones.
func (r *AllocationResult) Allocated() int64 {
	var total int64
	for _, e := range r.Entries {
		total += e.Quantity
	}
	return total
}
