package inventory

import (
	"fmt"
	"sort"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// Allocate decide cuánto tomar de cada ubicación para cubrir la cantidad
// solicitada (servicio de dominio, cálculo puro sin efectos):
//
//  1. Solo participan registros con disponible > 0.
//  2. Si hay ubicación preferida con stock, se toma primero min(restante, disponible).
//  3. El resto se consume en orden de mayor disponible; empates por LocationID
//     para que el resultado sea determinista.
//
// Invariante: sum(Entries.Quantity) + Unallocated == quantity.
// No muta estado: el caller debe reservar por separado cada entrada.
func Allocate(records []*entity.StockRecord, quantity int64, preferredLocationID string) entity.AllocationResult {
	result := entity.AllocationResult{Unallocated: quantity}
	if quantity <= 0 {
		result.Message = "cantidad solicitada inválida"
		return result
	}

	candidates := make([]*entity.StockRecord, 0, len(records))
	for _, r := range records {
		if r != nil && r.Available > 0 {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		result.Message = "sin stock disponible en ninguna ubicación"
		return result
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Available != candidates[j].Available {
			return candidates[i].Available > candidates[j].Available
		}
		return candidates[i].LocationID < candidates[j].LocationID
	})

	// Ubicación preferida primero, si existe y tiene disponible.
	if preferredLocationID != "" {
		for i, c := range candidates {
			if c.LocationID == preferredLocationID {
				candidates = append([]*entity.StockRecord{c}, append(candidates[:i:i], candidates[i+1:]...)...)
				break
			}
		}
	}

	remaining := quantity
	for _, c := range candidates {
		if remaining == 0 {
			break
		}
		take := remaining
		if c.Available < take {
			take = c.Available
		}
		result.Entries = append(result.Entries, entity.AllocationEntry{
			LocationID:   c.LocationID,
			LocationName: c.LocationName,
			Quantity:     take,
			Available:    c.Available,
		})
		remaining -= take
	}

	result.Unallocated = remaining
	result.Success = remaining == 0
	if result.Success {
		result.Message = fmt.Sprintf("cantidad asignada en %d ubicación(es)", len(result.Entries))
	} else {
		result.Message = fmt.Sprintf("asignación parcial: faltan %d de %d unidades", remaining, quantity)
	}
	return result
}
