package entity

import "time"

// Tipos de ubicación: bodega o tienda comparten la misma forma de stock.
type LocationKind string

const (
	LocationKindWarehouse LocationKind = "warehouse"
	LocationKindShop      LocationKind = "shop"
)

// Valid indica si el tipo es uno de los conocidos.
func (k LocationKind) Valid() bool {
	return k == LocationKindWarehouse || k == LocationKindShop
}

// Location representa una ubicación física (bodega o tienda) donde se almacena inventario.
type Location struct {
	ID        string
	Kind      LocationKind
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LocationRef referencia desnormalizada a una ubicación dentro de otro agregado
// (ej. orden de traslado).
type LocationRef struct {
	ID   string
	Kind LocationKind
	Name string
}

// Ref construye la referencia desnormalizada de la ubicación.
func (l *Location) Ref() LocationRef {
	return LocationRef{ID: l.ID, Kind: l.Kind, Name: l.Name}
}
