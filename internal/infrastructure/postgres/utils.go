package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// sqlState extrae el código SQLSTATE de un error de PostgreSQL ("" si no aplica).
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUniqueViolation violación de constraint único (23505): registro duplicado.
func isUniqueViolation(err error) bool {
	return sqlState(err) == "23505"
}

// isForeignKeyViolation violación de clave foránea (23503): la fila referencia
// un producto o una ubicación que no existe.
func isForeignKeyViolation(err error) bool {
	return sqlState(err) == "23503"
}
