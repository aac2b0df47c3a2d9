// pool.go builds the *sqlx.DB connection handle this package's operations
// run over. It uses pgx's database/sql-compatible driver (stdlib) so the
// same handle serves both pgx's connection-pooling behavior and sqlx's
// ergonomic Select/Get scans.
package structured

import (
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/clarity-digital-twin/clarity-backend/internal/config"
)

// NewDB opens a connection pool against cfg and configures its limits.
func NewDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	return db, nil
}
