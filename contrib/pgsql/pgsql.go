// Package pgsql provides a PostgreSQL factory and the "pgsql" module.
//
// Register both into the application catalog, then list the factory before
// the modules that need a database:
//
//	catalog.MustRegisterFactory(pgsql.FactoryRef, pgsql.Factory)
//	catalog.MustRegisterModule(pgsql.ModuleRef, pgsql.New)
//
//	app.Build([]string{pgsql.ModuleRef}, pgsql.FactoryRef)
package pgsql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/junioryono/keel"
)

// Container key holding the *sqlx.DB.
const KeyDB = "db"

// Catalog references.
const (
	FactoryRef = "keel.pgsql.factory"
	ModuleRef  = "keel.pgsql"
)

// Configuration keys.
const (
	CfgDBName     = "db_name"
	CfgDBHost     = "db_host"
	CfgDBPort     = "db_port"
	CfgDBUser     = "db_user"
	CfgDBPassword = "db_password"
	CfgDBSSL      = "db_ssl"
)

const (
	driverName  = "postgres"
	pingTimeout = 5 * time.Second
)

// DSN builds a lib/pq connection string from cfg.
func DSN(cfg *keel.Config) string {
	sslmode := "disable"
	if cfg.Bool(CfgDBSSL, false) {
		sslmode = "require"
	}

	parts := []string{
		"host=" + quote(cfg.String(CfgDBHost, "localhost")),
		fmt.Sprintf("port=%d", cfg.Int(CfgDBPort, 5432)),
		"user=" + quote(cfg.String(CfgDBUser, "postgres")),
		"dbname=" + quote(cfg.String(CfgDBName, "postgres")),
		"sslmode=" + sslmode,
	}
	if password := cfg.String(CfgDBPassword, ""); password != "" {
		parts = append(parts, "password="+quote(password))
	}
	return strings.Join(parts, " ")
}

// quote escapes a connection string value when it needs quoting.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Factory opens the database described by the container config and stores
// it under KeyDB. The application closes it on shutdown.
func Factory(c *keel.Container) error {
	cfg, err := keel.Get[*keel.Config](c, keel.KeyConfig)
	if err != nil {
		return err
	}

	db, err := Open(context.Background(), DSN(cfg))
	if err != nil {
		return fmt.Errorf("pgsql: %w", err)
	}

	c.Add(KeyDB, db)
	return nil
}
