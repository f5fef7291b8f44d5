package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"ledger-service/internal/config"
)

const (
	errUnknownDatabase = 1049
	pingTimeout        = 10 * time.Second
	utcTimeZone        = "'+00:00'"
)

// NewConnection opens the ledger database, creating the schema on first start.
// Every session runs in UTC whatever DB_PARAMS says, because rebuild watermarks are
// compared against server-filled timestamps.
func NewConnection(cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	dsn, err := ledgerDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := open(dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	err = ping(db)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errUnknownDatabase {
		db.Close()
		log.Warn().Str("database", dsn.DBName).Msg("Database does not exist, attempting to create it")

		if err := createDatabase(dsn); err != nil {
			return nil, err
		}
		log.Info().Str("database", dsn.DBName).Msg("Created database")

		if db, err = open(dsn); err != nil {
			return nil, fmt.Errorf("error connecting to new database: %w", err)
		}
		if err = ping(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("error verifying connection to new database: %w", err)
		}
	} else if err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Info().Str("addr", dsn.Addr).Str("database", dsn.DBName).Msg("Connected to MySQL database")
	return db, nil
}

// ledgerDSN parses the configured DSN and pins the session to UTC
func ledgerDSN(cfg *config.Config) (*mysql.Config, error) {
	dsn, err := mysql.ParseDSN(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("invalid database settings: %w", err)
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	if dsn.Params == nil {
		dsn.Params = map[string]string{}
	}
	dsn.Params["time_zone"] = utcTimeZone
	return dsn, nil
}

// serverDSN is dsn without a default schema, for statements that run before it exists
func serverDSN(dsn *mysql.Config) *mysql.Config {
	root := dsn.Clone()
	root.DBName = ""
	root.MultiStatements = false
	return root
}

func createDatabase(dsn *mysql.Config) error {
	rootDB, err := open(serverDSN(dsn))
	if err != nil {
		return fmt.Errorf("error connecting to MySQL root: %w", err)
	}
	defer rootDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	stmt := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", dsn.DBName)
	if _, err := rootDB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("error creating database: %w", err)
	}
	return nil
}

func open(dsn *mysql.Config) (*sql.DB, error) {
	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}
