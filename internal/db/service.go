// File: internal/db/service.go

package db

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq" // PostgreSQL driver

	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

// DBServiceImpl implements the DBService interface on PostgreSQL
type DBServiceImpl struct {
	db *sql.DB
}

type DBOperations interface {
	Open(driverName, dataSourceName string) (*sql.DB, error)
	RunMigrations(db *sql.DB, sourceURL string) error
}

// Config holds the connection settings for the PostgreSQL store.
type Config struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MigrationsPath string
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslmode)
}

// PostgresOperations is the production DBOperations.
type PostgresOperations struct{}

func (PostgresOperations) Open(driverName, dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

func (PostgresOperations) RunMigrations(db *sql.DB, sourceURL string) error {
	return RunMigrations(db, sourceURL)
}

// NewDBService opens the database, checks it is reachable and brings the
// schema up to date.
func NewDBService(ops DBOperations, cfg Config) (DBService, error) {
	db, err := ops.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "open connection", Err: err}
	}

	if err := db.Ping(); err != nil {
		return nil, &errors.DatabaseError{Operation: "ping database", Err: err}
	}

	// Run migrations
	if err := ops.RunMigrations(db, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.Info("Connected to PostgreSQL at %s:%s/%s", cfg.Host, cfg.Port, cfg.Name)
	return &DBServiceImpl{db: db}, nil
}

// RunMigrations runs the database migrations found at sourceURL.
func RunMigrations(db *sql.DB, sourceURL string) error {
	if sourceURL == "" {
		sourceURL = "file://migrations"
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return &errors.DatabaseError{Operation: "could not create the postgres driver", Err: err}
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return &errors.DatabaseError{Operation: "could not create migrate instance", Err: err}
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return &errors.DatabaseError{Operation: "an error occurred while syncing the database", Err: err}
	}

	version, dirty, _ := m.Version()
	logger.Info("Database schema at version %d (dirty=%t)", version, dirty)
	return nil
}

func (s *DBServiceImpl) Close() error {
	return s.db.Close()
}

// uniqueViolation returns the constraint name when err is a unique violation.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

// foreignKeyViolation returns the constraint name when err is a foreign key violation.
func foreignKeyViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == "23503" {
		return pqErr.Constraint, true
	}
	return "", false
}

func fromNullTime(nt sql.NullTime) time.Time {
	if nt.Valid {
		return nt.Time
	}
	return time.Time{}
}
