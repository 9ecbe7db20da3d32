package source

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds the MySQL connection settings.
type Config struct {
	// DSN is a full go-sql-driver DSN. When set, the discrete fields below are ignored.
	DSN string

	// Host is the MySQL hostname (default: localhost).
	Host string

	// Port is the MySQL port (default: 3306).
	Port int

	// User is the MySQL user name.
	User string

	// Password is the MySQL password.
	Password string

	// Database is the schema holding the estoque and vendas tables.
	Database string

	// MaxOpenConns caps the pool size (0 = driver default).
	MaxOpenConns int

	// MaxIdleConns caps idle pooled connections (0 = driver default).
	MaxIdleConns int

	// ConnMaxLifetime recycles pooled connections after this age (0 = never).
	ConnMaxLifetime time.Duration
}

// ConfigFromEnv reads SOURCE_DSN or the MYSQL_* variables.
func ConfigFromEnv() Config {
	port, err := strconv.Atoi(os.Getenv("MYSQL_PORT"))
	if err != nil || port <= 0 {
		port = 3306
	}
	return Config{
		DSN:             os.Getenv("SOURCE_DSN"),
		Host:            envOr("MYSQL_HOST", "localhost"),
		Port:            port,
		User:            envOr("MYSQL_USER", "user"),
		Password:        os.Getenv("MYSQL_PASSWORD"),
		Database:        envOr("MYSQL_DATABASE", "ragdb"),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// BuildDSN returns cfg.DSN when set, otherwise a DSN assembled from the
// discrete fields with parseTime enabled so DATETIME columns scan into time.Time.
func BuildDSN(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// Open creates a gorm handle for MySQL without contacting the server, so
// the service can start while the database is still coming up.
func Open(cfg Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       BuildDSN(cfg),
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("source: open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("source: get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("source: get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
