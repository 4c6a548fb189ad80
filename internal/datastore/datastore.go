// Package datastore opens the relational store and migrates its schema.
package datastore

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/gudangguard/sentinel/internal/conf"
	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/errors"
)

// Open connects to the configured database and migrates all tables.
func Open(settings conf.DatabaseSettings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch settings.Type {
	case "sqlite":
		dialector = sqlite.Open(settings.SQLite.Path + "?_foreign_keys=ON&_busy_timeout=5000")
	case "mysql":
		dialector = mysql.Open(MySQLDSN(settings.MySQL))
	default:
		return nil, errors.Newf("unsupported database type %q", settings.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, Config())
	if err != nil {
		return nil, errors.New(fmt.Errorf("open %s database: %w", settings.Type, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if settings.Type == "sqlite" {
		// single writer avoids SQLITE_BUSY under concurrent side effects
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Config is the gorm configuration shared by the service and tests.
// Timestamps are stored in UTC so text comparisons in SQLite stay ordered.
func Config() *gorm.Config {
	return &gorm.Config{
		Logger:  gorm_logger.Default.LogMode(gorm_logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(entities.All()...); err != nil {
		return errors.New(fmt.Errorf("migrate schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// MySQLDSN builds a go-sql-driver DSN with time parsing enabled.
func MySQLDSN(s conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		s.Username, s.Password, s.Host, s.Port, s.Database)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// TableNames lists every table in migration order.
func TableNames() []string {
	all := entities.All()
	names := make([]string, 0, len(all))
	for _, e := range all {
		if t, ok := e.(interface{ TableName() string }); ok {
			names = append(names, t.TableName())
		}
	}
	return names
}
