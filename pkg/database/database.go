package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	applog "ottoseguridad_backend/pkg/logger"
)

var DB *gorm.DB

type PoolConfig struct {
	MaxIdleConns int
	MaxOpenConns int
}

func InitDB(dsn string, pool PoolConfig) error {
	pgConfig := postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // pgbouncer in transaction mode rejects prepared statements
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		PrepareStmt:    false,
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.New(pgConfig), gormConfig)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get database instance: %w", err)
	}

	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}

	DB = db
	applog.Log.Info("database connected")
	return nil
}

// Use installs an already opened connection, e.g. an in-memory SQLite in tests.
func Use(db *gorm.DB) {
	DB = db
}

func GetDB() *gorm.DB {
	return DB
}

func MigrateDatabase(models ...interface{}) error {
	for _, model := range models {
		if !DB.Migrator().HasTable(model) {
			if err := DB.Migrator().CreateTable(model); err != nil {
				return fmt.Errorf("create table for %T: %w", model, err)
			}
			applog.Log.Debug("created table", "model", fmt.Sprintf("%T", model))
		} else {
			if err := DB.Migrator().AutoMigrate(model); err != nil {
				return fmt.Errorf("migrate %T: %w", model, err)
			}
			applog.Log.Debug("updated table", "model", fmt.Sprintf("%T", model))
		}
	}
	return nil
}
