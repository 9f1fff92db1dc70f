// Package postgresql реализует хранилище учётных записей, покупок, журнала
// пробных периодов и реестра уведомлений на PostgreSQL (драйвер pgx через database/sql).
//
// Схема создаётся миграциями из каталога migrations, см. пакет internal/migrations.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New открывает соединение с PostgreSQL и проверяет его доступность.
func New(ctx context.Context, storageConnectionString string) (*Storage, error) {
	const op = "storage.postgresql.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{DB: db}, nil
}

// CheckDatabaseReady проверяет, что миграции применены.
func CheckDatabaseReady(ctx context.Context, storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'sent_trial_notifications'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("required tables missing or query error: %w", err)
	}
	if !exists {
		return fmt.Errorf("required table sent_trial_notifications missing")
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Storage) Close(_ context.Context) error {
	return s.DB.Close()
}

// Ping проверяет доступность базы данных.
func (s *Storage) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
