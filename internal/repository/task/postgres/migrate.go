package postgres

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"taskManager/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func (s *Storage) Migrate() error {
	logger.Info("Repository: Применение миграций")
	return runMigrations(s.connString, func(m *migrate.Migrate) error { return m.Up() })
}

func (s *Storage) Down() error {
	logger.Info("Repository: Откат миграций")
	return runMigrations(s.connString, func(m *migrate.Migrate) error { return m.Down() })
}

// Migrate применяет миграции без открытия пула: используется командой migrate
func Migrate(connString string) error {
	return runMigrations(connString, func(m *migrate.Migrate) error { return m.Up() })
}

func Rollback(connString string) error {
	return runMigrations(connString, func(m *migrate.Migrate) error { return m.Down() })
}

func runMigrations(connString string, step func(*migrate.Migrate) error) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(connString))
	if err != nil {
		logger.Error("Repository: Не удалось подготовить миграции", err)
		return fmt.Errorf("подготовка миграций: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("Repository: Ошибка закрытия мигратора", zap.NamedError("source", srcErr), zap.NamedError("db", dbErr))
		}
	}()

	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("Repository: Ошибка миграции", err)
		return fmt.Errorf("миграция: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("версия схемы: %w", err)
	}
	logger.Info("Repository: Миграции применены", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// migrateURL переводит строку подключения на схему драйвера pgx/v5 для golang-migrate
func migrateURL(connString string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix)
		}
	}
	return connString
}
