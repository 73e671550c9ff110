package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-capacity-booking/internal/pkg/logger"
)

// ErrDirtyMigration は前回のマイグレーションが途中で失敗している
var ErrDirtyMigration = errors.New("マイグレーションが dirty 状態です。手動で修復してください")

// RunMigrations は migrationsPath 以下の SQL を適用する。適用済みなら何もしない
func RunMigrations(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("マイグレーションドライバー作成エラー: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("マイグレーションインスタンス作成エラー: %w", err)
	}

	if _, dirty, err := m.Version(); err == nil && dirty {
		return ErrDirtyMigration
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("マイグレーション実行エラー: %w", err)
	}

	if version, _, err := m.Version(); err == nil {
		logger.Debug("スキーマバージョン", zap.Uint("version", version))
	}
	return nil
}
