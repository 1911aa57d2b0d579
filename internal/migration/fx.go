package migration

import (
	"strings"

	"github.com/smallbiznis/marketledger/internal/store/relational"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply brings the schema up to date. Postgres runs the versioned SQL
// migrations; other dialects are created from the persistence models.
func Apply(conn *gorm.DB, log *zap.Logger) error {
	dialect := strings.ToLower(conn.Dialector.Name())
	if dialect != "postgres" {
		log.Info("auto-migrating schema", zap.String("dialect", dialect))
		return relational.AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	version, err := RunMigrations(sqlDB)
	if err != nil {
		return err
	}
	log.Info("schema migrations applied",
		zap.String("dialect", dialect),
		zap.Uint("schema_version", version),
	)
	return nil
}
