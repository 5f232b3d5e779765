package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/donara/internal/audit/domain"
	authdomain "github.com/smallbiznis/donara/internal/auth/domain"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	orphanagedomain "github.com/smallbiznis/donara/internal/orphanage/domain"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	userdomain "github.com/smallbiznis/donara/internal/user/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql/postgres"

//go:embed sql/postgres/*.sql
var embeddedMigrations embed.FS

// Models lists every table the service owns. Dialects without SQL migrations
// are created from these.
func Models() []any {
	return []any{
		&donationdomain.Donation{},
		&paymentdomain.NotificationRecord{},
		&userdomain.User{},
		&orphanagedomain.Orphanage{},
		&authdomain.Admin{},
		&authdomain.Session{},
		&auditdomain.AuditLog{},
	}
}

// Apply brings the schema up to date. Postgres uses the versioned SQL files;
// other dialects fall back to AutoMigrate.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}
