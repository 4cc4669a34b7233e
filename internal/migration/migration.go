package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/hightide/internal/audit/domain"
	campaigndomain "github.com/smallbiznis/hightide/internal/campaign/domain"
	commissiondomain "github.com/smallbiznis/hightide/internal/commission/domain"
	customerdomain "github.com/smallbiznis/hightide/internal/customer/domain"
	notificationdomain "github.com/smallbiznis/hightide/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/hightide/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
	trackingdomain "github.com/smallbiznis/hightide/internal/tracking/domain"
	pkgdb "github.com/smallbiznis/hightide/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table owned by the service, parents first.
func Models() []any {
	return []any{
		&affiliatedomain.Affiliate{},
		&affiliatedomain.PayoutMethod{},
		&campaigndomain.Campaign{},
		&campaigndomain.Event{},
		&trackingdomain.Click{},
		&trackingdomain.Lead{},
		&customerdomain.Customer{},
		&customerdomain.Event{},
		&customerdomain.CountedInvoice{},
		&payoutdomain.Payout{},
		&commissiondomain.Commission{},
		&notificationdomain.Notification{},
		&paymentdomain.EventRecord{},
		&apikeydomain.APIKey{},
		&auditdomain.AuditLog{},
	}
}

// Apply brings the schema up to date. Postgres runs the embedded SQL
// migrations; sqlite and mysql local runs fall back to AutoMigrate.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if !pkgdb.IsPostgres(conn) {
		return conn.AutoMigrate(Models()...)
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

	src, err := newSource()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}

func newSource() (source.Driver, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return src, nil
}
