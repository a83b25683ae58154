package database

import (
	gerrors "github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"compensation-service/internal/config"
	"compensation-service/internal/models"
)

// Dialector picks the gorm driver for the configured DB_DRIVER.
func Dialector(opts config.DatabaseOptions) (gorm.Dialector, error) {
	switch opts.Driver {
	case "mysql":
		return mysql.Open(opts.DSN()), nil
	case "postgres":
		return postgres.Open(opts.DSN()), nil
	}
	return nil, gerrors.Errorf("unsupported DB_DRIVER %q", opts.Driver)
}

// Connect opens the database with duplicate key translation enabled, which the
// repository relies on to report lost races.
func Connect(opts config.DatabaseOptions, log *logrus.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(opts)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, gerrors.Wrap(err, "connect to database")
	}
	log.WithFields(logrus.Fields{"driver": opts.Driver, "host": opts.Host, "name": opts.Name}).Info("database connection established")
	return db, nil
}

// Models lists every table the service owns.
func Models() []interface{} {
	return []interface{}{
		&models.Member{},
		&models.Tier{},
		&models.MatrixSlot{},
		&models.Investment{},
		&models.Commission{},
		&models.CommissionReversal{},
		&models.WithdrawalRequest{},
		&models.TierHistoryEntry{},
		&models.Wallet{},
		&models.Transaction{},
	}
}

func Migrate(db *gorm.DB, log *logrus.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return gerrors.Wrap(err, "migrate database")
	}
	log.Info("database migration completed")
	return nil
}
