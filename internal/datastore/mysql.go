package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/dwang48/steam-scraper/internal/conf"
	"github.com/dwang48/steam-scraper/internal/errors"
)

// MySQLStore implements the store over a MySQL server.
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	cfg := settings.Output.MySQL
	if cfg.Host == "" || cfg.Database == "" || cfg.Username == "" {
		return errors.Newf("mysql output enabled but host, database, or username is empty").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// Open sets up the MySQL database connection and runs migrations.
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	cfg := store.Settings.Output.MySQL
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger(store.Settings.Debug)})
	if err != nil {
		return errors.Newf("opening mysql database: %w", err).
			Category(errors.CategoryDatabase).
			Context("host", cfg.Host).
			Context("database", cfg.Database).
			Build()
	}

	store.DB = db
	connInfo := fmt.Sprintf("%s@%s/%s", cfg.Username, cfg.Host, cfg.Database)
	return performAutoMigration(db, store.Settings.Debug, "MySQL", connInfo)
}
