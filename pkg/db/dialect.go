package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialector picks the gorm driver for the configured database type. Every DSN
// pins UTC so donation timestamps compare the same on all drivers.
func (c Config) Dialector() (gorm.Dialector, error) {
	switch c.Type {
	case "postgres", "":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			c.Host,
			c.User,
			c.Password,
			c.Name,
			c.Port,
			c.SSLMode,
		)), nil
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User,
			c.Password,
			c.Host,
			c.Port,
			c.Name,
		)), nil
	case "sqlite":
		return sqlite.Open(c.sqliteName()), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", c.Type)
	}
}
