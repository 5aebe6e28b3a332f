package storage

import (
	"fmt"
	"time"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	// DriverMemory keeps everything in process memory, data is lost on exit
	DriverMemory = "memory"
)

// Config defines fields used for parsing storage settings from environment variables
type Config struct {
	Driver         string        `env:"STORAGE_DRIVER" envDefault:"mongo"`
	ConnectTimeout time.Duration `env:"STORAGE_CONNECT_TIMEOUT" envDefault:"30s"`

	MongoURI      string `env:"MONGO_DB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DB_NAME" envDefault:"marketplace"`

	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD"`
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     uint16 `env:"POSTGRES_PORT" envDefault:"5432"`
	DBName   string `env:"POSTGRES_DB" envDefault:"marketplace"`
}

// DSN returns the PostgreSQL connection string
func (c Config) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_DB_URI is required for driver %q", c.Driver)
		}
	case DriverPostgres:
		if c.Host == "" || c.DBName == "" {
			return fmt.Errorf("POSTGRES_HOST and POSTGRES_DB are required for driver %q", c.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
	return nil
}
