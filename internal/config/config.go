package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" env-default:":8081"`
	GRPCAddr string `env:"GRPC_ADDR" env-default:":50052"`
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Locker   LockerConfig
	Shipping ShippingConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Host         string `env:"DB_HOST" env-default:"localhost"`
	Port         int    `env:"DB_PORT" env-default:"5432"`
	User         string `env:"DB_USER" env-default:"postgres"`
	Password     string `env:"DB_PASSWORD" env-default:"postgres"`
	DBName       string `env:"DB_NAME" env-default:"parcelhub"`
	SSLMode      string `env:"DB_SSLMODE" env-default:"disable"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
}

// DSN renders the lib/pq keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Host     string        `env:"REDIS_HOST" env-default:"localhost"`
	Port     int           `env:"REDIS_PORT" env-default:"6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `env:"REDIS_TTL" env-default:"10m"`
	RouteTTL time.Duration `env:"REDIS_ROUTE_TTL" env-default:"1m"`
	Enabled  bool          `env:"REDIS_ENABLED" env-default:"true"`
}

type KafkaConfig struct {
	Brokers           []string `env:"KAFKA_BROKERS" env-separator:","`
	NotificationTopic string   `env:"KAFKA_NOTIFICATION_TOPIC" env-default:"notifications"`
}

type LockerConfig struct {
	PasswordTTL time.Duration `env:"LOCKER_PASSWORD_TTL" env-default:"24h"`
	CleanupSpec string        `env:"LOCKER_CLEANUP_SPEC" env-default:"@every 10m"`
	KioskKey    string        `env:"LOCKER_KIOSK_KEY"`
}

type ShippingConfig struct {
	FreeWeightKg        float64 `env:"SHIPPING_FREE_WEIGHT_KG" env-default:"5"`
	ExtraKgPrice        string  `env:"SHIPPING_EXTRA_KG_PRICE" env-default:"50"`
	DefaultItemWeightKg float64 `env:"SHIPPING_DEFAULT_ITEM_WEIGHT_KG" env-default:"0.5"`
	DefaultDesktopPrice string  `env:"SHIPPING_DEFAULT_DESKTOP_PRICE" env-default:"400"`
	DefaultHomePrice    string  `env:"SHIPPING_DEFAULT_HOME_PRICE" env-default:"600"`
	DefaultReturnPrice  string  `env:"SHIPPING_DEFAULT_RETURN_PRICE" env-default:"250"`
	LocalDesktopPrice   string  `env:"SHIPPING_LOCAL_DESKTOP_PRICE" env-default:"250"`
	LocalHomePrice      string  `env:"SHIPPING_LOCAL_HOME_PRICE" env-default:"400"`
}

type LogConfig struct {
	Level       string `env:"LOG_LEVEL" env-default:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" env-default:"false"`
}

func Load() (*Config, error) {
	if os.Getenv("APP_ENV") == "dev" {
		// a missing .env is fine in dev, the real environment still applies
		_ = godotenv.Load()
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "error reading environment")
	}
	return &cfg, nil
}
