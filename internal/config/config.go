// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Транспорты доставки уведомлений.
const (
	TransportInbox    = "inbox"
	TransportRabbitMQ = "rabbitmq"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string  `yaml:"env" env:"ENV" env-default:"local"`
	Storage         Storage `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	HTTPServer      `yaml:"http_server"`
	JWTToken        `yaml:"jwttoken"`
	RabbitMQ        RabbitMQ      `yaml:"rabbitmq"`
	Notifications   Notifications `yaml:"notifications"`
	Trial           Trial         `yaml:"trial"`
	Purchase        Purchase      `yaml:"purchase"`
}

// Storage настройки хранилища учётных записей и покупок
type Storage struct {
	Driver           string  `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	ConnectionString string  `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath   string  `yaml:"migrations_path" env-default:"./migrations"`
	Mongo            MongoDB `yaml:"mongo"`
}

// MongoDB настройки подключения к MongoDB
type MongoDB struct {
	URL             string        `yaml:"url" env:"MONGODB_URL"`
	Database        string        `yaml:"database" env-default:"premium"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env-default:"10s"`
	MaxPoolSize     uint64        `yaml:"max_pool_size" env-default:"100"`
	MinPoolSize     uint64        `yaml:"min_pool_size" env-default:"1"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env-default:"300s"`
	RetryAttempts   int           `yaml:"retry_attempts" env-default:"3"`
	RetryInterval   time.Duration `yaml:"retry_interval" env-default:"5s"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"10"`
	RateBurst   int           `yaml:"rate_burst" env-default:"20"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis   string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password       string        `yaml:"password" env:"REDIS_PASSWORD"`
	User           string        `yaml:"user"`
	DB             int           `yaml:"db"`
	MaxRetries     int           `yaml:"max_retries"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	TimeoutRedis   time.Duration `yaml:"timeoutredis"`
	AccountMemoTTL time.Duration `yaml:"account_memo_ttl" env-default:"24h"`
	StatsTTL       time.Duration `yaml:"stats_ttl" env-default:"1m"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// RabbitMQ настройки брокера сообщений
type RabbitMQ struct {
	URL           string        `yaml:"url" env:"RABBITMQ_URL"`
	Exchange      string        `yaml:"exchange" env-default:"notifications"`
	Queue         string        `yaml:"queue" env-default:"trial_notifications"`
	RoutingKey    string        `yaml:"routing_key" env-default:"trial"`
	RetryAttempts int           `yaml:"retry_attempts" env-default:"10"`
	RetryInterval time.Duration `yaml:"retry_interval" env-default:"3s"`
}

// Notifications настройки доставки уведомлений о пробном периоде
type Notifications struct {
	Transport  string `yaml:"transport" env:"NOTIFICATIONS_TRANSPORT" env-default:"inbox"`
	Icon       string `yaml:"icon" env-default:"gift"`
	CreatedBy  string `yaml:"created_by" env-default:"system"`
	InboxLimit int    `yaml:"inbox_limit" env-default:"50"`
}

// Trial настройки пробного периода и планировщика уведомлений
type Trial struct {
	DurationDays  int           `yaml:"duration_days" env-default:"7"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"1h"`
}

// Purchase настройки обработки покупок
type Purchase struct {
	MonthlyDays  int `yaml:"monthly_days" env-default:"30"`
	YearlyDays   int `yaml:"yearly_days" env-default:"365"`
	HistoryLimit int `yaml:"history_limit" env-default:"50"`
}

// Load читает конфиг из файла configPath, переменные окружения имеют приоритет.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига из файла, указанного в CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.ConnectionString == "" {
			return errors.New("storage.connection_string is required for postgres")
		}
	case DriverMongo:
		if c.Storage.Mongo.URL == "" {
			return errors.New("storage.mongo.url is required for mongo")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Notifications.Transport {
	case TransportInbox:
	case TransportRabbitMQ:
		if c.RabbitMQ.URL == "" {
			return errors.New("rabbitmq.url is required for rabbitmq transport")
		}
	default:
		return fmt.Errorf("unknown notifications transport %q", c.Notifications.Transport)
	}

	if c.Trial.DurationDays <= 0 {
		return errors.New("trial.duration_days must be positive")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  MigrationsPath: %s\n"+
			"  MongoDatabase: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Notifications:\n"+
			"  Transport: %s\n"+
			"Trial:\n"+
			"  DurationDays: %d\n"+
			"  SweepInterval: %s\n",
		c.Env,
		c.Storage.Driver,
		c.Storage.MigrationsPath,
		c.Storage.Mongo.Database,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.Notifications.Transport,
		c.Trial.DurationDays,
		c.Trial.SweepInterval,
	)
}
