// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yml"

const (
	RepositoryInMemory = "inmemory"
	RepositoryPostgres = "postgres"
	RepositorySQLite   = "sqlite"
	RepositoryMongo    = "mongo"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Repository  RepositoryConfig  `yaml:"repository"`
	Database    DatabaseConfig    `yaml:"database"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Mongo       MongoConfig       `yaml:"mongo"`
	Redis       RedisConfig       `yaml:"redis"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Logging     LoggingConfig     `yaml:"logging"`
	StatsWorker StatsWorkerConfig `yaml:"stats_worker"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"host"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type RepositoryConfig struct {
	Type string `yaml:"type"` // inmemory | postgres | sqlite | mongo
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int           `yaml:"max_connections"`
	MinConnections int           `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// RedisConfig - пустой Addr означает локальный лимитер в памяти процесса
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type LoggingConfig struct {
	Development bool `yaml:"development"`
}

type StatsWorkerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load читает YAML строго (неизвестные ключи - ошибка), затем переменные окружения через viper
// (пустая переменная не считается заданной), затем подставляет значения по умолчанию.
// Отсутствующий файл не ошибка.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	var cfg Config

	file, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("не могу открыть %s: %w", path, err)
	default:
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("ошибка парсинга %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envBindings - ключ конфигурации и переменные окружения, которые его переопределяют
var envBindings = map[string][]string{
	"server.host":                    {"TASKS_HOST"},
	"server.port":                    {"TASKS_PORT"},
	"server.cors_origins":            {"TASKS_CORS_ORIGINS"},
	"repository.type":                {"TASKS_REPOSITORY"},
	"database.url":                   {"DATABASE_URL"},
	"sqlite.path":                    {"TASKS_SQLITE_PATH"},
	"mongo.uri":                      {"MONGO_URI"},
	"mongo.database":                 {"TASKS_MONGO_DATABASE"},
	"redis.addr":                     {"REDIS_ADDR"},
	"redis.password":                 {"REDIS_PASSWORD"},
	"rate_limit.requests_per_minute": {"TASKS_RATE_LIMIT_RPM"},
	"logging.development":            {"TASKS_LOG_DEVELOPMENT"},
	"stats_worker.interval":          {"TASKS_STATS_INTERVAL"},
}

// applyEnv накладывает на уже прочитанный файл только заданные переменные окружения
func (c *Config) applyEnv() error {
	v := viper.New()
	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("привязка %s: %w", key, err)
		}
	}

	err := v.Unmarshal(c, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToListHook,
		)
	})
	if err != nil {
		return fmt.Errorf("переменные окружения: %w", err)
	}
	return nil
}

// stringToListHook - список через запятую, как в TASKS_CORS_ORIGINS
var stringToListHook mapstructure.DecodeHookFuncType = func(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}
	return splitList(reflect.ValueOf(data).String()), nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "5000"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Repository.Type == "" {
		c.Repository.Type = RepositoryInMemory
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 10
	}
	if c.Database.MinConnections == 0 {
		c.Database.MinConnections = 2
	}
	if c.Database.IdleTimeout == 0 {
		c.Database.IdleTimeout = 5 * time.Minute
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "tasks.db"
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "taskmanager"
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 100
	}
	if c.StatsWorker.Interval == 0 {
		c.StatsWorker.Interval = time.Minute
	}
}

func (c *Config) Validate() error {
	var errs []error

	types := []string{RepositoryInMemory, RepositoryPostgres, RepositorySQLite, RepositoryMongo}
	if !slices.Contains(types, c.Repository.Type) {
		errs = append(errs, fmt.Errorf("repository.type: неизвестный тип %q, допустимы %s",
			c.Repository.Type, strings.Join(types, ", ")))
	}
	if c.Repository.Type == RepositoryPostgres && c.Database.URL == "" {
		errs = append(errs, errors.New("database.url обязателен для postgres"))
	}
	if c.Database.MinConnections > c.Database.MaxConnections {
		errs = append(errs, errors.New("database.min_connections больше max_connections"))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_minute должен быть положительным"))
	}
	if c.Server.RequestTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("таймауты сервера должны быть положительными"))
	}
	if c.StatsWorker.Interval < 0 {
		errs = append(errs, errors.New("stats_worker.interval должен быть положительным"))
	}

	return errors.Join(errs...)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
