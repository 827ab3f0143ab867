package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"taskManager/internal/config"
	"taskManager/internal/handlers"
	"taskManager/internal/logger"
	"taskManager/internal/middleware"
	"taskManager/internal/observability"
	"taskManager/internal/repository/task/inmemory"
	"taskManager/internal/repository/task/mongo"
	"taskManager/internal/repository/task/postgres"
	"taskManager/internal/repository/task/sqlite"
	"taskManager/internal/service"
	"taskManager/internal/worker"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Repository - хранилище, которое приложение умеет закрыть при остановке
type Repository interface {
	service.TaskRepository
	Close()
}

type App struct {
	config     *config.Config
	server     *http.Server
	repository Repository
	service    handlers.Service
	worker     *worker.StatsWorker
	redis      *redis.Client
	registry   prometheus.Registerer

	workerCancel context.CancelFunc
	workerDone   chan struct{}
	closeOnce    sync.Once
}

func New(cfg *config.Config) *App {
	return &App{
		config:   cfg,
		registry: prometheus.DefaultRegisterer,
	}
}

// Init собирает зависимости. При ошибке уже открытые ресурсы закрываются.
func (a *App) Init(ctx context.Context) (*App, error) {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return nil, fmt.Errorf("инициализация логгера: %w", err)
	}

	repo, err := OpenRepository(ctx, a.config)
	if err != nil {
		return nil, err
	}
	a.repository = repo

	a.service = observability.Wrap(service.NewTaskService(repo), observability.NewMetrics(a.registry))

	limiter, err := a.newLimiter(ctx)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	handler := handlers.NewTaskHandler(a.service)
	router := handlers.NewRouter(handler, handlers.RouterConfig{
		RequestTimeout: a.config.Server.RequestTimeout,
		CORSOrigins:    a.config.Server.CORSOrigins,
		Limiter:        limiter,
	})

	a.server = &http.Server{
		Addr:              a.config.GetServerAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	interval := a.config.StatsWorker.Interval
	a.worker = worker.NewStatsWorker(a.service, &interval, worker.NewGauges(a.registry))

	logger.Info("Приложение собрано",
		zap.String("repository", a.config.Repository.Type),
		zap.String("addr", a.server.Addr),
		zap.Bool("redis_limiter", a.redis != nil))

	return a, nil
}

// OpenRepository открывает хранилище по repository.type; для postgres заодно применяет миграции
func OpenRepository(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.Repository.Type {
	case config.RepositoryInMemory:
		return inmemory.NewTaskStorage(), nil

	case config.RepositoryPostgres:
		storage, err := postgres.New(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxConns:        int32(cfg.Database.MaxConnections),
			MinConns:        int32(cfg.Database.MinConnections),
			MaxConnIdleTime: cfg.Database.IdleTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("подключение к postgres: %w", err)
		}
		if err := storage.Migrate(); err != nil {
			storage.Close()
			return nil, fmt.Errorf("миграции postgres: %w", err)
		}
		return storage, nil

	case config.RepositorySQLite:
		storage, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("открытие sqlite: %w", err)
		}
		return storage, nil

	case config.RepositoryMongo:
		storage, err := mongo.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, fmt.Errorf("подключение к mongo: %w", err)
		}
		return storage, nil

	default:
		return nil, fmt.Errorf("неизвестный тип репозитория %q", cfg.Repository.Type)
	}
}

// newLimiter - общий лимит в Redis, если он настроен, иначе лимит в памяти процесса
func (a *App) newLimiter(ctx context.Context) (middleware.Limiter, error) {
	rpm := a.config.RateLimit.RequestsPerMinute
	if a.config.Redis.Addr == "" {
		return middleware.NewLocalLimiter(rpm), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.config.Redis.Addr,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("подключение к redis %s: %w", a.config.Redis.Addr, err)
	}
	a.redis = client
	return middleware.NewRedisLimiter(client, rpm, "taskmanager:ratelimit:"), nil
}

// Run запускает сервер и воркер и блокируется до сигнала остановки. Возвращает код выхода.
func (a *App) Run(ctx context.Context) int {
	workerCtx, cancel := context.WithCancel(ctx)
	a.workerCancel = cancel
	a.workerDone = make(chan struct{})
	go func() {
		defer close(a.workerDone)
		a.worker.Start(workerCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP: Сервер запущен", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	timeout := a.config.Server.ShutdownTimeout
	wait := gfshutdown.GracefulShutdown(ctx, timeout, a.shutdownOperations())

	var exitCode int
	select {
	case exitCode = <-wait:
	case err := <-serveErr:
		logger.Error("HTTP: Сервер остановился с ошибкой", err)
		a.shutdownNow(timeout)
		exitCode = 1
	}

	a.closeResources()
	logger.Info("Приложение остановлено", zap.Int("exit_code", exitCode))
	logger.Sync()
	return exitCode
}

// shutdownOperations останавливают тех, кто пользуется хранилищем. Сами хранилища закрываются после них.
func (a *App) shutdownOperations() map[string]gfshutdown.Operation {
	return map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			logger.Info("HTTP: Остановка сервера...")
			return a.server.Shutdown(ctx)
		},
		"stats-worker": func(ctx context.Context) error {
			a.workerCancel()
			select {
			case <-a.workerDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

func (a *App) shutdownNow(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for name, op := range a.shutdownOperations() {
		if err := op(ctx); err != nil {
			logger.Warn("Ошибка остановки", zap.String("operation", name), zap.Error(err))
		}
	}
}

func (a *App) closeResources() {
	a.closeOnce.Do(func() {
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				logger.Warn("Ошибка закрытия redis", zap.Error(err))
			}
		}
		if a.repository != nil {
			logger.Info("Repository: Закрытие хранилища")
			a.repository.Close()
		}
	})
}

// Handler нужен тестам, чтобы гонять запросы без сетевого сервера
func (a *App) Handler() http.Handler {
	return a.server.Handler
}
