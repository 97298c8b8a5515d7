// Точка входа file-vault — сервиса персонального файлового хранилища.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL
// и Redis, создаёт blob-хранилище, репозитории и сервисный слой,
// запускает пул воркеров миниатюр, мониторинг зависимостей и
// HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/gofilevault/internal/api/handlers"
	"github.com/bigkaa/gofilevault/internal/api/middleware"
	"github.com/bigkaa/gofilevault/internal/config"
	"github.com/bigkaa/gofilevault/internal/database"
	"github.com/bigkaa/gofilevault/internal/repository"
	"github.com/bigkaa/gofilevault/internal/server"
	"github.com/bigkaa/gofilevault/internal/service"
	"github.com/bigkaa/gofilevault/internal/session"
	"github.com/bigkaa/gofilevault/internal/storage/blobstore"
	"github.com/bigkaa/gofilevault/internal/thumbs"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("file-vault запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("FV_DEPHEALTH_GROUP") == "" {
		logger.Warn("FV_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Подключение к Redis (session store)
	sessions, err := session.Connect(cfg.RedisURL, cfg.SessionTTL, logger)
	if err != nil {
		logger.Error("Ошибка подключения к Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sessions.Close()

	// 6. Blob-хранилище
	blobs, err := blobstore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации blob-хранилища",
			slog.String("data_dir", cfg.DataDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("Blob-хранилище готово", slog.String("data_dir", cfg.DataDir))

	// 7. Repositories
	userRepo := repository.NewUserRepository(pool)
	fileRepo := repository.NewFileRepository(pool)
	jobRepo := repository.NewJobRepository(pool)

	// 8. Кэш метаданных
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)

	// 9. Services
	authSvc := service.NewAuthService(userRepo, sessions, logger)
	hierarchySvc := service.NewHierarchyService(fileRepo, userRepo, blobs, jobRepo, cache, logger)
	contentSvc := service.NewContentService(fileRepo, blobs, cache, logger)
	resolver := service.NewIdentityResolver(sessions, userRepo, logger)

	// 10. Пул воркеров миниатюр
	pool4thumbs := thumbs.NewPool(thumbs.PoolConfig{
		Workers:      cfg.ThumbWorkers,
		PollInterval: cfg.ThumbPollInterval,
		JobTimeout:   cfg.ThumbJobTimeout,
		MaxAttempts:  cfg.ThumbMaxAttempts,
		RetryBackoff: cfg.ThumbRetryBackoff,
		LeaseTimeout: cfg.ThumbLeaseTimeout,
	}, jobRepo, fileRepo, blobs, logger)
	pool4thumbs.Start(ctx)
	defer pool4thumbs.Stop()

	// 11. Мониторинг зависимостей (topologymetrics)
	dephealthSvc, err := service.NewDephealthService(
		"file-vault",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseDSN(),
		cfg.DephealthCheckInterval,
		cfg.DephealthIsEntry,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка инициализации dephealth", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		logger.Error("Ошибка запуска dephealth", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dephealthSvc.Stop()

	// 12. API handlers и middleware
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		sessions,
	)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		authSvc,
		hierarchySvc,
		contentSvc,
		cfg.MaxUploadSize,
		logger,
	)
	sessionAuth := middleware.NewSessionAuth(resolver, logger)

	// 13. Запуск HTTP-сервера (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, sessionAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("file-vault остановлен")
}
