// Пакет session — адаптер session store поверх Redis.
//
// Хранит соответствие «токен → идентификатор пользователя» под ключами
// auth_<token> с фиксированным TTL. Чтение не продлевает TTL.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gomodule/redigo/redis"
)

// ErrNoSession — токен отсутствует в хранилище (истёк или не выдавался).
var ErrNoSession = errors.New("сессия не найдена")

// keyPrefix — префикс ключей сессий в Redis.
const keyPrefix = "auth_"

// Store — контракт session store для Identity Resolver и потока аутентификации.
type Store interface {
	// Get возвращает идентификатор пользователя по токену или ErrNoSession.
	Get(ctx context.Context, token string) (string, error)
	// Put сохраняет токен с фиксированным TTL.
	Put(ctx context.Context, token, userID string) error
	// Delete удаляет токен (sign-out).
	Delete(ctx context.Context, token string) error
	// Close освобождает соединения.
	Close() error
}

// RedisStore — реализация Store поверх пула соединений redigo.
type RedisStore struct {
	pool   *redis.Pool
	ttl    time.Duration
	logger *slog.Logger
}

// Connect создаёт пул соединений Redis и проверяет доступность через PING.
func Connect(redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisStore, error) {
	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, redisURL)
		},
	}

	conn := pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}

	logger.Info("Подключение к Redis установлено",
		slog.String("url", redisURL),
		slog.Duration("session_ttl", ttl),
	)

	return &RedisStore{
		pool:   pool,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "session_store")),
	}, nil
}

// Get возвращает идентификатор пользователя по токену.
// Промах, истёкший токен и любой nil-ответ — ErrNoSession.
func (s *RedisStore) Get(ctx context.Context, token string) (string, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return "", fmt.Errorf("ошибка получения соединения Redis: %w", err)
	}
	defer conn.Close()

	userID, err := redis.String(conn.Do("GET", keyPrefix+token))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	return userID, nil
}

// Put сохраняет токен с фиксированным TTL (SETEX).
func (s *RedisStore) Put(ctx context.Context, token, userID string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения соединения Redis: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("SETEX", keyPrefix+token, int(s.ttl.Seconds()), userID); err != nil {
		return fmt.Errorf("ошибка записи сессии: %w", err)
	}
	return nil
}

// Delete удаляет токен.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения соединения Redis: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", keyPrefix+token); err != nil {
		return fmt.Errorf("ошибка удаления сессии: %w", err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *RedisStore) Close() error {
	return s.pool.Close()
}

// CheckReady проверяет доступность Redis для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
func (s *RedisStore) CheckReady() (status, message string) {
	conn := s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
