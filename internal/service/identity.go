// identity.go — Identity Resolver: превращает bearer-токен запроса
// в проверенную идентичность пользователя.
//
// Resolver только читает session store (ключи auth_<token>) и никогда
// не создаёт сессии и не продлевает их TTL — выдача токенов лежит
// на потоке аутентификации.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/gofilevault/internal/domain/model"
	"github.com/bigkaa/gofilevault/internal/repository"
	"github.com/bigkaa/gofilevault/internal/session"
)

// IdentityResolver — резолвер идентичности по сессионному токену.
type IdentityResolver struct {
	sessions session.Store
	users    repository.UserRepository
	logger   *slog.Logger
}

// NewIdentityResolver создаёт резолвер идентичности.
func NewIdentityResolver(sessions session.Store, users repository.UserRepository, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{
		sessions: sessions,
		users:    users,
		logger:   logger.With(slog.String("component", "identity_resolver")),
	}
}

// Resolve возвращает идентификатор пользователя по токену.
// Пустой токен и промах session store — ErrUnauthenticated.
func (r *IdentityResolver) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}

	userID, err := r.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("ошибка обращения к session store: %w", err)
	}
	return userID, nil
}

// ResolveUser возвращает полную запись пользователя по токену.
// Токен, указывающий на несуществующего пользователя, — тоже
// ErrUnauthenticated (причины отказа не различаются).
func (r *IdentityResolver) ResolveUser(ctx context.Context, token string) (*model.User, error) {
	userID, err := r.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if !model.ValidID(userID) {
		return nil, ErrUnauthenticated
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("ошибка загрузки пользователя: %w", err)
	}
	return user, nil
}
