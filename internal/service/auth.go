package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/gofilevault/internal/domain/model"
	"github.com/bigkaa/gofilevault/internal/repository"
	"github.com/bigkaa/gofilevault/internal/session"
)

// AuthService — регистрация и выдача сессионных токенов.
// TTL сессии фиксирован в session store.
type AuthService struct {
	users    repository.UserRepository
	sessions session.Store
	logger   *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(users repository.UserRepository, sessions session.Store, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "auth_service")),
	}
}

// Signup регистрирует пользователя. Пароль хранится только как bcrypt-хэш.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*model.User, error) {
	if email == "" {
		return nil, reject(http.StatusBadRequest, "Missing email")
	}
	if password == "" {
		return nil, reject(http.StatusBadRequest, "Missing password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("хэширование пароля: %w", err)
	}

	user, err := s.users.Create(ctx, email, string(hash))
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, reject(http.StatusBadRequest, "Already exist")
		}
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован", slog.String("user_id", user.ID))
	return user, nil
}

// Signin проверяет учётные данные и выдаёт сессионный токен.
// Неизвестный email и неверный пароль неразличимы для клиента.
func (s *AuthService) Signin(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("поиск пользователя: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrUnauthenticated
	}

	token := uuid.New().String()
	if err := s.sessions.Put(ctx, token, user.ID); err != nil {
		return "", fmt.Errorf("сохранение сессии: %w", err)
	}

	s.logger.Debug("Сессия выдана", slog.String("user_id", user.ID))
	return token, nil
}

// Signout удаляет сессию по токену.
func (s *AuthService) Signout(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("удаление сессии: %w", err)
	}
	return nil
}
