// auth.go — middleware аутентификации по сессионному токену.
// Извлекает Bearer token, разрешает его в идентификатор пользователя
// через Identity Resolver и помещает в контекст запроса.
// Все причины отказа неразличимы для клиента: единый ответ 401.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/gofilevault/internal/api/errors"
	"github.com/bigkaa/gofilevault/internal/service"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyUserID — идентификатор аутентифицированного пользователя
// в контексте запроса.
const ContextKeyUserID contextKey = "user_id"

// SessionAuth — middleware аутентификации по сессионному токену.
type SessionAuth struct {
	resolver *service.IdentityResolver
	logger   *slog.Logger
}

// NewSessionAuth создаёт middleware аутентификации.
func NewSessionAuth(resolver *service.IdentityResolver, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		resolver: resolver,
		logger:   logger.With(slog.String("component", "session_auth")),
	}
}

// Middleware — строгий вариант: запрос без валидной сессии отклоняется.
func (a *SessionAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := a.resolve(r)
			if err != nil {
				if !errors.Is(err, service.ErrUnauthenticated) {
					a.logger.Error("Ошибка разрешения сессии",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				apierrors.Unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Optional — мягкий вариант для публичного содержимого: запрос без
// валидной сессии продолжается анонимно, идентичность в контексте
// появляется только при успешном разрешении токена.
func (a *SessionAuth) Optional() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := a.resolve(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolve извлекает токен из запроса и разрешает его в идентификатор.
func (a *SessionAuth) resolve(r *http.Request) (string, error) {
	token := bearerToken(r)
	if token == "" {
		return "", service.ErrUnauthenticated
	}
	return a.resolver.Resolve(r.Context(), token)
}

// bearerToken извлекает токен из заголовка Authorization.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// UserIDFromContext извлекает идентификатор пользователя из контекста.
// Возвращает пустую строку для анонимного запроса.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(ContextKeyUserID).(string)
	return userID
}
