// Пакет service — бизнес-логика file-vault: регистрация и сессии,
// иерархия файлов, контроль доступа, выдача содержимого.
package service

import (
	"errors"
	"net/http"
)

// Error — ожидаемый отказ бизнес-логики с HTTP-кодом.
// Обработчики транслируют его в тело {"error": message} без изменений.
type Error struct {
	// Status — HTTP статус-код отказа
	Status int
	// Message — сообщение для клиента
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// reject — конструктор ожидаемого отказа.
func reject(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// ErrUnauthenticated — единый отказ аутентификации.
// Причины (нет токена, просрочен, пользователь не существует)
// намеренно не различаются.
var ErrUnauthenticated = reject(http.StatusUnauthorized, "Unauthorized")

// AsServiceError извлекает *Error из цепочки ошибок.
func AsServiceError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
