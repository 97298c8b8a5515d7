package model

import "time"

// User — учётная запись пользователя в таблице users.
// Создаётся один раз при регистрации; ядро использует модель
// только для чтения.
type User struct {
	// ID — UUID пользователя
	ID string
	// Email — уникальный адрес (обязательный)
	Email string
	// PasswordHash — bcrypt-хэш пароля; наружу не отдаётся
	PasswordHash string
	// CreatedAt — время регистрации
	CreatedAt time.Time
}

// ThumbnailJob — задание на генерацию миниатюр изображения.
// Хранится в таблице thumbnail_jobs (durable-очередь конвейера).
type ThumbnailJob struct {
	// ID — порядковый номер задания
	ID int64
	// FileID — UUID записи-изображения
	FileID string
	// UserID — UUID владельца
	UserID string
	// Attempts — количество выполненных попыток (включая текущую)
	Attempts int
}
