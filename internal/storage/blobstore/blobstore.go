// Пакет blobstore — операции с содержимым файлов на диске.
//
// Имена в хранилище непрозрачны (UUID без дефисов) и никогда не
// выводятся из пользовательских имён — это исключает path traversal
// и коллизии. Производные миниатюр лежат рядом с оригиналом под
// именами <name>_<width>.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store — blob-хранилище на локальном диске.
type Store struct {
	// dataDir — корневая директория хранения (FV_DATA_DIR)
	dataDir string
}

// New создаёт новый Store. Проверяет и создаёт директорию
// если она не существует (идемпотентно).
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &Store{dataDir: dataDir}, nil
}

// Save записывает содержимое под свежим непрозрачным именем.
// Возвращает имя в хранилище.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется, содержимое не публикуется.
func (s *Store) Save(data []byte) (string, error) {
	name := newStorageName()
	if err := s.writeAtomic(name, data); err != nil {
		return "", err
	}
	return name, nil
}

// SaveVariant записывает производную указанной ширины рядом с оригиналом.
// Путь производной — детерминированная функция имени и ширины,
// поэтому перезапись при повторе задания безопасна.
func (s *Store) SaveVariant(name string, width int, data []byte) error {
	return s.writeAtomic(VariantName(name, width), data)
}

// Open открывает содержимое для чтения. Вызывающий код обязан
// закрыть файл.
func (s *Store) Open(name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(s.dataDir, name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Read возвращает содержимое целиком.
func (s *Store) Read(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dataDir, name))
}

// Exists проверяет наличие содержимого.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dataDir, name))
	return err == nil
}

// FullPath возвращает абсолютный путь содержимого на диске.
func (s *Store) FullPath(name string) string {
	return filepath.Join(s.dataDir, name)
}

// DataDir возвращает путь к директории данных.
func (s *Store) DataDir() string {
	return s.dataDir
}

// VariantName возвращает имя производной указанной ширины.
func VariantName(name string, width int) string {
	return fmt.Sprintf("%s_%d", name, width)
}

// writeAtomic записывает данные атомарно: temp → fsync → rename.
func (s *Store) writeAtomic(name string, data []byte) error {
	fullPath := filepath.Join(s.dataDir, name)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// newStorageName генерирует свежее непрозрачное имя (UUID без дефисов).
func newStorageName() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
