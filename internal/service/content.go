package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"slices"

	"github.com/bigkaa/gofilevault/internal/domain/model"
	"github.com/bigkaa/gofilevault/internal/repository"
	"github.com/bigkaa/gofilevault/internal/storage/blobstore"
	"github.com/bigkaa/gofilevault/internal/thumbs"
)

// Content — байты записи и MIME-тип для отдачи клиенту.
type Content struct {
	Reader   io.ReadCloser
	MimeType string
}

// ContentService — выдача содержимого с проверкой доступа
// и выбором размерного варианта.
type ContentService struct {
	files  repository.FileRepository
	blobs  *blobstore.Store
	cache  *CacheService
	logger *slog.Logger
}

// NewContentService создаёт сервис выдачи содержимого.
func NewContentService(files repository.FileRepository, blobs *blobstore.Store, cache *CacheService, logger *slog.Logger) *ContentService {
	return &ContentService{
		files:  files,
		blobs:  blobs,
		cache:  cache,
		logger: logger.With(slog.String("component", "content_service")),
	}
}

// Fetch возвращает содержимое записи.
//
// callerID пуст для анонимного вызова. Доступ: публичная запись либо
// владелец. Отказ доступа и отсутствие записи неразличимы (404).
// size != 0 выбирает размерный вариант и допускает только ширины
// конвейера миниатюр; недоступный на диске вариант — 404, клиенту
// не сообщается, ещё не сгенерирован он или утрачен.
func (s *ContentService) Fetch(ctx context.Context, callerID, fileID string, size int) (*Content, error) {
	if !model.ValidID(fileID) {
		return nil, reject(http.StatusNotFound, "Not found")
	}

	entry, err := s.lookup(ctx, fileID)
	if err != nil {
		return nil, err
	}

	// Предикат доступа един для всех транспортов.
	if !CanRead(entry, callerID) {
		return nil, reject(http.StatusNotFound, "Not found")
	}

	if entry.Type == model.TypeFolder {
		return nil, reject(http.StatusBadRequest, "folder has no content")
	}

	name := entry.LocalPath
	if size != 0 {
		if !slices.Contains(thumbs.Widths, size) {
			return nil, reject(http.StatusBadRequest, "Invalid size")
		}
		name = blobstore.VariantName(entry.LocalPath, size)
	}

	reader, err := s.blobs.Open(name)
	if err != nil {
		// Любой нечитаемый путь — единый 404: причина (нет файла,
		// права, повреждённая иерархия хранилища) клиенту не видна.
		s.logger.Warn("Содержимое недоступно на диске",
			slog.String("file_id", entry.ID),
			slog.String("local_path", name),
			slog.String("error", err.Error()),
		)
		return nil, reject(http.StatusNotFound, "Not found")
	}

	// MIME только по расширению имени записи, без чтения байт.
	mimeType := mime.TypeByExtension(filepath.Ext(entry.Name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &Content{Reader: reader, MimeType: mimeType}, nil
}

// lookup читает запись через кэш метаданных.
func (s *ContentService) lookup(ctx context.Context, fileID string) (*model.FileEntry, error) {
	if entry, ok := s.cache.Get(fileID); ok {
		return entry, nil
	}

	entry, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(http.StatusNotFound, "Not found")
		}
		return nil, fmt.Errorf("получение записи: %w", err)
	}

	s.cache.Set(entry.ID, entry)
	return entry, nil
}
