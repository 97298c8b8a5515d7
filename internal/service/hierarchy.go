// hierarchy.go — File Hierarchy Manager: создание записей, листинг,
// выборка и смена видимости с проверкой инвариантов иерархии.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gofilevault/internal/domain/model"
	"github.com/bigkaa/gofilevault/internal/repository"
	"github.com/bigkaa/gofilevault/internal/storage/blobstore"
)

// Prometheus-метрики менеджера иерархии.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_uploads_total",
		Help: "Общее количество запросов на создание записей (по типу и статусу).",
	}, []string{"type", "status"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_upload_bytes_total",
		Help: "Общее количество принятых байт содержимого.",
	})
)

// Enqueuer — постановка заданий конвейера миниатюр.
// Реализуется репозиторием очереди; в тестах подменяется фейком.
type Enqueuer interface {
	Enqueue(ctx context.Context, fileID, userID string) error
}

// CreateParams — параметры создания записи, как они пришли с транспорта.
type CreateParams struct {
	// Name — имя записи
	Name string
	// Type — тип записи (file, image, folder)
	Type string
	// ParentID — внешнее представление родителя ("", "0" или UUID папки)
	ParentID string
	// IsPublic — начальная видимость
	IsPublic bool
	// Data — base64-содержимое (обязательно для не-папок)
	Data string
}

// HierarchyService — менеджер иерархии файлов.
type HierarchyService struct {
	files  repository.FileRepository
	users  repository.UserRepository
	blobs  *blobstore.Store
	queue  Enqueuer
	cache  *CacheService
	logger *slog.Logger
}

// NewHierarchyService создаёт менеджер иерархии.
func NewHierarchyService(
	files repository.FileRepository,
	users repository.UserRepository,
	blobs *blobstore.Store,
	queue Enqueuer,
	cache *CacheService,
	logger *slog.Logger,
) *HierarchyService {
	return &HierarchyService{
		files:  files,
		users:  users,
		blobs:  blobs,
		queue:  queue,
		cache:  cache,
		logger: logger.With(slog.String("component", "hierarchy_service")),
	}
}

// Create создаёт запись иерархии.
//
// Порядок валидации фиксирован, отказ на первом нарушении:
//  1. name обязателен
//  2. type обязателен и входит в {file, image, folder}
//  3. data обязательна для не-папок
//  4. родитель, если не корень, существует и является папкой
//
// Для не-папок содержимое пишется на диск ДО вставки метаданных;
// любая ошибка диска отменяет операцию целиком — строка метаданных
// не появляется. Задание миниатюр ставится в очередь только после
// durable-фиксации строки (и только для изображений); ошибка
// постановки не блокирует ответ.
func (s *HierarchyService) Create(ctx context.Context, userID string, p CreateParams) (*model.FileEntry, error) {
	if p.Name == "" {
		uploadsTotal.WithLabelValues(p.Type, "rejected").Inc()
		return nil, reject(http.StatusBadRequest, "Missing name")
	}

	typ := model.FileType(p.Type)
	if !typ.Valid() {
		uploadsTotal.WithLabelValues(p.Type, "rejected").Inc()
		return nil, reject(http.StatusBadRequest, "Missing type")
	}

	if p.Data == "" && typ != model.TypeFolder {
		uploadsTotal.WithLabelValues(p.Type, "rejected").Inc()
		return nil, reject(http.StatusBadRequest, "Missing data")
	}

	// Инвариант родителя перепроверяется на каждом создании —
	// кэшированным результатам прошлых проверок доверять нельзя.
	parent, err := s.resolveParent(ctx, p.ParentID)
	if err != nil {
		uploadsTotal.WithLabelValues(p.Type, "rejected").Inc()
		return nil, err
	}

	entry := &model.FileEntry{
		UserID:   userID,
		Name:     p.Name,
		Type:     typ,
		Parent:   parent,
		IsPublic: p.IsPublic,
	}

	if typ != model.TypeFolder {
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			uploadsTotal.WithLabelValues(p.Type, "rejected").Inc()
			return nil, reject(http.StatusBadRequest, fmt.Sprintf("Invalid data: %v", err))
		}

		localPath, err := s.blobs.Save(data)
		if err != nil {
			uploadsTotal.WithLabelValues(p.Type, "error").Inc()
			return nil, reject(http.StatusBadRequest, err.Error())
		}
		entry.LocalPath = localPath
		uploadBytesTotal.Add(float64(len(data)))
	}

	created, err := s.files.Create(ctx, entry)
	if err != nil {
		uploadsTotal.WithLabelValues(p.Type, "error").Inc()
		return nil, fmt.Errorf("сохранение метаданных: %w", err)
	}

	// Постановка задания строго после фиксации строки метаданных.
	// Fire-and-forget: отказ очереди не влияет на ответ клиенту.
	if created.Type == model.TypeImage {
		if err := s.queue.Enqueue(ctx, created.ID, created.UserID); err != nil {
			s.logger.Warn("Не удалось поставить задание миниатюр",
				slog.String("file_id", created.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	uploadsTotal.WithLabelValues(p.Type, "success").Inc()

	s.logger.Debug("Запись создана",
		slog.String("file_id", created.ID),
		slog.String("type", string(created.Type)),
		slog.String("parent", created.Parent.String()),
	)

	return created, nil
}

// List возвращает страницу записей владельца под указанным родителем.
//
// page приходит сырой строкой: нечисловые и отрицательные значения
// приводятся к нулю, ошибок пагинация не порождает. Синтаксически
// некорректный parentId — отказ авторизации (намеренная асимметрия
// с путём создания). Родитель, который не существует или не папка,
// даёт пустой список, а не ошибку.
func (s *HierarchyService) List(ctx context.Context, userID, parentRaw, pageRaw string) ([]*model.FileEntry, error) {
	page, err := strconv.Atoi(pageRaw)
	if err != nil || page < 0 {
		page = 0
	}

	parent, err := model.ParseParentRef(parentRaw)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if parentID, ok := parent.FolderID(); ok {
		parentEntry, err := s.files.GetByID(ctx, parentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return []*model.FileEntry{}, nil
			}
			return nil, fmt.Errorf("проверка родителя: %w", err)
		}
		if parentEntry.Type != model.TypeFolder {
			return []*model.FileEntry{}, nil
		}
	}

	entries, err := s.files.ListByParent(ctx, userID, parent, page)
	if err != nil {
		return nil, fmt.Errorf("листинг файлов: %w", err)
	}
	return entries, nil
}

// FetchOne возвращает запись владельца.
// Некорректный id и чужая запись неотличимы для вызывающего —
// единый ответ «не найдено» не раскрывает существование записи.
func (s *HierarchyService) FetchOne(ctx context.Context, userID, fileID string) (*model.FileEntry, error) {
	if !model.ValidID(fileID) {
		return nil, reject(http.StatusNotFound, "Not found")
	}

	entry, err := s.files.GetByOwner(ctx, fileID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(http.StatusNotFound, "Not found")
		}
		return nil, fmt.Errorf("получение записи: %w", err)
	}
	return entry, nil
}

// SetVisibility атомарно меняет видимость записи владельца.
// Несуществующая идентичность — 401; запись вне владения — 404.
// Конкурентные смены видимости разрешаются атомарным
// update-by-filter хранилища (last-write-wins).
func (s *HierarchyService) SetVisibility(ctx context.Context, userID, fileID string, isPublic bool) (*model.FileEntry, error) {
	if !model.ValidID(userID) {
		return nil, ErrUnauthenticated
	}
	if !model.ValidID(fileID) {
		return nil, reject(http.StatusNotFound, "Not found")
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("загрузка пользователя: %w", err)
	}

	entry, err := s.files.SetVisibility(ctx, fileID, userID, isPublic)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(http.StatusNotFound, "Not found")
		}
		return nil, fmt.Errorf("смена видимости: %w", err)
	}

	// Горячий путь выдачи содержимого не должен видеть устаревший флаг.
	s.cache.Delete(entry.ID)

	return entry, nil
}

// resolveParent проверяет инвариант родителя при создании.
// Синтаксически некорректный или отсутствующий id — "Parent not found";
// существующая запись не-папка — "Parent is not a folder".
func (s *HierarchyService) resolveParent(ctx context.Context, parentRaw string) (model.ParentRef, error) {
	parent, err := model.ParseParentRef(parentRaw)
	if err != nil {
		return model.ParentRef{}, reject(http.StatusBadRequest, "Parent not found")
	}

	parentID, ok := parent.FolderID()
	if !ok {
		// Корень — всегда допустимый родитель
		return parent, nil
	}

	parentEntry, err := s.files.GetByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.ParentRef{}, reject(http.StatusBadRequest, "Parent not found")
		}
		return model.ParentRef{}, fmt.Errorf("проверка родителя: %w", err)
	}
	if parentEntry.Type != model.TypeFolder {
		return model.ParentRef{}, reject(http.StatusBadRequest, "Parent is not a folder")
	}

	return parent, nil
}
