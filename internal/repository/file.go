// file.go — репозиторий реестра файлов.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gofilevault/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `id, user_id, name, type, parent_id, is_public, local_path, created_at`

// PageSize — фиксированный размер страницы листинга.
const PageSize = 20

// FileRepository — доступ к реестру файлов.
type FileRepository interface {
	// Create вставляет запись и возвращает её с назначенным id.
	Create(ctx context.Context, entry *model.FileEntry) (*model.FileEntry, error)
	// GetByID возвращает запись по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.FileEntry, error)
	// GetByOwner возвращает запись по UUID, ограниченную владельцем,
	// или ErrNotFound (несовпадение владельца неотличимо от отсутствия).
	GetByOwner(ctx context.Context, id, userID string) (*model.FileEntry, error)
	// ListByParent возвращает страницу записей владельца с указанным родителем.
	ListByParent(ctx context.Context, userID string, parent model.ParentRef, page int) ([]*model.FileEntry, error)
	// SetVisibility атомарно меняет is_public записи, ограниченной
	// владельцем (update-by-filter). Нет совпадения → ErrNotFound.
	SetVisibility(ctx context.Context, id, userID string, isPublic bool) (*model.FileEntry, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Create вставляет запись реестра. Для папок local_path — NULL.
func (r *fileRepo) Create(ctx context.Context, entry *model.FileEntry) (*model.FileEntry, error) {
	query := fmt.Sprintf(`
		INSERT INTO files (user_id, name, type, parent_id, is_public, local_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s`, fileColumns)

	var localPath *string
	if entry.LocalPath != "" {
		localPath = &entry.LocalPath
	}

	created, err := scanFile(r.db.QueryRow(ctx, query,
		entry.UserID, entry.Name, string(entry.Type),
		parentArg(entry.Parent), entry.IsPublic, localPath,
	))
	if err != nil {
		return nil, fmt.Errorf("ошибка вставки записи файла: %w", err)
	}
	return created, nil
}

// GetByID возвращает запись по UUID или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.FileEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, fileColumns)

	entry, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи файла: %w", err)
	}
	return entry, nil
}

// GetByOwner возвращает запись, ограниченную владельцем, или ErrNotFound.
func (r *fileRepo) GetByOwner(ctx context.Context, id, userID string) (*model.FileEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1 AND user_id = $2`, fileColumns)

	entry, err := scanFile(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи файла: %w", err)
	}
	return entry, nil
}

// ListByParent возвращает страницу записей владельца с указанным родителем.
// Порядок — естественный порядок хранилища: сортировка намеренно
// не гарантируется (явная не-гарантия контракта листинга).
func (r *fileRepo) ListByParent(ctx context.Context, userID string, parent model.ParentRef, page int) ([]*model.FileEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE user_id = $1 AND parent_id IS NOT DISTINCT FROM $2
		LIMIT $3 OFFSET $4`, fileColumns)

	rows, err := r.db.Query(ctx, query, userID, parentArg(parent), PageSize, PageOffset(page))
	if err != nil {
		return nil, fmt.Errorf("ошибка листинга файлов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.FileEntry, 0, PageSize)
	for rows.Next() {
		entry, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи файла: %w", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	return result, nil
}

// SetVisibility атомарно меняет is_public записи владельца.
// Update-by-filter: проверка владельца и запись — одна операция хранилища.
func (r *fileRepo) SetVisibility(ctx context.Context, id, userID string, isPublic bool) (*model.FileEntry, error) {
	query := fmt.Sprintf(`
		UPDATE files SET is_public = $1
		WHERE id = $2 AND user_id = $3
		RETURNING %s`, fileColumns)

	entry, err := scanFile(r.db.QueryRow(ctx, query, isPublic, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления видимости: %w", err)
	}
	return entry, nil
}

// PageOffset вычисляет смещение страницы листинга.
// Отрицательные номера страниц приводятся к нулю.
func PageOffset(page int) int {
	if page < 0 {
		page = 0
	}
	return page * PageSize
}

// parentArg конвертирует ParentRef в SQL-аргумент: NULL для корня.
func parentArg(p model.ParentRef) any {
	if id, ok := p.FolderID(); ok {
		return id
	}
	return nil
}

// scanFile сканирует строку files в модель.
// parent_id NULL → корень; local_path NULL → пустая строка (папка).
func scanFile(row pgx.Row) (*model.FileEntry, error) {
	f := &model.FileEntry{}
	var (
		typ       string
		parentID  *string
		localPath *string
	)
	if err := row.Scan(&f.ID, &f.UserID, &f.Name, &typ, &parentID, &f.IsPublic, &localPath, &f.CreatedAt); err != nil {
		return nil, err
	}

	f.Type = model.FileType(typ)
	if parentID != nil {
		f.Parent = model.FolderParent(*parentID)
	} else {
		f.Parent = model.RootParent()
	}
	if localPath != nil {
		f.LocalPath = *localPath
	}
	return f, nil
}
