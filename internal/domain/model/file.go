// Пакет model — доменные модели file-vault.
// FileEntry — запись файла/изображения/папки в таблице files.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FileType — тип записи в иерархии.
type FileType string

// Допустимые типы записей.
const (
	TypeFile   FileType = "file"
	TypeImage  FileType = "image"
	TypeFolder FileType = "folder"
)

// Valid проверяет, что тип входит в допустимый набор.
func (t FileType) Valid() bool {
	switch t {
	case TypeFile, TypeImage, TypeFolder:
		return true
	}
	return false
}

// FileEntry — запись файла в реестре files.
// LocalPath заполнен только для типов file и image; для папок пуст.
// LocalPath никогда не попадает во внешнюю проекцию.
type FileEntry struct {
	// ID — UUID записи (назначается базой при вставке)
	ID string
	// UserID — UUID владельца; неизменяем после создания
	UserID string
	// Name — имя записи (обязательное, непустое)
	Name string
	// Type — тип записи: file, image, folder
	Type FileType
	// Parent — ссылка на родителя (корень или существующая папка)
	Parent ParentRef
	// IsPublic — флаг публичного доступа
	IsPublic bool
	// LocalPath — непрозрачное имя файла в blob-хранилище
	LocalPath string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// Projection — внешняя проекция записи: то, что видит клиент.
// LocalPath намеренно отсутствует.
type Projection struct {
	ID       string   `json:"id"`
	UserID   string   `json:"userId"`
	Name     string   `json:"name"`
	Type     FileType `json:"type"`
	IsPublic bool     `json:"isPublic"`
	ParentID string   `json:"parentId"`
}

// Projection возвращает внешнюю проекцию записи.
func (f *FileEntry) Projection() Projection {
	return Projection{
		ID:       f.ID,
		UserID:   f.UserID,
		Name:     f.Name,
		Type:     f.Type,
		IsPublic: f.IsPublic,
		ParentID: f.Parent.String(),
	}
}

// ValidID проверяет синтаксическую корректность идентификатора (UUID).
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// RootSentinel — внешнее представление корневого родителя.
// Корень — сентинел, а не реальная запись: у него нет владельца,
// и он всегда допустим как родитель.
const RootSentinel = "0"

// ParentRef — ссылка на родителя записи: корень либо существующая папка.
// Sum type вместо смешанной обработки 0/'0': нулевое значение — корень.
type ParentRef struct {
	folderID string
}

// RootParent возвращает ссылку на корень.
func RootParent() ParentRef {
	return ParentRef{}
}

// FolderParent возвращает ссылку на папку с указанным id.
func FolderParent(id string) ParentRef {
	return ParentRef{folderID: id}
}

// ParseParentRef разбирает внешнее представление родителя.
// Пустая строка и "0" — корень; иначе требуется корректный UUID.
func ParseParentRef(raw string) (ParentRef, error) {
	if raw == "" || raw == RootSentinel {
		return RootParent(), nil
	}
	if !ValidID(raw) {
		return ParentRef{}, fmt.Errorf("некорректный идентификатор родителя: %q", raw)
	}
	return FolderParent(raw), nil
}

// IsRoot сообщает, указывает ли ссылка на корень.
func (p ParentRef) IsRoot() bool {
	return p.folderID == ""
}

// FolderID возвращает id папки-родителя и признак «не корень».
func (p ParentRef) FolderID() (string, bool) {
	return p.folderID, p.folderID != ""
}

// String возвращает внешнее представление: "0" для корня, иначе UUID папки.
func (p ParentRef) String() string {
	if p.IsRoot() {
		return RootSentinel
	}
	return p.folderID
}
