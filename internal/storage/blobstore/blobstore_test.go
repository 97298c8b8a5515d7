package blobstore

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNew_CreatesDirectory проверяет создание директории данных.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	s, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	if s.DataDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, s.DataDir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestNew_Idempotent проверяет повторное создание поверх существующей директории.
func TestNew_Idempotent(t *testing.T) {
	dir := t.TempDir()

	if _, err := New(dir); err != nil {
		t.Fatalf("первый вызов: %v", err)
	}
	if _, err := New(dir); err != nil {
		t.Fatalf("повторный вызов должен быть идемпотентным: %v", err)
	}
}

// TestSave_RoundTrip проверяет сохранение и обратное чтение содержимого.
func TestSave_RoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	content := []byte("Hello, World! Тестовые данные для проверки.")
	name, err := s.Save(content)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	got, err := s.Read(name)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("содержимое не совпадает с записанным")
	}

	// Temp-файл не должен остаться после атомарной записи
	if _, err := os.Stat(s.FullPath(name) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp-файл не удалён после rename")
	}
}

// TestSave_OpaqueUniqueNames проверяет непрозрачность и уникальность имён.
func TestSave_OpaqueUniqueNames(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		name, err := s.Save([]byte("same content"))
		if err != nil {
			t.Fatalf("ошибка сохранения: %v", err)
		}
		if seen[name] {
			t.Fatalf("имя %q выдано повторно", name)
		}
		seen[name] = true

		// Имя непрозрачно: 32 hex-символа, без разделителей пути
		if len(name) != 32 {
			t.Errorf("длина имени = %d, ожидалось 32: %q", len(name), name)
		}
		if strings.ContainsAny(name, "/\\.") {
			t.Errorf("имя содержит символы пути: %q", name)
		}
	}
}

// TestSaveVariant проверяет запись производной рядом с оригиналом.
func TestSaveVariant(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	name, err := s.Save([]byte("original"))
	if err != nil {
		t.Fatalf("ошибка сохранения оригинала: %v", err)
	}

	if err := s.SaveVariant(name, 100, []byte("thumb-100")); err != nil {
		t.Fatalf("ошибка сохранения производной: %v", err)
	}

	got, err := s.Read(VariantName(name, 100))
	if err != nil {
		t.Fatalf("ошибка чтения производной: %v", err)
	}
	if string(got) != "thumb-100" {
		t.Errorf("содержимое производной = %q", got)
	}

	// Перезапись производной безопасна (идемпотентный повтор задания)
	if err := s.SaveVariant(name, 100, []byte("thumb-100-v2")); err != nil {
		t.Fatalf("перезапись производной: %v", err)
	}
	got, _ = s.Read(VariantName(name, 100))
	if string(got) != "thumb-100-v2" {
		t.Errorf("после перезаписи = %q", got)
	}
}

// TestVariantName проверяет детерминированность пути производной.
func TestVariantName(t *testing.T) {
	if got := VariantName("abc123", 500); got != "abc123_500" {
		t.Errorf("VariantName = %q, ожидался abc123_500", got)
	}
}

// TestRead_Missing проверяет чтение отсутствующего содержимого.
func TestRead_Missing(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	if _, err := s.Read("nosuchname"); !os.IsNotExist(err) {
		t.Errorf("ожидалась ошибка os.IsNotExist, получено %v", err)
	}
	if s.Exists("nosuchname") {
		t.Error("Exists должен вернуть false для отсутствующего имени")
	}
}
