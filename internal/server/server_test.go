package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/gofilevault/internal/api/handlers"
	"github.com/bigkaa/gofilevault/internal/api/middleware"
	"github.com/bigkaa/gofilevault/internal/domain/model"
	"github.com/bigkaa/gofilevault/internal/repository"
	"github.com/bigkaa/gofilevault/internal/service"
	"github.com/bigkaa/gofilevault/internal/session"
	"github.com/bigkaa/gofilevault/internal/storage/blobstore"
	"github.com/bigkaa/gofilevault/internal/thumbs"
)

// --- In-memory фейки инфраструктуры для сквозных тестов ---

type memFiles struct {
	mu      sync.Mutex
	entries map[string]*model.FileEntry
	order   []string
}

func newMemFiles() *memFiles {
	return &memFiles{entries: make(map[string]*model.FileEntry)}
}

func (r *memFiles) Create(_ context.Context, entry *model.FileEntry) (*model.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *entry
	stored.ID = uuid.New().String()
	stored.CreatedAt = time.Now().UTC()
	r.entries[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
	copied := stored
	return &copied, nil
}

func (r *memFiles) GetByID(_ context.Context, id string) (*model.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (r *memFiles) GetByOwner(_ context.Context, id, userID string) (*model.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || entry.UserID != userID {
		return nil, repository.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (r *memFiles) ListByParent(_ context.Context, userID string, parent model.ParentRef, page int) ([]*model.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := []*model.FileEntry{}
	for _, id := range r.order {
		entry := r.entries[id]
		if entry.UserID == userID && entry.Parent == parent {
			copied := *entry
			matched = append(matched, &copied)
		}
	}

	offset := repository.PageOffset(page)
	if offset >= len(matched) {
		return []*model.FileEntry{}, nil
	}
	end := offset + repository.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *memFiles) SetVisibility(_ context.Context, id, userID string, isPublic bool) (*model.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || entry.UserID != userID {
		return nil, repository.ErrNotFound
	}
	entry.IsPublic = isPublic
	copied := *entry
	return &copied, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*model.User)}
}

func (r *memUsers) Create(_ context.Context, email, passwordHash string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return nil, repository.ErrEmailTaken
		}
	}
	user := &model.User{ID: uuid.New().String(), Email: email, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	r.users[user.ID] = user
	return user, nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memSessions struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newMemSessions() *memSessions {
	return &memSessions{tokens: make(map[string]string)}
}

func (s *memSessions) Get(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.tokens[token]
	if !ok {
		return "", session.ErrNoSession
	}
	return userID, nil
}

func (s *memSessions) Put(_ context.Context, token, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
	return nil
}

func (s *memSessions) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (s *memSessions) Close() error { return nil }

// memJobs — in-memory durable-очередь заданий миниатюр.
type memJobs struct {
	mu     sync.Mutex
	nextID int64
	queue  []*model.ThumbnailJob
	done   int
}

func newMemJobs() *memJobs { return &memJobs{} }

func (j *memJobs) Enqueue(_ context.Context, fileID, userID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.nextID++
	j.queue = append(j.queue, &model.ThumbnailJob{ID: j.nextID, FileID: fileID, UserID: userID})
	return nil
}

func (j *memJobs) Claim(_ context.Context, _ time.Duration) (*model.ThumbnailJob, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.queue) == 0 {
		return nil, nil
	}
	job := j.queue[0]
	j.queue = j.queue[1:]
	job.Attempts++
	return job, nil
}

func (j *memJobs) MarkDone(_ context.Context, _ int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done++
	return nil
}

func (j *memJobs) Retry(_ context.Context, id int64, _ string, _ int, _ time.Duration) error {
	return nil
}

func (j *memJobs) MarkFailed(_ context.Context, _ int64, _ string) error {
	return nil
}

func (j *memJobs) doneCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

// --- Сборка тестового стека ---

type testStack struct {
	router http.Handler
	jobs   *memJobs
	pool   *thumbs.Pool
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	blobs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания blob-хранилища: %v", err)
	}

	files := newMemFiles()
	users := newMemUsers()
	sessions := newMemSessions()
	jobs := newMemJobs()
	cache := service.NewCacheService(64, time.Minute)

	authSvc := service.NewAuthService(users, sessions, logger)
	hierarchy := service.NewHierarchyService(files, users, blobs, jobs, cache, logger)
	content := service.NewContentService(files, blobs, cache, logger)
	resolver := service.NewIdentityResolver(sessions, users, logger)

	health := handlers.NewHealthHandler(nil, nil)
	handler := handlers.NewAPIHandler(health, authSvc, hierarchy, content, 16<<20, logger)
	sessionAuth := middleware.NewSessionAuth(resolver, logger)

	pool := thumbs.NewPool(thumbs.PoolConfig{
		Workers:      2,
		PollInterval: 5 * time.Millisecond,
		JobTimeout:   5 * time.Second,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
		LeaseTimeout: time.Minute,
	}, jobs, files, blobs, logger)

	return &testStack{
		router: NewRouter(logger, handler, sessionAuth),
		jobs:   jobs,
		pool:   pool,
	}
}

// do выполняет запрос к тестовому стеку.
func (s *testStack) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Ошибка сериализации тела: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// signupAndSignin регистрирует пользователя и возвращает токен сессии.
func (s *testStack) signupAndSignin(t *testing.T, email string) string {
	t.Helper()

	creds := map[string]string{"email": email, "password": "secret"}
	rec := s.do(t, http.MethodPost, "/api/v1/auth/signup", "", creds)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: статус %d, тело %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/auth/signin", "", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("signin: статус %d, тело %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("signin: некорректный ответ: %v", err)
	}
	return resp.Token
}

// decodeProjection разбирает проекцию записи из ответа.
func decodeProjection(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var projection map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &projection); err != nil {
		t.Fatalf("некорректная проекция: %v (%s)", err, rec.Body.String())
	}
	return projection
}

// pngBytes генерирует PNG для тестов конвейера.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Ошибка кодирования PNG: %v", err)
	}
	return buf.Bytes()
}

// --- Сквозные сценарии ---

func TestEndToEnd_FolderFileRoundTrip(t *testing.T) {
	stack := newTestStack(t)
	token := stack.signupAndSignin(t, "owner@example.com")

	// Папка в корне
	rec := stack.do(t, http.MethodPost, "/api/v1/files", token, map[string]any{
		"name": "docs",
		"type": "folder",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("создание папки: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	folder := decodeProjection(t, rec)
	if folder["parentId"] != "0" {
		t.Errorf("parentId папки: хотели \"0\", получили %v", folder["parentId"])
	}
	if _, ok := folder["localPath"]; ok {
		t.Error("localPath просочился во внешнюю проекцию")
	}

	// Файл в папке
	rec = stack.do(t, http.MethodPost, "/api/v1/files", token, map[string]any{
		"name":     "hello.txt",
		"type":     "file",
		"parentId": folder["id"],
		"data":     "aGVsbG8=",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("создание файла: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	file := decodeProjection(t, rec)
	if file["parentId"] != folder["id"] {
		t.Errorf("parentId файла: хотели %v, получили %v", folder["id"], file["parentId"])
	}

	// Содержимое как владелец — round-trip через base64
	rec = stack.do(t, http.MethodGet, fmt.Sprintf("/api/v1/files/%v/content", file["id"]), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("выдача содержимого: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "hello" {
		t.Errorf("содержимое: хотели %q, получили %q", "hello", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type: хотели text/plain, получили %q", ct)
	}
}

func TestEndToEnd_ValidationMessages(t *testing.T) {
	stack := newTestStack(t)
	token := stack.signupAndSignin(t, "owner@example.com")

	tests := []struct {
		name    string
		body    map[string]any
		status  int
		message string
	}{
		{"нет имени", map[string]any{"type": "file", "data": "aGVsbG8="}, 400, "Missing name"},
		{"нет типа", map[string]any{"name": "a", "data": "aGVsbG8="}, 400, "Missing type"},
		{"нет данных", map[string]any{"name": "a", "type": "file"}, 400, "Missing data"},
		{"нет родителя", map[string]any{"name": "a", "type": "file", "data": "aGVsbG8=", "parentId": uuid.New().String()}, 400, "Parent not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := stack.do(t, http.MethodPost, "/api/v1/files", token, tt.body)
			if rec.Code != tt.status {
				t.Errorf("статус: хотели %d, получили %d", tt.status, rec.Code)
			}
			var resp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("некорректное тело ошибки: %s", rec.Body.String())
			}
			if resp.Error != tt.message {
				t.Errorf("сообщение: хотели %q, получили %q", tt.message, resp.Error)
			}
		})
	}
}

func TestEndToEnd_VisibilityMatrix(t *testing.T) {
	stack := newTestStack(t)
	owner := stack.signupAndSignin(t, "owner@example.com")
	stranger := stack.signupAndSignin(t, "stranger@example.com")

	rec := stack.do(t, http.MethodPost, "/api/v1/files", owner, map[string]any{
		"name": "secret.txt",
		"type": "file",
		"data": base64.StdEncoding.EncodeToString([]byte("secret")),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("создание файла: статус %d", rec.Code)
	}
	file := decodeProjection(t, rec)
	contentPath := fmt.Sprintf("/api/v1/files/%v/content", file["id"])

	// Приватный файл: владелец читает, чужой и аноним — 404
	if rec := stack.do(t, http.MethodGet, contentPath, owner, nil); rec.Code != http.StatusOK {
		t.Errorf("владелец приватного: хотели 200, получили %d", rec.Code)
	}
	if rec := stack.do(t, http.MethodGet, contentPath, stranger, nil); rec.Code != http.StatusNotFound {
		t.Errorf("чужой к приватному: хотели 404, получили %d", rec.Code)
	}
	if rec := stack.do(t, http.MethodGet, contentPath, "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("аноним к приватному: хотели 404, получили %d", rec.Code)
	}

	// Чужой не может сменить видимость — 404, метаданные не раскрываются
	visibilityPath := fmt.Sprintf("/api/v1/files/%v/visibility", file["id"])
	rec = stack.do(t, http.MethodPut, visibilityPath, stranger, map[string]any{"isPublic": true})
	if rec.Code != http.StatusNotFound {
		t.Errorf("чужая смена видимости: хотели 404, получили %d", rec.Code)
	}

	// Владелец публикует файл
	rec = stack.do(t, http.MethodPut, visibilityPath, owner, map[string]any{"isPublic": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("смена видимости: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	updated := decodeProjection(t, rec)
	if updated["isPublic"] != true {
		t.Error("isPublic не изменился на true")
	}

	// Публичный файл читают все
	if rec := stack.do(t, http.MethodGet, contentPath, stranger, nil); rec.Code != http.StatusOK {
		t.Errorf("чужой к публичному: хотели 200, получили %d", rec.Code)
	}
	if rec := stack.do(t, http.MethodGet, contentPath, "", nil); rec.Code != http.StatusOK {
		t.Errorf("аноним к публичному: хотели 200, получили %d", rec.Code)
	}

	// Метаданные всё равно только для владельца
	metaPath := fmt.Sprintf("/api/v1/files/%v", file["id"])
	if rec := stack.do(t, http.MethodGet, metaPath, stranger, nil); rec.Code != http.StatusNotFound {
		t.Errorf("чужие метаданные: хотели 404, получили %d", rec.Code)
	}
}

func TestEndToEnd_ListSemantics(t *testing.T) {
	stack := newTestStack(t)
	token := stack.signupAndSignin(t, "owner@example.com")

	// Пустой корень — пустой массив, не null
	rec := stack.do(t, http.MethodGet, "/api/v1/files", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("листинг: статус %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" && body != "[]" {
		t.Errorf("пустой листинг: хотели [], получили %q", body)
	}

	// Несуществующий родитель — тоже пустой массив
	rec = stack.do(t, http.MethodGet, "/api/v1/files?parentId="+uuid.New().String(), token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("листинг несуществующего родителя: статус %d", rec.Code)
	}

	// Синтаксически некорректный родитель — 401
	rec = stack.do(t, http.MethodGet, "/api/v1/files?parentId=not-a-uuid", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("некорректный parentId: хотели 401, получили %d", rec.Code)
	}

	// Страница размером 20
	for i := 0; i < 25; i++ {
		rec := stack.do(t, http.MethodPost, "/api/v1/files", token, map[string]any{
			"name": fmt.Sprintf("f-%d", i),
			"type": "folder",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("создание папки %d: статус %d", i, rec.Code)
		}
	}

	var page []map[string]any
	rec = stack.do(t, http.MethodGet, "/api/v1/files?page=0", token, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("некорректный листинг: %v", err)
	}
	if len(page) != 20 {
		t.Errorf("страница 0: хотели 20 записей, получили %d", len(page))
	}

	rec = stack.do(t, http.MethodGet, "/api/v1/files?page=1", token, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("некорректный листинг: %v", err)
	}
	if len(page) != 5 {
		t.Errorf("страница 1: хотели 5 записей, получили %d", len(page))
	}
}

func TestEndToEnd_Unauthorized(t *testing.T) {
	stack := newTestStack(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/files"},
		{http.MethodGet, "/api/v1/files"},
		{http.MethodGet, "/api/v1/files/" + uuid.New().String()},
		{http.MethodPut, "/api/v1/files/" + uuid.New().String() + "/visibility"},
		{http.MethodPost, "/api/v1/auth/signout"},
	}

	for _, p := range paths {
		rec := stack.do(t, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: хотели 401, получили %d", p.method, p.path, rec.Code)
		}
		var resp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error != "Unauthorized" {
			t.Errorf("%s %s: тело %q", p.method, p.path, rec.Body.String())
		}
	}
}

func TestEndToEnd_ThumbnailLifecycle(t *testing.T) {
	stack := newTestStack(t)
	token := stack.signupAndSignin(t, "owner@example.com")

	rec := stack.do(t, http.MethodPost, "/api/v1/files", token, map[string]any{
		"name":     "pic.png",
		"type":     "image",
		"isPublic": true,
		"data":     base64.StdEncoding.EncodeToString(pngBytes(t, 300, 200)),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("создание изображения: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	file := decodeProjection(t, rec)
	variantPath := fmt.Sprintf("/api/v1/files/%v/content?size=100", file["id"])

	// До обработки задания вариант недоступен
	if rec := stack.do(t, http.MethodGet, variantPath, "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("вариант до генерации: хотели 404, получили %d", rec.Code)
	}

	// Запускаем конвейер и дожидаемся завершения задания
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stack.pool.Start(ctx)
	defer stack.pool.Stop()

	deadline := time.After(3 * time.Second)
	for stack.jobs.doneCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("конвейер не обработал задание за отведённое время")
		case <-time.After(10 * time.Millisecond):
		}
	}

	rec = stack.do(t, http.MethodGet, variantPath, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("вариант после генерации: хотели 200, получили %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("пустые байты варианта")
	}

	// Недопустимая ширина — 400
	badPath := fmt.Sprintf("/api/v1/files/%v/content?size=333", file["id"])
	if rec := stack.do(t, http.MethodGet, badPath, "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("недопустимая ширина: хотели 400, получили %d", rec.Code)
	}
}

func TestEndToEnd_SignoutInvalidatesToken(t *testing.T) {
	stack := newTestStack(t)
	token := stack.signupAndSignin(t, "owner@example.com")

	rec := stack.do(t, http.MethodPost, "/api/v1/auth/signout", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("signout: хотели 204, получили %d", rec.Code)
	}

	rec = stack.do(t, http.MethodGet, "/api/v1/files", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("токен после signout: хотели 401, получили %d", rec.Code)
	}
}

func TestEndToEnd_FolderContentRejected(t *testing.T) {
	stack := newTestStack(t)
	token := stack.signupAndSignin(t, "owner@example.com")

	rec := stack.do(t, http.MethodPost, "/api/v1/files", token, map[string]any{
		"name":     "docs",
		"type":     "folder",
		"isPublic": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("создание папки: статус %d", rec.Code)
	}
	folder := decodeProjection(t, rec)

	rec = stack.do(t, http.MethodGet, fmt.Sprintf("/api/v1/files/%v/content", folder["id"]), token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("содержимое папки: хотели 400, получили %d", rec.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error != "folder has no content" {
		t.Errorf("сообщение: хотели %q, получили %q", "folder has no content", rec.Body.String())
	}
}

func TestEndToEnd_HealthEndpoints(t *testing.T) {
	stack := newTestStack(t)

	rec := stack.do(t, http.MethodGet, "/health/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("liveness: хотели 200, получили %d", rec.Code)
	}

	// Checkers не инициализированы — readiness отвечает 503
	rec = stack.do(t, http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness без зависимостей: хотели 503, получили %d", rec.Code)
	}

	rec = stack.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics: хотели 200, получили %d", rec.Code)
	}
}
