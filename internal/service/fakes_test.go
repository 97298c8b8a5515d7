package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/gofilevault/internal/domain/model"
	"github.com/bigkaa/gofilevault/internal/repository"
	"github.com/bigkaa/gofilevault/internal/session"
)

// testLogger — логгер для тестов, пишет только ошибки.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeFileRepo — in-memory реализация FileRepository.
type fakeFileRepo struct {
	mu      sync.Mutex
	entries map[string]*model.FileEntry
	// createOrder — идентификаторы в порядке вставки (для проверки
	// последовательности фиксация → постановка задания)
	createOrder []string
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{entries: make(map[string]*model.FileEntry)}
}

func (r *fakeFileRepo) Create(_ context.Context, entry *model.FileEntry) (*model.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *entry
	stored.ID = uuid.New().String()
	stored.CreatedAt = time.Now().UTC()
	r.entries[stored.ID] = &stored
	r.createOrder = append(r.createOrder, stored.ID)
	return &stored, nil
}

func (r *fakeFileRepo) GetByID(_ context.Context, id string) (*model.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (r *fakeFileRepo) GetByOwner(_ context.Context, id, userID string) (*model.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || entry.UserID != userID {
		return nil, repository.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (r *fakeFileRepo) ListByParent(_ context.Context, userID string, parent model.ParentRef, page int) ([]*model.FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := []*model.FileEntry{}
	for _, id := range r.createOrder {
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

func (r *fakeFileRepo) SetVisibility(_ context.Context, id, userID string, isPublic bool) (*model.FileEntry, error) {
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

// fakeUserRepo — in-memory реализация UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, email, passwordHash string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return nil, repository.ErrEmailTaken
		}
	}
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

// fakeSessionStore — in-memory реализация session.Store.
type fakeSessionStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{tokens: make(map[string]string)}
}

func (s *fakeSessionStore) Get(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.tokens[token]
	if !ok {
		return "", session.ErrNoSession
	}
	return userID, nil
}

func (s *fakeSessionStore) Put(_ context.Context, token, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
	return nil
}

func (s *fakeSessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (s *fakeSessionStore) Close() error { return nil }

// fakeEnqueuer — записывающая реализация Enqueuer.
// Для каждой постановки запоминает, была ли строка метаданных
// уже зафиксирована в репозитории на момент вызова.
type fakeEnqueuer struct {
	mu    sync.Mutex
	files *fakeFileRepo
	calls []enqueueCall
	err   error
}

type enqueueCall struct {
	fileID         string
	userID         string
	afterPersisted bool
}

func newFakeEnqueuer(files *fakeFileRepo) *fakeEnqueuer {
	return &fakeEnqueuer{files: files}
}

func (e *fakeEnqueuer) Enqueue(ctx context.Context, fileID, userID string) error {
	_, lookupErr := e.files.GetByID(ctx, fileID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, enqueueCall{
		fileID:         fileID,
		userID:         userID,
		afterPersisted: lookupErr == nil,
	})
	return e.err
}
