package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/taskhub/apiserver/internal/storage"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]types.User
	err    error
}

func newMemUsers() *memUsers {
	return &memUsers{nextID: 1, byID: map[int]types.User{}}
}

func (m *memUsers) find(match func(types.User) bool) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	for _, u := range m.byID {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id int) (types.User, error) {
	return m.find(func(u types.User) bool { return u.ID == id })
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (types.User, error) {
	return m.find(func(u types.User) bool { return u.Username == username })
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	return m.find(func(u types.User) bool { return u.Email == email })
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = m.nextID
	m.nextID++
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) setActive(id int, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.IsActive = active
	m.byID[id] = u
}

type memTasks struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]types.Task
}

func newMemTasks() *memTasks {
	return &memTasks{nextID: 1, byID: map[int]types.Task{}}
}

func (m *memTasks) List(_ context.Context, ownerID, offset, limit int) ([]types.Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var owned []types.Task
	for id := 1; id < m.nextID; id++ {
		if t, ok := m.byID[id]; ok && t.OwnerID == ownerID {
			owned = append(owned, t)
		}
	}
	total := len(owned)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return owned[offset:end], total, nil
}

func (m *memTasks) Get(_ context.Context, id, ownerID int) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok || t.OwnerID != ownerID {
		return types.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (m *memTasks) Create(_ context.Context, task types.Task) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.ID = m.nextID
	m.nextID++
	m.byID[task.ID] = task
	return task, nil
}

func (m *memTasks) Update(_ context.Context, task types.Task) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[task.ID]
	if !ok || existing.OwnerID != task.OwnerID {
		return types.Task{}, store.ErrNotFound
	}
	existing.Title = task.Title
	existing.Description = task.Description
	m.byID[task.ID] = existing
	return existing, nil
}

func (m *memTasks) Delete(_ context.Context, id, ownerID int) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok || t.OwnerID != ownerID {
		return types.Task{}, store.ErrNotFound
	}
	delete(m.byID, id)
	return t, nil
}

func (m *memTasks) SetAttachment(_ context.Context, id, ownerID int, attachment types.Attachment) (types.Task, *types.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok || t.OwnerID != ownerID {
		return types.Task{}, nil, store.ErrNotFound
	}
	previous := t.Attachment
	t.Attachment = &attachment
	m.byID[id] = t
	return t, previous, nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

var errBoom = errors.New("boom")
