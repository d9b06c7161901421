package services

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

func (m *memUsers) GetByID(_ context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	for _, u := range m.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Username == user.Username {
			return types.User{}, store.ErrDuplicateUsername
		}
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
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

type memTasks struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]types.Task
	// setErr, when set, fails SetAttachment after the object was uploaded.
	setErr error
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
		return []types.Task{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
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
	if task.OwnerID < 1 {
		return types.Task{}, store.ErrOwnerNotFound
	}
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
	if m.setErr != nil {
		return types.Task{}, nil, m.setErr
	}
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
	putErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
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

func (m *memObjects) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

type publishedEvent struct {
	channel   string
	eventType string
	subject   string
	payload   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, channel, eventType, subject string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, publishedEvent{channel: channel, eventType: eventType, subject: subject, payload: payload})
	return "evt-" + eventType, nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

var errBoom = errors.New("boom")
