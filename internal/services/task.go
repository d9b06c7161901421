package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/logging"
	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/internal/storage"
	"github.com/taskhub/apiserver/types"
)

// TaskRepository defines owner-scoped persistence operations for tasks.
type TaskRepository interface {
	List(ctx context.Context, ownerID, offset, limit int) ([]types.Task, int, error)
	Get(ctx context.Context, id, ownerID int) (types.Task, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	Delete(ctx context.Context, id, ownerID int) (types.Task, error)
	SetAttachment(ctx context.Context, id, ownerID int, attachment types.Attachment) (types.Task, *types.Attachment, error)
}

// ObjectStore is the object storage surface attachments need. *storage.Storage satisfies it.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var _ ObjectStore = (*storage.Storage)(nil)

// TaskInput is the writable part of a task.
type TaskInput struct {
	Title       string
	Description *string
}

// AttachmentUpload is a file to store against a task.
type AttachmentUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// TaskService encapsulates task use-cases. Every operation is scoped to ownerID.
type TaskService struct {
	repo    TaskRepository
	objects ObjectStore
	events  EventPublisher
	log     logging.Logger
	newKey  func(ownerID, taskID int) string
}

// NewTaskService wires the task use-cases. objects and events may be nil.
func NewTaskService(repo TaskRepository, objects ObjectStore, events EventPublisher, log logging.Logger) *TaskService {
	if log == nil {
		log = logging.Nop()
	}
	return &TaskService{
		repo:    repo,
		objects: objects,
		events:  events,
		log:     log.With("component", "task_service"),
		newKey:  attachmentKey,
	}
}

// AttachmentsEnabled reports whether an object store is configured.
func (s *TaskService) AttachmentsEnabled() bool {
	return s.objects != nil
}

func (s *TaskService) List(ctx context.Context, ownerID, offset, limit int) ([]types.Task, int, error) {
	return s.repo.List(ctx, ownerID, offset, limit)
}

func (s *TaskService) Get(ctx context.Context, id, ownerID int) (types.Task, error) {
	return s.repo.Get(ctx, id, ownerID)
}

func (s *TaskService) Create(ctx context.Context, ownerID int, in TaskInput) (types.Task, error) {
	task, err := s.repo.Create(ctx, types.Task{
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     ownerID,
	})
	if err != nil {
		return types.Task{}, err
	}
	publishEvent(ctx, s.events, s.log, mq.ChannelTasks, EventTaskCreated, taskSubject(task.ID), task)
	return task, nil
}

func (s *TaskService) Update(ctx context.Context, id, ownerID int, in TaskInput) (types.Task, error) {
	task, err := s.repo.Update(ctx, types.Task{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     ownerID,
	})
	if err != nil {
		return types.Task{}, err
	}
	publishEvent(ctx, s.events, s.log, mq.ChannelTasks, EventTaskUpdated, taskSubject(task.ID), task)
	return task, nil
}

// Delete removes the task and returns it as it was. Its attachment object is
// removed best-effort.
func (s *TaskService) Delete(ctx context.Context, id, ownerID int) (types.Task, error) {
	task, err := s.repo.Delete(ctx, id, ownerID)
	if err != nil {
		return types.Task{}, err
	}
	if task.Attachment != nil {
		s.removeObject(ctx, task.Attachment.Key)
	}
	publishEvent(ctx, s.events, s.log, mq.ChannelTasks, EventTaskDeleted, taskSubject(task.ID), map[string]int{
		"id":       task.ID,
		"owner_id": task.OwnerID,
	})
	return task, nil
}

// SetAttachment uploads a file and records it on the task, replacing any
// previous attachment.
func (s *TaskService) SetAttachment(ctx context.Context, id, ownerID int, upload AttachmentUpload) (types.Task, error) {
	if s.objects == nil {
		return types.Task{}, ErrStorageDisabled
	}
	if _, err := s.repo.Get(ctx, id, ownerID); err != nil {
		return types.Task{}, err
	}

	key := s.newKey(ownerID, id)
	if err := s.objects.Put(ctx, key, upload.Body, upload.Size, upload.ContentType); err != nil {
		return types.Task{}, fmt.Errorf("upload attachment: %w", err)
	}

	task, previous, err := s.repo.SetAttachment(ctx, id, ownerID, types.Attachment{
		Key:         key,
		Filename:    upload.Filename,
		ContentType: upload.ContentType,
		Size:        upload.Size,
	})
	if err != nil {
		s.removeObject(ctx, key)
		return types.Task{}, err
	}
	if previous != nil && previous.Key != key {
		s.removeObject(ctx, previous.Key)
	}

	publishEvent(ctx, s.events, s.log, mq.ChannelTasks, EventTaskAttachmentSet, taskSubject(task.ID), task)
	return task, nil
}

// OpenAttachment returns the attachment metadata and a reader for its content.
// The caller closes the reader.
func (s *TaskService) OpenAttachment(ctx context.Context, id, ownerID int) (types.Attachment, io.ReadCloser, error) {
	if s.objects == nil {
		return types.Attachment{}, nil, ErrStorageDisabled
	}
	task, err := s.repo.Get(ctx, id, ownerID)
	if err != nil {
		return types.Attachment{}, nil, err
	}
	if task.Attachment == nil {
		return types.Attachment{}, nil, ErrAttachmentNotFound
	}

	body, err := s.objects.Get(ctx, task.Attachment.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return types.Attachment{}, nil, ErrAttachmentNotFound
		}
		return types.Attachment{}, nil, fmt.Errorf("open attachment: %w", err)
	}
	return *task.Attachment, body, nil
}

func (s *TaskService) removeObject(ctx context.Context, key string) {
	if s.objects == nil || key == "" {
		return
	}
	if err := s.objects.Delete(ctx, key); err != nil {
		s.log.Warn(ctx, "delete attachment object failed", "key", key, "error", err)
	}
}

func attachmentKey(ownerID, taskID int) string {
	return fmt.Sprintf("tasks/%d/%d/%s", ownerID, taskID, uuid.NewString())
}
