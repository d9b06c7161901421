package services

import (
	"context"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/apiserver/internal/logging"
	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/internal/store"
)

func newTestTaskService(t *testing.T, withStorage bool) (*TaskService, *memTasks, *memObjects, *recordingPublisher) {
	t.Helper()
	tasks := newMemTasks()
	events := &recordingPublisher{}
	var objects *memObjects
	var objectStore ObjectStore
	if withStorage {
		objects = newMemObjects()
		objectStore = objects
	}
	return NewTaskService(tasks, objectStore, events, logging.Nop()), tasks, objects, events
}

func TestTaskLifecycle(t *testing.T) {
	svc, _, _, events := newTestTaskService(t, false)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, TaskInput{Title: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 1, created.OwnerID)
	assert.Nil(t, created.Description)

	got, err := svc.Get(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "t1", got.Title)

	updated, err := svc.Update(ctx, created.ID, 1, TaskInput{Title: "t1b", Description: strp("d")})
	require.NoError(t, err)
	assert.Equal(t, "t1b", updated.Title)
	require.NotNil(t, updated.Description)

	deleted, err := svc.Delete(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "t1b", deleted.Title)

	_, err = svc.Get(ctx, created.ID, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, []string{EventTaskCreated, EventTaskUpdated, EventTaskDeleted}, events.types())
	assert.Equal(t, mq.ChannelTasks, events.events[0].channel)
	for _, e := range events.events {
		assert.Equal(t, "task:"+strconv.Itoa(created.ID), e.subject, e.eventType)
	}
}

func TestTasksAreOwnerScoped(t *testing.T) {
	svc, _, _, _ := newTestTaskService(t, false)
	ctx := context.Background()

	task, err := svc.Create(ctx, 1, TaskInput{Title: "mine"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, task.ID, 2)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.Update(ctx, task.ID, 2, TaskInput{Title: "stolen"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.Delete(ctx, task.ID, 2)
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, total, err := svc.List(ctx, 2, 0, 50)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)

	still, err := svc.Get(ctx, task.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "mine", still.Title)
}

func TestCreateWithMissingOwner(t *testing.T) {
	svc, _, _, events := newTestTaskService(t, false)

	_, err := svc.Create(context.Background(), 0, TaskInput{Title: "t"})
	assert.ErrorIs(t, err, store.ErrOwnerNotFound)
	assert.Empty(t, events.types())
}

func TestAttachmentsDisabled(t *testing.T) {
	svc, _, _, _ := newTestTaskService(t, false)
	ctx := context.Background()
	assert.False(t, svc.AttachmentsEnabled())

	task, err := svc.Create(ctx, 1, TaskInput{Title: "t"})
	require.NoError(t, err)

	_, err = svc.SetAttachment(ctx, task.ID, 1, AttachmentUpload{Filename: "a.txt", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrStorageDisabled)

	_, _, err = svc.OpenAttachment(ctx, task.ID, 1)
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestSetAttachmentReplacesPrevious(t *testing.T) {
	svc, _, objects, events := newTestTaskService(t, true)
	ctx := context.Background()

	task, err := svc.Create(ctx, 1, TaskInput{Title: "t"})
	require.NoError(t, err)

	first, err := svc.SetAttachment(ctx, task.ID, 1, AttachmentUpload{
		Filename: "a.txt", ContentType: "text/plain", Size: 3, Body: strings.NewReader("one"),
	})
	require.NoError(t, err)
	require.NotNil(t, first.Attachment)
	assert.True(t, strings.HasPrefix(first.Attachment.Key, "tasks/1/1/"))

	second, err := svc.SetAttachment(ctx, task.ID, 1, AttachmentUpload{
		Filename: "b.txt", ContentType: "text/plain", Size: 3, Body: strings.NewReader("two"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{second.Attachment.Key}, objects.keys())

	meta, body, err := svc.OpenAttachment(ctx, task.ID, 1)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, "b.txt", meta.Filename)

	assert.Contains(t, events.types(), EventTaskAttachmentSet)
}

func TestSetAttachmentOnForeignTaskUploadsNothing(t *testing.T) {
	svc, _, objects, _ := newTestTaskService(t, true)
	ctx := context.Background()

	task, err := svc.Create(ctx, 1, TaskInput{Title: "t"})
	require.NoError(t, err)

	_, err = svc.SetAttachment(ctx, task.ID, 2, AttachmentUpload{Filename: "a", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, objects.keys())
}

func TestSetAttachmentCleansUpOnStoreFailure(t *testing.T) {
	svc, tasks, objects, _ := newTestTaskService(t, true)
	ctx := context.Background()

	task, err := svc.Create(ctx, 1, TaskInput{Title: "t"})
	require.NoError(t, err)
	tasks.setErr = errBoom

	_, err = svc.SetAttachment(ctx, task.ID, 1, AttachmentUpload{Filename: "a", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, objects.keys())
}

func TestSetAttachmentUploadFailure(t *testing.T) {
	svc, _, objects, _ := newTestTaskService(t, true)
	ctx := context.Background()

	task, err := svc.Create(ctx, 1, TaskInput{Title: "t"})
	require.NoError(t, err)
	objects.putErr = errBoom

	_, err = svc.SetAttachment(ctx, task.ID, 1, AttachmentUpload{Filename: "a", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, errBoom)
}

func TestOpenAttachmentMissing(t *testing.T) {
	svc, _, _, _ := newTestTaskService(t, true)
	ctx := context.Background()

	task, err := svc.Create(ctx, 1, TaskInput{Title: "t"})
	require.NoError(t, err)

	_, _, err = svc.OpenAttachment(ctx, task.ID, 1)
	assert.ErrorIs(t, err, ErrAttachmentNotFound)
}

func TestDeleteRemovesAttachmentObject(t *testing.T) {
	svc, _, objects, _ := newTestTaskService(t, true)
	ctx := context.Background()

	task, err := svc.Create(ctx, 1, TaskInput{Title: "t"})
	require.NoError(t, err)
	_, err = svc.SetAttachment(ctx, task.ID, 1, AttachmentUpload{Filename: "a", Body: strings.NewReader("x")})
	require.NoError(t, err)
	require.Len(t, objects.keys(), 1)

	_, err = svc.Delete(ctx, task.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, objects.keys())
}

func TestListPaginates(t *testing.T) {
	svc, _, _, _ := newTestTaskService(t, false)
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c"} {
		_, err := svc.Create(ctx, 1, TaskInput{Title: title})
		require.NoError(t, err)
	}

	page, total, err := svc.List(ctx, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Title)
}
