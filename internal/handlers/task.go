package handlers

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/taskhub/apiserver/internal/logging"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

const (
	maxAttachmentBytes = 10 << 20
	maxMultipartMemory = 1 << 20
	formFieldFile      = "file"
)

// TaskHandler provides owner-scoped task endpoints.
type TaskHandler struct {
	taskService *services.TaskService
	log         logging.Logger
}

// NewTaskHandler constructs a handler with the provided service.
func NewTaskHandler(taskService *services.TaskService, log logging.Logger) *TaskHandler {
	return &TaskHandler{taskService: taskService, log: log}
}

// TaskRouter registers task routes on the given router. Every route requires
// an authenticated user.
func TaskRouter(
	r chi.Router,
	taskService *services.TaskService,
	authMiddleware func(http.Handler) http.Handler,
	log logging.Logger,
) {
	handler := NewTaskHandler(taskService, log)

	r.Use(authMiddleware)
	r.Get("/", handler.ListTasks)
	r.Post("/", handler.CreateTask)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Put("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)
		r.Get("/attachment", handler.GetAttachment)
		r.Put("/attachment", handler.PutAttachment)
	})
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks, total, err := h.taskService.List(r.Context(), user.ID, offset, limit)
	if err != nil {
		writeInternal(w, r, h.log, "list tasks failed", err)
		return
	}
	if tasks == nil {
		tasks = []types.Task{}
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.Create(r.Context(), user.ID, req.input())
	if err != nil {
		if errors.Is(err, store.ErrOwnerNotFound) {
			writeError(w, http.StatusForbidden, detailNotAuthorized)
			return
		}
		writeInternal(w, r, h.log, "create task failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.currentUserAndTaskID(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.Get(r.Context(), id, user.ID)
	if err != nil {
		h.writeTaskError(w, r, "fetch task failed", err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.currentUserAndTaskID(w, r)
	if !ok {
		return
	}

	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.Update(r.Context(), id, user.ID, req.input())
	if err != nil {
		h.writeTaskError(w, r, "update task failed", err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.currentUserAndTaskID(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.Delete(r.Context(), id, user.ID)
	if err != nil {
		h.writeTaskError(w, r, "delete task failed", err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) PutAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.taskService.AttachmentsEnabled() {
		writeError(w, http.StatusServiceUnavailable, detailAttachmentsOff)
		return
	}
	user, id, ok := h.currentUserAndTaskID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Attachment too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	if header.Size > maxAttachmentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Attachment too large")
		return
	}

	contentType, err := attachmentContentType(file, header)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}

	task, err := h.taskService.SetAttachment(r.Context(), id, user.ID, services.AttachmentUpload{
		Filename:    filepath.Base(header.Filename),
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.writeTaskError(w, r, "store attachment failed", err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.taskService.AttachmentsEnabled() {
		writeError(w, http.StatusServiceUnavailable, detailAttachmentsOff)
		return
	}
	user, id, ok := h.currentUserAndTaskID(w, r)
	if !ok {
		return
	}

	meta, body, err := h.taskService.OpenAttachment(r.Context(), id, user.ID)
	if err != nil {
		h.writeTaskError(w, r, "open attachment failed", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": meta.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.log.Warn(r.Context(), "stream attachment interrupted", "task_id", id, "error", err)
	}
}

func (h *TaskHandler) currentUser(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, detailNotAuthorized)
		return types.User{}, false
	}
	return user, true
}

func (h *TaskHandler) currentUserAndTaskID(w http.ResponseWriter, r *http.Request) (types.User, int, bool) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return types.User{}, 0, false
	}
	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return types.User{}, 0, false
	}
	return user, id, true
}

func (h *TaskHandler) writeTaskError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, detailTaskNotFound)
	case errors.Is(err, services.ErrAttachmentNotFound):
		writeError(w, http.StatusNotFound, detailAttachmentAbsent)
	case errors.Is(err, services.ErrStorageDisabled):
		writeError(w, http.StatusServiceUnavailable, detailAttachmentsOff)
	default:
		writeInternal(w, r, h.log, msg, err)
	}
}

// attachmentContentType trusts the part header unless it is missing or
// generic, in which case the content is sniffed.
func attachmentContentType(file multipart.File, header *multipart.FileHeader) (string, error) {
	declared := strings.TrimSpace(header.Header.Get("Content-Type"))
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}

	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return detected.String(), nil
}

// TaskRequest is the body of task create and update.
type TaskRequest struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitnil,max=4000"`
}

func (r *TaskRequest) normalize() {
	r.Title = strings.TrimSpace(r.Title)
}

func (r TaskRequest) input() services.TaskInput {
	return services.TaskInput{
		Title:       r.Title,
		Description: r.Description,
	}
}
