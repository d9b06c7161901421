package types

import "time"

// Task is a unit of work owned by a single user.
type Task struct {
	// ID is the unique identifier of the task.
	ID int `json:"id" db:"id"`

	// Title is a short summary of the task.
	Title string `json:"title" db:"title"`

	// Description optionally holds free-form details.
	Description *string `json:"description" db:"description"`

	// OwnerID references the user who owns the task.
	OwnerID int `json:"owner_id" db:"owner_id"`

	// Attachment describes the file stored alongside the task, if any.
	Attachment *Attachment `json:"attachment,omitempty" db:"-"`

	// CreatedAt is the timestamp when the task was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the task.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Attachment is the object storage metadata for a task file.
type Attachment struct {
	// Key is the object key in the configured bucket. Not exposed to clients.
	Key string `json:"-" db:"attachment_key"`

	// Filename is the original name of the uploaded file.
	Filename string `json:"filename" db:"attachment_name"`

	// ContentType is the MIME type recorded at upload time.
	ContentType string `json:"content_type" db:"attachment_content_type"`

	// Size is the object size in bytes.
	Size int64 `json:"size" db:"attachment_size"`
}
