package services

import "errors"

var (
	ErrUsernameTaken      = errors.New("username already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameImmutable  = errors.New("username cannot be changed")
	ErrInvalidCredentials = errors.New("incorrect username or password")

	ErrStorageDisabled    = errors.New("attachments are disabled")
	ErrAttachmentNotFound = errors.New("attachment not found")
)
