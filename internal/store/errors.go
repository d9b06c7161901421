package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

var (
	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrDuplicateEmail is returned when the email is already taken.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrOwnerNotFound is returned when a task references a missing user.
	ErrOwnerNotFound = errors.New("owner does not exist")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"

	constraintUsername  = "users_username_key"
	constraintEmail     = "users_email_key"
	constraintTaskOwner = "tasks_owner_id_fkey"
)

// translateError maps constraint violations onto store sentinels.
func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		switch pqErr.Constraint {
		case constraintUsername:
			return ErrDuplicateUsername
		case constraintEmail:
			return ErrDuplicateEmail
		}
	case pqForeignKeyViolation:
		if pqErr.Constraint == constraintTaskOwner {
			return ErrOwnerNotFound
		}
	}
	return err
}
