package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskhub/apiserver/internal/auth"
	"github.com/taskhub/apiserver/internal/logging"
	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// ProfileUpdate carries the optional fields of a profile change. Username,
// when set, must equal the current username.
type ProfileUpdate struct {
	Username *string
	Email    *string
	Password *string
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo     UserRepository
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenManager
	tokenTTL time.Duration
	events   EventPublisher
	log      logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewUserService wires the user use-cases. events may be nil.
func NewUserService(
	repo UserRepository,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenManager,
	tokenTTL time.Duration,
	events EventPublisher,
	log logging.Logger,
) *UserService {
	if log == nil {
		log = logging.Nop()
	}
	return &UserService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		events:   events,
		log:      log.With("component", "user_service"),
	}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// Register creates an active account. Username and email uniqueness are both
// checked before anything is written.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	if err := s.ensureUsernameFree(ctx, in.Username); err != nil {
		return types.User{}, err
	}
	if err := s.ensureEmailFree(ctx, in.Email); err != nil {
		return types.User{}, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: digest,
		IsActive:     true,
	})
	if err != nil {
		return types.User{}, mapUserConflict(err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID, "username", user.Username)
	publishEvent(ctx, s.events, s.log, mq.ChannelUsers, EventUserRegistered, userSubject(user.ID), userEventPayload(user))
	return user, nil
}

// Authenticate checks credentials against the store. An unknown username and
// a wrong password fail identically.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a comparison so unknown users take as long as known ones.
			s.hasher.Verify(password, s.dummyDigest())
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token with the configured lifetime.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	token, err := s.tokens.IssueWithTTL(user.Username, user.ID, s.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// UpdateProfile applies email and password changes for user.
func (s *UserService) UpdateProfile(ctx context.Context, user types.User, in ProfileUpdate) (types.User, error) {
	if in.Username != nil && *in.Username != user.Username {
		return types.User{}, ErrUsernameImmutable
	}

	changed := false
	if in.Email != nil && *in.Email != user.Email {
		if err := s.ensureEmailFree(ctx, *in.Email); err != nil {
			return types.User{}, err
		}
		user.Email = *in.Email
		changed = true
	}
	if in.Password != nil {
		digest, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return types.User{}, err
		}
		user.PasswordHash = digest
		changed = true
	}
	if !changed {
		return user, nil
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, mapUserConflict(err)
	}
	s.log.Info(ctx, "profile updated", "user_id", updated.ID)
	return updated, nil
}

func (s *UserService) ensureUsernameFree(ctx context.Context, username string) error {
	_, err := s.repo.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return ErrUsernameTaken
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *UserService) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrEmailTaken
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *UserService) dummyDigest() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("taskhub-timing-equaliser")
	})
	return s.dummyHash
}

func mapUserConflict(err error) error {
	switch {
	case errors.Is(err, store.ErrDuplicateUsername):
		return ErrUsernameTaken
	case errors.Is(err, store.ErrDuplicateEmail):
		return ErrEmailTaken
	default:
		return err
	}
}

func userEventPayload(user types.User) map[string]any {
	return map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	}
}
