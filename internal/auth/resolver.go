package auth

import (
	"context"
	"errors"

	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

// UserLookup is the slice of the credential store the resolver needs.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
}

// Resolver turns a bearer token into the current, active user.
type Resolver struct {
	tokens *TokenManager
	users  UserLookup
}

func NewResolver(tokens *TokenManager, users UserLookup) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve loads the user named by claims. A missing user, or one whose id no
// longer matches the token, is reported as ErrUnknownSubject.
func (r *Resolver) Resolve(ctx context.Context, claims Claims) (types.User, error) {
	user, err := r.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnknownSubject
		}
		return types.User{}, err
	}
	if user.ID != claims.UserID {
		return types.User{}, ErrUnknownSubject
	}
	return user, nil
}

// RequireActive rejects disabled accounts.
func RequireActive(user types.User) (types.User, error) {
	if !user.IsActive {
		return types.User{}, ErrInactiveUser
	}
	return user, nil
}

// Authenticate runs verify, resolve and the active check in order.
func (r *Resolver) Authenticate(ctx context.Context, tokenString string) (types.User, error) {
	claims, err := r.tokens.Verify(tokenString)
	if err != nil {
		return types.User{}, err
	}
	user, err := r.Resolve(ctx, claims)
	if err != nil {
		return types.User{}, err
	}
	return RequireActive(user)
}
