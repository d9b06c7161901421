package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskhub/apiserver/internal/auth"
	"github.com/taskhub/apiserver/internal/logging"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/types"
)

// AuthHandler provides registration, token and profile endpoints.
type AuthHandler struct {
	userService *services.UserService
	log         logging.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, log logging.Logger) *AuthHandler {
	return &AuthHandler{userService: userService, log: log}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(
	r chi.Router,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
	log logging.Logger,
) {
	handler := NewAuthHandler(userService, log)

	r.Post("/register", handler.Register)
	r.Post("/token", handler.Token)
	r.With(authMiddleware).Get("/users/me", handler.Me)
	r.With(authMiddleware).Patch("/users/me", handler.UpdateMe)
}

// RequireAuth verifies the bearer token, resolves its user and rejects
// inactive accounts before calling next with the user in context.
func RequireAuth(resolver *auth.Resolver, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeUnauthorized(w, detailCredentials)
				return
			}

			user, err := resolver.Authenticate(r.Context(), tokenString)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrInvalidToken):
				log.Debug(r.Context(), "token rejected", "reason", err)
				writeUnauthorized(w, detailCredentials)
				return
			case errors.Is(err, auth.ErrInactiveUser):
				writeError(w, http.StatusBadRequest, detailInactiveUser)
				return
			default:
				writeInternal(w, r, log, "resolve current user failed", err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUsernameTaken):
			writeError(w, http.StatusBadRequest, "Username already registered")
		case errors.Is(err, services.ErrEmailTaken):
			writeError(w, http.StatusBadRequest, "Email already registered")
		case errors.Is(err, auth.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, "invalid password")
		default:
			writeInternal(w, r, h.log, "register user failed", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message: "User created successfully",
		User: RegisteredUser{
			Username: user.Username,
			Email:    user.Email,
			ID:       user.ID,
		},
	})
}

// Token exchanges form-encoded credentials for a bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, detailInvalidRequest)
		return
	}

	req := TokenRequest{
		Username: strings.TrimSpace(r.PostForm.Get("username")),
		Password: r.PostForm.Get("password"),
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.userService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeUnauthorized(w, "Incorrect username or password")
			return
		}
		writeInternal(w, r, h.log, "login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, detailCredentials)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// UpdateMe changes the current user's email or password.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, detailCredentials)
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user, services.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUsernameImmutable):
			writeError(w, http.StatusBadRequest, "Username cannot be changed")
		case errors.Is(err, services.ErrEmailTaken):
			writeError(w, http.StatusBadRequest, "Email already registered")
		case errors.Is(err, auth.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, "invalid password")
		default:
			writeInternal(w, r, h.log, "update profile failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(updated))
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

func (r *RegisterRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
}

type TokenRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	Username *string `json:"username" validate:"omitempty,max=50"`
	Email    *string `json:"email" validate:"omitnil,email,max=254"`
	Password *string `json:"password" validate:"omitnil,min=1,max=72"`
}

func (r *UpdateProfileRequest) normalize() {
	r.Username = trimPtr(r.Username)
	r.Email = trimPtr(r.Email)
}

type RegisteredUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	ID       int    `json:"id"`
}

type RegisterResponse struct {
	Message string         `json:"message"`
	User    RegisteredUser `json:"user"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type UserResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

func newUserResponse(user types.User) UserResponse {
	return UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		IsActive: user.IsActive,
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
