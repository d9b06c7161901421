package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/taskhub/apiserver/config"
	"github.com/taskhub/apiserver/internal/auth"
	"github.com/taskhub/apiserver/internal/db"
	"github.com/taskhub/apiserver/internal/handlers"
	"github.com/taskhub/apiserver/internal/logging"
	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/internal/storage"
	"github.com/taskhub/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
	log        logging.Logger
}

// routeDeps are the collaborators the router is built from.
type routeDeps struct {
	allowedOrigin string
	db            handlers.Pinger
	userService   *services.UserService
	taskService   *services.TaskService
	resolver      *auth.Resolver
	log           logging.Logger
}

// New connects the database, broker and object storage named by cfg and
// builds the HTTP server on top of them.
func New(ctx context.Context, cfg config.Config, log logging.Logger) (*Server, error) {
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:     []byte(cfg.Auth.SecretKey),
		Algorithm:  cfg.Auth.Algorithm,
		DefaultTTL: cfg.Auth.AccessTokenTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		if broker != nil {
			_ = broker.Close()
		}
		return nil, err
	}

	// Disabled backends must stay untyped nils inside the service interfaces.
	var events services.EventPublisher
	if broker != nil {
		events = broker
	}
	var objectStore services.ObjectStore
	if objects != nil {
		objectStore = objects
	}

	userRepo := store.NewUserRepository(dbConn)
	taskRepo := store.NewTaskRepository(dbConn)

	userService := services.NewUserService(
		userRepo,
		auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		tokens,
		cfg.Auth.AccessTokenTTL(),
		events,
		log,
	)
	taskService := services.NewTaskService(taskRepo, objectStore, events, log)

	router := newRouter(routeDeps{
		allowedOrigin: cfg.AllowedOrigin,
		db:            dbConn,
		userService:   userService,
		taskService:   taskService,
		resolver:      auth.NewResolver(tokens, userRepo),
		log:           log,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info(ctx, "server configured",
		"addr", httpServer.Addr,
		"mq_backend", cfg.MQ.Backend,
		"storage_backend", cfg.Storage.Backend,
	)

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mq:         broker,
		log:        log,
	}, nil
}

func newRouter(deps routeDeps) *chi.Mux {
	authMiddleware := handlers.RequireAuth(deps.resolver, deps.log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.RequestLogger(accessLogFormatter{log: deps.log}),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
		middleware.StripSlashes,
	)
	if origin := strings.TrimSpace(deps.allowedOrigin); origin != "" {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{origin},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Total-Count"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/", handlers.Root)
	router.Get("/healthz", handlers.Healthz(deps.db))
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, deps.userService, authMiddleware, deps.log)
	})
	router.Route("/api/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, deps.taskService, authMiddleware, deps.log)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info(context.Background(), "listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		if cerr := s.mq.Close(); cerr != nil {
			s.log.Warn(ctx, "close mq failed", "error", cerr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
