package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/malauth/internal/auth"
	"github.com/MGallo-Code/malauth/internal/config"
	"github.com/MGallo-Code/malauth/internal/myanimelist"
	"github.com/MGallo-Code/malauth/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	// Set up slog to output as json with configured level
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes always execute before os.Exit.
	if err := run(ctx, cfg, nil, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// mal overrides MyAnimeList endpoints and transport (tests only; nil in production).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, mal *myanimelist.Config, ready chan<- string) error {
	// Sessions: Redis when configured, otherwise process memory.
	var sessions auth.SessionStore
	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()
		sessions = store.NewRedisSessionStore(rdb)
	} else {
		slog.Warn("REDIS_URL not set, sessions are kept in memory")
		sessions = store.NewMemorySessionStore()
	}

	// Local user records are optional; without them the profile itself is the session user.
	var users userStore
	if cfg.DatabaseURL != "" {
		ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to set up postgres store: %w", err)
		}
		defer ps.Close()

		migrationsFS, err := fs.Sub(migrationsDir, "migrations")
		if err != nil {
			return fmt.Errorf("failed to access embedded migrations: %w", err)
		}
		if err := ps.Migrate(ctx, migrationsFS); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		users = ps
	}

	a, err := newAuthenticator(cfg, sessions, users, mal)
	if err != nil {
		return err
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{Handler: buildRouter(a)}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("malauth listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// newAuthenticator builds the authenticator with the MyAnimeList strategy registered.
// users may be nil, in which case the profile itself is kept in the session.
func newAuthenticator(cfg *config.Config, sessions auth.SessionStore, users userStore, mal *myanimelist.Config) (*auth.Authenticator, error) {
	a := &auth.Authenticator{
		Sessions:        sessions,
		SessionTTL:      cfg.SessionTTL,
		InsecureCookies: cfg.CookieInsecure,
		LoginURL:        "/",
	}

	malCfg := myanimelist.Config{}
	if mal != nil {
		malCfg = *mal
	}
	malCfg.ClientID = cfg.MALClientID
	malCfg.ClientSecret = cfg.MALClientSecret
	malCfg.CallbackURL = cfg.MALCallbackURL
	malCfg.PKCEMethod = cfg.MALPKCEMethod

	var verify myanimelist.VerifyFunc
	if users != nil {
		verify = wireUserRecords(a, users)
	} else {
		verify = wireProfileSessions(a)
	}
	s, err := myanimelist.New(malCfg, verify)
	if err != nil {
		return nil, fmt.Errorf("failed to set up myanimelist strategy: %w", err)
	}
	a.Use(s)
	return a, nil
}

// buildRouter wires all routes and middleware.
// Called from run() and by smoke tests.
func buildRouter(a *auth.Authenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	login := a.Authenticate(myanimelist.Name, auth.Options{
		SuccessRedirect: "/user",
		FailureRedirect: "/",
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/", login)
	r.Get("/auth/myanimelist/callback", login)
	r.Get("/logout", a.Logout("/"))

	// Authentication required routes
	r.Group(func(r chi.Router) {
		r.Use(a.RequireAuth)
		r.Get("/user", func(w http.ResponseWriter, r *http.Request) {
			user, _ := auth.UserFromContext(r.Context())
			auth.JSON(w, r, http.StatusOK, user)
		})
	})

	return r
}
