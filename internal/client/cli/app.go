package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/apiclient/internal/apiclient"
	"github.com/dmitrijs2005/apiclient/internal/client/config"
	"github.com/dmitrijs2005/apiclient/internal/client/models"
	"github.com/dmitrijs2005/apiclient/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/apiclient/internal/client/services"
	"github.com/dmitrijs2005/apiclient/internal/client/storage"
	"github.com/dmitrijs2005/apiclient/internal/client/tokens"
	"github.com/dmitrijs2005/apiclient/internal/common"
	"github.com/dmitrijs2005/apiclient/internal/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type App struct {
	config      *config.Config
	db          *sql.DB
	tokens      *tokens.Store
	authService services.AuthService
	logger      logging.Logger
	reader      *bufio.Reader
	out         io.Writer

	mu   sync.Mutex
	user *models.User
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := newLogger(c.LogLevel)

	db, err := storage.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	ts, err := openTokenStore(ctx, db, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	deviceID, err := resolveDeviceID(ctx, db, c.DeviceID)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{
		config: c,
		db:     db,
		tokens: ts,
		logger: logger,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	api := apiclient.New(apiclient.Config{
		BaseURL:    c.BaseURL,
		APIVersion: c.APIVersion,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
		RetryDelay: c.RetryDelay,
		DeviceID:   deviceID,
	}, ts,
		apiclient.WithLogger(logger),
		apiclient.WithSessionExpiredHook(app.onSessionExpired),
	)

	app.authService = services.NewAuthService(api, ts, deviceID, logger)
	return app, nil
}

func newLogger(level string) logging.Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(logging.ParseLevel(level)).
		With().Timestamp().Logger()
	return logging.NewZerologLogger(zl)
}

// openTokenStore builds the token store on top of the metadata table,
// encrypting values when a storage secret is configured.
func openTokenStore(ctx context.Context, db *sql.DB, c *config.Config, logger logging.Logger) (*tokens.Store, error) {
	var backend tokens.Storage = tokens.NewMetadataStorage(db)
	if c.StorageSecret != "" {
		sealed, err := tokens.NewSealedStorage(ctx, backend, []byte(c.StorageSecret))
		if err != nil {
			return nil, fmt.Errorf("error opening token storage: %w", err)
		}
		backend = sealed
	}

	ts := tokens.NewStore(backend,
		tokens.WithRefreshThreshold(c.RefreshThreshold),
		tokens.WithLogger(logger),
	)
	ts.Initialize(ctx)
	return ts, nil
}

// resolveDeviceID returns the configured device id, or the one generated on
// a previous run, generating and saving a new one the first time.
func resolveDeviceID(ctx context.Context, db *sql.DB, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	repo := metadata.NewSQLiteRepository(db)
	saved, err := repo.Get(ctx, common.DeviceIDKey)
	if err != nil {
		return "", fmt.Errorf("error reading device id: %w", err)
	}
	if len(saved) > 0 {
		return string(saved), nil
	}

	id := uuid.NewString()
	if err := repo.Set(ctx, common.DeviceIDKey, []byte(id)); err != nil {
		return "", fmt.Errorf("error saving device id: %w", err)
	}
	return id, nil
}

func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to the API client (type 'help' for commands)")
	if a.isLoggedIn() {
		fmt.Fprintln(a.out, "Restored saved session.")
	}
	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) Close() error {
	return a.db.Close()
}

func (a *App) isLoggedIn() bool {
	return a.authService.IsAuthenticated()
}

func (a *App) setUser(u *models.User) {
	a.mu.Lock()
	a.user = u
	a.mu.Unlock()
}

func (a *App) currentUser() *models.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

// onSessionExpired runs on the goroutine of the request whose refresh failed.
func (a *App) onSessionExpired() {
	a.setUser(nil)
	fmt.Fprintln(a.out, "Session expired, please log in again.")
}

// status is the prompt decoration: the user's email once known.
func (a *App) status() string {
	if !a.isLoggedIn() {
		return ""
	}
	if u := a.currentUser(); u != nil {
		return fmt.Sprintf("(%s)", u.Email)
	}
	return "(logged in)"
}
