// Package server initializes and runs the authentication server: it wires
// configuration, logging, the database, the password exchange service and the
// HTTP endpoint, and handles graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/bindguard/internal/logging"
	"github.com/dmitrijs2005/bindguard/internal/server/config"
	"github.com/dmitrijs2005/bindguard/internal/server/httpapi"
	"github.com/dmitrijs2005/bindguard/internal/server/opaque"
	"github.com/dmitrijs2005/bindguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bindguard/internal/server/services"

	"github.com/dmitrijs2005/bindguard/internal/common"
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	opaqueService *opaque.Service
	userService   *services.UserService
}

func NewApp(cfg *config.Config) (*App, error) {

	s := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(s)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	seed, err := hex.DecodeString(cfg.ServerKeySeed)
	if err != nil || len(seed) != common.ServerKeySeedSize {
		return nil, fmt.Errorf("server key seed must be %d hex-encoded bytes", common.ServerKeySeedSize)
	}
	codec, err := opaque.NewCodec(seed)
	if err != nil {
		return nil, fmt.Errorf("envelope codec init error: %w", err)
	}
	driver := opaque.NewDriver(seed)

	osvc := opaque.NewService(db, rm, driver, codec, logger)
	us := services.NewUserService(db, rm, cfg)

	return &App{config: cfg, logger: logger, db: db, opaqueService: osvc, userService: us}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := httpapi.NewHTTPServer(app.config.EndpointAddr, app.logger, app.opaqueService, app.userService, app.db)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
}
