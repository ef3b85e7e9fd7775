// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "servo-commissioning/docs"
	"servo-commissioning/internal/bus"
	"servo-commissioning/internal/commissioning"
	"servo-commissioning/internal/config"
	"servo-commissioning/internal/database"
	"servo-commissioning/internal/discovery/usb"
	"servo-commissioning/internal/handler"
	"servo-commissioning/internal/repository"
	"servo-commissioning/internal/routes"
	"servo-commissioning/internal/service"
	"servo-commissioning/internal/store"
	"servo-commissioning/internal/utils"
)

const (
	cleanupInterval  = time.Hour
	shutdownTimeout  = 30 * time.Second
	historyCapacity  = 1000
	dfuProbeDeadline = 3 * time.Second
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	// Commissioning
	resolver *bus.Resolver
	catalog  *store.Catalog
	engine   *commissioning.Engine
	flasher  *commissioning.Flasher
	loader   *store.Loader
	runners  service.Runners
	eventBus *handler.EventBus

	// Services
	commissioningService *service.CommissioningService

	// Repositories
	attemptRepo repository.AttemptRepository
}

// @title Servo Commissioning API
// @version 1.0.0
// @description Commissioning station service for servo motors and firmware modules

// @contact.name Servo Commissioning Support

// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8085
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		app.logger.Fatal("Application stopped with error", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, cfg.App.Name)
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initializeRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := app.initializeCommissioning(); err != nil {
		return nil, fmt.Errorf("failed to initialize commissioning: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDatabase connects to the attempt history database and runs
// migrations. Without a database, history is kept in memory.
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, attempt history kept in memory")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() error {
	if app.database != nil {
		app.attemptRepo = repository.NewAttemptRepository(app.database, app.logger)
	} else {
		app.attemptRepo = repository.NewMemoryAttemptRepository(historyCapacity, app.logger)
	}

	app.logger.Info("Repositories initialized successfully")
	return nil
}

// initializeCommissioning wires the bus, config store and flashing components
func (app *Application) initializeCommissioning() error {
	cc := app.config.Commissioning
	fc := app.config.Flashing

	app.resolver = bus.NewResolver(cc.PortPatterns, app.logger)

	opener := commissioning.NewSerialOpener(cc.ReadTimeout, app.logger)
	scanner := commissioning.NewScanner(cc.ScanMinID, cc.ScanMaxID, app.logger)
	negotiator := commissioning.NewNegotiator(opener, scanner, cc.NegotiationBauds, cc.ReducedVoltageBaud, app.logger)

	app.engine = commissioning.NewEngine(
		commissioning.EngineConfig{GOOS: runtime.GOOS, SettleDelay: cc.SettleDelay},
		app.resolver,
		negotiator,
		scanner,
		app.logger,
	)

	app.catalog = store.NewCatalog(cc.ReducedVoltageParts)
	app.loader = store.NewLoader(
		config.ExpandPath(app.config.Store.ConfigDir),
		app.catalog,
		store.Defaults{
			BaudRate:         cc.DefaultBaudRate,
			TemperatureLimit: cc.DefaultTemperature,
			ReturnDelay:      cc.DefaultReturnDelay,
		},
		app.logger,
	)

	var probe commissioning.DFUProbe
	if fc.ProbeUSB {
		usbScanner, err := usb.NewScanner(app.logger, &usb.Config{
			VendorID:    fc.DFUVendorID,
			ProductID:   fc.DFUProductID,
			ScanTimeout: dfuProbeDeadline,
			EnableDebug: app.config.IsDebugEnabled(),
		})
		if err != nil {
			return fmt.Errorf("failed to create DFU probe: %w", err)
		}
		probe = usbScanner
	}

	app.flasher = commissioning.NewFlasher(commissioning.FlasherConfig{
		Command:      fc.Command,
		Args:         fc.Args,
		BinaryDir:    config.ExpandPath(fc.BinaryDir),
		BinarySuffix: fc.BinarySuffix,
		Timeout:      fc.Timeout,
	}, probe, app.logger)

	app.runners = service.Runners{
		Motors:  commissioning.NewRunner("motors", cc.MotorTickInterval, app.logger),
		Modules: commissioning.NewRunner("modules", fc.ModuleTickPeriod, app.logger),
	}

	app.eventBus = handler.NewEventBus(app.logger)

	app.logger.Info("Commissioning initialized successfully",
		zap.Int("robot_parts", len(app.catalog.Parts())),
		zap.Int("modules", len(app.catalog.Modules())),
		zap.Bool("usb_probe", probe != nil),
	)
	return nil
}

// initializeServices creates service instances
func (app *Application) initializeServices() error {
	app.commissioningService = service.NewCommissioningService(
		app.engine,
		app.flasher,
		app.loader,
		app.catalog,
		app.attemptRepo,
		app.eventBus,
		app.runners,
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.resolver,
		app.eventBus,
		app.commissioningService,
	)

	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.config.GetServerAddr()))
	return nil
}

// Run serves until SIGINT/SIGTERM or a component fails, then shuts down
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.eventBus.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.commissioningService.RunCleanup(gctx, cleanupInterval, app.config.Database.Retention)
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("Shutdown requested", zap.NamedError("cause", context.Cause(gctx)))
		app.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, app.config.App.Name)
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if err := app.commissioningService.Shutdown(ctx); err != nil {
		app.logger.Error("Commissioning shutdown error", zap.Error(err))
	} else {
		app.logger.Info("In-flight attempts finished")
	}

	app.eventBus.Close()

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
