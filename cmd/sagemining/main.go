package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/SIMPLYBOYS/sage_mining/internal/admin"
	"github.com/SIMPLYBOYS/sage_mining/internal/api"
	"github.com/SIMPLYBOYS/sage_mining/internal/auth"
	"github.com/SIMPLYBOYS/sage_mining/internal/config"
	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/mailer"
	"github.com/SIMPLYBOYS/sage_mining/internal/mining"
	"github.com/SIMPLYBOYS/sage_mining/internal/notify"
	"github.com/SIMPLYBOYS/sage_mining/internal/referral"
	"github.com/SIMPLYBOYS/sage_mining/internal/settings"
	"github.com/SIMPLYBOYS/sage_mining/internal/tasks"
	"github.com/SIMPLYBOYS/sage_mining/internal/users"
	"github.com/SIMPLYBOYS/sage_mining/internal/websocket"
	"github.com/SIMPLYBOYS/sage_mining/internal/withdrawal"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sagemining",
		Usage: "Sage mining rewards API",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "HTTP listen port"},
			&cli.StringFlag{Name: "store", Usage: "Storage backend: postgres or memory"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
			&cli.StringFlag{Name: "db-host", Usage: "Postgres host"},
			&cli.IntFlag{Name: "db-port", Usage: "Postgres port"},
			&cli.StringFlag{Name: "db-user", Usage: "Postgres user"},
			&cli.StringFlag{Name: "db-password", Usage: "Postgres password"},
			&cli.StringFlag{Name: "db-name", Usage: "Postgres database name"},
			&cli.StringFlag{Name: "migrations", Usage: "Migration source URL"},
			&cli.StringFlag{Name: "log-dir", Usage: "Directory for daily log files"},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: migrate,
			},
		},
	}
}

// loadConfig reads the environment and lets flags that were set win.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(func(cfg *config.Config) {
		if c.IsSet("port") {
			cfg.APIPort = c.Int("port")
		}
		if c.IsSet("store") {
			cfg.Store = c.String("store")
		}
		if c.IsSet("development") {
			cfg.Development = c.Bool("development")
		}
		if c.IsSet("db-host") {
			cfg.Postgres.Host = c.String("db-host")
		}
		if c.IsSet("db-port") {
			cfg.Postgres.Port = strconv.Itoa(c.Int("db-port"))
		}
		if c.IsSet("db-user") {
			cfg.Postgres.User = c.String("db-user")
		}
		if c.IsSet("db-password") {
			cfg.Postgres.Password = c.String("db-password")
		}
		if c.IsSet("db-name") {
			cfg.Postgres.Name = c.String("db-name")
		}
		if c.IsSet("migrations") {
			cfg.Postgres.MigrationsPath = c.String("migrations")
		}
		if c.IsSet("log-dir") {
			cfg.LogDir = c.String("log-dir")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Configure(logger.ParseLevel(cfg.LogLevel), cfg.Development)
	if cfg.LogDir != "" {
		if err := logger.EnableFileLogging(cfg.LogDir); err != nil {
			return nil, fmt.Errorf("failed to enable file logging: %w", err)
		}
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (db.DBService, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("Using in-memory store, data is lost on restart")
		return db.NewMemoryDB(), nil
	}
	return db.NewDBService(db.PostgresOperations{}, cfg.Postgres)
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Store == config.StoreMemory {
		return fmt.Errorf("migrate needs the postgres store")
	}
	store, err := db.NewDBService(db.PostgresOperations{}, cfg.Postgres)
	if err != nil {
		return err
	}
	logger.Info("Migrations applied from %s", cfg.Postgres.MigrationsPath)
	return store.Close()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info("Sage mining starting...")

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mail mailer.Mailer = mailer.LogMailer{}
	if cfg.SMTPEnabled() {
		mail = mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender)
	}

	appSettings := settings.NewService(store)
	if err := appSettings.Load(ctx); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	authManager := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	notifier := notify.NewNotifier(store, hub)
	referrals := referral.NewService(store, notifier, cfg.ReferralReward)
	engine := mining.NewEngine(store, mining.PolicyFromConfig(cfg), notifier, referrals, cfg.StaleSessionGrace)
	adminService, err := admin.NewService(store, authManager, cfg.AdminPassword, appSettings, notifier)
	if err != nil {
		return err
	}

	go engine.RunJanitor(ctx, cfg.JanitorInterval)

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := &api.Handler{
		Auth:          authManager,
		Users:         users.NewService(store, authManager, referrals, mail, cfg.ResetTokenTTL),
		Tasks:         tasks.NewCatalog(store, notifier),
		Mining:        engine,
		Withdrawals:   withdrawal.NewQueue(store, appSettings, notifier, mail),
		Referrals:     referrals,
		Notifier:      notifier,
		Announcements: notify.NewAnnouncements(store, notifier),
		Settings:      appSettings,
		Admin:         adminService,
		Hub:           hub,
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           api.SetupRouter(handler, cfg.CORSOrigin, cfg.Development),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to run server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
