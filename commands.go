package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/controllers"
	"github.com/kendall-kelly/field-service-api/logger"
	"github.com/kendall-kelly/field-service-api/routes"
	"github.com/kendall-kelly/field-service-api/scheduler"
	"github.com/kendall-kelly/field-service-api/services"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

// app is what every command needs once configuration is loaded
type app struct {
	cfg *config.Config
	log *logger.Logger
	db  *gorm.DB
}

// bootstrap loads configuration, builds the logger and opens the migrated database
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.GoEnv, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	logger.SetGlobal(log)

	if err := config.ConnectDatabase(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := config.Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database ready", "env", cfg.GoEnv)

	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.log.Sync()
}

// newRootCommand builds the CLI. Running it without a subcommand serves the API.
func newRootCommand() *cobra.Command {
	serveCmd := newServeCommand()

	rootCmd := &cobra.Command{
		Use:          "field-service-api",
		Short:        "Field service job management API",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	rootCmd.AddCommand(
		serveCmd,
		newMigrateCommand(),
		newSweepCommand(),
		newSeedAdminCommand(),
	)
	return rootCmd
}

func newServeCommand() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Args:  cobra.NoArgs,
		Short: "Start the HTTP API and the overdue sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()
			if port != "" {
				a.cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "port to listen on (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	if a.cfg.AWSS3Bucket != "" {
		store, err := services.NewS3Service(ctx, a.cfg)
		if err != nil {
			return err
		}
		controllers.SetImageService(services.NewS3ImageService(store))
	} else {
		a.log.Warn("AWS_S3_BUCKET not set, equipment photo uploads are disabled")
	}

	if a.cfg.AdminEmail != "" {
		if err := ensureAdmin(ctx, a, a.cfg.AdminEmail, "Administrator", a.cfg.AdminPassword); err != nil {
			return err
		}
	}

	sched, err := scheduler.New(services.NewOverdueSweeper(a.db, a.log), a.cfg.OverdueSweepSchedule, a.log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           routes.NewRouter(a.cfg, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("server is running", "addr", "http://localhost:"+a.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sched.Run(gctx, shutdownTimeout)
	})

	return g.Wait()
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Args:  cobra.NoArgs,
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			tables, err := a.db.Migrator().GetTables()
			if err != nil {
				return fmt.Errorf("failed to list tables: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d tables\n", len(tables))
			return nil
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Args:  cobra.NoArgs,
		Short: "Recompute the overdue flag of every job once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			result, err := services.NewOverdueSweeper(a.db, a.log).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, updated %d, failed %d\n", result.Scanned, result.Updated, result.Failed)
			return nil
		},
	}
}

func newSeedAdminCommand() *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Args:  cobra.NoArgs,
		Short: "Create the admin account if it does not exist",
		Long:  `Create an admin account. Flags fall back to ADMIN_EMAIL and ADMIN_PASSWORD.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if email == "" {
				email = a.cfg.AdminEmail
			}
			if password == "" {
				password = a.cfg.AdminPassword
			}
			if email == "" || password == "" {
				return errors.New("an admin email and password are required")
			}
			return ensureAdmin(cmd.Context(), a, email, name, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&name, "name", "Administrator", "admin display name")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	return cmd
}

func ensureAdmin(ctx context.Context, a *app, email, name, password string) error {
	created, err := services.NewUserService(a.db).EnsureAdmin(ctx, email, name, password)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	if created {
		a.log.Info("admin account created", "email", email)
	} else {
		a.log.Info("admin account already exists", "email", email)
	}
	return nil
}
