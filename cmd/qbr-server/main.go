package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/beanphv/QBR-Dashboard/internal/config"
	"github.com/beanphv/QBR-Dashboard/internal/domain/admin"
	"github.com/beanphv/QBR-Dashboard/internal/domain/ingest"
	"github.com/beanphv/QBR-Dashboard/internal/platform/db"
	"github.com/beanphv/QBR-Dashboard/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "qbr-server",
		Short:        "340B QBR dashboard API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg != nil && cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if cfg != nil {
		logger = logger.Level(cfg.Level())
	}
	return logger
}

// migrationSource reads SQL files from dir, or the embedded set when dir is
// empty.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := cmd.Context()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Running migrations on schema: %s\n", cfg.DBSchema)
			count, err := db.NewMigrator(pool, migrationSource(dir)).Up(ctx, cfg.DBSchema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default: embedded)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := cmd.Context()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(dir)).Status(ctx, cfg.DBSchema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", cfg.DBSchema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default: embedded)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// importCmd runs a workbook through the same orchestrator the upload
// endpoint uses.
func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Ingest a QBR workbook from disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			quarter, _ := cmd.Flags().GetString("quarter")
			year, _ := cmd.Flags().GetString("year")
			uploader, _ := cmd.Flags().GetString("uploader")
			sheet, _ := cmd.Flags().GetString("sheet")
			if path == "" {
				return fmt.Errorf("--file is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := cmd.Context()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := newIngestService(pool, cfg, logger)
			if err != nil {
				return err
			}
			res, err := svc.Ingest(ctx, ingest.UploadRequest{
				UploaderID: uploader,
				Quarter:    quarter,
				Year:       year,
				Filename:   filepath.Base(path),
				Sheet:      sheet,
				File:       f,
			})
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			fmt.Printf("Upload %s: %d record(s) processed.\n", res.UploadID, res.RecordsProcessed)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to the .xlsx, .xls or .csv workbook")
	cmd.Flags().String("quarter", "", "Reporting quarter (Q1-Q4)")
	cmd.Flags().String("year", "", "Reporting year")
	cmd.Flags().String("uploader", "cli", "Uploader recorded on the upload history")
	cmd.Flags().String("sheet", "", "Sheet name a CSV file holds")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard users",
	}

	grantCmd := &cobra.Command{
		Use:   "grant",
		Short: "Create or update a user with a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			email, _ := cmd.Flags().GetString("email")
			role, _ := cmd.Flags().GetString("role")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			u, err := admin.NewService(admin.NewUserRepo(pool)).Grant(ctx, id, email, role)
			if err != nil {
				return err
			}
			fmt.Printf("User %s (%s) granted role %s.\n", u.ID, u.Email, u.Role)
			return nil
		},
	}
	grantCmd.Flags().String("id", "", "Subject (sub claim) of the user")
	grantCmd.Flags().String("email", "", "Email address")
	grantCmd.Flags().String("role", "admin", "Role: admin or analyst")
	cmd.AddCommand(grantCmd)

	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx := context.Background()
	pool, err := connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e, err := newServer(cfg, pool, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !isServerClosed(err) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
