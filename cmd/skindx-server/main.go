package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skindx/skindx/internal/config"
	"github.com/skindx/skindx/internal/domain/apikey"
	"github.com/skindx/skindx/internal/domain/cases"
	"github.com/skindx/skindx/internal/domain/doctor"
	"github.com/skindx/skindx/internal/domain/patient"
	"github.com/skindx/skindx/internal/platform/auth"
	"github.com/skindx/skindx/internal/platform/blobstore"
	"github.com/skindx/skindx/internal/platform/db"
	"github.com/skindx/skindx/internal/platform/middleware"
	"github.com/skindx/skindx/internal/platform/mldiag"
)

const version = "0.1.0"

// requestTimeout bounds a single request end to end. It must exceed the
// diagnosis call timeout so a slow classifier degrades the case instead of
// killing the upload.
const requestTimeout = 60 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "skindx-server",
		Short: "Skin Diagnosis API Server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Write a forward migration that reverses the change instead.")
			return nil
		},
	})

	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || name == "" || password == "" {
				return fmt.Errorf("--email, --name, and --password are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), time.Duration(cfg.AccessTokenTTL)*time.Minute)
			keySvc := apikey.NewService(apikey.NewRepoPG(pool))
			doctorSvc := doctor.NewService(doctor.NewRepoPG(pool), keySvc, tokens, pool, cfg.BcryptCost)

			d, key, err := doctorSvc.RegisterAdmin(ctx, doctor.RegisterInput{
				Email:    email,
				Name:     name,
				Password: password,
			})
			if err != nil {
				return err
			}

			fmt.Println("Admin account created.")
			fmt.Printf("  doctor_id: %s\n", d.ID)
			fmt.Printf("  api_key:   %s\n", key.Key)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Admin email address")
	createCmd.Flags().String("name", "", "Admin display name")
	createCmd.Flags().String("password", "", "Admin password")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Apply pending migrations so a fresh database is usable immediately.
	migrator := db.NewMigrator(pool, cfg.MigrationsDir)
	applied, err := migrator.Up(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	if applied > 0 {
		logger.Info().Int("applied", applied).Msg("applied pending migrations")
	}

	// Shared infrastructure
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), time.Duration(cfg.AccessTokenTTL)*time.Minute)
	blobs := blobstore.NewPGBlobStore(pool, cfg.MaxImageBytes)

	var diagnoser mldiag.Diagnoser
	if cfg.MLAPIURL != "" {
		diagnoser = mldiag.NewClient(cfg.MLAPIURL, time.Duration(cfg.MLTimeoutSeconds)*time.Second)
		logger.Info().Str("url", cfg.MLAPIURL).Msg("diagnosis service configured")
	} else {
		logger.Warn().Msg("ML_API_URL not set; cases will be stored without a diagnosis")
	}

	// Domain services
	keySvc := apikey.NewService(apikey.NewRepoPG(pool))
	doctorSvc := doctor.NewService(doctor.NewRepoPG(pool), keySvc, tokens, pool, cfg.BcryptCost)
	patientSvc := patient.NewService(patient.NewRepoPG(pool))
	caseSvc := cases.NewService(cases.NewRepoPG(pool), patientSvc, keySvc, blobs, diagnoser, pool, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M", uploadBodyLimit(cfg.MaxImageBytes)))
	e.Use(middleware.RequestTimeout(requestTimeout))

	// Auth middleware. Health checks and the credential endpoints stay
	// public; tokens for deleted doctor accounts stop working immediately.
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		Tokens:  tokens,
		Skipper: auth.AuthSkipper,
		Verify: func(ctx context.Context, doctorID string) error {
			id, err := uuid.Parse(doctorID)
			if err != nil {
				return err
			}
			_, err = doctorSvc.GetByID(ctx, id)
			return err
		},
	}))

	// Rate limiting runs after auth so authenticated traffic is limited per
	// doctor rather than per IP.
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))

	// Root + health checks
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"message": "Skin Diagnosis API is running"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// -- Register Domain Handlers --
	api := e.Group("")
	doctor.NewHandler(doctorSvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	cases.NewHandler(caseSvc).RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// uploadBodyLimit returns the transport body limit for the image upload
// route. It sits one megabyte above the stored-image limit so multipart
// framing and the notes fields never reject an image the blob store would
// accept.
func uploadBodyLimit(maxImageBytes int64) string {
	return strconv.FormatInt(maxImageBytes+(1<<20), 10)
}
