package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/beanphv/QBR-Dashboard/internal/config"
	"github.com/beanphv/QBR-Dashboard/internal/domain/admin"
	"github.com/beanphv/QBR-Dashboard/internal/domain/export"
	"github.com/beanphv/QBR-Dashboard/internal/domain/ingest"
	"github.com/beanphv/QBR-Dashboard/internal/domain/program"
	"github.com/beanphv/QBR-Dashboard/internal/platform/auth"
	"github.com/beanphv/QBR-Dashboard/internal/platform/blobstore"
	"github.com/beanphv/QBR-Dashboard/internal/platform/db"
	"github.com/beanphv/QBR-Dashboard/internal/platform/middleware"
	"github.com/beanphv/QBR-Dashboard/internal/platform/reporting"
)

const (
	version          = "0.1.0"
	defaultBodyLimit = "2M"
)

func isServerClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}

func newProgramService(pool *pgxpool.Pool) *program.Service {
	return program.NewService(
		program.NewHospitalRepo(pool),
		program.NewPharmacyRepo(pool),
		program.NewPeriodRepo(pool),
		program.NewMetricsRepo(pool),
	)
}

func newIngestService(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) (*ingest.Service, error) {
	tx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	svc := ingest.NewService(newProgramService(pool), ingest.NewUploadRepo(pool), tx, logger)
	if cfg.ArchiveDir != "" {
		archive, err := blobstore.NewDirBlobStore(cfg.ArchiveDir)
		if err != nil {
			return nil, err
		}
		svc.SetArchive(archive)
	}
	return svc, nil
}

// newEcho builds the server with its middleware chain and health routes.
// Domain routes are mounted on the returned /api/v1 group.
func newEcho(cfg *config.Config, logger zerolog.Logger, roles auth.RoleResolver, pinger db.Pinger) (*echo.Echo, *echo.Group, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)
	e.Validator = middleware.NewValidator()

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(defaultBodyLimit, cfg.UploadMaxSize))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))

	if cfg.IsDev() && cfg.AuthIssuer == "" && cfg.AuthJWKSURL == "" && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("development auth enabled; requests without a token act as dev-admin")
		e.Use(auth.DevAuthMiddleware())
	} else {
		key, err := cfg.SigningKey()
		if err != nil {
			return nil, nil, err
		}
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: key,
			Skipper:    auth.AuthSkipper,
		}))
	}
	e.Use(auth.LoadRoles(roles, logger))
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pinger))

	return e, e.Group("/api/v1"), nil
}

func newServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*echo.Echo, error) {
	adminSvc := admin.NewService(admin.NewUserRepo(pool))

	e, api, err := newEcho(cfg, logger, adminSvc, pool)
	if err != nil {
		return nil, err
	}

	programSvc := newProgramService(pool)
	program.NewHandler(programSvc).RegisterRoutes(api)

	ingestSvc, err := newIngestService(pool, cfg, logger)
	if err != nil {
		return nil, err
	}
	ingest.NewHandler(ingestSvc, logger).RegisterRoutes(api)

	export.NewHandler(export.NewService(programSvc), logger).RegisterRoutes(api)
	admin.NewHandler(adminSvc).RegisterRoutes(api)
	reporting.NewHandler(pool).RegisterRoutes(api)

	return e, nil
}
