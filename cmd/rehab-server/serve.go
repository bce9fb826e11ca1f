package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/config"
	"github.com/rehab/rehab/internal/domain/photo"
	"github.com/rehab/rehab/internal/platform/auth"
	"github.com/rehab/rehab/internal/platform/blobstore"
	"github.com/rehab/rehab/internal/platform/db"
	"github.com/rehab/rehab/internal/platform/janitor"
	"github.com/rehab/rehab/internal/platform/middleware"
	"github.com/rehab/rehab/internal/platform/openapi"
	"github.com/rehab/rehab/internal/platform/photoproc"
)

const version = "0.1.0"

// server holds the wired application and the resources closed on shutdown.
type server struct {
	echo    *echo.Echo
	pool    *pgxpool.Pool
	janitor *janitor.Janitor
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise server")
	}
	defer srv.close()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires storage, the pipeline and the HTTP stack. The janitor is
// started when photos are kept on disk.
func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	srv := &server{}

	var repo photo.UploadRepository
	if cfg.UsesDatabase() {
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:             cfg.DatabaseURL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			ApplicationName: "rehab-server",
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		srv.pool = pool
		repo = photo.NewUploadRepoPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		repo = photo.NewUploadRepoMemory()
		logger.Warn().Msg("DATABASE_URL not set; upload log kept in memory")
	}

	var (
		store blobstore.Store
		disk  *blobstore.DiskStore
	)
	switch cfg.PhotoStore {
	case "memory":
		store = blobstore.NewInMemoryStore(cfg.MaxUploadSize)
	default:
		disk, err = blobstore.NewDiskStore(cfg.PhotoDir, cfg.MaxUploadSize, logger)
		if err != nil {
			srv.close()
			return nil, err
		}
		store = disk
	}

	fonts, err := photoproc.LoadFonts(cfg.WatermarkFontPath)
	if err != nil {
		srv.close()
		return nil, err
	}
	proc, err := photoproc.NewProcessor(processorOptions(cfg, loc), fonts, logger)
	if err != nil {
		srv.close()
		return nil, fmt.Errorf("photo pipeline: %w", err)
	}
	if missing := fonts.MissingGlyphs(photoproc.CaptionGlyphs); len(missing) > 0 {
		logger.Warn().Str("font", fonts.Source()).Str("missing", string(missing)).
			Msg("caption font has no CJK glyphs, captions will render as boxes; set WATERMARK_FONT_PATH")
	}
	logger.Info().Str("font", fonts.Source()).Str("store", cfg.PhotoStore).
		Str("timezone", loc.String()).Msg("photo pipeline ready")

	svc := photo.NewService(store, proc, repo, cfg.PhotoURLPrefix, cfg.MaxUploadSize, logger)

	srv.echo = newEcho(cfg, logger, svc, store, loc, srv.pool)
	if disk != nil {
		srv.janitor = janitor.New(janitor.Config{
			Cleaner:  disk,
			Interval: cfg.JanitorInterval,
			MaxAge:   cfg.TempMaxAge,
			Logger:   logger,
		})
		srv.janitor.Start(ctx)
	}
	return srv, nil
}

func newEcho(cfg *config.Config, logger zerolog.Logger, svc *photo.Service, store blobstore.Store, loc *time.Location, pool *pgxpool.Pool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders(cfg.PhotoURLPrefix))
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, cfg.PhotoURLPrefix))
	e.Use(middleware.BodyLimit("1M", strconv.FormatInt(cfg.MaxUploadSize, 10)))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	limiter := middleware.RateLimit(rateLimitCfg)

	apiV1 := e.Group("/api/v1", limiter)
	photo.NewHandler(svc, loc).RegisterRoutes(apiV1)

	media := e.Group(cfg.PhotoURLPrefix, limiter, auth.RequireRole(auth.ClinicalRoles...))
	blobstore.NewHandler(store).RegisterRoutes(media)

	openapi.NewGenerator(version, "http://localhost:"+cfg.Port, cfg.PhotoURLPrefix, cfg.MaxUploadSize).
		RegisterRoutes(e.Group("/api"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	return e
}

// processorOptions maps the PHOTO_* and SIGNATURE_* settings onto the
// pipeline options.
func processorOptions(cfg *config.Config, loc *time.Location) photoproc.Options {
	opts := photoproc.DefaultOptions()
	opts.Compress = photoproc.CompressOptions{
		TargetHeight:   cfg.PhotoTargetHeight,
		ByteBudget:     cfg.PhotoByteBudget,
		InitialQuality: cfg.PhotoInitialQuality,
		MinQuality:     cfg.PhotoMinQuality,
		QualityStep:    cfg.PhotoQualityStep,
	}
	opts.Threshold = cfg.SignatureThreshold
	opts.Padding = cfg.SignaturePadding
	opts.Location = loc
	return opts
}

func (s *server) close() {
	if s.janitor != nil {
		s.janitor.Stop()
		s.janitor = nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}
