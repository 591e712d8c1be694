package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/scribe-notes/internal/application"
	appnotes "github.com/bryanwahyu/scribe-notes/internal/application/notes"
	"github.com/bryanwahyu/scribe-notes/internal/config"
	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
	aiopenai "github.com/bryanwahyu/scribe-notes/internal/infra/ai/openai"
	"github.com/bryanwahyu/scribe-notes/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/scribe-notes/internal/infra/db/mysql"
	"github.com/bryanwahyu/scribe-notes/internal/infra/db/postgres"
	redisrepo "github.com/bryanwahyu/scribe-notes/internal/infra/db/redis"
	"github.com/bryanwahyu/scribe-notes/internal/infra/executor/command"
	"github.com/bryanwahyu/scribe-notes/internal/infra/export/pdf"
	"github.com/bryanwahyu/scribe-notes/internal/infra/httpserver"
	"github.com/bryanwahyu/scribe-notes/internal/infra/ocr/tesseract"
	minioStore "github.com/bryanwahyu/scribe-notes/internal/infra/storage"
	"github.com/bryanwahyu/scribe-notes/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()
	checkers := map[string]middleware.HealthChecker{}

	// init repo
	repo, closeRepo, err := openRepository(ctx, cfg, checkers)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}
	defer closeRepo()

	// init minio (optional, only for stored exports)
	var artifacts domain.ArtifactStore
	if cfg.MinioEnabled() {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
			cfg.Minio.PresignTTL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		artifacts = store
		checkers["minio"] = store
	}

	// init AI client, passed explicitly to everything that talks to the model
	aiClient := aiopenai.NewClient(aiopenai.Options{
		APIKey:            cfg.OpenAI.APIKey,
		BaseURL:           cfg.OpenAI.BaseURL,
		Model:             cfg.OpenAI.Model,
		MaxTokens:         cfg.OpenAI.MaxTokens,
		RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		Burst:             cfg.OpenAI.Burst,
	})

	// init OCR engine
	engine, fellBack := cfg.ResolveOCREngine(tesseract.Available)
	if fellBack {
		slog.Warn("ocr: tesseract not compiled in (build with -tags ocr), using openai-vision",
			"model", cfg.OpenAI.VisionModel)
	}
	var ocr domain.Recognizer
	switch engine {
	case config.EngineOpenAIVision:
		ocr = aiopenai.NewVision(aiopenai.NewClient(aiopenai.Options{
			APIKey:            cfg.OpenAI.APIKey,
			BaseURL:           cfg.OpenAI.BaseURL,
			Model:             cfg.OpenAI.VisionModel,
			MaxTokens:         cfg.OpenAI.MaxTokens,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
			Burst:             cfg.OpenAI.Burst,
		}))
	default:
		ocr = tesseract.New(cfg.OCR.Language, cfg.OCR.PageSegMode)
	}
	checkers["ocr"] = middleware.CheckerFunc(func(ctx context.Context) error {
		w, err := ocr.Open(ctx)
		if err != nil {
			return err
		}
		return w.Close()
	})

	// init service
	svc := &appnotes.Service{
		Repo:      repo,
		OCR:       ocr,
		AI:        aiClient,
		Converter: command.NewConverter(cfg.Converter.Command, cfg.Converter.Args, cfg.Converter.TempDir),
		Renderer: pdf.NewRenderer(pdf.Options{
			MaxImagePixels: cfg.Export.MaxImagePixels,
			Optimize:       cfg.Export.Optimize,
		}),
		Artifacts: artifacts,
		Clock:     application.SystemClock{},
		Options: appnotes.Options{
			MaxFileBytes:    cfg.Upload.MaxFileBytes,
			MaxFiles:        cfg.Upload.MaxFiles,
			Concurrency:     cfg.Generate.Concurrency,
			ItemTimeout:     cfg.Generate.ItemTimeout,
			AllowIncomplete: cfg.Export.AllowIncomplete,
		},
	}

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(svc, httpserver.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		APIKeys:        cfg.Server.APIKeys,
		RateCapacity:   cfg.Server.RateLimit.Capacity,
		RateRefill:     cfg.Server.RateLimit.RefillRate,
		MaxUploadBytes: cfg.Upload.MaxFileBytes*int64(cfg.Upload.MaxFiles) + 1<<20,
		MaxFileBytes:   cfg.Upload.MaxFileBytes,
		Checkers:       checkers,
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s (storage=%s ocr=%s model=%s)",
			addr, cfg.Storage.Driver, engine, cfg.OpenAI.Model)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// openRepository picks the record store for cfg.Storage.Driver and registers its health check.
func openRepository(ctx context.Context, cfg *config.Config, checkers map[string]middleware.HealthChecker) (domain.Repository, func(), error) {
	noop := func() {}

	switch cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, noop, fmt.Errorf("mysql connect: %w", err)
		}
		if err := mysqlp.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("mysql migrate: %w", err)
		}
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return mysqlp.NewRecordRepository(db), closer(db), nil

	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, noop, fmt.Errorf("postgres connect: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("postgres migrate: %w", err)
		}
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return postgres.NewRecordRepository(db), closer(db), nil

	case config.DriverRedis:
		rdb, err := redisrepo.Connect(ctx, cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
		if err != nil {
			return nil, noop, fmt.Errorf("redis connect: %w", err)
		}
		checkers["redis"] = &middleware.RedisHealthChecker{Client: rdb}
		return redisrepo.NewRecordRepository(rdb, cfg.Storage.SessionTTL), func() { rdb.Close() }, nil

	default:
		slog.Info("storage: using in-memory records; they are lost on restart")
		return memory.NewRecordRepository(), noop, nil
	}
}

func closer(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}
}
