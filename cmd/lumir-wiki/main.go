package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lumir-wiki/internal/config"
	"lumir-wiki/internal/database"
	"lumir-wiki/internal/directory"
	"lumir-wiki/internal/domain"
	httpapi "lumir-wiki/internal/http"
	"lumir-wiki/internal/logger"
	"lumir-wiki/internal/repository"
	"lumir-wiki/internal/service"
	"lumir-wiki/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// seedDepartmentID is the department the memory-mode sample tree is
// restricted to; the static directory provider knows it so the demo
// tree starts drift-free.
const seedDepartmentID = "dept-hr"

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "lumir-wiki")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Repositories: Postgres when the DB is reachable, otherwise fall
	// back to in-memory repos so admin pages stay usable with plain
	// `go run` during development.
	var db *sql.DB
	var nodesRepo repository.WikiNodesRepository
	var logsRepo repository.PermissionLogsRepository
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for lumir-wiki")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory repos", zap.Error(err))
		}
	}
	if db != nil {
		nodesRepo = repository.NewPostgresWikiNodesRepo(db)
		logsRepo = repository.NewPostgresPermissionLogsRepo(db)
	} else {
		memNodes := repository.NewMemoryWikiNodesRepo()
		nodesRepo = memNodes
		logsRepo = repository.NewMemoryPermissionLogsRepo(memNodes)
		seedSampleTree(memNodes, log)
	}

	// Directory snapshot provider for the reconciler. A live deployment
	// points DIRECTORY_BASE_URL at the HR directory service; snapshots
	// are cached in redis. Without it a static snapshot covering the
	// seed data keeps dev mode drift-free.
	var redisClient *redis.Client
	var provider directory.Provider
	reconcileEnabled := cfg.Reconcile.Enabled
	if cfg.Directory.BaseURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		provider = directory.NewCachedProvider(
			directory.NewHTTPProvider(cfg.Directory.BaseURL, cfg.Directory.APIKey, log),
			store.NewRedisKV(redisClient),
			cfg.Directory.CacheTTL,
			log,
		)
	} else {
		provider = directory.NewStaticProvider([]string{seedDepartmentID}, nil, nil)
		if db != nil {
			// A real tree without a real directory would flag every
			// restricted folder; do not reconcile in that state.
			reconcileEnabled = false
			log.Warn("DIRECTORY_BASE_URL not set, permission reconciliation disabled")
		}
	}

	reconciler := service.NewReconcilerService(nodesRepo, logsRepo, provider, cfg.Reconcile.Interval, log)

	treeService := service.NewWikiTreeService(nodesRepo, reconciler, log)
	permService := service.NewPermissionService(nodesRepo, logsRepo, log)
	logService := service.NewPermissionLogService(logsRepo, log)

	router := httpapi.NewRouter(log)
	router.RegisterWikiFolderRoutes(httpapi.NewWikiFoldersHandler(treeService, log))
	router.RegisterWikiFileRoutes(httpapi.NewWikiFilesHandler(treeService, log))
	router.RegisterPermissionLogRoutes(httpapi.NewPermissionLogsHandler(logService, permService, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reconcileEnabled {
		go reconciler.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}

// seedSampleTree gives memory-backed dev mode a small browsable tree
// so frontend work does not start from an empty screen.
func seedSampleTree(nodes *repository.MemoryWikiNodesRepo, log *zap.Logger) {
	ctx := context.Background()

	rootID, err := nodes.CreateNode(ctx, &domain.WikiNode{
		NodeType:  domain.NodeTypeFolder,
		Name:      "Company Wiki",
		IsPublic:  true,
		CreatedBy: "system",
		UpdatedBy: "system",
	})
	if err != nil {
		log.Warn("Seeding sample tree failed", zap.Error(err))
		return
	}

	hrID, err := nodes.CreateNode(ctx, &domain.WikiNode{
		NodeType:                domain.NodeTypeFolder,
		ParentID:                &rootID,
		Name:                    "HR",
		IsPublic:                false,
		PermissionDepartmentIDs: []string{seedDepartmentID},
		CreatedBy:               "system",
		UpdatedBy:               "system",
	})
	if err != nil {
		log.Warn("Seeding sample tree failed", zap.Error(err))
		return
	}

	_, _ = nodes.CreateNode(ctx, &domain.WikiNode{
		NodeType:  domain.NodeTypeFolder,
		ParentID:  &rootID,
		Name:      "Engineering",
		IsPublic:  true,
		CreatedBy: "system",
		UpdatedBy: "system",
	})

	title := "Onboarding Guide"
	content := "Welcome to the company."
	_, _ = nodes.CreateNode(ctx, &domain.WikiNode{
		NodeType:  domain.NodeTypeFile,
		ParentID:  &hrID,
		Name:      "onboarding.md",
		Title:     &title,
		Content:   &content,
		IsPublic:  true,
		CreatedBy: "system",
		UpdatedBy: "system",
	})

	log.Info("Seeded sample wiki tree", zap.String("root_id", rootID))
}
