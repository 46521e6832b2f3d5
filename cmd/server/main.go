package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/azhengyongqin/wikitrans-hub/internal/cancel"
	"github.com/azhengyongqin/wikitrans-hub/internal/config"
	"github.com/azhengyongqin/wikitrans-hub/internal/healthcheck"
	"github.com/azhengyongqin/wikitrans-hub/internal/jobs"
	"github.com/azhengyongqin/wikitrans-hub/internal/logger"
	"github.com/azhengyongqin/wikitrans-hub/internal/mediawiki"
	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/pipeline"
	"github.com/azhengyongqin/wikitrans-hub/internal/repository"
	httpserver "github.com/azhengyongqin/wikitrans-hub/internal/server"
	"github.com/azhengyongqin/wikitrans-hub/internal/storage/postgres"
)

// @title WikiTrans-Hub API
// @version 1.0.0
// @description 维基文件批量翻译任务管理 - 多 stage 流水线 + 批量 Job 的控制面
// @license.name MIT
// @BasePath /api/v1
// @schemes http https
// @host localhost:28080

func main() {
	// 初始化结构化日志（开发模式）
	if err := logger.Init(false); err != nil {
		logger.L.Fatal().Err(err).Msg("初始化日志失败")
		os.Exit(1)
	}
	defer logger.Sync()

	// .env 先进环境变量，再由 viper 统一读取
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("加载配置失败")
	}
	if err := cfg.Validate(); err != nil {
		logger.L.Fatal().Err(err).Msg("配置验证失败")
	}

	logger.L.Info().
		Str("http", cfg.HTTP.Addr).
		Str("work_root", cfg.Pipeline.WorkRoot).
		Msg("服务启动")

	// 迁移走 pgx stdlib 连接，跑完即关
	migrateDB, err := postgres.OpenStdlib(cfg.Postgres.DSN)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("连接数据库失败")
	}
	if err := postgres.ApplyMigrationsFromDir(context.Background(), migrateDB, cfg.Postgres.MigrationsDir); err != nil {
		logger.L.Fatal().Err(err).Msg("应用迁移失败")
	}
	_ = migrateDB.Close()

	dbCfg := postgres.DBConfig{
		MaxOpenConns:    cfg.DBPool.MaxConns,
		MaxIdleConns:    cfg.DBPool.MinConns,
		ConnMaxLifetime: cfg.DBPool.MaxConnLifetime,
		ConnMaxIdleTime: cfg.DBPool.MaxConnIdleTime,
	}

	// HTTP 侧共享一个连接管理器；每个执行线程另起自己的（见 runnerFactory）
	conn, err := postgres.NewConn(cfg.Postgres.DSN, dbCfg)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("初始化连接管理器失败")
	}
	defer conn.Close()

	// 执行都在进程内：上个进程遗留的非终态任务/Job 不可能再被推进，
	// 启动时统一按失败收口。清理失败不挡服务启动，连接数耗尽除外（记日志退避）
	sweepCtx, cancelSweep := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := conn.SafeExec(sweepCtx,
		"UPDATE tasks SET status = 'Failed', updated_at = now() WHERE status IN ('Pending', 'Running')"); err != nil {
		logger.L.Warn().Err(err).Msg("遗留任务收口失败")
	}
	if _, err := conn.SafeExec(sweepCtx,
		"UPDATE jobs SET status = 'failed', completed_at = now() WHERE status IN ('pending', 'running')"); err != nil {
		logger.L.Warn().Err(err).Msg("遗留 Job 收口失败")
	}
	cancelSweep()

	taskRepo := repository.NewTaskRepo(conn)
	jobRepo := repository.NewJobRepo(conn)

	registry := cancel.NewRegistry()
	mwClient := mediawiki.NewClient(cfg.MediaWiki.APIBase, cfg.MediaWiki.CallTimeout)

	// 每次任务执行构造独立的 store 连接，取消兜底也走这条连接
	runnerFactory := func() (*pipeline.Runner, func(), error) {
		runConn, err := postgres.NewConn(cfg.Postgres.DSN, dbCfg)
		if err != nil {
			return nil, nil, err
		}
		runRepo := repository.NewTaskRepo(runConn)
		checker := cancel.NewChecker(registry, func(ctx context.Context, id string) bool {
			t, ok := runRepo.GetByID(ctx, id)
			return ok && t.Status == model.StatusCancelled
		})
		r := pipeline.NewRunner(runRepo, mwClient, checker, cfg.Pipeline.WorkRoot, cfg.Pipeline.TitleLimit)
		return r, func() { _ = runConn.Close() }, nil
	}
	dispatcher := pipeline.NewDispatcher(registry, runnerFactory)

	jobWorker := jobs.NewWorker(jobRepo, registry, cfg.Jobs.ReportDir, cfg.Jobs.CheckpointEvery)

	healthChecker := healthcheck.NewHealthChecker(conn)

	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpserver.NewRouter(httpserver.Deps{
			TaskRepo:      taskRepo,
			JobRepo:       jobRepo,
			Registry:      registry,
			Dispatcher:    dispatcher,
			JobWorker:     jobWorker,
			CleanupAfter:  cfg.Jobs.CleanupAfter,
			HealthChecker: healthChecker,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.L.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP 服务监听")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Fatal().Err(err).Msg("HTTP 服务错误")
		}
	}()

	<-ctx.Done()

	// 执行线程持有自己的连接，各自收敛；这里只优雅关掉 HTTP 入口
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	_ = httpSrv.Shutdown(shutdownCtx)
	logger.L.Info().Msg("服务已优雅关闭")
}
