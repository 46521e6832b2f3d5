package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/azhengyongqin/wikitrans-hub/internal/cancel"
	"github.com/azhengyongqin/wikitrans-hub/internal/healthcheck"
	"github.com/azhengyongqin/wikitrans-hub/internal/jobs"
	"github.com/azhengyongqin/wikitrans-hub/internal/middleware"
	"github.com/azhengyongqin/wikitrans-hub/internal/pipeline"
	"github.com/azhengyongqin/wikitrans-hub/internal/repository"
	"github.com/azhengyongqin/wikitrans-hub/internal/server/handler"
)

type Deps struct {
	TaskRepo repository.TaskRepository
	JobRepo  repository.JobRepository

	// Registry 任务/Job 共用的取消注册表
	Registry *cancel.Registry

	// Dispatcher 任务执行线程的派发器
	Dispatcher *pipeline.Dispatcher

	// JobWorker 批量 Job 执行器
	JobWorker *jobs.Worker

	// CleanupAfter task-cleanup Job 的保留窗口
	CleanupAfter time.Duration

	// HealthChecker 健康检查器
	HealthChecker *healthcheck.HealthChecker
}

// NewRouter 提供 Gin HTTP API
// @title WikiTrans-Hub API
// @version 1.0.0
// @description 维基文件批量翻译任务管理 API
// @BasePath /api/v1
// @schemes http https
func NewRouter(deps Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// 全局中间件
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.PrometheusMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.PayloadSizeLimit(middleware.MaxPayloadSize))
	r.Use(middleware.CORSMiddleware())

	// 创建各个 handler 实例
	healthHandler := handler.NewHealthHandler(deps.HealthChecker)
	taskHandler := handler.NewTaskHandler(deps.TaskRepo, deps.Registry, deps.Dispatcher)
	jobHandler := handler.NewJobHandler(deps.JobRepo, deps.TaskRepo, deps.JobWorker, deps.Registry, deps.CleanupAfter)

	// 健康检查路由
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger API 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	{
		// Task 相关路由
		api.POST("/tasks", taskHandler.CreateTask)
		api.GET("/tasks", taskHandler.ListTasks)
		api.GET("/tasks/:task_id", middleware.ValidateTaskIDParam(), taskHandler.GetTask)
		api.POST("/tasks/:task_id/cancel", middleware.ValidateTaskIDParam(), taskHandler.CancelTask)
		api.POST("/tasks/:task_id/restart", middleware.ValidateTaskIDParam(), taskHandler.RestartTask)
		api.DELETE("/tasks/:task_id", middleware.ValidateTaskIDParam(), taskHandler.DeleteTask)

		// Job 相关路由
		api.POST("/jobs", jobHandler.CreateJob)
		api.GET("/jobs", jobHandler.ListJobs)
		api.GET("/jobs/:job_id", middleware.ValidateJobIDParam(), jobHandler.GetJob)
		api.POST("/jobs/:job_id/cancel", middleware.ValidateJobIDParam(), jobHandler.CancelJob)
		api.DELETE("/jobs/:job_id", middleware.ValidateJobIDParam(), jobHandler.DeleteJob)
	}

	return r
}
