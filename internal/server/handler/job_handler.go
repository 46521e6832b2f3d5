package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/wikitrans-hub/internal/cancel"
	"github.com/azhengyongqin/wikitrans-hub/internal/jobs"
	"github.com/azhengyongqin/wikitrans-hub/internal/middleware"
	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/repository"
	"github.com/azhengyongqin/wikitrans-hub/internal/server/dto"
)

// JobHandler 批量 Job 相关 API Handler
type JobHandler struct {
	jobs         repository.JobRepository
	tasks        repository.TaskRepository
	worker       *jobs.Worker
	reg          *cancel.Registry
	cleanupAfter time.Duration
}

// NewJobHandler 创建 JobHandler
func NewJobHandler(jobRepo repository.JobRepository, taskRepo repository.TaskRepository, worker *jobs.Worker, reg *cancel.Registry, cleanupAfter time.Duration) *JobHandler {
	return &JobHandler{
		jobs:         jobRepo,
		tasks:        taskRepo,
		worker:       worker,
		reg:          reg,
		cleanupAfter: cleanupAfter,
	}
}

// processorFor 按 job_type 构造处理器；未知类型返回 nil
func (h *JobHandler) processorFor(jobType string) jobs.Processor {
	switch jobType {
	case jobs.TypeTaskCleanup:
		return jobs.NewTaskCleanup(h.tasks, h.cleanupAfter, 1000)
	default:
		return nil
	}
}

// CreateJob godoc
// @Summary 创建批量 Job
// @Description 创建 Job 行并立即启动执行线程
// @Tags Jobs
// @Accept json
// @Produce json
// @Param request body dto.CreateJobRequest true "Job 创建请求"
// @Success 200 {object} dto.CreateJobResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /jobs [post]
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if !middleware.ValidateJobType(req.JobType) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_type 格式无效"})
		return
	}

	proc := h.processorFor(req.JobType)
	if proc == nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "未知的 job_type"})
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), req.JobType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.worker.Launch(job, proc); err != nil {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.CreateJobResponse{
		JobID:   job.ID,
		JobType: job.JobType,
		Status:  string(job.Status),
	})
}

// ListJobs godoc
// @Summary 查询 Job 列表
// @Description 按创建时间倒序列出 Job，支持 job_type 过滤
// @Tags Jobs
// @Produce json
// @Param job_type query string false "Job 类型"
// @Param limit query int false "数量上限" default(50)
// @Success 200 {object} dto.JobListResponse
// @Router /jobs [get]
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	items, err := h.jobs.List(c.Request.Context(), c.DefaultQuery("job_type", ""), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.JobListResponse{Items: items, Total: len(items)})
}

// GetJob godoc
// @Summary 获取 Job 详情
// @Description jobs 表由多种 worker 共用，查找必须带 job_type 判别
// @Tags Jobs
// @Produce json
// @Param job_id path int true "Job ID"
// @Param job_type query string true "Job 类型"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /jobs/{job_id} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, jobType, ok := h.jobKey(c)
	if !ok {
		return
	}

	job, found := h.jobs.Get(c.Request.Context(), jobID, jobType)
	if !found {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job 不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": job})
}

// CancelJob godoc
// @Summary 取消 Job
// @Description 置位取消意图；执行线程在下一条记录前收敛到 cancelled。已终态的 Job 不做任何变更。
// @Tags Jobs
// @Produce json
// @Param job_id path int true "Job ID"
// @Param job_type query string true "Job 类型"
// @Success 200 {object} dto.CancelJobResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /jobs/{job_id}/cancel [post]
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, jobType, ok := h.jobKey(c)
	if !ok {
		return
	}

	job, found := h.jobs.Get(c.Request.Context(), jobID, jobType)
	if !found {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job 不存在"})
		return
	}
	if job.Status.Terminal() {
		c.JSON(http.StatusOK, dto.CancelJobResponse{Status: "ok", AlreadyFinished: true})
		return
	}

	// Job 只在本进程执行；没有本地执行线程说明它还没跑或已停，直接写终态
	if !h.reg.Cancel(jobs.Key(jobType, jobID)) {
		if err := h.jobs.UpdateStatus(c.Request.Context(), jobID, jobType, model.JobCancelled, ""); err != nil {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, dto.CancelJobResponse{Status: "cancelling"})
}

// DeleteJob godoc
// @Summary 删除 Job
// @Description 硬删除 Job 行（报告文件保留在磁盘上）
// @Tags Jobs
// @Produce json
// @Param job_id path int true "Job ID"
// @Param job_type query string true "Job 类型"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /jobs/{job_id} [delete]
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID, jobType, ok := h.jobKey(c)
	if !ok {
		return
	}

	if err := h.jobs.Delete(c.Request.Context(), jobID, jobType); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Status: "ok", Message: "已删除"})
}

// jobKey 解析路径里的 job_id 和 query 里必填的 job_type；失败时已写响应
func (h *JobHandler) jobKey(c *gin.Context) (int64, string, bool) {
	jobID, err := strconv.ParseInt(c.Param("job_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id 格式无效"})
		return 0, "", false
	}
	jobType := c.Query("job_type")
	if jobType == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_type 参数必填"})
		return 0, "", false
	}
	return jobID, jobType, true
}
