package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/wikitrans-hub/internal/cancel"
	"github.com/azhengyongqin/wikitrans-hub/internal/metrics"
	"github.com/azhengyongqin/wikitrans-hub/internal/middleware"
	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/pipeline"
	"github.com/azhengyongqin/wikitrans-hub/internal/repository"
	"github.com/azhengyongqin/wikitrans-hub/internal/server/dto"
)

// TaskHandler Task 相关 API Handler
type TaskHandler struct {
	tasks      repository.TaskRepository
	reg        *cancel.Registry
	dispatcher *pipeline.Dispatcher
}

// NewTaskHandler 创建 TaskHandler
func NewTaskHandler(tasks repository.TaskRepository, reg *cancel.Registry, dispatcher *pipeline.Dispatcher) *TaskHandler {
	return &TaskHandler{
		tasks:      tasks,
		reg:        reg,
		dispatcher: dispatcher,
	}
}

// CreateTask godoc
// @Summary 创建翻译任务
// @Description 创建任务并立即启动执行线程；同标题已有执行中任务时返回 409 与已存在任务快照
// @Tags Tasks
// @Accept json
// @Produce json
// @Param request body dto.CreateTaskRequest true "任务创建请求"
// @Success 200 {object} dto.CreateTaskResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ConflictResponse
// @Router /tasks [post]
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	title := middleware.SanitizeString(req.Title)
	if !middleware.ValidateTitle(title) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "title 无效或过长"})
		return
	}

	t := &repository.Task{
		Title:    title,
		Username: req.Username,
		Form:     req.Form,
	}
	if err := h.tasks.Create(c.Request.Context(), t); err != nil {
		var conflict *repository.ConflictError
		if errors.As(err, &conflict) {
			c.JSON(http.StatusConflict, dto.ConflictResponse{
				Error:    "同名任务仍在执行中",
				Existing: conflict.Existing,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	metrics.TasksCreatedTotal.Inc()

	if err := h.dispatcher.Launch(t); err != nil {
		// 行已落库但没能起执行线程，调用方可以用 restart 重试
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.CreateTaskResponse{
		TaskID: t.ID,
		Title:  t.Title,
		Status: string(t.Status),
	})
}

// ListTasks godoc
// @Summary 查询任务列表
// @Description 按创建时间倒序分页查询，支持 status 过滤
// @Tags Tasks
// @Produce json
// @Param status query string false "任务状态"
// @Param limit query int false "每页数量" default(50)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} dto.TaskListResponse
// @Router /tasks [get]
func (h *TaskHandler) ListTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.tasks.List(c.Request.Context(), c.DefaultQuery("status", ""), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.TaskListResponse{Items: items, Total: len(items)})
}

// GetTask godoc
// @Summary 获取任务详情
// @Description 返回任务快照，stage 行按 stage_name 折叠在 stages 字段里
// @Tags Tasks
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /tasks/{task_id} [get]
func (h *TaskHandler) GetTask(c *gin.Context) {
	t, ok := h.tasks.GetByID(c.Request.Context(), c.Param("task_id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "task 不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": t})
}

// CancelTask godoc
// @Summary 取消任务
// @Description 置位取消意图；执行线程在下一个 stage 检查点收敛到 Cancelled。已终态的任务不做任何变更。
// @Tags Tasks
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} dto.CancelTaskResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /tasks/{task_id}/cancel [post]
func (h *TaskHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("task_id")
	t, ok := h.tasks.GetByID(c.Request.Context(), taskID)
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "task 不存在"})
		return
	}

	if t.Status.Terminal() {
		c.JSON(http.StatusOK, dto.CancelTaskResponse{Status: "ok", AlreadyFinished: true})
		return
	}

	// 本地有执行线程时走注册表；没有（别的进程在跑，或根本没起来）
	// 就把状态直接写成 Cancelled，执行方的 DB 兜底检查会看到它
	if !h.reg.Cancel(taskID) {
		if err := h.tasks.UpdateColumn(c.Request.Context(), taskID, "status", string(model.StatusCancelled)); err != nil {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, dto.CancelTaskResponse{Status: "cancelling"})
}

// RestartTask godoc
// @Summary 重启任务
// @Description 以同样的标题和 form 新建一行并启动（受 single-flight 约束）；旧行保持不动
// @Tags Tasks
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} dto.RestartTaskResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ConflictResponse
// @Router /tasks/{task_id}/restart [post]
func (h *TaskHandler) RestartTask(c *gin.Context) {
	old, ok := h.tasks.GetByID(c.Request.Context(), c.Param("task_id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "task 不存在"})
		return
	}

	t := &repository.Task{
		Title:    old.Title,
		Username: old.Username,
		Form:     old.Form,
	}
	if err := h.tasks.Create(c.Request.Context(), t); err != nil {
		var conflict *repository.ConflictError
		if errors.As(err, &conflict) {
			c.JSON(http.StatusConflict, dto.ConflictResponse{
				Error:    "同名任务仍在执行中",
				Existing: conflict.Existing,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	metrics.TasksCreatedTotal.Inc()

	if err := h.dispatcher.Launch(t); err != nil {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.RestartTaskResponse{Status: "restarted", NewTaskID: t.ID})
}

// DeleteTask godoc
// @Summary 删除任务
// @Description 硬删除任务行（stage 行级联删除）
// @Tags Tasks
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} dto.SuccessResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /tasks/{task_id} [delete]
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	if err := h.tasks.Delete(c.Request.Context(), c.Param("task_id")); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Status: "ok", Message: "已删除"})
}
