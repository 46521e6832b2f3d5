package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/azhengyongqin/wikitrans-hub/internal/model"
)

// Task 表示一次提交的多 stage 翻译任务
type Task struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	NormalizedTitle string           `json:"normalized_title"`
	Username        string           `json:"username,omitempty"`
	Status          model.TaskStatus `json:"status"`
	Form            json.RawMessage  `json:"form,omitempty"`    // 原始提交，原样保存
	Data            json.RawMessage  `json:"data,omitempty"`    // 执行中的工作状态
	Results         *Results         `json:"results,omitempty"` // 最终汇总
	MainFile        string           `json:"main_file,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`

	// Stages 按 stage_name 折叠的 stage 快照（GetByID 填充）
	Stages map[string]Stage `json:"stages,omitempty"`
}

// Stage 单个 stage 的持久化行，唯一键 (task_id, stage_name)
type Stage struct {
	Name      string           `json:"name"`
	Number    int              `json:"number"`
	Status    model.TaskStatus `json:"status"`
	SubName   string           `json:"sub_name,omitempty"`
	Message   string           `json:"message,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Results 流水线跑完后的汇总
type Results struct {
	FilesCount           int `json:"files_count"`
	NewTranslationsCount int `json:"new_translations_count"`
	NestedCount          int `json:"nested_count"`
	InjectedCount        int `json:"injected_count"`
	FilesToUploadCount   int `json:"files_to_upload_count"`
	UploadedCount        int `json:"uploaded_count"`
}

// FormView 是 form payload 的类型化视图。form 本身原样存储（round-trip），
// 这里只解出 store/Runner 关心的字段。
type FormView struct {
	Language           string `json:"language,omitempty"`
	ManualMainTitle    string `json:"manual_main_title,omitempty"`
	TitleLimit         int    `json:"title_limit,omitempty"`
	IgnoreExistingTask bool   `json:"ignore_existing_task,omitempty"`
}

// FormView 解析 form payload；form 为空或不可解析时返回零值
func (t *Task) FormView() FormView {
	var v FormView
	if len(t.Form) > 0 {
		_ = json.Unmarshal(t.Form, &v)
	}
	return v
}

// Job 粗粒度的批量后台操作；与 Task 独立的表/键空间。
// 大结果放在外部报告文件里（ResultFile 指向它），保持行本身精简。
type Job struct {
	ID          int64           `json:"id"`
	JobType     string          `json:"job_type"`
	Status      model.JobStatus `json:"status"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ResultFile  string          `json:"result_file,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ConflictError single-flight 冲突：同一归一化标题已存在非终态任务。
// 携带已存在任务的完整快照，调用方可直接重定向过去。
type ConflictError struct {
	Existing *Task
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task already active for title %q (id=%s, status=%s)",
		e.Existing.Title, e.Existing.ID, e.Existing.Status)
}

// TaskRepository 任务仓储接口
type TaskRepository interface {
	// Create 归一化标题、single-flight 查重后插入新任务（status Pending）。
	// 冲突时返回 *ConflictError。form.ignore_existing_task 可跳过查重。
	Create(ctx context.Context, t *Task) error

	// GetByID 返回含 stage 折叠的完整快照。缺失返回 (nil, false)；
	// 底层 DB 出错也记日志后返回 (nil, false)——调用方只会把任务报告为不可用。
	GetByID(ctx context.Context, id string) (*Task, bool)

	// GetActiveByTitle 同样归一化 + 非终态过滤，取最近一条；没有时 (nil, nil)
	GetActiveByTitle(ctx context.Context, title string) (*Task, error)

	// List 按创建时间倒序列出任务，status 为空表示不过滤
	List(ctx context.Context, status string, limit, offset int) ([]Task, error)

	// Update 补丁更新：未 Set 的字段保持不变；全部未 Set 时零次 DB 往返
	Update(ctx context.Context, id string, u TaskUpdate) error

	// UpdateColumn 单列更新，列名必须在固定白名单内；名单外记日志后 no-op
	UpdateColumn(ctx context.Context, id, column string, value interface{}) error

	// Delete 硬删除（stage 行级联删除）。删除失败必须让调用方看到。
	Delete(ctx context.Context, id string) error

	// UpsertStage 以 (task_id, stage_name) 为键插入或更新 stage 行
	UpsertStage(ctx context.Context, taskID string, st Stage) error

	// ListTerminalBefore 列出 updated_at 早于 before 的终态任务（清理 Job 用）
	ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]Task, error)
}

// JobRepository Job 仓储接口。jobs 表由多种 worker 共用，
// 所以每次查找/更新都要求带 job_type 判别。
type JobRepository interface {
	// Create 插入 pending 状态的新 Job
	Create(ctx context.Context, jobType string) (*Job, error)

	// Get 按 (id, job_type) 获取；缺失返回 (nil, false)
	Get(ctx context.Context, id int64, jobType string) (*Job, bool)

	// List 按创建时间倒序列出 Job，jobType 为空表示不过滤
	List(ctx context.Context, jobType string, limit int) ([]Job, error)

	// UpdateStatus 更新状态：转 running 时盖 started_at，
	// 转终态时盖 completed_at 和 result_file。已终态的行不再改写。
	UpdateStatus(ctx context.Context, id int64, jobType string, status model.JobStatus, resultFile string) error

	// Delete 硬删除，错误向上传播
	Delete(ctx context.Context, id int64, jobType string) error
}
