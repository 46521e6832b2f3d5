package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/azhengyongqin/wikitrans-hub/internal/logger"
	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/storage/postgres"
)

// ErrEmptyTitle 标题为空
var ErrEmptyTitle = errors.New("title 不能为空")

// 终态集合（SQL 过滤用）
var terminalStatuses = []string{
	string(model.StatusCompleted),
	string(model.StatusFailed),
	string(model.StatusCancelled),
}

// updateColumnAllowlist update_one_column 的列名白名单：
// 只放行 Runner 会单独更新的列，杜绝用未检查的输入拼动态列名。
var updateColumnAllowlist = map[string]string{
	"status":    "status",
	"data":      "data_json",
	"results":   "results_json",
	"main_file": "main_file",
}

// TaskRepo 基于 GORM 的任务仓储。每个实例持有自己的连接管理器；
// single-flight 的「查重 + 插入」与连接共用同一把互斥锁。
type TaskRepo struct {
	conn *postgres.Conn
}

func NewTaskRepo(conn *postgres.Conn) *TaskRepo {
	return &TaskRepo{conn: conn}
}

// Create 归一化标题并插入新任务。除非 form.ignore_existing_task，
// 先在锁内查同一归一化标题的非终态任务；命中则返回携带完整快照的 ConflictError。
func (r *TaskRepo) Create(ctx context.Context, t *Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return ErrEmptyTitle
	}
	t.NormalizedTitle = model.NormalizeTitle(t.Title)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = model.StatusPending

	return r.conn.Locked(func(db *gorm.DB) error {
		return createSingleFlight(t,
			func() (*Task, error) {
				var existing TaskModel
				err := db.WithContext(ctx).
					Preload("Stages").
					Where("normalized_title = ? AND status NOT IN ?", t.NormalizedTitle, terminalStatuses).
					Order("created_at DESC").
					First(&existing).Error
				if err == nil {
					return existing.ToTask(), nil
				}
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, nil
				}
				return nil, fmt.Errorf("check active task: %w", err)
			},
			func() error {
				m := TaskToModel(t)
				if err := db.WithContext(ctx).Create(&m).Error; err != nil {
					return fmt.Errorf("insert task: %w", err)
				}
				t.CreatedAt = m.CreatedAt
				t.UpdatedAt = m.UpdatedAt
				return nil
			})
	})
}

// createSingleFlight 「查重 + 插入」序列，调用方须已持串行化锁。
// findActive 返回同归一化标题的非终态快照，没有时 (nil, nil)；
// 命中则返回携带快照的 ConflictError，insert 不执行。
func createSingleFlight(t *Task, findActive func() (*Task, error), insert func() error) error {
	if !t.FormView().IgnoreExistingTask {
		existing, err := findActive()
		if err != nil {
			return err
		}
		if existing != nil {
			return &ConflictError{Existing: existing}
		}
	}
	return insert()
}

// GetByID 返回含 stage 折叠的快照。缺失和 DB 出错都按「不存在」处理（出错记日志）：
// 调用方唯一会做的事就是报告任务不可用，无需区分两种情况。
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*Task, bool) {
	db, err := r.conn.DB()
	if err != nil {
		logger.Error().Err(err).Str("task_id", id).Msg("获取任务失败")
		return nil, false
	}

	var m TaskModel
	err = db.WithContext(ctx).Preload("Stages").Where("id = ?", id).First(&m).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error().Err(err).Str("task_id", id).Msg("获取任务失败")
		}
		return nil, false
	}
	return m.ToTask(), true
}

// GetActiveByTitle 同样的归一化 + 非终态过滤，取最近一条；没有时返回 (nil, nil)
func (r *TaskRepo) GetActiveByTitle(ctx context.Context, title string) (*Task, error) {
	db, err := r.conn.DB()
	if err != nil {
		return nil, err
	}

	var m TaskModel
	err = db.WithContext(ctx).
		Preload("Stages").
		Where("normalized_title = ? AND status NOT IN ?", model.NormalizeTitle(title), terminalStatuses).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m.ToTask(), nil
}

// List 按创建时间倒序列出任务
func (r *TaskRepo) List(ctx context.Context, status string, limit, offset int) ([]Task, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	db, err := r.conn.DB()
	if err != nil {
		return nil, err
	}

	q := db.WithContext(ctx).Model(&TaskModel{}).Order("created_at DESC").Limit(limit).Offset(offset)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var ms []TaskModel
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(ms))
	for i := range ms {
		out = append(out, *ms[i].ToTask())
	}
	return out, nil
}

// Update 补丁更新：未 Set 的字段保持不变；全部未 Set 时零次 DB 往返。
// 只要真正写了，updated_at 一定被刷新。
func (r *TaskRepo) Update(ctx context.Context, id string, u TaskUpdate) error {
	cols, err := u.Columns()
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	db, err := r.conn.DB()
	if err != nil {
		return err
	}
	q := db.WithContext(ctx).Model(&TaskModel{}).Where("id = ?", id)
	// 终态只写一次：跨进程取消先落了 Cancelled 时，迟到的状态写被谓词挡掉
	if _, ok := cols["status"]; ok {
		q = q.Where("status NOT IN ?", terminalStatuses)
	}
	return q.Updates(cols).Error
}

// UpdateColumn 单列更新。列名不在白名单内时记日志后 no-op（不报错）。
func (r *TaskRepo) UpdateColumn(ctx context.Context, id, column string, value interface{}) error {
	col, ok := updateColumnAllowlist[column]
	if !ok {
		logger.Warn().Str("task_id", id).Str("column", column).Msg("拒绝更新白名单外的列")
		return nil
	}

	db, err := r.conn.DB()
	if err != nil {
		return err
	}
	q := db.WithContext(ctx).Model(&TaskModel{}).Where("id = ?", id)
	// 与 Update 相同的终态保护（参见 JobRepo.UpdateStatus 的 NOT IN 谓词）
	if col == "status" {
		q = q.Where("status NOT IN ?", terminalStatuses)
	}
	return q.Update(col, value).Error
}

// Delete 硬删除。与 Get 不同，这里任何底层错误都向上传播：删除失败必须可见。
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	db, err := r.conn.DB()
	if err != nil {
		return err
	}
	// stage 行靠外键级联删除
	return db.WithContext(ctx).Where("id = ?", id).Delete(&TaskModel{}).Error
}

// UpsertStage 以 (task_id, stage_name) 为键 upsert。唯一约束兜底并发重复写
// （ignore_existing_task 可以绕过 single-flight，这里是第二道防线）。
func (r *TaskRepo) UpsertStage(ctx context.Context, taskID string, st Stage) error {
	db, err := r.conn.DB()
	if err != nil {
		return err
	}

	m := StageToModel(taskID, st)
	m.UpdatedAt = time.Now()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "task_id"}, {Name: "stage_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stage_number", "stage_status", "stage_sub_name", "stage_message", "updated_at",
		}),
	}).Create(&m).Error
}

// ListTerminalBefore 列出 updated_at 早于 before 的终态任务（清理 Job 的记录集）
func (r *TaskRepo) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]Task, error) {
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}

	db, err := r.conn.DB()
	if err != nil {
		return nil, err
	}

	var ms []TaskModel
	err = db.WithContext(ctx).Model(&TaskModel{}).
		Where("status IN ? AND updated_at < ?", terminalStatuses, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(ms))
	for i := range ms {
		out = append(out, *ms[i].ToTask())
	}
	return out, nil
}
