package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/azhengyongqin/wikitrans-hub/internal/logger"
	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/storage/postgres"
)

// 终态集合（jobs 表，小写）
var terminalJobStatuses = []string{
	string(model.JobCompleted),
	string(model.JobFailed),
	string(model.JobCancelled),
}

// JobRepo 基于 GORM 的 Job 仓储。jobs 表由多种 worker 共用，
// 所有查找/更新都带 job_type 判别。
type JobRepo struct {
	conn *postgres.Conn
}

func NewJobRepo(conn *postgres.Conn) *JobRepo {
	return &JobRepo{conn: conn}
}

// Create 插入 pending 状态的新 Job
func (r *JobRepo) Create(ctx context.Context, jobType string) (*Job, error) {
	if jobType == "" {
		return nil, errors.New("job_type 不能为空")
	}

	db, err := r.conn.DB()
	if err != nil {
		return nil, err
	}

	m := JobModel{JobType: jobType, Status: string(model.JobPending)}
	if err := db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return m.ToJob(), nil
}

// Get 按 (id, job_type) 获取；缺失返回 (nil, false)，DB 出错记日志后同样按缺失处理
func (r *JobRepo) Get(ctx context.Context, id int64, jobType string) (*Job, bool) {
	db, err := r.conn.DB()
	if err != nil {
		logger.Error().Err(err).Int64("job_id", id).Msg("获取 Job 失败")
		return nil, false
	}

	var m JobModel
	err = db.WithContext(ctx).Where("id = ? AND job_type = ?", id, jobType).First(&m).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error().Err(err).Int64("job_id", id).Msg("获取 Job 失败")
		}
		return nil, false
	}
	return m.ToJob(), true
}

// List 按创建时间倒序列出 Job
func (r *JobRepo) List(ctx context.Context, jobType string, limit int) ([]Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	db, err := r.conn.DB()
	if err != nil {
		return nil, err
	}

	q := db.WithContext(ctx).Model(&JobModel{}).Order("created_at DESC").Limit(limit)
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}

	var ms []JobModel
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]Job, 0, len(ms))
	for i := range ms {
		out = append(out, *ms[i].ToJob())
	}
	return out, nil
}

// UpdateStatus 更新 Job 状态。转 running 时盖 started_at，转终态时盖
// completed_at 和 result_file。WHERE 排除已终态的行：终态一旦写入不可改。
func (r *JobRepo) UpdateStatus(ctx context.Context, id int64, jobType string, status model.JobStatus, resultFile string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid job status %q", status)
	}

	db, err := r.conn.DB()
	if err != nil {
		return err
	}

	now := time.Now()
	cols := map[string]interface{}{"status": string(status)}
	if status == model.JobRunning {
		cols["started_at"] = now
	}
	if status.Terminal() {
		cols["completed_at"] = now
		if resultFile != "" {
			cols["result_file"] = resultFile
		}
	}

	tx := db.WithContext(ctx).Model(&JobModel{}).
		Where("id = ? AND job_type = ? AND status NOT IN ?", id, jobType, terminalJobStatuses).
		Updates(cols)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		logger.Debug().Int64("job_id", id).Str("status", string(status)).Msg("Job 已终态或不存在，状态未改写")
	}
	return nil
}

// Delete 硬删除，错误向上传播
func (r *JobRepo) Delete(ctx context.Context, id int64, jobType string) error {
	db, err := r.conn.DB()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Where("id = ? AND job_type = ?", id, jobType).Delete(&JobModel{}).Error
}
