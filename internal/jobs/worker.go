// Package jobs 实现粗粒度的批量后台 Job：一个 Job 一个执行线程，
// 逐条处理记录集，周期性把部分结果写进外部报告文件，
// 与 Task 流水线共用同一套取消注册表约定。
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/azhengyongqin/wikitrans-hub/internal/cancel"
	"github.com/azhengyongqin/wikitrans-hub/internal/logger"
	"github.com/azhengyongqin/wikitrans-hub/internal/metrics"
	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/repository"

	"github.com/rs/zerolog"
)

// Record 记录集里的一条待处理记录
type Record struct {
	ID   string `json:"id"`
	Note string `json:"note,omitempty"`
}

// Outcome 单条记录的处理结果桶
type Outcome string

const (
	OutcomeProcessed Outcome = "processed" // 检查过，无需变更
	OutcomeUpdated   Outcome = "updated"   // 发生了变更（更新/删除）
	OutcomeSkipped   Outcome = "skipped"   // 主动跳过
)

// Processor 可插拔的单 Job 处理器：给出记录集和逐条处理逻辑
type Processor interface {
	// Type Job 判别名（jobs 表按它区分 worker 种类）
	Type() string

	// Records 本次 Job 的记录集
	Records(ctx context.Context) ([]Record, error)

	// Process 处理一条记录；返回错误时该记录进 failed 桶，整批继续
	Process(ctx context.Context, rec Record) (Outcome, error)
}

// Summary Job 报告。执行中也会周期性落盘，in-progress 的 Job 可随时查看。
type Summary struct {
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Updated   int       `json:"updated"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Error     string    `json:"error,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key 取消注册表里 Job 的键。与 Task id 共用一个注册表，键空间用前缀区分。
func Key(jobType string, id int64) string {
	return fmt.Sprintf("job:%s:%d", jobType, id)
}

// Worker 批量 Job 的执行器
type Worker struct {
	jobs      repository.JobRepository
	reg       *cancel.Registry
	reportDir string
	every     int // 每 N 条记录落一次中间报告
}

func NewWorker(jobs repository.JobRepository, reg *cancel.Registry, reportDir string, every int) *Worker {
	if every < 1 {
		every = 50
	}
	return &Worker{jobs: jobs, reg: reg, reportDir: reportDir, every: every}
}

// Launch 注册取消信号并启动执行线程后立刻返回（与 Task 派发同一模型）
func (w *Worker) Launch(job *repository.Job, proc Processor) error {
	token, err := w.reg.Register(Key(job.JobType, job.ID))
	if err != nil {
		return err
	}
	go w.run(job, proc, token)
	return nil
}

// ReportPath Job 报告文件的确定性路径
func (w *Worker) ReportPath(jobType string, id int64) string {
	return filepath.Join(w.reportDir, fmt.Sprintf("%s-%d.json", jobType, id))
}

// run 逐条处理记录集。正常结束、异常、取消三条路径都在 defer 里
// 落最终报告并把 Job 收敛到终态——不存在停在 running 的出口。
func (w *Worker) run(job *repository.Job, proc Processor, token *cancel.Token) {
	ctx := context.Background()
	log := logger.WithJobID(job.JobType, job.ID)
	defer w.reg.Unregister(Key(job.JobType, job.ID))

	reportPath := w.ReportPath(job.JobType, job.ID)
	summary := &Summary{}
	final := model.JobFailed

	defer func() {
		if p := recover(); p != nil {
			summary.Error = fmt.Sprintf("panic: %v", p)
			final = model.JobFailed
			log.Error().Str("panic", summary.Error).Msg("Job 执行异常")
		}
		summary.Done = true
		w.writeReport(reportPath, summary, log)
		if err := w.jobs.UpdateStatus(ctx, job.ID, job.JobType, final, reportPath); err != nil {
			log.Error().Err(err).Msg("Job 终态落库失败")
		}
		metrics.RecordJobFinished(job.JobType, string(final))
		log.Info().Str("status", string(final)).Int("total", summary.Total).Msg("Job 结束")
	}()

	if err := w.jobs.UpdateStatus(ctx, job.ID, job.JobType, model.JobRunning, ""); err != nil {
		summary.Error = err.Error()
		return
	}

	records, err := proc.Records(ctx)
	if err != nil {
		summary.Error = err.Error()
		log.Error().Err(err).Msg("获取记录集失败")
		return
	}
	summary.Total = len(records)

	for i, rec := range records {
		// 每条记录一个取消检查点（比 Task Runner 的每 stage 检查更粗）
		if token.Cancelled() {
			summary.Cancelled = true
			final = model.JobCancelled
			return
		}

		outcome, err := proc.Process(ctx, rec)
		if err != nil {
			// 单条记录失败不让整批夭折
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", rec.ID, err))
			log.Warn().Err(err).Str("record", rec.ID).Msg("记录处理失败")
		} else {
			switch outcome {
			case OutcomeUpdated:
				summary.Updated++
			case OutcomeSkipped:
				summary.Skipped++
			default:
				summary.Processed++
			}
		}

		// 第一条之后以及每 N 条落一次中间报告
		if i == 0 || (i+1)%w.every == 0 {
			w.writeReport(reportPath, summary, log)
		}
	}

	final = model.JobCompleted
}

// writeReport 落报告。写失败只记日志，不改变 Job 的终态走向。
func (w *Worker) writeReport(path string, s *Summary, log zerolog.Logger) {
	s.UpdatedAt = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Error().Err(err).Msg("创建报告目录失败")
		return
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("序列化报告失败")
		return
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		log.Error().Err(err).Str("path", path).Msg("写报告文件失败")
	}
}
