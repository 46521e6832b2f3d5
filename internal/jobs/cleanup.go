package jobs

import (
	"context"
	"time"

	"github.com/azhengyongqin/wikitrans-hub/internal/repository"
)

// TypeTaskCleanup 清理终态旧任务的 Job 判别名
const TypeTaskCleanup = "task-cleanup"

// TaskCleanup 删除早于保留窗口的终态任务（含其 stage 行与结果快照）。
// 运行中的任务不在记录集里，不会被误删。
type TaskCleanup struct {
	tasks repository.TaskRepository
	keep  time.Duration
	limit int
}

func NewTaskCleanup(tasks repository.TaskRepository, keep time.Duration, limit int) *TaskCleanup {
	if limit < 1 {
		limit = 1000
	}
	return &TaskCleanup{tasks: tasks, keep: keep, limit: limit}
}

func (c *TaskCleanup) Type() string { return TypeTaskCleanup }

// Records 记录集在 Job 启动时定格一次，之后新转终态的任务留给下一轮
func (c *TaskCleanup) Records(ctx context.Context) ([]Record, error) {
	cutoff := time.Now().Add(-c.keep)
	tasks, err := c.tasks.ListTerminalBefore(ctx, cutoff, c.limit)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(tasks))
	for _, t := range tasks {
		records = append(records, Record{ID: t.ID, Note: t.Title})
	}
	return records, nil
}

func (c *TaskCleanup) Process(ctx context.Context, rec Record) (Outcome, error) {
	// 定格记录集和实际删除之间任务可能已被手工删除
	if _, ok := c.tasks.GetByID(ctx, rec.ID); !ok {
		return OutcomeSkipped, nil
	}
	if err := c.tasks.Delete(ctx, rec.ID); err != nil {
		return OutcomeProcessed, err
	}
	return OutcomeUpdated, nil
}
