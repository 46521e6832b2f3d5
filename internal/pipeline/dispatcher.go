package pipeline

import (
	"context"

	"github.com/azhengyongqin/wikitrans-hub/internal/cancel"
	"github.com/azhengyongqin/wikitrans-hub/internal/logger"
	"github.com/azhengyongqin/wikitrans-hub/internal/metrics"
	"github.com/azhengyongqin/wikitrans-hub/internal/repository"
)

// RunnerFactory 为每次执行构造独立的 Runner。每个执行线程由此拿到
// 自己的 store 实例（自己的连接），cleanup 在线程收尾时释放它。
type RunnerFactory func() (*Runner, func(), error)

// Dispatcher fire-and-forget 派发：接受提交的线程从不阻塞在执行上，
// 注册取消信号、起执行线程后立刻返回；进度只能通过轮询 Task Store 观察。
type Dispatcher struct {
	reg     *cancel.Registry
	factory RunnerFactory
}

func NewDispatcher(reg *cancel.Registry, factory RunnerFactory) *Dispatcher {
	return &Dispatcher{reg: reg, factory: factory}
}

// Launch 启动一个任务的执行线程。id 已在注册表里（同任务已有执行线程）时拒绝。
// 注销放在 defer 里，id 不会泄漏到本次执行之外。
func (d *Dispatcher) Launch(task *repository.Task) error {
	if _, err := d.reg.Register(task.ID); err != nil {
		return err
	}

	go func() {
		defer d.reg.Unregister(task.ID)

		r, cleanup, err := d.factory()
		if err != nil {
			logger.Error().Err(err).Str("task_id", task.ID).Msg("构造 Runner 失败，任务未执行")
			metrics.RecordError("dispatcher", "runner_factory")
			return
		}
		defer cleanup()

		r.Run(context.Background(), task)
	}()
	return nil
}
