package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/azhengyongqin/wikitrans-hub/internal/cancel"
	"github.com/azhengyongqin/wikitrans-hub/internal/logger"
	"github.com/azhengyongqin/wikitrans-hub/internal/metrics"
	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/repository"
)

// Runner 驱动一个任务走完固定的 8 个 stage：只负责排序、持久化和检查点，
// 领域语义全部在 Stages 实现里。每个 Runner 在自己的线程上跑一个任务，
// 并持有自己的 store 实例（独立连接），避免所有任务挤同一把连接锁。
type Runner struct {
	tasks      repository.TaskRepository
	stages     Stages
	checker    *cancel.Checker
	workRoot   string
	titleLimit int
}

func NewRunner(tasks repository.TaskRepository, stages Stages, checker *cancel.Checker, workRoot string, titleLimit int) *Runner {
	return &Runner{
		tasks:      tasks,
		stages:     stages,
		checker:    checker,
		workRoot:   workRoot,
		titleLimit: titleLimit,
	}
}

// Run 执行整条流水线。每个 stage 结束后先持久化 stage 行，再评估检查点
// （取消 / fail-fast）。任何一条路径都把任务收敛到唯一终态，
// 已产生的副作用（下载的文件、局部 JSON）保留现场，便于排查。
func (r *Runner) Run(ctx context.Context, task *repository.Task) {
	log := logger.WithTaskID(task.ID)
	form := task.FormView()

	// stage 实现 panic 时在这里兜底：任务按 Failed 收口，panic 信息
	// 写进 initialize 行，执行线程不把整个进程带死
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("panic", fmt.Sprintf("%v", p)).Msg("流水线执行异常，任务按失败收尾")
			metrics.RecordError("pipeline", "panic")
			r.persistStage(ctx, task.ID, model.StageInitialize,
				model.StageState{Status: model.StatusFailed, Message: fmt.Sprintf("panic: %v", p)}, log)
			r.terminal(ctx, task.ID, model.StatusFailed, log)
		}
	}()

	// 从标题推导确定性的工作目录
	workDir := filepath.Join(r.workRoot, model.WorkDirName(task.Title))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", workDir).Msg("创建工作目录失败")
		r.finalize(ctx, task.ID, model.StatusFailed, log)
		return
	}

	// 置 Running 失败也要尽力收口到终态，任务不能永远停在 Pending
	// 占着同标题的 single-flight 名额
	if err := r.tasks.UpdateColumn(ctx, task.ID, "status", string(model.StatusRunning)); err != nil {
		log.Error().Err(err).Msg("任务置 Running 失败")
		r.finalize(ctx, task.ID, model.StatusFailed, log)
		return
	}
	r.persistStage(ctx, task.ID, model.StageInitialize, model.StageState{Status: model.StatusRunning}, log)

	anyFailed := false

	// 2. text
	started := time.Now()
	text, st := r.stages.Text(ctx, running(), task.Title)
	if r.finish(ctx, task.ID, model.StageText, st, text == "", &anyFailed, started, log) {
		return
	}

	// 3. titles
	limit := form.TitleLimit
	if limit <= 0 {
		limit = r.titleLimit
	}
	started = time.Now()
	ts, st := r.stages.Titles(ctx, running(), text, form.ManualMainTitle, limit)
	empty := ts.MainTitle == "" || len(ts.Titles) == 0
	if r.finish(ctx, task.ID, model.StageTitles, st, empty, &anyFailed, started, log) {
		return
	}
	// 主文件名是中途产生的派生值，立即落库
	if err := r.tasks.UpdateColumn(ctx, task.ID, "main_file", ts.MainTitle); err != nil {
		log.Warn().Err(err).Msg("main_file 落库失败")
	}

	// 4. translations
	started = time.Now()
	tr, st := r.stages.Translations(ctx, running(), workDir, text, ts)
	if r.finish(ctx, task.ID, model.StageTranslations, st, tr.Count() == 0, &anyFailed, started, log) {
		return
	}

	// 5. download
	started = time.Now()
	dl, st := r.stages.Download(ctx, running(), workDir, ts)
	if r.finish(ctx, task.ID, model.StageDownload, st, len(dl.Files) == 0, &anyFailed, started, log) {
		return
	}

	// 6. nested_check（软失败不触发 fail-fast）
	started = time.Now()
	nr, st := r.stages.NestedCheck(ctx, running(), workDir, dl.Files)
	if r.finish(ctx, task.ID, model.StageNestedCheck, st, false, &anyFailed, started, log) {
		return
	}

	// 7. inject
	started = time.Now()
	ir, st := r.stages.Inject(ctx, running(), workDir, dl.Files, tr)
	if r.finish(ctx, task.ID, model.StageInject, st, ir.Success == 0, &anyFailed, started, log) {
		return
	}

	// 8. upload（上传集排除主文件；空集不算失败）
	uploads := excluding(ir.Files, ts.MainTitle)
	started = time.Now()
	ur, st := r.stages.Upload(ctx, running(), workDir, uploads)
	if r.finish(ctx, task.ID, model.StageUpload, st, false, &anyFailed, started, log) {
		return
	}

	// 8 个 stage 全部跑完：汇总结果落库
	results := &repository.Results{
		FilesCount:           len(dl.Files),
		NewTranslationsCount: tr.NewCount(),
		NestedCount:          len(nr.Nested),
		InjectedCount:        ir.Success,
		FilesToUploadCount:   len(uploads),
		UploadedCount:        len(ur.Uploaded),
	}

	// 某个 stage 自己上报了 Failed（软失败）时，整体按 Failed 收尾
	final := model.StatusCompleted
	if anyFailed {
		final = model.StatusFailed
	}

	r.completeInitialize(ctx, task.ID, log)
	if err := r.tasks.Update(ctx, task.ID, repository.TaskUpdate{
		Status:   repository.Set(final),
		Results:  repository.Set(results),
		MainFile: repository.Set(ts.MainTitle),
	}); err != nil {
		log.Error().Err(err).Msg("任务收尾落库失败")
		// 汇总写不进去也至少把状态收口到终态
		if err := r.tasks.UpdateColumn(ctx, task.ID, "status", string(final)); err != nil {
			log.Error().Err(err).Str("status", string(final)).Msg("任务终态落库失败")
		}
	}
	metrics.RecordTaskFinished(string(final))
	log.Info().Str("status", string(final)).Int("files", results.FilesCount).Msg("流水线结束")
}

// finish 持久化刚结束的 stage 行，然后评估检查点。
// 返回 true 表示流水线在此提前收尾，后续 stage 一个都不再执行。
func (r *Runner) finish(ctx context.Context, taskID, name string, st model.StageState, emptyOutput bool, anyFailed *bool, started time.Time, log zerolog.Logger) bool {
	r.persistStage(ctx, taskID, name, st, log)
	metrics.RecordStage(name, time.Since(started).Seconds())
	if st.Status == model.StatusFailed {
		*anyFailed = true
	}

	// 取消检查点：持久化状态还停在 Running 的 stage 翻成 Cancelled
	if r.checker.Cancelled(ctx, taskID) {
		if st.Status == model.StatusRunning {
			st.Status = model.StatusCancelled
			r.persistStage(ctx, taskID, name, st, log)
		}
		log.Info().Str("stage", name).Msg("任务在检查点被取消")
		r.finalize(ctx, taskID, model.StatusCancelled, log)
		return true
	}

	// fail-fast：主输出为空，直接收尾
	if emptyOutput {
		log.Warn().Str("stage", name).Str("message", st.Message).Msg("stage 主输出为空，流水线提前失败")
		r.finalize(ctx, taskID, model.StatusFailed, log)
		return true
	}
	return false
}

// finalize initialize 置 Completed + 任务置终态
func (r *Runner) finalize(ctx context.Context, taskID string, status model.TaskStatus, log zerolog.Logger) {
	r.completeInitialize(ctx, taskID, log)
	r.terminal(ctx, taskID, status, log)
}

// terminal 任务状态落终态并记指标
func (r *Runner) terminal(ctx context.Context, taskID string, status model.TaskStatus, log zerolog.Logger) {
	if err := r.tasks.UpdateColumn(ctx, taskID, "status", string(status)); err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("任务终态落库失败")
	}
	metrics.RecordTaskFinished(string(status))
}

func (r *Runner) completeInitialize(ctx context.Context, taskID string, log zerolog.Logger) {
	r.persistStage(ctx, taskID, model.StageInitialize, model.StageState{Status: model.StatusCompleted}, log)
}

func (r *Runner) persistStage(ctx context.Context, taskID, name string, st model.StageState, log zerolog.Logger) {
	err := r.tasks.UpsertStage(ctx, taskID, repository.Stage{
		Name:    name,
		Number:  model.StageNumber(name),
		Status:  st.Status,
		SubName: st.SubName,
		Message: st.Message,
	})
	if err != nil {
		log.Error().Err(err).Str("stage", name).Msg("stage 落库失败")
		metrics.RecordError("pipeline", "persist_stage")
	}
}

func running() model.StageState {
	return model.StageState{Status: model.StatusRunning}
}

func excluding(files []string, main string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if f == main {
			continue
		}
		out = append(out, f)
	}
	return out
}
