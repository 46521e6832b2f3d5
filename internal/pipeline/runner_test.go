package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/wikitrans-hub/internal/cancel"
	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/repository"
)

// fakeTaskRepo 内存任务仓储，记录 Runner 的所有持久化动作
type fakeTaskRepo struct {
	mu     sync.Mutex
	task   *repository.Task
	stages map[string]repository.Stage

	updates      []repository.TaskUpdate
	columnWrites []string

	// failColumnWrite 非 nil 时先询问它，返回错误则该次单列写失败
	failColumnWrite func(column string, value interface{}) error
}

func newFakeTaskRepo(task *repository.Task) *fakeTaskRepo {
	return &fakeTaskRepo{task: task, stages: map[string]repository.Stage{}}
}

func (f *fakeTaskRepo) Create(ctx context.Context, t *repository.Task) error { return nil }

func (f *fakeTaskRepo) GetByID(ctx context.Context, id string) (*repository.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.task, true
}

func (f *fakeTaskRepo) GetActiveByTitle(ctx context.Context, title string) (*repository.Task, error) {
	return nil, nil
}

func (f *fakeTaskRepo) List(ctx context.Context, status string, limit, offset int) ([]repository.Task, error) {
	return nil, nil
}

func (f *fakeTaskRepo) Update(ctx context.Context, id string, u repository.TaskUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	if u.Status.IsSet() {
		f.task.Status = u.Status.Value()
	}
	if u.Results.IsSet() {
		f.task.Results = u.Results.Value()
	}
	if u.MainFile.IsSet() {
		f.task.MainFile = u.MainFile.Value()
	}
	return nil
}

func (f *fakeTaskRepo) UpdateColumn(ctx context.Context, id, column string, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failColumnWrite != nil {
		if err := f.failColumnWrite(column, value); err != nil {
			return err
		}
	}
	f.columnWrites = append(f.columnWrites, column)
	switch column {
	case "status":
		f.task.Status = model.TaskStatus(value.(string))
	case "main_file":
		f.task.MainFile = value.(string)
	}
	return nil
}

func (f *fakeTaskRepo) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeTaskRepo) UpsertStage(ctx context.Context, taskID string, st repository.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages[st.Name] = st
	return nil
}

func (f *fakeTaskRepo) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]repository.Task, error) {
	return nil, nil
}

// scriptStages 按脚本返回每个 stage 的输出；记录实际被调用的 stage 顺序
type scriptStages struct {
	mu     sync.Mutex
	called []string

	text   string
	titles TitleSet
	tr     Translations
	dl     Downloaded
	nr     NestedReport
	ir     InjectReport
	ur     UploadReport

	// failStage 指定某个 stage 自报 Failed（软失败）
	failStage string

	// onStage stage 执行时的回调（测试里用来触发取消）
	onStage func(name string)
}

func (s *scriptStages) record(name string, st model.StageState) model.StageState {
	s.mu.Lock()
	s.called = append(s.called, name)
	s.mu.Unlock()
	if s.onStage != nil {
		s.onStage(name)
	}
	if s.failStage == name {
		st.Status = model.StatusFailed
		st.Message = "scripted failure"
	} else {
		st.Status = model.StatusCompleted
	}
	return st
}

func (s *scriptStages) Text(ctx context.Context, st model.StageState, title string) (string, model.StageState) {
	return s.text, s.record(model.StageText, st)
}

func (s *scriptStages) Titles(ctx context.Context, st model.StageState, text, manualMainTitle string, limit int) (TitleSet, model.StageState) {
	return s.titles, s.record(model.StageTitles, st)
}

func (s *scriptStages) Translations(ctx context.Context, st model.StageState, workDir, text string, ts TitleSet) (Translations, model.StageState) {
	return s.tr, s.record(model.StageTranslations, st)
}

func (s *scriptStages) Download(ctx context.Context, st model.StageState, workDir string, ts TitleSet) (Downloaded, model.StageState) {
	return s.dl, s.record(model.StageDownload, st)
}

func (s *scriptStages) NestedCheck(ctx context.Context, st model.StageState, workDir string, files []string) (NestedReport, model.StageState) {
	return s.nr, s.record(model.StageNestedCheck, st)
}

func (s *scriptStages) Inject(ctx context.Context, st model.StageState, workDir string, files []string, tr Translations) (InjectReport, model.StageState) {
	return s.ir, s.record(model.StageInject, st)
}

func (s *scriptStages) Upload(ctx context.Context, st model.StageState, workDir string, files []string) (UploadReport, model.StageState) {
	return s.ur, s.record(model.StageUpload, st)
}

func newTask(title string) *repository.Task {
	return &repository.Task{
		ID:     "task-1",
		Title:  title,
		Status: model.StatusPending,
	}
}

// happyStages 单文件走完全程的脚本：主文件即唯一文件，上传集为空
func happyStages() *scriptStages {
	return &scriptStages{
		text:   "{{en|A lighthouse}}",
		titles: TitleSet{MainTitle: "File:Demo.jpg", Titles: []string{"File:Demo.jpg"}},
		tr:     Translations{New: map[string]map[string]string{"description": {"de": "Ein Leuchtturm"}}},
		dl:     Downloaded{Files: []string{"File:Demo.jpg"}},
		ir:     InjectReport{Success: 1, Files: []string{"File:Demo.jpg"}},
	}
}

func TestRunner_SingleFileCompletes(t *testing.T) {
	task := newTask("Demo File")
	repo := newFakeTaskRepo(task)
	stages := happyStages()
	reg := cancel.NewRegistry()
	r := NewRunner(repo, stages, cancel.NewChecker(reg, nil), t.TempDir(), 50)

	r.Run(context.Background(), task)

	// 上传集为空（唯一文件就是主文件）也必须是 Completed
	assert.Equal(t, model.StatusCompleted, task.Status)
	require.NotNil(t, task.Results)
	assert.Equal(t, 1, task.Results.FilesCount)
	assert.Equal(t, 1, task.Results.NewTranslationsCount)
	assert.Equal(t, 0, task.Results.FilesToUploadCount, "主文件排除后上传集应为空")
	assert.Equal(t, 0, task.Results.UploadedCount)
	assert.Equal(t, "File:Demo.jpg", task.MainFile)

	// 8 个 stage 全部落库，initialize 最终是 Completed
	assert.Len(t, repo.stages, 8)
	assert.Equal(t, model.StatusCompleted, repo.stages[model.StageInitialize].Status)
	assert.Equal(t, model.StatusCompleted, repo.stages[model.StageUpload].Status)

	// 调用顺序固定
	assert.Equal(t, []string{
		model.StageText, model.StageTitles, model.StageTranslations,
		model.StageDownload, model.StageNestedCheck, model.StageInject, model.StageUpload,
	}, stages.called)
}

func TestRunner_FailFastOnEmptyTitles(t *testing.T) {
	task := newTask("Empty Gallery")
	repo := newFakeTaskRepo(task)
	stages := happyStages()
	stages.titles = TitleSet{} // titles stage 主输出为空
	reg := cancel.NewRegistry()
	r := NewRunner(repo, stages, cancel.NewChecker(reg, nil), t.TempDir(), 50)

	r.Run(context.Background(), task)

	assert.Equal(t, model.StatusFailed, task.Status)

	// titles 之后的 stage 一个都不该被调用
	assert.Equal(t, []string{model.StageText, model.StageTitles}, stages.called)

	// 只有 initialize/text/titles 有持久化行
	assert.Len(t, repo.stages, 3)
	assert.Equal(t, model.StatusCompleted, repo.stages[model.StageInitialize].Status)
	assert.Equal(t, model.StatusCompleted, repo.stages[model.StageTitles].Status,
		"stage 自身跑完了（Completed），失败的是流水线检查点")
	assert.Nil(t, task.Results, "提前失败不写 results")
}

func TestRunner_CancelledAtCheckpoint(t *testing.T) {
	task := newTask("Slow Task")
	repo := newFakeTaskRepo(task)
	reg := cancel.NewRegistry()
	token, err := reg.Register(task.ID)
	require.NoError(t, err)

	stages := happyStages()
	stages.onStage = func(name string) {
		// text stage 执行期间收到取消请求
		if name == model.StageText {
			token.Cancel()
		}
	}
	r := NewRunner(repo, stages, cancel.NewChecker(reg, nil), t.TempDir(), 50)

	r.Run(context.Background(), task)

	assert.Equal(t, model.StatusCancelled, task.Status)
	assert.Equal(t, []string{model.StageText}, stages.called, "检查点之后不再执行任何 stage")
	assert.Equal(t, model.StatusCompleted, repo.stages[model.StageInitialize].Status)
}

func TestRunner_CancelledStageFlipsRunning(t *testing.T) {
	task := newTask("Flip Running")
	repo := newFakeTaskRepo(task)
	reg := cancel.NewRegistry()
	token, err := reg.Register(task.ID)
	require.NoError(t, err)

	stages := happyStages()
	stages.failStage = "__none__"
	// Text 把状态留在 Running（模拟 stage 没来得及收尾）
	stages.onStage = func(name string) { token.Cancel() }
	runningText := &leaveRunningStages{inner: stages}
	r := NewRunner(repo, runningText, cancel.NewChecker(reg, nil), t.TempDir(), 50)

	r.Run(context.Background(), task)

	assert.Equal(t, model.StatusCancelled, task.Status)
	assert.Equal(t, model.StatusCancelled, repo.stages[model.StageText].Status,
		"持久化状态停在 Running 的 stage 应翻成 Cancelled")
}

// leaveRunningStages 包装脚本，让 Text 返回的状态保持 Running
type leaveRunningStages struct {
	inner *scriptStages
}

func (l *leaveRunningStages) Text(ctx context.Context, st model.StageState, title string) (string, model.StageState) {
	out, _ := l.inner.Text(ctx, st, title)
	return out, model.StageState{Status: model.StatusRunning}
}

func (l *leaveRunningStages) Titles(ctx context.Context, st model.StageState, text, manualMainTitle string, limit int) (TitleSet, model.StageState) {
	return l.inner.Titles(ctx, st, text, manualMainTitle, limit)
}

func (l *leaveRunningStages) Translations(ctx context.Context, st model.StageState, workDir, text string, ts TitleSet) (Translations, model.StageState) {
	return l.inner.Translations(ctx, st, workDir, text, ts)
}

func (l *leaveRunningStages) Download(ctx context.Context, st model.StageState, workDir string, ts TitleSet) (Downloaded, model.StageState) {
	return l.inner.Download(ctx, st, workDir, ts)
}

func (l *leaveRunningStages) NestedCheck(ctx context.Context, st model.StageState, workDir string, files []string) (NestedReport, model.StageState) {
	return l.inner.NestedCheck(ctx, st, workDir, files)
}

func (l *leaveRunningStages) Inject(ctx context.Context, st model.StageState, workDir string, files []string, tr Translations) (InjectReport, model.StageState) {
	return l.inner.Inject(ctx, st, workDir, files, tr)
}

func (l *leaveRunningStages) Upload(ctx context.Context, st model.StageState, workDir string, files []string) (UploadReport, model.StageState) {
	return l.inner.Upload(ctx, st, workDir, files)
}

func TestRunner_SoftFailureAggregates(t *testing.T) {
	task := newTask("Flaky Upload")
	repo := newFakeTaskRepo(task)
	stages := happyStages()
	stages.titles.Titles = []string{"File:Demo.jpg", "File:Other.jpg"}
	stages.dl.Files = []string{"File:Demo.jpg", "File:Other.jpg"}
	stages.ir = InjectReport{Success: 2, Files: []string{"File:Demo.jpg", "File:Other.jpg"}}
	stages.failStage = model.StageUpload // upload 自报 Failed，但不触发 fail-fast
	reg := cancel.NewRegistry()
	r := NewRunner(repo, stages, cancel.NewChecker(reg, nil), t.TempDir(), 50)

	r.Run(context.Background(), task)

	// 所有 stage 都跑完了，但整体按 Failed 收尾
	assert.Equal(t, model.StatusFailed, task.Status)
	assert.Len(t, stages.called, 7, "软失败不提前终止流水线")
	require.NotNil(t, task.Results, "软失败仍然写 results")
	assert.Equal(t, 1, task.Results.FilesToUploadCount, "上传集排除主文件")
	assert.Equal(t, model.StatusFailed, repo.stages[model.StageUpload].Status)
}

func TestRunner_RunningWriteFailureStillFinalizes(t *testing.T) {
	task := newTask("Broken Store")
	repo := newFakeTaskRepo(task)
	// 只有「置 Running」这一次写失败，后续终态写正常
	repo.failColumnWrite = func(column string, value interface{}) error {
		if column == "status" && value == string(model.StatusRunning) {
			return errors.New("connection reset")
		}
		return nil
	}
	stages := happyStages()
	reg := cancel.NewRegistry()
	r := NewRunner(repo, stages, cancel.NewChecker(reg, nil), t.TempDir(), 50)

	r.Run(context.Background(), task)

	// 任务不能永远停在 Pending 占着同标题的名额
	assert.True(t, task.Status.Terminal(), "Run 返回后任务必须是终态，实际是 %s", task.Status)
	assert.Equal(t, model.StatusFailed, task.Status)
	assert.Empty(t, stages.called, "没进入 Running 就不执行任何 stage")
}

func TestRunner_StagePanicFinalizesFailed(t *testing.T) {
	task := newTask("Panicky Stage")
	repo := newFakeTaskRepo(task)
	stages := happyStages()
	stages.onStage = func(name string) {
		if name == model.StageDownload {
			panic("nil dereference in stage")
		}
	}
	reg := cancel.NewRegistry()
	r := NewRunner(repo, stages, cancel.NewChecker(reg, nil), t.TempDir(), 50)

	// panic 被执行线程自己兜住，不向外扩散
	require.NotPanics(t, func() { r.Run(context.Background(), task) })

	assert.Equal(t, model.StatusFailed, task.Status)
	assert.Equal(t, model.StatusFailed, repo.stages[model.StageInitialize].Status)
	assert.Contains(t, repo.stages[model.StageInitialize].Message, "panic",
		"panic 信息要留在 initialize 行里供排查")
}

func TestExcluding(t *testing.T) {
	files := []string{"File:A.jpg", "File:Main.jpg", "File:B.jpg"}
	assert.Equal(t, []string{"File:A.jpg", "File:B.jpg"}, excluding(files, "File:Main.jpg"))
	assert.Equal(t, files, excluding(files, "File:None.jpg"))
	assert.Empty(t, excluding(nil, "x"))
}
