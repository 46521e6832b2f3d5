package pipeline

import (
	"context"

	"github.com/azhengyongqin/wikitrans-hub/internal/model"
)

// TitleSet titles stage 的输出：主文件名 + 待处理文件名列表
type TitleSet struct {
	MainTitle string   `json:"main_title"`
	Titles    []string `json:"titles"`
}

// Translations translations stage 的输出。
// 键为翻译单元 id，值为 语言 → 文本。
type Translations struct {
	New      map[string]map[string]string `json:"new"`
	Existing map[string]map[string]string `json:"existing,omitempty"`
}

// NewCount 新增翻译条数
func (t Translations) NewCount() int { return len(t.New) }

// Count 全部翻译条数
func (t Translations) Count() int { return len(t.New) + len(t.Existing) }

// Downloaded download stage 的输出：落盘的文件与未完成清单
type Downloaded struct {
	Files  []string `json:"files"`
	Undone []string `json:"undone,omitempty"`
}

// NestedReport nested_check stage 的输出
type NestedReport struct {
	Checked int      `json:"checked"`
	Nested  []string `json:"nested,omitempty"`
	Fixed   int      `json:"fixed"`
}

// InjectReport inject stage 的输出
type InjectReport struct {
	Success int      `json:"success"`
	Files   []string `json:"files,omitempty"`
	Failed  []string `json:"failed,omitempty"`
}

// UploadReport upload stage 的输出
type UploadReport struct {
	Uploaded []string `json:"uploaded,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Stages 可插拔的领域 stage 函数。每个方法拿到一份新的 StageState
// （Status=Running），返回本 stage 的输出和改写后的状态。
// Runner 对输出和状态内部字段一律不作领域解释，只认 Status/Message，
// 负责排序、持久化和检查点。
type Stages interface {
	// Text 抓取标题对应页面的 wikitext
	Text(ctx context.Context, st model.StageState, title string) (string, model.StageState)

	// Titles 从 wikitext 解析主文件名与文件名列表；manualMainTitle 人工覆盖
	Titles(ctx context.Context, st model.StageState, text, manualMainTitle string, limit int) (TitleSet, model.StageState)

	// Translations 提取翻译，快照写入 workDir
	Translations(ctx context.Context, st model.StageState, workDir, text string, ts TitleSet) (Translations, model.StageState)

	// Download 把文件下载到 workDir
	Download(ctx context.Context, st model.StageState, workDir string, ts TitleSet) (Downloaded, model.StageState)

	// NestedCheck 检查已下载文件里的嵌套/畸形标记
	NestedCheck(ctx context.Context, st model.StageState, workDir string, files []string) (NestedReport, model.StageState)

	// Inject 把翻译注入已下载的文件
	Inject(ctx context.Context, st model.StageState, workDir string, files []string, tr Translations) (InjectReport, model.StageState)

	// Upload 上传注入后的文件（files 已排除主文件）
	Upload(ctx context.Context, st model.StageState, workDir string, files []string) (UploadReport, model.StageState)
}
