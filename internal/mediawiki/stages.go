package mediawiki

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/pipeline"
)

var (
	// [[File:Xxx.jpg|...]] 与 [[Image:Xxx.jpg]] 两种写法
	fileLinkRe = regexp.MustCompile(`(?i)\[\[\s*(?:File|Image):([^|\]]+)`)

	// {{en|...}} 这类语言模板，语言码 2-3 位
	langTemplateRe = regexp.MustCompile(`\{\{([a-z]{2,3})\|([^{}]*)\}\}`)
)

// Text 抓取标题页面的 wikitext
func (c *Client) Text(ctx context.Context, st model.StageState, title string) (string, model.StageState) {
	text, err := c.PageText(ctx, title)
	if err != nil {
		st.Status = model.StatusFailed
		st.Message = err.Error()
		return "", st
	}
	st.Status = model.StatusCompleted
	return text, st
}

// Titles 从 wikitext 里提取文件名列表。gallery 块里的裸文件行和
// [[File:...]] 链接都算；manualMainTitle 非空时覆盖推导出的主文件。
func (c *Client) Titles(ctx context.Context, st model.StageState, text, manualMainTitle string, limit int) (pipeline.TitleSet, model.StageState) {
	var ts pipeline.TitleSet

	seen := map[string]bool{}
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if !strings.HasPrefix(name, "File:") {
			name = "File:" + name
		}
		key := model.NormalizeTitle(name)
		if seen[key] {
			return
		}
		seen[key] = true
		ts.Titles = append(ts.Titles, name)
	}

	for _, m := range fileLinkRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	if inGallery(text) {
		for _, line := range galleryLines(text) {
			add(line)
		}
	}

	if limit > 0 && len(ts.Titles) > limit {
		ts.Titles = ts.Titles[:limit]
	}

	ts.MainTitle = manualMainTitle
	if ts.MainTitle == "" && len(ts.Titles) > 0 {
		ts.MainTitle = ts.Titles[0]
	}

	st.Status = model.StatusCompleted
	st.Message = fmt.Sprintf("%d titles", len(ts.Titles))
	return ts, st
}

// Translations 从页面文本提取语言模板作为翻译单元，快照写进 workDir
func (c *Client) Translations(ctx context.Context, st model.StageState, workDir, text string, ts pipeline.TitleSet) (pipeline.Translations, model.StageState) {
	tr := pipeline.Translations{New: map[string]map[string]string{}}

	for _, m := range langTemplateRe.FindAllStringSubmatch(text, -1) {
		lang, content := m[1], strings.TrimSpace(m[2])
		if content == "" {
			continue
		}
		if tr.New["description"] == nil {
			tr.New["description"] = map[string]string{}
		}
		tr.New["description"][lang] = content
	}

	// 快照落盘，中断后可人工查看提取结果
	b, _ := json.MarshalIndent(tr, "", "  ")
	if err := os.WriteFile(filepath.Join(workDir, "translations.json"), b, 0o644); err != nil {
		st.Status = model.StatusFailed
		st.Message = err.Error()
		return tr, st
	}

	st.Status = model.StatusCompleted
	st.Message = fmt.Sprintf("%d new", tr.NewCount())
	return tr, st
}

// Download 把每个文件页的 wikitext 落到 workDir。单个文件失败进 Undone，
// 全部失败才算 stage 失败。
func (c *Client) Download(ctx context.Context, st model.StageState, workDir string, ts pipeline.TitleSet) (pipeline.Downloaded, model.StageState) {
	var dl pipeline.Downloaded

	for _, title := range ts.Titles {
		st.SubName = title
		text, err := c.PageText(ctx, title)
		if err != nil || text == "" {
			dl.Undone = append(dl.Undone, title)
			continue
		}
		if err := os.WriteFile(localPath(workDir, title), []byte(text), 0o644); err != nil {
			dl.Undone = append(dl.Undone, title)
			continue
		}
		dl.Files = append(dl.Files, title)
	}

	st.SubName = ""
	if len(dl.Files) == 0 && len(ts.Titles) > 0 {
		st.Status = model.StatusFailed
		st.Message = fmt.Sprintf("all %d downloads failed", len(ts.Titles))
		return dl, st
	}
	st.Status = model.StatusCompleted
	st.Message = fmt.Sprintf("%d files, %d undone", len(dl.Files), len(dl.Undone))
	return dl, st
}

// NestedCheck 检查已下载文件里重复的 Information 块（嵌套描述是
// 历史导入的常见脏数据，注入前必须知道）。只报告，不改写。
func (c *Client) NestedCheck(ctx context.Context, st model.StageState, workDir string, files []string) (pipeline.NestedReport, model.StageState) {
	var nr pipeline.NestedReport

	for _, title := range files {
		b, err := os.ReadFile(localPath(workDir, title))
		if err != nil {
			continue
		}
		nr.Checked++
		if strings.Count(string(b), "{{Information") > 1 {
			nr.Nested = append(nr.Nested, title)
		}
	}

	st.Status = model.StatusCompleted
	st.Message = fmt.Sprintf("%d checked, %d nested", nr.Checked, len(nr.Nested))
	return nr, st
}

// Inject 把翻译注入已下载的文件文本：description 字段后追加缺失的语言模板
func (c *Client) Inject(ctx context.Context, st model.StageState, workDir string, files []string, tr pipeline.Translations) (pipeline.InjectReport, model.StageState) {
	var ir pipeline.InjectReport

	units := tr.New["description"]
	for _, title := range files {
		path := localPath(workDir, title)
		b, err := os.ReadFile(path)
		if err != nil {
			ir.Failed = append(ir.Failed, title)
			continue
		}
		text, changed := injectDescriptions(string(b), units)
		if changed {
			if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
				ir.Failed = append(ir.Failed, title)
				continue
			}
		}
		ir.Success++
		ir.Files = append(ir.Files, title)
	}

	if ir.Success == 0 && len(files) > 0 {
		st.Status = model.StatusFailed
		st.Message = "no file could be injected"
		return ir, st
	}
	st.Status = model.StatusCompleted
	st.Message = fmt.Sprintf("%d injected, %d failed", ir.Success, len(ir.Failed))
	return ir, st
}

// Upload 把注入后的文本写回 wiki。单个文件失败进 Skipped；
// 有文件且全部失败时 stage 记 Failed（软失败，整体按 Failed 收尾）。
func (c *Client) Upload(ctx context.Context, st model.StageState, workDir string, files []string) (pipeline.UploadReport, model.StageState) {
	var ur pipeline.UploadReport

	for _, title := range files {
		st.SubName = title
		b, err := os.ReadFile(localPath(workDir, title))
		if err != nil {
			ur.Skipped = append(ur.Skipped, title)
			continue
		}
		if err := c.SavePage(ctx, title, string(b), "add translated descriptions"); err != nil {
			ur.Skipped = append(ur.Skipped, title)
			continue
		}
		ur.Uploaded = append(ur.Uploaded, title)
	}

	st.SubName = ""
	if len(ur.Uploaded) == 0 && len(files) > 0 {
		st.Status = model.StatusFailed
		st.Message = fmt.Sprintf("all %d uploads failed", len(files))
		return ur, st
	}
	st.Status = model.StatusCompleted
	st.Message = fmt.Sprintf("%d uploaded, %d skipped", len(ur.Uploaded), len(ur.Skipped))
	return ur, st
}

// localPath 文件页在工作目录里的落盘路径
func localPath(workDir, title string) string {
	return filepath.Join(workDir, model.WorkDirName(title)+".wiki")
}

// injectDescriptions 在 description 字段后补上缺失的语言模板，
// 语言码排序后注入，同样的输入两次跑出同样的文本
func injectDescriptions(text string, units map[string]string) (string, bool) {
	idx := strings.Index(text, "description=")
	if idx < 0 || len(units) == 0 {
		return text, false
	}

	langs := make([]string, 0, len(units))
	for lang := range units {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	var add strings.Builder
	for _, lang := range langs {
		if strings.Contains(text, "{{"+lang+"|") {
			continue
		}
		add.WriteString("{{" + lang + "|" + units[lang] + "}}")
	}
	if add.Len() == 0 {
		return text, false
	}

	insertAt := idx + len("description=")
	return text[:insertAt] + add.String() + text[insertAt:], true
}

func inGallery(text string) bool {
	return strings.Contains(text, "<gallery")
}

// galleryLines gallery 块里的裸文件行（去掉 caption 部分）
func galleryLines(text string) []string {
	var out []string
	inBlock := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "<gallery"):
			inBlock = true
		case trimmed == "</gallery>":
			inBlock = false
		case inBlock && trimmed != "":
			if i := strings.Index(trimmed, "|"); i >= 0 {
				trimmed = trimmed[:i]
			}
			out = append(out, trimmed)
		}
	}
	return out
}
