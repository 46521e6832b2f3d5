package mediawiki

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/pipeline"
)

func runningState() model.StageState {
	return model.StageState{Status: model.StatusRunning}
}

func TestTitles_FileLinks(t *testing.T) {
	c := NewClient("https://example.org/w/api.php", time.Second)

	text := `Intro text.
[[File:Alpha.jpg|thumb|first]]
[[Image:Beta.png]]
[[File:Alpha.jpg]] duplicate`

	ts, st := c.Titles(context.Background(), runningState(), text, "", 50)
	assert.Equal(t, model.StatusCompleted, st.Status)
	assert.Equal(t, []string{"File:Alpha.jpg", "File:Beta.png"}, ts.Titles, "重复文件应去重")
	assert.Equal(t, "File:Alpha.jpg", ts.MainTitle, "默认第一个文件为主文件")
}

func TestTitles_Gallery(t *testing.T) {
	c := NewClient("https://example.org/w/api.php", time.Second)

	text := `<gallery>
File:One.jpg|caption one
Two.jpg
</gallery>`

	ts, _ := c.Titles(context.Background(), runningState(), text, "", 50)
	assert.Equal(t, []string{"File:One.jpg", "File:Two.jpg"}, ts.Titles,
		"gallery 裸文件行补全 File: 前缀并去掉 caption")
}

func TestTitles_ManualMainAndLimit(t *testing.T) {
	c := NewClient("https://example.org/w/api.php", time.Second)

	text := `[[File:A.jpg]] [[File:B.jpg]] [[File:C.jpg]]`
	ts, _ := c.Titles(context.Background(), runningState(), text, "File:Chosen.jpg", 2)

	assert.Len(t, ts.Titles, 2, "limit 截断")
	assert.Equal(t, "File:Chosen.jpg", ts.MainTitle, "人工指定的主文件优先")
}

func TestTranslations_ExtractsLangTemplates(t *testing.T) {
	c := NewClient("https://example.org/w/api.php", time.Second)
	dir := t.TempDir()

	text := `{{Information|description={{en|A lighthouse}}{{de|Ein Leuchtturm}}}}`
	tr, st := c.Translations(context.Background(), runningState(), dir, text, pipeline.TitleSet{})

	require.Equal(t, model.StatusCompleted, st.Status)
	assert.Equal(t, 1, tr.NewCount())
	assert.Equal(t, "A lighthouse", tr.New["description"]["en"])
	assert.Equal(t, "Ein Leuchtturm", tr.New["description"]["de"])
}

func TestInjectDescriptions(t *testing.T) {
	units := map[string]string{"de": "Ein Leuchtturm"}

	t.Run("缺失语言注入", func(t *testing.T) {
		text := `{{Information|description={{en|A lighthouse}}|date=2020}}`
		out, changed := injectDescriptions(text, units)
		assert.True(t, changed)
		assert.Contains(t, out, "{{de|Ein Leuchtturm}}")
		assert.Contains(t, out, "{{en|A lighthouse}}", "已有内容保持不动")
	})

	t.Run("已存在的语言不重复注入", func(t *testing.T) {
		text := `{{Information|description={{de|Alt}}}}`
		_, changed := injectDescriptions(text, units)
		assert.False(t, changed)
	})

	t.Run("没有 description 字段不改写", func(t *testing.T) {
		_, changed := injectDescriptions("plain text", units)
		assert.False(t, changed)
	})

	t.Run("多语言按语言码排序注入", func(t *testing.T) {
		multi := map[string]string{"fr": "Un phare", "de": "Ein Leuchtturm", "es": "Un faro"}
		text := `{{Information|description={{en|A lighthouse}}}}`

		out, changed := injectDescriptions(text, multi)
		require.True(t, changed)
		assert.Contains(t, out,
			"description={{de|Ein Leuchtturm}}{{es|Un faro}}{{fr|Un phare}}{{en|A lighthouse}}")

		// 同样的输入重复注入，输出必须逐字节一致
		again, _ := injectDescriptions(text, multi)
		assert.Equal(t, out, again)
	})
}

func TestLocalPath(t *testing.T) {
	// 标题里的不安全字符不落进文件名
	p := localPath("/tmp/wd", "File:Demo File.jpg")
	assert.Equal(t, "/tmp/wd/File_Demo_File.jpg.wiki", p)
}
