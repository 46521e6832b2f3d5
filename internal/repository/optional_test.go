package repository

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/wikitrans-hub/internal/model"
)

func TestTaskUpdate_Empty(t *testing.T) {
	assert.True(t, TaskUpdate{}.Empty(), "零值补丁应为空")
	assert.False(t, TaskUpdate{Status: Set(model.StatusRunning)}.Empty())

	// Set 空串也算「已设置」——Optional 区分未提供和设为空
	assert.False(t, TaskUpdate{MainFile: Set("")}.Empty())
}

func TestTaskUpdate_Columns(t *testing.T) {
	t.Run("未 Set 的字段不出现", func(t *testing.T) {
		cols, err := TaskUpdate{Status: Set(model.StatusCompleted)}.Columns()
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"status": "Completed"}, cols)
	})

	t.Run("title 同步更新归一化列", func(t *testing.T) {
		cols, err := TaskUpdate{Title: Set("  Demo File ")}.Columns()
		require.NoError(t, err)
		assert.Equal(t, "  Demo File ", cols["title"])
		assert.Equal(t, "demo file", cols["normalized_title"])
	})

	t.Run("非法状态拒绝", func(t *testing.T) {
		_, err := TaskUpdate{Status: Set(model.TaskStatus("bogus"))}.Columns()
		assert.Error(t, err)
	})

	t.Run("results 序列化", func(t *testing.T) {
		cols, err := TaskUpdate{Results: Set(&Results{FilesCount: 3, NewTranslationsCount: 1})}.Columns()
		require.NoError(t, err)

		var r Results
		require.NoError(t, json.Unmarshal(cols["results_json"].([]byte), &r))
		assert.Equal(t, 3, r.FilesCount)
		assert.Equal(t, 1, r.NewTranslationsCount)
	})

	t.Run("results 置 nil 即清空列", func(t *testing.T) {
		cols, err := TaskUpdate{Results: Set[*Results](nil)}.Columns()
		require.NoError(t, err)
		assert.Empty(t, cols["results_json"])
	})
}

func TestTask_FormView(t *testing.T) {
	t.Run("form 原样保存并可解出类型化视图", func(t *testing.T) {
		raw := json.RawMessage(`{"language":"de","title_limit":10,"ignore_existing_task":true,"a":1}`)
		task := &Task{Form: raw}

		v := task.FormView()
		assert.Equal(t, "de", v.Language)
		assert.Equal(t, 10, v.TitleLimit)
		assert.True(t, v.IgnoreExistingTask)

		// 未知键 round-trip：原始 payload 不因解析受损
		assert.JSONEq(t, `{"language":"de","title_limit":10,"ignore_existing_task":true,"a":1}`, string(task.Form))
	})

	t.Run("空 form 返回零值", func(t *testing.T) {
		task := &Task{}
		assert.Equal(t, FormView{}, task.FormView())
	})

	t.Run("不可解析的 form 返回零值", func(t *testing.T) {
		task := &Task{Form: json.RawMessage(`not json`)}
		assert.Equal(t, FormView{}, task.FormView())
	})
}

func TestConflictError(t *testing.T) {
	existing := &Task{ID: "t-1", Title: "Demo File", Status: model.StatusRunning}
	err := &ConflictError{Existing: existing}

	assert.Contains(t, err.Error(), "Demo File")
	assert.Contains(t, err.Error(), "t-1")
	assert.Same(t, existing, err.Existing, "冲突错误应携带已存在任务的快照")
}
