package repository

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/wikitrans-hub/internal/model"
)

func TestCreateSingleFlight(t *testing.T) {
	active := &Task{ID: "t-1", Title: "Demo File", Status: model.StatusRunning}

	t.Run("命中活动任务返回冲突快照", func(t *testing.T) {
		inserted := false
		err := createSingleFlight(&Task{Title: "demo file"},
			func() (*Task, error) { return active, nil },
			func() error { inserted = true; return nil })

		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "t-1", conflict.Existing.ID, "冲突必须携带已有任务的完整快照")
		assert.Equal(t, model.StatusRunning, conflict.Existing.Status)
		assert.False(t, inserted, "冲突时不插入")
	})

	t.Run("没有活动任务时插入", func(t *testing.T) {
		inserted := false
		err := createSingleFlight(&Task{Title: "Demo File"},
			func() (*Task, error) { return nil, nil },
			func() error { inserted = true; return nil })

		require.NoError(t, err)
		assert.True(t, inserted)
	})

	t.Run("ignore_existing_task 跳过查重", func(t *testing.T) {
		checked := false
		inserted := false
		task := &Task{Title: "Demo File", Form: json.RawMessage(`{"ignore_existing_task": true}`)}
		err := createSingleFlight(task,
			func() (*Task, error) { checked = true; return active, nil },
			func() error { inserted = true; return nil })

		require.NoError(t, err)
		assert.False(t, checked, "显式要求时不查重")
		assert.True(t, inserted)
	})

	t.Run("查重出错不插入", func(t *testing.T) {
		boom := errors.New("connection reset")
		inserted := false
		err := createSingleFlight(&Task{Title: "Demo File"},
			func() (*Task, error) { return nil, boom },
			func() error { inserted = true; return nil })

		assert.ErrorIs(t, err, boom)
		assert.False(t, inserted)
	})
}

// 重跑场景：原任务已是终态，同标题可以再次插入，且原任务行不被触碰
func TestCreateSingleFlight_RestartLeavesOriginal(t *testing.T) {
	store := map[string]*Task{
		"t-1": {ID: "t-1", Title: "Demo File", Status: model.StatusCompleted},
	}
	findActive := func() (*Task, error) {
		for _, existing := range store {
			if !existing.Status.Terminal() {
				return existing, nil
			}
		}
		return nil, nil
	}

	fresh := &Task{ID: "t-2", Title: "Demo File", Status: model.StatusPending}
	err := createSingleFlight(fresh, findActive, func() error {
		store[fresh.ID] = fresh
		return nil
	})

	require.NoError(t, err)
	assert.Len(t, store, 2, "重跑产生新行")
	assert.Equal(t, model.StatusCompleted, store["t-1"].Status, "原任务保持不变")
	assert.Equal(t, model.StatusPending, store["t-2"].Status)
}

// 状态写的 NOT IN 谓词直接用这个集合，必须与状态模型的终态判定一致
func TestTerminalStatusesMatchModel(t *testing.T) {
	assert.Len(t, terminalStatuses, 3)
	for _, s := range terminalStatuses {
		assert.True(t, model.TaskStatus(s).Terminal(), s)
	}
	assert.NotContains(t, terminalStatuses, string(model.StatusPending))
	assert.NotContains(t, terminalStatuses, string(model.StatusRunning))
}
