package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/wikitrans-hub/internal/model"
	"github.com/azhengyongqin/wikitrans-hub/internal/repository"
)

// fakeTaskRepo 只实现清理 Job 用到的三个方法，其余为空
type fakeTaskRepo struct {
	terminal []repository.Task
	existing map[string]bool
	deleted  []string
}

func (f *fakeTaskRepo) Create(ctx context.Context, t *repository.Task) error { return nil }

func (f *fakeTaskRepo) GetByID(ctx context.Context, id string) (*repository.Task, bool) {
	if !f.existing[id] {
		return nil, false
	}
	return &repository.Task{ID: id}, true
}

func (f *fakeTaskRepo) GetActiveByTitle(ctx context.Context, title string) (*repository.Task, error) {
	return nil, nil
}

func (f *fakeTaskRepo) List(ctx context.Context, status string, limit, offset int) ([]repository.Task, error) {
	return nil, nil
}

func (f *fakeTaskRepo) Update(ctx context.Context, id string, u repository.TaskUpdate) error {
	return nil
}

func (f *fakeTaskRepo) UpdateColumn(ctx context.Context, id, column string, value interface{}) error {
	return nil
}

func (f *fakeTaskRepo) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.existing, id)
	return nil
}

func (f *fakeTaskRepo) UpsertStage(ctx context.Context, taskID string, st repository.Stage) error {
	return nil
}

func (f *fakeTaskRepo) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]repository.Task, error) {
	return f.terminal, nil
}

func TestTaskCleanup(t *testing.T) {
	repo := &fakeTaskRepo{
		terminal: []repository.Task{
			{ID: "old-1", Title: "Old One", Status: model.StatusCompleted},
			{ID: "old-2", Title: "Old Two", Status: model.StatusFailed},
		},
		existing: map[string]bool{"old-1": true, "old-2": true},
	}
	proc := NewTaskCleanup(repo, 30*24*time.Hour, 100)

	assert.Equal(t, TypeTaskCleanup, proc.Type())

	records, err := proc.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "old-1", records[0].ID)
	assert.Equal(t, "Old One", records[0].Note)

	// 正常删除
	outcome, err := proc.Process(context.Background(), records[0])
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, []string{"old-1"}, repo.deleted)

	// 定格记录集之后被手工删掉的任务：跳过而不是报错
	repo.existing = map[string]bool{}
	outcome, err = proc.Process(context.Background(), records[1])
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Len(t, repo.deleted, 1)
}
