package cancel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndCancel(t *testing.T) {
	reg := NewRegistry()

	token, err := reg.Register("task-1")
	require.NoError(t, err)
	assert.False(t, token.Cancelled(), "新注册的信号不应置位")

	// 同 id 重复注册应被拒绝
	_, err = reg.Register("task-1")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// 置位后所有持有者都能观察到
	ok := reg.Cancel("task-1")
	assert.True(t, ok)
	assert.True(t, token.Cancelled())

	// Cancel 幂等
	assert.True(t, reg.Cancel("task-1"))
}

func TestRegistry_CancelUnknown(t *testing.T) {
	reg := NewRegistry()

	// 本地没有的 id 返回 false，调用方走 DB 兜底
	assert.False(t, reg.Cancel("unknown"))
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Register("task-1")
	require.NoError(t, err)

	reg.Unregister("task-1")
	_, ok := reg.Get("task-1")
	assert.False(t, ok, "注销后不应再能取到")

	// 注销后同 id 可以重新注册（restart 场景）
	_, err = reg.Register("task-1")
	assert.NoError(t, err)
}

func TestToken_Done(t *testing.T) {
	token := newToken()

	select {
	case <-token.Done():
		t.Fatal("未取消的信号不应就绪")
	default:
	}

	token.Cancel()
	select {
	case <-token.Done():
	default:
		t.Fatal("取消后 Done 应立即就绪")
	}
}

func TestChecker_Cancelled(t *testing.T) {
	reg := NewRegistry()

	t.Run("本地信号优先", func(t *testing.T) {
		token, err := reg.Register("task-1")
		require.NoError(t, err)
		defer reg.Unregister("task-1")

		fallbackCalled := false
		checker := NewChecker(reg, func(ctx context.Context, id string) bool {
			fallbackCalled = true
			return false
		})

		token.Cancel()
		assert.True(t, checker.Cancelled(context.Background(), "task-1"))
		assert.False(t, fallbackCalled, "本地命中时不应走 DB 兜底")
	})

	t.Run("本地未置位走兜底", func(t *testing.T) {
		checker := NewChecker(reg, func(ctx context.Context, id string) bool {
			return id == "task-2"
		})

		assert.True(t, checker.Cancelled(context.Background(), "task-2"))
		assert.False(t, checker.Cancelled(context.Background(), "task-3"))
	})

	t.Run("没有兜底时只看本地", func(t *testing.T) {
		checker := NewChecker(reg, nil)
		assert.False(t, checker.Cancelled(context.Background(), "task-4"))
	})
}
