package healthcheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLivenessCheck(t *testing.T) {
	h := NewHealthChecker(nil)

	result := h.LivenessCheck()
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "running", result.Checks["service"])
}

func TestReadinessCheck_NoDeps(t *testing.T) {
	// 没有配置依赖时就绪检查直接通过
	h := NewHealthChecker(nil)

	result := h.ReadinessCheck(context.Background())
	assert.Equal(t, "ok", result.Status)
	assert.Empty(t, result.Checks)
}
