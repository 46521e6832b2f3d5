package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTaskID(t *testing.T) {
	assert.True(t, ValidateTaskID("550e8400-e29b-41d4-a716-446655440000"))
	assert.True(t, ValidateTaskID("abc123"))

	assert.False(t, ValidateTaskID(""))
	assert.False(t, ValidateTaskID("has space"))
	assert.False(t, ValidateTaskID("under_score"), "任务 ID 只允许字母数字连字符")
}

func TestValidateJobType(t *testing.T) {
	assert.True(t, ValidateJobType("task-cleanup"))
	assert.True(t, ValidateJobType("rebuild_index"))

	assert.False(t, ValidateJobType(""))
	assert.False(t, ValidateJobType("bad type"))
}

func TestValidateTitle(t *testing.T) {
	assert.True(t, ValidateTitle("Category:Lighthouses in Denmark"))
	assert.True(t, ValidateTitle("  Demo File  "), "前后空格在校验前被修剪")

	assert.False(t, ValidateTitle(""))
	assert.False(t, ValidateTitle("   "))

	long := make([]byte, MaxTitleLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.False(t, ValidateTitle(string(long)), "超长标题应被拒绝")
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  "))
	assert.Equal(t, "helloworld", SanitizeString("hello\x00\x1fworld"))
	assert.Equal(t, "中文标题", SanitizeString(" 中文标题 "), "非 ASCII 字符保留")
}
