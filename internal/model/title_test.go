package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "demo file", NormalizeTitle("  Demo File  "))
	assert.Equal(t, "demo file", NormalizeTitle("DEMO FILE"))
	assert.Equal(t, "", NormalizeTitle("   "))

	// 同一归一化键是 single-flight 的去重依据
	assert.Equal(t, NormalizeTitle("Demo File"), NormalizeTitle("demo file"))
}

func TestWorkDirName(t *testing.T) {
	t.Run("安全字符原样保留", func(t *testing.T) {
		assert.Equal(t, "Demo-File_1.0", WorkDirName("Demo-File_1.0"))
	})

	t.Run("不安全字符替换为下划线", func(t *testing.T) {
		assert.Equal(t, "Demo_File", WorkDirName("Demo File"))
		assert.Equal(t, "a_b_c", WorkDirName("a/b:c"))
	})

	t.Run("确定性", func(t *testing.T) {
		assert.Equal(t, WorkDirName("Demo File"), WorkDirName("Demo File"))
	})

	t.Run("空标题", func(t *testing.T) {
		assert.Equal(t, "_", WorkDirName(""))
		assert.Equal(t, "_", WorkDirName("   "))
	})
}
