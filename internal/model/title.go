package model

import "strings"

// NormalizeTitle 标题归一化（trim + 小写），作为 single-flight 去重键。
// 同一归一化标题同一时刻最多存在一个非终态任务。
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// WorkDirName 从标题推导确定性的、文件系统安全的工作目录名。
// 相同标题总是得到相同目录，便于失败后人工排查产物。
func WorkDirName(title string) string {
	name := strings.TrimSpace(title)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		name = "_"
	}
	return name
}
