package model

// 流水线固定的 8 个 stage，编号 1..8，顺序不可变。
// stage 行按该顺序持久化，且不会跳号。
const (
	StageInitialize   = "initialize"
	StageText         = "text"
	StageTitles       = "titles"
	StageTranslations = "translations"
	StageDownload     = "download"
	StageNestedCheck  = "nested_check"
	StageInject       = "inject"
	StageUpload       = "upload"
)

// StageOrder 固定顺序（下标 +1 即 stage_number）
var StageOrder = []string{
	StageInitialize,
	StageText,
	StageTitles,
	StageTranslations,
	StageDownload,
	StageNestedCheck,
	StageInject,
	StageUpload,
}

var stageNumbers = func() map[string]int {
	m := make(map[string]int, len(StageOrder))
	for i, name := range StageOrder {
		m[name] = i + 1
	}
	return m
}()

// StageNumber 返回 stage 的固定编号（1..8），未知名称返回 0
func StageNumber(name string) int {
	return stageNumbers[name]
}

// StageState 单个 stage 在一次执行中的状态记录。
// Runner 只认 Status/Message，SubName 由 stage 函数自行填写（如当前处理的文件名）。
type StageState struct {
	Status  TaskStatus `json:"status"`
	SubName string     `json:"sub_name,omitempty"`
	Message string     `json:"message,omitempty"`
}
