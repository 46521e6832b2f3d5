package dto

import "encoding/json"

// CreateTaskRequest 创建任务请求。form 原样入库（round-trip），
// 其中 manual_main_title/title_limit/ignore_existing_task 会被执行侧解读。
type CreateTaskRequest struct {
	Title    string          `json:"title" binding:"required" example:"Category:Lighthouses in Denmark"`
	Username string          `json:"username" example:"translator-bot"`
	Form     json.RawMessage `json:"form"`
}

// CreateTaskResponse 创建任务响应
type CreateTaskResponse struct {
	TaskID string `json:"task_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Title  string `json:"title"`
	Status string `json:"status" example:"Pending"`
}

// ConflictResponse single-flight 冲突响应，携带已存在任务的快照
type ConflictResponse struct {
	Error    string      `json:"error" example:"同名任务仍在执行中"`
	Existing interface{} `json:"existing"`
}

// TaskListResponse 任务列表响应
type TaskListResponse struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}

// CancelTaskResponse 取消任务响应
type CancelTaskResponse struct {
	Status          string `json:"status" example:"cancelling"`
	AlreadyFinished bool   `json:"already_finished,omitempty"`
}

// RestartTaskResponse 重启任务响应：旧行不动，新建一行
type RestartTaskResponse struct {
	Status    string `json:"status" example:"restarted"`
	NewTaskID string `json:"new_task_id" example:"550e8400-e29b-41d4-a716-446655440000"`
}
