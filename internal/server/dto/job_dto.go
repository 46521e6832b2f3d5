package dto

// CreateJobRequest 创建批量 Job 请求
type CreateJobRequest struct {
	JobType string `json:"job_type" binding:"required" example:"task-cleanup"`
}

// CreateJobResponse 创建批量 Job 响应
type CreateJobResponse struct {
	JobID   int64  `json:"job_id" example:"42"`
	JobType string `json:"job_type" example:"task-cleanup"`
	Status  string `json:"status" example:"pending"`
}

// JobListResponse Job 列表响应
type JobListResponse struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}

// CancelJobResponse 取消 Job 响应
type CancelJobResponse struct {
	Status          string `json:"status" example:"cancelling"`
	AlreadyFinished bool   `json:"already_finished,omitempty"`
}
