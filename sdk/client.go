// Package sdk 提供 wikitrans-hub HTTP API 的最小 Go 客户端。
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client HTTP 客户端，用于与控制面通信
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient 创建客户端
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	Title    string          `json:"title"`
	Username string          `json:"username,omitempty"`
	Form     json.RawMessage `json:"form,omitempty"`
}

// CreateTaskResponse 创建任务响应
type CreateTaskResponse struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Task 任务快照（服务端折叠好的形态）
type Task struct {
	ID       string                     `json:"id"`
	Title    string                     `json:"title"`
	Status   string                     `json:"status"`
	MainFile string                     `json:"main_file,omitempty"`
	Results  map[string]int             `json:"results,omitempty"`
	Stages   map[string]json.RawMessage `json:"stages,omitempty"`
}

// CancelResponse 取消响应（任务和 Job 共用同一形态）
type CancelResponse struct {
	Status          string `json:"status"`
	AlreadyFinished bool   `json:"already_finished,omitempty"`
}

// Job Job 快照
type Job struct {
	ID         int64  `json:"id"`
	JobType    string `json:"job_type"`
	Status     string `json:"status"`
	ResultFile string `json:"result_file,omitempty"`
}

// CreateTask 提交任务并启动执行
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (*CreateTaskResponse, error) {
	var result CreateTaskResponse
	if err := c.post(ctx, "/api/v1/tasks", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTask 获取任务快照
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var result struct {
		Item Task `json:"item"`
	}
	if err := c.get(ctx, "/api/v1/tasks/"+url.PathEscape(taskID), &result); err != nil {
		return nil, err
	}
	return &result.Item, nil
}

// CancelTask 请求取消任务
func (c *Client) CancelTask(ctx context.Context, taskID string) (*CancelResponse, error) {
	var result CancelResponse
	if err := c.post(ctx, "/api/v1/tasks/"+url.PathEscape(taskID)+"/cancel", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateJob 提交批量 Job
func (c *Client) CreateJob(ctx context.Context, jobType string) (*Job, error) {
	req := map[string]string{"job_type": jobType}
	var result struct {
		JobID   int64  `json:"job_id"`
		JobType string `json:"job_type"`
		Status  string `json:"status"`
	}
	if err := c.post(ctx, "/api/v1/jobs", req, &result); err != nil {
		return nil, err
	}
	return &Job{ID: result.JobID, JobType: result.JobType, Status: result.Status}, nil
}

// GetJob 获取 Job 快照（job_type 必填：jobs 表是多 worker 共用的）
func (c *Client) GetJob(ctx context.Context, jobID int64, jobType string) (*Job, error) {
	var result struct {
		Item Job `json:"item"`
	}
	path := fmt.Sprintf("/api/v1/jobs/%d?job_type=%s", jobID, url.QueryEscape(jobType))
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result.Item, nil
}

func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) post(ctx context.Context, path string, payload, dest interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
