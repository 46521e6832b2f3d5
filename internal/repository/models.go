package repository

import (
	"encoding/json"
	"time"

	"github.com/azhengyongqin/wikitrans-hub/internal/model"
)

// TaskModel GORM 模型 - 对应 tasks 表
type TaskModel struct {
	ID              string           `gorm:"primaryKey;column:id;type:text"`
	Username        *string          `gorm:"column:username;type:text"`
	Title           string           `gorm:"column:title;type:text;not null"`
	NormalizedTitle string           `gorm:"column:normalized_title;type:text;not null;index:idx_tasks_normalized_status"`
	MainFile        *string          `gorm:"column:main_file;type:text"`
	Status          string           `gorm:"column:status;type:text;not null;index:idx_tasks_normalized_status"`
	FormJSON        json.RawMessage  `gorm:"column:form_json;type:jsonb"`
	DataJSON        json.RawMessage  `gorm:"column:data_json;type:jsonb"`
	ResultsJSON     json.RawMessage  `gorm:"column:results_json;type:jsonb"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	Stages          []TaskStageModel `gorm:"foreignKey:TaskID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName 指定表名
func (TaskModel) TableName() string { return "tasks" }

// ToTask 转换为 Task 实体（含 stage 折叠）
func (m *TaskModel) ToTask() *Task {
	t := &Task{
		ID:              m.ID,
		Title:           m.Title,
		NormalizedTitle: m.NormalizedTitle,
		Status:          model.TaskStatus(m.Status),
		Form:            m.FormJSON,
		Data:            m.DataJSON,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.Username != nil {
		t.Username = *m.Username
	}
	if m.MainFile != nil {
		t.MainFile = *m.MainFile
	}
	if len(m.ResultsJSON) > 0 {
		var r Results
		if err := json.Unmarshal(m.ResultsJSON, &r); err == nil {
			t.Results = &r
		}
	}
	if len(m.Stages) > 0 {
		t.Stages = make(map[string]Stage, len(m.Stages))
		for i := range m.Stages {
			st := m.Stages[i].ToStage()
			t.Stages[st.Name] = st
		}
	}
	return t
}

// TaskToModel 从 Task 实体创建模型
func TaskToModel(t *Task) TaskModel {
	m := TaskModel{
		ID:              t.ID,
		Title:           t.Title,
		NormalizedTitle: t.NormalizedTitle,
		Status:          string(t.Status),
		FormJSON:        t.Form,
		DataJSON:        t.Data,
	}
	if t.Username != "" {
		m.Username = &t.Username
	}
	if t.MainFile != "" {
		m.MainFile = &t.MainFile
	}
	if t.Results != nil {
		m.ResultsJSON, _ = json.Marshal(t.Results)
	}
	return m
}

// TaskStageModel GORM 模型 - 对应 task_stages 表，唯一键 (task_id, stage_name)
type TaskStageModel struct {
	StageID      int64     `gorm:"primaryKey;autoIncrement;column:stage_id"`
	TaskID       string    `gorm:"column:task_id;type:text;not null;uniqueIndex:uniq_task_stage"`
	StageName    string    `gorm:"column:stage_name;type:text;not null;uniqueIndex:uniq_task_stage"`
	StageNumber  int       `gorm:"column:stage_number;not null"`
	StageStatus  string    `gorm:"column:stage_status;type:text;not null"`
	StageSubName *string   `gorm:"column:stage_sub_name;type:text"`
	StageMessage *string   `gorm:"column:stage_message;type:text"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名
func (TaskStageModel) TableName() string { return "task_stages" }

// ToStage 转换为 Stage 实体
func (m *TaskStageModel) ToStage() Stage {
	s := Stage{
		Name:      m.StageName,
		Number:    m.StageNumber,
		Status:    model.TaskStatus(m.StageStatus),
		UpdatedAt: m.UpdatedAt,
	}
	if m.StageSubName != nil {
		s.SubName = *m.StageSubName
	}
	if m.StageMessage != nil {
		s.Message = *m.StageMessage
	}
	return s
}

// StageToModel 从 Stage 实体创建模型
func StageToModel(taskID string, s Stage) TaskStageModel {
	m := TaskStageModel{
		TaskID:      taskID,
		StageName:   s.Name,
		StageNumber: s.Number,
		StageStatus: string(s.Status),
	}
	if m.StageNumber == 0 {
		m.StageNumber = model.StageNumber(s.Name)
	}
	if s.SubName != "" {
		m.StageSubName = &s.SubName
	}
	if s.Message != "" {
		m.StageMessage = &s.Message
	}
	return m
}

// JobModel GORM 模型 - 对应 jobs 表（多种 worker 共用，job_type 判别）
type JobModel struct {
	ID          int64      `gorm:"primaryKey;autoIncrement;column:id"`
	JobType     string     `gorm:"column:job_type;type:text;not null;index:idx_jobs_type_status"`
	Status      string     `gorm:"column:status;type:text;not null;index:idx_jobs_type_status"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	ResultFile  *string    `gorm:"column:result_file;type:text"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名
func (JobModel) TableName() string { return "jobs" }

// ToJob 转换为 Job 实体
func (m *JobModel) ToJob() *Job {
	j := &Job{
		ID:          m.ID,
		JobType:     m.JobType,
		Status:      model.JobStatus(m.Status),
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ResultFile != nil {
		j.ResultFile = *m.ResultFile
	}
	return j
}
