package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// MaxPayloadSize 最大 payload 大小（2MB）
	MaxPayloadSize = 2 * 1024 * 1024

	// MaxTitleLength 标题最大长度（MediaWiki 页面标题上限）
	MaxTitleLength = 255
)

var (
	// TaskIDRegex 任务 ID 正则（UUID 形态：字母数字连字符，1-64 字符）
	TaskIDRegex = regexp.MustCompile(`^[a-zA-Z0-9-]{1,64}$`)

	// JobTypeRegex Job 类型正则（字母数字下划线连字符，1-64 字符）
	JobTypeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

	// JobIDRegex Job ID 正则（十进制整数）
	JobIDRegex = regexp.MustCompile(`^[0-9]{1,18}$`)
)

// PayloadSizeLimit Payload 大小限制中间件
func PayloadSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "请求体过大，最大允许 2MB",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ValidateTaskID 验证任务 ID
func ValidateTaskID(taskID string) bool {
	return TaskIDRegex.MatchString(taskID)
}

// ValidateJobType 验证 Job 类型
func ValidateJobType(jobType string) bool {
	return JobTypeRegex.MatchString(jobType)
}

// ValidateTitle 验证提交的页面标题
func ValidateTitle(title string) bool {
	title = strings.TrimSpace(title)
	return title != "" && len(title) <= MaxTitleLength
}

// SanitizeString 清理字符串（去除前后空格与控制字符）
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)

	var builder strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// ValidateTaskIDParam Gin 中间件：验证路径参数中的 task_id
func ValidateTaskIDParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("task_id")
		if taskID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "task_id 参数缺失",
			})
			c.Abort()
			return
		}

		if !ValidateTaskID(taskID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "task_id 格式无效，必须是1-64个字母、数字或连字符",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ValidateJobIDParam Gin 中间件：验证路径参数中的 job_id
func ValidateJobIDParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("job_id")
		if !JobIDRegex.MatchString(jobID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "job_id 格式无效，必须是十进制整数",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CORSMiddleware CORS 中间件（内部系统可选）
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
