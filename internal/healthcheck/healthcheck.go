package healthcheck

import (
	"context"
	"time"

	"github.com/azhengyongqin/wikitrans-hub/internal/storage/postgres"
)

// HealthChecker 健康检查器
type HealthChecker struct {
	conn *postgres.Conn
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(conn *postgres.Conn) *HealthChecker {
	return &HealthChecker{conn: conn}
}

// CheckResult 健康检查结果
type CheckResult struct {
	Status  string            `json:"status"` // "ok" or "error"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// LivenessCheck 存活检查（快速返回，不检查依赖）
func (h *HealthChecker) LivenessCheck() CheckResult {
	return CheckResult{
		Status: "ok",
		Checks: map[string]string{
			"service": "running",
		},
	}
}

// ReadinessCheck 就绪检查（检查 PostgreSQL）
func (h *HealthChecker) ReadinessCheck(ctx context.Context) CheckResult {
	result := CheckResult{
		Checks: make(map[string]string),
	}

	if h.conn != nil {
		if err := h.checkPostgres(ctx); err != nil {
			result.Checks["postgres"] = "error: " + err.Error()
			result.Status = "error"
		} else {
			result.Checks["postgres"] = "ok"
		}
	}

	if result.Status == "" {
		result.Status = "ok"
	}

	return result
}

// checkPostgres 通过连接管理器做一次带超时的连通性检查
func (h *HealthChecker) checkPostgres(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var one int
	return h.conn.Fetch(ctx, &one, "SELECT 1")
}
