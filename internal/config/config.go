package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	HTTP       HTTPConfig
	Postgres   PostgresConfig
	DBPool     DBPoolConfig
	Pipeline   PipelineConfig
	Jobs       JobsConfig
	MediaWiki  MediaWikiConfig
	Monitoring MonitoringConfig
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr string
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN           string
	MigrationsDir string
}

// DBPoolConfig 数据库连接池配置
type DBPoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	WorkRoot   string // 每个任务的工作目录根
	TitleLimit int    // titles stage 的默认上限
}

// JobsConfig 批量 Job 配置
type JobsConfig struct {
	ReportDir       string // Job 结果报告文件目录
	CheckpointEvery int    // 每处理 N 条记录落一次中间报告
	CleanupAfter    time.Duration // task-cleanup Job 删除多久之前的终态任务
}

// MediaWikiConfig MediaWiki API 配置
type MediaWikiConfig struct {
	APIBase     string
	CallTimeout time.Duration // 单次外呼超时（没有整体 wall-clock 超时）
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Enabled bool
}

// Load 加载配置
func Load() (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")

	// 允许从环境变量读取（优先级最高）
	v.AutomaticEnv()

	// 读取配置文件（如果存在）
	_ = v.ReadInConfig() // 忽略错误，因为可能只使用环境变量

	cfg := &Config{}

	// HTTP 配置
	cfg.HTTP.Addr = v.GetString("HTTP_ADDR")
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":28080"
	}

	// PostgreSQL 配置
	cfg.Postgres.DSN = v.GetString("POSTGRES_DSN")
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	cfg.Postgres.MigrationsDir = v.GetString("MIGRATIONS_DIR")
	if cfg.Postgres.MigrationsDir == "" {
		cfg.Postgres.MigrationsDir = "migrations"
	}

	// 数据库连接池配置
	cfg.DBPool.MaxConns = v.GetInt("DB_MAX_CONNS")
	if cfg.DBPool.MaxConns == 0 {
		cfg.DBPool.MaxConns = 20
	}

	cfg.DBPool.MinConns = v.GetInt("DB_MIN_CONNS")
	if cfg.DBPool.MinConns == 0 {
		cfg.DBPool.MinConns = 5
	}

	cfg.DBPool.MaxConnLifetime = v.GetDuration("DB_MAX_CONN_LIFETIME")
	if cfg.DBPool.MaxConnLifetime == 0 {
		cfg.DBPool.MaxConnLifetime = 30 * time.Minute
	}

	cfg.DBPool.MaxConnIdleTime = v.GetDuration("DB_MAX_CONN_IDLE_TIME")
	if cfg.DBPool.MaxConnIdleTime == 0 {
		cfg.DBPool.MaxConnIdleTime = 5 * time.Minute
	}

	// 流水线配置
	cfg.Pipeline.WorkRoot = v.GetString("WORK_ROOT")
	if cfg.Pipeline.WorkRoot == "" {
		cfg.Pipeline.WorkRoot = "/tmp/wikitrans"
	}
	cfg.Pipeline.TitleLimit = v.GetInt("TITLE_LIMIT")
	if cfg.Pipeline.TitleLimit == 0 {
		cfg.Pipeline.TitleLimit = 50
	}

	// 批量 Job 配置
	cfg.Jobs.ReportDir = v.GetString("JOB_REPORT_DIR")
	if cfg.Jobs.ReportDir == "" {
		cfg.Jobs.ReportDir = "/tmp/wikitrans/reports"
	}
	cfg.Jobs.CheckpointEvery = v.GetInt("JOB_CHECKPOINT_EVERY")
	if cfg.Jobs.CheckpointEvery == 0 {
		cfg.Jobs.CheckpointEvery = 50
	}
	cfg.Jobs.CleanupAfter = v.GetDuration("JOB_CLEANUP_AFTER")
	if cfg.Jobs.CleanupAfter == 0 {
		cfg.Jobs.CleanupAfter = 30 * 24 * time.Hour
	}

	// MediaWiki 配置
	cfg.MediaWiki.APIBase = v.GetString("MEDIAWIKI_API")
	if cfg.MediaWiki.APIBase == "" {
		cfg.MediaWiki.APIBase = "https://commons.wikimedia.org/w/api.php"
	}
	cfg.MediaWiki.CallTimeout = v.GetDuration("MEDIAWIKI_TIMEOUT")
	if cfg.MediaWiki.CallTimeout == 0 {
		cfg.MediaWiki.CallTimeout = 30 * time.Second
	}

	// 监控配置
	cfg.Monitoring.Enabled = v.GetBool("MONITORING_ENABLED")

	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("PostgreSQL DSN is required")
	}
	if c.Jobs.CheckpointEvery < 1 {
		return fmt.Errorf("JOB_CHECKPOINT_EVERY must be >= 1")
	}
	return nil
}
