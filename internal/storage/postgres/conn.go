package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/azhengyongqin/wikitrans-hub/internal/logger"
)

// ErrConnClosed 连接已被 Close，不会自动重开
var ErrConnClosed = errors.New("postgres: connection closed")

// Conn 是单个 store 实例持有的数据库连接：惰性建立、ping 失败自动重连。
// 互斥锁同时保护连接本身与调用方需要串行化的 check-then-insert 序列（见 Locked）。
// 每个并发的 Runner/Worker 应持有自己的 Conn，避免都挤在同一把锁上。
type Conn struct {
	mu     sync.Mutex
	dsn    string
	cfg    DBConfig
	db     *gorm.DB
	closed bool
}

// DBConfig 数据库连接配置
type DBConfig struct {
	MaxOpenConns    int           // 最大打开连接数，默认 20
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 30分钟
	ConnMaxIdleTime time.Duration // 连接最大空闲时间，默认 5分钟
}

// DefaultDBConfig 返回默认数据库配置
func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// NewConn 创建连接管理器。只校验 DSN，真正的连接在首次使用时建立。
func NewConn(dsn string, cfg DBConfig) (*Conn, error) {
	if err := validatePostgresURI(dsn); err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_DSN: %w", err)
	}
	return &Conn{dsn: dsn, cfg: cfg}, nil
}

// open 建立新的 GORM 连接并配置连接池。调用方须已持锁。
func (c *Conn) open() error {
	db, err := gorm.Open(postgres.Open(c.dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", wrapPgErr(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(c.cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(c.cfg.ConnMaxIdleTime)

	// 连通性检查
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", wrapPgErr(err))
	}

	c.db = db
	return nil
}

// ensure 确保连接可用：未连接则连接；已连接则 ping，失败时重连。调用方须已持锁。
func (c *Conn) ensure() (*gorm.DB, error) {
	if c.closed {
		return nil, ErrConnClosed
	}
	if c.db == nil {
		if err := c.open(); err != nil {
			return nil, err
		}
		return c.db, nil
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		c.db = nil
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		logger.Warn().Err(err).Msg("数据库 ping 失败，尝试重连")
		c.db = nil
		if err := c.open(); err != nil {
			return nil, err
		}
	}
	return c.db, nil
}

// DB 返回可用的 GORM 连接（必要时重连）
func (c *Conn) DB() (*gorm.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensure()
}

// Locked 在连接互斥锁内执行 fn，用于必须整段串行化的序列
// （如 single-flight 的「查重 + 插入」）。
func (c *Conn) Locked(fn func(db *gorm.DB) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, err := c.ensure()
	if err != nil {
		return err
	}
	return fn(db)
}

// Exec 执行写语句，返回受影响行数
func (c *Conn) Exec(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	db, err := c.DB()
	if err != nil {
		return 0, err
	}
	tx := db.WithContext(ctx).Exec(sql, args...)
	if tx.Error != nil {
		return 0, wrapPgErr(tx.Error)
	}
	return tx.RowsAffected, nil
}

// Fetch 执行查询，结果写入 dest
func (c *Conn) Fetch(ctx context.Context, dest interface{}, sql string, args ...interface{}) error {
	db, err := c.DB()
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Raw(sql, args...).Scan(dest).Error; err != nil {
		return wrapPgErr(err)
	}
	return nil
}

// SafeExec 是 Exec 的「安全」变体：失败时记日志并返回 0，不向上抛。
// 用于幂等的维护性写入（建表、尽力而为的更新）——整体失败比静默跳过更糟。
// 唯一例外是连接数耗尽：它意味着容量问题，必须向上传播让调用方退避。
func (c *Conn) SafeExec(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	n, err := c.Exec(ctx, sql, args...)
	if err != nil {
		return 0, safeErr(err, "SafeExec", sql)
	}
	return n, nil
}

// SafeFetch 是 Fetch 的「安全」变体，语义同 SafeExec（失败时 dest 保持零值）
func (c *Conn) SafeFetch(ctx context.Context, dest interface{}, sql string, args ...interface{}) error {
	return safeErr(c.Fetch(ctx, dest, sql, args...), "SafeFetch", sql)
}

// safeErr 「安全」变体对错误的处置：连接数耗尽必须透传，其余记日志后抑制
func safeErr(err error, op, sql string) error {
	if err == nil {
		return nil
	}
	if IsTooManyConnections(err) {
		return err
	}
	logger.Error().Err(err).Str("sql", sql).Msg(op + " 失败，已忽略")
	return nil
}

// Close 关闭连接。幂等，可重复调用。
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	c.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
