package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// pg SQLSTATE: 53300 too_many_connections
const sqlstateTooManyConnections = "53300"

// ErrTooManyConnections 连接数耗尽。任何「安全」变体都不得吞掉它，
// 必须让调用方感知并退避。
var ErrTooManyConnections = errors.New("postgres: too many connections")

// wrapPgErr 把底层 pg 错误映射到本包的哨兵错误
func wrapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlstateTooManyConnections {
		return fmt.Errorf("%w: %s", ErrTooManyConnections, pgErr.Message)
	}
	return err
}

// IsTooManyConnections 判断是否连接数耗尽
func IsTooManyConnections(err error) bool {
	return errors.Is(err, ErrTooManyConnections)
}
