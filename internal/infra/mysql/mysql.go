package mysql

import (
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"casino-server/common/logger"
)

var (
	mu sync.RWMutex
	db *sqlx.DB
)

// Init 建立主库连接并配置连接池
func Init(dsn string, maxIdleConn, maxOpenConn int) *sqlx.DB {
	d, err := sqlx.Connect("mysql", dsn+"&parseTime=true&loc=Local")
	if err != nil {
		logger.Fatalf("mysql connect failed", zap.Error(err))
	}

	d.SetMaxOpenConns(maxOpenConn)
	d.SetMaxIdleConns(maxIdleConn)
	d.SetConnMaxLifetime(2 * time.Minute)
	d.SetConnMaxIdleTime(1 * time.Minute)

	// 会话级超时，降低锁等待时长
	if _, err := d.Exec("SET SESSION innodb_lock_wait_timeout = ?", 5); err != nil {
		logger.Warn("SET innodb_lock_wait_timeout failed", zap.Error(err))
	}

	if err := d.Ping(); err != nil {
		logger.Fatalf("mysql ping failed", zap.Error(err))
	}

	Use(d)
	return d
}

// Use 注入外部初始化好的句柄（测试用）
func Use(d *sqlx.DB) {
	if d == nil {
		return
	}
	mu.Lock()
	db = d
	mu.Unlock()
}

// DB 返回全局 *sqlx.DB 句柄
func DB() *sqlx.DB {
	mu.RLock()
	defer mu.RUnlock()
	return db
}
