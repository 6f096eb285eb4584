package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"casino-server/common/logger"
)

// Customers 对应 customers 表
// status: 1=正常 2=冻结
type Customers struct {
	CustomerID     int64   `db:"customer_id"` // 内部ID(自增主键)
	PlatformID     int8    `db:"platform_id"`
	PlatformUserID string  `db:"platform_user_id"` // 平台用户ID（与 platform_id 组成唯一键）
	Username       string  `db:"username"`
	Balance        float64 `db:"balance"`
	Currency       string  `db:"currency"`
	Status         int8    `db:"status"`
	CreatedAt      int64   `db:"created_at"`
	UpdatedAt      int64   `db:"updated_at"`
}

// Insert 创建用户
func (c *Customers) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	if c.Currency == "" {
		c.Currency = "INR"
	}
	sqlStr := `INSERT INTO customers (platform_id, platform_user_id, username, balance, currency, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := exec.ExecContext(ctx, sqlStr,
		c.PlatformID, c.PlatformUserID, c.Username, c.Balance, c.Currency, c.Status, now, now)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	c.CustomerID = id
	return nil
}

// GetCustomer 按内部ID查询
func GetCustomer(ctx context.Context, exec sqlx.ExtContext, customerID int64) (*Customers, error) {
	sqlStr := `SELECT customer_id, platform_id, platform_user_id, username, balance, currency, status, created_at, updated_at
		FROM customers WHERE customer_id = ? LIMIT 1`
	var c Customers
	if err := sqlx.GetContext(ctx, exec, &c, sqlStr, customerID); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCustomerByPlatformUser 按平台维度查询
func GetCustomerByPlatformUser(ctx context.Context, exec sqlx.ExtContext, platformID int8, platformUserID string) (*Customers, error) {
	sqlStr := `SELECT customer_id, platform_id, platform_user_id, username, balance, currency, status, created_at, updated_at
		FROM customers WHERE platform_id = ? AND platform_user_id = ? LIMIT 1`
	var c Customers
	if err := sqlx.GetContext(ctx, exec, &c, sqlStr, platformID, platformUserID); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCustomerByPlatformUserForUpdate 事务内加锁查询（下注扣款前必须走这里）
func GetCustomerByPlatformUserForUpdate(ctx context.Context, exec sqlx.ExtContext, platformID int8, platformUserID string) (*Customers, error) {
	sqlStr := `SELECT customer_id, platform_id, platform_user_id, username, balance, currency, status, created_at, updated_at
		FROM customers WHERE platform_id = ? AND platform_user_id = ? LIMIT 1 FOR UPDATE`
	var c Customers
	if err := sqlx.GetContext(ctx, exec, &c, sqlStr, platformID, platformUserID); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetBalanceForUpdate 事务内加锁读余额（扣款/入账前必须走这里）
func GetBalanceForUpdate(ctx context.Context, exec sqlx.ExtContext, customerID int64) (float64, error) {
	sqlStr := "SELECT balance FROM customers WHERE customer_id = ? FOR UPDATE"
	var balance float64
	if err := sqlx.GetContext(ctx, exec, &balance, sqlStr, customerID); err != nil {
		return 0, err
	}
	return balance, nil
}

// UpdateBalance 更新余额（调用方已持有行锁）
func UpdateBalance(ctx context.Context, exec sqlx.ExtContext, customerID int64, newBalance float64) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE customers SET balance = ?, updated_at = ? WHERE customer_id = ?"
	if _, err := exec.ExecContext(ctx, sqlStr, newBalance, now, customerID); err != nil {
		logger.Error("update customer balance failed",
			zap.Int64("customer_id", customerID),
			zap.Float64("new_balance", newBalance),
			zap.Error(err))
		return err
	}
	return nil
}

// GetOrCreateCustomer 获取或创建用户（首次下注自动注册）
func GetOrCreateCustomer(ctx context.Context, db *sqlx.DB, platformID int8, platformUserID, username string) (*Customers, error) {
	c, err := GetCustomerByPlatformUser(ctx, db, platformID, platformUserID)
	if err == nil {
		return c, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		nc := &Customers{
			PlatformID:     platformID,
			PlatformUserID: platformUserID,
			Username:       username,
			Balance:        0.00,
			Status:         1,
		}
		if err := nc.Insert(ctx, db); err != nil {
			// 并发创建撞唯一键：重查即可
			if isMySQLDuplicateKeyError(err) {
				logger.Info("concurrent customer creation detected, retry query",
					zap.Int8("platform_id", platformID),
					zap.String("platform_user_id", platformUserID))
				return GetCustomerByPlatformUser(ctx, db, platformID, platformUserID)
			}
			return nil, err
		}
		return nc, nil
	}
	return nil, err
}

// isMySQLDuplicateKeyError 判断是否为 MySQL 唯一键冲突（错误码 1062）
func isMySQLDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
