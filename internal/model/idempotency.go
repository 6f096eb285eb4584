package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// IdempotencyKey 对应 idempotency_keys 表
// 仅用于幂等插入（唯一键: idempotency_key）
// purpose 区分用途：bet=下注受理 credit=结算入账 refund=作废退款
type IdempotencyKey struct {
	ID             int64  `db:"id"`
	IdempotencyKey string `db:"idempotency_key"`
	Purpose        string `db:"purpose"`
	Ref            string `db:"ref"` // 关联业务键，如 bill_no
	CreatedAt      int64  `db:"created_at"`
}

// Insert 插入一条幂等键记录，唯一键冲突原样返回错误
func (k *IdempotencyKey) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	sqlStr := "INSERT INTO idempotency_keys (idempotency_key, purpose, ref, created_at) VALUES (?, ?, ?, ?)"
	_, err := exec.ExecContext(ctx, sqlStr, k.IdempotencyKey, k.Purpose, k.Ref, now)
	return err
}

// TryInsertIdemKey 幂等插入：首次写入返回 true，键已存在返回 false
func TryInsertIdemKey(ctx context.Context, exec sqlx.ExtContext, key, purpose, ref string) (bool, error) {
	err := (&IdempotencyKey{IdempotencyKey: key, Purpose: purpose, Ref: ref}).Insert(ctx, exec)
	if err != nil {
		if isMySQLDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SelectRefByIdemKey 按幂等键查询 ref（例如 bill_no）
func SelectRefByIdemKey(ctx context.Context, exec sqlx.ExtContext, key string) (string, error) {
	sqlStr := "SELECT ref FROM idempotency_keys WHERE idempotency_key = ? LIMIT 1"
	var ref string
	if err := sqlx.GetContext(ctx, exec, &ref, sqlStr, key); err != nil {
		return "", err
	}
	return ref, nil
}
