package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	decimal "github.com/shopspring/decimal"

	"casino-server/internal/config"
	infmysql "casino-server/internal/infra/mysql"
	infrds "casino-server/internal/infra/redis"
	"casino-server/internal/metrics"
	"casino-server/internal/model"
	"casino-server/internal/settle"
	"casino-server/internal/state"
)

// 处理投注业务逻辑
const (
	BIZ_TYPE_BET = 1
)

// BetInput 输入参数
type BetInput struct {
	RoundID          string
	PlatformID       int8
	PlatformUserID   string
	PlatformUserName string
	Stake            string // 金额字符串，服务层解析
	Selection        string // 玩法选择，如 andar / straight:17 / small / ante
	IdempotencyKey   string
	TraceID          string
}

type BetOutput struct {
	BillNo       string `json:"bill_no"`
	Odds         string `json:"odds"` // 受理时刻的赔率快照
	RemainAmount string `json:"remain_amount"`
	BetCloseAt   int64  `json:"bet_close_at"`
}

type BetService interface {
	PlaceBet(ctx context.Context, in BetInput) (*BetOutput, error)
}

type betService struct{}

func NewBetService() BetService { return &betService{} }

const (
	// Redis 进行中锁 TTL：小于最短投注窗口，避免长时间阻塞重复请求
	idemLockTTL = 45 * time.Second
	// 结果缓存 TTL：重复请求直接返回第一次成功结果
	idemResultTTL = 1 * time.Minute
)

// 默认事务超时时间，防止长事务占用资源影响并发（若上游已有 deadline 则沿用）
const defaultTxTimeout = 3 * time.Second

var (
	ErrDuplicateInFlight    = errors.New("duplicate request in flight")
	ErrRoundNotBetting      = errors.New("bet not allowed in current round state")
	ErrBetWindowNotStart    = errors.New("bet window not started")
	ErrLateBet              = errors.New("bet window closed")
	ErrInvalidSelection     = errors.New("invalid selection for game")
	ErrConflictingSelection = errors.New("conflicting selection in the same round")
	ErrInsufficientBalance  = errors.New("insufficient balance")
)

// 互斥玩法对：同一局内同一用户不可对冲下注
var opposingSelections = map[string]map[string]string{
	settle.GameAndarBahar: {"andar": "bahar", "bahar": "andar"},
	settle.GameRoulette:   {"red": "black", "black": "red", "odd": "even", "even": "odd", "low": "high", "high": "low"},
	settle.GameSicbo:      {"small": "big", "big": "small", "odd": "even", "even": "odd"},
}

// PlaceBet 下注主流程。
// 幂等三层：Redis 结果缓存快路径、SETNX 进行中锁、DB 幂等键唯一索引。
// 资金安全：扣款、账本、注单、outbox 在同一事务内提交。
func (s *betService) PlaceBet(ctx context.Context, in BetInput) (*BetOutput, error) {

	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordBet(result, in.Selection, start) }()

	cfg := config.Get()

	// ========== 投注金额解析和验证 ==========
	amtDec, err := decimal.NewFromString(strings.TrimSpace(in.Stake))
	if err != nil {
		fmt.Printf("[Bet] 无效的投注金额格式: stake=%s, error=%v, trace_id=%s\n",
			in.Stake, err, in.TraceID)
		return nil, errors.New("invalid stake format")
	}
	if amtDec.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("stake must be positive")
	}
	minStake := decimal.NewFromFloat(0.01)
	if cfg != nil && cfg.Game.MinStake > 0 {
		minStake = decimal.NewFromFloat(cfg.Game.MinStake)
	}
	if amtDec.LessThan(minStake) {
		return nil, fmt.Errorf("stake below minimum limit: %s", minStake.String())
	}
	maxStake := decimal.NewFromInt(1000000)
	if cfg != nil && cfg.Game.MaxStake > 0 {
		maxStake = decimal.NewFromFloat(cfg.Game.MaxStake)
	}
	if amtDec.GreaterThan(maxStake) {
		return nil, fmt.Errorf("stake exceeds maximum limit: %s", maxStake.String())
	}

	fmt.Printf("[Bet] 收到投注请求: round_id=%s, platform_id=%d, platform_user_id=%s, stake=%s, selection=%s, idem_key=%s, trace_id=%s\n",
		in.RoundID, in.PlatformID, in.PlatformUserID, in.Stake, in.Selection, in.IdempotencyKey, in.TraceID)

	// Redis 快路径：结果缓存命中直接返回
	if r := infrds.Client(); r != nil {
		if bs, _ := r.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
			var out BetOutput
			if json.Unmarshal(bs, &out) == nil {
				fmt.Printf("[Bet] Redis 缓存命中: idem_key=%s, bill_no=%s, trace_id=%s\n",
					in.IdempotencyKey, out.BillNo, in.TraceID)
				return &out, nil
			}
		}

		// 进行中锁，吸收瞬时重复；唯一锁值防止误删其他请求的锁
		lockValue := uuid.New().String()
		lockKey := infrds.IdemLockKey(in.IdempotencyKey)
		ok, _ := r.SetNX(ctx, lockKey, lockValue, idemLockTTL).Result()
		if !ok {
			if bs, _ := r.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
				var out BetOutput
				if json.Unmarshal(bs, &out) == nil {
					return &out, nil
				}
			}
			fmt.Printf("[Bet] 重复请求进行中: idem_key=%s, trace_id=%s\n", in.IdempotencyKey, in.TraceID)
			return nil, ErrDuplicateInFlight
		}
		// Lua 原子释放：仅当锁值匹配时删除
		defer func() {
			script := `
				if redis.call("get", KEYS[1]) == ARGV[1] then
					return redis.call("del", KEYS[1])
				else
					return 0
				end
			`
			if _, err := r.Eval(ctx, script, []string{lockKey}, lockValue).Result(); err != nil {
				fmt.Printf("[Bet] 释放分布式锁失败: idem_key=%s, error=%v, trace_id=%s\n",
					in.IdempotencyKey, err, in.TraceID)
			}
		}()
	}

	// 开启 MySQL 事务（带默认超时，防止长事务影响并发）
	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}
	tx, err := infmysql.DB().BeginTxx(txCtx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// 获取或创建用户并加锁（自动注册）
	user, err := getOrCreateCustomerInTx(txCtx, tx, in.PlatformID, in.PlatformUserID, in.PlatformUserName)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create customer: %w", err)
	}

	// 获取回合并加锁，校验状态与时间窗口
	round, err := model.GetRoundForUpdate(txCtx, tx, in.RoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round info: %w", err)
	}
	if round.Status != state.CodeBetting {
		fmt.Printf("[Bet] 回合状态不允许投注: status=%s(%d), round_id=%s, trace_id=%s\n",
			round.StatusStr, round.Status, in.RoundID, in.TraceID)
		return nil, ErrRoundNotBetting
	}
	now := time.Now().UnixMilli()
	if now < round.BetOpenAt {
		return nil, ErrBetWindowNotStart
	}
	// 封盘时间以持久化的 bet_close_at 为准；即使调度器尚未翻状态也拒单
	if now >= round.BetCloseAt {
		fmt.Printf("[Bet] 投注窗口已关闭: now=%d, bet_close_at=%d, round_id=%s, trace_id=%s\n",
			now, round.BetCloseAt, in.RoundID, in.TraceID)
		return nil, ErrLateBet
	}

	// 校验玩法选择并快照赔率
	odds, err := settle.OddsFor(round.GameType, in.Selection)
	if err != nil {
		fmt.Printf("[Bet] 非法玩法选择: game=%s, selection=%s, trace_id=%s\n",
			round.GameType, in.Selection, in.TraceID)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}

	// 对冲下注检查
	conflict, err := checkConflictingSelection(txCtx, tx, round.GameType, in.RoundID, user.CustomerID, in.Selection)
	if err != nil {
		return nil, fmt.Errorf("failed to check conflicting bets: %w", err)
	}
	if conflict {
		return nil, ErrConflictingSelection
	}

	billNo := generateBillNo(round.GameType, user.CustomerID)

	// 幂等：先占幂等键，ref 记录 bill_no
	if err := (&model.IdempotencyKey{IdempotencyKey: in.IdempotencyKey, Purpose: "bet", Ref: billNo}).Insert(txCtx, tx); err != nil {
		var me *mysqlerr.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			fmt.Printf("[Bet] 幂等键冲突，尝试返回上次结果: idem_key=%s, trace_id=%s\n",
				in.IdempotencyKey, in.TraceID)
			_ = tx.Rollback()
			return s.replayAccepted(ctx, in, round.BetCloseAt)
		}
		return nil, fmt.Errorf("idempotency insert failed: %w", err)
	}

	if user.Status != 1 {
		return nil, errors.New("customer disabled")
	}
	beforeDec := decimal.NewFromFloat(user.Balance)
	if beforeDec.Cmp(amtDec) < 0 {
		return nil, ErrInsufficientBalance
	}
	afterDec := beforeDec.Sub(amtDec)

	// 扣款
	if err := model.UpdateBalance(txCtx, tx, user.CustomerID, afterDec.Round(2).InexactFloat64()); err != nil {
		return nil, err
	}

	// 写账本（扣款）
	ledger := &model.WalletLedger{
		CustomerID:   user.CustomerID,
		BizType:      BIZ_TYPE_BET,
		BizTypeStr:   "bet",
		Amount:       amtDec.Round(2).InexactFloat64(),
		BeforeAmount: beforeDec.Round(2).InexactFloat64(),
		AfterAmount:  afterDec.Round(2).InexactFloat64(),
		Currency:     user.Currency,
		BillNo:       billNo,
		RoundID:      in.RoundID,
		GameType:     round.GameType,
		Remark:       "bet deduct",
		TraceID:      in.TraceID,
	}
	if err := ledger.Insert(txCtx, tx); err != nil {
		return nil, err
	}

	// 落注单
	bet := &model.Bet{
		BillNo:         billNo,
		RoundID:        in.RoundID,
		GameType:       round.GameType,
		CustomerID:     user.CustomerID,
		PlatformID:     in.PlatformID,
		PlatformUserID: in.PlatformUserID,
		Selection:      in.Selection,
		Stake:          amtDec.Round(2).InexactFloat64(),
		Odds:           odds.InexactFloat64(),
		Currency:       user.Currency,
		IdempotencyKey: in.IdempotencyKey,
		TraceID:        in.TraceID,
	}
	if err := bet.Insert(txCtx, tx); err != nil {
		return nil, err
	}

	// Outbox 消息（异步投递）
	payload := map[string]any{
		"event":       "bet_placed",
		"bill_no":     billNo,
		"round_id":    in.RoundID,
		"game_type":   round.GameType,
		"customer_id": user.CustomerID,
		"selection":   in.Selection,
		"stake":       amtDec.Round(2).String(),
	}
	if err := model.CreateOutbox(txCtx, tx, "bet_placed", billNo, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	result = "success"
	out := &BetOutput{
		BillNo:       billNo,
		Odds:         odds.String(),
		RemainAmount: afterDec.Round(2).StringFixed(2),
		BetCloseAt:   round.BetCloseAt,
	}

	// 写入 Redis 结果缓存（降级容错）
	if r := infrds.Client(); r != nil {
		if b, e := json.Marshal(out); e == nil {
			_ = r.Set(ctx, infrds.IdemResultKey(in.IdempotencyKey), b, idemResultTTL).Err()
		}
	}
	return out, nil
}

// replayAccepted 幂等冲突时返回首次受理的结果：Redis 先查，DB 回源
func (s *betService) replayAccepted(ctx context.Context, in BetInput, betCloseAt int64) (*BetOutput, error) {
	if r := infrds.Client(); r != nil {
		if bs, _ := r.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
			var out BetOutput
			if json.Unmarshal(bs, &out) == nil {
				return &out, nil
			}
		}
	}
	db := infmysql.DB()
	ref, err := model.SelectRefByIdemKey(ctx, db, in.IdempotencyKey)
	if err != nil || ref == "" {
		return nil, fmt.Errorf("idempotency conflict, replay failed: %v", err)
	}
	u, err := model.GetCustomerByPlatformUser(ctx, db, in.PlatformID, in.PlatformUserID)
	if err != nil {
		return nil, err
	}
	fmt.Printf("[Bet] 从数据库返回上次结果: bill_no=%s, trace_id=%s\n", ref, in.TraceID)
	return &BetOutput{
		BillNo:       ref,
		RemainAmount: decimal.NewFromFloat(u.Balance).StringFixed(2),
		BetCloseAt:   betCloseAt,
	}, nil
}

// 注单号前缀：按玩法区分，便于人工排查
var billPrefix = map[string]string{
	settle.GameAndarBahar: "AB",
	settle.GameRoulette:   "RL",
	settle.GameSicbo:      "SB",
	settle.GamePoker:      "PK",
}

// generateBillNo 生成可读注单号
// 格式：{玩法前缀}{YYYYMMDDHHmmss}{用户ID后4位}{随机8位十六进制}
func generateBillNo(gameType string, customerID int64) string {
	prefix := billPrefix[gameType]
	if prefix == "" {
		prefix = "XX"
	}
	dateTime := time.Now().Format("20060102150405")
	userSuffix := fmt.Sprintf("%04d", customerID%10000)
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		// crypto/rand 不可用时退化为 uuid，注单号仍保持唯一
		u := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
		return fmt.Sprintf("%s%s%s%s", prefix, dateTime, userSuffix, u[:8])
	}
	randomHex := strings.ToUpper(hex.EncodeToString(randomBytes))
	return fmt.Sprintf("%s%s%s%s", prefix, dateTime, userSuffix, randomHex)
}

// checkConflictingSelection 同一局内禁止对冲下注（andar vs bahar、red vs black 等）
func checkConflictingSelection(ctx context.Context, tx *sqlx.Tx, gameType, roundID string, customerID int64, selection string) (bool, error) {
	opposing, ok := opposingSelections[gameType][selection]
	if !ok {
		return false, nil
	}
	query := "SELECT COUNT(1) FROM bets WHERE round_id = ? AND customer_id = ? AND selection = ? AND status = 1"
	var cnt int
	if err := tx.GetContext(ctx, &cnt, query, roundID, customerID, opposing); err != nil {
		return false, fmt.Errorf("failed to check existing bets: %w", err)
	}
	return cnt > 0, nil
}

// getOrCreateCustomerInTx 在事务中获取或创建用户并加锁
func getOrCreateCustomerInTx(ctx context.Context, tx *sqlx.Tx, platformID int8, platformUserID, username string) (*model.Customers, error) {
	user, err := model.GetCustomerByPlatformUserForUpdate(ctx, tx, platformID, platformUserID)
	if err == nil {
		return user, nil
	}
	if err.Error() == "sql: no rows in result set" {
		newUser := &model.Customers{
			PlatformID:     platformID,
			PlatformUserID: platformUserID,
			Username:       username,
			Balance:        0.00,
			Status:         1,
		}
		if err := newUser.Insert(ctx, tx); err != nil {
			var me *mysqlerr.MySQLError
			if errors.As(err, &me) && me.Number == 1062 {
				return model.GetCustomerByPlatformUserForUpdate(ctx, tx, platformID, platformUserID)
			}
			return nil, err
		}
		return newUser, nil
	}
	return nil, err
}
