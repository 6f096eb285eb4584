package redis

// Redis Key 定义与构造器
// 统一管理业务使用的 Redis Key，避免散落的魔法字符串。

const (
	// PrefixBetIdemResult：投注幂等"结果缓存"Key 的前缀。
	// 缓存某个 idempotency key 首次成功受理的结果 JSON，重复请求直接返回。
	PrefixBetIdemResult = "bet:idem:result:"
	// PrefixBetIdemLock：投注幂等"进行中锁"Key 的前缀。
	// SETNX + TTL 标记 idempotency key 正在处理，吸收瞬时重复请求。
	PrefixBetIdemLock = "bet:idem:lock:"

	// PrefixRoundSnapshot：回合快照缓存（下注窗口等），前端倒计时用
	PrefixRoundSnapshot = "round:snapshot:"
	// PrefixRoundResult：结算结果缓存
	PrefixRoundResult = "round:result:"

	// PrefixOutcomeOverride：人工干预的待用结果（带 TTL，封盘开奖时消费）
	PrefixOutcomeOverride = "outcome:override:"
	// PrefixOutcomeExternal：外部市场写入的开奖结果（带 TTL）
	PrefixOutcomeExternal = "outcome:external:"
)

// IdemResultKey 形如 bet:idem:result:{idempotency_key}
func IdemResultKey(k string) string { return PrefixBetIdemResult + k }

// IdemLockKey 形如 bet:idem:lock:{idempotency_key}
func IdemLockKey(k string) string { return PrefixBetIdemLock + k }

// RoundSnapshotKey 形如 round:snapshot:{round_id}
func RoundSnapshotKey(roundID string) string { return PrefixRoundSnapshot + roundID }

// RoundResultKey 形如 round:result:{round_id}
func RoundResultKey(roundID string) string { return PrefixRoundResult + roundID }

// OutcomeOverrideKey 形如 outcome:override:{round_id}
func OutcomeOverrideKey(roundID string) string { return PrefixOutcomeOverride + roundID }

// OutcomeExternalKey 形如 outcome:external:{round_id}
func OutcomeExternalKey(roundID string) string { return PrefixOutcomeExternal + roundID }
