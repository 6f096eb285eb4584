package engine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// 公平性敏感的随机源。
// 必须走 crypto/rand + 拒绝采样：naive 的 "randUint64 % n" 在 n 不能整除 2^64 时
// 会偏向低值区间，对真钱游戏不可接受。

// randUint64 从 crypto/rand 读取 8 字节
func randUint64() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("rng: read entropy: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// Uint64n 返回 [0,n) 内的无偏均匀随机数
// 拒绝采样：丢弃落在 2^64 - (2^64 mod n) 之上的样本，重采直到命中无偏区间
func Uint64n(n uint64) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("rng: n must be positive")
	}
	// 2^64 mod n == (2^64 - n) mod n，uint64 溢出环绕恰好给出该值
	threshold := -n % n
	for {
		v, err := randUint64()
		if err != nil {
			return 0, err
		}
		if v >= threshold {
			return v % n, nil
		}
	}
}

// Intn 返回 [0,n) 内的无偏均匀随机数
func Intn(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("rng: n must be positive")
	}
	v, err := Uint64n(uint64(n))
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// SpinWheel 轮盘：返回 [0,slotCount) 的槽位编号
// 纯函数，调用方负责在结算前持久化结果（可审计/可重放）
func SpinWheel(slotCount int) (int, error) {
	if slotCount < 2 {
		return 0, fmt.Errorf("rng: slotCount must be >= 2, got %d", slotCount)
	}
	return Intn(slotCount)
}

// RollDice 骰子：count 颗、每颗 [1,faces]，相互独立
func RollDice(count, faces int) ([]int, error) {
	if count <= 0 || faces <= 1 {
		return nil, fmt.Errorf("rng: invalid dice spec count=%d faces=%d", count, faces)
	}
	out := make([]int, count)
	for i := range out {
		v, err := Intn(faces)
		if err != nil {
			return nil, err
		}
		out[i] = v + 1
	}
	return out, nil
}
