package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casino-server/internal/settle"
)

func TestGenerateBillNoFormat(t *testing.T) {
	no := generateBillNo(settle.GameRoulette, 123456789)
	assert.True(t, strings.HasPrefix(no, "RL"))
	// 前缀2 + 时间14 + 用户后4位 + 随机8位十六进制
	assert.Len(t, no, 28)
	assert.Contains(t, no, "6789")

	no = generateBillNo("unknown_game", 1)
	assert.True(t, strings.HasPrefix(no, "XX"))
	assert.Len(t, no, 28)
}

func TestGenerateBillNoUnique(t *testing.T) {
	// 同一秒同一用户连续下注也不得撞号
	seen := make(map[string]bool, 2000)
	for i := 0; i < 2000; i++ {
		no := generateBillNo(settle.GameSicbo, 42)
		require.False(t, seen[no], "duplicate bill no: %s", no)
		seen[no] = true
	}
}
