package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	cases := []struct {
		cur, evt string
		want     string
		wantErr  bool
	}{
		{StatusPending, EvtOpenBetting, StatusBetting, false},
		{StatusBetting, EvtCloseRound, StatusResolving, false},
		{StatusResolving, EvtSettled, StatusCompleted, false},
		{StatusResolving, EvtVoid, StatusVoid, false},
		// 非法转换
		{StatusPending, EvtCloseRound, "", true},
		{StatusBetting, EvtSettled, "", true},
		{StatusBetting, EvtVoid, "", true},
		{StatusCompleted, EvtOpenBetting, "", true},
		{StatusVoid, EvtSettled, "", true},
		{StatusResolving, EvtOpenBetting, "", true},
	}
	for _, c := range cases {
		got, err := NextStatus(c.cur, c.evt)
		if c.wantErr {
			assert.Error(t, err, "%s --%s-->", c.cur, c.evt)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusVoid))
	assert.False(t, IsTerminal(StatusPending))
	assert.False(t, IsTerminal(StatusBetting))
	assert.False(t, IsTerminal(StatusResolving))
}

func TestCodeRoundTrip(t *testing.T) {
	for _, s := range []string{StatusPending, StatusBetting, StatusResolving, StatusCompleted, StatusVoid} {
		assert.Equal(t, s, FromCode(ToCode(s)))
	}
	assert.Equal(t, int8(0), ToCode("unknown"))
}
