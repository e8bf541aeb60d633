// Package system exercises the real-time clock adapter.
package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClockNowUTC ensures a nil location falls back to UTC.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New(nil)
	before := time.Now().Add(-time.Second)
	got := clk.Now()
	after := time.Now().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

// TestClockNowInLocation checks the configured zone is applied.
func TestClockNowInLocation(t *testing.T) {
	t.Parallel()

	seoul := time.FixedZone("KST", 9*60*60)
	clk := New(seoul)
	require.Equal(t, seoul, clk.Now().Location())
	require.Equal(t, seoul, clk.Location())

	first := clk.Now()
	second := clk.Now()
	require.False(t, second.Before(first))
}
