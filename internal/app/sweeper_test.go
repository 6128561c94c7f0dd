package app

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingExpirer struct{ runs atomic.Int32 }

func (c *countingExpirer) Sweep() int {
	c.runs.Add(1)
	return 1
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	store := &countingExpirer{}
	s, err := newSweeper("@every 1s", store, zerolog.Nop())
	if err != nil {
		t.Fatalf("valid spec should schedule: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for store.runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep never ran")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSweeperRejectsBadSpec(t *testing.T) {
	if _, err := newSweeper("every minute please", &countingExpirer{}, zerolog.Nop()); err == nil {
		t.Fatal("非法 cron 表达式应返回错误")
	}
}
