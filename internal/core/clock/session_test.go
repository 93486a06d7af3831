// Package clock 时段逻辑测试
package clock

import (
	"testing"
	"time"
)

var etZone = time.FixedZone("ET", -5*3600)

func frozenAt(hour, minute int) (*FrozenClock, *SessionManager) {
	clk := NewFrozenClock(time.Date(2026, 3, 2, hour, minute, 0, 0, etZone))
	return clk, NewSessionManager(clk, 7*60, 16*60)
}

func TestSessionDate_RollsAt1700(t *testing.T) {
	cases := []struct {
		hour, minute int
		want         string
	}{
		{0, 0, "2026-03-02"},
		{16, 59, "2026-03-02"},
		{17, 0, "2026-03-03"},
		{18, 0, "2026-03-03"},
		{23, 59, "2026-03-03"},
	}
	for _, tc := range cases {
		_, mgr := frozenAt(tc.hour, tc.minute)
		if got := mgr.SessionDateISO(); got != tc.want {
			t.Fatalf("%02d:%02d 的交易日=%s, want %s", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestBreakWindow(t *testing.T) {
	cases := []struct {
		hour, minute int
		want         bool
	}{
		{16, 59, false},
		{17, 0, true},
		{17, 30, true},
		{17, 59, true},
		{18, 0, false},
	}
	for _, tc := range cases {
		_, mgr := frozenAt(tc.hour, tc.minute)
		if got := mgr.IsBreakWindow(); got != tc.want {
			t.Fatalf("%02d:%02d 的休市判断=%v, want %v", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestOperatingWindow(t *testing.T) {
	cases := []struct {
		hour, minute int
		want         bool
	}{
		{6, 59, false},
		{7, 0, true},
		{12, 0, true},
		{15, 59, true},
		{16, 0, false},
	}
	for _, tc := range cases {
		_, mgr := frozenAt(tc.hour, tc.minute)
		if got := mgr.InOperatingWindow(); got != tc.want {
			t.Fatalf("%02d:%02d 的运行窗口判断=%v, want %v", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestSessionPhase(t *testing.T) {
	cases := []struct {
		hour, minute int
		want         string
	}{
		{10, 0, PhaseOperating},
		{17, 30, PhaseBreak},
		{20, 0, PhaseClosed},
		{3, 0, PhaseClosed},
	}
	for _, tc := range cases {
		_, mgr := frozenAt(tc.hour, tc.minute)
		if got := mgr.Phase(); got != tc.want {
			t.Fatalf("%02d:%02d 的阶段=%s, want %s", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestSessionDate_MonthBoundary(t *testing.T) {
	// 月末 17:00 后滚动到下月首日
	clk := NewFrozenClock(time.Date(2026, 2, 28, 17, 30, 0, 0, etZone))
	mgr := NewSessionManager(clk, 7*60, 16*60)
	if got := mgr.SessionDateISO(); got != "2026-03-01" {
		t.Fatalf("月末滚动后交易日=%s, want 2026-03-01", got)
	}
}

func TestSessionManager_CustomWindow(t *testing.T) {
	clk := NewFrozenClock(time.Date(2026, 3, 2, 9, 30, 0, 0, etZone))
	mgr := NewSessionManager(clk, 9*60+30, 11*60)
	if !mgr.InOperatingWindow() {
		t.Fatalf("09:30 应在 [09:30, 11:00) 窗口内")
	}
	clk.SetLocal(time.Date(2026, 3, 2, 11, 0, 0, 0, etZone))
	if mgr.InOperatingWindow() {
		t.Fatalf("11:00 不应在 [09:30, 11:00) 窗口内（右开）")
	}
}
