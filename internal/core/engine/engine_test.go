// Package engine 周期引擎测试
// 使用冻结时钟直接驱动单个周期，保证确定性。
package engine

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"silent-observer/internal/core/clock"
	"silent-observer/internal/core/gates"
	"silent-observer/internal/core/hub"
	"silent-observer/internal/core/metrics"
	"silent-observer/internal/core/model"
	"silent-observer/internal/core/queue"
)

// etZone 测试用固定时区（避免依赖系统 tzdata）
var etZone = time.FixedZone("ET", -5*3600)

type harness struct {
	eng      *Engine
	clk      *clock.FrozenClock
	inbound  *queue.InboundQueue
	commands *queue.CommandQueue
	dataHub  *hub.DataHub
}

// newHarness 构建测试引擎
// 参数 local: 冻结时钟的初始本地时间
// 参数 mutate: 可选的配置修改
func newHarness(local time.Time, mutate func(*Config)) *harness {
	clk := clock.NewFrozenClock(local)
	session := clock.NewSessionManager(clk, 7*60, 16*60)
	inbound := queue.NewInboundQueue(0)
	commands := queue.NewCommandQueue(0, clk)
	dataHub := hub.New()

	cfg := Config{
		Instrument: model.Instrument{
			Symbol:      "MNQ",
			ContractKey: "MNQ.202603",
			TickSize:    0.25,
		},
		CycleTargetMs:           100,
		CycleOverrunThresholdMs: 500,
		Thresholds:              gates.DefaultThresholds(),
		AppVersion:              "test",
		ConfigHash:              "deadbeef",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	eng := New(cfg, "run-test", clk, session, inbound, commands, dataHub, metrics.New(), zap.NewNop())
	eng.runStartTsUnixMs = clk.NowUnixMs()
	eng.runStartMonoNs = clk.NowMonoNs()

	return &harness{eng: eng, clk: clk, inbound: inbound, commands: commands, dataHub: dataHub}
}

// operatingTime 运行窗口内的本地时间（周一 10:00 ET）
func operatingTime() time.Time {
	return time.Date(2026, 3, 2, 10, 0, 0, 0, etZone)
}

// pushStatus 推入状态事件
func (h *harness) pushStatus(connected bool, mode model.MDMode) {
	_ = h.inbound.Push(model.StatusEvent{
		TsRecvMonoNs: h.clk.NowMonoNs(),
		TsRecvUnixMs: h.clk.NowUnixMs(),
		Connected:    connected,
		Mode:         mode,
	})
}

// pushQuote 推入行情事件
func (h *harness) pushQuote(bid, ask float64) {
	_ = h.inbound.Push(model.QuoteEvent{
		TsRecvMonoNs: h.clk.NowMonoNs(),
		TsRecvUnixMs: h.clk.NowUnixMs(),
		ConID:        42,
		Bid:          bid,
		Ask:          ask,
		Last:         bid,
		BidSize:      3,
		AskSize:      5,
	})
}

// cycle 执行一个周期并返回发布的快照
func (h *harness) cycle(t *testing.T) *model.Snapshot {
	t.Helper()
	if _, ok := h.eng.runCycle(); !ok {
		t.Fatalf("runCycle 不应终止")
	}
	snap := h.dataHub.Latest()
	if snap == nil {
		t.Fatalf("周期结束后应已发布快照")
	}
	return snap
}

func TestEngine_Scenario_ArmOff(t *testing.T) {
	h := newHarness(operatingTime(), nil)
	h.pushStatus(true, model.MDModeRealtime)
	h.pushQuote(18499.75, 18500.00)
	if _, err := h.commands.PushIntent(model.IntentLong); err != nil {
		t.Fatalf("PushIntent 失败: %v", err)
	}

	snap := h.cycle(t)
	if snap.Gates.Allowed {
		t.Fatalf("ARM 关闭时不应 allowed")
	}
	if len(snap.Gates.ReasonCodes) != 1 || snap.Gates.ReasonCodes[0] != "ARM_OFF" {
		t.Fatalf("reason_codes=%v, want [ARM_OFF]", snap.Gates.ReasonCodes)
	}
	if snap.Quote == nil || snap.Quote.SpreadTicks == nil || *snap.Quote.SpreadTicks != 1 {
		t.Fatalf("spread_ticks 应为 1")
	}
}

func TestEngine_Scenario_SpreadWide(t *testing.T) {
	h := newHarness(operatingTime(), func(cfg *Config) {
		cfg.Thresholds.MaxSpreadTicks = 4
	})
	h.pushStatus(true, model.MDModeRealtime)
	h.pushQuote(18499.00, 18502.50)
	_, _ = h.commands.PushIntent(model.IntentLong)
	_, _ = h.commands.PushArm(true)

	snap := h.cycle(t)
	if snap.Gates.Allowed {
		t.Fatalf("点差超限时不应 allowed")
	}
	if len(snap.Gates.ReasonCodes) != 1 || snap.Gates.ReasonCodes[0] != "SPREAD_WIDE" {
		t.Fatalf("reason_codes=%v, want [SPREAD_WIDE]", snap.Gates.ReasonCodes)
	}
	if snap.Quote.SpreadTicks == nil || *snap.Quote.SpreadTicks != 14 {
		t.Fatalf("spread_ticks=%v, want 14", snap.Quote.SpreadTicks)
	}
}

func TestEngine_Scenario_StaleAndDisconnected(t *testing.T) {
	h := newHarness(operatingTime(), nil)
	h.pushStatus(true, model.MDModeRealtime)
	h.pushQuote(18499.75, 18500.00)
	_, _ = h.commands.PushIntent(model.IntentLong)
	_, _ = h.commands.PushArm(true)
	h.cycle(t)

	// 7 秒无行情后断开；断开时 md_mode 归入 NONE
	h.clk.Advance(7 * time.Second)
	h.pushStatus(false, model.MDModeNone)

	snap := h.cycle(t)
	want := []string{"FEED_DISCONNECTED", "MD_NOT_REALTIME", "STALE_DATA"}
	if len(snap.Gates.ReasonCodes) != len(want) {
		t.Fatalf("reason_codes=%v, want %v", snap.Gates.ReasonCodes, want)
	}
	for i := range want {
		if snap.Gates.ReasonCodes[i] != want[i] {
			t.Fatalf("reason_codes[%d]=%s, want %s", i, snap.Gates.ReasonCodes[i], want[i])
		}
	}
	if snap.Quote.StalenessMs != 7000 {
		t.Fatalf("staleness_ms=%d, want 7000", snap.Quote.StalenessMs)
	}
}

func TestEngine_Scenario_OutsideWindowAndBreak(t *testing.T) {
	// 本地 17:30：运行窗口外（默认 16:00 结束）且处于休市窗口
	h := newHarness(time.Date(2026, 3, 2, 17, 30, 0, 0, etZone), nil)

	snap := h.cycle(t)
	foundWindow, foundBreak := false, false
	for _, r := range snap.Gates.ReasonCodes {
		if r == "OUTSIDE_OPERATING_WINDOW" {
			foundWindow = true
		}
		if r == "SESSION_BREAK" {
			foundBreak = true
		}
	}
	if !foundWindow || !foundBreak {
		t.Fatalf("17:30 应同时报告窗口外与休市，reason_codes=%v", snap.Gates.ReasonCodes)
	}
	if snap.Session.Phase != clock.PhaseBreak {
		t.Fatalf("session_phase=%s, want BREAK", snap.Session.Phase)
	}
	// 17:30 已过滚动点，交易日应为次日
	if snap.Session.SessionDateISO != "2026-03-03" {
		t.Fatalf("session_date=%s, want 2026-03-03", snap.Session.SessionDateISO)
	}
}

func TestEngine_Scenario_CleanCycle(t *testing.T) {
	h := newHarness(operatingTime(), nil)
	h.pushStatus(true, model.MDModeRealtime)
	h.pushQuote(18499.75, 18500.00)
	_, _ = h.commands.PushIntent(model.IntentLong)
	_, _ = h.commands.PushArm(true)

	snap := h.cycle(t)
	if !snap.Gates.Allowed {
		t.Fatalf("全部门禁通过时应 allowed，reason_codes=%v", snap.Gates.ReasonCodes)
	}
	if len(snap.Gates.ReasonCodes) != 0 {
		t.Fatalf("reason_codes 应为空，实际 %v", snap.Gates.ReasonCodes)
	}
	if !snap.Ready {
		t.Fatalf("ready 应镜像 allowed")
	}
	if snap.Instrument.ConID != 42 {
		t.Fatalf("con_id=%d, want 42（来自行情事件）", snap.Instrument.ConID)
	}
}

func TestEngine_Scenario_CoalescedCommands(t *testing.T) {
	h := newHarness(operatingTime(), nil)
	id1, _ := h.commands.PushIntent(model.IntentLong)
	_, _ = h.commands.PushArm(true)
	id3, _ := h.commands.PushIntent(model.IntentFlat)
	if id3 <= id1 {
		t.Fatalf("命令 id 应单调递增")
	}

	snap := h.cycle(t)
	if snap.Controls.Intent != model.IntentFlat {
		t.Fatalf("intent=%s, want FLAT（last-write-wins）", snap.Controls.Intent)
	}
	if !snap.Controls.Arm {
		t.Fatalf("arm 应为 true")
	}
	if snap.Controls.LastCmdID != id3 {
		t.Fatalf("last_cmd_id=%d, want %d", snap.Controls.LastCmdID, id3)
	}
}

func TestEngine_SnapshotIDMonotonic(t *testing.T) {
	h := newHarness(operatingTime(), nil)

	var prev uint64
	for i := 0; i < 50; i++ {
		snap := h.cycle(t)
		if snap.SnapshotID != prev+1 {
			t.Fatalf("snapshot_id=%d, want %d（严格递增无空洞）", snap.SnapshotID, prev+1)
		}
		prev = snap.SnapshotID
		h.clk.Advance(100 * time.Millisecond)
	}
	if prev != 50 {
		t.Fatalf("50 个周期后 snapshot_id=%d, want 50", prev)
	}
}

func TestEngine_ReadyMirrors(t *testing.T) {
	h := newHarness(operatingTime(), nil)
	h.pushStatus(true, model.MDModeRealtime)
	h.pushQuote(18499.75, 18500.00)

	for i := 0; i < 10; i++ {
		snap := h.cycle(t)
		if snap.Ready != snap.Gates.Allowed {
			t.Fatalf("ready != allowed")
		}
		if len(snap.ReadyReasons) != len(snap.Gates.ReasonCodes) {
			t.Fatalf("ready_reasons != reason_codes")
		}
		for j := range snap.ReadyReasons {
			if snap.ReadyReasons[j] != snap.Gates.ReasonCodes[j] {
				t.Fatalf("ready_reasons[%d] != reason_codes[%d]", j, j)
			}
		}
		h.clk.Advance(100 * time.Millisecond)
	}
}

func TestEngine_QuoteLastWinsWithinCycle(t *testing.T) {
	h := newHarness(operatingTime(), nil)
	h.pushQuote(18400.00, 18400.25)
	h.pushQuote(18499.75, 18500.00)

	snap := h.cycle(t)
	if snap.Quote == nil || snap.Quote.Bid != 18499.75 {
		t.Fatalf("同周期内后到行情应覆盖前者")
	}
	if snap.Liveness.QuotesReceivedCount != 2 {
		t.Fatalf("quotes_received_count=%d, want 2", snap.Liveness.QuotesReceivedCount)
	}
}

func TestEngine_ReconnectCounted(t *testing.T) {
	h := newHarness(operatingTime(), nil)
	h.pushStatus(true, model.MDModeRealtime)
	h.cycle(t)
	h.pushStatus(false, model.MDModeNone)
	h.cycle(t)
	h.pushStatus(true, model.MDModeRealtime)
	h.cycle(t)

	if got := h.eng.metrics.ReconnectCount(); got != 2 {
		// 初次连接与恢复连接各计一次 false→true 转换
		t.Fatalf("reconnect_count=%d, want 2", got)
	}
}

func TestEngine_DegradedFromPreviousCycle(t *testing.T) {
	h := newHarness(operatingTime(), nil)
	h.eng.prevCycleMs = 600 // 上一周期超过 500ms 阈值

	snap := h.cycle(t)
	if !snap.Loop.EngineDegraded {
		t.Fatalf("上一周期超阈值时 engine_degraded 应为 true")
	}
	found := false
	for _, r := range snap.Gates.ReasonCodes {
		if r == "ENGINE_DEGRADED" {
			found = true
		}
	}
	if !found {
		t.Fatalf("reason_codes 应包含 ENGINE_DEGRADED，实际 %v", snap.Gates.ReasonCodes)
	}
}

func TestEngine_ClockBackwardsTerminates(t *testing.T) {
	h := newHarness(operatingTime(), nil)
	h.eng.lastCycleStartMonoNs = h.clk.NowMonoNs() + int64(time.Hour)

	if _, ok := h.eng.runCycle(); ok {
		t.Fatalf("单调时钟回退应终止引擎")
	}
}

func TestEngine_StalenessHeartbeat(t *testing.T) {
	h := newHarness(operatingTime(), nil)
	h.pushStatus(true, model.MDModeRealtime)
	h.pushQuote(18499.75, 18500.00)
	_, _ = h.commands.PushArm(true)
	_, _ = h.commands.PushIntent(model.IntentLong)
	snap := h.cycle(t)
	if containsReason(snap, "STALE_DATA") {
		t.Fatalf("新鲜行情不应报告 STALE_DATA")
	}

	// 超过心跳超时（默认 5000ms）后无新行情
	h.clk.Advance(5001 * time.Millisecond)
	snap = h.cycle(t)
	if !containsReason(snap, "STALE_DATA") {
		t.Fatalf("心跳超时后应报告 STALE_DATA，reason_codes=%v", snap.Gates.ReasonCodes)
	}
	if got := h.eng.metrics.StalenessEventsCount(); got == 0 {
		t.Fatalf("staleness_events_count 应已递增")
	}
}

func TestEngine_StartStopLifecycle(t *testing.T) {
	h := newHarness(operatingTime(), func(cfg *Config) {
		cfg.CycleTargetMs = 1
	})

	if err := h.eng.Start(); err != nil {
		t.Fatalf("Start 失败: %v", err)
	}
	if err := h.eng.Start(); err != ErrAlreadyStarted {
		t.Fatalf("重入 Start 应返回 ErrAlreadyStarted，实际 %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	h.eng.Stop()

	s := h.eng.Summary()
	if s.RunID != "run-test" {
		t.Fatalf("摘要 run_id=%s, want run-test", s.RunID)
	}
	if s.CycleCount == 0 {
		t.Fatalf("摘要 cycle_count 应大于 0")
	}
}

func containsReason(snap *model.Snapshot, reason string) bool {
	for _, r := range snap.Gates.ReasonCodes {
		if r == reason {
			return true
		}
	}
	return false
}
