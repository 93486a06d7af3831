// Package gates 实现硬门禁评估。
// 纯函数：不做 I/O、不读时钟，所有输入通过参数传入。
// 门禁按固定顺序全部评估（不短路），输出稳定的原因码序列。
package gates

import (
	"silent-observer/internal/core/model"
)

// Reason 门禁原因码（封闭集合，稳定字符串）
type Reason string

const (
	// ReasonArmOff ARM 开关未打开
	ReasonArmOff Reason = "ARM_OFF"
	// ReasonIntentFlat 意图为 FLAT
	ReasonIntentFlat Reason = "INTENT_FLAT"
	// ReasonOutsideOperatingWindow 不在运行窗口内
	ReasonOutsideOperatingWindow Reason = "OUTSIDE_OPERATING_WINDOW"
	// ReasonSessionBreak 处于休市窗口
	ReasonSessionBreak Reason = "SESSION_BREAK"
	// ReasonFeedDisconnected 行情源未连接
	ReasonFeedDisconnected Reason = "FEED_DISCONNECTED"
	// ReasonMDNotRealtime 行情模式非实时
	ReasonMDNotRealtime Reason = "MD_NOT_REALTIME"
	// ReasonNoContract 合约未确认
	ReasonNoContract Reason = "NO_CONTRACT"
	// ReasonStaleData 行情缺失或过期
	ReasonStaleData Reason = "STALE_DATA"
	// ReasonSpreadUnavailable 点差不可计算
	ReasonSpreadUnavailable Reason = "SPREAD_UNAVAILABLE"
	// ReasonSpreadWide 点差超过阈值
	ReasonSpreadWide Reason = "SPREAD_WIDE"
	// ReasonEngineDegraded 引擎降级
	ReasonEngineDegraded Reason = "ENGINE_DEGRADED"
)

// Order 门禁固定评估顺序
// reason_codes 永远是该序列的子序列。
var Order = []Reason{
	ReasonArmOff,
	ReasonIntentFlat,
	ReasonOutsideOperatingWindow,
	ReasonSessionBreak,
	ReasonFeedDisconnected,
	ReasonMDNotRealtime,
	ReasonNoContract,
	ReasonStaleData,
	ReasonSpreadUnavailable,
	ReasonSpreadWide,
	ReasonEngineDegraded,
}

// 默认阈值（权威配置集）
const (
	// DefaultStaleThresholdMs 行情过期阈值（毫秒）
	DefaultStaleThresholdMs = 2000
	// DefaultFeedHeartbeatTimeoutMs 行情心跳超时（毫秒）
	DefaultFeedHeartbeatTimeoutMs = 5000
	// DefaultMaxSpreadTicks 最大允许点差（tick 数）
	DefaultMaxSpreadTicks = 8
)

// Thresholds 门禁阈值（全部由配置注入，不得硬编码备选值）
type Thresholds struct {
	// StaleThresholdMs 行情过期阈值（毫秒）
	StaleThresholdMs int64
	// FeedHeartbeatTimeoutMs 行情心跳超时（毫秒）
	FeedHeartbeatTimeoutMs int64
	// MaxSpreadTicks 最大允许点差（tick 数）
	MaxSpreadTicks int64
}

// DefaultThresholds 返回默认阈值集
func DefaultThresholds() Thresholds {
	return Thresholds{
		StaleThresholdMs:       DefaultStaleThresholdMs,
		FeedHeartbeatTimeoutMs: DefaultFeedHeartbeatTimeoutMs,
		MaxSpreadTicks:         DefaultMaxSpreadTicks,
	}
}

// Inputs 门禁评估输入（快照候选状态）
type Inputs struct {
	// Arm ARM 开关
	Arm bool
	// Intent 当前意图
	Intent model.Intent
	// InOperatingWindow 是否处于运行窗口
	InOperatingWindow bool
	// IsBreakWindow 是否处于休市窗口
	IsBreakWindow bool
	// FeedConnected 行情源是否已连接
	FeedConnected bool
	// Mode 行情模式
	Mode model.MDMode
	// ConID 合约 id（0 表示未确认）
	ConID int64

	// HasQuote 是否已收到行情块
	HasQuote bool
	// Bid 买一价（0 表示缺失）
	Bid float64
	// Ask 卖一价（0 表示缺失）
	Ask float64
	// StalenessMs 行情年龄（毫秒；HasQuote 为 false 时无意义）
	StalenessMs int64
	// LastQuoteEventMonoNs 最近行情事件的单调时钟读数（0 表示从未收到）
	LastQuoteEventMonoNs int64
	// NowMonoNs 本周期起点的单调时钟读数
	NowMonoNs int64
	// SpreadTicks 点差（nil 表示不可计算）
	SpreadTicks *int64

	// EngineDegraded 引擎降级标志
	EngineDegraded bool
	// CycleMs 上一周期耗时（毫秒），仅进入指标
	CycleMs int64

	// Thresholds 门禁阈值
	Thresholds Thresholds
}

// Evaluate 评估全部硬门禁
// 按固定顺序评估，所有未通过的门禁都会被报告（不短路）。
// SPREAD_WIDE 在 SPREAD_UNAVAILABLE 触发时跳过。
// 返回:
//   - allowed: 仅当无任何原因码时为 true
//   - reasons: 未通过门禁的原因码（固定顺序）
//   - metrics: 门禁指标，固定键集合，值可为 nil
func Evaluate(in Inputs) (bool, []Reason, map[string]any) {
	reasons := make([]Reason, 0, 4)
	metrics := buildMetrics(in)

	// 门禁 1: ARM_OFF
	if !in.Arm {
		reasons = append(reasons, ReasonArmOff)
	}

	// 门禁 2: INTENT_FLAT
	if in.Intent == model.IntentFlat {
		reasons = append(reasons, ReasonIntentFlat)
	}

	// 门禁 3: OUTSIDE_OPERATING_WINDOW
	if !in.InOperatingWindow {
		reasons = append(reasons, ReasonOutsideOperatingWindow)
	}

	// 门禁 4: SESSION_BREAK
	if in.IsBreakWindow {
		reasons = append(reasons, ReasonSessionBreak)
	}

	// 门禁 5: FEED_DISCONNECTED
	if !in.FeedConnected {
		reasons = append(reasons, ReasonFeedDisconnected)
	}

	// 门禁 6: MD_NOT_REALTIME
	if in.Mode != model.MDModeRealtime {
		reasons = append(reasons, ReasonMDNotRealtime)
	}

	// 门禁 7: NO_CONTRACT
	if in.ConID == 0 {
		reasons = append(reasons, ReasonNoContract)
	}

	// 门禁 8: STALE_DATA
	if isStale(in) {
		reasons = append(reasons, ReasonStaleData)
	}

	// 门禁 9: SPREAD_UNAVAILABLE
	spreadUnavailable := in.Bid <= 0 || in.Ask <= 0 || in.Ask <= in.Bid
	if spreadUnavailable {
		reasons = append(reasons, ReasonSpreadUnavailable)
	}

	// 门禁 10: SPREAD_WIDE（点差不可计算时跳过）
	if !spreadUnavailable && in.SpreadTicks != nil && *in.SpreadTicks > in.Thresholds.MaxSpreadTicks {
		reasons = append(reasons, ReasonSpreadWide)
	}

	// 门禁 11: ENGINE_DEGRADED
	if in.EngineDegraded {
		reasons = append(reasons, ReasonEngineDegraded)
	}

	return len(reasons) == 0, reasons, metrics
}

// isStale 判断行情是否缺失或过期
// 满足以下任一条件即为 STALE_DATA:
//  1. 尚未收到任何行情块
//  2. 行情年龄超过过期阈值
//  3. 距最近一次行情事件超过心跳超时
func isStale(in Inputs) bool {
	if !in.HasQuote {
		return true
	}
	if in.StalenessMs > in.Thresholds.StaleThresholdMs {
		return true
	}
	if in.LastQuoteEventMonoNs > 0 {
		ageMs := (in.NowMonoNs - in.LastQuoteEventMonoNs) / 1_000_000
		if ageMs > in.Thresholds.FeedHeartbeatTimeoutMs {
			return true
		}
	}
	return false
}

// buildMetrics 构造门禁指标
// 键集合固定；行情缺失时相关值为 nil。
func buildMetrics(in Inputs) map[string]any {
	var staleness any
	if in.HasQuote {
		staleness = in.StalenessMs
	}
	var spread any
	if in.SpreadTicks != nil {
		spread = *in.SpreadTicks
	}
	return map[string]any{
		"staleness_ms":        staleness,
		"spread_ticks":        spread,
		"md_mode":             string(in.Mode),
		"connected":           in.FeedConnected,
		"in_operating_window": in.InOperatingWindow,
		"is_break_window":     in.IsBreakWindow,
		"engine_degraded":     in.EngineDegraded,
		"cycle_ms":            in.CycleMs,
	}
}

// ReasonStrings 将原因码序列转换为字符串序列
// 在快照/日志边界使用；内部始终使用封闭的 Reason 集合。
func ReasonStrings(reasons []Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
