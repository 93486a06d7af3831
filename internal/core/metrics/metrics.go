// Package metrics 维护运行期计数器与关停摘要。
// 计数器由引擎在周期内更新，摘要在关停时组装输出。
package metrics

import (
	"sync/atomic"

	"silent-observer/internal/stats/cycletime"
)

// RunMetrics 运行期指标
// 引擎为唯一写者；其他线程可并发读取。
type RunMetrics struct {
	// reconnectCount 行情源重连次数（false→true 转换）
	reconnectCount atomic.Uint64
	// stalenessEventsCount 出现 STALE_DATA 的周期数
	stalenessEventsCount atomic.Uint64
	// quotesReceivedCount 累计收到的行情事件数
	quotesReceivedCount atomic.Uint64
	// cycleCount 累计周期数
	cycleCount atomic.Uint64
	// maxCycleTimeUs 周期耗时最大值（微秒，保留精度的整数表示）
	maxCycleTimeUs atomic.Int64
}

// New 创建运行期指标
func New() *RunMetrics {
	return &RunMetrics{}
}

// IncReconnect 记录一次重连
func (m *RunMetrics) IncReconnect() {
	m.reconnectCount.Add(1)
}

// IncStalenessEvent 记录一个出现 STALE_DATA 的周期
func (m *RunMetrics) IncStalenessEvent() {
	m.stalenessEventsCount.Add(1)
}

// AddQuotes 累加收到的行情事件数
// 参数 n: 本周期新收到的行情事件数
func (m *RunMetrics) AddQuotes(n uint64) {
	if n > 0 {
		m.quotesReceivedCount.Add(n)
	}
}

// IncCycle 累加周期数
func (m *RunMetrics) IncCycle() {
	m.cycleCount.Add(1)
}

// ObserveCycleTime 更新周期耗时最大值
// 参数 elapsedNs: 周期耗时（纳秒）
func (m *RunMetrics) ObserveCycleTime(elapsedNs int64) {
	us := elapsedNs / 1_000
	for {
		cur := m.maxCycleTimeUs.Load()
		if us <= cur {
			return
		}
		if m.maxCycleTimeUs.CompareAndSwap(cur, us) {
			return
		}
	}
}

// ReconnectCount 行情源重连次数
func (m *RunMetrics) ReconnectCount() uint64 { return m.reconnectCount.Load() }

// StalenessEventsCount 出现 STALE_DATA 的周期数
func (m *RunMetrics) StalenessEventsCount() uint64 { return m.stalenessEventsCount.Load() }

// QuotesReceivedCount 累计收到的行情事件数
func (m *RunMetrics) QuotesReceivedCount() uint64 { return m.quotesReceivedCount.Load() }

// CycleCount 累计周期数
func (m *RunMetrics) CycleCount() uint64 { return m.cycleCount.Load() }

// MaxCycleTimeMs 周期耗时最大值（毫秒）
func (m *RunMetrics) MaxCycleTimeMs() float64 {
	return float64(m.maxCycleTimeUs.Load()) / 1_000.0
}

// Summary 关停摘要
// 进程退出前组装并输出，便于离线复盘。
type Summary struct {
	// RunID 本次运行的唯一标识
	RunID string `json:"run_id"`
	// RunStartTsUnixMs 运行起始墙钟时间（毫秒）
	RunStartTsUnixMs int64 `json:"run_start_ts_unix_ms"`
	// RunEndTsUnixMs 运行结束墙钟时间（毫秒）
	RunEndTsUnixMs int64 `json:"run_end_ts_unix_ms"`
	// UptimeS 运行时长（秒）
	UptimeS float64 `json:"uptime_s"`
	// ReconnectCount 行情源重连次数
	ReconnectCount uint64 `json:"reconnect_count"`
	// StalenessEventsCount 出现 STALE_DATA 的周期数
	StalenessEventsCount uint64 `json:"staleness_events_count"`
	// QuotesReceivedCount 累计收到的行情事件数
	QuotesReceivedCount uint64 `json:"quotes_received_count"`
	// CycleCount 累计周期数
	CycleCount uint64 `json:"cycle_count"`
	// MaxCycleTimeMs 周期耗时最大值（毫秒）
	MaxCycleTimeMs float64 `json:"max_cycle_time_ms"`
	// CycleTime 周期耗时分位统计
	CycleTime cycletime.Stats `json:"cycle_time"`
	// TriggerLoggerEnabled 触发卡记录器是否启用
	TriggerLoggerEnabled bool `json:"trigger_logger_enabled"`
}

// BuildSummary 组装关停摘要
// 参数 runID: 运行标识
// 参数 startMs/endMs: 起止墙钟时间（毫秒）
// 参数 ct: 周期耗时统计
// 参数 loggerEnabled: 触发卡记录器是否启用
func (m *RunMetrics) BuildSummary(runID string, startMs, endMs int64, ct cycletime.Stats, loggerEnabled bool) Summary {
	return Summary{
		RunID:                runID,
		RunStartTsUnixMs:     startMs,
		RunEndTsUnixMs:       endMs,
		UptimeS:              float64(endMs-startMs) / 1000.0,
		ReconnectCount:       m.ReconnectCount(),
		StalenessEventsCount: m.StalenessEventsCount(),
		QuotesReceivedCount:  m.QuotesReceivedCount(),
		CycleCount:           m.CycleCount(),
		MaxCycleTimeMs:       m.MaxCycleTimeMs(),
		CycleTime:            ct,
		TriggerLoggerEnabled: loggerEnabled,
	}
}
