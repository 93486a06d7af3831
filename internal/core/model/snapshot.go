package model

import (
	"regexp"
)

const (
	// SchemaVersionSnapshot 快照 schema 版本号
	// 破坏性变更必须递增后缀
	SchemaVersionSnapshot = "snapshot.v1"
)

// contractKeyPattern 合约标识格式: SYMBOL.YYYYMM
var contractKeyPattern = regexp.MustCompile(`^[A-Z]+\.\d{6}$`)

// ValidContractKey 判断合约标识是否符合 SYMBOL.YYYYMM 格式
// 参数 key: 合约标识，如 MNQ.202603
func ValidContractKey(key string) bool {
	return contractKeyPattern.MatchString(key)
}

// Instrument 标的信息
type Instrument struct {
	// Symbol 标的代码，如 MNQ
	Symbol string `json:"symbol"`
	// ContractKey 合约标识，格式 SYMBOL.YYYYMM
	ContractKey string `json:"contract_key"`
	// ConID 经纪商合约 id（0 表示尚未确认）
	ConID int64 `json:"con_id,omitempty"`
	// TickSize 最小价格变动单位（必须 > 0）
	TickSize float64 `json:"tick_size"`
}

// Feed 行情源状态
type Feed struct {
	// Connected 是否已连接
	Connected bool `json:"connected"`
	// Mode 行情模式
	Mode MDMode `json:"md_mode"`
	// Degraded 行情降级标志（未连接或非实时）
	Degraded bool `json:"degraded"`
	// StatusReasonCodes 状态原因码（有序）
	StatusReasonCodes []string `json:"status_reason_codes"`
	// LastStatusChangeMonoNs 最近一次状态变化的单调时钟读数（0 表示从未变化）
	LastStatusChangeMonoNs int64 `json:"last_status_change_mono_ns,omitempty"`
}

// Quote 当前 L1 行情块
// 整块存在或整块缺失；块内单个字段值为 0 表示该字段缺失。
type Quote struct {
	// Bid 买一价
	Bid float64 `json:"bid,omitempty"`
	// Ask 卖一价
	Ask float64 `json:"ask,omitempty"`
	// Last 最新成交价
	Last float64 `json:"last,omitempty"`
	// BidSize 买一量
	BidSize uint64 `json:"bid_size,omitempty"`
	// AskSize 卖一量
	AskSize uint64 `json:"ask_size,omitempty"`
	// TsRecvMonoNs 接收时单调时钟读数（纳秒）
	TsRecvMonoNs int64 `json:"ts_recv_mono_ns"`
	// TsRecvUnixMs 接收时墙钟时间（毫秒）
	TsRecvUnixMs int64 `json:"ts_recv_unix_ms"`
	// TsExchUnixMs 交易所事件时间戳（毫秒；0 表示不可用）
	TsExchUnixMs int64 `json:"ts_exch_unix_ms,omitempty"`
	// StalenessMs 行情年龄（毫秒），相对周期起点的单调时钟差，非负
	StalenessMs int64 `json:"staleness_ms"`
	// SpreadTicks 点差（tick 数，向上取整）；nil 表示不可计算
	SpreadTicks *int64 `json:"spread_ticks"`
}

// Session 交易时段状态
type Session struct {
	// InOperatingWindow 是否处于运行窗口
	InOperatingWindow bool `json:"in_operating_window"`
	// IsBreakWindow 是否处于休市窗口
	IsBreakWindow bool `json:"is_break_window"`
	// SessionDateISO 交易日标签（YYYY-MM-DD，17:00 本地时间滚动）
	SessionDateISO string `json:"session_date_iso"`
	// Phase 时段阶段: OPERATING | BREAK | CLOSED
	Phase string `json:"session_phase"`
}

// Controls 用户控制状态
type Controls struct {
	// Intent 当前意图
	Intent Intent `json:"intent"`
	// Arm ARM 开关
	Arm bool `json:"arm"`
	// LastCmdID 最近应用命令的 id（0 表示尚无命令）
	LastCmdID uint64 `json:"last_cmd_id"`
	// LastCmdTsUnixMs 最近应用命令的墙钟时间（毫秒；0 表示尚无命令）
	LastCmdTsUnixMs int64 `json:"last_cmd_ts_unix_ms,omitempty"`
}

// LoopHealth 引擎循环健康状态
type LoopHealth struct {
	// CycleMs 本周期耗时（毫秒）
	CycleMs int64 `json:"cycle_ms"`
	// CycleOverrun 是否超出周期预算
	CycleOverrun bool `json:"cycle_overrun"`
	// EngineDegraded 引擎降级标志（上一周期超过降级阈值或相内异常）
	EngineDegraded bool `json:"engine_degraded"`
	// LastCycleStartMonoNs 本周期起点的单调时钟读数（纳秒）
	LastCycleStartMonoNs int64 `json:"last_cycle_start_mono_ns"`
}

// Gates 硬门禁评估结果
type Gates struct {
	// Allowed 全部门禁通过时为 true
	Allowed bool `json:"allowed"`
	// ReasonCodes 未通过门禁的原因码（固定顺序）
	ReasonCodes []string `json:"reason_codes"`
	// GateMetrics 门禁指标（固定键集合，值可为 nil）
	GateMetrics map[string]any `json:"gate_metrics"`
}

// Liveness 事件活性状态
type Liveness struct {
	// LastAnyEventMonoNs 最近任意事件的单调时钟读数（0 表示从未收到）
	LastAnyEventMonoNs int64 `json:"last_any_event_mono_ns,omitempty"`
	// LastQuoteEventMonoNs 最近行情事件的单调时钟读数（0 表示从未收到）
	LastQuoteEventMonoNs int64 `json:"last_quote_event_mono_ns,omitempty"`
	// QuotesReceivedCount 累计收到的行情事件数
	QuotesReceivedCount uint64 `json:"quotes_received_count"`
}

// Snapshot 引擎状态的不可变快照
// 由引擎（唯一写者）每周期构造并通过 DataHub 原子发布。
// 发布后不得修改；读者必须将其视为只读。
type Snapshot struct {
	// SchemaVersion schema 版本号，固定为 snapshot.v1
	SchemaVersion string `json:"schema_version"`
	// AppVersion 应用版本
	AppVersion string `json:"app_version"`
	// ConfigHash 启动配置指纹
	ConfigHash string `json:"config_hash"`
	// RunID 本次运行的唯一标识
	RunID string `json:"run_id"`
	// RunStartTsUnixMs 运行起始墙钟时间（毫秒）
	RunStartTsUnixMs int64 `json:"run_start_ts_unix_ms"`

	// SnapshotID 快照序号（从 1 开始严格递增，无空洞）
	SnapshotID uint64 `json:"snapshot_id"`
	// CycleCount 累计周期数
	CycleCount uint64 `json:"cycle_count"`
	// TsUnixMs 快照构造时墙钟时间（毫秒）
	TsUnixMs int64 `json:"ts_unix_ms"`
	// TsMonoNs 快照构造时单调时钟读数（纳秒）
	TsMonoNs int64 `json:"ts_mono_ns"`

	// Instrument 标的信息
	Instrument Instrument `json:"instrument"`
	// Feed 行情源状态
	Feed Feed `json:"feed"`
	// Liveness 事件活性状态
	Liveness Liveness `json:"liveness"`
	// Quote 当前行情块（nil 表示尚未收到任何行情）
	Quote *Quote `json:"quote"`
	// Session 交易时段状态
	Session Session `json:"session"`
	// Controls 用户控制状态
	Controls Controls `json:"controls"`
	// Loop 引擎循环健康状态
	Loop LoopHealth `json:"loop"`
	// Gates 硬门禁评估结果
	Gates Gates `json:"gates"`

	// Ready 镜像字段，恒等于 Gates.Allowed
	Ready bool `json:"ready"`
	// ReadyReasons 镜像字段，恒等于 Gates.ReasonCodes
	ReadyReasons []string `json:"ready_reasons"`
}

// HasQuote 判断快照是否携带行情块
func (s *Snapshot) HasQuote() bool {
	return s.Quote != nil
}
