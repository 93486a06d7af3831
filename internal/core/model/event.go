// Package model 定义内核中使用的核心数据结构。
// 包含入站事件信封、用户命令、快照值对象等核心类型。
package model

// MDMode 行情数据模式
// 由适配器将其原生状态映射为以下四种之一
type MDMode string

const (
	// MDModeRealtime 实时行情
	MDModeRealtime MDMode = "REALTIME"
	// MDModeDelayed 延迟行情
	MDModeDelayed MDMode = "DELAYED"
	// MDModeFrozen 冻结行情（收盘后最后值）
	MDModeFrozen MDMode = "FROZEN"
	// MDModeNone 无行情（未连接或未订阅）
	MDModeNone MDMode = "NONE"
)

// Event 入站事件信封
// 适配器线程构造事件后推入 InboundQueue，入队后不可变。
type Event interface {
	// RecvMonoNs 本机收到事件的单调时钟读数（纳秒）
	RecvMonoNs() int64
	// RecvUnixMs 本机收到事件的墙钟时间（毫秒）
	RecvUnixMs() int64
}

// StatusEvent 连接/行情状态变化事件
// 在连接建立、断开、md_mode 变化或适配器告警时发出
type StatusEvent struct {
	// TsRecvMonoNs 接收时单调时钟读数（纳秒）
	TsRecvMonoNs int64
	// TsRecvUnixMs 接收时墙钟时间（毫秒）
	TsRecvUnixMs int64

	// Connected 是否已连接到行情源
	Connected bool
	// Mode 当前行情模式
	Mode MDMode

	// Reason 可选的状态原因码（如 "MOCK_CONNECTED"）
	Reason string
}

// RecvMonoNs 实现 Event 接口
func (e StatusEvent) RecvMonoNs() int64 { return e.TsRecvMonoNs }

// RecvUnixMs 实现 Event 接口
func (e StatusEvent) RecvUnixMs() int64 { return e.TsRecvUnixMs }

// QuoteEvent L1 行情更新事件（bid/ask/last）
// 仅 L1，无深度与逐笔成交。字段值 <= 0 表示该字段缺失。
type QuoteEvent struct {
	// TsRecvMonoNs 接收时单调时钟读数（纳秒），新鲜度计算的主基准
	TsRecvMonoNs int64
	// TsRecvUnixMs 接收时墙钟时间（毫秒）
	TsRecvUnixMs int64

	// ConID 合约标识（适配器完成合约确认后携带；0 表示未知）
	ConID int64

	// Bid 买一价（0 表示缺失）
	Bid float64
	// Ask 卖一价（0 表示缺失）
	Ask float64
	// Last 最新成交价（0 表示缺失）
	Last float64

	// BidSize 买一量（0 表示缺失）
	BidSize uint64
	// AskSize 卖一量（0 表示缺失）
	AskSize uint64

	// TsExchUnixMs 交易所事件时间戳（毫秒；0 表示不可用）
	TsExchUnixMs int64
}

// RecvMonoNs 实现 Event 接口
func (e QuoteEvent) RecvMonoNs() int64 { return e.TsRecvMonoNs }

// RecvUnixMs 实现 Event 接口
func (e QuoteEvent) RecvUnixMs() int64 { return e.TsRecvUnixMs }

// AdapterErrorEvent 适配器错误事件（非致命告警或上下文）
// 致命错误（如 client id 冲突）直接触发进程退出，不走事件通道。
type AdapterErrorEvent struct {
	// TsRecvMonoNs 接收时单调时钟读数（纳秒）
	TsRecvMonoNs int64
	// TsRecvUnixMs 接收时墙钟时间（毫秒）
	TsRecvUnixMs int64

	// Code 错误码
	Code int
	// Message 错误描述
	Message string
}

// RecvMonoNs 实现 Event 接口
func (e AdapterErrorEvent) RecvMonoNs() int64 { return e.TsRecvMonoNs }

// RecvUnixMs 实现 Event 接口
func (e AdapterErrorEvent) RecvUnixMs() int64 { return e.TsRecvUnixMs }
