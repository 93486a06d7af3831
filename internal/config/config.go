// Package config 负责加载和验证 YAML 配置文件。
// 提供应用程序所需的所有配置项，包括标的、周期参数、门禁阈值、
// 时段窗口、行情源与触发卡输出设置。所有配置在进程启动时注入。
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"silent-observer/internal/core/model"
)

// 行情源类型常量
const (
	// FeedTypeMock 确定性模拟行情源
	FeedTypeMock = "mock"
	// FeedTypeWS 通用 WebSocket 行情源
	FeedTypeWS = "ws"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Instrument 标的配置
	Instrument InstrumentConfig `yaml:"instrument"`
	// Engine 周期引擎配置
	Engine EngineConfig `yaml:"engine"`
	// Gates 门禁阈值配置
	Gates GatesConfig `yaml:"gates"`
	// Session 时段窗口配置
	Session SessionConfig `yaml:"session"`
	// Queues 队列容量配置
	Queues QueuesConfig `yaml:"queues"`
	// Feed 行情源配置
	Feed FeedConfig `yaml:"feed"`
	// TriggerLog 触发卡输出配置
	TriggerLog TriggerLogConfig `yaml:"trigger_log"`

	// hash 配置文件内容指纹（加载时计算）
	hash string
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// Version 应用版本（写入快照与触发卡）
	Version string `yaml:"version"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// InstrumentConfig 标的配置
type InstrumentConfig struct {
	// Symbol 标的代码（必填），如 MNQ
	Symbol string `yaml:"symbol"`
	// ContractKey 合约标识（必填），格式 SYMBOL.YYYYMM
	ContractKey string `yaml:"contract_key"`
	// TickSize 最小价格变动单位（必填，> 0）
	TickSize float64 `yaml:"tick_size"`
	// ConID 经纪商合约 id（可选；0 表示待适配器确认）
	ConID int64 `yaml:"con_id"`
}

// EngineConfig 周期引擎配置
type EngineConfig struct {
	// CycleTargetMs 周期目标时长（毫秒）
	CycleTargetMs int64 `yaml:"cycle_target_ms"`
	// CycleOverrunThresholdMs 周期降级阈值（毫秒）
	CycleOverrunThresholdMs int64 `yaml:"cycle_overrun_threshold_ms"`
	// MaxRuntimeS 运行时长上限（秒；0 表示不限）
	MaxRuntimeS int64 `yaml:"max_runtime_s"`
}

// GatesConfig 门禁阈值配置
type GatesConfig struct {
	// StaleThresholdMs 行情过期阈值（毫秒）
	StaleThresholdMs int64 `yaml:"stale_threshold_ms"`
	// FeedHeartbeatTimeoutMs 行情心跳超时（毫秒）
	FeedHeartbeatTimeoutMs int64 `yaml:"feed_heartbeat_timeout_ms"`
	// MaxSpreadTicks 最大允许点差（tick 数）
	MaxSpreadTicks int64 `yaml:"max_spread_ticks"`
}

// SessionConfig 时段窗口配置
type SessionConfig struct {
	// OperatingStart 运行窗口起点（本地时间 HH:MM，含）
	OperatingStart string `yaml:"operating_start"`
	// OperatingEnd 运行窗口终点（本地时间 HH:MM，不含）
	OperatingEnd string `yaml:"operating_end"`
}

// QueuesConfig 队列容量配置
type QueuesConfig struct {
	// InboundCapacity 入站事件队列容量
	InboundCapacity int `yaml:"inbound_capacity"`
	// CommandCapacity 命令队列容量
	CommandCapacity int `yaml:"command_capacity"`
}

// FeedConfig 行情源配置
type FeedConfig struct {
	// Type 行情源类型: mock 或 ws
	Type string `yaml:"type"`
	// WS WebSocket 行情源配置（type=ws 时生效）
	WS FeedWSConfig `yaml:"ws"`
	// Mock 模拟行情源配置（type=mock 时生效）
	Mock FeedMockConfig `yaml:"mock"`
}

// FeedWSConfig WebSocket 行情源配置
type FeedWSConfig struct {
	// URL WebSocket 连接地址
	URL string `yaml:"url"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// PongTimeoutMs 心跳响应超时（毫秒）
	PongTimeoutMs int `yaml:"pong_timeout_ms"`
}

// FeedMockConfig 模拟行情源配置
type FeedMockConfig struct {
	// BasePrice 基准中间价
	BasePrice float64 `yaml:"base_price"`
	// SpreadTicks 固定点差（tick 数）
	SpreadTicks int64 `yaml:"spread_ticks"`
	// QuoteRateHz 行情生成频率（Hz）
	QuoteRateHz float64 `yaml:"quote_rate_hz"`
	// DriftAmplitude 价格漂移振幅（点）
	DriftAmplitude float64 `yaml:"drift_amplitude"`
	// DriftPeriodS 价格漂移周期（秒）
	DriftPeriodS float64 `yaml:"drift_period_s"`
}

// TriggerLogConfig 触发卡输出配置
type TriggerLogConfig struct {
	// Enabled 是否启用触发卡记录器
	Enabled bool `yaml:"enabled"`
	// CadenceHz 落盘频率（Hz）
	CadenceHz float64 `yaml:"cadence_hz"`
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// FlushEveryRecords 每 N 条记录强制落盘
	FlushEveryRecords int `yaml:"flush_every_records"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	sum := sha256.Sum256(data)
	cfg.hash = hex.EncodeToString(sum[:])[:16]

	return &cfg, nil
}

// Hash 配置文件内容指纹（sha256 前缀）
func (c *Config) Hash() string {
	return c.hash
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "silent-observer"
	}
	if c.App.Version == "" {
		c.App.Version = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	// 周期引擎默认值（10 Hz）
	if c.Engine.CycleTargetMs == 0 {
		c.Engine.CycleTargetMs = 100
	}
	if c.Engine.CycleOverrunThresholdMs == 0 {
		c.Engine.CycleOverrunThresholdMs = 500
	}

	// 门禁阈值默认值（权威配置集）
	if c.Gates.StaleThresholdMs == 0 {
		c.Gates.StaleThresholdMs = 2000
	}
	if c.Gates.FeedHeartbeatTimeoutMs == 0 {
		c.Gates.FeedHeartbeatTimeoutMs = 5000
	}
	if c.Gates.MaxSpreadTicks == 0 {
		c.Gates.MaxSpreadTicks = 8
	}

	// 运行窗口默认 07:00-16:00 本地时间
	if c.Session.OperatingStart == "" {
		c.Session.OperatingStart = "07:00"
	}
	if c.Session.OperatingEnd == "" {
		c.Session.OperatingEnd = "16:00"
	}

	// 队列容量默认值
	if c.Queues.InboundCapacity == 0 {
		c.Queues.InboundCapacity = 1000
	}
	if c.Queues.CommandCapacity == 0 {
		c.Queues.CommandCapacity = 100
	}

	// 行情源默认使用模拟源
	if c.Feed.Type == "" {
		c.Feed.Type = FeedTypeMock
	}
	if c.Feed.Mock.BasePrice == 0 {
		c.Feed.Mock.BasePrice = 18500.0
	}
	if c.Feed.Mock.SpreadTicks == 0 {
		c.Feed.Mock.SpreadTicks = 1
	}
	if c.Feed.Mock.QuoteRateHz == 0 {
		c.Feed.Mock.QuoteRateHz = 10
	}
	if c.Feed.Mock.DriftAmplitude == 0 {
		c.Feed.Mock.DriftAmplitude = 5
	}
	if c.Feed.Mock.DriftPeriodS == 0 {
		c.Feed.Mock.DriftPeriodS = 60
	}

	// 触发卡输出默认值
	if c.TriggerLog.CadenceHz == 0 {
		c.TriggerLog.CadenceHz = 1.0
	}
	if c.TriggerLog.Dir == "" {
		c.TriggerLog.Dir = "./logs/triggercards"
	}
	if c.TriggerLog.FlushEveryRecords == 0 {
		c.TriggerLog.FlushEveryRecords = 10
	}
	if c.TriggerLog.BufferSize == 0 {
		c.TriggerLog.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	// 验证标的配置
	if c.Instrument.Symbol == "" {
		errs = append(errs, "instrument.symbol: 标的代码不能为空")
	}
	if c.Instrument.ContractKey == "" {
		errs = append(errs, "instrument.contract_key: 合约标识不能为空")
	} else if !model.ValidContractKey(c.Instrument.ContractKey) {
		errs = append(errs, fmt.Sprintf("instrument.contract_key: 格式必须为 SYMBOL.YYYYMM，当前值: %s", c.Instrument.ContractKey))
	}
	if c.Instrument.TickSize <= 0 {
		errs = append(errs, fmt.Sprintf("instrument.tick_size: 必须为正数，当前值: %f", c.Instrument.TickSize))
	}
	if c.Instrument.ConID < 0 {
		errs = append(errs, "instrument.con_id: 不能为负数")
	}

	// 验证周期参数
	if c.Engine.CycleTargetMs <= 0 {
		errs = append(errs, "engine.cycle_target_ms: 必须为正数")
	}
	if c.Engine.CycleOverrunThresholdMs <= 0 {
		errs = append(errs, "engine.cycle_overrun_threshold_ms: 必须为正数")
	}
	if c.Engine.MaxRuntimeS < 0 {
		errs = append(errs, "engine.max_runtime_s: 不能为负数")
	}

	// 验证门禁阈值
	if c.Gates.StaleThresholdMs <= 0 {
		errs = append(errs, "gates.stale_threshold_ms: 必须为正数")
	}
	if c.Gates.FeedHeartbeatTimeoutMs <= 0 {
		errs = append(errs, "gates.feed_heartbeat_timeout_ms: 必须为正数")
	}
	if c.Gates.MaxSpreadTicks <= 0 {
		errs = append(errs, "gates.max_spread_ticks: 必须为正数")
	}

	// 验证时段窗口
	startMin, err := parseHHMM(c.Session.OperatingStart)
	if err != nil {
		errs = append(errs, fmt.Sprintf("session.operating_start: %v", err))
	}
	endMin, err := parseHHMM(c.Session.OperatingEnd)
	if err != nil {
		errs = append(errs, fmt.Sprintf("session.operating_end: %v", err))
	}
	if startMin >= 0 && endMin >= 0 && startMin >= endMin {
		errs = append(errs, fmt.Sprintf("session: 运行窗口起点必须早于终点（%s >= %s）", c.Session.OperatingStart, c.Session.OperatingEnd))
	}

	// 验证队列容量
	if c.Queues.InboundCapacity <= 0 {
		errs = append(errs, "queues.inbound_capacity: 必须为正数")
	}
	if c.Queues.CommandCapacity <= 0 {
		errs = append(errs, "queues.command_capacity: 必须为正数")
	}

	// 验证行情源配置
	switch c.Feed.Type {
	case FeedTypeMock:
		if c.Feed.Mock.BasePrice <= 0 {
			errs = append(errs, "feed.mock.base_price: 必须为正数")
		}
		if c.Feed.Mock.QuoteRateHz <= 0 {
			errs = append(errs, "feed.mock.quote_rate_hz: 必须为正数")
		}
	case FeedTypeWS:
		if c.Feed.WS.URL == "" {
			errs = append(errs, "feed.ws.url: WebSocket 地址不能为空")
		}
	default:
		errs = append(errs, fmt.Sprintf("feed.type: 无效的行情源类型 '%s'，有效值: mock, ws", c.Feed.Type))
	}

	// 验证触发卡输出
	if c.TriggerLog.CadenceHz <= 0 {
		errs = append(errs, "trigger_log.cadence_hz: 必须为正数")
	}
	if c.TriggerLog.FlushEveryRecords <= 0 {
		errs = append(errs, "trigger_log.flush_every_records: 必须为正数")
	}

	// 验证日志级别
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// OperatingStartMin 运行窗口起点（本地分钟数）
// 应在 Validate 通过后调用。
func (c *Config) OperatingStartMin() int {
	m, _ := parseHHMM(c.Session.OperatingStart)
	return m
}

// OperatingEndMin 运行窗口终点（本地分钟数）
// 应在 Validate 通过后调用。
func (c *Config) OperatingEndMin() int {
	m, _ := parseHHMM(c.Session.OperatingEnd)
	return m
}

// parseHHMM 解析 HH:MM 为当日分钟数
// 返回: 分钟数（解析失败返回 -1 与错误）
func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return -1, fmt.Errorf("时间格式必须为 HH:MM，当前值: %s", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return -1, fmt.Errorf("时间超出范围: %s", s)
	}
	return h*60 + m, nil
}
