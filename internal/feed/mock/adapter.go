// Package mock 实现确定性的 L1 行情模拟适配器。
// 围绕基准价做正弦漂移，按固定频率生成 bid/ask/last，
// 与真实适配器发出相同的事件类型，便于无经纪商环境下运行与测试。
package mock

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"silent-observer/internal/core/clock"
	"silent-observer/internal/core/model"
	"silent-observer/internal/core/queue"
)

// Config 模拟适配器配置
type Config struct {
	// BasePrice 基准中间价（如 MNQ 的 18500.0）
	BasePrice float64
	// TickSize 最小价格变动单位
	TickSize float64
	// SpreadTicks 固定点差（tick 数）
	SpreadTicks int64
	// QuoteRateHz 行情生成频率（Hz；<=0 使用 10）
	QuoteRateHz float64
	// DriftAmplitude 价格漂移振幅（点）
	DriftAmplitude float64
	// DriftPeriodS 价格漂移周期（秒；<=0 使用 60）
	DriftPeriodS float64
	// ConID 模拟合约 id（<=0 使用 999999）
	ConID int64
	// SizeLots 模拟挂单量
	SizeLots uint64
}

// Adapter 模拟 L1 适配器
// 生命周期: Connect → Run（后台循环）→ Close。
// 只构造归一化事件并非阻塞推入队列，绝不触碰引擎状态。
type Adapter struct {
	// cfg 配置
	cfg Config
	// inbound 事件队列
	inbound *queue.InboundQueue
	// clock 时钟
	clock clock.Clock
	// logger 日志记录器
	logger *zap.Logger

	// connected 连接状态
	connected atomic.Bool
	// startMonoNs 连接时的单调时钟读数（漂移相位基准）
	startMonoNs int64
	// dropLogged 队列满丢弃是否已记录（采样，避免刷屏）
	dropLogged atomic.Bool
}

// NewAdapter 创建模拟适配器
// 参数 cfg: 配置
// 参数 inbound: 入站事件队列
// 参数 clk: 时钟
// 参数 logger: 日志记录器
func NewAdapter(cfg Config, inbound *queue.InboundQueue, clk clock.Clock, logger *zap.Logger) *Adapter {
	if cfg.QuoteRateHz <= 0 {
		cfg.QuoteRateHz = 10
	}
	if cfg.DriftPeriodS <= 0 {
		cfg.DriftPeriodS = 60
	}
	if cfg.ConID <= 0 {
		cfg.ConID = 999999
	}
	if cfg.SizeLots == 0 {
		cfg.SizeLots = 10
	}
	return &Adapter{
		cfg:     cfg,
		inbound: inbound,
		clock:   clk,
		logger:  logger.Named("mockfeed"),
	}
}

// Connect 模拟连接（总是成功）
// 发出已连接状态事件与携带合约 id 的初始行情事件。
func (a *Adapter) Connect(_ context.Context) error {
	a.connected.Store(true)
	a.startMonoNs = a.clock.NowMonoNs()

	a.emitStatus(true, model.MDModeRealtime, "MOCK_CONNECTED")

	// 初始行情只携带合约 id，价格字段由首个生成的行情补齐
	initial := model.QuoteEvent{
		TsRecvMonoNs: a.clock.NowMonoNs(),
		TsRecvUnixMs: a.clock.NowUnixMs(),
		ConID:        a.cfg.ConID,
	}
	if err := a.inbound.Push(initial); err != nil {
		a.logger.Warn("推入初始行情失败", zap.Error(err))
	}

	a.logger.Info("模拟适配器已连接",
		zap.Float64("base_price", a.cfg.BasePrice),
		zap.Int64("spread_ticks", a.cfg.SpreadTicks),
		zap.Float64("quote_rate_hz", a.cfg.QuoteRateHz))
	return nil
}

// Run 启动行情生成循环（阻塞，通常在独立 goroutine 运行）
// 参数 ctx: 取消上下文
func (a *Adapter) Run(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / a.cfg.QuoteRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.connected.Load() {
				a.emitQuote()
			}
		}
	}
}

// Close 断开连接并发出断开状态事件
func (a *Adapter) Close() error {
	if !a.connected.Swap(false) {
		return nil
	}
	a.emitStatus(false, model.MDModeNone, "MOCK_DISCONNECTED")
	a.logger.Info("模拟适配器已断开")
	return nil
}

// emitQuote 生成并推入一条确定性行情
// 中间价 = base + amplitude * sin(2π * elapsed / period)，按 tick 取整。
func (a *Adapter) emitQuote() {
	elapsedS := float64(a.clock.NowMonoNs()-a.startMonoNs) / 1e9
	phase := elapsedS / a.cfg.DriftPeriodS * 2 * math.Pi
	mid := a.cfg.BasePrice + a.cfg.DriftAmplitude*math.Sin(phase)

	halfSpread := float64(a.cfg.SpreadTicks) * a.cfg.TickSize / 2
	bid := roundToTick(mid-halfSpread, a.cfg.TickSize)
	ask := roundToTick(mid+halfSpread, a.cfg.TickSize)
	if ask <= bid {
		ask = bid + a.cfg.TickSize
	}
	last := roundToTick(mid, a.cfg.TickSize)

	nowUnixMs := a.clock.NowUnixMs()
	ev := model.QuoteEvent{
		TsRecvMonoNs: a.clock.NowMonoNs(),
		TsRecvUnixMs: nowUnixMs,
		ConID:        a.cfg.ConID,
		Bid:          bid,
		Ask:          ask,
		Last:         last,
		BidSize:      a.cfg.SizeLots,
		AskSize:      a.cfg.SizeLots,
		TsExchUnixMs: nowUnixMs,
	}

	if err := a.inbound.Push(ev); err != nil {
		// 压力下行情允许丢失；只在首次丢弃时记录
		if a.dropLogged.CompareAndSwap(false, true) {
			a.logger.Warn("行情队列已满，开始丢弃", zap.Error(err))
		}
		return
	}
	a.dropLogged.Store(false)
}

// emitStatus 推入状态事件
// 状态事件优先保留：队列满时重试一次后才放弃。
func (a *Adapter) emitStatus(connected bool, mode model.MDMode, reason string) {
	ev := model.StatusEvent{
		TsRecvMonoNs: a.clock.NowMonoNs(),
		TsRecvUnixMs: a.clock.NowUnixMs(),
		Connected:    connected,
		Mode:         mode,
		Reason:       reason,
	}
	if err := a.inbound.Push(ev); err != nil {
		if err := a.inbound.Push(ev); err != nil {
			a.logger.Warn("推入状态事件失败", zap.Error(err), zap.String("reason", reason))
		}
	}
}

// roundToTick 将价格对齐到最小变动单位
func roundToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	return math.Round(px/tick) * tick
}
