// Package engine 实现单写者周期循环。
// 引擎线程独占快照背后的全部可变状态：排空入站事件、在周期边界
// 应用合并后的命令、更新活性、评估门禁、构造并原子发布快照。
// 适配器线程与 UI 线程只通过有界队列与引擎通信。
package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"silent-observer/internal/core/clock"
	"silent-observer/internal/core/gates"
	"silent-observer/internal/core/hub"
	"silent-observer/internal/core/metrics"
	"silent-observer/internal/core/model"
	"silent-observer/internal/core/queue"
	"silent-observer/internal/stats/cycletime"
)

// 引擎状态机: Idle → Running → Stopping → Stopped，不允许重入
const (
	stateIdle int32 = iota
	stateRunning
	stateStopping
	stateStopped
)

var (
	// ErrAlreadyStarted 引擎已启动（不允许重入）
	ErrAlreadyStarted = errors.New("engine already started")
)

// 默认周期参数
const (
	// DefaultCycleTargetMs 周期目标时长（毫秒，10 Hz）
	DefaultCycleTargetMs = 100
	// DefaultCycleOverrunThresholdMs 周期降级阈值（毫秒）
	DefaultCycleOverrunThresholdMs = 500
	// DefaultDrainMax 单周期事件排空上限（防饿死）
	DefaultDrainMax = 1024
)

// Config 引擎配置
type Config struct {
	// Instrument 标的信息（ConID 可为 0，待适配器确认后采纳）
	Instrument model.Instrument
	// CycleTargetMs 周期目标时长（毫秒；<=0 使用默认值 100）
	CycleTargetMs int64
	// CycleOverrunThresholdMs 周期降级阈值（毫秒；<=0 使用默认值 500）
	CycleOverrunThresholdMs int64
	// DrainMax 单周期事件排空上限（<1024 时提升到 1024）
	DrainMax int
	// Thresholds 门禁阈值
	Thresholds gates.Thresholds
	// AppVersion 应用版本（写入快照）
	AppVersion string
	// ConfigHash 启动配置指纹（写入快照）
	ConfigHash string
	// MaxRuntime 运行时长上限（0 表示不限）
	MaxRuntime time.Duration
	// TriggerLoggerEnabled 触发卡记录器是否启用（仅进入摘要）
	TriggerLoggerEnabled bool
}

// Engine 单写者周期引擎
// 所有可变状态字段仅由引擎 goroutine 访问。
type Engine struct {
	// cfg 引擎配置
	cfg Config
	// runID 本次运行的唯一标识
	runID string
	// clock 时钟
	clock clock.Clock
	// session 时段管理器
	session *clock.SessionManager
	// inbound 入站事件队列
	inbound *queue.InboundQueue
	// commands 命令队列
	commands *queue.CommandQueue
	// dataHub 快照发布槽
	dataHub *hub.DataHub
	// metrics 运行期指标
	metrics *metrics.RunMetrics
	// cycleTracker 周期耗时统计
	cycleTracker *cycletime.Tracker
	// logger 日志记录器
	logger *zap.Logger

	// state 状态机
	state atomic.Int32
	// stopCh 停止信号
	stopCh chan struct{}
	// doneCh 循环退出通知
	doneCh chan struct{}
	// stopOnce 停止保护
	stopOnce sync.Once

	// runStartTsUnixMs 运行起始墙钟时间（毫秒）
	runStartTsUnixMs int64
	// runStartMonoNs 运行起始单调时钟读数（纳秒）
	runStartMonoNs int64
	// runEndTsUnixMs 运行结束墙钟时间（毫秒，循环退出后写入）
	runEndTsUnixMs atomic.Int64

	// ---- 以下状态仅引擎 goroutine 访问 ----

	// snapshotID 快照序号（发布前自增，从 1 开始）
	snapshotID uint64
	// cycleCount 累计周期数
	cycleCount uint64
	// lastCycleStartMonoNs 上一周期起点（用于时钟回退检测）
	lastCycleStartMonoNs int64
	// prevCycleMs 上一周期耗时（毫秒）
	prevCycleMs int64

	// intent 当前意图
	intent model.Intent
	// arm ARM 开关
	arm bool
	// lastCmdID 最近应用命令的 id
	lastCmdID uint64
	// lastCmdTsUnixMs 最近应用命令的墙钟时间（毫秒）
	lastCmdTsUnixMs int64

	// feedConnected 行情源连接状态
	feedConnected bool
	// mdMode 行情模式
	mdMode model.MDMode
	// lastStatusReason 最近一次状态/错误原因码
	lastStatusReason string
	// lastStatusChangeMonoNs 最近状态变化时间（单调纳秒）
	lastStatusChangeMonoNs int64

	// conID 已确认的合约 id（0 表示未确认）
	conID int64

	// hasQuote 是否已收到行情块
	hasQuote bool
	// quote 当前行情块（hasQuote 为 true 时有效）
	quote model.Quote

	// lastAnyEventMonoNs 最近任意事件时间（单调纳秒）
	lastAnyEventMonoNs int64
	// lastQuoteEventMonoNs 最近行情事件时间（单调纳秒）
	lastQuoteEventMonoNs int64
	// quotesReceived 累计收到的行情事件数
	quotesReceived uint64

	// phaseFaults 本周期内被捕获的相内异常原因码
	phaseFaults []string
}

// New 创建引擎
// 参数 cfg: 引擎配置
// 参数 runID: 运行标识
// 参数 clk: 时钟
// 参数 session: 时段管理器
// 参数 inbound: 入站事件队列
// 参数 commands: 命令队列
// 参数 dataHub: 快照发布槽
// 参数 m: 运行期指标
// 参数 logger: 日志记录器
func New(
	cfg Config,
	runID string,
	clk clock.Clock,
	session *clock.SessionManager,
	inbound *queue.InboundQueue,
	commands *queue.CommandQueue,
	dataHub *hub.DataHub,
	m *metrics.RunMetrics,
	logger *zap.Logger,
) *Engine {
	if cfg.CycleTargetMs <= 0 {
		cfg.CycleTargetMs = DefaultCycleTargetMs
	}
	if cfg.CycleOverrunThresholdMs <= 0 {
		cfg.CycleOverrunThresholdMs = DefaultCycleOverrunThresholdMs
	}
	if cfg.DrainMax < DefaultDrainMax {
		cfg.DrainMax = DefaultDrainMax
	}
	return &Engine{
		cfg:          cfg,
		runID:        runID,
		clock:        clk,
		session:      session,
		inbound:      inbound,
		commands:     commands,
		dataHub:      dataHub,
		metrics:      m,
		cycleTracker: cycletime.NewTracker(1000),
		logger:       logger.Named("engine"),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		intent:       model.IntentFlat,
		mdMode:       model.MDModeNone,
		conID:        cfg.Instrument.ConID,
	}
}

// Start 启动引擎循环（后台 goroutine）
// 引擎只允许启动一次；重入返回 ErrAlreadyStarted。
func (e *Engine) Start() error {
	if !e.state.CompareAndSwap(stateIdle, stateRunning) {
		return ErrAlreadyStarted
	}
	e.runStartTsUnixMs = e.clock.NowUnixMs()
	e.runStartMonoNs = e.clock.NowMonoNs()
	e.logger.Info("引擎启动",
		zap.String("run_id", e.runID),
		zap.String("contract_key", e.cfg.Instrument.ContractKey),
		zap.Int64("cycle_target_ms", e.cfg.CycleTargetMs))
	go e.run()
	return nil
}

// Stop 请求停止并等待循环退出
// 循环会完成在途周期后返回；周期本身是原子的，没有中途取消。
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.state.CompareAndSwap(stateRunning, stateStopping)
		close(e.stopCh)
	})
	<-e.doneCh
}

// RunID 本次运行的唯一标识
func (e *Engine) RunID() string { return e.runID }

// Done 循环退出通知（达到运行时长上限或 Stop 后关闭）
func (e *Engine) Done() <-chan struct{} { return e.doneCh }

// RunStartTsUnixMs 运行起始墙钟时间（毫秒）
func (e *Engine) RunStartTsUnixMs() int64 { return e.runStartTsUnixMs }

// Summary 组装当前指标的关停摘要
func (e *Engine) Summary() metrics.Summary {
	endMs := e.runEndTsUnixMs.Load()
	if endMs == 0 {
		endMs = e.clock.NowUnixMs()
	}
	return e.metrics.BuildSummary(
		e.runID, e.runStartTsUnixMs, endMs, e.cycleTracker.Stats(), e.cfg.TriggerLoggerEnabled)
}

// run 引擎主循环
// 引擎绝不从循环中抛出：相内异常被捕获并降级，
// 仅 Stop、达到运行时长上限或不可恢复的不变量破坏（时钟回退）才会退出。
func (e *Engine) run() {
	defer close(e.doneCh)
	defer e.finish()

	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		elapsedMs, ok := e.runCycle()
		if !ok {
			return
		}

		if e.cfg.MaxRuntime > 0 && e.clock.NowMonoNs()-e.runStartMonoNs >= e.cfg.MaxRuntime.Nanoseconds() {
			e.logger.Info("达到运行时长上限", zap.Duration("max_runtime", e.cfg.MaxRuntime))
			return
		}

		sleepMs := e.cfg.CycleTargetMs - elapsedMs
		if sleepMs > 0 {
			select {
			case <-e.stopCh:
				return
			case <-time.After(time.Duration(sleepMs) * time.Millisecond):
			}
		}
	}
}

// finish 循环退出后的收尾：记录结束时间并输出摘要
func (e *Engine) finish() {
	e.state.Store(stateStopped)
	e.runEndTsUnixMs.Store(e.clock.NowUnixMs())
	s := e.Summary()
	e.logger.Info("运行摘要",
		zap.String("run_id", s.RunID),
		zap.Int64("run_start_ts_unix_ms", s.RunStartTsUnixMs),
		zap.Int64("run_end_ts_unix_ms", s.RunEndTsUnixMs),
		zap.Float64("uptime_s", s.UptimeS),
		zap.Uint64("cycle_count", s.CycleCount),
		zap.Uint64("quotes_received_count", s.QuotesReceivedCount),
		zap.Uint64("reconnect_count", s.ReconnectCount),
		zap.Uint64("staleness_events_count", s.StalenessEventsCount),
		zap.Float64("max_cycle_time_ms", s.MaxCycleTimeMs),
		zap.Float64("cycle_p99_ms", s.CycleTime.P99Ms),
		zap.Bool("trigger_logger_enabled", s.TriggerLoggerEnabled))
}

// runCycle 执行一个完整周期
// 返回: (周期耗时毫秒, 是否继续运行)
func (e *Engine) runCycle() (int64, bool) {
	// 阶段 1: 周期起点
	cycleStartMonoNs := e.clock.NowMonoNs()

	// 不可恢复：单调时钟回退
	if cycleStartMonoNs < e.lastCycleStartMonoNs {
		e.logger.Error("单调时钟回退，引擎终止",
			zap.Int64("cycle_start_mono_ns", cycleStartMonoNs),
			zap.Int64("last_cycle_start_mono_ns", e.lastCycleStartMonoNs))
		return 0, false
	}
	e.lastCycleStartMonoNs = cycleStartMonoNs

	e.cycleCount++
	e.metrics.IncCycle()
	e.phaseFaults = e.phaseFaults[:0]

	// 阶段 2: 排空入站事件（有界，防饿死）
	e.runPhase("event_drain", func() {
		e.drainEvents()
	})

	// 阶段 3: 周期边界应用合并后的命令
	e.runPhase("command_apply", func() {
		e.applyCommands()
	})

	// 阶段 4-8: 派生、降级检查、门禁、快照构造与发布
	e.runPhase("snapshot_publish", func() {
		e.deriveAndPublish(cycleStartMonoNs)
	})

	// 阶段 9: 指标更新
	elapsedNs := e.clock.NowMonoNs() - cycleStartMonoNs
	elapsedMs := elapsedNs / 1_000_000
	e.cycleTracker.Add(elapsedNs)
	e.metrics.ObserveCycleTime(elapsedNs)
	e.prevCycleMs = elapsedMs

	return elapsedMs, true
}

// runPhase 带异常捕获地执行单个阶段
// 相内 panic 被捕获并记录；周期继续完成，当前周期降级。
func (e *Engine) runPhase(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.phaseFaults = append(e.phaseFaults, fmt.Sprintf("ENGINE_FAULT_%s", name))
			e.logger.Error("引擎阶段异常",
				zap.String("phase", name),
				zap.Any("panic", r))
		}
	}()
	fn()
}

// drainEvents 排空入站事件并更新行情/状态/活性
// 单周期内同类事件 last-wins；排空顺序为推入的 FIFO 顺序。
func (e *Engine) drainEvents() {
	events := e.inbound.Drain(e.cfg.DrainMax)
	var newQuotes uint64

	for _, ev := range events {
		e.lastAnyEventMonoNs = ev.RecvMonoNs()

		switch evt := ev.(type) {
		case model.StatusEvent:
			prevConnected := e.feedConnected
			prevMode := e.mdMode
			e.feedConnected = evt.Connected
			e.mdMode = evt.Mode
			if evt.Reason != "" {
				e.lastStatusReason = evt.Reason
			}
			if evt.Connected != prevConnected || evt.Mode != prevMode {
				e.lastStatusChangeMonoNs = evt.TsRecvMonoNs
			}
			if !prevConnected && evt.Connected {
				e.metrics.IncReconnect()
			}

		case model.QuoteEvent:
			// 同周期内后到者覆盖前者
			e.hasQuote = true
			e.quote = model.Quote{
				Bid:          evt.Bid,
				Ask:          evt.Ask,
				Last:         evt.Last,
				BidSize:      evt.BidSize,
				AskSize:      evt.AskSize,
				TsRecvMonoNs: evt.TsRecvMonoNs,
				TsRecvUnixMs: evt.TsRecvUnixMs,
				TsExchUnixMs: evt.TsExchUnixMs,
			}
			e.lastQuoteEventMonoNs = evt.TsRecvMonoNs
			e.quotesReceived++
			newQuotes++
			if evt.ConID != 0 {
				e.conID = evt.ConID
			}

		case model.AdapterErrorEvent:
			e.lastStatusReason = fmt.Sprintf("ADAPTER_ERROR_%d", evt.Code)
			e.logger.Warn("适配器错误",
				zap.Int("code", evt.Code),
				zap.String("message", evt.Message))
		}
	}

	e.metrics.AddQuotes(newQuotes)
}

// applyCommands 在周期边界应用合并后的命令批次
// 每类变体至多应用一次；边界之后的命令顺延到下一周期。
func (e *Engine) applyCommands() {
	batch := e.commands.Drain()
	if batch.HasIntent && model.ValidIntent(batch.Intent) {
		e.intent = batch.Intent
	}
	if batch.HasArm {
		e.arm = batch.Arm
	}
	if batch.LastCmdID > e.lastCmdID {
		e.lastCmdID = batch.LastCmdID
		e.lastCmdTsUnixMs = batch.LastCmdTsUnixMs
	}
}

// deriveAndPublish 派生、评估门禁并原子发布快照
func (e *Engine) deriveAndPublish(cycleStartMonoNs int64) {
	// 阶段 4: 派生
	var quoteBlock *model.Quote
	var spreadTicks *int64
	if e.hasQuote {
		q := e.quote
		staleness := (cycleStartMonoNs - q.TsRecvMonoNs) / 1_000_000
		if staleness < 0 {
			staleness = 0
		}
		q.StalenessMs = staleness
		if q.Bid > 0 && q.Ask > 0 && q.Ask > q.Bid && e.cfg.Instrument.TickSize > 0 {
			ticks := int64(math.Ceil((q.Ask - q.Bid) / e.cfg.Instrument.TickSize))
			spreadTicks = &ticks
		}
		q.SpreadTicks = spreadTicks
		quoteBlock = &q
	}

	inOperating := e.session.InOperatingWindow()
	isBreak := e.session.IsBreakWindow()
	sessionDate := e.session.SessionDateISO()
	phase := e.session.Phase()

	// 阶段 5: 引擎降级检查（上一周期超阈值，或本周期相内异常）
	engineDegraded := e.prevCycleMs > e.cfg.CycleOverrunThresholdMs || len(e.phaseFaults) > 0

	// 阶段 6: 门禁评估
	var bid, ask float64
	var stalenessMs int64
	if quoteBlock != nil {
		bid = quoteBlock.Bid
		ask = quoteBlock.Ask
		stalenessMs = quoteBlock.StalenessMs
	}
	allowed, reasons, gateMetrics := gates.Evaluate(gates.Inputs{
		Arm:                  e.arm,
		Intent:               e.intent,
		InOperatingWindow:    inOperating,
		IsBreakWindow:        isBreak,
		FeedConnected:        e.feedConnected,
		Mode:                 e.mdMode,
		ConID:                e.conID,
		HasQuote:             quoteBlock != nil,
		Bid:                  bid,
		Ask:                  ask,
		StalenessMs:          stalenessMs,
		LastQuoteEventMonoNs: e.lastQuoteEventMonoNs,
		NowMonoNs:            cycleStartMonoNs,
		SpreadTicks:          spreadTicks,
		EngineDegraded:       engineDegraded,
		CycleMs:              e.prevCycleMs,
		Thresholds:           e.cfg.Thresholds,
	})
	reasonCodes := gates.ReasonStrings(reasons)

	if !allowed {
		for _, r := range reasons {
			if r == gates.ReasonStaleData {
				e.metrics.IncStalenessEvent()
				break
			}
		}
	}

	// 阶段 7: 快照构造
	e.snapshotID++
	instrument := e.cfg.Instrument
	instrument.ConID = e.conID

	cycleMsSoFar := (e.clock.NowMonoNs() - cycleStartMonoNs) / 1_000_000

	snap := &model.Snapshot{
		SchemaVersion:    model.SchemaVersionSnapshot,
		AppVersion:       e.cfg.AppVersion,
		ConfigHash:       e.cfg.ConfigHash,
		RunID:            e.runID,
		RunStartTsUnixMs: e.runStartTsUnixMs,
		SnapshotID:       e.snapshotID,
		CycleCount:       e.cycleCount,
		TsUnixMs:         e.clock.NowUnixMs(),
		TsMonoNs:         e.clock.NowMonoNs(),
		Instrument:       instrument,
		Feed: model.Feed{
			Connected:              e.feedConnected,
			Mode:                   e.mdMode,
			Degraded:               !e.feedConnected || e.mdMode != model.MDModeRealtime,
			StatusReasonCodes:      e.statusReasonCodes(),
			LastStatusChangeMonoNs: e.lastStatusChangeMonoNs,
		},
		Liveness: model.Liveness{
			LastAnyEventMonoNs:   e.lastAnyEventMonoNs,
			LastQuoteEventMonoNs: e.lastQuoteEventMonoNs,
			QuotesReceivedCount:  e.quotesReceived,
		},
		Quote: quoteBlock,
		Session: model.Session{
			InOperatingWindow: inOperating,
			IsBreakWindow:     isBreak,
			SessionDateISO:    sessionDate,
			Phase:             phase,
		},
		Controls: model.Controls{
			Intent:          e.intent,
			Arm:             e.arm,
			LastCmdID:       e.lastCmdID,
			LastCmdTsUnixMs: e.lastCmdTsUnixMs,
		},
		Loop: model.LoopHealth{
			CycleMs:              cycleMsSoFar,
			CycleOverrun:         cycleMsSoFar > e.cfg.CycleTargetMs,
			EngineDegraded:       engineDegraded,
			LastCycleStartMonoNs: cycleStartMonoNs,
		},
		Gates: model.Gates{
			Allowed:     allowed,
			ReasonCodes: reasonCodes,
			GateMetrics: gateMetrics,
		},
		Ready:        allowed,
		ReadyReasons: reasonCodes,
	}

	// 阶段 8: 原子发布
	e.dataHub.Publish(snap)
}

// statusReasonCodes 构造行情源状态原因码（有序）
// 派生码在前，最近一次适配器原因与相内异常码在后。
func (e *Engine) statusReasonCodes() []string {
	codes := make([]string, 0, 4)
	if !e.feedConnected {
		codes = append(codes, string(gates.ReasonFeedDisconnected))
	}
	if e.mdMode != model.MDModeRealtime {
		codes = append(codes, string(gates.ReasonMDNotRealtime))
	}
	if e.lastStatusReason != "" {
		codes = append(codes, e.lastStatusReason)
	}
	codes = append(codes, e.phaseFaults...)
	return codes
}
