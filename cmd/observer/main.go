// Package main 是 Silent Observer 交易内核的入口点。
// 本内核只观察：摄取单一期货标的的 L1 行情，逐周期评估硬门禁，
// 以固定频率发布不可变快照，并追加触发卡审计记录。
//
// 重要：本系统永不下单，输出仅为 allowed 结论与稳定原因码。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"silent-observer/internal/config"
	"silent-observer/internal/core/clock"
	"silent-observer/internal/core/engine"
	"silent-observer/internal/core/gates"
	"silent-observer/internal/core/hub"
	"silent-observer/internal/core/metrics"
	"silent-observer/internal/core/model"
	"silent-observer/internal/core/queue"
	"silent-observer/internal/feed/mock"
	"silent-observer/internal/feed/ws"
	"silent-observer/internal/triggercard"
)

// adapterJoinTimeout 适配器断开的等待上限，超时后继续退出流程
const adapterJoinTimeout = 2 * time.Second

// feedAdapter 行情适配器的统一生命周期
type feedAdapter interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context)
	Close() error
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	clk, err := clock.NewSystemClock()
	if err != nil {
		logger.Error("初始化时钟失败", zap.Error(err))
		os.Exit(1)
	}

	runID := uuid.NewString()
	logger.Info("启动",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("run_id", runID),
		zap.String("contract_key", cfg.Instrument.ContractKey),
		zap.String("config_hash", cfg.Hash()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	session := clock.NewSessionManager(clk, cfg.OperatingStartMin(), cfg.OperatingEndMin())
	inbound := queue.NewInboundQueue(cfg.Queues.InboundCapacity)
	commands := queue.NewCommandQueue(cfg.Queues.CommandCapacity, clk)
	dataHub := hub.New()
	runMetrics := metrics.New()

	eng := engine.New(
		engine.Config{
			Instrument: model.Instrument{
				Symbol:      cfg.Instrument.Symbol,
				ContractKey: cfg.Instrument.ContractKey,
				TickSize:    cfg.Instrument.TickSize,
				ConID:       cfg.Instrument.ConID,
			},
			CycleTargetMs:           cfg.Engine.CycleTargetMs,
			CycleOverrunThresholdMs: cfg.Engine.CycleOverrunThresholdMs,
			Thresholds: gates.Thresholds{
				StaleThresholdMs:       cfg.Gates.StaleThresholdMs,
				FeedHeartbeatTimeoutMs: cfg.Gates.FeedHeartbeatTimeoutMs,
				MaxSpreadTicks:         cfg.Gates.MaxSpreadTicks,
			},
			AppVersion:           cfg.App.Version,
			ConfigHash:           cfg.Hash(),
			MaxRuntime:           time.Duration(cfg.Engine.MaxRuntimeS) * time.Second,
			TriggerLoggerEnabled: cfg.TriggerLog.Enabled,
		},
		runID, clk, session, inbound, commands, dataHub, runMetrics, logger)

	// 行情适配器（mock 或 ws）
	adapter := buildFeedAdapter(cfg, inbound, clk, logger)
	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := adapter.Connect(startCtx); err != nil {
		startCancel()
		logger.Error("行情源连接失败", zap.Error(err))
		os.Exit(1)
	}
	startCancel()
	if wsClient, ok := adapter.(*ws.Client); ok {
		if err := wsClient.Subscribe(); err != nil {
			logger.Error("行情订阅失败", zap.Error(err))
			os.Exit(1)
		}
	}
	go adapter.Run(ctx)

	// 触发卡记录器（独立 goroutine，与引擎周期解耦）
	var cardLogger *triggercard.Logger
	if cfg.TriggerLog.Enabled {
		cardLogger = triggercard.NewLogger(
			triggercard.LoggerConfig{
				Dir:               cfg.TriggerLog.Dir,
				CadenceHz:         cfg.TriggerLog.CadenceHz,
				FlushEveryRecords: cfg.TriggerLog.FlushEveryRecords,
				AppVersion:        cfg.App.Version,
				ConfigHash:        cfg.Hash(),
				BufferSize:        cfg.TriggerLog.BufferSize,
			},
			runID, dataHub, clk, session, logger)
		cardLogger.Start()
	}

	if err := eng.Start(); err != nil {
		logger.Error("引擎启动失败", zap.Error(err))
		os.Exit(1)
	}

	// 等待退出信号或引擎自行结束（max_runtime_s）
	select {
	case <-sigCh:
		logger.Info("收到退出信号，开始优雅关闭")
	case <-eng.Done():
		logger.Info("引擎已结束")
	}

	cancel()
	eng.Stop()
	if cardLogger != nil {
		cardLogger.Stop()
	}

	// 请求适配器断开；超时后继续退出
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = adapter.Close()
	}()
	select {
	case <-done:
	case <-time.After(adapterJoinTimeout):
		logger.Warn("适配器断开超时，继续退出")
	}

	logger.Info("关闭完成", zap.String("run_id", runID))
}

// buildFeedAdapter 按配置构建行情适配器
func buildFeedAdapter(cfg *config.Config, inbound *queue.InboundQueue, clk clock.Clock, logger *zap.Logger) feedAdapter {
	if cfg.Feed.Type == config.FeedTypeWS {
		return ws.NewClient(ws.ClientConfig{
			URL:            cfg.Feed.WS.URL,
			ContractKey:    cfg.Instrument.ContractKey,
			PingIntervalMs: cfg.Feed.WS.PingIntervalMs,
			PongTimeoutMs:  cfg.Feed.WS.PongTimeoutMs,
		}, inbound, clk, logger)
	}
	return mock.NewAdapter(mock.Config{
		BasePrice:      cfg.Feed.Mock.BasePrice,
		TickSize:       cfg.Instrument.TickSize,
		SpreadTicks:    cfg.Feed.Mock.SpreadTicks,
		QuoteRateHz:    cfg.Feed.Mock.QuoteRateHz,
		DriftAmplitude: cfg.Feed.Mock.DriftAmplitude,
		DriftPeriodS:   cfg.Feed.Mock.DriftPeriodS,
		ConID:          cfg.Instrument.ConID,
	}, inbound, clk, logger)
}

// newLogger 构建 zap 生产日志器
func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
