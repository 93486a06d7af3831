package triggercard

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"silent-observer/internal/core/clock"
	"silent-observer/internal/core/hub"
	"silent-observer/internal/output/jsonl"
)

// DefaultCadenceHz 默认落盘频率（1 Hz），与引擎 10 Hz 周期解耦
const DefaultCadenceHz = 1.0

// DefaultFlushEveryRecords 默认每 N 条记录强制落盘一次
const DefaultFlushEveryRecords = 10

// LoggerConfig 触发卡记录器配置
type LoggerConfig struct {
	// Dir 输出目录
	Dir string
	// CadenceHz 落盘频率（Hz；<=0 使用默认值 1.0）
	CadenceHz float64
	// FlushEveryRecords 每 N 条记录强制落盘（<=0 使用默认值 10）
	FlushEveryRecords int
	// AppVersion 应用版本（写入每条记录）
	AppVersion string
	// ConfigHash 启动配置指纹（写入每条记录）
	ConfigHash string
	// BufferSize 底层 JSONL 写入缓冲大小
	BufferSize int
}

// Logger 触发卡记录器
// 独立后台 goroutine 定频读取 DataHub 最新快照并追加审计记录。
// 日志文件句柄为本记录器独占；写失败只记日志，不影响引擎。
type Logger struct {
	// cfg 配置
	cfg LoggerConfig
	// runID 本次运行标识
	runID string
	// dataHub 快照来源
	dataHub *hub.DataHub
	// clock 时钟
	clock clock.Clock
	// session 时段管理器（决定轮转边界）
	session *clock.SessionManager
	// logger 日志记录器
	logger *zap.Logger

	// writer 当前文件的 JSONL 写入器
	writer *jsonl.Writer
	// currentDate 当前文件对应的交易日（YYYY-MM-DD）
	currentDate string
	// seq 运行内记录序号
	seq uint64
	// sinceSync 距上次落盘的记录数
	sinceSync int

	// stopCh 停止信号
	stopCh chan struct{}
	// doneCh 后台 goroutine 退出通知
	doneCh chan struct{}
	// startOnce / stopOnce 生命周期保护
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewLogger 创建触发卡记录器
// 参数 cfg: 配置
// 参数 runID: 运行标识
// 参数 dataHub: 快照来源
// 参数 clk: 时钟
// 参数 session: 时段管理器
// 参数 logger: 日志记录器
func NewLogger(cfg LoggerConfig, runID string, dataHub *hub.DataHub, clk clock.Clock, session *clock.SessionManager, logger *zap.Logger) *Logger {
	if cfg.CadenceHz <= 0 {
		cfg.CadenceHz = DefaultCadenceHz
	}
	if cfg.FlushEveryRecords <= 0 {
		cfg.FlushEveryRecords = DefaultFlushEveryRecords
	}
	return &Logger{
		cfg:     cfg,
		runID:   runID,
		dataHub: dataHub,
		clock:   clk,
		session: session,
		logger:  logger.Named("triggercard"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start 启动后台定频记录
func (l *Logger) Start() {
	l.startOnce.Do(func() {
		go l.run()
	})
}

// Stop 停止记录并关闭当前文件（会先 flush 落盘）
func (l *Logger) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	<-l.doneCh
}

// Seq 已写出的记录数
func (l *Logger) Seq() uint64 {
	return l.seq
}

func (l *Logger) run() {
	defer close(l.doneCh)
	defer l.closeWriter()

	interval := time.Duration(float64(time.Second) / l.cfg.CadenceHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick 单次落盘：读取最新快照，无快照时跳过
func (l *Logger) tick() {
	snap := l.dataHub.Latest()
	if snap == nil {
		return
	}

	if err := l.rotateIfNeeded(); err != nil {
		l.logger.Warn("轮转触发卡文件失败", zap.Error(err))
		return
	}

	l.seq++
	card := Card{
		SchemaVersion: SchemaVersion,
		AppVersion:    l.cfg.AppVersion,
		ConfigHash:    l.cfg.ConfigHash,
		RunID:         l.runID,
		Seq:           l.seq,
		SnapshotID:    snap.SnapshotID,
		LogTsUnixMs:   l.clock.NowUnixMs(),
		LogTsMonoNs:   l.clock.NowMonoNs(),
		Intent:        string(snap.Controls.Intent),
		Arm:           snap.Controls.Arm,
		Allowed:       snap.Gates.Allowed,
		ReasonCodes:   snap.Gates.ReasonCodes,
		GateMetrics:   snap.Gates.GateMetrics,
		ActionTaken:   ActionNone,
	}

	if err := l.writer.Write(card); err != nil {
		l.logger.Warn("写入触发卡失败", zap.Error(err), zap.Uint64("seq", l.seq))
		return
	}

	l.sinceSync++
	if l.sinceSync >= l.cfg.FlushEveryRecords {
		if err := l.writer.Sync(); err != nil {
			l.logger.Warn("触发卡落盘失败", zap.Error(err))
		}
		l.sinceSync = 0
	}
}

// rotateIfNeeded 交易日变化时轮转到新文件
func (l *Logger) rotateIfNeeded() error {
	date := l.session.SessionDateISO()
	if l.writer != nil && date == l.currentDate {
		return nil
	}

	l.closeWriter()

	path := l.filePath(date)
	w, err := jsonl.NewWriter(path, l.cfg.BufferSize)
	if err != nil {
		return fmt.Errorf("打开触发卡文件失败: %w", err)
	}

	l.writer = w
	l.currentDate = date
	l.logger.Info("触发卡文件已打开", zap.String("path", path))
	return nil
}

// filePath 构造文件路径: triggercard_{YYYYMMDD}_{run_id}.jsonl
func (l *Logger) filePath(dateISO string) string {
	compact := strings.ReplaceAll(dateISO, "-", "")
	name := fmt.Sprintf("triggercard_%s_%s.jsonl", compact, l.runID)
	return filepath.Join(l.cfg.Dir, name)
}

func (l *Logger) closeWriter() {
	if l.writer == nil {
		return
	}
	if err := l.writer.Close(); err != nil {
		l.logger.Warn("关闭触发卡文件失败", zap.Error(err))
	}
	l.writer = nil
}
