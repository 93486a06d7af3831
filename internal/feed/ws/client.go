package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"silent-observer/internal/core/clock"
	"silent-observer/internal/core/model"
	"silent-observer/internal/core/queue"
	"silent-observer/internal/util/backoff"
)

// ClientConfig WebSocket 行情客户端配置
type ClientConfig struct {
	// URL WebSocket 连接地址
	URL string
	// ContractKey 订阅的合约标识（SYMBOL.YYYYMM）
	ContractKey string
	// PingIntervalMs 心跳间隔（毫秒；<=0 使用 25000）
	PingIntervalMs int
	// PongTimeoutMs 心跳响应超时（毫秒；<=0 使用 10000）
	PongTimeoutMs int
}

// ConnectionMetrics 连接指标
type ConnectionMetrics struct {
	// ReconnectCount 重连次数
	ReconnectCount int64 `json:"reconnect_count"`
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64 `json:"parse_error_count"`
	// MessagesReceived 累计收到的消息数
	MessagesReceived int64 `json:"messages_received"`
	// LastMessageAgeMs 最后消息距今时间（毫秒）
	LastMessageAgeMs int64 `json:"last_message_age_ms"`
}

// Client 通用 WebSocket L1 行情客户端
// 只构造归一化事件并非阻塞推入队列，绝不持有引擎状态或已发布快照。
type Client struct {
	// cfg 客户端配置
	cfg ClientConfig
	// inbound 入站事件队列
	inbound *queue.InboundQueue
	// clock 时钟
	clock clock.Clock
	// logger 日志记录器
	logger *zap.Logger
	// parser 消息解析器
	parser *Parser

	// conn WebSocket 连接
	conn *websocket.Conn
	// connMu 连接锁（gorilla 不允许并发多写者，写入经由本锁串行化）
	connMu sync.Mutex
	// backoff 重连退避
	backoff *backoff.Backoff
	// closed 是否已关闭
	closed int32

	// metrics 连接指标
	metrics ConnectionMetrics
	// metricsMu 指标锁
	metricsMu sync.RWMutex
	// lastMsgMonoNs 最后消息时间（单调纳秒）
	lastMsgMonoNs int64
	// lastPingSentNs 上次发送 ping 的时间（单调纳秒）
	lastPingSentNs int64
	// lastPongRecvNs 上次收到 pong 的时间（单调纳秒）
	lastPongRecvNs int64

	// lastConnected 最近推送给引擎的连接状态
	lastConnected bool
	// parseErrSampleCount 解析错误计数（用于采样日志）
	parseErrSampleCount uint64
	// lastParseErrLogNs 上次解析错误日志时间（单调纳秒）
	lastParseErrLogNs int64
}

// NewClient 创建 WebSocket 行情客户端
// 参数 cfg: 客户端配置
// 参数 inbound: 入站事件队列
// 参数 clk: 时钟
// 参数 logger: 日志记录器
func NewClient(cfg ClientConfig, inbound *queue.InboundQueue, clk clock.Clock, logger *zap.Logger) *Client {
	if cfg.PingIntervalMs <= 0 {
		cfg.PingIntervalMs = 25000
	}
	if cfg.PongTimeoutMs <= 0 {
		cfg.PongTimeoutMs = 10000
	}
	return &Client{
		cfg:     cfg,
		inbound: inbound,
		clock:   clk,
		logger:  logger.Named("wsfeed"),
		parser:  NewParser(clk),
		backoff: backoff.NewDefault(),
	}
}

// Connect 建立 WebSocket 连接
// 参数 ctx: 上下文，用于取消连接
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	header := http.Header{}
	header.Set("User-Agent", "silent-observer/1.0")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("连接行情 WebSocket 失败: %w", err)
	}

	c.conn = conn
	c.backoff.Reset()
	c.pushConnected(true, "WS_CONNECTED")
	c.logger.Info("行情 WebSocket 连接成功", zap.String("url", c.cfg.URL))
	return nil
}

// Subscribe 订阅配置的合约
// 订阅是幂等的：重连后重新发送同一请求。
func (c *Client) Subscribe() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("WebSocket 未连接")
	}

	req := SubscribeRequest{Op: "subscribe", ContractKey: c.cfg.ContractKey}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("序列化订阅请求失败: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("发送订阅请求失败: %w", err)
	}

	c.logger.Info("订阅请求已发送", zap.String("contract_key", c.cfg.ContractKey))
	return nil
}

// Run 启动客户端主循环（阻塞，通常在独立 goroutine 运行）
// 包含读取循环与心跳循环。
func (c *Client) Run(ctx context.Context) {
	go c.heartbeatLoop(ctx)
	c.readLoop(ctx)
}

// readLoop 读取循环
func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.reconnect(ctx)
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}
			c.logger.Warn("读取行情消息失败", zap.Error(err))
			c.incrementReconnectCount()
			c.pushConnected(false, "WS_READ_ERROR")
			c.reconnect(ctx)
			continue
		}

		nowNs := c.clock.NowMonoNs()
		atomic.StoreInt64(&c.lastMsgMonoNs, nowNs)
		c.metricsMu.Lock()
		c.metrics.MessagesReceived++
		c.metricsMu.Unlock()

		if IsPong(data) {
			atomic.StoreInt64(&c.lastPongRecvNs, nowNs)
			continue
		}

		ev, err := c.parser.Parse(data)
		if err != nil {
			c.incrementParseErrorCount()
			c.maybeLogParseError(err)
			continue
		}
		if ev == nil {
			continue
		}

		if err := c.inbound.Push(ev); err != nil {
			// 压力下行情允许丢失；状态事件重试一次
			if _, isStatus := ev.(model.StatusEvent); isStatus {
				if err := c.inbound.Push(ev); err == nil {
					continue
				}
			}
			c.logger.Warn("入站队列已满，丢弃事件", zap.Error(err))
		}
	}
}

// heartbeatLoop 心跳循环
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(c.cfg.PingIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				continue
			}

			pingTime := c.clock.NowMonoNs()
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				c.connMu.Unlock()
				c.logger.Warn("发送 ping 失败", zap.Error(err))
				continue
			}
			atomic.StoreInt64(&c.lastPingSentNs, pingTime)
			c.connMu.Unlock()

			lastPing := atomic.LoadInt64(&c.lastPingSentNs)
			lastPong := atomic.LoadInt64(&c.lastPongRecvNs)
			if lastPing > 0 && lastPong < lastPing {
				if c.clock.NowMonoNs()-lastPing > int64(c.cfg.PongTimeoutMs)*1_000_000 {
					c.logger.Warn("心跳超时，触发重连")
					c.incrementReconnectCount()
					c.pushConnected(false, "WS_HEARTBEAT_TIMEOUT")
					c.closeConn()
				}
			}
		}
	}
}

// reconnect 退避重连并重新订阅
func (c *Client) reconnect(ctx context.Context) {
	c.closeConn()

	delay := c.backoff.Next()
	c.logger.Info("准备重连", zap.Duration("delay", delay), zap.Int("attempt", c.backoff.Attempt()))

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	if err := c.Connect(ctx); err != nil {
		c.logger.Error("重连失败", zap.Error(err))
		return
	}
	if err := c.Subscribe(); err != nil {
		c.logger.Error("重新订阅失败", zap.Error(err))
	}
}

// pushConnected 连接状态变化时推送状态事件
// 断开时行情模式归入 NONE（由适配器负责该映射）。
func (c *Client) pushConnected(connected bool, reason string) {
	if c.lastConnected == connected {
		return
	}
	c.lastConnected = connected

	mode := model.MDModeNone
	ev := model.StatusEvent{
		TsRecvMonoNs: c.clock.NowMonoNs(),
		TsRecvUnixMs: c.clock.NowUnixMs(),
		Connected:    connected,
		Mode:         mode,
		Reason:       reason,
	}
	if err := c.inbound.Push(ev); err != nil {
		if err := c.inbound.Push(ev); err != nil {
			c.logger.Warn("推入状态事件失败", zap.Error(err), zap.String("reason", reason))
		}
	}
}

// closeConn 关闭连接
func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close 关闭客户端
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.pushConnected(false, "WS_CLOSED")
	c.closeConn()
	c.logger.Info("行情客户端已关闭")
	return nil
}

// Metrics 获取连接指标
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	m := c.metrics
	lastMsg := atomic.LoadInt64(&c.lastMsgMonoNs)
	if lastMsg > 0 {
		m.LastMessageAgeMs = (c.clock.NowMonoNs() - lastMsg) / 1_000_000
	}
	return m
}

// incrementReconnectCount 增加重连计数
func (c *Client) incrementReconnectCount() {
	c.metricsMu.Lock()
	c.metrics.ReconnectCount++
	c.metricsMu.Unlock()
}

// incrementParseErrorCount 增加解析错误计数
func (c *Client) incrementParseErrorCount() {
	c.metricsMu.Lock()
	c.metrics.ParseErrorCount++
	c.metricsMu.Unlock()
}

// maybeLogParseError 采样记录解析错误（至多每秒一条）
func (c *Client) maybeLogParseError(err error) {
	c.parseErrSampleCount++
	nowNs := c.clock.NowMonoNs()
	if nowNs-c.lastParseErrLogNs < int64(time.Second) {
		return
	}
	c.lastParseErrLogNs = nowNs
	c.logger.Warn("解析行情消息失败",
		zap.Error(err),
		zap.Uint64("sampled_count", c.parseErrSampleCount))
}
