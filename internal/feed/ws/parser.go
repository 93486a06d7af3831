package ws

import (
	"encoding/json"
	"fmt"

	"silent-observer/internal/core/clock"
	"silent-observer/internal/core/model"
	"silent-observer/internal/util/fastparse"
)

// Parser 归一化 L1 消息解析器
type Parser struct {
	// clock 时钟（为事件打接收时间戳）
	clock clock.Clock
}

// NewParser 创建解析器
// 参数 clk: 时钟
func NewParser(clk clock.Clock) *Parser {
	return &Parser{clock: clk}
}

// Parse 解析单帧消息为内核事件
// 参数 data: 原始消息字节
// 返回: 0 或 1 个事件（订阅响应等无关帧返回 nil）
func (p *Parser) Parse(data []byte) (model.Event, error) {
	var msg WireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("解析行情消息失败: %w", err)
	}

	monoNs := p.clock.NowMonoNs()
	unixMs := p.clock.NowUnixMs()

	switch msg.Type {
	case "l1":
		ev := model.QuoteEvent{
			TsRecvMonoNs: monoNs,
			TsRecvUnixMs: unixMs,
			ConID:        msg.ConID,
			BidSize:      msg.BidSize,
			AskSize:      msg.AskSize,
			TsExchUnixMs: msg.TsExchMs,
		}
		if msg.Bid != "" {
			ev.Bid = fastparse.MustParseFloat(msg.Bid)
		}
		if msg.Ask != "" {
			ev.Ask = fastparse.MustParseFloat(msg.Ask)
		}
		if msg.Last != "" {
			ev.Last = fastparse.MustParseFloat(msg.Last)
		}
		return ev, nil

	case "status":
		return model.StatusEvent{
			TsRecvMonoNs: monoNs,
			TsRecvUnixMs: unixMs,
			Connected:    msg.Connected,
			Mode:         ParseMode(msg.Mode),
			Reason:       msg.Reason,
		}, nil

	case "error":
		return model.AdapterErrorEvent{
			TsRecvMonoNs: monoNs,
			TsRecvUnixMs: unixMs,
			Code:         msg.Code,
			Message:      msg.Message,
		}, nil
	}

	// 订阅响应或未知帧
	return nil, nil
}

// ParseMode 将线格式的行情模式映射为内核枚举
// 未知值归入 NONE。
func ParseMode(s string) model.MDMode {
	switch s {
	case string(model.MDModeRealtime):
		return model.MDModeRealtime
	case string(model.MDModeDelayed):
		return model.MDModeDelayed
	case string(model.MDModeFrozen):
		return model.MDModeFrozen
	}
	return model.MDModeNone
}
