// Package ws 实现通用的 WebSocket L1 行情适配器。
// 消费归一化的单标的 L1 推送（JSON 文本帧），将其映射为内核事件信封。
// 连接退避、心跳、风暴控制与幂等订阅都在本包内完成，引擎不感知。
package ws

import (
	"bytes"
)

// SubscribeRequest 订阅请求
// 按合约标识订阅单一标的；重复订阅由服务端幂等处理。
type SubscribeRequest struct {
	// Op 操作类型，固定为 subscribe
	Op string `json:"op"`
	// ContractKey 合约标识（SYMBOL.YYYYMM）
	ContractKey string `json:"contract_key"`
}

// WireMessage 归一化行情线格式
// type=l1 为行情帧，type=status 为状态帧，type=error 为错误帧。
// 价格与数量为字符串，避免上游精度丢失。
type WireMessage struct {
	// Type 帧类型: l1 | status | error
	Type string `json:"type"`

	// ConID 合约 id（l1 帧）
	ConID int64 `json:"con_id,omitempty"`
	// Bid 买一价（l1 帧，字符串）
	Bid string `json:"bid,omitempty"`
	// Ask 卖一价（l1 帧，字符串）
	Ask string `json:"ask,omitempty"`
	// Last 最新成交价（l1 帧，字符串）
	Last string `json:"last,omitempty"`
	// BidSize 买一量（l1 帧）
	BidSize uint64 `json:"bid_size,omitempty"`
	// AskSize 卖一量（l1 帧）
	AskSize uint64 `json:"ask_size,omitempty"`
	// TsExchMs 交易所事件时间戳（毫秒）
	TsExchMs int64 `json:"ts_exch_ms,omitempty"`

	// Connected 连接状态（status 帧）
	Connected bool `json:"connected,omitempty"`
	// Mode 行情模式: REALTIME | DELAYED | FROZEN | NONE
	Mode string `json:"mode,omitempty"`
	// Reason 状态原因（status 帧）
	Reason string `json:"reason,omitempty"`

	// Code 错误码（error 帧）
	Code int `json:"code,omitempty"`
	// Message 错误描述（error 帧）
	Message string `json:"message,omitempty"`
}

// pongPayload 心跳响应帧
var pongPayload = []byte("pong")

// IsPong 判断是否为心跳响应
func IsPong(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), pongPayload)
}
