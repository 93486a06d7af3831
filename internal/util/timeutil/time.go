// Package timeutil 提供时间相关的工具函数。
// 内核的所有新鲜度/年龄计算都基于单调时钟，避免系统时间跳变造成污染。
package timeutil

import (
	"time"
)

var (
	// baseTime 进程启动基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// MonoNowNs 获取进程内单调时钟读数（纳秒）
// 从进程启动起单调非递减，仅用于时间差计算，不可与 Unix 时间戳混用。
// 返回: 单调纳秒读数
func MonoNowNs() int64 {
	return time.Since(baseTime).Nanoseconds()
}

// NowNano 获取当前时间的纳秒时间戳
// 使用“单调时钟 + 启动时 Unix 时间”组合实现：
// NowNano = baseUnixNs + time.Since(baseTime).Nanoseconds()
// 这样在系统时间跳变（NTP/手动调整）时也能保持时间差的单调性。
// 返回: 当前时间的 Unix 纳秒时间戳
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// NowMs 获取当前时间的毫秒时间戳
// 返回: 当前时间的 Unix 毫秒时间戳
func NowMs() int64 {
	return NowNano() / 1_000_000
}

// NanoToMs 将纳秒时间戳转换为毫秒
// 参数 ns: 纳秒时间戳
// 返回: 毫秒时间戳
func NanoToMs(ns int64) int64 {
	return ns / 1_000_000
}

// MsToNano 将毫秒时间戳转换为纳秒
// 参数 ms: 毫秒时间戳
// 返回: 纳秒时间戳
func MsToNano(ms int64) int64 {
	return ms * 1_000_000
}

// DurationMs 计算两个纳秒时间戳之间的毫秒差
// 参数 startNs: 开始时间（纳秒）
// 参数 endNs: 结束时间（纳秒）
// 返回: 时间差（毫秒，浮点数以保留精度）
func DurationMs(startNs, endNs int64) float64 {
	return float64(endNs-startNs) / 1_000_000.0
}
