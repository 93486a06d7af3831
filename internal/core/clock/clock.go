// Package clock 提供内核的规范时间语义。
// 墙钟与单调时钟分离：所有年龄/新鲜度计算只使用单调时钟，
// 时段判断使用带时区的本地时间（DST 安全）。
package clock

import (
	"fmt"
	"sync"
	"time"

	"silent-observer/internal/util/timeutil"
)

// DefaultTimezone 规范本地时区
const DefaultTimezone = "America/Toronto"

// Clock 时钟抽象
// 生产实现使用系统时间，测试实现可注入冻结时间以获得确定性。
type Clock interface {
	// NowUnixMs 当前墙钟时间（Unix 毫秒）
	NowUnixMs() int64
	// NowMonoNs 当前单调时钟读数（纳秒），进程内严格非递减
	NowMonoNs() int64
	// NowLocal 当前规范时区的本地时间
	NowLocal() time.Time
}

// SystemClock 真实系统时钟
type SystemClock struct {
	// loc 规范本地时区
	loc *time.Location
}

// NewSystemClock 创建系统时钟
// 加载规范时区（America/Toronto），加载失败返回错误。
func NewSystemClock() (*SystemClock, error) {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区 %s 失败: %w", DefaultTimezone, err)
	}
	return &SystemClock{loc: loc}, nil
}

// NowUnixMs 当前墙钟时间（Unix 毫秒）
func (c *SystemClock) NowUnixMs() int64 {
	return timeutil.NowMs()
}

// NowMonoNs 当前单调时钟读数（纳秒）
func (c *SystemClock) NowMonoNs() int64 {
	return timeutil.MonoNowNs()
}

// NowLocal 当前规范时区的本地时间
func (c *SystemClock) NowLocal() time.Time {
	return time.Now().In(c.loc)
}

// FrozenClock 冻结时钟（测试用）
// 时间只在调用 Advance/Set 时前进，保证测试确定性。
type FrozenClock struct {
	mu sync.Mutex

	// unixMs 当前墙钟时间（毫秒）
	unixMs int64
	// monoNs 当前单调时钟读数（纳秒）
	monoNs int64
	// local 当前本地时间
	local time.Time
}

// NewFrozenClock 创建冻结时钟
// 参数 local: 初始本地时间（应携带目标时区）
func NewFrozenClock(local time.Time) *FrozenClock {
	return &FrozenClock{
		unixMs: local.UnixMilli(),
		monoNs: 0,
		local:  local,
	}
}

// NowUnixMs 当前墙钟时间（Unix 毫秒）
func (c *FrozenClock) NowUnixMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unixMs
}

// NowMonoNs 当前单调时钟读数（纳秒）
func (c *FrozenClock) NowMonoNs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monoNs
}

// NowLocal 当前本地时间
func (c *FrozenClock) NowLocal() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// Advance 同步推进墙钟与单调时钟
// 参数 d: 推进量
func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unixMs += d.Milliseconds()
	c.monoNs += d.Nanoseconds()
	c.local = c.local.Add(d)
}

// SetLocal 设置本地时间（墙钟随之更新，单调时钟不回退）
// 参数 local: 新的本地时间
func (c *FrozenClock) SetLocal(local time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unixMs = local.UnixMilli()
	c.local = local
}
