package clock

import (
	"time"
)

// 时段阶段常量
const (
	// PhaseOperating 运行窗口内
	PhaseOperating = "OPERATING"
	// PhaseBreak 休市窗口内
	PhaseBreak = "BREAK"
	// PhaseClosed 其余时间
	PhaseClosed = "CLOSED"
)

// 休市窗口常量（本地时间分钟数）
// 期货时段：每日 17:00-18:00 休市，交易日标签在 17:00 滚动。
const (
	breakStartMin = 17 * 60
	breakEndMin   = 18 * 60
)

// SessionManager 交易时段管理器
// 所有判断基于规范时区的本地时间，经由时区感知运算处理 DST。
type SessionManager struct {
	// clock 时钟实现
	clock Clock
	// opStartMin 运行窗口起点（本地时间分钟数，含）
	opStartMin int
	// opEndMin 运行窗口终点（本地时间分钟数，不含）
	opEndMin int
}

// NewSessionManager 创建时段管理器
// 参数 clk: 时钟实现
// 参数 opStartMin: 运行窗口起点（本地分钟数，如 07:00 = 420）
// 参数 opEndMin: 运行窗口终点（本地分钟数，如 16:00 = 960，不含）
func NewSessionManager(clk Clock, opStartMin, opEndMin int) *SessionManager {
	return &SessionManager{
		clock:      clk,
		opStartMin: opStartMin,
		opEndMin:   opEndMin,
	}
}

// minuteOfDay 本地时间对应的分钟数
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// SessionDateISO 计算交易日标签（17:00 本地时间滚动）
// 本地时间 < 17:00 时为当日；>= 17:00 时为次日。
// 使用 AddDate 做日历运算以保持 DST 安全。
// 返回: ISO 日期字符串（YYYY-MM-DD）
func (m *SessionManager) SessionDateISO() string {
	now := m.clock.NowLocal()
	if minuteOfDay(now) >= breakStartMin {
		now = now.AddDate(0, 0, 1)
	}
	return now.Format("2006-01-02")
}

// IsBreakWindow 判断是否处于休市窗口 [17:00, 18:00)
func (m *SessionManager) IsBreakWindow() bool {
	mod := minuteOfDay(m.clock.NowLocal())
	return mod >= breakStartMin && mod < breakEndMin
}

// InOperatingWindow 判断是否处于运行窗口 [opStart, opEnd)
func (m *SessionManager) InOperatingWindow() bool {
	mod := minuteOfDay(m.clock.NowLocal())
	return mod >= m.opStartMin && mod < m.opEndMin
}

// Phase 计算时段阶段
// 休市窗口优先于运行窗口判断。
// 返回: OPERATING | BREAK | CLOSED
func (m *SessionManager) Phase() string {
	if m.IsBreakWindow() {
		return PhaseBreak
	}
	if m.InOperatingWindow() {
		return PhaseOperating
	}
	return PhaseClosed
}
