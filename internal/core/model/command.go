package model

// Intent 方向意图
// 由 UI 通过命令队列设置；FLAT 表示不允许任何方向
type Intent string

const (
	// IntentLong 仅允许多头
	IntentLong Intent = "LONG"
	// IntentShort 仅允许空头
	IntentShort Intent = "SHORT"
	// IntentBoth 双向均允许
	IntentBoth Intent = "BOTH"
	// IntentFlat 不允许任何方向
	IntentFlat Intent = "FLAT"
)

// ValidIntent 判断意图值是否合法
// 参数 v: 待检查的意图值
func ValidIntent(v Intent) bool {
	switch v {
	case IntentLong, IntentShort, IntentBoth, IntentFlat:
		return true
	}
	return false
}

// Command UI→引擎命令信封
// 命令是幂等的；同一周期内仅每类变体的最后一条生效。
type Command interface {
	// ID 单调分配的命令 id
	ID() uint64
	// TsUnixMs 命令入队时的墙钟时间（毫秒）
	TsUnixMs() int64
}

// IntentCommand 设置意图命令
type IntentCommand struct {
	// CmdID 单调分配的命令 id
	CmdID uint64
	// CmdTsUnixMs 命令入队时的墙钟时间（毫秒）
	CmdTsUnixMs int64
	// Intent 目标意图
	Intent Intent
}

// ID 实现 Command 接口
func (c IntentCommand) ID() uint64 { return c.CmdID }

// TsUnixMs 实现 Command 接口
func (c IntentCommand) TsUnixMs() int64 { return c.CmdTsUnixMs }

// ArmCommand 设置 ARM 开关命令
type ArmCommand struct {
	// CmdID 单调分配的命令 id
	CmdID uint64
	// CmdTsUnixMs 命令入队时的墙钟时间（毫秒）
	CmdTsUnixMs int64
	// Arm 目标 ARM 状态
	Arm bool
}

// ID 实现 Command 接口
func (c ArmCommand) ID() uint64 { return c.CmdID }

// TsUnixMs 实现 Command 接口
func (c ArmCommand) TsUnixMs() int64 { return c.CmdTsUnixMs }
