package queue

import (
	"sync/atomic"

	"silent-observer/internal/core/clock"
	"silent-observer/internal/core/model"
)

// DefaultCommandCapacity 命令队列默认容量
const DefaultCommandCapacity = 100

// CoalescedBatch 单周期合并后的命令批次
// 每类变体只保留边界前最后一条（last-write-wins）。
type CoalescedBatch struct {
	// HasIntent 本批次是否包含意图变更
	HasIntent bool
	// Intent 合并后的意图（HasIntent 为 true 时有效）
	Intent model.Intent
	// HasArm 本批次是否包含 ARM 变更
	HasArm bool
	// Arm 合并后的 ARM 状态（HasArm 为 true 时有效）
	Arm bool
	// LastCmdID 批次内最大命令 id（0 表示空批次）
	LastCmdID uint64
	// LastCmdTsUnixMs 该命令的墙钟时间（毫秒）
	LastCmdTsUnixMs int64
}

// CommandQueue UI→引擎的有界命令队列
// 生产者：UI 线程；消费者：引擎，仅在周期边界 drain。
// 命令 id 由队列在推入时单调分配。
type CommandQueue struct {
	// ch 命令通道
	ch chan model.Command
	// clock 时钟（为命令打墙钟时间戳）
	clock clock.Clock
	// nextID 命令 id 分配器
	nextID atomic.Uint64
	// closed 是否已关闭
	closed atomic.Bool
}

// NewCommandQueue 创建命令队列
// 参数 capacity: 队列容量（<=0 使用默认值 100）
// 参数 clk: 时钟实现
func NewCommandQueue(capacity int, clk clock.Clock) *CommandQueue {
	if capacity <= 0 {
		capacity = DefaultCommandCapacity
	}
	return &CommandQueue{
		ch:    make(chan model.Command, capacity),
		clock: clk,
	}
}

// PushIntent 推入意图变更命令（非阻塞）
// 返回分配的命令 id；队列满时返回 ErrQueueFull。
func (q *CommandQueue) PushIntent(intent model.Intent) (uint64, error) {
	return q.push(func(id uint64, ts int64) model.Command {
		return model.IntentCommand{CmdID: id, CmdTsUnixMs: ts, Intent: intent}
	})
}

// PushArm 推入 ARM 变更命令（非阻塞）
// 返回分配的命令 id；队列满时返回 ErrQueueFull。
func (q *CommandQueue) PushArm(arm bool) (uint64, error) {
	return q.push(func(id uint64, ts int64) model.Command {
		return model.ArmCommand{CmdID: id, CmdTsUnixMs: ts, Arm: arm}
	})
}

func (q *CommandQueue) push(build func(id uint64, ts int64) model.Command) (uint64, error) {
	if q.closed.Load() {
		return 0, ErrQueueClosed
	}
	id := q.nextID.Add(1)
	cmd := build(id, q.clock.NowUnixMs())
	select {
	case q.ch <- cmd:
		return id, nil
	default:
		return 0, ErrQueueFull
	}
}

// Drain 取出全部待处理命令并按 last-write-wins 合并
// 引擎在周期边界调用；边界扫描之后入队的命令顺延到下一周期。
// 返回: 合并后的批次（空批次 LastCmdID 为 0）
func (q *CommandQueue) Drain() CoalescedBatch {
	var batch CoalescedBatch
	for {
		select {
		case cmd := <-q.ch:
			switch c := cmd.(type) {
			case model.IntentCommand:
				batch.HasIntent = true
				batch.Intent = c.Intent
			case model.ArmCommand:
				batch.HasArm = true
				batch.Arm = c.Arm
			}
			if cmd.ID() > batch.LastCmdID {
				batch.LastCmdID = cmd.ID()
				batch.LastCmdTsUnixMs = cmd.TsUnixMs()
			}
		default:
			return batch
		}
	}
}

// Len 当前队列长度（近似值）
func (q *CommandQueue) Len() int {
	return len(q.ch)
}

// Close 关闭队列，拒绝后续推入
func (q *CommandQueue) Close() {
	q.closed.Store(true)
}
