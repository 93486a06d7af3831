// Package hub 维护最新快照的单槽原子发布。
// 写者唯一（引擎），读者任意（UI、TriggerLogger、测试）。
package hub

import (
	"sync"

	"silent-observer/internal/core/model"
)

// DataHub 最新快照槽位
// Publish 整体替换槽位；Latest 返回完整的最近一次发布，
// 并发读者绝不会观察到来自两次发布的混合字段。
// 返回的指针应视为只读。
type DataHub struct {
	// mu 槽位读写锁
	mu sync.RWMutex
	// latest 最近一次发布的快照（nil 表示尚未发布）
	latest *model.Snapshot
}

// New 创建空的 DataHub
func New() *DataHub {
	return &DataHub{}
}

// Publish 原子替换槽位（仅引擎调用）
// 参数 snap: 已构造完成的不可变快照
func (h *DataHub) Publish(snap *model.Snapshot) {
	if snap == nil {
		return
	}
	h.mu.Lock()
	h.latest = snap
	h.mu.Unlock()
}

// Latest 获取最近一次发布的快照
// 首次发布前返回 nil。返回值为只读，读者不得修改。
func (h *DataHub) Latest() *model.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}
