// Package hub DataHub 原子发布测试
package hub

import (
	"sync"
	"testing"

	"silent-observer/internal/core/model"
)

func snapshotWithID(id uint64) *model.Snapshot {
	// 所有可校验字段都由 id 派生，便于检测混合读取
	return &model.Snapshot{
		SchemaVersion: model.SchemaVersionSnapshot,
		SnapshotID:    id,
		CycleCount:    id,
		TsUnixMs:      int64(id) * 100,
		TsMonoNs:      int64(id) * 100_000_000,
	}
}

func TestDataHub_NilUntilFirstPublish(t *testing.T) {
	h := New()
	if h.Latest() != nil {
		t.Fatalf("首次发布前 Latest 应返回 nil")
	}
}

func TestDataHub_PublishReplaces(t *testing.T) {
	h := New()
	h.Publish(snapshotWithID(1))
	h.Publish(snapshotWithID(2))

	snap := h.Latest()
	if snap == nil || snap.SnapshotID != 2 {
		t.Fatalf("Latest 应返回最近一次发布")
	}
}

func TestDataHub_PublishNilIgnored(t *testing.T) {
	h := New()
	h.Publish(snapshotWithID(1))
	h.Publish(nil)
	if snap := h.Latest(); snap == nil || snap.SnapshotID != 1 {
		t.Fatalf("nil 发布应被忽略")
	}
}

// TestDataHub_ConcurrentReadersSeeConsistentSnapshot 验证原子性：
// 并发读者绝不会观察到来自两次发布的混合字段，且观察到的序号单调不减。
func TestDataHub_ConcurrentReadersSeeConsistentSnapshot(t *testing.T) {
	h := New()
	h.Publish(snapshotWithID(1))

	const (
		writerCycles = 5000
		readerCount  = 4
	)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errCh := make(chan string, readerCount)

	for r := 0; r < readerCount; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var prevID uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := h.Latest()
				if snap == nil {
					errCh <- "发布后 Latest 返回 nil"
					return
				}
				id := snap.SnapshotID
				if snap.CycleCount != id || snap.TsUnixMs != int64(id)*100 || snap.TsMonoNs != int64(id)*100_000_000 {
					errCh <- "观察到混合字段"
					return
				}
				if id < prevID {
					errCh <- "观察到序号回退"
					return
				}
				prevID = id
			}
		}()
	}

	for i := uint64(2); i <= writerCycles; i++ {
		h.Publish(snapshotWithID(i))
	}
	close(stop)
	wg.Wait()

	select {
	case msg := <-errCh:
		t.Fatalf("%s", msg)
	default:
	}
}
