// Package triggercard 回读容错测试
package triggercard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func sampleCard(seq uint64) Card {
	return Card{
		SchemaVersion: SchemaVersion,
		AppVersion:    "test",
		ConfigHash:    "deadbeef",
		RunID:         "run-test",
		Seq:           seq,
		SnapshotID:    seq * 7,
		LogTsUnixMs:   int64(seq) * 1000,
		LogTsMonoNs:   int64(seq) * 1_000_000_000,
		Intent:        "LONG",
		Arm:           true,
		Allowed:       false,
		ReasonCodes:   []string{"ARM_OFF"},
		GateMetrics:   map[string]any{"cycle_ms": float64(5)},
		ActionTaken:   ActionNone,
	}
}

func writeLines(t *testing.T, path string, cards []Card, partialTail string) {
	t.Helper()
	var data []byte
	for _, c := range cards {
		b, err := json.Marshal(c)
		if err != nil {
			t.Fatalf("序列化失败: %v", err)
		}
		data = append(data, b...)
		data = append(data, '\n')
	}
	data = append(data, []byte(partialTail)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}
}

func TestReadFile_CompleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.jsonl")
	writeLines(t, path, []Card{sampleCard(1), sampleCard(2), sampleCard(3)}, "")

	res, err := ReadFile(path)
	if err != nil {
		t.Fatalf("回读失败: %v", err)
	}
	if res.Truncated || res.InvalidLines != 0 {
		t.Fatalf("完整文件不应有截断或非法行")
	}
	if len(res.Cards) != 3 {
		t.Fatalf("读回 %d 条, want 3", len(res.Cards))
	}
}

func TestReadFile_TruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.jsonl")
	// 末行在崩溃点被截断：所有之前的记录仍可读出
	writeLines(t, path, []Card{sampleCard(1), sampleCard(2)}, `{"schema_version":"triggercard.v1","run_id":"run-te`)

	res, err := ReadFile(path)
	if err != nil {
		t.Fatalf("截断文件不应视为损坏: %v", err)
	}
	if !res.Truncated {
		t.Fatalf("应检测到截断末行")
	}
	if len(res.Cards) != 2 {
		t.Fatalf("截断前的 %d 条记录应全部读出, want 2", len(res.Cards))
	}
	if res.InvalidLines != 0 {
		t.Fatalf("截断末行不应计入非法行")
	}
}

func TestReadFile_WrongSchemaRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.jsonl")
	bad := sampleCard(1)
	bad.SchemaVersion = "triggercard.v0"
	writeLines(t, path, []Card{bad, sampleCard(2)}, "")

	res, err := ReadFile(path)
	if err != nil {
		t.Fatalf("回读失败: %v", err)
	}
	if len(res.Cards) != 1 || res.InvalidLines != 1 {
		t.Fatalf("错误 schema 的中间行应计为非法行")
	}
}

func TestReadFile_MissingFile(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Fatalf("文件不存在应返回错误")
	}
}

// **Feature: silent-observer, Property 5: Partial Tail Tolerance**
// **Validates: 任意位置截断末行，之前的完整记录都可独立解析**

func TestReadFile_TruncationTolerance_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("截断末行不影响之前的记录", prop.ForAll(
		func(complete int, cut int) bool {
			if complete < 0 {
				complete = 0
			}

			dir, err := os.MkdirTemp("", "triggercard")
			if err != nil {
				return false
			}
			defer os.RemoveAll(dir)
			path := filepath.Join(dir, "cards.jsonl")

			cards := make([]Card, complete)
			for i := range cards {
				cards[i] = sampleCard(uint64(i + 1))
			}

			// 末行取一条完整记录的前缀（任意截断点）
			tail, err := json.Marshal(sampleCard(uint64(complete + 1)))
			if err != nil {
				return false
			}
			cutAt := cut % len(tail)
			if cutAt == 0 {
				cutAt = 1
			}

			var data []byte
			for _, c := range cards {
				b, _ := json.Marshal(c)
				data = append(data, b...)
				data = append(data, '\n')
			}
			data = append(data, tail[:cutAt]...)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return false
			}

			res, err := ReadFile(path)
			if err != nil {
				return false
			}
			if len(res.Cards) != complete {
				return false
			}
			for i, c := range res.Cards {
				if c.Seq != uint64(i+1) || c.SchemaVersion != SchemaVersion {
					return false
				}
			}
			return res.Truncated
		},
		gen.IntRange(0, 20),
		gen.IntRange(1, 10_000),
	))

	properties.TestingRun(t)
}
