// Package config 配置模块测试
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// createValidConfig 构造通过验证的最小配置
func createValidConfig() *Config {
	cfg := &Config{}
	cfg.Instrument.Symbol = "MNQ"
	cfg.Instrument.ContractKey = "MNQ.202603"
	cfg.Instrument.TickSize = 0.25
	cfg.setDefaults()
	return cfg
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

const minimalYAML = `
instrument:
  symbol: MNQ
  contract_key: MNQ.202603
  tick_size: 0.25
`

func TestLoad_MinimalWithDefaults(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}

	if cfg.Engine.CycleTargetMs != 100 {
		t.Fatalf("cycle_target_ms 默认值=%d, want 100", cfg.Engine.CycleTargetMs)
	}
	if cfg.Engine.CycleOverrunThresholdMs != 500 {
		t.Fatalf("cycle_overrun_threshold_ms 默认值=%d, want 500", cfg.Engine.CycleOverrunThresholdMs)
	}
	if cfg.Gates.StaleThresholdMs != 2000 {
		t.Fatalf("stale_threshold_ms 默认值=%d, want 2000", cfg.Gates.StaleThresholdMs)
	}
	if cfg.Gates.FeedHeartbeatTimeoutMs != 5000 {
		t.Fatalf("feed_heartbeat_timeout_ms 默认值=%d, want 5000", cfg.Gates.FeedHeartbeatTimeoutMs)
	}
	if cfg.Gates.MaxSpreadTicks != 8 {
		t.Fatalf("max_spread_ticks 默认值=%d, want 8", cfg.Gates.MaxSpreadTicks)
	}
	if cfg.OperatingStartMin() != 7*60 || cfg.OperatingEndMin() != 16*60 {
		t.Fatalf("运行窗口默认应为 [07:00, 16:00)")
	}
	if cfg.Queues.InboundCapacity != 1000 || cfg.Queues.CommandCapacity != 100 {
		t.Fatalf("队列容量默认值错误")
	}
	if cfg.Feed.Type != FeedTypeMock {
		t.Fatalf("feed.type 默认应为 mock")
	}
	if cfg.TriggerLog.CadenceHz != 1.0 || cfg.TriggerLog.FlushEveryRecords != 10 {
		t.Fatalf("触发卡默认值错误")
	}
	if cfg.Hash() == "" {
		t.Fatalf("加载后应计算配置指纹")
	}
}

func TestLoad_HashStable(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)
	cfg1, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	cfg2, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if cfg1.Hash() != cfg2.Hash() {
		t.Fatalf("同一文件的指纹应一致")
	}
}

func TestValidate_MissingInstrument(t *testing.T) {
	cfg := createValidConfig()
	cfg.Instrument.Symbol = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("缺失标的代码应验证失败")
	}
}

func TestValidate_ContractKeyFormat(t *testing.T) {
	bad := []string{"MNQ", "mnq.202603", "MNQ.2026", "MNQ-202603", "MNQ.20260", ""}
	for _, key := range bad {
		cfg := createValidConfig()
		cfg.Instrument.ContractKey = key
		if err := cfg.Validate(); err == nil {
			t.Fatalf("合约标识 %q 应验证失败", key)
		}
	}

	good := []string{"MNQ.202603", "ES.202612", "MES.202509"}
	for _, key := range good {
		cfg := createValidConfig()
		cfg.Instrument.ContractKey = key
		if err := cfg.Validate(); err != nil {
			t.Fatalf("合约标识 %q 应验证通过: %v", key, err)
		}
	}
}

func TestValidate_WindowOrder(t *testing.T) {
	cfg := createValidConfig()
	cfg.Session.OperatingStart = "16:00"
	cfg.Session.OperatingEnd = "07:00"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("起点晚于终点应验证失败")
	}

	cfg = createValidConfig()
	cfg.Session.OperatingStart = "9:30"
	cfg.Session.OperatingEnd = "16:15"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("HH:MM 窗口应验证通过: %v", err)
	}
	if cfg.OperatingStartMin() != 9*60+30 || cfg.OperatingEndMin() != 16*60+15 {
		t.Fatalf("窗口分钟数解析错误")
	}
}

func TestValidate_FeedWS_RequiresURL(t *testing.T) {
	cfg := createValidConfig()
	cfg.Feed.Type = FeedTypeWS
	cfg.Feed.WS.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ws 行情源缺失 URL 应验证失败")
	}
}

func TestValidate_InvalidFeedType(t *testing.T) {
	cfg := createValidConfig()
	cfg.Feed.Type = "ibkr"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("未知行情源类型应验证失败")
	}
}

// **Feature: silent-observer, Property 6: Config Validation Correctness**
// **Validates: tick_size 与阈值的正数约束**

func TestValidate_TickSize_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tick_size<=0 应验证失败", prop.ForAll(
		func(tick float64) bool {
			cfg := createValidConfig()
			cfg.Instrument.TickSize = tick
			return cfg.Validate() != nil
		},
		gen.Float64Range(-1000, 0),
	))

	properties.Property("tick_size>0 应验证通过", prop.ForAll(
		func(tick float64) bool {
			cfg := createValidConfig()
			cfg.Instrument.TickSize = tick
			return cfg.Validate() == nil
		},
		gen.Float64Range(0.0001, 100),
	))

	properties.Property("门禁阈值必须为正数", prop.ForAll(
		func(v int64) bool {
			cfg := createValidConfig()
			cfg.Gates.StaleThresholdMs = v
			return cfg.Validate() != nil
		},
		gen.Int64Range(-100000, 0),
	))

	properties.TestingRun(t)
}
