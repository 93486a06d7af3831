// Package triggercard 实现触发卡审计记录的定频落盘与回读。
// 触发卡引用最近一次发布的快照，追加写入 JSONL 文件；
// 文件保证除可能被截断的末行外，每完整行可独立解析。
package triggercard

// SchemaVersion 触发卡 schema 版本号
// 破坏性变更必须递增后缀
const SchemaVersion = "triggercard.v1"

// ActionNone 本系统永不下单，action_taken 恒为 NONE
const ActionNone = "NONE"

// Card 触发卡记录（schema triggercard.v1）
// 每条记录序列化为单个 JSON 对象加换行。
type Card struct {
	// SchemaVersion schema 版本号，固定为 triggercard.v1
	SchemaVersion string `json:"schema_version"`
	// AppVersion 应用版本
	AppVersion string `json:"app_version"`
	// ConfigHash 启动配置指纹
	ConfigHash string `json:"config_hash"`
	// RunID 本次运行的唯一标识
	RunID string `json:"run_id"`
	// Seq 运行内单调序号（从 1 开始）
	Seq uint64 `json:"seq"`
	// SnapshotID 引用的快照序号
	SnapshotID uint64 `json:"snapshot_id"`
	// LogTsUnixMs 记录时墙钟时间（毫秒）
	LogTsUnixMs int64 `json:"log_ts_unix_ms"`
	// LogTsMonoNs 记录时单调时钟读数（纳秒）
	LogTsMonoNs int64 `json:"log_ts_mono_ns"`
	// Intent 快照中的意图
	Intent string `json:"intent"`
	// Arm 快照中的 ARM 状态
	Arm bool `json:"arm"`
	// Allowed 快照中的门禁结论
	Allowed bool `json:"allowed"`
	// ReasonCodes 快照中的原因码（固定顺序）
	ReasonCodes []string `json:"reason_codes"`
	// GateMetrics 快照中的门禁指标（固定键集合）
	GateMetrics map[string]any `json:"gate_metrics"`
	// ActionTaken 采取的动作，恒为 NONE
	ActionTaken string `json:"action_taken"`
	// ActionID 动作标识，恒为 null
	ActionID *string `json:"action_id"`
}

// requiredFields 回读校验的必需字段
var requiredFields = []string{
	"schema_version",
	"run_id",
	"seq",
	"snapshot_id",
	"log_ts_unix_ms",
	"allowed",
	"reason_codes",
	"action_taken",
}
