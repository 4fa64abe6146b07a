// Package report 持久化模糊测试产出：发现流、复现序列、语料与告警
package report

import (
	"time"

	"movefuzz/pkg/types"
)

// Config 输出配置
type Config struct {
	FindingsPath  string        `yaml:"findings_path"` // JSONL发现流
	CorpusDir     string        `yaml:"corpus_dir"`    // 为空时不保存语料
	SolutionsDir  string        `yaml:"solutions_dir"` // Critical/Major 的复现序列
	WebhookURL    string        `yaml:"webhook_url"`
	AlertThrottle time.Duration `yaml:"alert_throttle"` // 同一oracle两次告警的最小间隔
	AlertSeverity string        `yaml:"alert_severity"` // 触发告警的最低等级
}

// DefaultConfig 默认输出到 ./fuzz_output
func DefaultConfig() Config {
	return Config{
		FindingsPath:  "fuzz_output/findings.jsonl",
		CorpusDir:     "fuzz_output/corpus",
		SolutionsDir:  "fuzz_output/solutions",
		AlertThrottle: 5 * time.Minute,
		AlertSeverity: types.SeverityMajor.String(),
	}
}

// Persistent 必须带复现序列永久保存的等级
func Persistent(s types.Severity) bool {
	return s.AtLeast(types.SeverityMajor)
}
