package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Severity 发现的严重等级
type Severity uint8

const (
	SeverityDiscussion Severity = iota
	SeverityInformational
	SeverityMinor
	SeverityMedium
	SeverityMajor
	SeverityCritical
)

var severityNames = []string{"Discussion", "Informational", "Minor", "Medium", "Major", "Critical"}

// String 等级名称
func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("Severity(%d)", uint8(s))
}

// ParseSeverity 不区分大小写解析等级名称
func ParseSeverity(s string) (Severity, error) {
	for i, name := range severityNames {
		if strings.EqualFold(name, s) {
			return Severity(i), nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// AtLeast 是否不低于other
func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

// MarshalText 实现 encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// OracleFinding oracle发现的一个问题，发出后不可修改
type OracleFinding struct {
	Oracle   string                 `json:"oracle"`
	Severity Severity               `json:"severity"`
	Location string                 `json:"location,omitempty"` // addr::module::function[@pc]
	Detail   map[string]interface{} `json:"detail,omitempty"`
	Time     time.Time              `json:"time"`
}

// NewFinding 构造发现
func NewFinding(oracle string, severity Severity, location string, detail map[string]interface{}) OracleFinding {
	return OracleFinding{
		Oracle:   oracle,
		Severity: severity,
		Location: location,
		Detail:   detail,
		Time:     time.Now(),
	}
}

// Key 去重键 (oracle, location)
func (f *OracleFinding) Key() string {
	return f.Oracle + "|" + f.Location
}

// String 简要描述
func (f OracleFinding) String() string {
	detail, _ := json.Marshal(f.Detail)
	return fmt.Sprintf("[%s] %s at %s %s", f.Severity, f.Oracle, f.Location, detail)
}

// Location 格式化函数内的代码位置
func Location(fn FunctionIdent, pc int) string {
	if pc < 0 {
		return fn.String()
	}
	return fmt.Sprintf("%s@%d", fn, pc)
}
