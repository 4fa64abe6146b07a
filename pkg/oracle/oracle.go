// Package oracle 对单次执行的跟踪做启发式判定，产出带严重等级的发现
package oracle

import (
	"fmt"
	"sort"

	"movefuzz/pkg/analysis"
	"movefuzz/pkg/types"
)

// Observation 一次执行的可观察结果，oracle只读
type Observation struct {
	Sequence *types.MoveSequence
	Result   *types.ExecutionResult
	Attacker types.Address
	Modules  map[types.ModuleID]*analysis.Module // 已加载的模块IR，按字节码位置检测时使用
}

// function 查找执行位置所在函数的IR
func (o *Observation) function(loc types.CodeLocation) (*analysis.Function, bool) {
	m, ok := o.Modules[loc.Module]
	if !ok {
		return nil, false
	}
	return m.Function(loc.Function)
}

// Oracle 对执行结果的一种判定，无副作用且从不返回错误
type Oracle interface {
	Name() string
	Evaluate(obs *Observation) []types.OracleFinding
}

// Config oracle参数
type Config struct {
	Enabled   []string `yaml:"enabled"`    // 为空时启用全部
	BugEvents []string `yaml:"bug_events"` // TypedBug 关注的事件类型（完整类型或结构体名）
}

// factory 由配置构造oracle
type factory func(cfg Config) Oracle

// registry 固定的oracle注册表
var registry = map[string]factory{
	"BoolJudgement":  func(Config) Oracle { return NewBytecodeOracle("BoolJudgement", analysis.BoolJudgement) },
	"InfiniteLoop":   func(Config) Oracle { return NewBytecodeOracle("InfiniteLoop", analysis.InfiniteLoop) },
	"PrecisionLoss":  func(Config) Oracle { return NewBytecodeOracle("PrecisionLoss", analysis.PrecisionLoss) },
	"Overflow":       func(Config) Oracle { return OverflowOracle{} },
	"TypeConversion": func(Config) Oracle { return TypeConversionOracle{} },
	"Proceeds":       func(Config) Oracle { return ProceedsOracle{} },
	"TypedBug":       func(cfg Config) Oracle { return NewTypedBugOracle(cfg.BugEvents) },
}

// Names 全部已注册的oracle名称（有序）
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New 按配置构造启用的oracle
func New(cfg Config) ([]Oracle, error) {
	names := cfg.Enabled
	if len(names) == 0 {
		names = Names()
	}
	out := make([]Oracle, 0, len(names))
	for _, name := range names {
		f, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown oracle %q (known: %v)", name, Names())
		}
		out = append(out, f(cfg))
	}
	return out, nil
}
