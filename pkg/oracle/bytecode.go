package oracle

import (
	"movefuzz/pkg/analysis"
	"movefuzz/pkg/types"
)

// BytecodeOracle 在实际执行过的指令位置上运行逐指令检测
type BytecodeOracle struct {
	name     string
	detector analysis.Detector
}

// NewBytecodeOracle 包装静态检测器
func NewBytecodeOracle(name string, d analysis.Detector) *BytecodeOracle {
	return &BytecodeOracle{name: name, detector: d}
}

func (o *BytecodeOracle) Name() string { return o.name }

func (o *BytecodeOracle) Evaluate(obs *Observation) []types.OracleFinding {
	var out []types.OracleFinding
	visited := make(map[types.CodeLocation]bool)
	for _, ev := range obs.Result.Trace.Instructions {
		loc := ev.CodeLocation
		if visited[loc] {
			continue
		}
		visited[loc] = true
		fn, ok := obs.function(loc)
		if !ok || !o.detector.At(fn, loc.PC) {
			continue
		}
		out = append(out, types.NewFinding(o.name, o.detector.Severity, loc.String(), map[string]interface{}{
			"module":   loc.Module.String(),
			"function": loc.Function,
			"pc":       loc.PC,
			"message":  o.detector.Message,
		}))
	}
	return out
}
