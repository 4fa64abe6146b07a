package oracle

import (
	"strings"

	"movefuzz/pkg/analysis"
	"movefuzz/pkg/types"
)

// OverflowOracle 左移丢失了高位（Move的shl不检查溢出）
type OverflowOracle struct{}

func (OverflowOracle) Name() string { return "Overflow" }

func (OverflowOracle) Evaluate(obs *Observation) []types.OracleFinding {
	var out []types.OracleFinding
	for _, ev := range obs.Result.Trace.Instructions {
		if ev.Op != analysis.OperationShl || len(ev.Operands) != 2 || ev.Width <= 0 {
			continue
		}
		value, shift := ev.Operands[0].Int(), ev.Operands[1].Int()
		if value.IsZero() || !shift.IsUint64() {
			continue
		}
		if value.BitLen()+int(shift.Uint64()) <= ev.Width {
			continue
		}
		out = append(out, types.NewFinding("Overflow", types.SeverityMajor, ev.CodeLocation.String(), map[string]interface{}{
			"op":      ev.Op,
			"value":   value.Dec(),
			"shift":   shift.Uint64(),
			"width":   ev.Width,
			"message": "Left shift discards significant bits",
		}))
	}
	return out
}

// TypeConversionOracle 收窄转换的操作数超出目标类型范围
type TypeConversionOracle struct{}

func (TypeConversionOracle) Name() string { return "TypeConversion" }

func (TypeConversionOracle) Evaluate(obs *Observation) []types.OracleFinding {
	var out []types.OracleFinding
	for _, ev := range obs.Result.Trace.Instructions {
		to := analysis.CastWidth(strings.ToLower(ev.Op))
		if to == 0 || len(ev.Operands) != 1 {
			continue
		}
		v := ev.Operands[0].Int()
		if v.BitLen() <= to {
			continue
		}
		out = append(out, types.NewFinding("TypeConversion", types.SeverityMinor, ev.CodeLocation.String(), map[string]interface{}{
			"op":      ev.Op,
			"value":   v.Dec(),
			"to":      to,
			"message": "Cast operand exceeds the target type range",
		}))
	}
	return out
}
