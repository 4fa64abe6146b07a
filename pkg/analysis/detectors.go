package analysis

import (
	"movefuzz/pkg/types"
)

// Detector 逐指令的模式检测，静态分析与动态oracle共用
type Detector struct {
	Oracle   string
	Severity types.Severity
	Message  string
	At       func(fn *Function, pc int) bool
}

var (
	// BoolJudgement 布尔值与布尔字面量比较
	BoolJudgement = Detector{
		Oracle:   "StaticBoolJudgement",
		Severity: types.SeverityMinor,
		Message:  "Unnecessary bool judgement (boolean compared with boolean literal)",
		At:       BoolJudgementAt,
	}
	// InfiniteLoop 常量分支条件导致的回跳
	InfiniteLoop = Detector{
		Oracle:   "StaticInfiniteLoop",
		Severity: types.SeverityMajor,
		Message:  "Potential infinite loop detected from constant branch condition",
		At:       InfiniteLoopAt,
	}
	// PrecisionLoss 乘法的操作数来自除法或开方
	PrecisionLoss = Detector{
		Oracle:   "StaticPrecisionLoss",
		Severity: types.SeverityMedium,
		Message:  "Potential precision loss from multiplication involving division/sqrt",
		At:       PrecisionLossAt,
	}
	// TypeConversion 对算术结果做收窄转换
	TypeConversion = Detector{
		Oracle:   "StaticTypeConversion",
		Severity: types.SeverityMinor,
		Message:  "Narrowing cast of an arithmetic result may abort or truncate",
		At:       TypeConversionAt,
	}
	// UncheckedReturn 函数返回值从未被读取
	UncheckedReturn = Detector{
		Oracle:   "StaticUncheckedReturn",
		Severity: types.SeverityInformational,
		Message:  "Return value of a call is never used",
		At:       UncheckedReturnAt,
	}
)

// Scan 返回函数中第一个命中的指令下标
func (d Detector) Scan(fn *Function) (int, bool) {
	if fn.IsNative {
		return 0, false
	}
	for pc := range fn.Code {
		if d.At(fn, pc) {
			return pc, true
		}
	}
	return 0, false
}

func instructionAt(fn *Function, pc int) *Instruction {
	if pc < 0 || pc >= len(fn.Code) {
		return nil
	}
	return &fn.Code[pc]
}

// binaryDefs 二元call指令两个操作数在本块内的定义，找不到的一侧为nil
func binaryDefs(fn *Function, pc int, operations ...string) (*Instruction, *Instruction, bool) {
	in := instructionAt(fn, pc)
	if in == nil || in.Op != OpCall || len(in.Srcs) != 2 {
		return nil, nil, false
	}
	matched := false
	for _, op := range operations {
		if in.Operation == op {
			matched = true
			break
		}
	}
	if !matched {
		return nil, nil, false
	}
	left, _ := fn.DefOf(in.Srcs[0], pc)
	right, _ := fn.DefOf(in.Srcs[1], pc)
	return left, right, true
}

// BoolJudgementAt pc处的eq/neq是否一侧为布尔字面量、另一侧为布尔类型的值
func BoolJudgementAt(fn *Function, pc int) bool {
	left, right, ok := binaryDefs(fn, pc, OperationEq, OperationNeq)
	if !ok || left == nil || right == nil {
		return false
	}
	return isLoadBool(left) && definesBool(fn, right) || isLoadBool(right) && definesBool(fn, left)
}

func isLoadBool(in *Instruction) bool {
	return in.Op == OpLoad && in.Const != nil && in.Const.Bool != nil
}

func definesBool(fn *Function, in *Instruction) bool {
	switch in.Op {
	case OpCall, OpAssign, OpLoad:
	default:
		return false
	}
	if len(in.Dsts) == 0 {
		return false
	}
	tok, ok := fn.LocalType(in.Dsts[0])
	return ok && tok.Kind == types.TokBool
}

// InfiniteLoopAt pc处的分支条件是否为本块内加载的布尔常量，且被选中的目标不在当前指令之后
func InfiniteLoopAt(fn *Function, pc int) bool {
	in := instructionAt(fn, pc)
	if in == nil || in.Op != OpBranch || len(in.Srcs) != 1 {
		return false
	}
	def, ok := fn.DefOf(in.Srcs[0], pc)
	if !ok || !isLoadBool(def) {
		return false
	}
	target := in.Else
	if *def.Const.Bool {
		target = in.Then
	}
	off, ok := fn.LabelOffset(target)
	return ok && off <= pc
}

// PrecisionLossAt pc处的乘法是否有操作数来自除法或sqrt
func PrecisionLossAt(fn *Function, pc int) bool {
	left, right, ok := binaryDefs(fn, pc, OperationMul)
	if !ok {
		return false
	}
	return isDivOrSqrt(left) || isDivOrSqrt(right)
}

func isDivOrSqrt(in *Instruction) bool {
	if in == nil {
		return false
	}
	if in.IsCall(OperationDiv) {
		return true
	}
	return in.IsCall(OperationFunction) && in.Callee != nil && in.Callee.Function == "sqrt"
}

var arithmetic = map[string]bool{
	OperationAdd: true,
	OperationSub: true,
	OperationMul: true,
	OperationShl: true,
}

// TypeConversionAt pc处是否将更宽的算术结果收窄转换
func TypeConversionAt(fn *Function, pc int) bool {
	in := instructionAt(fn, pc)
	if in == nil || in.Op != OpCall || len(in.Srcs) != 1 {
		return false
	}
	to := CastWidth(in.Operation)
	if to == 0 {
		return false
	}
	tok, ok := fn.LocalType(in.Srcs[0])
	if !ok || TokenWidth(tok) <= to {
		return false
	}
	def, ok := fn.DefOf(in.Srcs[0], pc)
	return ok && def.Op == OpCall && arithmetic[def.Operation]
}

// UncheckedReturnAt pc处的函数调用是否有返回值且全部未被后续指令读取
func UncheckedReturnAt(fn *Function, pc int) bool {
	in := instructionAt(fn, pc)
	if in == nil || !in.IsCall(OperationFunction) || len(in.Dsts) == 0 {
		return false
	}
	for i := pc + 1; i < len(fn.Code); i++ {
		for _, src := range fn.Code[i].Srcs {
			for _, d := range in.Dsts {
				if src == d {
					return false
				}
			}
		}
	}
	return true
}
