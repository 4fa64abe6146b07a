package analysis

import (
	"context"
	"testing"

	"movefuzz/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = types.MustHexToAddress("0xabc")

func tok(k types.TokenKind) types.SignatureToken { return types.PrimitiveToken(k) }

func loadBool(dst int, v bool) Instruction {
	return Instruction{Op: OpLoad, Dsts: []int{dst}, Const: &Const{Bool: &v}}
}

func loadInt(dst int, v uint64) Instruction {
	w := types.WordFromUint64(v)
	return Instruction{Op: OpLoad, Dsts: []int{dst}, Const: &Const{Int: &w}}
}

func op(operation string, dsts []int, srcs ...int) Instruction {
	return Instruction{Op: OpCall, Operation: operation, Dsts: dsts, Srcs: srcs}
}

func call(fn string, dsts []int, srcs ...int) Instruction {
	return Instruction{Op: OpCall, Operation: OperationFunction, Dsts: dsts, Srcs: srcs,
		Callee: &Callee{Module: types.ModuleID{Address: testAddr, Name: "m"}, Function: fn}}
}

func label(l int) Instruction { return Instruction{Op: OpLabel, Label: l} }

func branch(cond, then, els int) Instruction {
	return Instruction{Op: OpBranch, Srcs: []int{cond}, Then: then, Else: els}
}

func ret(srcs ...int) Instruction { return Instruction{Op: OpRet, Srcs: srcs} }

func module(t *testing.T, fns ...Function) *Module {
	t.Helper()
	m := &Module{Address: testAddr, Name: "m", Functions: fns}
	require.NoError(t, m.Prepare())
	return m
}

func public(name string, locals []types.SignatureToken, code ...Instruction) Function {
	return Function{Name: name, Visibility: types.VisibilityPublic, Locals: locals, Code: code}
}

func locations(findings []types.OracleFinding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Location
	}
	return out
}

// TestBoolJudgement 只标记布尔字面量与布尔值比较的函数
func TestBoolJudgement(t *testing.T) {
	boolLocals := []types.SignatureToken{tok(types.TokBool), tok(types.TokBool), tok(types.TokBool)}
	intLocals := []types.SignatureToken{tok(types.TokU64), tok(types.TokU64), tok(types.TokBool)}
	m := module(t,
		public("redundant", boolLocals,
			call("is_ok", []int{1}),
			loadBool(0, true),
			op(OperationEq, []int{2}, 1, 0),
			ret(2)),
		public("neq_literal_left", boolLocals,
			loadBool(0, false),
			call("is_ok", []int{1}),
			op(OperationNeq, []int{2}, 0, 1),
			ret(2)),
		public("ints", intLocals,
			loadInt(0, 1),
			loadInt(1, 2),
			op(OperationEq, []int{2}, 0, 1),
			ret(2)),
		public("is_ok", boolLocals[:1], loadBool(0, true), ret(0)),
	)

	findings := BoolJudgement.Analyze([]*Module{m})
	assert.ElementsMatch(t, []string{
		types.Location(m.Ident(&m.Functions[0]), -1),
		types.Location(m.Ident(&m.Functions[1]), -1),
	}, locations(findings))
	for _, f := range findings {
		assert.Equal(t, types.SeverityMinor, f.Severity)
	}
	assert.True(t, BoolJudgementAt(&m.Functions[0], 2))
	assert.False(t, BoolJudgementAt(&m.Functions[0], 1))
}

// TestInfiniteLoop 回跳目标被标记，前向目标不被标记
func TestInfiniteLoop(t *testing.T) {
	locals := []types.SignatureToken{tok(types.TokBool)}
	m := module(t,
		public("backward", locals,
			label(0),
			loadBool(0, true),
			branch(0, 0, 1),
			label(1),
			ret()),
		public("forward", locals,
			loadBool(0, true),
			branch(0, 1, 2),
			label(1),
			ret(),
			label(2),
			ret()),
		public("false_backward", locals,
			label(0),
			loadBool(0, false),
			branch(0, 1, 0),
			label(1),
			ret()),
		public("dynamic", locals,
			label(0),
			call("is_ok", []int{0}),
			branch(0, 0, 1),
			label(1),
			ret()),
	)

	findings := InfiniteLoop.Analyze([]*Module{m})
	require.Len(t, findings, 2)
	assert.Equal(t, "backward", findings[0].Detail["function"])
	assert.Equal(t, "false_backward", findings[1].Detail["function"])
	assert.Equal(t, types.SeverityMajor, findings[0].Severity)

	forward, _ := m.Function("forward")
	assert.False(t, InfiniteLoopAt(forward, 1))
	backward, _ := m.Function("backward")
	assert.True(t, InfiniteLoopAt(backward, 2))
}

// TestArithmeticDetectors 精度损失、收窄转换与未检查返回值
func TestArithmeticDetectors(t *testing.T) {
	u64 := []types.SignatureToken{tok(types.TokU64), tok(types.TokU64), tok(types.TokU64), tok(types.TokU64)}
	u128 := []types.SignatureToken{tok(types.TokU128), tok(types.TokU128), tok(types.TokU128), tok(types.TokU64)}
	m := module(t,
		public("div_then_mul", u64,
			op(OperationDiv, []int{2}, 0, 1),
			op(OperationMul, []int{3}, 2, 1),
			ret(3)),
		public("mul_then_div", u64,
			op(OperationMul, []int{2}, 0, 1),
			op(OperationDiv, []int{3}, 2, 1),
			ret(3)),
		public("sqrt_then_mul", u64,
			call("sqrt", []int{2}, 0),
			op(OperationMul, []int{3}, 2, 1),
			ret(3)),
		public("narrow", u128,
			op(OperationMul, []int{2}, 0, 1),
			op(OperationCastU64, []int{3}, 2),
			ret(3)),
		public("ignored", u64,
			call("sqrt", []int{2}, 0),
			ret(0)),
		public("sqrt", u64[:1], ret(0)),
	)

	var names []interface{}
	for _, f := range PrecisionLoss.Analyze([]*Module{m}) {
		names = append(names, f.Detail["function"])
	}
	assert.Equal(t, []interface{}{"div_then_mul", "sqrt_then_mul"}, names)

	conv := TypeConversion.Analyze([]*Module{m})
	require.Len(t, conv, 1)
	assert.Equal(t, "narrow", conv[0].Detail["function"])
	assert.Equal(t, 1, conv[0].Detail["pc"])

	unchecked := UncheckedReturn.Analyze([]*Module{m})
	require.Len(t, unchecked, 1)
	assert.Equal(t, "ignored", unchecked[0].Detail["function"])
}

// TestUnusedDefinitions 未使用的常量、函数、结构体与枚举
func TestUnusedDefinitions(t *testing.T) {
	pool0 := 0
	m := &Module{
		Address: testAddr,
		Name:    "m",
		Constants: []ConstantDef{
			{Type: types.U64Tag, Value: []byte{0xe8, 0x03, 0, 0, 0, 0, 0, 0}},
			{Type: types.U64Tag, Value: []byte{0x0a, 0, 0, 0, 0, 0, 0, 0}},
			{Type: types.VectorOf(types.U8Tag), Value: []byte{0x03, 'f', 'e', 'e'}},
		},
		Structs: []Datatype{{Name: "Used"}, {Name: "Param"}, {Name: "Dead"}},
		Enums:   []Datatype{{Name: "Kind"}, {Name: "Ghost"}},
		Functions: []Function{
			{Name: "init", Visibility: types.VisibilityPrivate, Code: []Instruction{ret()}},
			{Name: "entry_only", Visibility: types.VisibilityPrivate, IsEntry: true, Code: []Instruction{ret()}},
			{Name: "helper", Visibility: types.VisibilityPrivate, Code: []Instruction{ret()}},
			{Name: "dead", Visibility: types.VisibilityPrivate, Code: []Instruction{ret()}},
			{Name: "friend_used", Visibility: types.VisibilityFriend, Code: []Instruction{ret()}},
			{Name: "friend_dead", Visibility: types.VisibilityFriend, Code: []Instruction{ret()}},
			{
				Name:       "main",
				Visibility: types.VisibilityPublic,
				Parameters: []types.SignatureToken{
					types.RefToken(types.StructToken(types.StructRef{Address: testAddr, Module: "m", Name: "Param"})),
				},
				Code: []Instruction{
					{Op: OpLoad, Dsts: []int{0}, Const: &Const{Pool: &pool0}},
					call("helper", nil),
					call("friend_used", nil),
					{Op: OpCall, Operation: OperationPack, Datatype: "Used", Dsts: []int{1}},
					{Op: OpCall, Operation: OperationPackVariant, Datatype: "Kind", Dsts: []int{2}},
					ret(),
				},
			},
		},
	}
	require.NoError(t, m.Prepare())
	other := &Module{Address: testAddr, Name: "n", Functions: []Function{
		public("caller", nil, call("friend_used", nil), ret()),
	}}
	require.NoError(t, other.Prepare())

	private := UnusedPrivateFunctions([]*Module{m})
	require.Len(t, private, 1)
	assert.Equal(t, []string{types.FunctionIdent{Module: m.ID(), Function: "dead"}.String()}, private[0].Detail["functions"])

	friend := UnusedFriendFunctions([]*Module{m, other})
	require.Len(t, friend, 1)
	assert.Equal(t, []string{types.FunctionIdent{Module: m.ID(), Function: "friend_dead"}.String()}, friend[0].Detail["functions"])

	consts := UnusedConstants([]*Module{m})
	require.Len(t, consts, 1)
	assert.Equal(t, []string{"u64(10)", "vector<u8>(0x03666565)"}, consts[0].Detail["unused_constants"])

	structs := UnusedStructs([]*Module{m})
	require.Len(t, structs, 1)
	assert.Equal(t, []string{"Dead"}, structs[0].Detail["structs"])

	enums := UnusedEnums([]*Module{m})
	require.Len(t, enums, 1)
	assert.Equal(t, []string{"Ghost"}, enums[0].Detail["enums"])
}

// TestRunAll 并行运行全部分析并支持按名称过滤
func TestRunAll(t *testing.T) {
	locals := []types.SignatureToken{tok(types.TokBool)}
	m := module(t,
		public("spin", locals, label(0), loadBool(0, true), branch(0, 0, 1), label(1), ret()),
		Function{Name: "unused", Visibility: types.VisibilityPrivate, Code: []Instruction{ret()}},
	)

	all, err := RunAll(context.Background(), []*Module{m})
	require.NoError(t, err)
	oracles := make([]string, len(all))
	for i, f := range all {
		oracles[i] = f.Oracle
	}
	assert.Equal(t, []string{"StaticInfiniteLoop", "StaticUnusedPrivateFunction"}, oracles)

	only, err := RunAll(context.Background(), []*Module{m}, "StaticUnusedPrivateFunction")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "StaticUnusedPrivateFunction", only[0].Oracle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RunAll(ctx, []*Module{m})
	assert.ErrorIs(t, err, context.Canceled)
}

// TestDecodeModule 解析JSON IR与错误输入
func TestDecodeModule(t *testing.T) {
	data := []byte(`{
		"address": "0xabc",
		"name": "m",
		"functions": [{
			"name": "spin",
			"visibility": "public",
			"locals": [{"kind": "bool"}],
			"code": [
				{"op": "label", "label": 0},
				{"op": "load", "dsts": [0], "const": {"bool": true}},
				{"op": "branch", "srcs": [0], "then": 0, "else": 1},
				{"op": "label", "label": 1},
				{"op": "ret"}
			]
		}]
	}`)
	m, err := DecodeModule(data)
	require.NoError(t, err)
	fn, ok := m.Function("spin")
	require.True(t, ok)
	off, ok := fn.LabelOffset(1)
	require.True(t, ok)
	assert.Equal(t, 3, off)
	assert.True(t, InfiniteLoopAt(fn, 2))

	_, err = DecodeModule([]byte(`{"address": "0xabc", "name": "m", "functions": [{"name": "a"}, {"name": "a"}]}`))
	assert.ErrorIs(t, err, ErrMalformedIR)
	_, err = DecodeModule([]byte(`{"address": "0xabc", "name": "m", "functions": [{"name": "a", "locals": [{"kind": "bool"}], "code": [{"op": "ret", "srcs": [3]}]}]}`))
	assert.ErrorIs(t, err, ErrMalformedIR)
	_, err = DecodeModule([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedIR)
}

// TestBuildCallGraph 调用边携带类型实参，重复模块只加入一次
func TestBuildCallGraph(t *testing.T) {
	m := module(t,
		public("a", nil, call("b", nil), call("b", nil), ret()),
		public("b", nil, ret()),
	)
	m.Functions[0].Code[0].Callee.TypeArgs = []types.SignatureToken{tok(types.TokU64)}

	g := BuildCallGraph([]*Module{m, m})
	assert.Equal(t, 2, g.Len())
	require.Len(t, g.Edges(), 2)
	assert.Equal(t, "u64", g.Edges()[0].Label())
	callees := g.Callees(m.Ident(&m.Functions[0]))
	assert.Equal(t, []types.FunctionIdent{m.Ident(&m.Functions[1])}, callees)
	assert.Contains(t, g.Dot(), "digraph")
}
