package oracle

import (
	"math/big"
	"testing"

	"movefuzz/pkg/analysis"
	"movefuzz/pkg/types"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	modID    = types.ModuleID{Address: types.MustHexToAddress("0xabc"), Name: "m"}
	attacker = types.MustHexToAddress("0xa11ce")
	sui      = types.MustParseTypeTag("0x2::sui::SUI")
)

func at(fn string, pc int) types.CodeLocation {
	return types.CodeLocation{Module: modID, Function: fn, PC: pc}
}

func words(vs ...uint64) []types.Word {
	out := make([]types.Word, len(vs))
	for i, v := range vs {
		out[i] = types.WordFromUint64(v)
	}
	return out
}

func spinModule(t *testing.T) *analysis.Module {
	t.Helper()
	v := true
	m := &analysis.Module{Address: modID.Address, Name: modID.Name, Functions: []analysis.Function{{
		Name:       "spin",
		Visibility: types.VisibilityPublic,
		Locals:     []types.SignatureToken{types.PrimitiveToken(types.TokBool)},
		Code: []analysis.Instruction{
			{Op: analysis.OpLabel, Label: 0},
			{Op: analysis.OpLoad, Dsts: []int{0}, Const: &analysis.Const{Bool: &v}},
			{Op: analysis.OpBranch, Srcs: []int{0}, Then: 0, Else: 1},
			{Op: analysis.OpLabel, Label: 1},
			{Op: analysis.OpRet},
		},
	}}}
	require.NoError(t, m.Prepare())
	return m
}

func observe(res *types.ExecutionResult) *Observation {
	return &Observation{Sequence: &types.MoveSequence{}, Result: res, Attacker: attacker}
}

// TestBytecodeOracle 只在执行过的位置上报告
func TestBytecodeOracle(t *testing.T) {
	m := spinModule(t)
	o := NewBytecodeOracle("InfiniteLoop", analysis.InfiniteLoop)

	obs := observe(&types.ExecutionResult{Status: types.StatusFailed, Trace: types.Trace{
		Instructions: []types.InstructionEvent{
			{CodeLocation: at("spin", 1), Op: "ld_true"},
			{CodeLocation: at("spin", 2), Op: "br_true"},
			{CodeLocation: at("spin", 2), Op: "br_true"},
		},
	}})
	obs.Modules = map[types.ModuleID]*analysis.Module{modID: m}

	findings := o.Evaluate(obs)
	require.Len(t, findings, 1)
	assert.Equal(t, "InfiniteLoop", findings[0].Oracle)
	assert.Equal(t, types.SeverityMajor, findings[0].Severity)
	assert.Equal(t, at("spin", 2).String(), findings[0].Location)

	obs.Modules = nil
	assert.Empty(t, o.Evaluate(obs))
}

// TestOverflowOracle 左移丢失高位时报告
func TestOverflowOracle(t *testing.T) {
	tests := []struct {
		name  string
		ops   []types.Word
		width int
		want  bool
	}{
		{"fits", words(1, 7), 8, false},
		{"lossy", words(3, 7), 8, true},
		{"zero", words(0, 63), 64, false},
		{"u64 edge", words(1<<63, 1), 64, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := observe(&types.ExecutionResult{Status: types.StatusSuccess, Trace: types.Trace{
				Instructions: []types.InstructionEvent{{CodeLocation: at("f", 3), Op: "shl", Operands: tt.ops, Width: tt.width}},
			}})
			findings := OverflowOracle{}.Evaluate(obs)
			assert.Equal(t, tt.want, len(findings) == 1)
		})
	}
}

// TestTypeConversionOracle 操作数超出目标范围时报告
func TestTypeConversionOracle(t *testing.T) {
	big128 := types.NewWord(new(uint256.Int).Lsh(uint256.NewInt(1), 70))
	obs := observe(&types.ExecutionResult{Status: types.StatusAborted, Trace: types.Trace{
		Instructions: []types.InstructionEvent{
			{CodeLocation: at("f", 1), Op: "cast_u8", Operands: words(255)},
			{CodeLocation: at("f", 2), Op: "cast_u8", Operands: words(256)},
			{CodeLocation: at("f", 3), Op: "cast_u64", Operands: []types.Word{big128}},
			{CodeLocation: at("f", 4), Op: "add", Operands: words(1, 2)},
		},
	}})
	findings := TypeConversionOracle{}.Evaluate(obs)
	require.Len(t, findings, 2)
	assert.Equal(t, at("f", 2).String(), findings[0].Location)
	assert.Equal(t, 64, findings[1].Detail["to"])
}

// TestProceedsOracle 攻击者净收益为正时报告
func TestProceedsOracle(t *testing.T) {
	other := types.MustHexToAddress("0xb0b")
	changes := []types.BalanceChange{
		{Owner: attacker, CoinType: sui, Amount: big.NewInt(-100)},
		{Owner: attacker, CoinType: sui, Amount: big.NewInt(150)},
		{Owner: other, CoinType: sui, Amount: big.NewInt(1000)},
	}
	obs := observe(&types.ExecutionResult{Status: types.StatusSuccess, Trace: types.Trace{BalanceChanges: changes}})
	findings := ProceedsOracle{}.Evaluate(obs)
	require.Len(t, findings, 1)
	assert.Equal(t, types.SeverityCritical, findings[0].Severity)
	assert.Equal(t, "50", findings[0].Detail["profit"])

	obs.Result.Status = types.StatusAborted
	assert.Empty(t, ProceedsOracle{}.Evaluate(obs))

	obs.Result.Status = types.StatusSuccess
	obs.Result.Trace.BalanceChanges = changes[:1]
	assert.Empty(t, ProceedsOracle{}.Evaluate(obs))
}

// TestTypedBugOracle 按完整类型或结构体名匹配事件
func TestTypedBugOracle(t *testing.T) {
	bug := types.MustParseTypeTag("0xabc::m::BugEvent")
	obs := observe(&types.ExecutionResult{Status: types.StatusSuccess, Trace: types.Trace{Events: []types.MoveEvent{
		{Type: bug, Contents: map[string]interface{}{"amount": "5"}},
		{Type: types.MustParseTypeTag("0xabc::m::Deposit")},
	}}})

	assert.Empty(t, NewTypedBugOracle(nil).Evaluate(obs))
	for _, name := range []string{"BugEvent", "0xabc::m::BugEvent"} {
		findings := NewTypedBugOracle([]string{name}).Evaluate(obs)
		require.Len(t, findings, 1, name)
		assert.Equal(t, "5", findings[0].Detail["field.amount"])
	}
}

// TestBankDedup 相同(oracle, location)只报告一次
func TestBankDedup(t *testing.T) {
	oracles, err := New(Config{Enabled: []string{"Overflow", "TypeConversion"}})
	require.NoError(t, err)
	bank := NewBank(oracles...)

	res := &types.ExecutionResult{Status: types.StatusSuccess, Trace: types.Trace{
		Instructions: []types.InstructionEvent{
			{CodeLocation: at("f", 3), Op: "shl", Operands: words(3, 7), Width: 8},
			{CodeLocation: at("f", 5), Op: "cast_u8", Operands: words(300)},
		},
	}}
	assert.Len(t, bank.Evaluate(observe(res)), 2)
	assert.Empty(t, bank.Evaluate(observe(res)))
	assert.Equal(t, 2, bank.Seen())
	assert.Nil(t, bank.Evaluate(&Observation{}))

	_, err = New(Config{Enabled: []string{"Nope"}})
	assert.Error(t, err)

	all, err := New(Config{})
	require.NoError(t, err)
	assert.Len(t, all, len(Names()))
}
