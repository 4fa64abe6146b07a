// Package sequence 负责调用序列的合成、结构变异、可逆后处理与类型检查
package sequence

import (
	"errors"

	"movefuzz/pkg/metadata"
	"movefuzz/pkg/types"
)

var (
	// ErrUnresolvable 参数找不到来源（无匹配的前序结果、输入或对象）
	ErrUnresolvable = errors.New("unresolvable argument")
	// ErrDanglingReference 引用越界或指向当前/之后的命令
	ErrDanglingReference = errors.New("dangling or forward reference")
	// ErrTypeMismatch 解析得到的类型与声明不符
	ErrTypeMismatch = errors.New("argument type mismatch")
	// ErrUnknownFunction 调用了未知函数
	ErrUnknownFunction = errors.New("unknown function")
	// ErrConsumed 非copy值被重复按值使用
	ErrConsumed = errors.New("value used after move")
	// ErrNotApplicable 结构变异在当前序列上无可用位置
	ErrNotApplicable = errors.New("edit not applicable")
)

var coinModule = types.ModuleID{Address: types.FrameworkAddress, Name: types.CoinModule}

func coinIdent(name string) types.FunctionIdent {
	return types.FunctionIdent{Module: coinModule, Function: name}
}

func frameworkStruct(module, name string, args ...types.SignatureToken) types.SignatureToken {
	return types.StructToken(types.StructRef{Address: types.FrameworkAddress, Module: module, Name: name}, args...)
}

// frameworkFunctions 序列合成与后处理用到的0x2::coin函数，快照中未加载框架包时兜底
var frameworkFunctions = func() map[types.FunctionIdent]*types.FunctionAbi {
	t0 := types.TypeParamToken(0)
	coin := frameworkStruct(types.CoinModule, types.CoinStruct, t0)
	balance := frameworkStruct(types.BalanceModule, types.BalanceStruct, t0)
	ctx := types.MutRefToken(frameworkStruct(types.TxContextModule, types.TxContextStruct))
	u64 := types.PrimitiveToken(types.TokU64)
	anyT := []types.Ability{types.AbilityNone}
	return map[types.FunctionIdent]*types.FunctionAbi{
		coinIdent(types.FromBalanceFunc): {Name: types.FromBalanceFunc, Visibility: types.VisibilityPublic,
			TypeParameters: anyT, Parameters: []types.SignatureToken{balance, ctx}, Returns: []types.SignatureToken{coin}},
		coinIdent("into_balance"): {Name: "into_balance", Visibility: types.VisibilityPublic,
			TypeParameters: anyT, Parameters: []types.SignatureToken{coin}, Returns: []types.SignatureToken{balance}},
		coinIdent("split"): {Name: "split", Visibility: types.VisibilityPublic,
			TypeParameters: anyT, Parameters: []types.SignatureToken{types.MutRefToken(coin), u64, ctx}, Returns: []types.SignatureToken{coin}},
		coinIdent("join"): {Name: "join", Visibility: types.VisibilityPublic,
			TypeParameters: anyT, Parameters: []types.SignatureToken{types.MutRefToken(coin), coin}},
		coinIdent("value"): {Name: "value", Visibility: types.VisibilityPublic,
			TypeParameters: anyT, Parameters: []types.SignatureToken{types.RefToken(coin)}, Returns: []types.SignatureToken{u64}},
		coinIdent("zero"): {Name: "zero", Visibility: types.VisibilityPublic,
			TypeParameters: anyT, Parameters: []types.SignatureToken{ctx}, Returns: []types.SignatureToken{coin}},
	}
}()

// Index 序列层面的函数/能力查询：元数据优先，框架函数兜底
type Index struct {
	meta *metadata.Metadata
}

// NewIndex 包装元数据
func NewIndex(meta *metadata.Metadata) *Index {
	return &Index{meta: meta}
}

// Meta 底层元数据
func (x *Index) Meta() *metadata.Metadata {
	return x.meta
}

// Function 查找函数签名
func (x *Index) Function(ident types.FunctionIdent) (*types.FunctionAbi, bool) {
	if x.meta != nil {
		if fn, ok := x.meta.Function(ident); ok {
			return fn, true
		}
	}
	fn, ok := frameworkFunctions[ident]
	return fn, ok
}

// Abilities 具体类型的能力；未知类型按无能力处理并返回false
func (x *Index) Abilities(tag types.TypeTag) (types.Ability, bool) {
	if x.meta != nil {
		return x.meta.Abilities(tag)
	}
	if tag.IsPrimitive() {
		return types.PrimitiveAbilities, true
	}
	return types.AbilityNone, false
}

// ExplicitParams 需要显式传参的参数（TxContext由运行时隐式提供）
func ExplicitParams(fn *types.FunctionAbi) []types.SignatureToken {
	out := make([]types.SignatureToken, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		if types.IsTxContextToken(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}
