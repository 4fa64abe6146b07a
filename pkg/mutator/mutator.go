// Package mutator 实现宽度感知的单值变异：标量、定宽vector、地址与魔数采样
package mutator

import (
	"bytes"
	"math/rand"

	"movefuzz/pkg/types"

	"github.com/holiman/uint256"
)

// Result 变异结果
type Result int

const (
	// Skipped 没有可用的变换，值保持不变
	Skipped Result = iota
	// Mutated 值已被改写
	Mutated
)

// String 结果名称
func (r Result) String() string {
	if r == Mutated {
		return "mutated"
	}
	return "skipped"
}

// Policy 变异策略参数（经验值，可按配置调整）
type Policy struct {
	MagicProb      float64 `yaml:"magic_prob"`       // 数值变异时先尝试魔数覆盖的概率
	SmallIntTenths int     `yaml:"small_int_tenths"` // 4字节值重采样为小整数的概率（十分之几）
	SmallIntBound  uint64  `yaml:"small_int_bound"`  // 小整数上界（不含）
	Pow2Tenths64   int     `yaml:"pow2_tenths_64"`   // 8字节值重采样为2的幂的概率
	Pow2Tenths128  int     `yaml:"pow2_tenths_128"`  // 16字节值重采样为2的幂的概率
	HavocStackPow  int     `yaml:"havoc_stack_pow"`  // havoc最多叠加 2^n 个操作
	VectorResize   float64 `yaml:"vector_resize"`    // vector增删元素的概率
	MaxVectorLen   int     `yaml:"max_vector_len"`
}

// DefaultPolicy 默认策略
func DefaultPolicy() Policy {
	return Policy{
		MagicProb:      0.3,
		SmallIntTenths: 9,
		SmallIntBound:  443636,
		Pow2Tenths64:   4,
		Pow2Tenths128:  9,
		HavocStackPow:  4,
		VectorResize:   0.125,
		MaxVectorLen:   32,
	}
}

// Context 变异上下文，由调用方显式传入
type Context struct {
	Rand    *rand.Rand
	Magic   *MagicPool
	Callers []types.Address // 执行上下文中的已知调用者
	Policy  Policy
}

// NewContext 使用默认策略创建上下文
func NewContext(r *rand.Rand, magic *MagicPool, callers []types.Address) *Context {
	if magic == nil {
		magic = NewMagicPool()
	}
	return &Context{Rand: r, Magic: magic, Callers: callers, Policy: DefaultPolicy()}
}

// Mutate 原地变异单个输入值；split表示该值是拆分类操作的数量参数
//
// 值的标签与宽度永远不变；返回Skipped时值未被修改。
func Mutate(ctx *Context, arg *types.InputArgument, split bool) Result {
	switch arg.Kind {
	case types.ArgBool:
		arg.Bool = ctx.Rand.Intn(2) == 1
		return Mutated
	case types.ArgU8:
		orig := arg.Num.Uint64()
		v := orig
		for v == orig {
			v = uint64(ctx.Rand.Intn(256))
		}
		arg.Num.SetUint64(v)
		return Mutated
	case types.ArgU16, types.ArgU32, types.ArgU64, types.ArgU128, types.ArgU256:
		return mutateNumber(ctx, arg, split)
	case types.ArgAddress:
		if ctx.Rand.Intn(2) == 1 || len(ctx.Callers) == 0 {
			ctx.Rand.Read(arg.Address[:])
		} else {
			arg.Address = ctx.Callers[ctx.Rand.Intn(len(ctx.Callers))]
		}
		return Mutated
	case types.ArgVector:
		return mutateVector(ctx, arg, split)
	}
	return Skipped
}

// mutateNumber U16..U256：魔数覆盖 / 宽度相关的结构化重采样 / havoc字节变异
func mutateNumber(ctx *Context, arg *types.InputArgument, split bool) Result {
	orig, err := Sync(arg)
	if err != nil {
		return Skipped
	}
	r := ctx.Rand
	p := ctx.Policy

	if r.Float64() < p.MagicProb && overwriteMagic(ctx, arg) == Mutated {
		return Mutated
	}

	b := append([]byte(nil), orig...)
	switch {
	case len(b) == 4 && r.Intn(10) < p.SmallIntTenths:
		putUint(b, uint256.NewInt(uint64(r.Int63n(int64(max(p.SmallIntBound, 1))))))
	case len(b) == 8 && r.Intn(10) < p.Pow2Tenths64:
		putUint(b, new(uint256.Int).Lsh(uint256.NewInt(1), uint(r.Intn(64))))
	case len(b) == 16 && r.Intn(10) < p.Pow2Tenths128:
		putUint(b, new(uint256.Int).Lsh(uint256.NewInt(1), uint(r.Intn(128))))
	case split && ctx.Magic.Len() == 0 && len(b) != 4 && len(b) != 8 && len(b) != 16:
		for i := range b {
			b[i] = 0
		}
	default:
		for tries := 0; tries < 8 && bytes.Equal(b, orig); tries++ {
			havoc(r, b, p.HavocStackPow)
		}
	}
	if bytes.Equal(b, orig) {
		return Skipped
	}
	next, err := Commit(b, arg)
	if err != nil {
		return Skipped
	}
	*arg = next
	return Mutated
}

func mutateVector(ctx *Context, arg *types.InputArgument, split bool) Result {
	if arg.ElemTag == nil {
		return Skipped
	}
	r := ctx.Rand
	if len(arg.Elems) == 0 || r.Float64() < ctx.Policy.VectorResize {
		if len(arg.Elems) > 0 && (r.Intn(2) == 0 || len(arg.Elems) >= ctx.Policy.MaxVectorLen) {
			i := r.Intn(len(arg.Elems))
			arg.Elems = append(arg.Elems[:i], arg.Elems[i+1:]...)
			return Mutated
		}
		zero, err := types.ZeroValue(*arg.ElemTag)
		if err != nil {
			return Skipped
		}
		Mutate(ctx, &zero, split)
		arg.Elems = append(arg.Elems, zero)
		return Mutated
	}
	i := r.Intn(len(arg.Elems))
	return Mutate(ctx, &arg.Elems[i], split)
}

// SampleMagic 低强度变异：仅当池中存在字节长度完全相同的条目时，用其整体替换整数或定宽整数vector
func SampleMagic(ctx *Context, arg *types.InputArgument) Result {
	switch arg.Kind {
	case types.ArgU8, types.ArgU16, types.ArgU32, types.ArgU64, types.ArgU128, types.ArgU256:
	case types.ArgVector:
		if arg.ElemTag == nil || !arg.ElemTag.Kind.IsInteger() {
			return Skipped
		}
	default:
		return Skipped
	}
	return overwriteMagic(ctx, arg)
}

func overwriteMagic(ctx *Context, arg *types.InputArgument) Result {
	if ctx.Magic.Len() == 0 {
		return Skipped
	}
	cur, err := Sync(arg)
	if err != nil {
		return Skipped
	}
	fit := ctx.Magic.Fit(len(cur))
	if len(fit) == 0 {
		return Skipped
	}
	next, err := Commit(fit[ctx.Rand.Intn(len(fit))], arg)
	if err != nil {
		return Skipped
	}
	*arg = next
	return Mutated
}

// putUint 将v以小端写入b（按len(b)截断）
func putUint(b []byte, v *uint256.Int) {
	be := v.Bytes32()
	for i := range b {
		b[i] = be[31-i]
	}
}
