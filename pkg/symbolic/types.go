// Package symbolic 把执行跟踪中观察到的整数比较转换成能翻转分支的候选值。
//
// 默认使用本地求解器（边界值推导），以 -tags z3 构建时可切换到 Z3。
package symbolic

import (
	"errors"
	"fmt"
	"time"

	"movefuzz/pkg/types"

	"github.com/holiman/uint256"
)

var (
	ErrUnsatisfiable   = errors.New("constraint unsatisfiable")
	ErrZ3Unavailable   = errors.New("z3 solver not compiled in (build with -tags z3)")
	ErrUnknownOp       = errors.New("unknown comparison operator")
	ErrUnknownStrategy = errors.New("unknown solver strategy")
)

// 求解策略
const (
	StrategyLocal  = "local"
	StrategyZ3     = "z3"
	StrategyHybrid = "hybrid"
)

// Config 比较提示配置
type Config struct {
	Enabled        bool   `yaml:"enabled"`
	Strategy       string `yaml:"strategy"`         // local / z3 / hybrid
	MaxConstraints int    `yaml:"max_constraints"`  // 单次执行最多处理的约束数
	HybridMinGroup int    `yaml:"hybrid_min_group"` // hybrid 下同一位置约束数达到该值才交给 Z3
	SolverTimeout  string `yaml:"solver_timeout"`
	CacheSize      int    `yaml:"cache_size"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Strategy:       StrategyLocal,
		MaxConstraints: 32,
		HybridMinGroup: 2,
		SolverTimeout:  "3s",
		CacheSize:      4096,
	}
}

// MergeWithDefaults 用默认值补齐零值字段
func (c *Config) MergeWithDefaults() {
	d := DefaultConfig()
	if c.Strategy == "" {
		c.Strategy = d.Strategy
	}
	if c.MaxConstraints == 0 {
		c.MaxConstraints = d.MaxConstraints
	}
	if c.HybridMinGroup == 0 {
		c.HybridMinGroup = d.HybridMinGroup
	}
	if c.SolverTimeout == "" {
		c.SolverTimeout = d.SolverTimeout
	}
	if c.CacheSize == 0 {
		c.CacheSize = d.CacheSize
	}
}

// Timeout 解析超时，非法时退回3秒
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.SolverTimeout)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

// Side 约束变量所在的比较操作数
type Side uint8

const (
	SideLeft Side = iota
	SideRight
)

// Constraint 期望的关系: x Op Bound，x 为位宽 Width 的无符号整数
type Constraint struct {
	Loc   types.CodeLocation
	Side  Side
	Op    string
	Width int
	Bound uint256.Int
}

// Key 去重键
func (c Constraint) Key() string {
	return fmt.Sprintf("%s/%d/%s/%d/%s", c.Loc.String(), c.Side, c.Op, c.Width, c.Bound.Hex())
}

// String x < 10 (u64)
func (c Constraint) String() string {
	return fmt.Sprintf("x %s %s (u%d)", opSymbol[c.Op], c.Bound.Dec(), c.Width)
}

// Hint 求解得到的候选值
type Hint struct {
	Loc   types.CodeLocation
	Width int
	Value uint256.Int
}

var opSymbol = map[string]string{
	"eq":  "==",
	"neq": "!=",
	"lt":  "<",
	"le":  "<=",
	"gt":  ">",
	"ge":  ">=",
}

// negate 关系取反
var negate = map[string]string{
	"eq":  "neq",
	"neq": "eq",
	"lt":  "ge",
	"le":  "gt",
	"gt":  "le",
	"ge":  "lt",
}

// mirror 交换操作数后的关系
var mirror = map[string]string{
	"eq":  "eq",
	"neq": "neq",
	"lt":  "gt",
	"le":  "ge",
	"gt":  "lt",
	"ge":  "le",
}

// FromComparison 生成翻转该比较结果所需的约束
//
// 不知道哪一侧来自输入，所以两侧各出一条。观察到的结果为 Taken 时
// 目标关系是 not(L op R)，否则是 L op R。
func FromComparison(c types.Comparison) ([]Constraint, error) {
	if _, ok := negate[c.Op]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, c.Op)
	}
	width := c.Width
	if width <= 0 || width > 256 {
		width = 256
	}
	want := c.Op
	if c.Taken {
		want = negate[c.Op]
	}
	left := Constraint{Loc: c.CodeLocation, Side: SideLeft, Op: want, Width: width}
	left.Bound.Set(c.Right.Int())
	right := Constraint{Loc: c.CodeLocation, Side: SideRight, Op: mirror[want], Width: width}
	right.Bound.Set(c.Left.Int())
	return []Constraint{left, right}, nil
}

// Extract 从跟踪中提取去重后的约束，最多 limit 条（<=0 不限）
func Extract(trace *types.Trace, limit int) []Constraint {
	if trace == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []Constraint
	for _, cmp := range trace.Comparisons {
		cs, err := FromComparison(cmp)
		if err != nil {
			continue
		}
		for _, c := range cs {
			k := c.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, c)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// maxFor 位宽对应的最大值
func maxFor(width int) *uint256.Int {
	if width >= 256 {
		return new(uint256.Int).SetAllOne()
	}
	one := uint256.NewInt(1)
	m := new(uint256.Int).Lsh(one, uint(width))
	return m.Sub(m, one)
}
