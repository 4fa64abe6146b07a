//go:build z3

package symbolic

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/mitchellh/go-z3"
)

// Z3Solver 把同一变量上的一组约束合取后交给 Z3
//
// 使用整数理论，只处理界限落在 int 范围内的约束。
type Z3Solver struct {
	config *z3.Config
	ctx    *z3.Context
}

// NewZ3Solver 创建求解器，超时取自 cfg.SolverTimeout
func NewZ3Solver(cfg Config) (*Z3Solver, error) {
	zc := z3.NewConfig()
	zc.SetParamValue("timeout", strconv.FormatInt(cfg.Timeout().Milliseconds(), 10))
	ctx := z3.NewContext(zc)
	log.Debug("Z3 solver initialized", "timeout", cfg.Timeout())
	return &Z3Solver{config: zc, ctx: ctx}, nil
}

// Close 释放Z3资源
func (zs *Z3Solver) Close() {
	if zs == nil {
		return
	}
	zs.ctx.Close()
	zs.config.Close()
}

// CanHandle 所有约束的界限都能放进 int
func (zs *Z3Solver) CanHandle(constraints []Constraint) bool {
	if zs == nil || len(constraints) == 0 {
		return false
	}
	for _, c := range constraints {
		if !c.Bound.IsUint64() || c.Bound.Uint64() > math.MaxInt32 {
			return false
		}
	}
	return true
}

// Solve 求合取的一个模型，所有约束共享同一个变量
func (zs *Z3Solver) Solve(ctx context.Context, constraints []Constraint) ([]Hint, error) {
	if !zs.CanHandle(constraints) {
		return nil, fmt.Errorf("z3: %d constraints out of integer range", len(constraints))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort := zs.ctx.IntSort()
	x := zs.ctx.Const(zs.ctx.Symbol("x"), sort)

	width := constraints[0].Width
	solver := zs.ctx.NewSolver()
	defer solver.Close()

	solver.Assert(x.Ge(zs.ctx.Int(0, sort)))
	upper := maxFor(width)
	if upper.IsUint64() && upper.Uint64() <= math.MaxInt32 {
		solver.Assert(x.Le(zs.ctx.Int(int(upper.Uint64()), sort)))
	}
	for _, c := range constraints {
		solver.Assert(zs.relation(x, c, sort))
	}

	switch solver.Check() {
	case z3.True:
		model := solver.Model()
		defer model.Close()
		v := model.Eval(x).Int()
		if v < 0 {
			return nil, ErrUnsatisfiable
		}
		h := Hint{Loc: constraints[0].Loc, Width: width}
		h.Value.Set(uint256.NewInt(uint64(v)))
		return []Hint{h}, nil
	case z3.False:
		return nil, ErrUnsatisfiable
	default:
		return nil, fmt.Errorf("z3: unknown result for %d constraints", len(constraints))
	}
}

func (zs *Z3Solver) relation(x *z3.AST, c Constraint, sort *z3.Sort) *z3.AST {
	b := zs.ctx.Int(int(c.Bound.Uint64()), sort)
	switch c.Op {
	case "eq":
		return x.Eq(b)
	case "neq":
		return x.Eq(b).Not()
	case "lt":
		return x.Lt(b)
	case "le":
		return x.Le(b)
	case "gt":
		return x.Gt(b)
	default:
		return x.Ge(b)
	}
}
