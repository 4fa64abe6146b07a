package symbolic

import (
	"context"

	"github.com/holiman/uint256"
)

// LocalSolver 单约束边界值求解，选取离 Bound 最近的满足值
type LocalSolver struct{}

// Solve 逐条求解，不可满足的约束被跳过
func (LocalSolver) Solve(ctx context.Context, constraints []Constraint) ([]Hint, error) {
	var hints []Hint
	for _, c := range constraints {
		if err := ctx.Err(); err != nil {
			return hints, err
		}
		v, err := SolveOne(c)
		if err != nil {
			continue
		}
		hints = append(hints, Hint{Loc: c.Loc, Width: c.Width, Value: *v})
	}
	return hints, nil
}

// SolveOne 求解单条约束
func SolveOne(c Constraint) (*uint256.Int, error) {
	max := maxFor(c.Width)
	b := new(uint256.Int).Set(&c.Bound)
	one := uint256.NewInt(1)
	switch c.Op {
	case "eq":
		if b.Gt(max) {
			return nil, ErrUnsatisfiable
		}
		return b, nil
	case "neq":
		if b.Lt(max) {
			return b.Add(b, one), nil
		}
		return max.Sub(max, one), nil
	case "lt":
		if b.IsZero() {
			return nil, ErrUnsatisfiable
		}
		if b.Gt(max) {
			return max, nil
		}
		return b.Sub(b, one), nil
	case "le":
		if b.Gt(max) {
			return max, nil
		}
		return b, nil
	case "gt":
		if !b.Lt(max) {
			return nil, ErrUnsatisfiable
		}
		return b.Add(b, one), nil
	case "ge":
		if b.Gt(max) {
			return nil, ErrUnsatisfiable
		}
		return b, nil
	}
	return nil, ErrUnknownOp
}
