//go:build !z3

package symbolic

import (
	"context"
)

// Z3Solver 占位实现，未以 -tags z3 构建时不可用
type Z3Solver struct{}

// NewZ3Solver 总是返回 ErrZ3Unavailable
func NewZ3Solver(cfg Config) (*Z3Solver, error) {
	return nil, ErrZ3Unavailable
}

func (zs *Z3Solver) Close() {}

// CanHandle stub 不处理任何约束
func (zs *Z3Solver) CanHandle(constraints []Constraint) bool {
	return false
}

// Solve stub
func (zs *Z3Solver) Solve(ctx context.Context, constraints []Constraint) ([]Hint, error) {
	return nil, ErrZ3Unavailable
}
