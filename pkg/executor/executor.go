// Package executor 是模糊测试循环与外部 Move VM 执行服务之间的边界。
package executor

import (
	"context"
	"errors"

	"movefuzz/pkg/types"
)

var (
	// ErrExecutionTimeout 单次执行超出时间预算
	ErrExecutionTimeout = errors.New("execution timeout")
	// ErrVMRejected VM拒绝执行该序列（反序列化/校验失败）
	ErrVMRejected = errors.New("vm rejected sequence")
)

// Snapshot 执行所基于的状态快照标识，由执行服务解释
type Snapshot string

// Executor 在给定快照上执行一笔序列
//
// 同一 seq+snapshot 必须得到相同结果。实现不得保留 seq。
type Executor interface {
	Execute(ctx context.Context, seq *types.MoveSequence, snapshot Snapshot) (*types.ExecutionResult, error)
}

// Func 把普通函数适配成 Executor
type Func func(ctx context.Context, seq *types.MoveSequence, snapshot Snapshot) (*types.ExecutionResult, error)

// Execute 实现 Executor
func (f Func) Execute(ctx context.Context, seq *types.MoveSequence, snapshot Snapshot) (*types.ExecutionResult, error) {
	return f(ctx, seq, snapshot)
}

// IsCycleLocal 错误只影响当前周期
func IsCycleLocal(err error) bool {
	return errors.Is(err, ErrExecutionTimeout) || errors.Is(err, ErrVMRejected)
}
