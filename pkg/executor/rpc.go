package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

const methodExecute = "movy_execute"

// CodeVMRejected 执行服务用于表示拒绝的JSON-RPC错误码
const CodeVMRejected = -32010

// Config 执行器配置
type Config struct {
	RPCURL    string        `yaml:"rpc_url"`
	Timeout   time.Duration `yaml:"timeout"`
	GasBudget uint64        `yaml:"gas_budget"`
	Snapshot  string        `yaml:"snapshot"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		RPCURL:    "http://127.0.0.1:9545",
		Timeout:   10 * time.Second,
		GasBudget: 50_000_000_000,
	}
}

// ExecuteRequest movy_execute 的参数
type ExecuteRequest struct {
	Sender    types.Address       `json:"sender"`
	Sequence  *types.MoveSequence `json:"sequence"`
	Snapshot  Snapshot            `json:"snapshot,omitempty"`
	GasBudget uint64              `json:"gas_budget"`
}

// RPCExecutor 通过JSON-RPC调用执行服务
type RPCExecutor struct {
	client    *rpc.Client
	sender    types.Address
	timeout   time.Duration
	gasBudget uint64
}

// NewRPCExecutor 使用已有连接创建执行器
func NewRPCExecutor(client *rpc.Client, sender types.Address, cfg Config) *RPCExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &RPCExecutor{client: client, sender: sender, timeout: cfg.Timeout, gasBudget: cfg.GasBudget}
}

// DialRPCExecutor 连接 cfg.RPCURL
func DialRPCExecutor(ctx context.Context, sender types.Address, cfg Config) (*RPCExecutor, error) {
	client, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial executor %s: %w", cfg.RPCURL, err)
	}
	log.Info("Connected to executor", "url", cfg.RPCURL, "timeout", cfg.Timeout)
	return NewRPCExecutor(client, sender, cfg), nil
}

// Execute 实现 Executor
func (e *RPCExecutor) Execute(ctx context.Context, seq *types.MoveSequence, snapshot Snapshot) (*types.ExecutionResult, error) {
	if seq == nil || len(seq.Commands) == 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrVMRejected)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := ExecuteRequest{Sender: e.sender, Sequence: seq, Snapshot: snapshot, GasBudget: e.gasBudget}
	var res *types.ExecutionResult
	err := e.client.CallContext(ctx, &res, methodExecute, req)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w after %v", ErrExecutionTimeout, e.timeout)
	default:
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == CodeVMRejected {
			return nil, fmt.Errorf("%w: %s", ErrVMRejected, rpcErr.Error())
		}
		return nil, fmt.Errorf("%s: %w", methodExecute, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: empty result", ErrVMRejected)
	}
	return res, nil
}

// Close 关闭连接
func (e *RPCExecutor) Close() {
	if e != nil && e.client != nil {
		e.client.Close()
	}
}
