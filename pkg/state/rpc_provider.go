package state

import (
	"context"
	"fmt"
	"time"

	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPC方法名（执行服务的 movy 命名空间）
const (
	methodListObjects = "movy_listObjects"
	methodGetObject   = "movy_getObjectInfo"
	methodGetPackage  = "movy_getPackage"
	methodGetFunction = "movy_getFunction"
)

// RPCProvider 通过JSON-RPC按需读取状态
type RPCProvider struct {
	client  *rpc.Client
	timeout time.Duration
}

// NewRPCProvider 创建RPC状态提供者
func NewRPCProvider(client *rpc.Client, timeout time.Duration) *RPCProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RPCProvider{client: client, timeout: timeout}
}

// DialRPCProvider 连接到URL
func DialRPCProvider(ctx context.Context, url string, timeout time.Duration) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewRPCProvider(client, timeout), nil
}

func (p *RPCProvider) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.client.CallContext(ctx, result, method, args...)
}

// ListObjects 实现 Provider
func (p *RPCProvider) ListObjects(ctx context.Context) ([]types.Address, error) {
	var ids []types.Address
	if err := p.call(ctx, &ids, methodListObjects); err != nil {
		return nil, fmt.Errorf("%s: %w", methodListObjects, err)
	}
	return ids, nil
}

// GetObjectInfo 实现 Provider
func (p *RPCProvider) GetObjectInfo(ctx context.Context, id types.Address) (*types.ObjectInfo, error) {
	var info *types.ObjectInfo
	if err := p.call(ctx, &info, methodGetObject, id); err != nil {
		return nil, fmt.Errorf("%s %s: %w", methodGetObject, id, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return info, nil
}

// GetPackage 实现 Provider
func (p *RPCProvider) GetPackage(ctx context.Context, id types.Address) (*types.PackageAbi, error) {
	var pkg *types.PackageAbi
	if err := p.call(ctx, &pkg, methodGetPackage, id); err != nil {
		return nil, fmt.Errorf("%s %s: %w", methodGetPackage, id, err)
	}
	if pkg == nil {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, id)
	}
	return pkg, nil
}

// GetFunctionSignature 实现 Provider
func (p *RPCProvider) GetFunctionSignature(ctx context.Context, module types.ModuleID, name string) (*types.FunctionAbi, error) {
	var fn *types.FunctionAbi
	if err := p.call(ctx, &fn, methodGetFunction, module, name); err != nil {
		return nil, fmt.Errorf("%s %s::%s: %w", methodGetFunction, module, name, err)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %s::%s", ErrFunctionNotFound, module, name)
	}
	return fn, nil
}

// Close 关闭连接
func (p *RPCProvider) Close() {
	if p != nil && p.client != nil {
		p.client.Close()
	}
}
