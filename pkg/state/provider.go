// Package state 提供链上对象与包元数据的查询边界
package state

import (
	"context"
	"errors"

	"movefuzz/pkg/types"
)

var (
	// ErrObjectNotFound 对象不存在
	ErrObjectNotFound = errors.New("object not found")
	// ErrPackageNotFound 包不存在
	ErrPackageNotFound = errors.New("package not found")
	// ErrFunctionNotFound 函数不存在
	ErrFunctionNotFound = errors.New("function not found")
)

// Provider 状态/元数据提供者
type Provider interface {
	// ListObjects 列出快照中全部对象id
	ListObjects(ctx context.Context) ([]types.Address, error)
	// GetObjectInfo 查询对象类型、所有者与版本
	GetObjectInfo(ctx context.Context, id types.Address) (*types.ObjectInfo, error)
	// GetPackage 查询包ABI
	GetPackage(ctx context.Context, id types.Address) (*types.PackageAbi, error)
	// GetFunctionSignature 查询函数签名
	GetFunctionSignature(ctx context.Context, module types.ModuleID, name string) (*types.FunctionAbi, error)
}

// findFunction 在包列表中按模块地址与名称查找函数
func findFunction(pkgs []*types.PackageAbi, module types.ModuleID, name string) (*types.FunctionAbi, bool) {
	var (
		best    *types.FunctionAbi
		version types.Version
	)
	for _, pkg := range pkgs {
		for i := range pkg.Modules {
			m := &pkg.Modules[i]
			if m.Address != module.Address || m.Name != module.Name {
				continue
			}
			if fn, ok := m.Function(name); ok && (best == nil || pkg.Version > version) {
				best, version = fn, pkg.Version
			}
		}
	}
	return best, best != nil
}
