package state

import (
	"context"
	"fmt"

	"movefuzz/pkg/types"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider 为任意Provider加一层LRU缓存，对象列表不缓存
type CachedProvider struct {
	inner     Provider
	objects   *lru.Cache[types.Address, *types.ObjectInfo]
	packages  *lru.Cache[types.Address, *types.PackageAbi]
	functions *lru.Cache[string, *types.FunctionAbi]
}

// NewCachedProvider 创建缓存装饰器
func NewCachedProvider(inner Provider, size int) (*CachedProvider, error) {
	if size <= 0 {
		size = 4096
	}
	objects, err := lru.New[types.Address, *types.ObjectInfo](size)
	if err != nil {
		return nil, fmt.Errorf("create object cache: %w", err)
	}
	packages, err := lru.New[types.Address, *types.PackageAbi](size)
	if err != nil {
		return nil, fmt.Errorf("create package cache: %w", err)
	}
	functions, err := lru.New[string, *types.FunctionAbi](size)
	if err != nil {
		return nil, fmt.Errorf("create function cache: %w", err)
	}
	return &CachedProvider{inner: inner, objects: objects, packages: packages, functions: functions}, nil
}

// ListObjects 实现 Provider
func (c *CachedProvider) ListObjects(ctx context.Context) ([]types.Address, error) {
	return c.inner.ListObjects(ctx)
}

// GetObjectInfo 实现 Provider
func (c *CachedProvider) GetObjectInfo(ctx context.Context, id types.Address) (*types.ObjectInfo, error) {
	if info, ok := c.objects.Get(id); ok {
		return info, nil
	}
	info, err := c.inner.GetObjectInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	c.objects.Add(id, info)
	return info, nil
}

// GetPackage 实现 Provider
func (c *CachedProvider) GetPackage(ctx context.Context, id types.Address) (*types.PackageAbi, error) {
	if pkg, ok := c.packages.Get(id); ok {
		return pkg, nil
	}
	pkg, err := c.inner.GetPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	c.packages.Add(id, pkg)
	return pkg, nil
}

// GetFunctionSignature 实现 Provider
func (c *CachedProvider) GetFunctionSignature(ctx context.Context, module types.ModuleID, name string) (*types.FunctionAbi, error) {
	key := module.String() + "::" + name
	if fn, ok := c.functions.Get(key); ok {
		return fn, nil
	}
	fn, err := c.inner.GetFunctionSignature(ctx, module, name)
	if err != nil {
		return nil, err
	}
	c.functions.Add(key, fn)
	return fn, nil
}

// Purge 清空缓存（快照变化后调用）
func (c *CachedProvider) Purge() {
	c.objects.Purge()
	c.packages.Purge()
	c.functions.Purge()
}
