package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"movefuzz/pkg/types"
)

// SnapshotProvider 基于JSON快照文件的离线状态提供者
type SnapshotProvider struct {
	mu       sync.RWMutex
	objects  map[types.Address]*types.ObjectInfo
	packages map[types.Address]*types.PackageAbi
}

// NewSnapshotProvider 由内存中的快照构造
func NewSnapshotProvider(snap *types.Snapshot) *SnapshotProvider {
	p := &SnapshotProvider{
		objects:  make(map[types.Address]*types.ObjectInfo, len(snap.Objects)),
		packages: make(map[types.Address]*types.PackageAbi, len(snap.Packages)),
	}
	for i := range snap.Objects {
		obj := snap.Objects[i]
		p.objects[obj.ID] = &obj
	}
	for i := range snap.Packages {
		pkg := snap.Packages[i]
		p.packages[pkg.ID] = &pkg
	}
	return p
}

// LoadSnapshot 从文件加载快照
func LoadSnapshot(path string) (*SnapshotProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return NewSnapshotProvider(&snap), nil
}

// ListObjects 实现 Provider，按id排序以保证确定性
func (p *SnapshotProvider) ListObjects(ctx context.Context) ([]types.Address, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]types.Address, 0, len(p.objects))
	for id := range p.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	return ids, nil
}

// GetObjectInfo 实现 Provider
func (p *SnapshotProvider) GetObjectInfo(ctx context.Context, id types.Address) (*types.ObjectInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if obj, ok := p.objects[id]; ok {
		info := *obj
		info.Type = obj.Type.Clone()
		return &info, nil
	}
	if pkg, ok := p.packages[id]; ok {
		return &types.ObjectInfo{ID: id, Version: pkg.Version, Owner: types.Owner{Kind: types.OwnerImmutable}}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
}

// GetPackage 实现 Provider
func (p *SnapshotProvider) GetPackage(ctx context.Context, id types.Address) (*types.PackageAbi, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pkg, ok := p.packages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, id)
	}
	return pkg, nil
}

// GetFunctionSignature 实现 Provider
func (p *SnapshotProvider) GetFunctionSignature(ctx context.Context, module types.ModuleID, name string) (*types.FunctionAbi, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pkgs := make([]*types.PackageAbi, 0, len(p.packages))
	for _, pkg := range p.packages {
		pkgs = append(pkgs, pkg)
	}
	if fn, ok := findFunction(pkgs, module, name); ok {
		return fn, nil
	}
	return nil, fmt.Errorf("%w: %s::%s", ErrFunctionNotFound, module, name)
}

// Packages 快照中的全部包id
func (p *SnapshotProvider) Packages() []types.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]types.Address, 0, len(p.packages))
	for id := range p.packages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	return ids
}

// PutObject 写入/覆盖对象（用于测试和执行后回写）
func (p *SnapshotProvider) PutObject(info types.ObjectInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[info.ID] = &info
}
