package metadata

import (
	"context"
	"fmt"
	"sort"

	"movefuzz/pkg/state"
	"movefuzz/pkg/types"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/log"
)

// Metadata 进程级只读元数据，构建后可被所有worker无锁共享
type Metadata struct {
	// Packages 按包id索引的ABI
	Packages map[types.Address]*types.PackageAbi
	// ModuleToPackage 模块地址 -> 最高版本的包id
	ModuleToPackage map[types.Address]types.Address
	// TypeGraph 结构体的生产者/消费者函数
	TypeGraph *TypeGraph

	targets   mapset.Set[types.Address]
	versions  map[types.Address]types.Version
	modules   map[types.ModuleID]*types.ModuleAbi
	structs   map[string]*types.StructAbi // 结构体标识 -> 声明
	abilities map[types.Ability]mapset.Set[string]
	tags      map[string]types.TypeTag // 类型字符串 -> 类型
	pool      map[string]mapset.Set[types.Address]
	poolInfo  map[types.Address]*types.ObjectInfo
	byName    map[string][]types.FunctionIdent
	callable  []ResolvedFunction
}

// Build 从状态提供者构建元数据，任何ABI或状态错误都是致命的
func Build(ctx context.Context, provider state.Provider, packageIDs []types.Address, opts Options) (*Metadata, error) {
	m := &Metadata{
		Packages:        make(map[types.Address]*types.PackageAbi),
		ModuleToPackage: make(map[types.Address]types.Address),
		targets:         mapset.NewThreadUnsafeSet[types.Address](),
		versions:        make(map[types.Address]types.Version),
		modules:         make(map[types.ModuleID]*types.ModuleAbi),
		structs:         make(map[string]*types.StructAbi),
		abilities:       make(map[types.Ability]mapset.Set[string]),
		tags:            make(map[string]types.TypeTag),
		pool:            make(map[string]mapset.Set[types.Address]),
		poolInfo:        make(map[types.Address]*types.ObjectInfo),
		byName:          make(map[string][]types.FunctionIdent),
	}

	for _, id := range packageIDs {
		pkg, err := provider.GetPackage(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: package %s: %v", ErrStateUnavailable, id, err)
		}
		if err := validatePackage(pkg); err != nil {
			return nil, err
		}
		version := pkg.Version
		info, err := provider.GetObjectInfo(ctx, id)
		switch {
		case err != nil:
			log.Warn("Package version unavailable, using declared version", "package", id, "version", version, "err", err)
		case info.Version > version:
			version = info.Version
		}
		m.Packages[id] = pkg
		m.versions[id] = version
	}
	if len(opts.TargetPackages) == 0 {
		for id := range m.Packages {
			m.targets.Add(id)
		}
	} else {
		for _, id := range opts.TargetPackages {
			m.targets.Add(id)
		}
	}

	m.resolveModules()
	m.seedAbilities()
	m.indexFunctions()
	if err := m.buildTypesPool(ctx, provider, opts); err != nil {
		return nil, err
	}
	m.TypeGraph = NewTypeGraph()
	for _, rf := range m.callable {
		m.TypeGraph.AddFunction(rf.Ident, rf.Abi)
	}

	log.Info("Metadata built",
		"packages", len(m.Packages),
		"modules", len(m.modules),
		"callable", len(m.callable),
		"poolTypes", len(m.pool),
		"poolObjects", len(m.poolInfo))
	return m, nil
}

// validatePackage 检查ABI的基本结构
func validatePackage(pkg *types.PackageAbi) error {
	seen := make(map[string]bool)
	for i := range pkg.Modules {
		mod := &pkg.Modules[i]
		if mod.Name == "" {
			return fmt.Errorf("%w: package %s has unnamed module", ErrMalformedABI, pkg.ID)
		}
		if seen[mod.Name] {
			return fmt.Errorf("%w: package %s declares module %s twice", ErrMalformedABI, pkg.ID, mod.Name)
		}
		seen[mod.Name] = true
		for j := range mod.Functions {
			fn := &mod.Functions[j]
			if fn.Name == "" {
				return fmt.Errorf("%w: %s has unnamed function", ErrMalformedABI, mod.ID())
			}
			for _, tok := range append(append([]types.SignatureToken(nil), fn.Parameters...), fn.Returns...) {
				if tok.MaxTypeParameter() >= len(fn.TypeParameters) {
					return fmt.Errorf("%w: %s::%s references T%d with %d type parameters",
						ErrMalformedABI, mod.ID(), fn.Name, tok.MaxTypeParameter(), len(fn.TypeParameters))
				}
			}
		}
		for j := range mod.Structs {
			if mod.Structs[j].Name == "" {
				return fmt.Errorf("%w: %s has unnamed struct", ErrMalformedABI, mod.ID())
			}
		}
	}
	return nil
}

// resolveModules 同一模块地址出现在多个包中时取版本最高者
func (m *Metadata) resolveModules() {
	ids := make([]types.Address, 0, len(m.Packages))
	for id := range m.Packages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })

	for _, id := range ids {
		for i := range m.Packages[id].Modules {
			addr := m.Packages[id].Modules[i].Address
			old, ok := m.ModuleToPackage[addr]
			if !ok || m.versions[old] < m.versions[id] {
				m.ModuleToPackage[addr] = id
			}
		}
	}
	for _, id := range ids {
		for i := range m.Packages[id].Modules {
			mod := &m.Packages[id].Modules[i]
			if m.ModuleToPackage[mod.Address] != id {
				continue
			}
			m.modules[mod.ID()] = mod
			for j := range mod.Structs {
				s := &mod.Structs[j]
				ref := types.StructRef{Address: mod.Address, Module: mod.Name, Name: s.Name}
				m.structs[ref.String()] = s
			}
		}
	}
}

// seedAbilities 原始类型、signer 与所有非泛型结构体按能力集合分组
func (m *Metadata) seedAbilities() {
	for _, tag := range []types.TypeTag{
		types.BoolTag, types.AddressTag, types.U8Tag, types.U16Tag, types.U32Tag,
		types.U64Tag, types.U128Tag, types.U256Tag, types.VectorOf(types.U8Tag),
	} {
		m.addAbilityType(types.PrimitiveAbilities, tag)
	}
	m.addAbilityType(types.AbilityDrop, types.SignerTag)

	for id, mod := range m.modules {
		for j := range mod.Structs {
			s := &mod.Structs[j]
			if s.IsGeneric() {
				continue
			}
			m.addAbilityType(s.Abilities, types.StructOf(types.NewStructTag(id.Address, id.Name, s.Name)))
		}
	}
}

func (m *Metadata) addAbilityType(a types.Ability, tag types.TypeTag) {
	set, ok := m.abilities[a]
	if !ok {
		set = mapset.NewThreadUnsafeSet[string]()
		m.abilities[a] = set
	}
	key := tag.String()
	set.Add(key)
	m.tags[key] = tag
}

// indexFunctions 建立目标包的函数名索引与可调用函数列表
func (m *Metadata) indexFunctions() {
	ids := make([]types.ModuleID, 0, len(m.modules))
	for id := range m.modules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		pkgID := m.ModuleToPackage[id.Address]
		if !m.targets.Contains(pkgID) && !m.targets.Contains(id.Address) {
			continue
		}
		mod := m.modules[id]
		for j := range mod.Functions {
			fn := &mod.Functions[j]
			ident := types.FunctionIdent{Module: id, Function: fn.Name}
			m.byName[fn.Name] = append(m.byName[fn.Name], ident)
			if fn.Callable() {
				m.callable = append(m.callable, ResolvedFunction{Ident: ident, Abi: fn})
			}
		}
	}
}

// buildTypesPool 列出全部对象并按精确类型分组；单个对象读取失败时跳过
func (m *Metadata) buildTypesPool(ctx context.Context, provider state.Provider, opts Options) error {
	ids, err := provider.ListObjects(ctx)
	if err != nil {
		return fmt.Errorf("%w: list objects: %v", ErrStateUnavailable, err)
	}
	include := tagSet(opts.IncludeTypes)
	exclude := tagSet(opts.ExcludeTypes)

	skipped := 0
	for _, id := range ids {
		if _, isPkg := m.Packages[id]; isPkg {
			continue
		}
		info, err := provider.GetObjectInfo(ctx, id)
		if err != nil {
			skipped++
			log.Debug("Skip unreadable object", "id", id, "err", err)
			continue
		}
		key := info.Type.String()
		if include.Cardinality() > 0 && !include.Contains(key) {
			continue
		}
		if exclude.Contains(key) {
			continue
		}
		set, ok := m.pool[key]
		if !ok {
			set = mapset.NewThreadUnsafeSet[types.Address]()
			m.pool[key] = set
		}
		set.Add(id)
		m.tags[key] = info.Type
		m.poolInfo[id] = info
	}
	for key, set := range m.pool {
		if set.Cardinality() == 0 {
			delete(m.pool, key)
		}
	}
	if skipped > 0 {
		log.Warn("Some objects could not be read", "skipped", skipped, "total", len(ids))
	}
	return nil
}

func tagSet(tags []types.TypeTag) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, t := range tags {
		set.Add(t.String())
	}
	return set
}
