package metadata

import (
	"sort"

	"movefuzz/pkg/types"
)

// FunctionsByName 目标包中同名函数的标识
func (m *Metadata) FunctionsByName(name string) []types.FunctionIdent {
	return m.byName[name]
}

// Module 按模块标识查找（已按最高版本解析）
func (m *Metadata) Module(id types.ModuleID) (*types.ModuleAbi, bool) {
	mod, ok := m.modules[id]
	return mod, ok
}

// Modules 全部已解析模块，按标识排序
func (m *Metadata) Modules() []*types.ModuleAbi {
	out := make([]*types.ModuleAbi, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID().String() < out[j].ID().String() })
	return out
}

// Function 查找函数签名
func (m *Metadata) Function(ident types.FunctionIdent) (*types.FunctionAbi, bool) {
	mod, ok := m.modules[ident.Module]
	if !ok {
		return nil, false
	}
	return mod.Function(ident.Function)
}

// PackageFor 模块地址对应的（最高版本）包id
func (m *Metadata) PackageFor(moduleAddr types.Address) (types.Address, bool) {
	id, ok := m.ModuleToPackage[moduleAddr]
	return id, ok
}

// Package 按模块地址或包id查找包ABI
func (m *Metadata) Package(addr types.Address) (*types.PackageAbi, bool) {
	if id, ok := m.ModuleToPackage[addr]; ok {
		addr = id
	}
	pkg, ok := m.Packages[addr]
	return pkg, ok
}

// IsTarget 模块地址是否属于被测包
func (m *Metadata) IsTarget(moduleAddr types.Address) bool {
	if m.targets.Contains(moduleAddr) {
		return true
	}
	id, ok := m.ModuleToPackage[moduleAddr]
	return ok && m.targets.Contains(id)
}

// Callable 目标包中可作为顶层调用的函数（public或entry）
func (m *Metadata) Callable() []ResolvedFunction {
	return m.callable
}

// Struct 查找结构体声明（忽略类型实参）
func (m *Metadata) Struct(tag types.TypeTag) (*types.StructAbi, bool) {
	if tag.Kind != types.TagStruct || tag.Struct == nil {
		return nil, false
	}
	s, ok := m.structs[tag.Struct.Identity()]
	return s, ok
}

// Abilities 计算具体类型的能力
//
// 泛型结构体实例的能力 = 声明能力 ∩ 每个非phantom实参所满足的能力（key要求实参有store）。
func (m *Metadata) Abilities(tag types.TypeTag) (types.Ability, bool) {
	switch tag.Kind {
	case types.TagSigner:
		return types.AbilityDrop, true
	case types.TagVector:
		if tag.Elem == nil {
			return types.AbilityNone, false
		}
		inner, ok := m.Abilities(*tag.Elem)
		return inner.Intersect(types.PrimitiveAbilities), ok
	case types.TagStruct:
		if tag.Struct == nil {
			return types.AbilityNone, false
		}
	default:
		return types.PrimitiveAbilities, true
	}

	declared, isPhantom, ok := m.declaredAbilities(tag)
	if !ok {
		return types.AbilityNone, false
	}
	result := declared
	for i, arg := range tag.Struct.TypeArgs {
		if isPhantom(i) {
			continue
		}
		argAbilities, ok := m.Abilities(arg)
		if !ok {
			return types.AbilityNone, false
		}
		for _, a := range types.AllAbilities() {
			need := a
			if a == types.AbilityKey {
				need = types.AbilityStore
			}
			if result.Has(a) && !argAbilities.Has(need) {
				result &^= a
			}
		}
	}
	return result, true
}

func (m *Metadata) declaredAbilities(tag types.TypeTag) (types.Ability, func(int) bool, bool) {
	if s, ok := m.structs[tag.Struct.Identity()]; ok {
		return s.Abilities, func(i int) bool {
			return i < len(s.TypeParameters) && s.TypeParameters[i].IsPhantom
		}, true
	}
	if w, ok := wellKnownAbilities[tag.Struct.Identity()]; ok {
		return w.abilities, func(int) bool { return w.phantom }, true
	}
	return types.AbilityNone, nil, false
}

// TypesWithAbilities 满足全部要求能力的已知具体类型，按字符串排序
func (m *Metadata) TypesWithAbilities(required types.Ability) []types.TypeTag {
	keys := make([]string, 0)
	seen := make(map[string]bool)
	for a, set := range m.abilities {
		if !a.Has(required) {
			continue
		}
		for key := range set.Iter() {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	out := make([]types.TypeTag, len(keys))
	for i, key := range keys {
		out[i] = m.tags[key]
	}
	return out
}

// Objects 对象池中指定类型的对象，按id排序
func (m *Metadata) Objects(tag types.TypeTag) []*types.ObjectInfo {
	set, ok := m.pool[tag.String()]
	if !ok {
		return nil
	}
	ids := set.ToSlice()
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	out := make([]*types.ObjectInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.poolInfo[id])
	}
	return out
}

// PoolTypes 对象池中出现的全部类型
func (m *Metadata) PoolTypes() []types.TypeTag {
	keys := make([]string, 0, len(m.pool))
	for key := range m.pool {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]types.TypeTag, len(keys))
	for i, key := range keys {
		out[i] = m.tags[key]
	}
	return out
}

// PoolTypesMatching 对象池中与结构体标识相同的类型（任意类型实参）
func (m *Metadata) PoolTypesMatching(identity string) []types.TypeTag {
	var out []types.TypeTag
	for _, tag := range m.PoolTypes() {
		if tag.Kind == types.TagStruct && tag.Struct != nil && tag.Struct.Identity() == identity {
			out = append(out, tag)
		}
	}
	return out
}
