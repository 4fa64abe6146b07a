// Package metadata 构建只读的类型/调用索引：函数签名、类型能力、类型图、调用图与对象池
package metadata

import (
	"errors"

	"movefuzz/pkg/types"
)

var (
	// ErrMalformedABI ABI缺失或损坏
	ErrMalformedABI = errors.New("malformed ABI")
	// ErrStateUnavailable 启动时无法读取状态快照
	ErrStateUnavailable = errors.New("state unavailable")
)

// Options 元数据构建选项
type Options struct {
	// TargetPackages 被测包；为空时所有包都是目标
	TargetPackages []types.Address
	// IncludeTypes 非空时只保留这些类型的对象
	IncludeTypes []types.TypeTag
	// ExcludeTypes 从对象池中排除的类型
	ExcludeTypes []types.TypeTag
}

// ResolvedFunction 函数标识 + 签名
type ResolvedFunction struct {
	Ident types.FunctionIdent
	Abi   *types.FunctionAbi
}

// wellKnownStruct 框架类型在未加载0x2包时的能力兜底
type wellKnownStruct struct {
	abilities types.Ability
	phantom   bool // 全部类型参数都是phantom
}

var wellKnownAbilities = map[string]wellKnownStruct{
	"0x2::coin::Coin":            {types.AbilityKey | types.AbilityStore, true},
	"0x2::coin::TreasuryCap":     {types.AbilityKey | types.AbilityStore, true},
	"0x2::coin::CoinMetadata":    {types.AbilityKey | types.AbilityStore, true},
	"0x2::balance::Balance":      {types.AbilityStore, true},
	"0x2::balance::Supply":       {types.AbilityStore, true},
	"0x2::sui::SUI":              {types.AbilityDrop, false},
	"0x2::object::UID":           {types.AbilityStore, false},
	"0x2::object::ID":            {types.PrimitiveAbilities, false},
	"0x2::tx_context::TxContext": {types.AbilityDrop, false},
	"0x2::clock::Clock":          {types.AbilityKey, false},
	"0x1::string::String":        {types.PrimitiveAbilities, false},
	"0x1::ascii::String":         {types.PrimitiveAbilities, false},
	"0x1::option::Option":        {types.PrimitiveAbilities, false},
	"0x1::type_name::TypeName":   {types.PrimitiveAbilities, false},
	"0x2::table::Table":          {types.AbilityKey | types.AbilityStore, true},
	"0x2::bag::Bag":              {types.AbilityKey | types.AbilityStore, false},
	"0x2::vec_map::VecMap":       {types.PrimitiveAbilities, false},
	"0x2::vec_set::VecSet":       {types.PrimitiveAbilities, false},
	"0x2::package::UpgradeCap":   {types.AbilityKey | types.AbilityStore, false},
	"0x2::package::Publisher":    {types.AbilityKey | types.AbilityStore, false},
}
