// Package fixture 提供测试共用的Move包快照
package fixture

import (
	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// VaultPackage 测试包地址
	VaultPackage = types.MustHexToAddress("0xabc")
	// VaultModule 测试模块
	VaultModule = types.ModuleID{Address: VaultPackage, Name: "vault"}

	VaultObject = types.MustHexToAddress("0x10")
	PoolObject  = types.MustHexToAddress("0x20")
	CoinObject  = types.MustHexToAddress("0x30")
	Attacker    = types.MustHexToAddress("0xa11ce")

	SUI = types.MustParseTypeTag("0x2::sui::SUI")
)

// Ref 测试模块中的结构体引用
func Ref(name string) types.StructRef {
	return types.StructRef{Address: VaultPackage, Module: "vault", Name: name}
}

// Ident 测试模块中的函数标识
func Ident(name string) types.FunctionIdent {
	return types.FunctionIdent{Module: VaultModule, Function: name}
}

// Tag 测试模块中的非泛型结构体类型
func Tag(name string, args ...types.TypeTag) types.TypeTag {
	return types.StructOf(types.NewStructTag(VaultPackage, "vault", name, args...))
}

func frameworkRef(module, name string) types.StructRef {
	return types.StructRef{Address: types.FrameworkAddress, Module: module, Name: name}
}

func balanceTok(arg types.SignatureToken) types.SignatureToken {
	return types.StructToken(frameworkRef("balance", "Balance"), arg)
}

func coinTok(arg types.SignatureToken) types.SignatureToken {
	return types.StructToken(frameworkRef("coin", "Coin"), arg)
}

func suiTok() types.SignatureToken {
	return types.StructToken(frameworkRef("sui", "SUI"))
}

func ctxTok() types.SignatureToken {
	return types.MutRefToken(types.StructToken(frameworkRef("tx_context", "TxContext")))
}

func prim(k types.TokenKind) types.SignatureToken { return types.PrimitiveToken(k) }

// VaultModuleAbi 测试模块ABI
func VaultModuleAbi() types.ModuleAbi {
	vaultMut := types.MutRefToken(types.StructToken(Ref("Vault")))
	return types.ModuleAbi{
		Address: VaultPackage,
		Name:    "vault",
		Structs: []types.StructAbi{
			{Name: "Vault", Abilities: types.AbilityKey},
			{Name: "Pool", Abilities: types.AbilityKey | types.AbilityStore,
				TypeParameters: []types.StructTypeParameter{{IsPhantom: true}}},
			{Name: "Receipt"},
			{Name: "AdminCap", Abilities: types.AbilityKey | types.AbilityStore},
			{Name: "Unused", Abilities: types.AbilityDrop},
		},
		Functions: []types.FunctionAbi{
			{Name: "deposit", Visibility: types.VisibilityPublic,
				Parameters: []types.SignatureToken{vaultMut, prim(types.TokU64)}},
			{Name: "withdraw", Visibility: types.VisibilityPublic,
				Parameters: []types.SignatureToken{vaultMut, prim(types.TokU64)},
				Returns:    []types.SignatureToken{balanceTok(suiTok())}},
			{Name: "take", Visibility: types.VisibilityPublic,
				TypeParameters: []types.Ability{types.AbilityNone},
				Parameters: []types.SignatureToken{
					types.MutRefToken(types.StructToken(Ref("Pool"), types.TypeParamToken(0))),
					prim(types.TokU64),
				},
				Returns: []types.SignatureToken{balanceTok(types.TypeParamToken(0))}},
			{Name: "borrow", Visibility: types.VisibilityPublic,
				Parameters: []types.SignatureToken{vaultMut, prim(types.TokU64)},
				Returns:    []types.SignatureToken{coinTok(suiTok()), types.StructToken(Ref("Receipt"))}},
			{Name: "repay", Visibility: types.VisibilityPublic,
				Parameters: []types.SignatureToken{vaultMut, coinTok(suiTok()), types.StructToken(Ref("Receipt"))}},
			{Name: "new_cap", Visibility: types.VisibilityPublic,
				Parameters: []types.SignatureToken{ctxTok()},
				Returns:    []types.SignatureToken{types.StructToken(Ref("AdminCap"))}},
			{Name: "set_fee", Visibility: types.VisibilityPublic,
				Parameters: []types.SignatureToken{
					types.RefToken(types.StructToken(Ref("AdminCap"))),
					vaultMut, prim(types.TokU64), prim(types.TokBool),
				}},
			{Name: "swap", Visibility: types.VisibilityPublic, IsEntry: true,
				Parameters: []types.SignatureToken{
					types.VectorToken(prim(types.TokU8)), prim(types.TokAddress), prim(types.TokU128), ctxTok(),
				}},
			{Name: "helper", Visibility: types.VisibilityPrivate,
				Parameters: []types.SignatureToken{prim(types.TokU64)},
				Returns:    []types.SignatureToken{prim(types.TokU64)}},
		},
		Constants: []types.ConstantAbi{
			{Type: types.U64Tag, Value: hexutil.MustDecode("0xe803000000000000")}, // 1000
			{Type: types.U128Tag, Value: hexutil.MustDecode("0x00e1f505000000000000000000000000")},
			{Type: types.VectorOf(types.U8Tag), Value: hexutil.MustDecode("0x03666565")}, // "fee"
		},
	}
}

// Snapshot 测试快照：一个包 + 共享的Vault、Pool<SUI>与一个Coin<SUI>
func Snapshot() *types.Snapshot {
	return &types.Snapshot{
		Packages: []types.PackageAbi{{
			ID:      VaultPackage,
			Version: 1,
			Modules: []types.ModuleAbi{VaultModuleAbi()},
		}},
		Objects: []types.ObjectInfo{
			{ID: VaultObject, Type: Tag("Vault"), Version: 3,
				Owner: types.Owner{Kind: types.OwnerShared, InitialSharedVersion: 2}},
			{ID: PoolObject, Type: Tag("Pool", SUI), Version: 4,
				Owner: types.Owner{Kind: types.OwnerShared, InitialSharedVersion: 4}},
			{ID: CoinObject, Type: types.CoinOf(SUI), Version: 1,
				Owner: types.Owner{Kind: types.OwnerAddress, Address: Attacker}},
		},
	}
}
