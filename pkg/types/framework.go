package types

// 框架（0x2）中被特殊处理的类型与函数
const (
	CoinModule         = "coin"
	CoinStruct         = "Coin"
	BalanceModule      = "balance"
	BalanceStruct      = "Balance"
	TxContextModule    = "tx_context"
	TxContextStruct    = "TxContext"
	FromBalanceFunc    = "from_balance"
	TransferModule     = "transfer"
	PublicTransferFunc = "public_transfer"
)

// isFrameworkStruct 类型是否为 0x2::module::name<...>
func isFrameworkStruct(t TypeTag, module, name string) bool {
	return t.Kind == TagStruct && t.Struct != nil && t.Struct.Address == FrameworkAddress &&
		t.Struct.Module == module && t.Struct.Name == name
}

// IsBalance 是否为 0x2::balance::Balance<T>
func IsBalance(t TypeTag) bool { return isFrameworkStruct(t, BalanceModule, BalanceStruct) }

// IsCoin 是否为 0x2::coin::Coin<T>
func IsCoin(t TypeTag) bool { return isFrameworkStruct(t, CoinModule, CoinStruct) }

// IsTxContext 是否为 0x2::tx_context::TxContext
func IsTxContext(t TypeTag) bool { return isFrameworkStruct(t, TxContextModule, TxContextStruct) }

// IsBalanceToken 签名令牌（不解引用）是否为 Balance<...>
func IsBalanceToken(t SignatureToken) bool {
	return t.Kind == TokStructInstantiation && t.Struct != nil && t.Struct.Address == FrameworkAddress &&
		t.Struct.Module == BalanceModule && t.Struct.Name == BalanceStruct
}

// IsTxContextToken 签名令牌（解引用后）是否为 TxContext
func IsTxContextToken(t SignatureToken) bool {
	d := t.Deref()
	return d.Kind == TokStruct && d.Struct != nil && d.Struct.Address == FrameworkAddress &&
		d.Struct.Module == TxContextModule && d.Struct.Name == TxContextStruct
}

// CoinOf 构造 0x2::coin::Coin<T>
func CoinOf(t TypeTag) TypeTag {
	return StructOf(NewStructTag(FrameworkAddress, CoinModule, CoinStruct, t))
}

// BalanceOf 构造 0x2::balance::Balance<T>
func BalanceOf(t TypeTag) TypeTag {
	return StructOf(NewStructTag(FrameworkAddress, BalanceModule, BalanceStruct, t))
}

// FromBalanceCall 构造 0x2::coin::from_balance<T>(balance)
func FromBalanceCall(coinType TypeTag, balance SequenceArgument) *MoveCall {
	return &MoveCall{
		Package:       FrameworkAddress,
		Module:        CoinModule,
		Function:      FromBalanceFunc,
		TypeArguments: []TypeTag{coinType.Clone()},
		Arguments:     []SequenceArgument{balance},
	}
}

// IsFromBalance 调用是否为 0x2::coin::from_balance
func IsFromBalance(c *MoveCall) bool {
	return c != nil && c.Is(FrameworkAddress, CoinModule, FromBalanceFunc)
}
