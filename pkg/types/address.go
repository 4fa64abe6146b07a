// Package types 定义Move调用序列模糊测试使用的核心数据模型
package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AddressLength Move地址长度（字节）
const AddressLength = 32

// Address 32字节Move账户/对象/包地址
type Address [AddressLength]byte

var (
	// ZeroAddress 0x0
	ZeroAddress = Address{}
	// StdAddress 0x1 (move-stdlib)
	StdAddress = AddressFromUint64(1)
	// FrameworkAddress 0x2 (框架包，coin/balance/transfer所在地址)
	FrameworkAddress = AddressFromUint64(2)
)

// AddressFromUint64 将小整数编码为地址（大端，右对齐），用于0x1/0x2等保留地址
func AddressFromUint64(v uint64) Address {
	var a Address
	for i := 0; i < 8; i++ {
		a[AddressLength-1-i] = byte(v >> (8 * i))
	}
	return a
}

// HexToAddress 解析十六进制地址，支持短格式（0x2）
func HexToAddress(s string) (Address, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if raw == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if len(raw) > AddressLength*2 {
		return Address{}, fmt.Errorf("address too long: %s", s)
	}
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}
	b, err := hexutil.Decode("0x" + raw)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	var a Address
	copy(a[AddressLength-len(b):], b)
	return a, nil
}

// MustHexToAddress 解析失败时panic，仅用于常量与测试
func MustHexToAddress(s string) Address {
	a, err := HexToAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Hex 返回完整的64位十六进制表示
func (a Address) Hex() string {
	return hexutil.Encode(a[:])
}

// String 返回短格式（去除前导零），与Move源码中的写法一致
func (a Address) String() string {
	s := strings.TrimLeft(hexutil.Encode(a[:])[2:], "0")
	if s == "" {
		s = "0"
	}
	return "0x" + s
}

// IsZero 是否为0x0
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalText 实现 encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := HexToAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
