package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Version 对象/包的链上版本号，可以从多种 JSON 格式解析
// 支持的格式:
// - JSON 数字: 42
// - 十六进制字符串: "0x2a"
// - 十进制字符串: "42"
type Version uint64

// Uint64 返回 uint64 值
func (v Version) Uint64() uint64 {
	return uint64(v)
}

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (v *Version) UnmarshalJSON(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		val, err := strconv.ParseUint(num.String(), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version number %s: %w", num, err)
		}
		*v = Version(val)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("version is neither number nor string: %w", err)
	}
	if str == "" || str == "0x" {
		*v = 0
		return nil
	}
	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		val, err := hexutil.DecodeUint64(strings.ToLower(str))
		if err != nil {
			return fmt.Errorf("invalid hex version %q: %w", str, err)
		}
		*v = Version(val)
		return nil
	}
	val, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid decimal version %q: %w", str, err)
	}
	*v = Version(val)
	return nil
}

// MarshalJSON 以数字序列化
func (v Version) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(v), 10)), nil
}
